package ics

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// maxOccurrencesPerSeries caps a single expansion so an unbounded rule over
// a wide window cannot exhaust memory.
const maxOccurrencesPerSeries = 5000

// series is a master record together with its overrides.
type series struct {
	master    *record
	overrides []*record
}

// groupSeries pairs masters with their overrides. Overrides without a master
// are dropped.
func groupSeries(records []*record) []*series {
	byUID := make(map[string]*series)
	var order []string
	for _, rec := range records {
		if rec.isOverride() {
			continue
		}
		if _, dup := byUID[rec.UID]; dup {
			continue
		}
		byUID[rec.UID] = &series{master: rec}
		order = append(order, rec.UID)
	}
	for _, rec := range records {
		if !rec.isOverride() {
			continue
		}
		if s, ok := byUID[rec.UID]; ok {
			s.overrides = append(s.overrides, rec)
		}
	}
	out := make([]*series, 0, len(order))
	for _, uid := range order {
		out = append(out, byUID[uid])
	}
	return out
}

// records flattens the series back into file order: master then overrides.
func (s *series) records() []*record {
	return append([]*record{s.master}, s.overrides...)
}

func (s *series) override(slot time.Time) *record {
	for _, ov := range s.overrides {
		if ov.RecurrenceID.Equal(slot) {
			return ov
		}
	}
	return nil
}

func (s *series) dropOverride(slot time.Time) {
	kept := s.overrides[:0]
	for _, ov := range s.overrides {
		if !ov.RecurrenceID.Equal(slot) {
			kept = append(kept, ov)
		}
	}
	s.overrides = kept
}

func (s *series) set() (*rrule.Set, error) {
	m := s.master
	if m.Recurrence == nil {
		return nil, errors.New("series is not recurring")
	}
	rr, err := m.Recurrence.RRule(m.Start)
	if err != nil {
		return nil, err
	}
	set := &rrule.Set{}
	set.RRule(rr)
	for _, ex := range m.ExDates {
		set.ExDate(ex)
	}
	return set, nil
}

// isSlot reports whether t is a live slot of a recurring series.
func (s *series) isSlot(t time.Time) bool {
	set, err := s.set()
	if err != nil {
		return false
	}
	for _, got := range set.Between(t, t, true) {
		if got.Equal(t) {
			return true
		}
	}
	return false
}

// expand returns the occurrences overlapping [from, to], overrides applied,
// sorted by start.
func (s *series) expand(cal *provider.Calendar, from, to time.Time) []*provider.Event {
	m := s.master
	var out []*provider.Event

	if m.Recurrence == nil {
		ev := m.snapshot(cal, m.Start, m.End)
		if ov := s.override(m.Start); ov != nil {
			ev = ov.snapshot(cal, ov.Start, ov.End)
		}
		if overlaps(ev.Start, ev.End, from, to) {
			out = append(out, ev)
		}
		return out
	}

	set, err := s.set()
	if err != nil {
		appLog.Error("expand: bad recurrence", err, "uid", m.UID, "rrule", m.Recurrence.String())
		return out
	}

	slots := set.Between(from.Add(-m.End.Sub(m.Start)), to, true)
	if len(slots) > maxOccurrencesPerSeries {
		appLog.Warn("expand: occurrences truncated", "uid", m.UID, "cap", maxOccurrencesPerSeries)
		slots = slots[:maxOccurrencesPerSeries]
	}

	seen := make(map[int64]bool, len(slots))
	for _, slot := range slots {
		seen[slot.Unix()] = true
		ev := s.occurrenceAt(cal, slot)
		if overlaps(ev.Start, ev.End, from, to) {
			out = append(out, ev)
		}
	}

	// Overrides moved into the window from a slot outside it.
	for _, ov := range s.overrides {
		if seen[ov.RecurrenceID.Unix()] || !overlaps(ov.Start, ov.End, from, to) {
			continue
		}
		if s.isSlot(ov.RecurrenceID) {
			out = append(out, s.occurrenceAt(cal, ov.RecurrenceID))
		}
	}

	sortByStart(out)
	return out
}

// occurrenceAt renders the occurrence generated for slot.
func (s *series) occurrenceAt(cal *provider.Calendar, slot time.Time) *provider.Event {
	m := s.master
	slot = slot.In(model.LocalZone())

	if ov := s.override(slot); ov != nil {
		ev := ov.snapshot(cal, ov.Start, ov.End)
		ev.Recurrence = m.Recurrence.Clone()
		ev.OccurrenceDate = slot
		ev.Detached = true
		return ev
	}

	end := slot.Add(m.End.Sub(m.Start))
	if m.AllDay {
		days := int(math.Round(m.End.Sub(m.Start).Hours() / 24))
		slot = midnight(slot)
		end = slot.AddDate(0, 0, max(days, 1))
	}
	ev := m.snapshot(cal, slot, end)
	ev.OccurrenceDate = slot
	return ev
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}

func sortByStart(evs []*provider.Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Title < evs[j].Title
		}
		return evs[i].Start.Before(evs[j].Start)
	})
}
