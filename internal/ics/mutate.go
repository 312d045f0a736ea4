package ics

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// Save persists a draft.
//
//   - A draft without ID creates a new series with a fresh UID.
//   - WholeSeries rewrites the master; overrides and EXDATEs follow a moved
//     start and are dropped once they no longer fall on a slot.
//   - ThisOccurrence writes an override keyed by the draft's OccurrenceDate.
//   - ThisAndFuture ends the master before the slot and starts a new series
//     at the draft's start. At the first slot it behaves like WholeSeries.
func (s *Store) Save(ctx context.Context, ev *provider.Event, scope provider.Scope) (*provider.Event, error) {
	if ev == nil {
		return nil, failed("nil event")
	}
	if err := ctx.Err(); err != nil {
		return nil, failed("%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		return s.create(ev)
	}

	f, sr, err := s.lookup(ev.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProviderOperationFailed, err)
	}
	if f.cal.ReadOnly {
		return nil, failed("calendar %q is read-only", f.cal.Title)
	}

	switch scope {
	case provider.WholeSeries:
		return s.saveSeries(f, sr, ev)
	case provider.ThisOccurrence:
		return s.saveOccurrence(f, sr, ev)
	case provider.ThisAndFuture:
		return s.saveFuture(f, sr, ev)
	default:
		return nil, failed("unknown scope %d", scope)
	}
}

func (s *Store) create(ev *provider.Event) (*provider.Event, error) {
	cal := ev.Calendar
	if cal == nil {
		cal = &provider.Calendar{ID: calendarID(s.defaultName), Title: s.defaultName}
	}
	f, err := s.fileFor(cal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProviderOperationFailed, err)
	}
	if f.cal.ReadOnly {
		return nil, failed("calendar %q is read-only", f.cal.Title)
	}

	rec := &record{UID: s.newUID(), LastModified: s.now().UTC()}
	rec.applyDraft(ev)
	rec.Recurrence = ev.Recurrence.Clone()
	sr := &series{master: rec}
	f.series = append(f.series, sr)

	if err := s.write(f); err != nil {
		f.series = f.series[:len(f.series)-1]
		return nil, failed("write %s: %v", f.path, err)
	}
	appLog.Info("ics event created", "uid", rec.UID, "calendar", f.cal.Title, "recurring", rec.Recurrence != nil)
	return rec.snapshot(f.cal, rec.Start, rec.End), nil
}

func (s *Store) saveSeries(f *calendarFile, sr *series, ev *provider.Event) (*provider.Event, error) {
	m := sr.master
	before := sr.cloneSeries()

	oldStart := m.Start
	m.applyDraft(ev)
	m.Recurrence = ev.Recurrence.Clone()
	m.LastModified = s.now().UTC()
	if delta := m.Start.Sub(oldStart); delta != 0 && m.Recurrence != nil {
		for i := range m.ExDates {
			m.ExDates[i] = m.ExDates[i].Add(delta)
		}
		for _, ov := range sr.overrides {
			ov.RecurrenceID = ov.RecurrenceID.Add(delta)
		}
	}
	sr.prune()

	target := f
	if ev.Calendar != nil && ev.Calendar.ID != f.cal.ID {
		t, err := s.fileFor(ev.Calendar)
		if err != nil {
			sr.restore(before)
			return nil, fmt.Errorf("%w: %w", model.ErrProviderOperationFailed, err)
		}
		if t.cal.ReadOnly {
			sr.restore(before)
			return nil, failed("calendar %q is read-only", t.cal.Title)
		}
		target = t
	}

	if target == f {
		if err := s.write(f); err != nil {
			sr.restore(before)
			return nil, failed("write %s: %v", f.path, err)
		}
	} else {
		f.series = removeSeries(f.series, sr)
		target.series = append(target.series, sr)
		undo := func() {
			target.series = removeSeries(target.series, sr)
			f.series = append(f.series, sr)
			sr.restore(before)
		}
		if err := s.write(target); err != nil {
			undo()
			return nil, failed("write %s: %v", target.path, err)
		}
		if err := s.write(f); err != nil {
			undo()
			s.rewrite(target)
			return nil, failed("write %s: %v", f.path, err)
		}
	}

	appLog.Info("ics series saved", "uid", m.UID, "calendar", target.cal.Title)
	return m.snapshot(target.cal, m.Start, m.End), nil
}

func (s *Store) saveOccurrence(f *calendarFile, sr *series, ev *provider.Event) (*provider.Event, error) {
	m := sr.master
	if m.Recurrence == nil {
		return s.saveSeries(f, sr, ev)
	}
	slot := ev.OccurrenceDate
	if slot.IsZero() {
		return nil, failed("occurrence date is required to save a single occurrence")
	}
	if !sr.isSlot(slot) {
		return nil, failed("event %s has no occurrence at %s", m.UID, model.FormatTime(slot))
	}

	before := sr.cloneSeries()
	ov := sr.override(slot)
	if ov == nil {
		ov = &record{UID: m.UID, RecurrenceID: slot.In(model.LocalZone())}
		sr.overrides = append(sr.overrides, ov)
	}
	ov.applyDraft(ev)
	ov.LastModified = s.now().UTC()

	if err := s.write(f); err != nil {
		sr.restore(before)
		return nil, failed("write %s: %v", f.path, err)
	}
	appLog.Info("ics occurrence saved", "uid", m.UID, "slot", slot)
	return sr.occurrenceAt(f.cal, slot), nil
}

func (s *Store) saveFuture(f *calendarFile, sr *series, ev *provider.Event) (*provider.Event, error) {
	m := sr.master
	if m.Recurrence == nil {
		return s.saveSeries(f, sr, ev)
	}
	slot := ev.OccurrenceDate
	if slot.IsZero() {
		return nil, failed("occurrence date is required to fork a series")
	}
	if !sr.isSlot(slot) {
		return nil, failed("event %s has no occurrence at %s", m.UID, model.FormatTime(slot))
	}
	n, err := m.Recurrence.SlotsBefore(m.Start, slot)
	if err != nil {
		return nil, failed("count slots: %v", err)
	}
	if n == 0 {
		return s.saveSeries(f, sr, ev)
	}

	cont := &record{UID: s.newUID(), LastModified: s.now().UTC()}
	cont.applyDraft(ev)
	cont.Recurrence = ev.Recurrence.Clone()
	next := &series{master: cont}
	if cont.Recurrence != nil {
		delta := cont.Start.Sub(slot)
		for _, ex := range m.ExDates {
			if !ex.Before(slot) {
				cont.ExDates = append(cont.ExDates, ex.Add(delta))
			}
		}
		for _, ov := range sr.overrides {
			if ov.RecurrenceID.After(slot) {
				c := ov.clone()
				c.UID = cont.UID
				c.RecurrenceID = ov.RecurrenceID.Add(delta)
				next.overrides = append(next.overrides, c)
			}
		}
		next.prune()
	}

	target := f
	if ev.Calendar != nil && ev.Calendar.ID != f.cal.ID {
		t, err := s.fileFor(ev.Calendar)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrProviderOperationFailed, err)
		}
		if t.cal.ReadOnly {
			return nil, failed("calendar %q is read-only", t.cal.Title)
		}
		target = t
	}

	before := sr.cloneSeries()
	sr.truncate(slot, n, s.now().UTC())
	target.series = append(target.series, next)

	if err := s.write(target); err != nil {
		target.series = removeSeries(target.series, next)
		sr.restore(before)
		return nil, failed("write %s: %v", target.path, err)
	}
	if target != f {
		if err := s.write(f); err != nil {
			target.series = removeSeries(target.series, next)
			sr.restore(before)
			s.rewrite(target)
			return nil, failed("write %s: %v", f.path, err)
		}
	}

	appLog.Info("ics series forked", "uid", m.UID, "continuation", cont.UID, "slot", slot, "slots_before", n)
	return cont.snapshot(target.cal, cont.Start, cont.End), nil
}

// Remove deletes the scoped part of a series. Non-recurring events are
// always removed whole.
func (s *Store) Remove(ctx context.Context, ev *provider.Event, scope provider.Scope) error {
	if ev == nil {
		return failed("nil event")
	}
	if err := ctx.Err(); err != nil {
		return failed("%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, sr, err := s.lookup(ev.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrProviderOperationFailed, err)
	}
	if f.cal.ReadOnly {
		return failed("calendar %q is read-only", f.cal.Title)
	}

	m := sr.master
	before := sr.cloneSeries()
	removeAll := scope == provider.WholeSeries || m.Recurrence == nil

	if !removeAll {
		slot := ev.OccurrenceDate
		if slot.IsZero() {
			return failed("occurrence date is required to remove part of a series")
		}
		if !sr.isSlot(slot) {
			return failed("event %s has no occurrence at %s", m.UID, model.FormatTime(slot))
		}
		switch scope {
		case provider.ThisOccurrence:
			m.ExDates = append(m.ExDates, slot.In(model.LocalZone()))
			sr.dropOverride(slot)
			m.LastModified = s.now().UTC()
		case provider.ThisAndFuture:
			n, err := m.Recurrence.SlotsBefore(m.Start, slot)
			if err != nil {
				return failed("count slots: %v", err)
			}
			if n == 0 {
				removeAll = true
			} else {
				sr.truncate(slot, n, s.now().UTC())
			}
		default:
			return failed("unknown scope %d", scope)
		}
	}

	if removeAll {
		f.series = removeSeries(f.series, sr)
	}
	if err := s.write(f); err != nil {
		if removeAll {
			f.series = append(f.series, sr)
		}
		sr.restore(before)
		return failed("write %s: %v", f.path, err)
	}

	appLog.Info("ics event removed", "uid", m.UID, "scope", scope, "whole", removeAll)
	return nil
}

// rewrite saves a file after an in-memory rollback. A failure is only
// logged; the caller is already reporting the original error.
func (s *Store) rewrite(f *calendarFile) {
	if err := s.write(f); err != nil {
		appLog.Error("ics rollback write failed", err, "path", f.path)
	}
}

// truncate ends the series before slot. n is the number of slots before it.
func (sr *series) truncate(slot time.Time, n int, now time.Time) {
	m := sr.master
	if m.Recurrence.End != nil && m.Recurrence.End.OccurrenceCount > 0 {
		m.Recurrence.End = &provider.RecurrenceEnd{OccurrenceCount: n}
	} else {
		m.Recurrence.End = &provider.RecurrenceEnd{EndDate: slot.Add(-time.Second)}
	}
	kept := m.ExDates[:0]
	for _, ex := range m.ExDates {
		if ex.Before(slot) {
			kept = append(kept, ex)
		}
	}
	m.ExDates = kept
	overrides := sr.overrides[:0]
	for _, ov := range sr.overrides {
		if ov.RecurrenceID.Before(slot) {
			overrides = append(overrides, ov)
		}
	}
	sr.overrides = overrides
	m.LastModified = now
}

// prune drops EXDATEs and overrides that no longer fall on a slot.
func (sr *series) prune() {
	m := sr.master
	if m.Recurrence == nil {
		m.ExDates = nil
		sr.overrides = nil
		return
	}
	rr, err := m.Recurrence.RRule(m.Start)
	if err != nil {
		return
	}
	onRule := func(t time.Time) bool {
		return onSlot(rr, t)
	}

	var ex []time.Time
	for _, t := range m.ExDates {
		if onRule(t) {
			ex = append(ex, t)
		}
	}
	m.ExDates = ex

	var overrides []*record
	for _, ov := range sr.overrides {
		if onRule(ov.RecurrenceID) && !m.excluded(ov.RecurrenceID) {
			overrides = append(overrides, ov)
		}
	}
	sr.overrides = overrides
}

func onSlot(rr *rrule.RRule, t time.Time) bool {
	for _, got := range rr.Between(t, t, true) {
		if got.Equal(t) {
			return true
		}
	}
	return false
}

// cloneSeries snapshots the series so a failed write can be rolled back.
func (sr *series) cloneSeries() *series {
	c := &series{master: sr.master.clone()}
	for _, ov := range sr.overrides {
		c.overrides = append(c.overrides, ov.clone())
	}
	return c
}

func (sr *series) restore(from *series) {
	*sr.master = *from.master
	sr.overrides = from.overrides
}

func removeSeries(list []*series, target *series) []*series {
	out := list[:0]
	for _, sr := range list {
		if sr != target {
			out = append(out, sr)
		}
	}
	return out
}
