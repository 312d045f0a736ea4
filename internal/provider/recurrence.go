package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Native frequency ordinals.
const (
	FrequencyDaily   = 0
	FrequencyWeekly  = 1
	FrequencyMonthly = 2
	FrequencyYearly  = 3
)

// DayOfWeek is a native weekday entry: Day is 1 (Sunday) to 7 (Saturday),
// WeekNumber 0 means every week.
type DayOfWeek struct {
	Day        int
	WeekNumber int
}

// RecurrenceEnd holds exactly one of EndDate or OccurrenceCount.
type RecurrenceEnd struct {
	EndDate         time.Time
	OccurrenceCount int
}

// Recurrence is the native recurrence rule.
type Recurrence struct {
	Frequency  int
	Interval   int
	DaysOfWeek []DayOfWeek
	End        *RecurrenceEnd
}

func (r *Recurrence) Clone() *Recurrence {
	if r == nil {
		return nil
	}
	c := *r
	c.DaysOfWeek = append([]DayOfWeek(nil), r.DaysOfWeek...)
	if r.End != nil {
		end := *r.End
		c.End = &end
	}
	return &c
}

var toRRuleFreq = map[int]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
	FrequencyYearly:  rrule.YEARLY,
}

// Indexed by native day - 1.
var rruleDays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ROption converts the rule into rrule-go options anchored at dtstart.
func (r *Recurrence) ROption(dtstart time.Time) (rrule.ROption, error) {
	freq, ok := toRRuleFreq[r.Frequency]
	if !ok {
		return rrule.ROption{}, fmt.Errorf("unsupported frequency %d", r.Frequency)
	}
	opt := rrule.ROption{
		Freq:     freq,
		Interval: max(r.Interval, 1),
		Dtstart:  dtstart,
	}
	for _, d := range r.DaysOfWeek {
		if d.Day < 1 || d.Day > 7 {
			return rrule.ROption{}, fmt.Errorf("unsupported weekday %d", d.Day)
		}
		wd := rruleDays[d.Day-1]
		if d.WeekNumber != 0 {
			wd = wd.Nth(d.WeekNumber)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}
	if r.End != nil {
		if r.End.OccurrenceCount > 0 {
			opt.Count = r.End.OccurrenceCount
		} else if !r.End.EndDate.IsZero() {
			opt.Until = r.End.EndDate
		}
	}
	return opt, nil
}

func (r *Recurrence) RRule(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

// String returns the RRULE value without DTSTART, e.g.
// FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE.
func (r *Recurrence) String() string {
	opt, err := r.ROption(time.Time{})
	if err != nil {
		return ""
	}
	return opt.RRuleString()
}

// ParseRRULE reads an RRULE value back into a native rule. Parts outside the
// supported subset (BYSETPOS, BYMONTH, ...) are ignored.
func ParseRRULE(s string) (*Recurrence, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return nil, err
	}
	r := &Recurrence{Interval: max(opt.Interval, 1)}
	switch opt.Freq {
	case rrule.DAILY:
		r.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		r.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		r.Frequency = FrequencyMonthly
	case rrule.YEARLY:
		r.Frequency = FrequencyYearly
	default:
		return nil, fmt.Errorf("unsupported frequency %s", opt.Freq)
	}
	for _, wd := range opt.Byweekday {
		// rrule-go numbers Monday as 0.
		r.DaysOfWeek = append(r.DaysOfWeek, DayOfWeek{
			Day:        (wd.Day()+1)%7 + 1,
			WeekNumber: wd.N(),
		})
	}
	switch {
	case opt.Count > 0:
		r.End = &RecurrenceEnd{OccurrenceCount: opt.Count}
	case !opt.Until.IsZero():
		r.End = &RecurrenceEnd{EndDate: opt.Until}
	}
	return r, nil
}

// SlotsBefore counts series slots anchored at dtstart that start strictly
// before at. Excluded dates still count, as they do for COUNT.
func (r *Recurrence) SlotsBefore(dtstart, at time.Time) (int, error) {
	rr, err := r.RRule(dtstart)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range rr.Between(dtstart, at, true) {
		if t.Before(at) {
			n++
		}
	}
	return n, nil
}
