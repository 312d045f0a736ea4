// Package codec converts between the provider-independent model and the
// native provider records. It performs no I/O.
package codec

import (
	"fmt"

	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// RecurrenceToProvider maps a rule onto the native shape. Frequency and
// weekday ordinals carry over unchanged; every weekday applies to any week.
func RecurrenceToProvider(rule *model.RecurrenceRule) *provider.Recurrence {
	if rule == nil {
		return nil
	}
	out := &provider.Recurrence{
		Frequency: int(rule.Frequency),
		Interval:  rule.Interval,
	}
	for _, d := range rule.DaysOfWeek {
		out.DaysOfWeek = append(out.DaysOfWeek, provider.DayOfWeek{Day: int(d), WeekNumber: 0})
	}
	switch {
	case rule.EndDate != nil:
		out.End = &provider.RecurrenceEnd{EndDate: *rule.EndDate}
	case rule.OccurrenceCount != nil:
		out.End = &provider.RecurrenceEnd{OccurrenceCount: *rule.OccurrenceCount}
	}
	return out
}

// RecurrenceFromProvider is the inverse of RecurrenceToProvider. An
// occurrence count wins over an end date so the result never carries both.
func RecurrenceFromProvider(native *provider.Recurrence) (*model.RecurrenceRule, error) {
	if native == nil {
		return nil, nil
	}
	rule := &model.RecurrenceRule{
		Frequency: model.Frequency(native.Frequency),
		Interval:  max(native.Interval, 1),
	}
	for _, d := range native.DaysOfWeek {
		rule.DaysOfWeek = append(rule.DaysOfWeek, model.Weekday(d.Day))
	}
	if end := native.End; end != nil {
		if end.OccurrenceCount > 0 {
			n := end.OccurrenceCount
			rule.OccurrenceCount = &n
		} else if !end.EndDate.IsZero() {
			t := end.EndDate
			rule.EndDate = &t
		}
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("native recurrence: %w", err)
	}
	return rule, nil
}
