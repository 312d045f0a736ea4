package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// RecurrenceRule is the provider-independent recurrence definition. It
// supports frequency, interval, a weekday set and at most one end condition.
type RecurrenceRule struct {
	Frequency Frequency
	// Interval is "every N frequency units", at least 1.
	Interval int
	// EndDate and OccurrenceCount are mutually exclusive; both nil means the
	// series never ends.
	EndDate         *time.Time
	OccurrenceCount *int
	// DaysOfWeek only matters for weekly and monthly rules.
	DaysOfWeek []Weekday
}

type RuleOption func(*RecurrenceRule)

func Every(interval int) RuleOption {
	return func(r *RecurrenceRule) { r.Interval = interval }
}

func OnDays(days ...Weekday) RuleOption {
	return func(r *RecurrenceRule) { r.DaysOfWeek = days }
}

func Until(t time.Time) RuleOption {
	return func(r *RecurrenceRule) { r.EndDate = &t }
}

func Count(n int) RuleOption {
	return func(r *RecurrenceRule) { r.OccurrenceCount = &n }
}

// NewRecurrenceRule builds a validated rule. Interval defaults to 1.
func NewRecurrenceRule(freq Frequency, opts ...RuleOption) (*RecurrenceRule, error) {
	r := &RecurrenceRule{Frequency: freq, Interval: 1}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RecurrenceRule) Validate() error {
	if r == nil {
		return nil
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %d", ErrValidation, int(r.Frequency))
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrValidation, r.Interval)
	}
	if r.EndDate != nil && r.OccurrenceCount != nil {
		return fmt.Errorf("%w: only one of end_date or occurrence_count can be set", ErrValidation)
	}
	if r.OccurrenceCount != nil && *r.OccurrenceCount < 1 {
		return fmt.Errorf("%w: occurrence_count must be positive, got %d", ErrValidation, *r.OccurrenceCount)
	}
	for _, d := range r.DaysOfWeek {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown weekday %d", ErrValidation, int(d))
		}
	}
	return nil
}

// Equal compares rules by value, treating end dates as instants and the
// weekday list as a set.
func (r *RecurrenceRule) Equal(o *RecurrenceRule) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Frequency != o.Frequency || r.Interval != o.Interval {
		return false
	}
	switch {
	case (r.EndDate == nil) != (o.EndDate == nil):
		return false
	case r.EndDate != nil && !r.EndDate.Equal(*o.EndDate):
		return false
	case (r.OccurrenceCount == nil) != (o.OccurrenceCount == nil):
		return false
	case r.OccurrenceCount != nil && *r.OccurrenceCount != *o.OccurrenceCount:
		return false
	}
	a, b := slices.Clone(r.DaysOfWeek), slices.Clone(o.DaysOfWeek)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func (r *RecurrenceRule) String() string {
	if r == nil {
		return "No recurrence"
	}
	end := "N/A"
	if r.EndDate != nil {
		end = FormatTime(*r.EndDate)
	}
	count := "N/A"
	if r.OccurrenceCount != nil {
		count = fmt.Sprint(*r.OccurrenceCount)
	}
	s := fmt.Sprintf("Recurrence: %s, Interval: %d, End Date: %s, Occurrences: %s", r.Frequency, r.Interval, end, count)
	if len(r.DaysOfWeek) > 0 {
		names := make([]string, len(r.DaysOfWeek))
		for i, d := range r.DaysOfWeek {
			names[i] = d.String()
		}
		s += ", Days: " + strings.Join(names, ", ")
	}
	return s
}

type recurrenceJSON struct {
	Frequency       Frequency `json:"frequency"`
	Interval        *int      `json:"interval,omitempty"`
	EndDate         *string   `json:"end_date,omitempty"`
	OccurrenceCount *int      `json:"occurrence_count,omitempty"`
	DaysOfWeek      []Weekday `json:"days_of_week,omitempty"`
}

// UnmarshalJSON validates while decoding, so a rule with both end forms never
// exists in memory.
func (r *RecurrenceRule) UnmarshalJSON(data []byte) error {
	var raw recurrenceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: recurrence_rule: %v", ErrValidation, err)
	}
	out := RecurrenceRule{
		Frequency:       raw.Frequency,
		Interval:        1,
		OccurrenceCount: raw.OccurrenceCount,
		DaysOfWeek:      raw.DaysOfWeek,
	}
	if raw.Interval != nil {
		out.Interval = *raw.Interval
	}
	if raw.EndDate != nil {
		t, err := ParseTime(*raw.EndDate)
		if err != nil {
			return err
		}
		out.EndDate = &t
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*r = out
	return nil
}

func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	raw := recurrenceJSON{
		Frequency:       r.Frequency,
		Interval:        &r.Interval,
		OccurrenceCount: r.OccurrenceCount,
		DaysOfWeek:      r.DaysOfWeek,
	}
	if r.EndDate != nil {
		s := r.EndDate.Format(time.RFC3339)
		raw.EndDate = &s
	}
	return json.Marshal(raw)
}
