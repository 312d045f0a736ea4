package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frequency values match the provider's native ordinals.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Yearly
)

var frequencyNames = [...]string{"DAILY", "WEEKLY", "MONTHLY", "YEARLY"}

func (f Frequency) Valid() bool {
	return f >= Daily && f <= Yearly
}

func (f Frequency) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
	return frequencyNames[f]
}

// UnmarshalJSON accepts either the ordinal or the name ("weekly", "WEEKLY").
func (f *Frequency) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Frequency(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: frequency must be a number or a name", ErrValidation)
	}
	for i, name := range frequencyNames {
		if strings.EqualFold(name, s) {
			*f = Frequency(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown frequency %q", ErrValidation, s)
}

// Weekday is 1-based starting on Sunday, as the provider encodes it. Note
// this differs from both ISO numbering and time.Weekday.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

func (d Weekday) Valid() bool {
	return d >= Sunday && d <= Saturday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d-1]
}

// TimeWeekday converts to the standard library numbering (Sunday = 0).
func (d Weekday) TimeWeekday() int {
	return int(d) - 1
}

func (d *Weekday) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Weekday(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: weekday must be a number or a name", ErrValidation)
	}
	for i, name := range weekdayNames {
		if strings.EqualFold(name, s) || strings.EqualFold(name[:3], s) {
			*d = Weekday(i + 1)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown weekday %q", ErrValidation, s)
}
