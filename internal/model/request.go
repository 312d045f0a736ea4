package model

import (
	"fmt"
	"strings"
	"time"
)

// CreateEventRequest carries the settable fields of a new event.
type CreateEventRequest struct {
	Title          string
	Start          time.Time
	End            time.Time
	CalendarName   string
	Location       string
	Notes          string
	AlarmOffsets   []int
	URL            string
	AllDay         bool
	RecurrenceRule *RecurrenceRule
}

func (r *CreateEventRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end_time is before start_time", ErrValidation)
	}
	return r.RecurrenceRule.Validate()
}

// RecurrencePatch distinguishes "leave the recurrence alone" (Set false)
// from "clear it" (Set true, Rule nil) and "replace it".
type RecurrencePatch struct {
	Set  bool
	Rule *RecurrenceRule
}

func KeepRecurrence() RecurrencePatch { return RecurrencePatch{} }

func ClearRecurrence() RecurrencePatch { return RecurrencePatch{Set: true} }

func ReplaceRecurrence(r *RecurrenceRule) RecurrencePatch {
	return RecurrencePatch{Set: true, Rule: r}
}

// UpdateEventRequest is a sparse patch: nil fields leave the existing value
// untouched. A non-nil empty AlarmOffsets removes every alarm.
type UpdateEventRequest struct {
	Title          *string
	Start          *time.Time
	End            *time.Time
	CalendarName   *string
	Location       *string
	Notes          *string
	AlarmOffsets   []int
	URL            *string
	AllDay         *bool
	RecurrenceRule RecurrencePatch
}

func (r *UpdateEventRequest) Validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return fmt.Errorf("%w: end_time is before start_time", ErrValidation)
	}
	return r.RecurrenceRule.Rule.Validate()
}

func (r *UpdateEventRequest) Empty() bool {
	return r.Title == nil && r.Start == nil && r.End == nil && r.CalendarName == nil &&
		r.Location == nil && r.Notes == nil && r.AlarmOffsets == nil && r.URL == nil &&
		r.AllDay == nil && !r.RecurrenceRule.Set
}
