// Package provider defines the narrow capability set the calendar core needs
// from a native calendar store, and the native record shapes exchanged with it.
package provider

import (
	"context"
	"time"
)

// Scope selects which part of a recurring series a save or remove touches.
type Scope int

const (
	// WholeSeries applies to every occurrence, or to the single event of a
	// non-recurring series.
	WholeSeries Scope = iota
	// ThisOccurrence detaches one occurrence as an exception.
	ThisOccurrence
	// ThisAndFuture forks the series at the occurrence.
	ThisAndFuture
)

func (s Scope) String() string {
	switch s {
	case WholeSeries:
		return "WHOLE_SERIES"
	case ThisOccurrence:
		return "THIS_OCCURRENCE_ONLY"
	case ThisAndFuture:
		return "THIS_AND_FUTURE"
	default:
		return "UNKNOWN"
	}
}

// Calendar is a handle to one native calendar.
type Calendar struct {
	ID       string
	Title    string
	ReadOnly bool
}

// Alarm stores its trigger the native way: seconds relative to the start,
// negative before it.
type Alarm struct {
	RelativeOffset float64
}

// Event is a native event record. Drafts passed to Save use the same shape.
type Event struct {
	ID       string
	Calendar *Calendar

	Title    string
	Start    time.Time
	End      time.Time
	AllDay   bool
	Location string
	Notes    string
	URL      string
	Alarms   []Alarm

	Recurrence *Recurrence

	Availability int
	Status       int
	Organizer    string
	Attendees    []string
	LastModified time.Time

	// OccurrenceDate is the unmodified series slot of an expanded
	// occurrence. It is zero for masters and new drafts.
	OccurrenceDate time.Time
	Detached       bool
}

// Clone returns a deep copy suitable for use as a draft.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Alarms = append([]Alarm(nil), e.Alarms...)
	c.Attendees = append([]string(nil), e.Attendees...)
	c.Recurrence = e.Recurrence.Clone()
	return &c
}

// Provider is implemented once per native calendar binding. Lookups report
// model.ErrNotFound; rejected saves and removes report
// model.ErrProviderOperationFailed.
type Provider interface {
	// RequestPermission reports whether the user granted calendar access.
	RequestPermission(ctx context.Context) (bool, error)

	Calendars(ctx context.Context) ([]*Calendar, error)
	CalendarByName(ctx context.Context, name string) (*Calendar, error)
	DefaultCalendar(ctx context.Context) (*Calendar, error)

	// Events returns expanded occurrences overlapping [from, to]. A nil
	// calendar means every calendar.
	Events(ctx context.Context, from, to time.Time, cal *Calendar) ([]*Event, error)
	// Event returns the master record for id.
	Event(ctx context.Context, id string) (*Event, error)
	// Occurrences expands the series id over [from, to].
	Occurrences(ctx context.Context, id string, from, to time.Time) ([]*Event, error)

	// Save persists a draft. For ThisOccurrence and ThisAndFuture the draft
	// must be a resolved occurrence (OccurrenceDate set).
	Save(ctx context.Context, ev *Event, scope Scope) (*Event, error)
	Remove(ctx context.Context, ev *Event, scope Scope) error
}
