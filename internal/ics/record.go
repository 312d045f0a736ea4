package ics

import (
	"slices"
	"time"

	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// Availability values as stored in TRANSP.
const (
	availabilityBusy = 0
	availabilityFree = 1
)

// Status values as stored in STATUS.
const (
	statusNone      = 0
	statusConfirmed = 1
	statusTentative = 2
	statusCancelled = 3
)

// record is one VEVENT. Masters have a zero RecurrenceID; overrides share
// the master's UID and carry the series slot they replace.
type record struct {
	UID          string
	RecurrenceID time.Time

	Summary     string
	Description string
	Location    string
	URL         string

	Start  time.Time
	End    time.Time
	AllDay bool

	Recurrence *provider.Recurrence
	ExDates    []time.Time
	Alarms     []provider.Alarm

	Status       int
	Availability int
	Organizer    string
	Attendees    []string
	LastModified time.Time
}

func (r *record) isOverride() bool {
	return !r.RecurrenceID.IsZero()
}

func (r *record) clone() *record {
	c := *r
	c.Recurrence = r.Recurrence.Clone()
	c.ExDates = slices.Clone(r.ExDates)
	c.Alarms = slices.Clone(r.Alarms)
	c.Attendees = slices.Clone(r.Attendees)
	return &c
}

func (r *record) excluded(t time.Time) bool {
	for _, ex := range r.ExDates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// applyDraft copies the settable fields of a provider draft onto the record.
func (r *record) applyDraft(ev *provider.Event) {
	zone := model.LocalZone()
	r.Summary = ev.Title
	r.Description = ev.Notes
	r.Location = ev.Location
	r.URL = ev.URL
	r.Start = ev.Start.In(zone)
	r.End = ev.End.In(zone)
	r.AllDay = ev.AllDay
	if r.AllDay {
		r.Start = midnight(r.Start)
		r.End = midnight(r.End)
		if !r.End.After(r.Start) {
			r.End = r.Start.AddDate(0, 0, 1)
		}
	}
	r.Alarms = slices.Clone(ev.Alarms)
	r.Availability = ev.Availability
	r.Status = ev.Status
	r.Organizer = ev.Organizer
	r.Attendees = slices.Clone(ev.Attendees)
}

// snapshot renders the record as a provider event. Start and end are given
// explicitly so expanded occurrences can reuse the master's fields.
func (r *record) snapshot(cal *provider.Calendar, start, end time.Time) *provider.Event {
	zone := model.LocalZone()
	return &provider.Event{
		ID:           r.UID,
		Calendar:     cal,
		Title:        r.Summary,
		Start:        start.In(zone),
		End:          end.In(zone),
		AllDay:       r.AllDay,
		Location:     r.Location,
		Notes:        r.Description,
		URL:          r.URL,
		Alarms:       slices.Clone(r.Alarms),
		Recurrence:   r.Recurrence.Clone(),
		Availability: r.Availability,
		Status:       r.Status,
		Organizer:    r.Organizer,
		Attendees:    slices.Clone(r.Attendees),
		LastModified: r.LastModified,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
