package model

import (
	"fmt"
	"strings"
	"time"
)

// Event is a provider-independent snapshot. For recurring events ID names
// the master series; a single occurrence is identified by (ID, Start).
type Event struct {
	ID           string
	Title        string
	Start        time.Time
	End          time.Time
	AllDay       bool
	CalendarName string
	Location     string
	Notes        string
	URL          string
	// AlarmOffsets are minutes before Start; zero or negative fire at or
	// after the start.
	AlarmOffsets   []int
	RecurrenceRule *RecurrenceRule

	// Read-only, populated from provider snapshots only.
	Availability int
	Status       int
	Organizer    string
	Attendees    []string
	LastModified *time.Time

	// OccurrenceDate is the series slot this occurrence was generated for;
	// it differs from Start when the occurrence was moved.
	OccurrenceDate time.Time
	// Detached marks an exception that overrides its series slot.
	Detached bool
}

func (e *Event) Recurring() bool {
	return e.RecurrenceRule != nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// String renders the event in the multi-line form shown to tool callers.
func (e *Event) String() string {
	alarms := "None"
	if len(e.AlarmOffsets) > 0 {
		parts := make([]string, len(e.AlarmOffsets))
		for i, m := range e.AlarmOffsets {
			parts[i] = fmt.Sprint(m)
		}
		alarms = strings.Join(parts, ", ")
	}
	attendees := "None"
	if len(e.Attendees) > 0 {
		attendees = strings.Join(e.Attendees, ", ")
	}
	status := "N/A"
	if e.Status != 0 {
		status = fmt.Sprint(e.Status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s,\n", e.Title)
	fmt.Fprintf(&b, " - Identifier: %s,\n", e.ID)
	fmt.Fprintf(&b, " - Start Time: %s,\n", FormatTime(e.Start))
	fmt.Fprintf(&b, " - End Time: %s,\n", FormatTime(e.End))
	fmt.Fprintf(&b, " - Calendar: %s,\n", orNA(e.CalendarName))
	fmt.Fprintf(&b, " - Location: %s,\n", orNA(e.Location))
	fmt.Fprintf(&b, " - Notes: %s,\n", orNA(e.Notes))
	fmt.Fprintf(&b, " - Alarms (minutes before): %s,\n", alarms)
	fmt.Fprintf(&b, " - URL: %s,\n", orNA(e.URL))
	fmt.Fprintf(&b, " - All Day Event?: %t,\n", e.AllDay)
	fmt.Fprintf(&b, " - Status: %s,\n", status)
	fmt.Fprintf(&b, " - Organizer: %s,\n", orNA(e.Organizer))
	fmt.Fprintf(&b, " - Attendees: %s,\n", attendees)
	if e.Detached {
		fmt.Fprintf(&b, " - Modified occurrence of: %s,\n", FormatTime(e.OccurrenceDate))
	}
	fmt.Fprintf(&b, " - %s\n", e.RecurrenceRule)
	return b.String()
}
