package ics

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	productID     = "-//icalmcp//Calendar Store//EN"
	utcTimeLayout = "20060102T150405Z"
)

// encodeICS renders records as a VCALENDAR. DATE-TIME values are written in
// UTC; all-day events use DATE values.
func encodeICS(name string, records []*record, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, rec := range records {
		ve := cal.AddEvent(rec.UID)
		ve.SetDtStampTime(now)
		if !rec.LastModified.IsZero() {
			ve.SetModifiedAt(rec.LastModified)
		}

		if rec.AllDay {
			ve.SetAllDayStartAt(rec.Start)
			ve.SetAllDayEndAt(rec.End)
		} else {
			ve.SetStartAt(rec.Start)
			ve.SetEndAt(rec.End)
		}
		if rec.isOverride() {
			ve.SetProperty(ical.ComponentPropertyRecurrenceId, rec.RecurrenceID.UTC().Format(utcTimeLayout))
		}

		ve.SetSummary(rec.Summary)
		if rec.Description != "" {
			ve.SetDescription(rec.Description)
		}
		if rec.Location != "" {
			ve.SetLocation(rec.Location)
		}
		if rec.URL != "" {
			ve.SetURL(rec.URL)
		}

		if rec.Recurrence != nil {
			ve.AddRrule(rec.Recurrence.String())
		}
		for _, ex := range rec.ExDates {
			ve.AddExdate(ex.UTC().Format(utcTimeLayout))
		}

		switch rec.Status {
		case statusConfirmed:
			ve.SetStatus(ical.ObjectStatusConfirmed)
		case statusTentative:
			ve.SetStatus(ical.ObjectStatusTentative)
		case statusCancelled:
			ve.SetStatus(ical.ObjectStatusCancelled)
		}
		if rec.Availability == availabilityFree {
			ve.SetTimeTransparency(ical.TransparencyTransparent)
		} else {
			ve.SetTimeTransparency(ical.TransparencyOpaque)
		}
		if rec.Organizer != "" {
			ve.SetOrganizer(rec.Organizer, ical.WithCN(rec.Organizer))
		}
		for _, a := range rec.Attendees {
			ve.AddAttendee(a, ical.WithCN(a))
		}

		for _, a := range rec.Alarms {
			alarm := ve.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetDescription(rec.Summary)
			alarm.SetTrigger(formatDuration(time.Duration(a.RelativeOffset) * time.Second))
		}
	}

	return cal.Serialize()
}

// writeFileAtomic writes data via a temp file in the same directory and a
// rename, leaving the target untouched on failure.
func writeFileAtomic(path string, data []byte) error {
	if path == "" {
		return errors.New("ics path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icalmcp-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
