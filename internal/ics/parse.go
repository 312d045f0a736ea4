package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// parsed is the content of one ICS payload.
type parsed struct {
	Name    string
	Records []*record
}

// parseICS parses an ICS payload into records.
//
//   - Floating times and DATE values are read in model.LocalZone().
//   - TZID parameters are honoured; UTC values are moved into the local zone.
//   - A VEVENT that cannot be read is logged and skipped.
func parseICS(origin string, body []byte) (*parsed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &parsed{}, nil
	}

	// Feeds in the wild put properties between components.
	cal, err := ical.ParseCalendarWithOptions(bytes.NewReader(body), ical.WithUnknownPropertyHandler(ical.AcceptUnknownPropertyHandler))
	if err != nil {
		appLog.Error("ics parse failed", err, "origin", origin)
		return nil, err
	}

	out := &parsed{}
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == string(ical.PropertyXWRCalName) {
			out.Name = p.Value
		}
	}

	for _, ve := range cal.Events() {
		rec, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "origin", origin, "uid", ve.Id(), "err", perr)
			continue
		}
		out.Records = append(out.Records, rec)
	}

	appLog.Debug("ics parse completed", "origin", origin, "event_count", len(out.Records))
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (*record, error) {
	rec := &record{UID: ve.Id()}
	if rec.UID == "" {
		return nil, errors.New("missing UID")
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		rec.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		rec.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		rec.URL = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return nil, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(startProp.Value, startProp.ICalParameters)
	if err != nil {
		return nil, fmt.Errorf("DTSTART: %w", err)
	}
	rec.Start = start
	rec.AllDay = allDay

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, _, err := propTime(endProp.Value, endProp.ICalParameters)
		if err != nil {
			return nil, fmt.Errorf("DTEND: %w", err)
		}
		rec.End = end
	}
	if rec.End.IsZero() || rec.End.Before(rec.Start) {
		rec.End = rec.Start
		if allDay {
			rec.End = rec.Start.AddDate(0, 0, 1)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		r, err := provider.ParseRRULE(p.Value)
		if err != nil {
			return nil, fmt.Errorf("RRULE %q: %w", p.Value, err)
		}
		rec.Recurrence = r
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := propTime(part, p.ICalParameters); err == nil {
				rec.ExDates = append(rec.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		t, _, err := propTime(p.Value, p.ICalParameters)
		if err != nil {
			return nil, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		rec.RecurrenceID = t
	}

	for _, a := range ve.Alarms() {
		p := a.GetProperty(ical.ComponentPropertyTrigger)
		if p == nil {
			continue
		}
		d, err := parseDuration(p.Value)
		if err != nil {
			// Absolute triggers are not represented.
			continue
		}
		rec.Alarms = append(rec.Alarms, provider.Alarm{RelativeOffset: d.Seconds()})
	}

	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		rec.Status = statusFromICS(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, string(ical.TransparencyTransparent)) {
		rec.Availability = availabilityFree
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		rec.Organizer = personName(p)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		rec.Attendees = append(rec.Attendees, personName(p))
	}
	if t, err := ve.GetLastModifiedAt(); err == nil {
		rec.LastModified = t
	}

	return rec, nil
}

// propTime parses a DATE or DATE-TIME value. The bool reports a DATE value.
func propTime(v string, params map[string][]string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	loc := model.LocalZone()
	if tz, ok := params[string(ical.ParameterTzid)]; ok && len(tz) > 0 {
		l, err := time.LoadLocation(tz[0])
		if err != nil {
			return time.Time{}, false, err
		}
		loc = l
	}

	isDate := !strings.Contains(v, "T")
	if vs, ok := params[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		isDate = true
	}

	switch {
	case isDate:
		d := strings.TrimSuffix(v, "Z")
		if len(d) > 8 {
			d = d[:8]
		}
		t, err := time.ParseInLocation("20060102", d, model.LocalZone())
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	}
}

func statusFromICS(v string) int {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case string(ical.ObjectStatusConfirmed):
		return statusConfirmed
	case string(ical.ObjectStatusTentative):
		return statusTentative
	case string(ical.ObjectStatusCancelled):
		return statusCancelled
	default:
		return statusNone
	}
}

func personName(p *ical.IANAProperty) string {
	if cn, ok := p.ICalParameters[string(ical.ParameterCn)]; ok && len(cn) > 0 && cn[0] != "" {
		return cn[0]
	}
	v := p.Value
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}
