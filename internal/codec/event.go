package codec

import (
	"fmt"

	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// EventFromProvider builds a full snapshot, read-only metadata included.
// Native alarms hold negative seconds before the start; the model keeps
// positive minutes.
func EventFromProvider(native *provider.Event) (*model.Event, error) {
	rule, err := RecurrenceFromProvider(native.Recurrence)
	if err != nil {
		return nil, err
	}
	ev := &model.Event{
		ID:             native.ID,
		Title:          native.Title,
		Start:          native.Start,
		End:            native.End,
		AllDay:         native.AllDay,
		Location:       native.Location,
		Notes:          native.Notes,
		URL:            native.URL,
		RecurrenceRule: rule,
		Availability:   native.Availability,
		Status:         native.Status,
		Organizer:      native.Organizer,
		Attendees:      append([]string(nil), native.Attendees...),
		OccurrenceDate: native.OccurrenceDate,
		Detached:       native.Detached,
	}
	if native.Calendar != nil {
		ev.CalendarName = native.Calendar.Title
	}
	for _, a := range native.Alarms {
		ev.AlarmOffsets = append(ev.AlarmOffsets, AlarmMinutes(a))
	}
	if !native.LastModified.IsZero() {
		t := native.LastModified
		ev.LastModified = &t
	}
	return ev, nil
}

func AlarmMinutes(a provider.Alarm) int {
	return int(-a.RelativeOffset / 60)
}

func AlarmFromMinutes(minutes int) provider.Alarm {
	return provider.Alarm{RelativeOffset: float64(-minutes * 60)}
}

func alarms(minutes []int) []provider.Alarm {
	if len(minutes) == 0 {
		return nil
	}
	out := make([]provider.Alarm, len(minutes))
	for i, m := range minutes {
		out[i] = AlarmFromMinutes(m)
	}
	return out
}

// CreatePayload turns a create request into a draft for cal.
func CreatePayload(req *model.CreateEventRequest, cal *provider.Calendar) (*provider.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &provider.Event{
		Calendar:   cal,
		Title:      req.Title,
		Start:      req.Start,
		End:        req.End,
		AllDay:     req.AllDay,
		Location:   req.Location,
		Notes:      req.Notes,
		URL:        req.URL,
		Alarms:     alarms(req.AlarmOffsets),
		Recurrence: RecurrenceToProvider(req.RecurrenceRule),
	}, nil
}

// UpdatePayload applies the fields present in req to a copy of existing.
// cal is only consulted when the request moves the event to another
// calendar. existing is never modified.
func UpdatePayload(req *model.UpdateEventRequest, existing *provider.Event, cal *provider.Calendar) (*provider.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	draft := existing.Clone()
	if req.Title != nil {
		draft.Title = *req.Title
	}
	if req.Start != nil {
		// Moving only the start keeps the duration.
		if req.End == nil {
			draft.End = req.Start.Add(existing.End.Sub(existing.Start))
		}
		draft.Start = *req.Start
	}
	if req.End != nil {
		draft.End = *req.End
	}
	if req.CalendarName != nil && cal != nil {
		draft.Calendar = cal
	}
	if req.Location != nil {
		draft.Location = *req.Location
	}
	if req.Notes != nil {
		draft.Notes = *req.Notes
	}
	if req.URL != nil {
		draft.URL = *req.URL
	}
	if req.AllDay != nil {
		draft.AllDay = *req.AllDay
	}
	if req.AlarmOffsets != nil {
		draft.Alarms = alarms(req.AlarmOffsets)
	}
	if req.RecurrenceRule.Set {
		draft.Recurrence = RecurrenceToProvider(req.RecurrenceRule.Rule)
	}
	if draft.End.Before(draft.Start) {
		return nil, fmt.Errorf("%w: end_time %s is before start_time %s",
			model.ErrValidation, model.FormatTime(draft.End), model.FormatTime(draft.Start))
	}
	return draft, nil
}
