// Package tools exposes the calendar operations as named tools that take JSON
// arguments and always answer with a human-readable string.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"icalmcp/internal/calendar"
	"icalmcp/internal/journal"
	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/series"
)

// Factory builds the manager. It is called on the first tool call and again
// after every failed attempt.
type Factory func(ctx context.Context) (*calendar.Manager, error)

// Recorder receives one entry per tool call.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Tool describes a callable tool. InputSchema is a JSON Schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Resource describes a readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

const CalendarsResource = "calendars://list"

func object(required []string, props map[string]any) map[string]any {
	o := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

const dateDesc = "ISO 8601 local time, e.g. 2025-11-23T14:00:00"

var recurrenceSchema = map[string]any{
	"type":        []string{"object", "null"},
	"description": "Recurrence rule; null removes it on update",
	"properties": map[string]any{
		"frequency":        map[string]any{"type": "string", "enum": []string{"DAILY", "WEEKLY", "MONTHLY", "YEARLY"}},
		"interval":         prop("integer", "Repeat every n periods, default 1"),
		"end_date":         prop("string", dateDesc),
		"occurrence_count": prop("integer", "Number of occurrences"),
		"days_of_week":     map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1, "maximum": 7}, "description": "1 is Sunday"},
	},
	"required": []string{"frequency"},
}

func eventFields(required []string) map[string]any {
	return object(required, map[string]any{
		"title":                  prop("string", "Event title"),
		"start_time":             prop("string", dateDesc),
		"end_time":               prop("string", dateDesc),
		"calendar_name":          prop("string", "Target calendar; default calendar when omitted"),
		"location":               prop("string", "Location"),
		"notes":                  prop("string", "Notes"),
		"alarms_minutes_offsets": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "description": "Minutes before start"},
		"url":                    prop("string", "URL"),
		"all_day":                prop("boolean", "All-day event"),
		"recurrence_rule":        recurrenceSchema,
	})
}

var toolList = []Tool{
	{"list_calendars", "List all available calendars.", object(nil, map[string]any{})},
	{"list_events", "List calendar events in a date range.", object([]string{"start_date", "end_date"}, map[string]any{
		"start_date":    prop("string", dateDesc),
		"end_date":      prop("string", dateDesc),
		"calendar_name": prop("string", "Only events of this calendar"),
	})},
	{"create_event", "Create a new calendar event, optionally recurring.", object([]string{"create_event_request"}, map[string]any{
		"create_event_request": eventFields([]string{"title", "start_time", "end_time"}),
	})},
	{"update_event", "Update an event, one occurrence (occurrence_date) or an occurrence and all future ones (occurrence_date with update_future_events).", object([]string{"event_id", "update_event_request"}, map[string]any{
		"event_id":             prop("string", "Event identifier"),
		"update_event_request": eventFields(nil),
		"update_future_events": prop("boolean", "Also update later occurrences"),
		"occurrence_date":      prop("string", "Start of the addressed occurrence, "+dateDesc),
	})},
	{"delete_event", "Delete an event, one occurrence (occurrence_date) or an occurrence and all future ones (occurrence_date with delete_entire_series).", object([]string{"event_id"}, map[string]any{
		"event_id":             prop("string", "Event identifier"),
		"delete_entire_series": prop("boolean", "Also delete later occurrences"),
		"occurrence_date":      prop("string", "Start of the addressed occurrence, "+dateDesc),
	})},
}

var resourceList = []Resource{
	{CalendarsResource, "calendars", "List all available calendars that can be used with calendar operations."},
}

func Tools() []Tool { return append([]Tool(nil), toolList...) }

func Resources() []Resource { return append([]Resource(nil), resourceList...) }

// Service runs one tool call at a time against a lazily built manager.
type Service struct {
	mu      sync.Mutex
	factory Factory
	mgr     *calendar.Manager
	rec     Recorder
}

func NewService(factory Factory) *Service {
	return &Service{factory: factory}
}

// SetRecorder enables journaling of tool calls.
func (s *Service) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = r
}

func (s *Service) manager(ctx context.Context) (*calendar.Manager, error) {
	if s.mgr != nil {
		return s.mgr, nil
	}
	m, err := s.factory(ctx)
	if err != nil {
		appLog.Warn("calendar manager unavailable", "err", err)
		return nil, err
	}
	s.mgr = m
	return m, nil
}

// result is what a tool handler reports back to Call.
type result struct {
	text    string
	eventID string
	scope   string
	failed  bool
}

func ok(text string) result { return result{text: text} }

func fail(text string) result { return result{text: text, failed: true} }

type handler func(s *Service, ctx context.Context, args json.RawMessage) result

var handlers = map[string]handler{
	"list_calendars": (*Service).listCalendars,
	"list_events":    (*Service).listEvents,
	"create_event":   (*Service).createEvent,
	"update_event":   (*Service).updateEvent,
	"delete_event":   (*Service).deleteEvent,
}

// Call runs the named tool. It never returns an error; failures are part of
// the returned text.
func (s *Service) Call(ctx context.Context, name string, args json.RawMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, found := handlers[name]
	if !found {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	started := time.Now()
	res := h(s, ctx, args)
	appLog.Debug("tool finished", "tool", name, "failed", res.failed, "elapsed", time.Since(started))
	s.record(ctx, name, res)
	return res.text
}

// ReadResource returns the text of uri and false when uri is unknown.
func (s *Service) ReadResource(ctx context.Context, uri string) (string, bool) {
	if uri != CalendarsResource {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.manager(ctx)
	if err != nil {
		return errorText(err), true
	}
	names, err := m.CalendarNames(ctx)
	if err != nil {
		return "Error listing calendars: " + errorText(err), true
	}
	return calendarsText(names), true
}

func (s *Service) record(ctx context.Context, tool string, res result) {
	if s.rec == nil {
		return
	}
	outcome := journal.OutcomeOK
	msg := ""
	if res.failed {
		outcome = journal.OutcomeFailed
		msg = res.text
	}
	err := s.rec.Record(ctx, journal.Entry{
		Tool:    tool,
		EventID: res.eventID,
		Scope:   res.scope,
		Outcome: outcome,
		Message: msg,
	})
	if err != nil {
		appLog.Error("journal write failed", err, "tool", tool)
	}
}

func calendarsText(names []string) string {
	if len(names) == 0 {
		return "No calendars found"
	}
	var b strings.Builder
	b.WriteString("Available calendars:")
	for _, n := range names {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	return b.String()
}

func (s *Service) listCalendars(ctx context.Context, _ json.RawMessage) result {
	appLog.Info("list_calendars")
	m, err := s.manager(ctx)
	if err != nil {
		return fail("Error listing calendars: " + errorText(err))
	}
	names, err := m.CalendarNames(ctx)
	if err != nil {
		return fail("Error listing calendars: " + errorText(err))
	}
	return ok(calendarsText(names))
}

func (s *Service) listEvents(ctx context.Context, raw json.RawMessage) result {
	var args listEventsArgs
	if err := decode(raw, &args); err != nil {
		return fail("Error listing events: " + errorText(err))
	}
	if args.StartDate == nil || args.EndDate == nil {
		return fail("Error listing events: " + errorText(fmt.Errorf("%w: start_date and end_date are required", model.ErrValidation)))
	}
	appLog.Info("list_events", "start_date", args.StartDate.Time, "end_date", args.EndDate.Time, "calendar_name", args.CalendarName)

	m, err := s.manager(ctx)
	if err != nil {
		return fail("Error listing events: " + errorText(err))
	}
	events, err := m.ListEvents(ctx, args.StartDate.Time, args.EndDate.Time, args.CalendarName)
	if err != nil {
		return fail("Error listing events: " + errorText(err))
	}
	if len(events) == 0 {
		return ok("No events found in the specified date range")
	}
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.String())
	}
	return ok(b.String())
}

func (s *Service) createEvent(ctx context.Context, raw json.RawMessage) result {
	inner, err := unwrap(raw, "create_event_request")
	if err != nil {
		return fail("Error creating event: " + errorText(err))
	}
	var cr createRequest
	if err := decode(inner, &cr); err != nil {
		return fail("Error creating event: " + errorText(err))
	}
	req := cr.toModel()
	appLog.Info("create_event", "title", req.Title, "start", req.Start, "end", req.End,
		"calendar_name", req.CalendarName, "recurrence", req.RecurrenceRule)

	m, err := s.manager(ctx)
	if err != nil {
		return fail("Error creating event: " + errorText(err))
	}
	ev, err := m.CreateEvent(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fail("Failed to create event. " + errorText(err))
		}
		return fail("Error creating event: " + errorText(err))
	}
	res := ok(fmt.Sprintf("Successfully created event: %s (ID: %s)", ev.Title, ev.ID))
	res.eventID = ev.ID
	return res
}

func (s *Service) updateEvent(ctx context.Context, raw json.RawMessage) result {
	var args updateArgs
	if err := decode(raw, &args); err != nil {
		return fail("Error updating event: " + errorText(err))
	}
	inner, err := unwrap(raw, "update_event_request")
	if err != nil {
		return fail("Error updating event: " + errorText(err))
	}
	var ur updateRequest
	if err := decode(inner, &ur); err != nil {
		return fail("Error updating event: " + errorText(err))
	}
	occ := args.OccurrenceDate.ptr()
	scope := series.SelectScope(occ, args.UpdateFutureEvents)
	appLog.Info("update_event", "id", args.EventID, "update_future_events", args.UpdateFutureEvents,
		"occurrence_date", occ, "scope", scope)

	base := result{eventID: args.EventID, scope: scope.String()}
	if args.EventID == "" {
		base.text, base.failed = "Error updating event: "+errorText(fmt.Errorf("%w: event_id is required", model.ErrValidation)), true
		return base
	}
	req, err := ur.toModel()
	if err != nil {
		base.text, base.failed = "Error updating event: "+errorText(err), true
		return base
	}

	m, err := s.manager(ctx)
	if err != nil {
		base.text, base.failed = "Error updating event: "+errorText(err), true
		return base
	}
	ev, err := m.UpdateEvent(ctx, args.EventID, req, args.UpdateFutureEvents, occ)
	switch {
	case errors.Is(err, model.ErrNotFound):
		base.text, base.failed = fmt.Sprintf("Failed to update event. Event with ID %s not found or update failed: %s", args.EventID, errorText(err)), true
		return base
	case err != nil:
		base.text, base.failed = "Error updating event: "+errorText(err), true
		return base
	}

	what := "event"
	if occ != nil {
		what = "occurrence at " + model.FormatTime(*occ)
		if args.UpdateFutureEvents {
			what += " and all future occurrences"
		}
	}
	base.text = fmt.Sprintf("Successfully updated %s: %s", what, ev.Title)
	return base
}

func (s *Service) deleteEvent(ctx context.Context, raw json.RawMessage) result {
	var args deleteArgs
	if err := decode(raw, &args); err != nil {
		return fail("Error deleting event: " + errorText(err))
	}
	occ := args.OccurrenceDate.ptr()
	scope := series.SelectScope(occ, args.DeleteEntireSeries)
	appLog.Info("delete_event", "id", args.EventID, "delete_entire_series", args.DeleteEntireSeries,
		"occurrence_date", occ, "scope", scope)

	base := result{eventID: args.EventID, scope: scope.String()}
	if args.EventID == "" {
		base.text, base.failed = "Error deleting event: "+errorText(fmt.Errorf("%w: event_id is required", model.ErrValidation)), true
		return base
	}

	m, err := s.manager(ctx)
	if err != nil {
		base.text, base.failed = "Error deleting event: "+errorText(err), true
		return base
	}
	err = m.DeleteEvent(ctx, args.EventID, args.DeleteEntireSeries, occ)
	switch {
	case errors.Is(err, model.ErrNotFound):
		base.text, base.failed = fmt.Sprintf("Failed to delete event with ID %s: %s", args.EventID, errorText(err)), true
	case err != nil:
		base.text, base.failed = "Error deleting event: "+errorText(err), true
	default:
		base.text = "Event deleted successfully"
	}
	return base
}
