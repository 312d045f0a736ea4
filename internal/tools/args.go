package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"icalmcp/internal/model"
)

// flexTime accepts an ISO-8601 string, with or without offset, or epoch
// seconds.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	if v == nil {
		return nil
	}
	parsed, err := model.Normalize(v)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *flexTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid arguments: %w", model.ErrValidation, err)
	}
	return nil
}

// unwrap returns the nested object under key when present, otherwise the
// arguments themselves, so callers may send the request flat.
func unwrap(raw json.RawMessage, key string) (json.RawMessage, error) {
	var outer map[string]json.RawMessage
	if err := decode(raw, &outer); err != nil {
		return nil, err
	}
	if inner, ok := outer[key]; ok && !isNull(inner) {
		return inner, nil
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type listEventsArgs struct {
	StartDate    *flexTime `json:"start_date"`
	EndDate      *flexTime `json:"end_date"`
	CalendarName string    `json:"calendar_name"`
}

type createRequest struct {
	Title          string                `json:"title"`
	StartTime      *flexTime             `json:"start_time"`
	EndTime        *flexTime             `json:"end_time"`
	CalendarName   string                `json:"calendar_name"`
	Location       string                `json:"location"`
	Notes          string                `json:"notes"`
	AlarmOffsets   []int                 `json:"alarms_minutes_offsets"`
	Reminders      []int                 `json:"reminder_offsets"`
	URL            string                `json:"url"`
	AllDay         bool                  `json:"all_day"`
	RecurrenceRule *model.RecurrenceRule `json:"recurrence_rule"`
}

func (c *createRequest) toModel() *model.CreateEventRequest {
	req := &model.CreateEventRequest{
		Title:          c.Title,
		CalendarName:   c.CalendarName,
		Location:       c.Location,
		Notes:          c.Notes,
		AlarmOffsets:   c.AlarmOffsets,
		URL:            c.URL,
		AllDay:         c.AllDay,
		RecurrenceRule: c.RecurrenceRule,
	}
	if req.AlarmOffsets == nil {
		req.AlarmOffsets = c.Reminders
	}
	if c.StartTime != nil {
		req.Start = c.StartTime.Time
	}
	if c.EndTime != nil {
		req.End = c.EndTime.Time
	}
	return req
}

// updateRequest keeps recurrence_rule raw: absent leaves the rule alone,
// null clears it, an object replaces it.
type updateRequest struct {
	Title          *string         `json:"title"`
	StartTime      *flexTime       `json:"start_time"`
	EndTime        *flexTime       `json:"end_time"`
	CalendarName   *string         `json:"calendar_name"`
	Location       *string         `json:"location"`
	Notes          *string         `json:"notes"`
	AlarmOffsets   []int           `json:"alarms_minutes_offsets"`
	Reminders      []int           `json:"reminder_offsets"`
	URL            *string         `json:"url"`
	AllDay         *bool           `json:"all_day"`
	RecurrenceRule json.RawMessage `json:"recurrence_rule"`
}

func (u *updateRequest) toModel() (*model.UpdateEventRequest, error) {
	req := &model.UpdateEventRequest{
		Title:        u.Title,
		Start:        u.StartTime.ptr(),
		End:          u.EndTime.ptr(),
		CalendarName: u.CalendarName,
		Location:     u.Location,
		Notes:        u.Notes,
		AlarmOffsets: u.AlarmOffsets,
		URL:          u.URL,
		AllDay:       u.AllDay,
	}
	if req.AlarmOffsets == nil {
		req.AlarmOffsets = u.Reminders
	}
	switch {
	case u.RecurrenceRule == nil:
		req.RecurrenceRule = model.KeepRecurrence()
	case isNull(u.RecurrenceRule):
		req.RecurrenceRule = model.ClearRecurrence()
	default:
		var rule model.RecurrenceRule
		if err := json.Unmarshal(u.RecurrenceRule, &rule); err != nil {
			return nil, err
		}
		req.RecurrenceRule = model.ReplaceRecurrence(&rule)
	}
	return req, nil
}

type updateArgs struct {
	EventID            string    `json:"event_id"`
	UpdateFutureEvents bool      `json:"update_future_events"`
	OccurrenceDate     *flexTime `json:"occurrence_date"`
}

type deleteArgs struct {
	EventID            string    `json:"event_id"`
	DeleteEntireSeries bool      `json:"delete_entire_series"`
	OccurrenceDate     *flexTime `json:"occurrence_date"`
}
