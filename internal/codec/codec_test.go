package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

func ptr[T any](v T) *T { return &v }

func TestRecurrenceRoundTrip(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rules := []*model.RecurrenceRule{
		{Frequency: model.Daily, Interval: 1},
		{Frequency: model.Weekly, Interval: 2, DaysOfWeek: []model.Weekday{model.Monday, model.Wednesday}},
		{Frequency: model.Monthly, Interval: 1, EndDate: &end},
		{Frequency: model.Yearly, Interval: 4, OccurrenceCount: ptr(10)},
		{Frequency: model.Weekly, Interval: 1, DaysOfWeek: []model.Weekday{model.Sunday, model.Saturday}, OccurrenceCount: ptr(3)},
	}
	for _, r := range rules {
		t.Run(r.String(), func(t *testing.T) {
			native := RecurrenceToProvider(r)
			back, err := RecurrenceFromProvider(native)
			require.NoError(t, err)
			assert.Equal(t, r, back)
		})
	}
}

func TestBiweeklyScenario(t *testing.T) {
	rule, err := model.NewRecurrenceRule(model.Weekly, model.Every(2), model.OnDays(model.Monday, model.Wednesday))
	require.NoError(t, err)

	native := RecurrenceToProvider(rule)
	assert.Equal(t, provider.FrequencyWeekly, native.Frequency)
	assert.Equal(t, []provider.DayOfWeek{{Day: 2}, {Day: 4}}, native.DaysOfWeek)
	assert.Nil(t, native.End)

	back, err := RecurrenceFromProvider(native)
	require.NoError(t, err)
	assert.Equal(t, model.Weekly, back.Frequency)
	assert.Equal(t, 2, back.Interval)
	assert.Equal(t, []model.Weekday{model.Monday, model.Wednesday}, back.DaysOfWeek)
	assert.Nil(t, back.EndDate)
	assert.Nil(t, back.OccurrenceCount)
}

func TestRecurrenceFromProviderNeverSetsBothEnds(t *testing.T) {
	native := &provider.Recurrence{
		Frequency: provider.FrequencyDaily,
		Interval:  1,
		End:       &provider.RecurrenceEnd{EndDate: time.Now(), OccurrenceCount: 4},
	}
	rule, err := RecurrenceFromProvider(native)
	require.NoError(t, err)
	require.NotNil(t, rule.OccurrenceCount)
	assert.Equal(t, 4, *rule.OccurrenceCount)
	assert.Nil(t, rule.EndDate)

	_, err = RecurrenceFromProvider(&provider.Recurrence{Frequency: 7, Interval: 1})
	assert.ErrorIs(t, err, model.ErrValidation)

	rule, err = RecurrenceFromProvider(nil)
	assert.NoError(t, err)
	assert.Nil(t, rule)
}

func TestAlarmConversion(t *testing.T) {
	assert.Equal(t, 60, AlarmMinutes(provider.Alarm{RelativeOffset: -3600}))
	assert.Equal(t, -15, AlarmMinutes(provider.Alarm{RelativeOffset: 900}))
	assert.Equal(t, 0, AlarmMinutes(provider.Alarm{RelativeOffset: 0}))

	start := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	draft, err := CreatePayload(&model.CreateEventRequest{
		Title:        "Dentist",
		Start:        start,
		End:          start.Add(time.Hour),
		AlarmOffsets: []int{60},
	}, &provider.Calendar{ID: "home", Title: "Home"})
	require.NoError(t, err)
	require.Len(t, draft.Alarms, 1)
	assert.Equal(t, -3600.0, draft.Alarms[0].RelativeOffset)
}

func TestEventFromProvider(t *testing.T) {
	start := time.Date(2025, 11, 16, 14, 0, 0, 0, time.UTC)
	modified := start.Add(-48 * time.Hour)
	native := &provider.Event{
		ID:           "master-1",
		Calendar:     &provider.Calendar{ID: "work", Title: "Work"},
		Title:        "Sync",
		Start:        start,
		End:          start.Add(30 * time.Minute),
		Location:     "Room 4",
		Alarms:       []provider.Alarm{{RelativeOffset: -3600}, {RelativeOffset: -86400}},
		Recurrence:   &provider.Recurrence{Frequency: provider.FrequencyWeekly, Interval: 1, End: &provider.RecurrenceEnd{OccurrenceCount: 6}},
		Status:       1,
		Organizer:    "Ana",
		Attendees:    []string{"Ana", "Bo"},
		LastModified: modified,
	}
	ev, err := EventFromProvider(native)
	require.NoError(t, err)
	assert.Equal(t, "master-1", ev.ID)
	assert.Equal(t, "Work", ev.CalendarName)
	assert.Equal(t, []int{60, 1440}, ev.AlarmOffsets)
	require.NotNil(t, ev.RecurrenceRule)
	assert.Equal(t, 6, *ev.RecurrenceRule.OccurrenceCount)
	assert.Equal(t, "Ana", ev.Organizer)
	assert.Equal(t, []string{"Ana", "Bo"}, ev.Attendees)
	require.NotNil(t, ev.LastModified)
	assert.True(t, ev.LastModified.Equal(modified))
}

func TestCreatePayloadValidatesFirst(t *testing.T) {
	start := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	_, err := CreatePayload(&model.CreateEventRequest{
		Title: "Bad",
		Start: start,
		End:   start.Add(time.Hour),
		RecurrenceRule: &model.RecurrenceRule{
			Frequency:       model.Daily,
			Interval:        1,
			EndDate:         &start,
			OccurrenceCount: ptr(2),
		},
	}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdatePayloadIsSparse(t *testing.T) {
	start := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	existing := &provider.Event{
		ID:         "evt",
		Calendar:   &provider.Calendar{ID: "work", Title: "Work"},
		Title:      "Old title",
		Start:      start,
		End:        start.Add(time.Hour),
		Location:   "HQ",
		Notes:      "keep me",
		Alarms:     []provider.Alarm{{RelativeOffset: -600}},
		Recurrence: &provider.Recurrence{Frequency: provider.FrequencyDaily, Interval: 1},
	}

	draft, err := UpdatePayload(&model.UpdateEventRequest{Title: ptr("New title")}, existing, nil)
	require.NoError(t, err)
	assert.Equal(t, "New title", draft.Title)
	assert.Equal(t, "HQ", draft.Location)
	assert.Equal(t, "keep me", draft.Notes)
	assert.Equal(t, existing.Alarms, draft.Alarms)
	assert.Equal(t, existing.Recurrence, draft.Recurrence)
	assert.Equal(t, "Old title", existing.Title, "existing must not be mutated")

	draft, err = UpdatePayload(&model.UpdateEventRequest{RecurrenceRule: model.ClearRecurrence(), AlarmOffsets: []int{}}, existing, nil)
	require.NoError(t, err)
	assert.Nil(t, draft.Recurrence)
	assert.Empty(t, draft.Alarms)

	moved := start.Add(2 * time.Hour)
	draft, err = UpdatePayload(&model.UpdateEventRequest{Start: &moved}, existing, nil)
	require.NoError(t, err)
	assert.Equal(t, moved.Add(time.Hour), draft.End)

	home := &provider.Calendar{ID: "home", Title: "Home"}
	draft, err = UpdatePayload(&model.UpdateEventRequest{CalendarName: ptr("Home")}, existing, home)
	require.NoError(t, err)
	assert.Equal(t, home, draft.Calendar)

	early := start.Add(-time.Hour)
	_, err = UpdatePayload(&model.UpdateEventRequest{End: &early}, existing, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}
