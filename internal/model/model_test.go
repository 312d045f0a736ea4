package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	SetLocalZone(loc)
	t.Cleanup(func() { SetLocalZone(nil) })
	return loc
}

func TestNormalizeIsIdempotent(t *testing.T) {
	sydney := withZone(t, "Australia/Sydney")
	aware := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)

	inputs := []any{
		"2025-11-23T14:00:00",
		"2025-11-23T14:00:00+11:00",
		"2025-11-23T03:00:00Z",
		"2025-11-23",
		aware,
		&aware,
		float64(1763866800),
		int64(1763866800),
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err, "input %v", in)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %v", in)
	}

	naive, err := Normalize("2025-11-23T14:00:00")
	require.NoError(t, err)
	assert.Equal(t, sydney, naive.Location())
	assert.True(t, naive.Equal(time.Date(2025, 11, 23, 3, 0, 0, 0, time.UTC)))

	epoch, err := Normalize(float64(1763866800))
	require.NoError(t, err)
	assert.Equal(t, sydney, epoch.Location())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize("next tuesday")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Normalize(struct{}{})
	assert.ErrorIs(t, err, ErrValidation)

	var nilTime *time.Time
	_, err = Normalize(nilTime)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewRecurrenceRule(t *testing.T) {
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rule, err := NewRecurrenceRule(Weekly, Every(2), OnDays(Monday, Wednesday))
	require.NoError(t, err)
	assert.Equal(t, 2, rule.Interval)
	assert.Nil(t, rule.EndDate)
	assert.Nil(t, rule.OccurrenceCount)

	rule, err = NewRecurrenceRule(Daily)
	require.NoError(t, err)
	assert.Equal(t, 1, rule.Interval)

	_, err = NewRecurrenceRule(Daily, Until(end), Count(3))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewRecurrenceRule(Daily, Every(0))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewRecurrenceRule(Frequency(9))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewRecurrenceRule(Weekly, OnDays(Weekday(0)))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewRecurrenceRule(Daily, Count(0))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecurrenceRuleJSON(t *testing.T) {
	withZone(t, "UTC")

	var rule RecurrenceRule
	require.NoError(t, json.Unmarshal([]byte(`{"frequency":1,"days_of_week":[2,"wednesday"]}`), &rule))
	assert.Equal(t, Weekly, rule.Frequency)
	assert.Equal(t, 1, rule.Interval)
	assert.Equal(t, []Weekday{Monday, Wednesday}, rule.DaysOfWeek)

	require.NoError(t, json.Unmarshal([]byte(`{"frequency":"MONTHLY","interval":3,"end_date":"2026-03-01T00:00:00"}`), &rule))
	assert.Equal(t, Monthly, rule.Frequency)
	require.NotNil(t, rule.EndDate)
	assert.True(t, rule.EndDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	err := json.Unmarshal([]byte(`{"frequency":0,"end_date":"2026-03-01T00:00:00","occurrence_count":4}`), &rule)
	assert.ErrorIs(t, err, ErrValidation)

	data, err := json.Marshal(RecurrenceRule{Frequency: Daily, Interval: 2})
	require.NoError(t, err)
	var back RecurrenceRule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(&RecurrenceRule{Frequency: Daily, Interval: 2}))
}

func TestRecurrenceRuleEqual(t *testing.T) {
	a := &RecurrenceRule{Frequency: Weekly, Interval: 2, DaysOfWeek: []Weekday{Wednesday, Monday}}
	b := &RecurrenceRule{Frequency: Weekly, Interval: 2, DaysOfWeek: []Weekday{Monday, Wednesday}}
	assert.True(t, a.Equal(b))

	n := 3
	b.OccurrenceCount = &n
	assert.False(t, a.Equal(b))

	var nilRule *RecurrenceRule
	assert.True(t, nilRule.Equal(nil))
	assert.False(t, nilRule.Equal(a))
}

func TestRequestValidation(t *testing.T) {
	start := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)

	create := CreateEventRequest{Title: "Standup", Start: start, End: start.Add(time.Hour)}
	assert.NoError(t, create.Validate())

	create.Title = "  "
	assert.ErrorIs(t, create.Validate(), ErrValidation)

	create = CreateEventRequest{Title: "Backwards", Start: start, End: start.Add(-time.Hour)}
	assert.ErrorIs(t, create.Validate(), ErrValidation)

	empty := ""
	update := UpdateEventRequest{Title: &empty}
	assert.ErrorIs(t, update.Validate(), ErrValidation)

	assert.True(t, (&UpdateEventRequest{}).Empty())
	assert.False(t, (&UpdateEventRequest{RecurrenceRule: ClearRecurrence()}).Empty())
	assert.False(t, (&UpdateEventRequest{AlarmOffsets: []int{}}).Empty())
}

func TestEventString(t *testing.T) {
	withZone(t, "UTC")
	rule, err := NewRecurrenceRule(Weekly, Every(2), OnDays(Monday))
	require.NoError(t, err)

	ev := &Event{
		ID:             "evt-1",
		Title:          "Planning",
		Start:          time.Date(2025, 11, 17, 9, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 11, 17, 10, 0, 0, 0, time.UTC),
		AlarmOffsets:   []int{60, 1440},
		RecurrenceRule: rule,
	}
	out := ev.String()
	assert.Contains(t, out, "Event: Planning,")
	assert.Contains(t, out, " - Identifier: evt-1,")
	assert.Contains(t, out, " - Start Time: 2025-11-17T09:00:00Z,")
	assert.Contains(t, out, " - Alarms (minutes before): 60, 1440,")
	assert.Contains(t, out, " - Location: N/A,")
	assert.Contains(t, out, "Recurrence: WEEKLY, Interval: 2")
	assert.Contains(t, out, "Days: MONDAY")

	ev.RecurrenceRule = nil
	assert.Contains(t, ev.String(), " - No recurrence")
}

func TestErrorsWrap(t *testing.T) {
	_, err := NewRecurrenceRule(Daily, Until(time.Now()), Count(1))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
}
