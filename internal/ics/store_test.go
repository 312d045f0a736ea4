package ics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	model.SetLocalZone(time.UTC)
	t.Cleanup(func() { model.SetLocalZone(nil) })

	s := NewStore(Options{Dir: dir, Calendars: []string{"Work", "Home"}})
	n := 0
	s.newUID = func() string {
		n++
		return fmt.Sprintf("uid-%d", n)
	}
	return s
}

// weekly creates a weekly series starting Sunday 2025-11-02 14:00 UTC.
func weekly(t *testing.T, s *Store, end *provider.RecurrenceEnd) *provider.Event {
	t.Helper()
	start := time.Date(2025, 11, 2, 14, 0, 0, 0, time.UTC)
	ev, err := s.Save(context.Background(), &provider.Event{
		Title:      "Review",
		Start:      start,
		End:        start.Add(time.Hour),
		Alarms:     []provider.Alarm{{RelativeOffset: -900}},
		Recurrence: &provider.Recurrence{Frequency: provider.FrequencyWeekly, Interval: 1, End: end},
	}, provider.WholeSeries)
	require.NoError(t, err)
	return ev
}

var november = [2]time.Time{
	time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
}

func titlesByDay(evs []*provider.Event) map[int]string {
	out := make(map[int]string)
	for _, ev := range evs {
		out[ev.Start.Day()] = ev.Title
	}
	return out
}

func TestCalendarsAndPermission(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "store"))

	ok, err := s.RequestPermission(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	cals, err := s.Calendars(ctx)
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.Equal(t, "Work", cals[0].Title)
	assert.Equal(t, "work", cals[0].ID)

	def, err := s.DefaultCalendar(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Work", def.Title)

	home, err := s.CalendarByName(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, "Home", home.Title)

	_, err = s.CalendarByName(ctx, "Missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir)

	master := weekly(t, s, nil)
	assert.Equal(t, "uid-1", master.ID)
	assert.Equal(t, "Work", master.Calendar.Title)
	assert.FileExists(t, filepath.Join(dir, "work.ics"))

	other := newTestStore(t, dir)
	got, err := other.Event(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.Title)
	assert.True(t, got.Start.Equal(master.Start))
	assert.Equal(t, []provider.Alarm{{RelativeOffset: -900}}, got.Alarms)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, provider.FrequencyWeekly, got.Recurrence.Frequency)

	evs, err := other.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	assert.Len(t, evs, 5)
	for _, ev := range evs {
		assert.True(t, ev.Start.Equal(ev.OccurrenceDate))
		assert.False(t, ev.Detached)
	}

	_, err = other.Event(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSaveThisOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)

	slot := time.Date(2025, 11, 16, 14, 0, 0, 0, time.UTC)
	occs, err := s.Occurrences(ctx, master.ID, slot, slot)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	draft := occs[0].Clone()
	draft.Title = "Review (moved)"
	draft.Start = slot.Add(2 * time.Hour)
	draft.End = draft.Start.Add(time.Hour)
	saved, err := s.Save(ctx, draft, provider.ThisOccurrence)
	require.NoError(t, err)
	assert.True(t, saved.Detached)
	assert.True(t, saved.OccurrenceDate.Equal(slot))

	evs, err := newTestStore(t, s.dir).Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	require.Len(t, evs, 5)
	days := titlesByDay(evs)
	assert.Equal(t, "Review (moved)", days[16])
	assert.Equal(t, "Review", days[9])
	assert.Equal(t, "Review", days[23])

	draft.OccurrenceDate = slot.Add(time.Hour)
	_, err = s.Save(ctx, draft, provider.ThisOccurrence)
	assert.ErrorIs(t, err, model.ErrProviderOperationFailed)
}

func TestSaveThisAndFutureForks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)

	slot := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	occs, err := s.Occurrences(ctx, master.ID, slot, slot)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	draft := occs[0].Clone()
	draft.Title = "Review v2"
	cont, err := s.Save(ctx, draft, provider.ThisAndFuture)
	require.NoError(t, err)
	assert.NotEqual(t, master.ID, cont.ID)
	assert.True(t, cont.Start.Equal(slot))

	evs, err := s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	days := titlesByDay(evs)
	assert.Equal(t, map[int]string{2: "Review", 9: "Review", 16: "Review", 23: "Review v2", 30: "Review v2"}, days)

	orig, err := s.Event(ctx, master.ID)
	require.NoError(t, err)
	require.NotNil(t, orig.Recurrence.End)
	assert.True(t, orig.Recurrence.End.EndDate.Equal(slot.Add(-time.Second)))

	// Later edits to the original stay on its side of the fork.
	orig.Title = "Review (old)"
	_, err = s.Save(ctx, orig, provider.WholeSeries)
	require.NoError(t, err)
	evs, err = s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	days = titlesByDay(evs)
	assert.Equal(t, "Review (old)", days[16])
	assert.Equal(t, "Review v2", days[30])
}

func TestForkCarriesExceptionsAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, &provider.RecurrenceEnd{OccurrenceCount: 6})

	late := time.Date(2025, 11, 30, 14, 0, 0, 0, time.UTC)
	occs, err := s.Occurrences(ctx, master.ID, late, late)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, occs[0], provider.ThisOccurrence))

	slot := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	occs, err = s.Occurrences(ctx, master.ID, slot, slot)
	require.NoError(t, err)
	draft := occs[0].Clone()
	draft.Recurrence.End = &provider.RecurrenceEnd{OccurrenceCount: 3}
	cont, err := s.Save(ctx, draft, provider.ThisAndFuture)
	require.NoError(t, err)

	orig, err := s.Event(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, orig.Recurrence.End.OccurrenceCount)

	rest, err := s.Occurrences(ctx, cont.ID, slot, slot.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Len(t, rest, 2) // Nov 23 and Dec 7; Nov 30 stays excluded.
	assert.True(t, rest[1].Start.Equal(time.Date(2025, 12, 7, 14, 0, 0, 0, time.UTC)))
}

func TestRemoveScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)

	slot := time.Date(2025, 11, 16, 14, 0, 0, 0, time.UTC)
	occ := &provider.Event{ID: master.ID, OccurrenceDate: slot}

	require.NoError(t, s.Remove(ctx, occ, provider.ThisOccurrence))
	evs, err := s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	assert.Len(t, evs, 4)
	assert.NotContains(t, titlesByDay(evs), 16)

	// The slot is gone now.
	assert.ErrorIs(t, s.Remove(ctx, occ, provider.ThisOccurrence), model.ErrProviderOperationFailed)

	occ.OccurrenceDate = time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.Remove(ctx, occ, provider.ThisAndFuture))
	evs, err = s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{2: "Review", 9: "Review"}, titlesByDay(evs))

	occ.OccurrenceDate = master.Start
	require.NoError(t, s.Remove(ctx, occ, provider.ThisAndFuture))
	_, err = s.Event(ctx, master.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRemoveSingleIgnoresOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	start := time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)
	ev, err := s.Save(ctx, &provider.Event{Title: "One-off", Start: start, End: start.Add(time.Hour)}, provider.WholeSeries)
	require.NoError(t, err)

	ev.OccurrenceDate = start.AddDate(0, 0, 3)
	require.NoError(t, s.Remove(ctx, ev, provider.ThisOccurrence))
	_, err = s.Event(ctx, ev.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWholeSeriesMoveKeepsExceptionsAligned(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)

	slot := time.Date(2025, 11, 9, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.Remove(ctx, &provider.Event{ID: master.ID, OccurrenceDate: slot}, provider.ThisOccurrence))

	moved := master.Clone()
	moved.Start = master.Start.Add(time.Hour)
	moved.End = master.End.Add(time.Hour)
	_, err := s.Save(ctx, moved, provider.WholeSeries)
	require.NoError(t, err)

	evs, err := s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	assert.Len(t, evs, 4)
	for _, ev := range evs {
		assert.Equal(t, 15, ev.Start.Hour())
		assert.NotEqual(t, 9, ev.Start.Day())
	}
}

func TestMoveSeriesToOtherCalendar(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)

	home, err := s.CalendarByName(ctx, "Home")
	require.NoError(t, err)
	draft := master.Clone()
	draft.Calendar = home
	saved, err := s.Save(ctx, draft, provider.WholeSeries)
	require.NoError(t, err)
	assert.Equal(t, "Home", saved.Calendar.Title)

	work, err := s.CalendarByName(ctx, "Work")
	require.NoError(t, err)
	evs, err := s.Events(ctx, november[0], november[1], work)
	require.NoError(t, err)
	assert.Empty(t, evs)
	evs, err = s.Events(ctx, november[0], november[1], home)
	require.NoError(t, err)
	assert.Len(t, evs, 5)
}

func TestAllDaySeries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	ev, err := s.Save(ctx, &provider.Event{
		Title:      "Gym",
		Start:      day.Add(10 * time.Hour),
		End:        day.Add(11 * time.Hour),
		AllDay:     true,
		Recurrence: &provider.Recurrence{Frequency: provider.FrequencyDaily, Interval: 2, End: &provider.RecurrenceEnd{OccurrenceCount: 3}},
	}, provider.WholeSeries)
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(day))
	assert.True(t, ev.End.Equal(day.AddDate(0, 0, 1)))

	body, err := os.ReadFile(filepath.Join(s.dir, "work.ics"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "DTSTART;VALUE=DATE:20251103")

	evs, err := newTestStore(t, s.dir).Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.True(t, evs[2].Start.Equal(day.AddDate(0, 0, 4)))
	assert.True(t, evs[2].AllDay)
}

const holidayFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
X-WR-CALNAME:Holidays
BEGIN:VEVENT
UID:xmas
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20251225
DTEND;VALUE=DATE:20251226
SUMMARY:Christmas
STATUS:CONFIRMED
TRANSP:TRANSPARENT
END:VEVENT
END:VCALENDAR
`

func TestFeedsAreReadOnly(t *testing.T) {
	ctx := context.Background()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, holidayFeed)
	}))
	defer srv.Close()

	s := newTestStore(t, t.TempDir())
	assert.NoError(t, s.RefreshFeeds(ctx))
	feeds := NewFeeds(NewFetcher(t.TempDir(), srv.Client()), []Feed{{ID: "hol", URL: srv.URL + "/private.ics?token=x"}})
	require.NoError(t, feeds.Refresh(ctx))
	s.AttachFeeds(feeds)
	require.NoError(t, s.RefreshFeeds(ctx))
	assert.Equal(t, 2, hits)

	cal, err := s.CalendarByName(ctx, "Holidays")
	require.NoError(t, err)
	assert.True(t, cal.ReadOnly)

	evs, err := s.Events(ctx, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), cal)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "Christmas", evs[0].Title)
	assert.True(t, evs[0].AllDay)
	assert.Equal(t, statusConfirmed, evs[0].Status)
	assert.Equal(t, availabilityFree, evs[0].Availability)

	draft := evs[0].Clone()
	draft.Title = "Boxing Day"
	_, err = s.Save(ctx, draft, provider.WholeSeries)
	assert.ErrorIs(t, err, model.ErrProviderOperationFailed)
	assert.ErrorIs(t, s.Remove(ctx, draft, provider.WholeSeries), model.ErrProviderOperationFailed)
}

func TestFetcherFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, holidayFeed)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	feed := Feed{ID: "hol", URL: srv.URL}
	res, err := f.fetch(ctx, feed)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	up = false
	res, err = f.fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, holidayFeed, string(res.Body))

	_, err = NewFetcher(t.TempDir(), srv.Client()).fetch(ctx, feed)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/cal/private.ics?token=abc"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

// breakWrites points the cached file of calendar id at a path that cannot be
// written.
func breakWrites(t *testing.T, s *Store, id string) {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	require.True(t, ok, "calendar %s not loaded", id)
	f.path = filepath.Join(blocker, id+".ics")
}

func TestFailedWriteLeavesSeriesUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())
	master := weekly(t, s, nil)
	breakWrites(t, s, "work")

	draft := master.Clone()
	draft.Title = "Renamed"
	draft.Start = draft.Start.Add(time.Hour)
	draft.End = draft.End.Add(time.Hour)
	_, err := s.Save(ctx, draft, provider.WholeSeries)
	require.ErrorIs(t, err, model.ErrProviderOperationFailed)

	got, err := s.Event(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.Title)
	assert.True(t, got.Start.Equal(master.Start))

	slot := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	occs, err := s.Occurrences(ctx, master.ID, slot, slot)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	draft = occs[0].Clone()
	draft.Title = "Review v2"
	_, err = s.Save(ctx, draft, provider.ThisAndFuture)
	require.ErrorIs(t, err, model.ErrProviderOperationFailed)
	_, err = s.Save(ctx, draft, provider.ThisOccurrence)
	require.ErrorIs(t, err, model.ErrProviderOperationFailed)
	require.ErrorIs(t, s.Remove(ctx, occs[0], provider.ThisOccurrence), model.ErrProviderOperationFailed)

	evs, err := s.Events(ctx, november[0], november[1], nil)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{2: "Review", 9: "Review", 16: "Review", 23: "Review", 30: "Review"}, titlesByDay(evs))
	orig, err := s.Event(ctx, master.ID)
	require.NoError(t, err)
	assert.Nil(t, orig.Recurrence.End)
}

func TestFailedMoveKeepsSeriesInOneCalendar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir)
	master := weekly(t, s, nil)
	home, err := s.CalendarByName(ctx, "Home")
	require.NoError(t, err)
	breakWrites(t, s, "work")

	draft := master.Clone()
	draft.Calendar = home
	_, err = s.Save(ctx, draft, provider.WholeSeries)
	require.ErrorIs(t, err, model.ErrProviderOperationFailed)

	slot := time.Date(2025, 11, 23, 14, 0, 0, 0, time.UTC)
	occs, err := s.Occurrences(ctx, master.ID, slot, slot)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	draft = occs[0].Clone()
	draft.Calendar = home
	_, err = s.Save(ctx, draft, provider.ThisAndFuture)
	require.ErrorIs(t, err, model.ErrProviderOperationFailed)

	got, err := s.Event(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Calendar.Title)
	assert.Nil(t, got.Recurrence.End)

	// Neither the cache nor the file on disk gained a copy.
	evs, err := s.Events(ctx, november[0], november[1], home)
	require.NoError(t, err)
	assert.Empty(t, evs)
	fresh := newTestStore(t, dir)
	evs, err = fresh.Events(ctx, november[0], november[1], home)
	require.NoError(t, err)
	assert.Empty(t, evs)
}
