// Package ics implements the calendar provider on top of a directory of
// iCalendar files, one per calendar, plus read-only subscribed feeds.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

const defaultCalendarName = "Calendar"

// Options configures a Store.
type Options struct {
	// Dir holds one <id>.ics file per calendar.
	Dir string
	// Calendars are listed even before their file exists.
	Calendars []string
	// DefaultCalendar receives events created without a calendar. It falls
	// back to the first configured calendar.
	DefaultCalendar string
}

// Store is a provider.Provider backed by ICS files. Files are re-read when
// their modification time or size changes and rewritten atomically after
// every mutation.
type Store struct {
	mu sync.Mutex

	dir         string
	names       []string
	defaultName string
	files       map[string]*calendarFile
	feeds       *Feeds

	now    func() time.Time
	newUID func() string
}

var _ provider.Provider = (*Store)(nil)

// calendarFile is the in-memory state of one calendar.
type calendarFile struct {
	cal     *provider.Calendar
	path    string
	modTime time.Time
	size    int64
	series  []*series
}

func NewStore(opts Options) *Store {
	def := opts.DefaultCalendar
	if def == "" && len(opts.Calendars) > 0 {
		def = opts.Calendars[0]
	}
	if def == "" {
		def = defaultCalendarName
	}
	names := slices.Clone(opts.Calendars)
	if !slices.Contains(names, def) {
		names = append([]string{def}, names...)
	}
	return &Store{
		dir:         opts.Dir,
		names:       names,
		defaultName: def,
		files:       make(map[string]*calendarFile),
		now:         time.Now,
		newUID:      func() string { return uuid.NewString() },
	}
}

// AttachFeeds exposes subscribed feeds as read-only calendars.
func (s *Store) AttachFeeds(f *Feeds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = f
}

// Reload drops every cached calendar so the next access re-reads the files.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]*calendarFile)
	appLog.Debug("ics store cache cleared", "dir", s.dir)
}

// RefreshFeeds refreshes the attached feeds. Without feeds it does nothing.
func (s *Store) RefreshFeeds(ctx context.Context) error {
	s.mu.Lock()
	f := s.feeds
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Refresh(ctx)
}

// calendarID derives the file name stem for a calendar title.
func calendarID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	id := strings.TrimSuffix(b.String(), "-")
	if id == "" {
		id = "calendar"
	}
	return id
}

func (s *Store) RequestPermission(ctx context.Context) (bool, error) {
	if s.dir == "" {
		return false, errors.New("ics store directory is not configured")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		appLog.Warn("ics store not accessible", "dir", s.dir, "err", err)
		return false, nil
	}
	probe, err := os.CreateTemp(s.dir, ".icalmcp-probe-*")
	if err != nil {
		appLog.Warn("ics store not writable", "dir", s.dir, "err", err)
		return false, nil
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true, nil
}

// writableIDs lists configured calendars followed by any other files found in
// the store directory.
func (s *Store) writableIDs() ([]string, map[string]string) {
	titles := make(map[string]string)
	var ids []string
	for _, n := range s.names {
		id := calendarID(n)
		if _, ok := titles[id]; ok {
			continue
		}
		titles[id] = n
		ids = append(ids, id)
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.ics"))
	if err != nil {
		return ids, titles
	}
	slices.Sort(matches)
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".ics")
		if _, ok := titles[id]; ok {
			continue
		}
		titles[id] = ""
		ids = append(ids, id)
	}
	return ids, titles
}

// load returns the current state of calendar id, re-reading the file when it
// changed on disk. A missing file is an empty calendar.
func (s *Store) load(id, title string) (*calendarFile, error) {
	path := filepath.Join(s.dir, id+".ics")
	cached := s.files[id]

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if cached != nil && cached.modTime.IsZero() {
			return cached, nil
		}
		if title == "" {
			title = id
		}
		f := &calendarFile{cal: &provider.Calendar{ID: id, Title: title}, path: path}
		s.files[id] = f
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached, nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := parseICS(path, body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	switch {
	case p.Name != "":
		title = p.Name
	case title == "":
		title = id
	}
	f := &calendarFile{
		cal:     &provider.Calendar{ID: id, Title: title},
		path:    path,
		modTime: info.ModTime(),
		size:    info.Size(),
		series:  groupSeries(p.Records),
	}
	s.files[id] = f
	appLog.Debug("ics calendar loaded", "calendar", title, "series", len(f.series))
	return f, nil
}

func (s *Store) write(f *calendarFile) error {
	var records []*record
	for _, sr := range f.series {
		records = append(records, sr.records()...)
	}
	body := encodeICS(f.cal.Title, records, s.now())
	if err := writeFileAtomic(f.path, []byte(body)); err != nil {
		return err
	}
	if info, err := os.Stat(f.path); err == nil {
		f.modTime = info.ModTime()
		f.size = info.Size()
	}
	return nil
}

// allFiles returns writable calendars then feeds.
func (s *Store) allFiles() ([]*calendarFile, error) {
	ids, titles := s.writableIDs()
	out := make([]*calendarFile, 0, len(ids))
	for _, id := range ids {
		f, err := s.load(id, titles[id])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if s.feeds != nil {
		out = append(out, s.feeds.calendars()...)
	}
	return out, nil
}

// fileFor resolves a calendar handle to its loaded state.
func (s *Store) fileFor(cal *provider.Calendar) (*calendarFile, error) {
	files, err := s.allFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.cal.ID == cal.ID {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: calendar %q", model.ErrNotFound, cal.Title)
}

// lookup finds the series whose master has the given UID.
func (s *Store) lookup(id string) (*calendarFile, *series, error) {
	files, err := s.allFiles()
	if err != nil {
		return nil, nil, err
	}
	for _, f := range files {
		for _, sr := range f.series {
			if sr.master.UID == id {
				return f, sr, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: event %s", model.ErrNotFound, id)
}

func (s *Store) Calendars(ctx context.Context) ([]*provider.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.allFiles()
	if err != nil {
		return nil, err
	}
	out := make([]*provider.Calendar, 0, len(files))
	for _, f := range files {
		c := *f.cal
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) CalendarByName(ctx context.Context, name string) (*provider.Calendar, error) {
	cals, err := s.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cals {
		if c.Title == name {
			return c, nil
		}
	}
	for _, c := range cals {
		if strings.EqualFold(c.Title, name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: calendar %q", model.ErrNotFound, name)
}

func (s *Store) DefaultCalendar(ctx context.Context) (*provider.Calendar, error) {
	return s.CalendarByName(ctx, s.defaultName)
}

func (s *Store) Events(ctx context.Context, from, to time.Time, cal *provider.Calendar) ([]*provider.Event, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s is before start %s", model.ErrValidation, to, from)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var files []*calendarFile
	if cal == nil {
		all, err := s.allFiles()
		if err != nil {
			return nil, err
		}
		files = all
	} else {
		f, err := s.fileFor(cal)
		if err != nil {
			return nil, err
		}
		files = []*calendarFile{f}
	}

	var out []*provider.Event
	for _, f := range files {
		for _, sr := range f.series {
			out = append(out, sr.expand(f.cal, from, to)...)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) Event(ctx context.Context, id string) (*provider.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sr, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sr.master.snapshot(f.cal, sr.master.Start, sr.master.End), nil
}

func (s *Store) Occurrences(ctx context.Context, id string, from, to time.Time) ([]*provider.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sr, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sr.expand(f.cal, from, to), nil
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrProviderOperationFailed, fmt.Sprintf(format, args...))
}
