// Package calendar is the entry point for calendar operations. A Manager is
// only constructed once the user has granted access to the calendar store.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"icalmcp/internal/codec"
	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/occurrence"
	"icalmcp/internal/provider"
	"icalmcp/internal/series"
)

type Manager struct {
	p      provider.Provider
	engine *series.Engine
}

type Option func(*options)

type options struct {
	window time.Duration
}

// WithResolveWindow sets the half-width of the search around an
// occurrence_date.
func WithResolveWindow(d time.Duration) Option {
	return func(o *options) { o.window = d }
}

// New asks p for access and fails with model.ErrPermissionDenied if it is
// not granted.
func New(ctx context.Context, p provider.Provider, opts ...Option) (*Manager, error) {
	o := options{window: occurrence.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	granted, err := p.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPermissionDenied, err)
	}
	if !granted {
		return nil, model.ErrPermissionDenied
	}
	appLog.Info("calendar access granted")

	return &Manager{
		p:      p,
		engine: series.NewEngine(p, occurrence.NewResolver(p, o.window)),
	}, nil
}

func (m *Manager) CalendarNames(ctx context.Context) ([]string, error) {
	cals, err := m.p.Calendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list calendars: %w", model.ErrProviderOperationFailed, err)
	}
	names := make([]string, 0, len(cals))
	for _, c := range cals {
		names = append(names, c.Title)
	}
	return names, nil
}

// ListEvents returns occurrences overlapping [start, end]. An empty
// calendarName searches every calendar.
func (m *Manager) ListEvents(ctx context.Context, start, end time.Time, calendarName string) ([]*model.Event, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date %s is before start_date %s",
			model.ErrValidation, model.FormatTime(end), model.FormatTime(start))
	}

	var cal *provider.Calendar
	if calendarName != "" {
		var err error
		if cal, err = m.p.CalendarByName(ctx, calendarName); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: find calendar: %w", model.ErrProviderOperationFailed, err)
		}
	}

	natives, err := m.p.Events(ctx, start, end, cal)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", model.ErrProviderOperationFailed, err)
	}
	out := make([]*model.Event, 0, len(natives))
	for _, n := range natives {
		ev, err := codec.EventFromProvider(n)
		if err != nil {
			// Rules the model cannot represent are skipped.
			appLog.Warn("skipping event", "id", n.ID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("events listed", "from", start, "to", end, "calendar", calendarName, "count", len(out))
	return out, nil
}

func (m *Manager) CreateEvent(ctx context.Context, req *model.CreateEventRequest) (*model.Event, error) {
	return m.engine.Create(ctx, req)
}

// UpdateEvent applies req to the event id. occurrenceDate selects a single
// occurrence, and together with future the occurrence and everything after
// it.
func (m *Manager) UpdateEvent(ctx context.Context, id string, req *model.UpdateEventRequest, future bool, occurrenceDate *time.Time) (*model.Event, error) {
	scope := series.SelectScope(occurrenceDate, future)
	return m.engine.Update(ctx, id, req, scope, at(occurrenceDate))
}

// DeleteEvent removes the event id. Without occurrenceDate the whole series
// goes; with it, entireSeries extends the delete to every later occurrence.
func (m *Manager) DeleteEvent(ctx context.Context, id string, entireSeries bool, occurrenceDate *time.Time) error {
	scope := series.SelectScope(occurrenceDate, entireSeries)
	return m.engine.Delete(ctx, id, scope, at(occurrenceDate))
}

func at(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
