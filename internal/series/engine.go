package series

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
)

// Engine performs the provider calls for each scoped mutation. Request
// validation always happens before the first provider call.
type Engine struct {
	p        provider.Provider
	resolver *occurrence.Resolver
}

func NewEngine(p provider.Provider, resolver *occurrence.Resolver) *Engine {
	if resolver == nil {
		resolver = occurrence.NewResolver(p, occurrence.DefaultWindow)
	}
	return &Engine{p: p, resolver: resolver}
}

// providerFailed tags err as a provider failure unless it already is one.
func providerFailed(op string, err error) error {
	if errors.Is(err, model.ErrProviderOperationFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrProviderOperationFailed, op, err)
}

// lookupFailed passes not-found through and tags everything else.
func lookupFailed(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	return providerFailed(op, err)
}

func (e *Engine) calendar(ctx context.Context, name string) (*provider.Calendar, error) {
	var (
		cal *provider.Calendar
		err error
	)
	if name == "" {
		cal, err = e.p.DefaultCalendar(ctx)
	} else {
		cal, err = e.p.CalendarByName(ctx, name)
	}
	if err != nil {
		return nil, lookupFailed("find calendar", err)
	}
	return cal, nil
}

// Create saves a new event or series.
func (e *Engine) Create(ctx context.Context, req *model.CreateEventRequest) (*model.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cal, err := e.calendar(ctx, req.CalendarName)
	if err != nil {
		return nil, err
	}
	draft, err := codec.CreatePayload(req, cal)
	if err != nil {
		return nil, err
	}
	saved, err := e.p.Save(ctx, draft, provider.WholeSeries)
	if err != nil {
		return nil, providerFailed("save event", err)
	}
	appLog.Info("event created", "id", saved.ID, "calendar", cal.Title, "recurring", saved.Recurrence != nil)
	return codec.EventFromProvider(saved)
}

// Update patches the event id. at names the occurrence for ThisOccurrence
// and ThisAndFuture; it is ignored for WholeSeries and for a non-recurring
// event updated with ThisOccurrence.
func (e *Engine) Update(ctx context.Context, id string, req *model.UpdateEventRequest, scope provider.Scope, at time.Time) (*model.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	master, err := e.p.Event(ctx, id)
	if err != nil {
		return nil, lookupFailed("load event", err)
	}

	var cal *provider.Calendar
	if req.CalendarName != nil {
		if cal, err = e.calendar(ctx, *req.CalendarName); err != nil {
			return nil, err
		}
	}

	if master.Recurrence == nil {
		if scope == provider.ThisAndFuture {
			return nil, fmt.Errorf("%w: event %s is not recurring; future occurrences cannot be updated", model.ErrInvalidScope, id)
		}
		scope = provider.WholeSeries
	}

	target := master
	if scope != provider.WholeSeries {
		if at.IsZero() {
			return nil, fmt.Errorf("%w: occurrence_date is required for %s", model.ErrInvalidScope, scope)
		}
		if target, err = e.resolver.Resolve(ctx, id, at); err != nil {
			return nil, lookupFailed("resolve occurrence", err)
		}
	}

	draft, err := codec.UpdatePayload(req, target, cal)
	if err != nil {
		return nil, err
	}
	if scope == provider.ThisAndFuture {
		slot := slotOf(target)
		// A moved occurrence must not shift the rest of the series.
		if req.Start == nil {
			draft.Start = slot
			if req.End == nil {
				draft.End = slot.Add(master.End.Sub(master.Start))
			} else if draft.End.Before(slot) {
				return nil, fmt.Errorf("%w: end_time %s is before start_time %s",
					model.ErrValidation, model.FormatTime(draft.End), model.FormatTime(slot))
			}
		}
		if !req.RecurrenceRule.Set {
			if draft.Recurrence, err = continuation(master, slot); err != nil {
				return nil, providerFailed("fork series", err)
			}
		}
	}

	saved, err := e.p.Save(ctx, draft, scope)
	if err != nil {
		return nil, providerFailed("save event", err)
	}
	appLog.Info("event updated", "id", id, "scope", scope, "saved_id", saved.ID)
	return codec.EventFromProvider(saved)
}

// Delete removes the scoped part of the event id. For non-recurring events
// the occurrence is ignored and the event is removed.
func (e *Engine) Delete(ctx context.Context, id string, scope provider.Scope, at time.Time) error {
	master, err := e.p.Event(ctx, id)
	if err != nil {
		return lookupFailed("load event", err)
	}

	target := master
	if master.Recurrence == nil {
		scope = provider.WholeSeries
	}
	if scope != provider.WholeSeries {
		if at.IsZero() {
			return fmt.Errorf("%w: occurrence_date is required for %s", model.ErrInvalidScope, scope)
		}
		if target, err = e.resolver.Resolve(ctx, id, at); err != nil {
			return lookupFailed("resolve occurrence", err)
		}
	}

	if err := e.p.Remove(ctx, target, scope); err != nil {
		return providerFailed("remove event", err)
	}
	appLog.Info("event deleted", "id", id, "scope", scope)
	return nil
}

func slotOf(occ *provider.Event) time.Time {
	if !occ.OccurrenceDate.IsZero() {
		return occ.OccurrenceDate
	}
	return occ.Start
}

// continuation is the rule of the series that starts at slot after a fork:
// same frequency, interval and days, ending on the master's end date, after
// the occurrences the master had left, or never.
func continuation(master *provider.Event, slot time.Time) (*provider.Recurrence, error) {
	r := master.Recurrence.Clone()
	if r.End == nil || r.End.OccurrenceCount == 0 {
		return r, nil
	}
	n, err := master.Recurrence.SlotsBefore(master.Start, slot)
	if err != nil {
		return nil, err
	}
	left := r.End.OccurrenceCount - n
	if left < 1 {
		return nil, fmt.Errorf("no occurrences left after %s", model.FormatTime(slot))
	}
	r.End = &provider.RecurrenceEnd{OccurrenceCount: left}
	return r, nil
}
