// Package occurrence finds the concrete occurrence of a recurring series that
// a caller addressed by its start instant.
package occurrence

import (
	"context"
	"fmt"
	"time"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/provider"
)

// DefaultWindow is the half-width of the range searched around the
// requested instant.
const DefaultWindow = 24 * time.Hour

// Source is the part of provider.Provider the resolver reads from.
type Source interface {
	Occurrences(ctx context.Context, id string, from, to time.Time) ([]*provider.Event, error)
}

type Resolver struct {
	src    Source
	window time.Duration
}

func NewResolver(src Source, window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Resolver{src: src, window: window}
}

// Resolve returns the occurrence of masterID whose start equals at. A
// moved exception also matches on its original slot, as long as it was not
// moved further than the window away from it: only occurrences overlapping
// [at-window, at+window] are read. Anything short of an exact match is
// model.ErrNotFound; the nearest candidate is only named in the error
// message.
func (r *Resolver) Resolve(ctx context.Context, masterID string, at time.Time) (*provider.Event, error) {
	occs, err := r.src.Occurrences(ctx, masterID, at.Add(-r.window), at.Add(r.window))
	if err != nil {
		return nil, err
	}

	var bySlot, nearest *provider.Event
	var best time.Duration
	for _, occ := range occs {
		if occ.Start.Equal(at) {
			return occ, nil
		}
		if bySlot == nil && !occ.OccurrenceDate.IsZero() && occ.OccurrenceDate.Equal(at) {
			bySlot = occ
		}
		d := occ.Start.Sub(at).Abs()
		if nearest == nil || d < best {
			nearest, best = occ, d
		}
	}
	if bySlot != nil {
		return bySlot, nil
	}

	if nearest == nil {
		appLog.Debug("occurrence not found", "id", masterID, "at", at, "window", r.window)
		return nil, fmt.Errorf("%w: no occurrence of %s near %s", model.ErrNotFound, masterID, model.FormatTime(at))
	}
	appLog.Debug("occurrence not found", "id", masterID, "at", at, "nearest", nearest.Start)
	return nil, fmt.Errorf("%w: no occurrence of %s at %s (nearest starts %s)",
		model.ErrNotFound, masterID, model.FormatTime(at), model.FormatTime(nearest.Start))
}
