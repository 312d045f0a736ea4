package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "icalmcp/internal/log"
	"icalmcp/internal/provider"
)

// Feeds holds the parsed content of subscribed feeds. A feed keeps its last
// good content when a refresh fails.
type Feeds struct {
	fetcher *Fetcher
	feeds   []Feed

	mu   sync.RWMutex
	cals map[string]*calendarFile
}

func NewFeeds(fetcher *Fetcher, feeds []Feed) *Feeds {
	return &Feeds{
		fetcher: fetcher,
		feeds:   feeds,
		cals:    make(map[string]*calendarFile),
	}
}

func feedCalendarID(id string) string {
	return "feed-" + id
}

// Refresh downloads and parses every feed. The returned error joins the
// per-feed failures.
func (f *Feeds) Refresh(ctx context.Context) error {
	var errs []error
	for _, feed := range f.feeds {
		res, err := f.fetcher.fetch(ctx, feed)
		if err != nil {
			appLog.Error("feed refresh failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		p, err := parseICS(feed.ID, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}

		title := feed.Name
		if title == "" {
			title = p.Name
		}
		if title == "" {
			title = feed.ID
		}
		cf := &calendarFile{
			cal:    &provider.Calendar{ID: feedCalendarID(feed.ID), Title: title, ReadOnly: true},
			series: groupSeries(p.Records),
		}

		f.mu.Lock()
		f.cals[feed.ID] = cf
		f.mu.Unlock()
		appLog.Info("feed refreshed", "feed", feed.ID, "series", len(cf.series), "from_cache", res.FromCache)
	}
	return errors.Join(errs...)
}

// calendars returns the feeds loaded so far, in configuration order.
func (f *Feeds) calendars() []*calendarFile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*calendarFile, 0, len(f.cals))
	for _, feed := range f.feeds {
		if cf, ok := f.cals[feed.ID]; ok {
			out = append(out, cf)
		}
	}
	return out
}
