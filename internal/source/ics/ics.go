// Package ics reads events from ICS subscription feeds. Feeds are fetched with
// a disk-backed conditional-GET cache, parsed with golang-ical and expanded
// into single instances, so recurring series arrive at the layout pipeline
// the same way a provider API would deliver them.
package ics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/source"
)

// Feed is one ICS subscription.
type Feed struct {
	ID   string
	Name string
	URL  string
}

// Options configures a Fetcher.
type Options struct {
	Feeds    []Feed
	CacheDir string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient             *http.Client
	MaxOccurrencesPerEvent int
	// Now anchors open-ended queries. Defaults to time.Now.
	Now func() time.Time
}

// Fetcher merges every configured feed into one event list.
type Fetcher struct {
	feeds  []Feed
	dl     *downloader
	maxOcc int
	now    func() time.Time
}

var _ source.Fetcher = (*Fetcher)(nil)

// New validates feeds. A feed without an ID is named after its position.
func New(opts Options) (*Fetcher, error) {
	if len(opts.Feeds) == 0 {
		return nil, &source.ConfigError{Field: "ics", Reason: "at least one feed is required"}
	}

	feeds := make([]Feed, len(opts.Feeds))
	for i, f := range opts.Feeds {
		if f.URL == "" {
			return nil, &source.ConfigError{Field: fmt.Sprintf("ics[%d].url", i)}
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("ics%d", i)
		}
		feeds[i] = f
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxOcc := opts.MaxOccurrencesPerEvent
	if maxOcc <= 0 {
		maxOcc = defaultMaxOccurrencesPerEvent
	}
	return &Fetcher{
		feeds:  feeds,
		dl:     newDownloader(opts.HTTPClient, opts.CacheDir),
		maxOcc: maxOcc,
		now:    now,
	}, nil
}

// FetchEvents downloads, parses and expands every feed. A failing feed is
// logged and skipped; the call only fails when no feed could be read.
func (f *Fetcher) FetchEvents(ctx context.Context, q source.Query) ([]model.Event, error) {
	from, to := f.window(q)

	var (
		all      []instance
		firstErr error
		readable int
	)
	for _, feed := range f.feeds {
		dl, err := f.dl.fetch(ctx, feed)
		if err != nil {
			appLog.Error("ics feed fetch failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		parsed, err := parseCalendar(feed, dl.Body)
		if err != nil {
			err = &source.FetchError{
				Status:  http.StatusBadGateway,
				Message: "feed " + feed.ID + ": invalid ICS payload",
				Err:     err,
			}
			appLog.Error("ics feed parse failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		readable++

		occ, truncated := expand(parsed, from, to, f.maxOcc)
		appLog.Debug("ics feed expanded",
			"feed", feed.ID,
			"from_cache", dl.FromCache,
			"vevents", len(parsed),
			"instances", len(occ),
		)
		if len(truncated) > 0 {
			appLog.Warn("ics expansion truncated", "feed", feed.ID, "uids", truncated, "cap", f.maxOcc)
		}
		all = append(all, occ...)
	}

	if readable == 0 && firstErr != nil {
		return nil, firstErr
	}

	if len(f.feeds) > 1 {
		sortInstances(all)
	}
	if q.MaxResults > 0 && len(all) > q.MaxResults {
		all = all[:q.MaxResults]
	}

	out := make([]model.Event, 0, len(all))
	for _, in := range all {
		out = append(out, in.event)
	}
	return out, nil
}

// window closes an open-ended query at one year either side of its known end,
// or of now.
func (f *Fetcher) window(q source.Query) (time.Time, time.Time) {
	from, to := q.TimeMin, q.TimeMax
	switch {
	case from.IsZero() && to.IsZero():
		from = f.now()
		to = from.AddDate(1, 0, 0)
	case from.IsZero():
		from = to.AddDate(-1, 0, 0)
	case to.IsZero():
		to = from.AddDate(1, 0, 0)
	}
	return from, to
}
