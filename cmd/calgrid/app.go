package main

import (
	"context"
	"fmt"
	"time"

	"calgrid/internal/config"
	"calgrid/internal/layout"
	appLog "calgrid/internal/log"
	"calgrid/internal/metrics"
	"calgrid/internal/source"
	"calgrid/internal/source/google"
	"calgrid/internal/source/ics"
	"calgrid/internal/web"
)

// app is the wired object graph shared by serve and render.
type app struct {
	cfg    *config.Config
	server *web.Server
}

type appOptions struct {
	now            func() time.Time
	eventsCacheTTL time.Duration
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := layout.NewConversionCache(cfg.CacheSizeLimit)
	if err != nil {
		return nil, fmt.Errorf("conversion cache: %w", err)
	}

	pipeline := layout.NewPipeline(layout.Options{
		Location:         loc,
		MaxVisiblePerDay: cfg.MaxVisiblePerDay,
		MinEventMinutes:  cfg.MinEventMinutes,
	}, cache)

	srv, err := web.NewServer(web.Options{
		Config:         cfg,
		Fetcher:        fetcher,
		Pipeline:       pipeline,
		SourceKind:     cfg.Source,
		Metrics:        metrics.New(),
		Now:            opts.now,
		EventsCacheTTL: opts.eventsCacheTTL,
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"source", cfg.Source,
		"display_timezone", loc.String(),
		"week_starts_on", cfg.WeekStartsOn,
		"time_format", cfg.TimeFormat,
		"max_visible_per_day", cfg.MaxVisiblePerDay,
		"cache_size_limit", cfg.CacheSizeLimit,
		"ics_count", len(cfg.ICS),
	)
	return &app{cfg: cfg, server: srv}, nil
}

// newFetcher selects the event source named by cfg.Source. Configuration
// problems surface as *source.ConfigError before any request is made.
func newFetcher(ctx context.Context, cfg *config.Config) (source.Fetcher, error) {
	switch cfg.Source {
	case "google":
		f, err := google.New(ctx, google.Options{
			CalendarID:        cfg.Google.CalendarID,
			APIKey:            cfg.Google.APIKey,
			CredentialsFile:   cfg.Google.CredentialsFile,
			MaxResults:        cfg.Google.MaxResults,
			RequestsPerSecond: cfg.Google.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	case "ics":
		feeds := make([]ics.Feed, 0, len(cfg.ICS))
		for _, f := range cfg.ICS {
			feeds = append(feeds, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
		}
		f, err := ics.New(ics.Options{Feeds: feeds, CacheDir: cfg.ICSCacheDir})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, &source.ConfigError{Field: "source", Reason: fmt.Sprintf("unknown kind %q", cfg.Source)}
	}
}
