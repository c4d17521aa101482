package main

import (
	"context"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"calgrid/internal/capture"
	"calgrid/internal/config"
	appLog "calgrid/internal/log"
	"calgrid/internal/schedule"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar grid over HTTP",
		Long: `Starts the HTTP server (JSON API, grid page, preview, metrics) and the
cron-driven refresh job. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// --listen overrides the config file if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}

	loc, _ := cfg.Location()
	schedOpts := schedule.Options{
		Spec:     cfg.Refresh,
		Location: loc,
		Purge:    a.server.Purge,
	}
	if cfg.Snapshot {
		target := snapshotURL(cfg)
		schedOpts.Snapshot = func(ctx context.Context) error {
			return capture.CalendarPNG(ctx, capture.Options{URL: target, OutputPath: cfg.PreviewPath})
		}
	}
	sched, err := schedule.New(schedOpts)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	err = a.server.Run(ctx)
	wg.Wait()
	appLog.Info("calgrid exiting")
	return err
}

// snapshotURL points the headless browser at our own grid page. Wildcard
// listen hosts are reached over loopback.
func snapshotURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, port),
		Path:     "/calendar",
		RawQuery: "view=week",
	}
	if ba := cfg.BasicAuth; ba != nil && ba.Username != "" {
		u.User = url.UserPassword(ba.Username, ba.Password)
	}
	return u.String()
}
