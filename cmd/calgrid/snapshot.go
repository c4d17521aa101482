package main

import (
	"time"

	"github.com/spf13/cobra"

	"calgrid/internal/capture"
	appLog "calgrid/internal/log"
)

func newSnapshotCmd(flags *rootFlags) *cobra.Command {
	var opts capture.Options

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the grid page of a running server as PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.OutputPath == "" || opts.URL == "" {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				if opts.OutputPath == "" {
					opts.OutputPath = cfg.PreviewPath
				}
				if opts.URL == "" {
					opts.URL = snapshotURL(cfg)
				}
			}

			started := time.Now()
			if err := capture.CalendarPNG(cmd.Context(), opts); err != nil {
				return err
			}
			appLog.Info("snapshot written", "path", opts.OutputPath, "duration", time.Since(started).String())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "Grid page URL (default: this config's server)")
	cmd.Flags().StringVar(&opts.OutputPath, "out", "", "PNG output path (default: preview_path)")
	cmd.Flags().IntVar(&opts.Width, "width", capture.DefaultWidth, "Viewport width in pixels")
	cmd.Flags().IntVar(&opts.Height, "height", capture.DefaultHeight, "Viewport height in pixels")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", capture.DefaultTimeout, "Capture timeout")
	cmd.Flags().StringVar(&opts.ExecPath, "chrome", "", "Path to the Chromium binary")
	return cmd
}
