package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"calgrid/internal/web"
)

func newRenderCmd(flags *rootFlags) *cobra.Command {
	var (
		view    string
		date    string
		nowFlag string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run one fetch and render pass and print the day models as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			now := time.Now
			if nowFlag != "" {
				fixed, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("invalid --now %q: %w", nowFlag, err)
				}
				now = func() time.Time { return fixed }
			}

			v, err := web.ParseView(view)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			anchor, err := web.ParseDate(date, loc, now())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, appOptions{now: now, eventsCacheTTL: -1})
			if err != nil {
				return err
			}
			resp, err := a.server.Calendar(cmd.Context(), v, anchor)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&view, "view", "week", "Grid to render: week or month")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&nowFlag, "now", "", "Current instant as RFC3339, for reproducible output")
	return cmd
}
