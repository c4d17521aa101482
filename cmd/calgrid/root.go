package main

import (
	"github.com/spf13/cobra"

	"calgrid/internal/config"
	appLog "calgrid/internal/log"
)

const defaultConfigPath = "/etc/calgrid/config.yaml"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "calgrid",
		Short: "Lays out calendar events as week and month grids",
		Long: `calgrid fetches events from Google Calendar or ICS subscriptions and
lays them out as week or month grids: day buckets, overlap columns for timed
events and "+N more" truncation for busy days.

It can run as:
  - an HTTP server with a JSON API and a server-rendered grid (serve)
  - a one-shot render that prints the day models as JSON (render)
  - a headless screenshot of the grid page (snapshot)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate(`{{printf "calgrid version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "Path to config file (created with defaults if missing)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newRenderCmd(flags))
	cmd.AddCommand(newSnapshotCmd(flags))
	return cmd
}

// loadConfig reads the config file and installs the logger it asks for.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	appLog.Init(appLog.ParseLevel(cfg.LogLevel), cfg.LogEncoding)
	return cfg, nil
}
