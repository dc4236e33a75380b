package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/cloudwarden/cloudwarden/internal/config"
	"github.com/cloudwarden/cloudwarden/internal/logging"
	"github.com/cloudwarden/cloudwarden/internal/scheduler"
	"github.com/cloudwarden/cloudwarden/internal/supervisor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPaths     []string
	runNow          bool
	printBaseConfig bool
)

var rootCmd = &cobra.Command{
	Use:     "cloudwarden",
	Short:   "cloudwarden - cloud security audit engine",
	Long:    `cloudwarden audits cloud accounts against configured checks, on a schedule or on demand.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if printBaseConfig {
			fmt.Fprintln(os.Stdout, string(config.BaseConfigYAML()))
			return nil
		}
		return run()
	},
}

func init() {
	rootCmd.Flags().StringArrayVarP(&configPaths, "config", "c", nil, "configuration file (repeatable, later files override earlier)")
	rootCmd.Flags().BoolVarP(&runNow, "now", "n", false, "run once immediately, ignoring the configured schedule")
	rootCmd.Flags().BoolVarP(&printBaseConfig, "print-base-config", "p", false, "print the built-in base configuration and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paths := configPaths
	if len(paths) == 0 {
		paths = []string{"/etc/cloudwarden/config.yaml", "./config.yaml"}
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(paths)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logging.Configure(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		startMetricsServer(ctx, cfg.Metrics.Listen, log)
	}

	if runNow {
		return supervisor.RunOnce(ctx, cfg, log)
	}

	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	if stop, err := watchConfigPaths(paths, &current, log); err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
	} else if stop != nil {
		defer stop()
	}

	return scheduler.Daily(ctx, cfg.Schedule, func(ctx context.Context) {
		if err := supervisor.RunOnce(ctx, current.Load(), log); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	})
}

// watchConfigPaths watches the last existing path in paths (the one a
// later -c flag would override with, and so the one a user edits) and
// stores every successful reload into current, so the next scheduled run
// picks it up without a process restart. If none of paths exist on disk,
// watching is skipped rather than treated as an error: an all-defaults
// (embedded base config only) run has nothing to watch.
func watchConfigPaths(paths []string, current *atomic.Pointer[config.Config], log zerolog.Logger) (stop func(), err error) {
	watchPath := ""
	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr == nil {
			watchPath = p
		}
	}
	if watchPath == "" {
		return nil, nil
	}

	return config.Watch(watchPath, func(cfg *config.Config) {
		current.Store(cfg)
		log.Info().Str("path", watchPath).Msg("configuration reloaded")
	})
}
