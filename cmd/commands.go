package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"linker_index/internal/app"
	"linker_index/internal/config"
	"linker_index/internal/logging"
	"linker_index/internal/webpages"
)

// NewRootCmd creates the root command for the linker index.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linker-index",
		Short: "Index of third-party webpages citing texts",
		Long: `linker-index ingests webpage reports from the linker, keeps one record per
canonical url and serves the pages citing a passage.

Maintenance commands run against the configured store and exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd("renormalize", "Re-apply url normalization and merge records that collide",
		func(ctx context.Context, a *app.IndexApp, opts webpages.SweepOptions) (interface{}, error) {
			return a.Renormalize(ctx, opts)
		}))
	cmd.AddCommand(newSweepCmd("dedupe", "Merge records that share an identical url",
		func(ctx context.Context, a *app.IndexApp, opts webpages.SweepOptions) (interface{}, error) {
			return a.Dedupe(ctx, opts)
		}))
	cmd.AddCommand(newSweepCmd("purge", "Delete records matching the exclusion rules",
		func(ctx context.Context, a *app.IndexApp, opts webpages.SweepOptions) (interface{}, error) {
			return a.Purge(ctx, opts)
		}))
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newStalledCmd())

	return cmd
}

// withApp loads the config, builds the app and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.IndexApp, logger *zap.Logger) error) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.NewIndexApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a, logger)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Kafka consumer and scheduled maintenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app.IndexApp, _ *zap.Logger) error {
				return a.Run()
			})
		},
	}
}

type sweepFunc func(ctx context.Context, a *app.IndexApp, opts webpages.SweepOptions) (interface{}, error)

func newSweepCmd(use, short string, sweep sweepFunc) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.IndexApp, _ *zap.Logger) error {
				defer a.Close()
				report, err := sweep(ctx, a, webpages.SweepOptions{DryRun: dryRun})
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print page, link and coverage statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.IndexApp, _ *zap.Logger) error {
				defer a.Close()
				report, err := a.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func newStalledCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stalled",
		Short: "List tracked sites with no recent linker activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.IndexApp, logger *zap.Logger) error {
				defer a.Close()
				stalled, err := a.Stalled(ctx, days)
				if err != nil {
					return err
				}
				logger.Info("stalled site check finished", zap.Int("alerts", len(stalled)))
				return printJSON(stalled)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days without activity before a site is reported (default from config)")
	return cmd
}
