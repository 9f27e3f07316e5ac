package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"linker_index/internal/webpages"
)

func (a *IndexApp) Renormalize(ctx context.Context, opts webpages.SweepOptions) (webpages.RenormalizeReport, error) {
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()
	return a.engine.Renormalize(ctx, opts)
}

func (a *IndexApp) Dedupe(ctx context.Context, opts webpages.SweepOptions) (webpages.DedupeReport, error) {
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()
	return a.engine.DedupeIdenticalURLs(ctx, opts)
}

func (a *IndexApp) Purge(ctx context.Context, opts webpages.SweepOptions) (webpages.PurgeReport, error) {
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()
	return a.engine.PurgeExcluded(ctx, opts)
}

func (a *IndexApp) Stats(ctx context.Context) (webpages.StatsReport, error) {
	return a.engine.Stats(ctx)
}

// Stalled lists tracked domains without linker activity for days days. A
// non-positive days uses the configured window.
func (a *IndexApp) Stalled(ctx context.Context, days int) ([]webpages.SiteActivity, error) {
	if days <= 0 {
		days = a.config.Schedule.StalledAfterDays
	}
	return a.engine.StalledSites(ctx, time.Duration(days)*24*time.Hour)
}

// Scheduler returns a cron scheduler with the configured maintenance jobs.
// Jobs run with ctx and are skipped when the previous run is still going.
func (a *IndexApp) Scheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	jobs := []struct {
		name string
		spec string
		run  func() error
	}{
		{"renormalize", a.config.Schedule.Renormalize, func() error {
			_, err := a.Renormalize(ctx, webpages.SweepOptions{})
			return err
		}},
		{"purge", a.config.Schedule.Purge, func() error {
			_, err := a.Purge(ctx, webpages.SweepOptions{})
			return err
		}},
		{"stalled", a.config.Schedule.Stalled, func() error {
			_, err := a.Stalled(ctx, 0)
			return err
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		_, err := c.AddFunc(job.spec, func() {
			start := time.Now()
			if err := job.run(); err != nil {
				a.logger.Error("scheduled job failed", zap.String("job", job.name), zap.Error(err))
				return
			}
			a.logger.Info("scheduled job finished",
				zap.String("job", job.name), zap.Duration("took", time.Since(start)))
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
		a.logger.Info("maintenance job scheduled", zap.String("job", job.name), zap.String("spec", job.spec))
	}
	return c, nil
}
