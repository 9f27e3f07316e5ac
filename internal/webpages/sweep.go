package webpages

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"linker_index/internal/metrics"
	"linker_index/internal/models"
)

type SweepOptions struct {
	// DryRun counts and logs what would change without writing.
	DryRun bool
}

type DedupeReport struct {
	Groups  int `json:"groups"`
	Removed int `json:"removed"`
}

type RenormalizeReport struct {
	Normalized int          `json:"normalized"`
	Deduped    int          `json:"deduped"`
	Identical  DedupeReport `json:"identical"`
}

type PurgeReport struct {
	Deleted  int                     `json:"deleted"`
	ByReason map[ExclusionReason]int `json:"byReason"`
}

func sweepChange(opts SweepOptions, sweep, kind string, n int) {
	if opts.DryRun || n == 0 {
		return
	}
	metrics.SweepChanges.WithLabelValues(sweep, kind).Add(float64(n))
}

// Renormalize re-applies url normalization to every record. A record whose
// canonical url is already taken is merged into the holder of that url.
// Exact duplicates are collapsed first so each canonical url has one holder.
func (e *Engine) Renormalize(ctx context.Context, opts SweepOptions) (RenormalizeReport, error) {
	var report RenormalizeReport

	identical, err := e.DedupeIdenticalURLs(ctx, opts)
	report.Identical = identical
	if err != nil {
		return report, err
	}

	err = e.store.ForEach(ctx, func(page *models.WebPage) error {
		canonical, err := e.norm.Normalize(ctx, page.URL)
		if err != nil {
			return err
		}
		if canonical == page.URL {
			return nil
		}

		unlock, err := e.locker.Lock(ctx, canonical)
		if err != nil {
			return err
		}
		defer unlock()

		holder, err := e.store.FindByURL(ctx, canonical)
		if err != nil {
			return err
		}

		if holder != nil && holder.ID != page.ID {
			report.Deduped++
			e.logger.Info("renormalize: merging duplicate",
				zap.String("from", page.URL), zap.String("into", canonical), zap.Bool("dry_run", opts.DryRun))
			if opts.DryRun {
				return nil
			}
			survivor := Merge(holder, page)
			survivor.ID = holder.ID
			survivor.URL = canonical
			e.setRefs(survivor, survivor.Refs)
			if err := e.store.Replace(ctx, survivor); err != nil {
				return fmt.Errorf("save merged %s: %w", canonical, err)
			}
			return e.store.Delete(ctx, page.ID)
		}

		report.Normalized++
		e.logger.Info("renormalize: rewriting url",
			zap.String("from", page.URL), zap.String("to", canonical), zap.Bool("dry_run", opts.DryRun))
		if opts.DryRun {
			return nil
		}
		page.URL = canonical
		e.setRefs(page, page.Refs)
		return e.store.Replace(ctx, page)
	})
	if err != nil {
		return report, fmt.Errorf("renormalize: %w", err)
	}

	sweepChange(opts, "renormalize", "normalized", report.Normalized)
	sweepChange(opts, "renormalize", "deduped", report.Deduped)
	e.logger.Info("renormalize finished",
		zap.Int("normalized", report.Normalized),
		zap.Int("deduped", report.Deduped),
		zap.Bool("dry_run", opts.DryRun))
	return report, nil
}

// DedupeIdenticalURLs collapses records sharing a literal url into one newly
// written record. Such groups only exist in data written before the url index
// was unique.
func (e *Engine) DedupeIdenticalURLs(ctx context.Context, opts SweepOptions) (DedupeReport, error) {
	var report DedupeReport

	groups, err := e.store.DuplicateURLGroups(ctx)
	if err != nil {
		return report, fmt.Errorf("find duplicate urls: %w", err)
	}

	for _, g := range groups {
		if err := e.dedupeGroup(ctx, g, opts, &report); err != nil {
			return report, err
		}
	}

	sweepChange(opts, "dedupe", "removed", report.Removed)
	e.logger.Info("identical url dedupe finished",
		zap.Int("groups", report.Groups),
		zap.Int("removed", report.Removed),
		zap.Bool("dry_run", opts.DryRun))
	return report, nil
}

func (e *Engine) dedupeGroup(ctx context.Context, g models.DuplicateGroup, opts SweepOptions, report *DedupeReport) error {
	unlock, err := e.locker.Lock(ctx, g.URL)
	if err != nil {
		return err
	}
	defer unlock()

	pages, err := e.store.FindByIDs(ctx, g.IDs)
	if err != nil {
		return fmt.Errorf("load duplicates of %s: %w", g.URL, err)
	}
	if len(pages) < 2 {
		return nil
	}

	report.Groups++
	report.Removed += len(pages) - 1
	e.logger.Info("dedupe: replacing records",
		zap.String("url", g.URL), zap.Int("records", len(pages)), zap.Bool("dry_run", opts.DryRun))
	if opts.DryRun {
		return nil
	}

	merged := Merge(pages...)
	merged.URL = g.URL
	e.setRefs(merged, merged.Refs)

	ids := make([]primitive.ObjectID, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	// Groups only exist without a unique url index, so the merged record can
	// be written before the originals go.
	if err := e.store.Insert(ctx, merged); err != nil {
		return fmt.Errorf("insert merged %s: %w", g.URL, err)
	}
	if err := e.store.DeleteMany(ctx, ids); err != nil {
		return fmt.Errorf("delete duplicates of %s: %w", g.URL, err)
	}
	return nil
}

// PurgeExcluded deletes stored records that the exclusion rules would now
// reject: no refs, a bad url pattern or a junk title.
func (e *Engine) PurgeExcluded(ctx context.Context, opts SweepOptions) (PurgeReport, error) {
	report := PurgeReport{ByReason: make(map[ExclusionReason]int)}

	badURL, err := e.sites.BadURLPattern(ctx)
	if err != nil {
		return report, err
	}

	var doomed []primitive.ObjectID
	err = e.store.ForEach(ctx, func(page *models.WebPage) error {
		reason := patternReason(page, badURL)
		if reason == NotExcluded {
			return nil
		}
		report.ByReason[reason]++
		doomed = append(doomed, page.ID)
		e.logger.Debug("purge: excluded page",
			zap.String("url", page.URL), zap.String("reason", string(reason)))
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("purge: %w", err)
	}

	report.Deleted = len(doomed)
	if !opts.DryRun {
		if err := e.store.DeleteMany(ctx, doomed); err != nil {
			return report, fmt.Errorf("purge: %w", err)
		}
		for reason, n := range report.ByReason {
			metrics.ExclusionsTotal.WithLabelValues(string(reason)).Add(float64(n))
		}
	}
	sweepChange(opts, "purge", "deleted", report.Deleted)

	e.logger.Info("purge finished", zap.Int("deleted", report.Deleted), zap.Bool("dry_run", opts.DryRun))
	return report, nil
}
