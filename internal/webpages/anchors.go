package webpages

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"linker_index/internal/metrics"
	"linker_index/internal/models"
)

// Resolve returns one client entry per (page, anchor) for the whitelisted,
// titled pages citing any segment of ref. A query the store rejects yields an
// empty result rather than an error.
func (e *Engine) Resolve(ctx context.Context, ref string) ([]models.ClientWebPage, error) {
	start := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	segments, err := e.lib.SegmentRefs(ref)
	if err != nil {
		return nil, err
	}

	results := []models.ClientWebPage{}

	pages, err := e.store.FindByExpandedRefs(ctx, segments)
	if errors.Is(err, models.ErrQueryRejected) {
		metrics.ResolveSoftFailures.Inc()
		e.logger.Warn("webpages query failed, returning no results",
			zap.String("ref", ref), zap.Error(err))
		return results, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := e.sites.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		info := describe(snap, page)
		if !info.Whitelisted || page.Title == "" {
			continue
		}

		title := CleanTitle(page.Title, info.Site)
		for _, anchor := range e.lib.AnchorRefs(ref, segments, page.Refs) {
			results = append(results, models.ClientWebPage{
				URL:               page.URL,
				Domain:            info.Domain,
				SiteName:          info.SiteName,
				FaviconURL:        info.Favicon,
				Title:             title,
				Description:       CleanDescription(page.Description),
				AnchorRef:         anchor.Ref,
				AnchorRefExpanded: anchor.Expanded,
			})
		}
	}
	return results, nil
}
