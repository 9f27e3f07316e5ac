package webpages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"linker_index/internal/metrics"
	"linker_index/internal/models"
)

// Ingest records one linker report. The read-merge-write for the canonical
// url runs under the per-url lock, so concurrent reports for one page leave a
// single record.
func (e *Engine) Ingest(ctx context.Context, update models.LinkerUpdate) (models.IngestResult, error) {
	if strings.TrimSpace(update.URL) == "" {
		return "", ErrMissingURL
	}

	canonical, err := e.norm.Normalize(ctx, update.URL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}

	unlock, err := e.locker.Lock(ctx, canonical)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", canonical, err)
	}
	defer unlock()

	result, err := e.ingestLocked(ctx, canonical, update)
	if errors.Is(err, models.ErrDuplicateURL) {
		// Another process inserted the url after our lookup. Its record now
		// exists, so the second attempt takes the update path.
		e.logger.Debug("lost insert race, retrying as update", zap.String("url", canonical))
		result, err = e.ingestLocked(ctx, canonical, update)
	}
	if err != nil {
		return "", err
	}

	metrics.IngestTotal.WithLabelValues(string(result)).Inc()
	return result, nil
}

func (e *Engine) ingestLocked(ctx context.Context, canonical string, update models.LinkerUpdate) (models.IngestResult, error) {
	existing, err := e.store.FindByURL(ctx, canonical)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", canonical, err)
	}

	candidate := e.candidate(existing, canonical, update)

	reason, err := e.ExclusionReason(ctx, candidate)
	if err != nil {
		return "", err
	}
	if reason != NotExcluded {
		countExclusion(reason)
		if existing != nil {
			if err := e.store.Delete(ctx, existing.ID); err != nil {
				return "", fmt.Errorf("delete excluded %s: %w", canonical, err)
			}
			e.logger.Info("existing webpage excluded",
				zap.String("url", canonical), zap.String("reason", string(reason)))
		}
		return models.ResultExcluded, nil
	}

	if existing != nil {
		if err := e.store.Replace(ctx, candidate); err != nil {
			return "", fmt.Errorf("update %s: %w", canonical, err)
		}
	} else {
		if err := e.store.Insert(ctx, candidate); err != nil {
			return "", fmt.Errorf("insert %s: %w", canonical, err)
		}
	}
	return models.ResultSaved, nil
}

// candidate applies update to the stored record, or starts a new one.
func (e *Engine) candidate(existing *models.WebPage, canonical string, update models.LinkerUpdate) *models.WebPage {
	var page *models.WebPage
	title := update.Title
	if existing != nil {
		page = existing.Clone()
		page.LinkerHits++
		// A blank report must not wipe a known title.
		if title == "" {
			title = existing.Title
		}
	} else {
		page = &models.WebPage{LinkerHits: 1}
	}

	page.URL = canonical
	page.Title = title
	if update.Description != nil {
		page.Description = *update.Description
	}
	page.LastUpdated = e.now()
	e.setRefs(page, update.Refs)
	return page
}
