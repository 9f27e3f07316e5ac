package webpages

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"linker_index/internal/metrics"
	"linker_index/internal/models"
)

type ExclusionReason string

const (
	NotExcluded     ExclusionReason = ""
	ReasonNoRefs    ExclusionReason = "no_refs"
	ReasonLongURL   ExclusionReason = "long_url"
	ReasonBadURL    ExclusionReason = "bad_url"
	ReasonJunkTitle ExclusionReason = "junk_title"
)

// MaxURLBytes is the largest url the store can index.
const MaxURLBytes = 1000

var junkTitles = regexp.MustCompile(`(` +
	`Page \d+ of \d+` + // paged archives
	`|^Page not found$` +
	`|^JTS Torah Online$` + // search result pages
	`)`)

// ShouldExclude reports whether page must be kept out of the index. A page
// whose url is too long to index is copied to the long-url quarantine first.
func (e *Engine) ShouldExclude(ctx context.Context, page *models.WebPage) (bool, error) {
	reason, err := e.ExclusionReason(ctx, page)
	return reason != NotExcluded, err
}

func (e *Engine) ExclusionReason(ctx context.Context, page *models.WebPage) (ExclusionReason, error) {
	if len(page.Refs) == 0 {
		return ReasonNoRefs, nil
	}
	if len(page.URL) > MaxURLBytes {
		if err := e.store.QuarantineLongURL(ctx, page); err != nil {
			return ReasonLongURL, fmt.Errorf("quarantine long url: %w", err)
		}
		e.logger.Info("long url quarantined", zap.Int("bytes", len(page.URL)))
		return ReasonLongURL, nil
	}

	badURL, err := e.sites.BadURLPattern(ctx)
	if err != nil {
		return NotExcluded, err
	}
	return patternReason(page, badURL), nil
}

// patternReason checks the stored-record exclusion rules: missing refs, bad
// url patterns from the registry and junk titles.
func patternReason(page *models.WebPage, badURL *regexp.Regexp) ExclusionReason {
	switch {
	case len(page.Refs) == 0:
		return ReasonNoRefs
	case badURL != nil && badURL.MatchString(page.URL):
		return ReasonBadURL
	case junkTitles.MatchString(page.Title):
		return ReasonJunkTitle
	}
	return NotExcluded
}

func countExclusion(reason ExclusionReason) {
	metrics.ExclusionsTotal.WithLabelValues(string(reason)).Inc()
}

