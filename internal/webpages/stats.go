package webpages

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"linker_index/internal/models"
)

// CoverageCategories are the corpora whose segment coverage Stats reports.
var CoverageCategories = []string{"Torah", "Tanakh", "Bavli", "Mishnah"}

type Count struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent,omitempty"`
}

type Coverage struct {
	Category string  `json:"category"`
	Covered  int     `json:"covered"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
}

type StatsReport struct {
	TotalPages int        `json:"totalPages"`
	TotalLinks int        `json:"totalLinks"`
	Sites      []Count    `json:"sites"`
	Categories []Count    `json:"categories"`
	Works      []Count    `json:"works"`
	Coverage   []Coverage `json:"coverage"`
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*10000/float64(total)) / 100
}

// sortedCounts orders by count descending, then name.
func sortedCounts(m map[string]int, total int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		c := Count{Name: name, Count: n}
		if total > 0 {
			c.Percent = percent(n, total)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (e *Engine) Stats(ctx context.Context) (StatsReport, error) {
	var report StatsReport

	snap, err := e.sites.Snapshot(ctx)
	if err != nil {
		return report, err
	}

	sites := make(map[string]int)
	works := make(map[string]int)
	categories := make(map[string]int)
	covered := make(map[string]map[string]struct{})

	err = e.store.ForEach(ctx, func(page *models.WebPage) error {
		report.TotalPages++
		sites[describe(snap, page).Domain]++

		for _, ref := range page.Refs {
			report.TotalLinks++
			work, err := e.lib.Work(ref)
			if err != nil {
				e.logger.Debug("stats: unknown citation", zap.String("ref", ref), zap.Error(err))
				continue
			}
			works[work.Title]++

			category := work.PrimaryCategory()
			if category == "Commentary" && len(work.Categories) > 0 {
				category = work.Categories[0] + " Commentary"
			}
			categories[category]++

			segments, err := e.lib.SegmentRefs(ref)
			if err != nil {
				continue
			}
			set, ok := covered[work.Title]
			if !ok {
				set = make(map[string]struct{})
				covered[work.Title] = set
			}
			for _, s := range segments {
				set[s] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("stats: %w", err)
	}

	report.Sites = sortedCounts(sites, 0)
	report.Works = sortedCounts(works, report.TotalLinks)
	report.Categories = sortedCounts(categories, report.TotalLinks)

	for _, cat := range CoverageCategories {
		cov := Coverage{Category: cat}
		for _, title := range e.lib.WorksInCategory(cat) {
			all, err := e.lib.WorkSegments(title)
			if err != nil {
				e.logger.Warn("stats: skipping work without segments",
					zap.String("work", title), zap.Error(err))
				continue
			}
			cov.Total += len(all)
			// Citations to segments outside the catalogue are ignored.
			for _, s := range all {
				if _, ok := covered[title][s]; ok {
					cov.Covered++
				}
			}
		}
		cov.Percent = percent(cov.Covered, cov.Total)
		report.Coverage = append(report.Coverage, cov)
	}

	return report, nil
}

// SiteActivity describes a tracked domain that has gone quiet.
type SiteActivity struct {
	Site        string    `json:"site"`
	Domain      string    `json:"domain"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	NoPages     bool      `json:"noPages"`
	Stalled     bool      `json:"stalled"`
}

// StalledSites lists the registered domains with no page reported by the
// linker within window, which usually means the site removed the linker.
// Sites marked exclude_from_tracking are skipped.
func (e *Engine) StalledSites(ctx context.Context, window time.Duration) ([]SiteActivity, error) {
	snap, err := e.sites.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	threshold := e.now().Add(-window)

	var out []SiteActivity
	for _, site := range snap.Sites() {
		if site.ExcludeFromTracking {
			continue
		}
		for _, domain := range site.Domains {
			latest, err := e.store.LatestForDomain(ctx, domain)
			if err != nil {
				return nil, fmt.Errorf("latest page for %s: %w", domain, err)
			}
			switch {
			case latest == nil:
				e.logger.Warn("tracked domain has no pages", zap.String("domain", domain))
				out = append(out, SiteActivity{Site: site.Name, Domain: domain, NoPages: true})
			case latest.LastUpdated.Before(threshold):
				e.logger.Warn("tracked domain may have removed the linker",
					zap.String("domain", domain), zap.Time("last_updated", latest.LastUpdated))
				out = append(out, SiteActivity{
					Site:        site.Name,
					Domain:      domain,
					LastUpdated: latest.LastUpdated,
					Stalled:     true,
				})
			}
		}
	}
	return out, nil
}
