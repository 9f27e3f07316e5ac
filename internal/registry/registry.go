// Package registry caches the known-site registry for the ingestion and
// serving paths.
//
// The registry is authored elsewhere and read here as a snapshot. A Cache is
// empty until the first read, which loads every site from the Source. The
// snapshot then stays resident until Invalidate is called; there is no expiry.
// Reads after an invalidation may still observe the previous snapshot until
// the next load completes.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"

	"linker_index/internal/metrics"
	"linker_index/internal/models"
	urlnorm "linker_index/internal/url_norm"
)

// CacheName identifies the process-wide registry snapshot.
const CacheName = "websites_data"

// Source loads all sites in registration order.
type Source interface {
	LoadWebsites(ctx context.Context) ([]models.Website, error)
}

type site struct {
	models.Website
	domains []string
	rules   []urlnorm.Rule
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	sites  []*site
	badURL *regexp.Regexp
}

func (s *Snapshot) Len() int {
	return len(s.sites)
}

// Sites returns copies of the registry entries in registration order.
func (s *Snapshot) Sites() []models.Website {
	out := make([]models.Website, 0, len(s.sites))
	for _, st := range s.sites {
		out = append(out, st.Website)
	}
	return out
}

// Classify returns the first site whose domains contain domain or a parent of it.
func (s *Snapshot) Classify(domain string) *models.Website {
	st := s.lookup(domain)
	if st == nil {
		return nil
	}
	w := st.Website
	return &w
}

func (s *Snapshot) lookup(domain string) *site {
	d := foldDomain(domain)
	if d == "" {
		return nil
	}
	for _, st := range s.sites {
		for _, sd := range st.domains {
			if d == sd || strings.HasSuffix(d, "."+sd) {
				return st
			}
		}
	}
	return nil
}

// BadURLPattern is the union of every site's bad_urls, or nil when there are none.
func (s *Snapshot) BadURLPattern() *regexp.Regexp {
	return s.badURL
}

func foldDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if ascii, err := idna.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

type Cache struct {
	source Source
	logger *zap.Logger
	group  singleflight.Group

	mu   sync.RWMutex
	snap *Snapshot
	gen  uint64
}

func NewCache(source Source, logger *zap.Logger) *Cache {
	return &Cache{source: source, logger: logger}
}

// Snapshot returns the resident snapshot, loading it on first use.
// Concurrent callers during a load share its result.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap, gen := c.snap, c.gen
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	v, err, _ := c.group.Do(CacheName+":"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) load(ctx context.Context, gen uint64) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	websites, err := c.source.LoadWebsites(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", CacheName, err)
	}
	metrics.RegistryLoads.Inc()

	snap = c.build(websites)

	c.mu.Lock()
	// An empty registry is not kept, so the next read tries again.
	if c.gen == gen && snap.Len() > 0 {
		c.snap = snap
	}
	c.mu.Unlock()

	c.logger.Info("site registry loaded",
		zap.String("cache", CacheName),
		zap.Int("sites", snap.Len()))
	return snap, nil
}

func (c *Cache) build(websites []models.Website) *Snapshot {
	snap := &Snapshot{}
	var badURLs []string

	for _, w := range websites {
		st := &site{Website: w}
		for _, d := range w.Domains {
			if f := foldDomain(d); f != "" {
				st.domains = append(st.domains, f)
			}
		}
		for _, name := range w.NormalizationRules {
			r, err := urlnorm.ParseRule(name)
			if err != nil {
				c.logger.Warn("skipping normalization rule",
					zap.String("site", w.Name), zap.Error(err))
				continue
			}
			st.rules = append(st.rules, r)
		}
		for _, p := range w.BadURLs {
			if _, err := regexp.Compile(p); err != nil {
				c.logger.Warn("skipping bad url pattern",
					zap.String("site", w.Name), zap.String("pattern", p), zap.Error(err))
				continue
			}
			badURLs = append(badURLs, p)
		}
		snap.sites = append(snap.sites, st)
	}

	if len(badURLs) > 0 {
		snap.badURL = regexp.MustCompile("(" + strings.Join(badURLs, "|") + ")")
	}
	return snap
}

// Invalidate drops the resident snapshot. The next read reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
	c.logger.Info("site registry invalidated", zap.String("cache", CacheName))
}

func (c *Cache) Classify(ctx context.Context, domain string) (*models.Website, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Classify(domain), nil
}

// SiteRules returns the normalization rules of the whitelisted site owning domain.
func (c *Cache) SiteRules(ctx context.Context, domain string) ([]urlnorm.Rule, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	st := snap.lookup(domain)
	if st == nil || !st.IsWhitelisted {
		return nil, nil
	}
	return st.rules, nil
}

func (c *Cache) BadURLPattern(ctx context.Context) (*regexp.Regexp, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.BadURLPattern(), nil
}

func (c *Cache) Sites(ctx context.Context) ([]models.Website, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Sites(), nil
}
