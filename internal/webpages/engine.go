package webpages

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"linker_index/internal/citation"
	"linker_index/internal/lock"
	"linker_index/internal/models"
	"linker_index/internal/registry"
	urlnorm "linker_index/internal/url_norm"
)

var ErrMissingURL = errors.New("linker update has no url")

// Store is the persistence the engine needs. Listing methods return records
// in _id order.
type Store interface {
	// FindByURL returns nil, nil when no record has url.
	FindByURL(ctx context.Context, url string) (*models.WebPage, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.WebPage, error)
	// Insert assigns the new record's ID. It fails with models.ErrDuplicateURL
	// when the url is uniquely indexed and another record holds it.
	Insert(ctx context.Context, page *models.WebPage) error
	Replace(ctx context.Context, page *models.WebPage) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteMany(ctx context.Context, ids []primitive.ObjectID) error
	ForEach(ctx context.Context, fn func(*models.WebPage) error) error
	// FindByExpandedRefs fails with models.ErrQueryRejected when the store
	// refuses to answer, e.g. for an oversized result.
	FindByExpandedRefs(ctx context.Context, segments []string) ([]*models.WebPage, error)
	DuplicateURLGroups(ctx context.Context) ([]models.DuplicateGroup, error)
	QuarantineLongURL(ctx context.Context, page *models.WebPage) error
	LatestForDomain(ctx context.Context, domain string) (*models.WebPage, error)
}

type Engine struct {
	store  Store
	sites  *registry.Cache
	norm   *urlnorm.Normalizer
	lib    citation.Library
	locker lock.Locker
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Engine)

// WithLocker replaces the default in-process per-url lock.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, sites *registry.Cache, lib citation.Library, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		sites:  sites,
		norm:   urlnorm.NewNormalizer(sites, logger),
		lib:    lib,
		locker: lock.NewKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeURL returns the canonical form of raw under the current registry.
func (e *Engine) NormalizeURL(ctx context.Context, raw string) (string, error) {
	return e.norm.Normalize(ctx, raw)
}

// Sites exposes the registry cache the engine reads from.
func (e *Engine) Sites() *registry.Cache {
	return e.sites
}

// setRefs is the only place refs and expandedRefs are written.
func (e *Engine) setRefs(page *models.WebPage, refs []string) {
	page.Refs = e.normalizeRefs(refs)
	page.ExpandedRefs = e.lib.Expand(page.Refs)
	if page.ExpandedRefs == nil {
		page.ExpandedRefs = []string{}
	}
}

// normalizeRefs drops citations that do not parse and returns the rest in
// canonical form, deduplicated and sorted.
func (e *Engine) normalizeRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		n, ok := e.lib.Normalize(r)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
