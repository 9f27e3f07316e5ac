package webpages

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linker_index/internal/citation"
	"linker_index/internal/db"
	"linker_index/internal/models"
	"linker_index/internal/registry"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLibrary(t *testing.T) *citation.Catalog {
	t.Helper()
	c, err := citation.NewCatalog([]citation.Work{
		{Title: "Genesis", Categories: []string{"Tanakh", "Torah"}, Chapters: []int{31, 25, 24}},
		{Title: "Exodus", Categories: []string{"Tanakh", "Torah"}, Chapters: []int{22, 25}},
		{Title: "Rashi on Genesis", Categories: []string{"Tanakh", "Commentary"}, Chapters: []int{2, 2}},
		{Title: "Mishnah Berakhot", Categories: []string{"Mishnah"}, Chapters: []int{5, 8}},
		{Title: "Mishnah Sukkah", Categories: []string{"Mishnah"}},
	})
	require.NoError(t, err)
	return c
}

func testSites() []models.Website {
	return []models.Website{
		{
			Name:          "Example",
			Domains:       []string{"example.com"},
			IsWhitelisted: true,
			TitleBranding: []string{"Example Blog"},
			BadURLs:       []string{`/search\?`},
		},
		{
			Name:    "Unlisted",
			Domains: []string{"unlisted.org"},
		},
		{
			Name:                 "Prefix Press",
			Domains:              []string{"prefix.net"},
			IsWhitelisted:        true,
			InitialTitleBranding: true,
			NormalizationRules:   []string{"remove url params"},
		},
		{
			Name:                "Quiet",
			Domains:             []string{"quiet.io"},
			IsWhitelisted:       true,
			ExcludeFromTracking: true,
		},
	}
}

type fixture struct {
	engine *Engine
	store  *db.MemoryStore
	clock  *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := db.NewMemoryStore(testSites()...)
	return newFixtureWithStore(t, store, store, opts...)
}

func newFixtureWithStore(t *testing.T, mem *db.MemoryStore, store Store, opts ...Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: testNow}
	logger := zap.NewNop()
	sites := registry.NewCache(mem, logger)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		engine: NewEngine(store, sites, testLibrary(t), logger, opts...),
		store:  mem,
		clock:  clock,
	}
}
