package webpages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linker_index/internal/db"
	"linker_index/internal/models"
)

func seedForRenormalize(f *fixture) (a, b, c *models.WebPage) {
	t1 := testNow.Add(-48 * time.Hour)
	t2 := testNow.Add(-24 * time.Hour)

	a = &models.WebPage{URL: "http://example.com/x", Title: "Old", Refs: []string{"Genesis 1:1"},
		ExpandedRefs: []string{"Genesis 1:1"}, LinkerHits: 2, LastUpdated: t1}
	b = &models.WebPage{URL: "https://example.com/x", Title: "New", Refs: []string{"Genesis 1:2"},
		ExpandedRefs: []string{"Genesis 1:2"}, LinkerHits: 1, LastUpdated: t2}
	c = &models.WebPage{URL: "http://example.com/y#frag", Title: "Y", Refs: []string{"Genesis 2:1"},
		ExpandedRefs: []string{"Genesis 2:1"}, LinkerHits: 4, LastUpdated: t1}
	f.store.Seed(a, b, c,
		&models.WebPage{URL: "https://example.com/z", Title: "Z", Refs: []string{"Exodus 1:1"}, LinkerHits: 1, LastUpdated: t1},
		&models.WebPage{URL: "https://example.com/dup", Title: "D1", Refs: []string{"Exodus 1:2"}, LinkerHits: 1, LastUpdated: t1},
		&models.WebPage{URL: "https://example.com/dup", Title: "D2", Refs: []string{"Exodus 1:3"}, LinkerHits: 1, LastUpdated: t2},
	)
	return a, b, c
}

func TestRenormalizeDryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _, _ := seedForRenormalize(f)

	report, err := f.engine.Renormalize(ctx, SweepOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Normalized)
	assert.Equal(t, 1, report.Deduped)
	assert.Equal(t, DedupeReport{Groups: 1, Removed: 1}, report.Identical)

	assert.Equal(t, 6, f.store.Len())
	still, err := f.store.FindByURL(ctx, a.URL)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestRenormalizeMergesAndRewrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, b, c := seedForRenormalize(f)

	report, err := f.engine.Renormalize(ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Normalized)
	assert.Equal(t, 1, report.Deduped)
	assert.Equal(t, DedupeReport{Groups: 1, Removed: 1}, report.Identical)
	assert.Equal(t, 4, f.store.Len())

	x, err := f.store.FindByURL(ctx, "https://example.com/x")
	require.NoError(t, err)
	require.NotNil(t, x)
	assert.Equal(t, b.ID, x.ID)
	assert.Equal(t, 3, x.LinkerHits)
	assert.Equal(t, "New", x.Title)
	assert.Equal(t, []string{"Genesis 1:2"}, x.Refs)
	assert.Equal(t, []string{"Genesis 1:2"}, x.ExpandedRefs)

	old, err := f.store.FindByURL(ctx, "http://example.com/x")
	require.NoError(t, err)
	assert.Nil(t, old)

	y, err := f.store.FindByURL(ctx, "https://example.com/y")
	require.NoError(t, err)
	require.NotNil(t, y)
	assert.Equal(t, c.ID, y.ID)
	assert.Equal(t, 4, y.LinkerHits)

	dup, err := f.store.FindByURL(ctx, "https://example.com/dup")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "D2", dup.Title)
	assert.Equal(t, 2, dup.LinkerHits)

	groups, err := f.store.DuplicateURLGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	// A second run finds nothing left to do.
	report, err = f.engine.Renormalize(ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, RenormalizeReport{}, report)
}

func TestDedupeIdenticalURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seeded := []*models.WebPage{
		{URL: "https://example.com/d", Title: "First", Refs: []string{"Genesis 1:1"}, LinkerHits: 1, LastUpdated: testNow.Add(-3 * time.Hour)},
		{URL: "https://example.com/d", Title: "Newest", Description: "latest", Refs: []string{"Genesis 1:3", "Genesis 1:2"}, LinkerHits: 2, LastUpdated: testNow},
		{URL: "https://example.com/d", Title: "Middle", Refs: []string{"Genesis 1:4"}, LinkerHits: 3, LastUpdated: testNow.Add(-time.Hour)},
		{URL: "https://example.com/single", Title: "Single", Refs: []string{"Exodus 1:1"}, LinkerHits: 7, LastUpdated: testNow},
	}
	f.store.Seed(seeded...)

	report, err := f.engine.DedupeIdenticalURLs(ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, DedupeReport{Groups: 1, Removed: 2}, report)
	assert.Equal(t, 2, f.store.Len())

	merged, err := f.store.FindByURL(ctx, "https://example.com/d")
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, 6, merged.LinkerHits)
	assert.Equal(t, "Newest", merged.Title)
	assert.Equal(t, "latest", merged.Description)
	assert.Equal(t, testNow, merged.LastUpdated)
	assert.Equal(t, []string{"Genesis 1:2", "Genesis 1:3"}, merged.Refs)
	assert.Equal(t, []string{"Genesis 1:2", "Genesis 1:3"}, merged.ExpandedRefs)
	for _, p := range seeded[:3] {
		assert.NotEqual(t, p.ID, merged.ID, "the merged record is newly written")
	}

	single, err := f.store.FindByURL(ctx, "https://example.com/single")
	require.NoError(t, err)
	assert.Equal(t, seeded[3].ID, single.ID)
}

type failingInsertStore struct {
	*db.MemoryStore
}

func (s *failingInsertStore) Insert(context.Context, *models.WebPage) error {
	return errors.New("write concern failed")
}

func TestDedupeIdenticalURLsKeepsGroupWhenInsertFails(t *testing.T) {
	mem := db.NewMemoryStore(testSites()...)
	f := newFixtureWithStore(t, mem, &failingInsertStore{MemoryStore: mem})
	ctx := context.Background()

	f.store.Seed(
		&models.WebPage{URL: "https://example.com/d", Title: "A", Refs: []string{"Genesis 1:1"}, LinkerHits: 1, LastUpdated: testNow},
		&models.WebPage{URL: "https://example.com/d", Title: "B", Refs: []string{"Genesis 1:2"}, LinkerHits: 2, LastUpdated: testNow},
	)

	_, err := f.engine.DedupeIdenticalURLs(ctx, SweepOptions{})
	require.Error(t, err)
	assert.Equal(t, 2, f.store.Len())
}

func seedJunk(f *fixture) {
	f.store.Seed(
		&models.WebPage{URL: "https://example.com/no-refs", Title: "Empty", Refs: []string{}},
		&models.WebPage{URL: "https://example.com/search?q=1", Title: "Search", Refs: []string{"Genesis 1:1"}},
		&models.WebPage{URL: "https://example.com/archive", Title: "Page 2 of 9", Refs: []string{"Genesis 1:1"}},
		&models.WebPage{URL: "https://example.com/good", Title: "Good", Refs: []string{"Genesis 1:1"}},
	)
}

func TestPurgeExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedJunk(f)

	report, err := f.engine.PurgeExcluded(ctx, SweepOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Deleted)
	assert.Equal(t, 4, f.store.Len())

	report, err = f.engine.PurgeExcluded(ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Deleted)
	assert.Equal(t, map[ExclusionReason]int{
		ReasonNoRefs:    1,
		ReasonBadURL:    1,
		ReasonJunkTitle: 1,
	}, report.ByReason)

	assert.Equal(t, 1, f.store.Len())
	good, err := f.store.FindByURL(ctx, "https://example.com/good")
	require.NoError(t, err)
	assert.NotNil(t, good)
}
