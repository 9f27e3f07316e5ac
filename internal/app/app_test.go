package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linker_index/internal/config"
	"linker_index/internal/models"
	"linker_index/internal/webpages"
)

const testCatalog = `works:
  - title: Genesis
    categories: [Tanakh, Torah]
    chapters: [31, 25, 24]
`

func testConfig(t *testing.T) *config.IndexConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	cfg, err := config.Parse([]byte(`
db:
  store: memory
registry:
  sites:
    - name: Example
      domains: [example.com]
      is_whitelisted: true
    - name: Quiet
      domains: [quiet.org]
      is_whitelisted: true
`))
	require.NoError(t, err)
	cfg.Citations.CatalogFile = path
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewIndexAppRequiresCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Citations.CatalogFile = ""
	_, err := NewIndexApp(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg.Citations.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewIndexApp(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestMaintenanceOverMemoryStore(t *testing.T) {
	a, err := NewIndexApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	ctx := context.Background()

	for _, u := range []string{"http://example.com/a", "https://example.com/a#x", "https://example.com/b"} {
		_, err := a.Engine().Ingest(ctx, models.LinkerUpdate{URL: u, Title: "T", Refs: []string{"Genesis 1:1"}})
		require.NoError(t, err)
	}

	renorm, err := a.Renormalize(ctx, webpages.SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, webpages.RenormalizeReport{}, renorm)

	dedupe, err := a.Dedupe(ctx, webpages.SweepOptions{DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, dedupe.Groups)

	purge, err := a.Purge(ctx, webpages.SweepOptions{DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, purge.Deleted)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPages)

	stalled, err := a.Stalled(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "quiet.org", stalled[0].Domain)
	assert.True(t, stalled[0].NoPages)
}

func TestScheduler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Renormalize = "0 3 * * *"
	cfg.Schedule.Purge = "30 3 * * 0"

	a, err := NewIndexApp(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	c, err := a.Scheduler(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	cfg.Schedule.Stalled = "not a cron spec"
	_, err = a.Scheduler(context.Background())
	assert.Error(t, err)
}

func TestRouterHealth(t *testing.T) {
	a, err := NewIndexApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
