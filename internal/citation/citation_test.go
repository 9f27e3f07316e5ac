package citation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Work{
		{Title: "Genesis", Categories: []string{"Tanakh", "Torah"}, Chapters: []int{31, 25, 24}},
		{Title: "Song of Songs", Categories: []string{"Tanakh", "Writings"}, Chapters: []int{17, 17}},
		{Title: "Song", Categories: []string{"Liturgy"}, Chapters: []int{3}},
		{Title: "Rashi on Genesis", Categories: []string{"Tanakh", "Commentary"}, Chapters: []int{2, 2}},
		{Title: "Mishnah Sukkah", Categories: []string{"Mishnah"}},
	})
	require.NoError(t, err)
	return c
}

func TestNormalize(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Genesis 1:1", "Genesis 1:1", true},
		{"genesis   1:1", "Genesis 1:1", true},
		{"Genesis 1:1-1", "Genesis 1:1", true},
		{"Genesis 1:3-5", "Genesis 1:3-5", true},
		{"Genesis 1:30-2:3", "Genesis 1:30-2:3", true},
		{"Genesis 2", "Genesis 2", true},
		{"Genesis 2-2", "Genesis 2", true},
		{"Genesis 1-3", "Genesis 1-3", true},
		{"Genesis", "Genesis", true},
		{"Song of Songs 2:4", "Song of Songs 2:4", true},
		{"Song 1:2", "Song 1:2", true},
		{"Genesis 4:1", "", false},
		{"Genesis 1:32", "", false},
		{"Genesis 1:5-3", "", false},
		{"Genesis 2-1", "", false},
		{"Genesis 1-2:3", "", false},
		{"Exodus 1:1", "", false},
		{"", "", false},
		{"Genesis abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := c.Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentRefs(t *testing.T) {
	c := testCatalog(t)

	segs, err := c.SegmentRefs("Genesis 1:30-2:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Genesis 1:30", "Genesis 1:31", "Genesis 2:1", "Genesis 2:2"}, segs)

	segs, err = c.SegmentRefs("Rashi on Genesis")
	require.NoError(t, err)
	assert.Len(t, segs, 4)

	_, err = c.SegmentRefs("Mishnah Sukkah")
	assert.ErrorIs(t, err, ErrNoStructure)

	_, err = c.SegmentRefs("Nowhere 1:1")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestExpand(t *testing.T) {
	c := testCatalog(t)

	got := c.Expand([]string{"Genesis 1:1-2", "Genesis 1:2-3", "not a ref"})
	assert.Equal(t, []string{"Genesis 1:1", "Genesis 1:2", "Genesis 1:3"}, got)
	assert.Empty(t, c.Expand(nil))
}

func TestAnchorRefs(t *testing.T) {
	c := testCatalog(t)
	query := "Genesis 1:2-4"
	qsegs, err := c.SegmentRefs(query)
	require.NoError(t, err)

	anchors := c.AnchorRefs(query, qsegs, []string{
		"Genesis 1:3",     // inside the query
		"Genesis 1",       // contains the query
		"Genesis 1:4-6",   // partial overlap
		"Genesis 2:1",     // unrelated
		"Song of Songs 1", // other work
	})

	require.Len(t, anchors, 3)
	assert.Equal(t, "Genesis 1:3", anchors[0].Ref)
	assert.Equal(t, []string{"Genesis 1:3"}, anchors[0].Expanded)
	assert.Equal(t, "Genesis 1:2-4", anchors[1].Ref)
	assert.Equal(t, qsegs, anchors[1].Expanded)
	assert.Equal(t, "Genesis 1:4-6", anchors[2].Ref)
	assert.Equal(t, []string{"Genesis 1:4", "Genesis 1:5", "Genesis 1:6"}, anchors[2].Expanded)
}

func TestWorkMetadata(t *testing.T) {
	c := testCatalog(t)

	w, err := c.Work("Rashi on Genesis 1:2")
	require.NoError(t, err)
	assert.Equal(t, "Rashi on Genesis", w.Title)
	assert.Equal(t, "Commentary", w.PrimaryCategory())

	w, err = c.Work("Genesis 3")
	require.NoError(t, err)
	assert.Equal(t, "Tanakh", w.PrimaryCategory())

	assert.Equal(t, []string{"Genesis", "Song of Songs", "Rashi on Genesis"}, c.WorksInCategory("Tanakh"))

	segs, err := c.WorkSegments("song")
	require.NoError(t, err)
	assert.Equal(t, []string{"Song 1:1", "Song 1:2", "Song 1:3"}, segs)
}

func TestNewCatalogRejectsBadWorks(t *testing.T) {
	_, err := NewCatalog([]Work{{Title: " "}})
	assert.Error(t, err)

	_, err = NewCatalog([]Work{{Title: "A", Chapters: []int{1}}, {Title: "a"}})
	assert.Error(t, err)

	_, err = NewCatalog([]Work{{Title: "A", Chapters: []int{0}}})
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
works:
  - title: Genesis
    categories: [Tanakh, Torah]
    chapters: [31, 25]
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	got, ok := c.Normalize("genesis 2:25")
	assert.True(t, ok)
	assert.Equal(t, "Genesis 2:25", got)
}
