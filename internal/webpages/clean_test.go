package webpages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linker_index/internal/models"
)

func TestCleanTitle(t *testing.T) {
	suffixSite := &models.Website{Name: "Example", TitleBranding: []string{"Example Blog"}}
	prefixSite := &models.Website{Name: "Prefix Press", InitialTitleBranding: true}

	tests := []struct {
		name  string
		title string
		site  *models.Website
		want  string
	}{
		{"no site", "My Article - Example", nil, "My Article - Example"},
		{"dash suffix", "My Article - Example", suffixSite, "My Article"},
		{"pipe branding", "My Article | Example Blog", suffixSite, "My Article"},
		{"stacked branding", "My Article - Example | Example Blog", suffixSite, "My Article"},
		{"en dash", "Tom &amp; Jerry – Example", suffixSite, "Tom & Jerry"},
		{"bullet", "Notes • Example", suffixSite, "Notes"},
		{"brand inside title", "Example - My Article", suffixSite, "Example - My Article"},
		{"only branding", " - Example", suffixSite, "Example"},
		{"prefix", "Prefix Press - Story", prefixSite, "Story"},
		{"prefix colon", "Prefix Press: Story", prefixSite, "Story"},
		{"prefix guillemet", "Prefix Press » Story", prefixSite, "Story"},
		{"prefix ignores suffix", "Story - Prefix Press", prefixSite, "Story - Prefix Press"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTitle(tt.title, tt.site))
		})
	}
}

func TestCleanDescription(t *testing.T) {
	d := CleanDescription("Rashi &amp; Ramban&nbsp;on creation")
	require.NotNil(t, d)
	assert.Equal(t, "Rashi & Ramban on creation", *d)

	d = CleanDescription("")
	require.NotNil(t, d)
	assert.Equal(t, "", *d)

	assert.Nil(t, CleanDescription("var x = 1; */ more"))
	assert.Nil(t, CleanDescription("*********** banner"))
}
