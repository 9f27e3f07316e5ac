package webpages

import (
	"context"

	"linker_index/internal/models"
	"linker_index/internal/registry"
	urlnorm "linker_index/internal/url_norm"
)

const faviconService = "https://www.google.com/s2/favicons?domain="

// PageInfo holds the attributes derived from a page's url and the registry.
// None of them is persisted.
type PageInfo struct {
	Domain      string
	SiteName    string
	Whitelisted bool
	Favicon     string
	// Site is nil when the domain belongs to no registered site.
	Site *models.Website
}

func FaviconURL(domain string) string {
	return faviconService + domain
}

func describe(snap *registry.Snapshot, page *models.WebPage) PageInfo {
	domain := urlnorm.DomainForURL(page.URL)
	info := PageInfo{
		Domain:   domain,
		SiteName: domain,
		Favicon:  FaviconURL(domain),
	}
	if site := snap.Classify(domain); site != nil {
		info.Site = site
		info.SiteName = site.Name
		info.Whitelisted = site.IsWhitelisted
	}
	return info
}

func (e *Engine) Describe(ctx context.Context, page *models.WebPage) (PageInfo, error) {
	snap, err := e.sites.Snapshot(ctx)
	if err != nil {
		return PageInfo{}, err
	}
	return describe(snap, page), nil
}
