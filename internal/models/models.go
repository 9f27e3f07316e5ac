package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateURL  = errors.New("a webpage with this url already exists")
	ErrQueryRejected = errors.New("query rejected by store")
)

// WebPage is one tracked third-party page. URL is always the canonical form.
type WebPage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	URL          string             `bson:"url" json:"url"`
	Title        string             `bson:"title" json:"title"`
	Description  string             `bson:"description" json:"description"`
	Refs         []string           `bson:"refs" json:"refs"`
	ExpandedRefs []string           `bson:"expandedRefs" json:"expandedRefs"`
	LastUpdated  time.Time          `bson:"lastUpdated" json:"lastUpdated"`
	LinkerHits   int                `bson:"linkerHits" json:"linkerHits"`
}

// Clone returns a deep copy so callers can mutate slices freely.
func (w *WebPage) Clone() *WebPage {
	if w == nil {
		return nil
	}
	c := *w
	c.Refs = append([]string(nil), w.Refs...)
	c.ExpandedRefs = append([]string(nil), w.ExpandedRefs...)
	return &c
}

type Website struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" yaml:"-"`
	Name                 string             `bson:"name" yaml:"name"`
	Domains              []string           `bson:"domains" yaml:"domains"`
	IsWhitelisted        bool               `bson:"is_whitelisted" yaml:"is_whitelisted"`
	BadURLs              []string           `bson:"bad_urls,omitempty" yaml:"bad_urls"`
	NormalizationRules   []string           `bson:"normalization_rules,omitempty" yaml:"normalization_rules"`
	TitleBranding        []string           `bson:"title_branding,omitempty" yaml:"title_branding"`
	InitialTitleBranding bool               `bson:"initial_title_branding,omitempty" yaml:"initial_title_branding"`
	ExcludeFromTracking  bool               `bson:"exclude_from_tracking,omitempty" yaml:"exclude_from_tracking"`
}

// LinkerUpdate is the payload reported by the linker for one page.
type LinkerUpdate struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
	// Description is nil when the report leaves it out; the stored one is kept.
	Description *string  `json:"description"`
	Refs        []string `json:"refs"`
}

type ClientWebPage struct {
	URL               string   `json:"url"`
	Domain            string   `json:"domain"`
	SiteName          string   `json:"siteName"`
	FaviconURL        string   `json:"faviconUrl"`
	Title             string   `json:"title"`
	Description       *string  `json:"description"`
	AnchorRef         string   `json:"anchorRef"`
	AnchorRefExpanded []string `json:"anchorRefExpanded"`
}

type IngestResult string

const (
	ResultSaved    IngestResult = "saved"
	ResultExcluded IngestResult = "excluded"
)

// DuplicateGroup lists the records that share one literal url.
type DuplicateGroup struct {
	URL string
	IDs []primitive.ObjectID
}
