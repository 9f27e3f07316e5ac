package webpages

import (
	"bytes"

	"linker_index/internal/models"
)

// Merge combines records describing the same page. Hits are summed. The most
// recently updated record wins and its content is taken as a whole, never
// field by field. Equal timestamps go to the greater ObjectID, then to the
// later argument. The result is a copy carrying the winner's ID and url.
func Merge(pages ...*models.WebPage) *models.WebPage {
	var winner *models.WebPage
	hits := 0
	for _, p := range pages {
		if p == nil {
			continue
		}
		hits += p.LinkerHits
		if winner == nil || beats(p, winner) {
			winner = p
		}
	}
	if winner == nil {
		return nil
	}

	merged := winner.Clone()
	merged.LinkerHits = hits
	return merged
}

func beats(p, current *models.WebPage) bool {
	if !p.LastUpdated.Equal(current.LastUpdated) {
		return p.LastUpdated.After(current.LastUpdated)
	}
	if c := bytes.Compare(p.ID[:], current.ID[:]); c != 0 {
		return c > 0
	}
	return true
}
