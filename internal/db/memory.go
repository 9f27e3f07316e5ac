package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"linker_index/internal/models"
)

// MemoryStore keeps webpages and websites in process. It enforces url
// uniqueness on Insert and Replace like the MongoDB unique index does. Seeding
// duplicate urls drops that index, as a failed index build does at startup.
type MemoryStore struct {
	mu       sync.RWMutex
	pages    map[primitive.ObjectID]*models.WebPage
	websites []models.Website
	longURLs []*models.WebPage
	queryErr error
	unique   bool
}

func NewMemoryStore(websites ...models.Website) *MemoryStore {
	s := &MemoryStore{pages: make(map[primitive.ObjectID]*models.WebPage), unique: true}
	for _, w := range websites {
		if w.ID.IsZero() {
			w.ID = primitive.NewObjectID()
		}
		s.websites = append(s.websites, w)
	}
	return s
}

// Seed stores pages as given, without the uniqueness check. A duplicate url
// leaves the store without a unique url index from then on.
func (s *MemoryStore) Seed(pages ...*models.WebPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pages {
		c := p.Clone()
		if c.ID.IsZero() {
			c.ID = primitive.NewObjectID()
		}
		p.ID = c.ID
		if s.urlTaken(c.URL, c.ID) {
			s.unique = false
		}
		s.pages[c.ID] = c
	}
}

// UniqueURLs reports whether url uniqueness is still enforced.
func (s *MemoryStore) UniqueURLs() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unique
}

// FailQueries makes FindByExpandedRefs return err until cleared with nil.
func (s *MemoryStore) FailQueries(err error) {
	s.mu.Lock()
	s.queryErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *MemoryStore) LongURLs() []*models.WebPage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WebPage, 0, len(s.longURLs))
	for _, p := range s.longURLs {
		out = append(out, p.Clone())
	}
	return out
}

func (s *MemoryStore) sorted() []*models.WebPage {
	out := make([]*models.WebPage, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (s *MemoryStore) urlTaken(url string, except primitive.ObjectID) bool {
	for id, p := range s.pages {
		if p.URL == url && id != except {
			return true
		}
	}
	return false
}

func (s *MemoryStore) FindByURL(_ context.Context, url string) (*models.WebPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.sorted() {
		if p.URL == url {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.WebPage, error) {
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WebPage
	for _, p := range s.sorted() {
		if want[p.ID] {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, page *models.WebPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unique && s.urlTaken(page.URL, primitive.NilObjectID) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateURL, page.URL)
	}
	page.ID = primitive.NewObjectID()
	s.pages[page.ID] = page.Clone()
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, page *models.WebPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[page.ID]; !ok {
		return fmt.Errorf("webpage %s: %w", page.ID.Hex(), models.ErrNotFound)
	}
	if s.unique && s.urlTaken(page.URL, page.ID) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateURL, page.URL)
	}
	s.pages[page.ID] = page.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	delete(s.pages, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, ids []primitive.ObjectID) error {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.pages, id)
	}
	s.mu.Unlock()
	return nil
}

// ForEach visits a snapshot taken at call time, so fn may write to the store.
func (s *MemoryStore) ForEach(ctx context.Context, fn func(*models.WebPage) error) error {
	s.mu.RLock()
	pages := s.sorted()
	snapshot := make([]*models.WebPage, 0, len(pages))
	for _, p := range pages {
		snapshot = append(snapshot, p.Clone())
	}
	s.mu.RUnlock()

	for _, p := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) FindByExpandedRefs(_ context.Context, segments []string) ([]*models.WebPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}

	want := make(map[string]bool, len(segments))
	for _, seg := range segments {
		want[seg] = true
	}

	var out []*models.WebPage
	for _, p := range s.sorted() {
		for _, r := range p.ExpandedRefs {
			if want[r] {
				out = append(out, p.Clone())
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) DuplicateURLGroups(_ context.Context) ([]models.DuplicateGroup, error) {
	s.mu.RLock()
	byURL := make(map[string][]primitive.ObjectID)
	var order []string
	for _, p := range s.sorted() {
		if _, ok := byURL[p.URL]; !ok {
			order = append(order, p.URL)
		}
		byURL[p.URL] = append(byURL[p.URL], p.ID)
	}
	s.mu.RUnlock()

	var groups []models.DuplicateGroup
	for _, u := range order {
		if ids := byURL[u]; len(ids) > 1 {
			groups = append(groups, models.DuplicateGroup{URL: u, IDs: ids})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].IDs) > len(groups[j].IDs)
	})
	return groups, nil
}

func (s *MemoryStore) QuarantineLongURL(_ context.Context, page *models.WebPage) error {
	raw := page.Clone()
	raw.ID = primitive.NilObjectID
	s.mu.Lock()
	s.longURLs = append(s.longURLs, raw)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestForDomain(_ context.Context, domain string) (*models.WebPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.WebPage
	for _, p := range s.sorted() {
		if !strings.Contains(p.URL, domain) {
			continue
		}
		if latest == nil || p.LastUpdated.After(latest.LastUpdated) {
			latest = p
		}
	}
	return latest.Clone(), nil
}

func (s *MemoryStore) LoadWebsites(_ context.Context) ([]models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Website(nil), s.websites...), nil
}

// SetWebsites replaces the registry contents. Callers invalidate the registry
// cache themselves.
func (s *MemoryStore) SetWebsites(websites []models.Website) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.websites = s.websites[:0]
	for _, w := range websites {
		if w.ID.IsZero() {
			w.ID = primitive.NewObjectID()
		}
		s.websites = append(s.websites, w)
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
