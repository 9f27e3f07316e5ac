// Package citation resolves citation strings against a catalogue of works.
//
// A citation names a work and optionally a chapter or verse range inside it
// ("Genesis", "Genesis 1", "Genesis 1:3-5", "Genesis 1:30-2:3"). Segments are
// the finest-grained citations, one per verse. The index stores the segment
// expansion of every citation a webpage carries so that a query for any
// citation can be answered with a set-intersection lookup.
package citation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

var (
	ErrInvalidRef  = errors.New("invalid citation")
	ErrNoStructure = errors.New("work has no chapter structure")
)

// Library is the citation algebra the webpage index depends on.
type Library interface {
	// Normalize returns the canonical form of ref, or false if it does not parse.
	Normalize(ref string) (string, bool)
	// Expand returns the sorted union of the segment expansions of refs.
	// Refs that do not parse are ignored.
	Expand(refs []string) []string
	// SegmentRefs lists the segments ref covers, in reading order.
	SegmentRefs(ref string) ([]string, error)
	// AnchorRefs returns, for each of refs overlapping the query, the most
	// specific citation shared by the ref and the query.
	AnchorRefs(query string, querySegments []string, refs []string) []Anchor
	Work(ref string) (Work, error)
	WorksInCategory(category string) []string
	WorkSegments(title string) ([]string, error)
}

type Anchor struct {
	Ref      string
	Expanded []string
}

type Work struct {
	Title      string   `yaml:"title"`
	Categories []string `yaml:"categories"`
	// Chapters holds the number of verses in each chapter.
	Chapters []int `yaml:"chapters"`
}

// PrimaryCategory is "Commentary" for commentaries, otherwise the first category.
func (w Work) PrimaryCategory() string {
	for _, c := range w.Categories {
		if c == "Commentary" {
			return c
		}
	}
	if len(w.Categories) == 0 {
		return ""
	}
	return w.Categories[0]
}

type catalogFile struct {
	Works []Work `yaml:"works"`
}

// Catalog is a Library backed by a static list of works.
type Catalog struct {
	works   []*Work
	byTitle map[string]*Work
	// matchOrder holds works longest title first so "Song of Songs 2" is not
	// captured by a shorter title sharing its prefix.
	matchOrder []*Work
}

var _ Library = (*Catalog)(nil)

func NewCatalog(works []Work) (*Catalog, error) {
	c := &Catalog{byTitle: make(map[string]*Work, len(works))}
	for i := range works {
		w := works[i]
		w.Title = strings.TrimSpace(w.Title)
		if w.Title == "" {
			return nil, fmt.Errorf("work %d has no title", i)
		}
		key := strings.ToLower(w.Title)
		if _, dup := c.byTitle[key]; dup {
			return nil, fmt.Errorf("duplicate work title %q", w.Title)
		}
		for ch, n := range w.Chapters {
			if n <= 0 {
				return nil, fmt.Errorf("work %q chapter %d has %d verses", w.Title, ch+1, n)
			}
		}
		c.works = append(c.works, &w)
		c.byTitle[key] = &w
	}

	c.matchOrder = append([]*Work(nil), c.works...)
	sort.SliceStable(c.matchOrder, func(i, j int) bool {
		return len(c.matchOrder[i].Title) > len(c.matchOrder[j].Title)
	})
	return c, nil
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return NewCatalog(f.Works)
}

// span is a parsed citation. Chapters and verses are 1-based and inclusive.
type span struct {
	work         *Work
	whole        bool
	chapterLevel bool
	startCh      int
	startV       int
	endCh        int
	endV         int
}

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reSection = regexp.MustCompile(`^(\d+)(?::(\d+))?(?:-(\d+)(?::(\d+))?)?$`)
)

func (c *Catalog) parse(ref string) (*span, error) {
	s := reSpaces.ReplaceAllString(strings.TrimSpace(ref), " ")
	lower := strings.ToLower(s)

	for _, w := range c.matchOrder {
		title := strings.ToLower(w.Title)
		if lower == title {
			return c.wholeWork(w)
		}
		if strings.HasPrefix(lower, title+" ") {
			return c.section(w, s[len(title)+1:])
		}
	}
	return nil, fmt.Errorf("%w: unknown work in %q", ErrInvalidRef, ref)
}

func (c *Catalog) wholeWork(w *Work) (*span, error) {
	if len(w.Chapters) == 0 {
		return &span{work: w, whole: true}, nil
	}
	last := len(w.Chapters)
	return &span{
		work: w, whole: true, chapterLevel: true,
		startCh: 1, startV: 1,
		endCh: last, endV: w.Chapters[last-1],
	}, nil
}

func (c *Catalog) section(w *Work, rest string) (*span, error) {
	m := reSection.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("%w: cannot parse section %q of %s", ErrInvalidRef, rest, w.Title)
	}
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	sp := &span{work: w, startCh: num(m[1])}
	switch {
	case m[2] == "":
		if m[4] != "" {
			return nil, fmt.Errorf("%w: mixed chapter and verse range %q", ErrInvalidRef, rest)
		}
		sp.chapterLevel = true
		sp.endCh = sp.startCh
		if m[3] != "" {
			sp.endCh = num(m[3])
		}
		if err := sp.checkChapters(); err != nil {
			return nil, err
		}
		sp.startV = 1
		sp.endV = w.Chapters[sp.endCh-1]
	default:
		sp.startV = num(m[2])
		switch {
		case m[3] != "" && m[4] != "":
			sp.endCh, sp.endV = num(m[3]), num(m[4])
		case m[3] != "":
			sp.endCh, sp.endV = sp.startCh, num(m[3])
		default:
			sp.endCh, sp.endV = sp.startCh, sp.startV
		}
		if err := sp.checkChapters(); err != nil {
			return nil, err
		}
		if sp.startV < 1 || sp.startV > w.Chapters[sp.startCh-1] ||
			sp.endV < 1 || sp.endV > w.Chapters[sp.endCh-1] {
			return nil, fmt.Errorf("%w: verse out of range in %s %s", ErrInvalidRef, w.Title, rest)
		}
		if sp.startCh == sp.endCh && sp.endV < sp.startV {
			return nil, fmt.Errorf("%w: reversed range %s %s", ErrInvalidRef, w.Title, rest)
		}
	}
	return sp, nil
}

func (sp *span) checkChapters() error {
	n := len(sp.work.Chapters)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoStructure, sp.work.Title)
	}
	if sp.startCh < 1 || sp.startCh > n || sp.endCh < 1 || sp.endCh > n {
		return fmt.Errorf("%w: chapter out of range in %s", ErrInvalidRef, sp.work.Title)
	}
	if sp.endCh < sp.startCh {
		return fmt.Errorf("%w: reversed chapter range in %s", ErrInvalidRef, sp.work.Title)
	}
	return nil
}

func (sp *span) normal() string {
	t := sp.work.Title
	switch {
	case sp.whole:
		return t
	case sp.chapterLevel && sp.startCh == sp.endCh:
		return fmt.Sprintf("%s %d", t, sp.startCh)
	case sp.chapterLevel:
		return fmt.Sprintf("%s %d-%d", t, sp.startCh, sp.endCh)
	case sp.startCh == sp.endCh && sp.startV == sp.endV:
		return fmt.Sprintf("%s %d:%d", t, sp.startCh, sp.startV)
	case sp.startCh == sp.endCh:
		return fmt.Sprintf("%s %d:%d-%d", t, sp.startCh, sp.startV, sp.endV)
	default:
		return fmt.Sprintf("%s %d:%d-%d:%d", t, sp.startCh, sp.startV, sp.endCh, sp.endV)
	}
}

func (sp *span) segments() ([]string, error) {
	if len(sp.work.Chapters) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStructure, sp.work.Title)
	}
	var out []string
	for ch := sp.startCh; ch <= sp.endCh; ch++ {
		first, last := 1, sp.work.Chapters[ch-1]
		if ch == sp.startCh {
			first = sp.startV
		}
		if ch == sp.endCh {
			last = sp.endV
		}
		for v := first; v <= last; v++ {
			out = append(out, fmt.Sprintf("%s %d:%d", sp.work.Title, ch, v))
		}
	}
	return out, nil
}

func (c *Catalog) Normalize(ref string) (string, bool) {
	sp, err := c.parse(ref)
	if err != nil {
		return "", false
	}
	return sp.normal(), true
}

func (c *Catalog) SegmentRefs(ref string) ([]string, error) {
	sp, err := c.parse(ref)
	if err != nil {
		return nil, err
	}
	return sp.segments()
}

func (c *Catalog) Expand(refs []string) []string {
	seen := make(map[string]struct{})
	for _, ref := range refs {
		segs, err := c.SegmentRefs(ref)
		if err != nil {
			continue
		}
		for _, s := range segs {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) AnchorRefs(query string, querySegments []string, refs []string) []Anchor {
	normalQuery, ok := c.Normalize(query)
	if !ok {
		return nil
	}
	qset := make(map[string]struct{}, len(querySegments))
	for _, s := range querySegments {
		qset[s] = struct{}{}
	}

	var anchors []Anchor
	for _, ref := range refs {
		segs, err := c.SegmentRefs(ref)
		if err != nil {
			continue
		}
		shared := 0
		for _, s := range segs {
			if _, ok := qset[s]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		// The page cites something broader than the query: the query is the anchor.
		if shared == len(qset) && len(segs) > len(qset) {
			anchors = append(anchors, Anchor{Ref: normalQuery, Expanded: append([]string(nil), querySegments...)})
			continue
		}
		normalRef, _ := c.Normalize(ref)
		anchors = append(anchors, Anchor{Ref: normalRef, Expanded: segs})
	}
	return anchors
}

func (c *Catalog) Work(ref string) (Work, error) {
	sp, err := c.parse(ref)
	if err != nil {
		return Work{}, err
	}
	return *sp.work, nil
}

func (c *Catalog) WorksInCategory(category string) []string {
	var titles []string
	for _, w := range c.works {
		for _, cat := range w.Categories {
			if cat == category {
				titles = append(titles, w.Title)
				break
			}
		}
	}
	return titles
}

func (c *Catalog) WorkSegments(title string) ([]string, error) {
	w, ok := c.byTitle[strings.ToLower(strings.TrimSpace(title))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown work %q", ErrInvalidRef, title)
	}
	sp, err := c.wholeWork(w)
	if err != nil {
		return nil, err
	}
	return sp.segments()
}
