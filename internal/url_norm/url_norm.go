package urlnorm

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Rule is one rewrite in the normalization catalogue. The set is closed: sites
// reference rules by name in the registry and names are resolved with ParseRule.
type Rule int

const (
	UseHTTPS Rule = iota + 1
	RemoveHash
	RemoveURLParams
	RemoveUTMParams
	RemoveFbclidParam
	AddWWW
	RemoveWWW
	RemoveMediawikiParams
	RemoveSortParam
	RemoveAllParamsAfterID
)

var (
	reHTTP          = regexp.MustCompile(`^http://`)
	reHash          = regexp.MustCompile(`#.*`)
	reParams        = regexp.MustCompile(`\?.+`)
	reUTM           = regexp.MustCompile(`\?utm_.+`)
	reFbclid        = regexp.MustCompile(`\?fbclid=.+`)
	reScheme        = regexp.MustCompile(`^https?://`)
	reWWW           = regexp.MustCompile(`^(https?://)www\.`)
	reMediawiki     = regexp.MustCompile(`&amp;.+`)
	reSort          = regexp.MustCompile(`\?sort=.+`)
	reParamsAfterID = regexp.MustCompile(`(\?id=\d+)\D.*$`)
)

type ruleDef struct {
	name    string
	rewrite func(string) string
}

var rules = [...]ruleDef{
	UseHTTPS:               {"use https", func(u string) string { return reHTTP.ReplaceAllString(u, "https://") }},
	RemoveHash:             {"remove hash", func(u string) string { return reHash.ReplaceAllString(u, "") }},
	RemoveURLParams:        {"remove url params", func(u string) string { return reParams.ReplaceAllString(u, "") }},
	RemoveUTMParams:        {"remove utm params", func(u string) string { return reUTM.ReplaceAllString(u, "") }},
	RemoveFbclidParam:      {"remove fbclid param", func(u string) string { return reFbclid.ReplaceAllString(u, "") }},
	AddWWW:                 {"add www", addWWW},
	RemoveWWW:              {"remove www", func(u string) string { return reWWW.ReplaceAllString(u, "${1}") }},
	RemoveMediawikiParams:  {"remove mediawiki params", func(u string) string { return reMediawiki.ReplaceAllString(u, "") }},
	RemoveSortParam:        {"remove sort param", func(u string) string { return reSort.ReplaceAllString(u, "") }},
	RemoveAllParamsAfterID: {"remove all params after id", func(u string) string { return reParamsAfterID.ReplaceAllString(u, "${1}") }},
}

func addWWW(u string) string {
	scheme := reScheme.FindString(u)
	if scheme == "" || strings.HasPrefix(u[len(scheme):], "www.") {
		return u
	}
	return scheme + "www." + u[len(scheme):]
}

// GlobalRules run on every URL before any site rules.
var GlobalRules = []Rule{UseHTTPS, RemoveHash, RemoveUTMParams, RemoveFbclidParam}

func (r Rule) valid() bool {
	return r >= UseHTTPS && int(r) < len(rules)
}

func (r Rule) String() string {
	if !r.valid() {
		return fmt.Sprintf("Rule(%d)", int(r))
	}
	return rules[r].name
}

func (r Rule) Apply(u string) string {
	if !r.valid() {
		return u
	}
	return rules[r].rewrite(u)
}

// ParseRule maps a registry rule name onto its Rule.
func ParseRule(name string) (Rule, error) {
	for r := UseHTTPS; r.valid(); r++ {
		if rules[r].name == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown normalization rule %q", name)
}

// RuleSource supplies the extra rules of the site a domain belongs to.
type RuleSource interface {
	SiteRules(ctx context.Context, domain string) ([]Rule, error)
}

// maxPasses bounds the fixpoint loop in Normalize.
const maxPasses = 8

type Normalizer struct {
	sites  RuleSource
	logger *zap.Logger
}

// NewNormalizer returns a Normalizer. A nil source applies GlobalRules only.
func NewNormalizer(sites RuleSource, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{sites: sites, logger: logger}
}

// Normalize returns the canonical form of raw. The pipeline is re-run on its
// own output until it stops changing, because site rules may rewrite the host
// and with it the set of rules that applies. Conflicting site rules can make
// the output cycle instead; the lexically smallest url of the cycle is then
// the canonical one, whichever member the input led to.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (string, error) {
	seen := []string{raw}
	cur := raw
	for pass := 0; pass < maxPasses; pass++ {
		next, err := n.apply(ctx, cur)
		if err != nil {
			return "", err
		}
		if next == cur {
			return cur, nil
		}
		for i, prev := range seen {
			if prev == next {
				return n.breakCycle(seen[i:]), nil
			}
		}
		seen = append(seen, next)
		cur = next
	}
	return cur, nil
}

func (n *Normalizer) breakCycle(cycle []string) string {
	canonical := cycle[0]
	for _, u := range cycle[1:] {
		if u < canonical {
			canonical = u
		}
	}
	n.logger.Warn("site normalization rules rewrite urls in a cycle",
		zap.Strings("urls", cycle), zap.String("canonical", canonical))
	return canonical
}

func (n *Normalizer) apply(ctx context.Context, u string) (string, error) {
	pipeline := GlobalRules
	if n.sites != nil {
		siteRules, err := n.sites.SiteRules(ctx, DomainForURL(u))
		if err != nil {
			return "", fmt.Errorf("site rules for %q: %w", u, err)
		}
		if len(siteRules) > 0 {
			pipeline = append(append([]Rule(nil), GlobalRules...), siteRules...)
		}
	}
	for _, r := range pipeline {
		u = r.Apply(u)
	}
	return u, nil
}

// DomainForURL returns the host (with port, if any) of u, or "" if u does not parse.
func DomainForURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Host
}
