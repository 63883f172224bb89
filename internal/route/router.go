// Package route picks the retrieval domain for a query.
package route

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DomainLister lists the domains that have a dedicated index
type DomainLister interface {
	ListDomains(ctx context.Context) ([]string, error)
}

// Decision is the routing outcome
type Decision struct {
	Domain string // Empty when no domain was selected
	Source string // constraint, preference, keyword or unknown
}

const indexCacheKey = "domain_indices"

// Router resolves a domain from constraints, preferences, known indices and
// keyword scoring, in that order.
type Router struct {
	rules          []model.DomainRule
	minKeywordHits int
	lister         DomainLister
	indices        *cache.Cache
	mu             sync.Mutex // Serializes index refreshes
	logger         *zap.Logger
}

// NewRouter creates a router. lister may be nil.
func NewRouter(cfg model.DomainsConfig, lister DomainLister, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.IndexCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Router{
		rules:          cfg.Rules,
		minKeywordHits: cfg.MinKeywordHits,
		lister:         lister,
		indices:        cache.New(ttl, 2*ttl),
		logger:         logger.With(zap.String("component", "router")),
	}
}

// Route picks the domain for query
func (r *Router) Route(ctx context.Context, query string, constraints, preferences model.Constraints) Decision {
	if d := strings.TrimSpace(constraints.Domain); d != "" {
		return Decision{Domain: strings.ToLower(d), Source: model.DomainSourceConstraint}
	}
	if d := strings.TrimSpace(preferences.Domain); d != "" {
		return Decision{Domain: strings.ToLower(d), Source: model.DomainSourcePreference}
	}

	q := strings.ToLower(query)
	for _, d := range r.KnownDomains(ctx) {
		if d != "" && strings.Contains(q, strings.ToLower(d)) {
			return Decision{Domain: d, Source: model.DomainSourceKeyword}
		}
	}

	if d := r.scoreKeywords(q); d != "" {
		return Decision{Domain: d, Source: model.DomainSourceKeyword}
	}
	return Decision{Source: model.DomainSourceUnknown}
}

// scoreKeywords returns the strictly best scoring domain meeting the
// minimum, first-seen on ties
func (r *Router) scoreKeywords(q string) string {
	best := ""
	bestScore := 0
	for _, rule := range r.rules {
		score := 0
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				score++
			}
		}
		for _, alias := range rule.Aliases {
			if alias != "" && strings.Contains(q, strings.ToLower(alias)) {
				score += 2
			}
		}
		if rule.Name != "" && strings.Contains(q, strings.ToLower(rule.Name)) {
			score += 2
		}
		if score > bestScore {
			bestScore = score
			best = rule.Name
		}
	}
	if best != "" && bestScore >= r.minKeywordHits {
		return best
	}
	return ""
}

// KnownDomains returns the cached list of indexed domains, refreshing it from
// the lister on a miss. Lister failures yield an empty list that is cached
// like any other result.
func (r *Router) KnownDomains(ctx context.Context) []string {
	if r.lister == nil {
		return nil
	}
	if v, ok := r.indices.Get(indexCacheKey); ok {
		return v.([]string)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring lock
	if v, ok := r.indices.Get(indexCacheKey); ok {
		return v.([]string)
	}

	domains, err := r.lister.ListDomains(ctx)
	if err != nil {
		r.logger.Warn("list domain indices failed", zap.Error(err))
		domains = []string{}
	}
	r.indices.SetDefault(indexCacheKey, domains)
	return domains
}

// Invalidate drops the cached domain list
func (r *Router) Invalidate() {
	r.indices.Delete(indexCacheKey)
}

// SearchDomains returns the domains to search. A keyword-routed domain is
// searched alone; otherwise fallbacks are appended. An empty result means the
// base namespace.
func SearchDomains(d Decision, fallbacks []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	add(d.Domain)
	if d.Source != model.DomainSourceKeyword {
		for _, f := range fallbacks {
			add(strings.TrimSpace(f))
		}
	}
	return out
}
