// Package plan expands a raw query into an intent, sub-queries and
// retrieval constraints.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/cache"
	"github.com/atikulmunna/sagrag/internal/llm"
	"github.com/atikulmunna/sagrag/internal/model"
	"go.uber.org/zap"
)

// Completer is the text-completion capability used for planning
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Options tunes the planner
type Options struct {
	Timeout   time.Duration
	MaxTokens int
	CacheTTL  time.Duration
}

// Planner produces a Plan for every query. It never fails.
type Planner struct {
	llm    Completer
	cache  cache.Cache
	opts   Options
	logger *zap.Logger
}

// NewPlanner creates a planner. llm and c may be nil.
func NewPlanner(llm Completer, c cache.Cache, opts Options, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	return &Planner{
		llm:    llm,
		cache:  c,
		opts:   opts,
		logger: logger.With(zap.String("component", "planner")),
	}
}

// llmPlan is the loose shape accepted from the model
type llmPlan struct {
	Intent      string          `json:"intent"`
	Hypotheses  []string        `json:"hypotheses"`
	Queries     []string        `json:"queries"`
	Constraints json.RawMessage `json:"constraints"`
}

// Plan expands query. LLM failures fall back to the rule table.
func (p *Planner) Plan(ctx context.Context, query string) model.Plan {
	key := cache.CacheKey("plan", query)
	if p.cache != nil {
		var cached model.Plan
		if cache.GetJSON(p.cache, key, &cached) && len(cached.Queries) > 0 {
			cached.Source = "cache"
			return cached
		}
	}

	plan, err := p.planWithLLM(ctx, query)
	if err != nil {
		p.logger.Debug("planner fallback to rules", zap.Error(err))
		return RulePlan(query)
	}

	if p.cache != nil {
		if err := cache.SetJSON(p.cache, key, plan, p.opts.CacheTTL); err != nil {
			p.logger.Warn("plan cache write failed", zap.Error(err))
		}
	}
	return plan
}

func (p *Planner) planWithLLM(ctx context.Context, query string) (model.Plan, error) {
	if p.llm == nil {
		return model.Plan{}, llm.ErrDisabled
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	out, err := p.llm.Complete(ctx, buildPrompt(query), p.opts.MaxTokens)
	if err != nil {
		return model.Plan{}, fmt.Errorf("plan completion: %w", err)
	}

	var raw llmPlan
	if err := llm.ExtractJSON(out, &raw); err != nil {
		return model.Plan{}, err
	}

	plan := model.Plan{
		Intent:     strings.TrimSpace(raw.Intent),
		Hypotheses: raw.Hypotheses,
		Queries:    cleanQueries(raw.Queries, query),
		Source:     "llm",
	}
	if len(raw.Constraints) > 0 {
		// Malformed constraints are ignored rather than discarding the plan
		if err := json.Unmarshal(raw.Constraints, &plan.Constraints); err != nil {
			p.logger.Debug("ignoring planner constraints", zap.Error(err))
			plan.Constraints = model.Constraints{}
		}
	}
	if plan.Intent == "" {
		plan.Intent = "general"
	}
	return plan, nil
}

func buildPrompt(query string) string {
	return fmt.Sprintf(`You are a Speculative Query Planner for a RAG system.

User query:
"""%s"""

Return JSON with keys:
{ "intent": "...", "hypotheses": [...], "queries": [...], "constraints": {} }
`, query)
}

// cleanQueries trims and deduplicates sub-queries, defaulting to the raw query
func cleanQueries(queries []string, raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	if len(out) == 0 {
		out = []string{raw}
	}
	return out
}

// fearTerms trigger the Stoic guidance expansion
var fearTerms = []string{"fear", "anxiety", "worry"}

// RulePlan is the deterministic fallback plan
func RulePlan(query string) model.Plan {
	plan := model.Plan{
		Intent: "general",
		Source: "rules",
	}

	lower := strings.ToLower(query)
	for _, term := range fearTerms {
		if strings.Contains(lower, term) {
			plan.Intent = "stoic-guidance"
			plan.Hypotheses = []string{"User seeks Stoic emotional guidance"}
			plan.Queries = []string{"Stoic advice on fear", "Seneca fear wisdom"}
			break
		}
	}

	if len(plan.Queries) == 0 {
		plan.Queries = []string{query}
	}
	return plan
}
