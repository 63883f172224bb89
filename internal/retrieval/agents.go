package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/model"
	"go.uber.org/zap"
)

// VectorBackend searches a vector collection
type VectorBackend interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]model.RetrievalHit, error)
}

// LexicalBackend searches a lexical index with a query DSL object
type LexicalBackend interface {
	Search(ctx context.Context, index string, query map[string]any, size int) ([]model.RetrievalHit, error)
}

// VectorAgent embeds the sub-query and searches the qualified collection
type VectorAgent struct {
	embedder Embedder
	backend  VectorBackend
	ns       Namespaces
	logger   *zap.Logger
}

// NewVectorAgent creates a vector agent
func NewVectorAgent(embedder Embedder, backend VectorBackend, ns Namespaces, logger *zap.Logger) *VectorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorAgent{embedder: embedder, backend: backend, ns: ns, logger: logger.With(zap.String("agent", model.AgentVector))}
}

// Name implements Agent
func (a *VectorAgent) Name() string { return model.AgentVector }

// Search implements Agent
func (a *VectorAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	vector, err := a.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return withBaseFallback(ctx, a.logger, a.ns.Collection(req.Domain, req.Tenant), a.ns.BaseCollection,
		func(ctx context.Context, collection string) ([]model.RetrievalHit, error) {
			return a.backend.Search(ctx, collection, vector, req.TopK)
		})
}

// LexicalAgent runs a full-text match on the qualified index
type LexicalAgent struct {
	backend LexicalBackend
	ns      Namespaces
	logger  *zap.Logger
}

// NewLexicalAgent creates a lexical agent
func NewLexicalAgent(backend LexicalBackend, ns Namespaces, logger *zap.Logger) *LexicalAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LexicalAgent{backend: backend, ns: ns, logger: logger.With(zap.String("agent", model.AgentLexical))}
}

// Name implements Agent
func (a *LexicalAgent) Name() string { return model.AgentLexical }

// Search implements Agent
func (a *LexicalAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	return lexicalSearch(ctx, a.backend, a.ns, a.logger, req, matchText(req.Query))
}

func matchText(q string) map[string]any {
	return map[string]any{"match": map[string]any{"text": map[string]any{"query": q}}}
}

func lexicalSearch(ctx context.Context, backend LexicalBackend, ns Namespaces, logger *zap.Logger, req Request, query map[string]any) ([]model.RetrievalHit, error) {
	return withBaseFallback(ctx, logger, ns.Index(req.Domain, req.Tenant), ns.BaseIndex,
		func(ctx context.Context, index string) ([]model.RetrievalHit, error) {
			return backend.Search(ctx, index, query, req.TopK)
		})
}

const maxLineChars = 400

// StructuredAgent pulls tabular and key/value lines out of lexical hits
type StructuredAgent struct {
	backend  LexicalBackend
	ns       Namespaces
	maxLines int
	logger   *zap.Logger
}

// NewStructuredAgent creates a structured agent emitting at most maxLines
// lines per parent hit
func NewStructuredAgent(backend LexicalBackend, ns Namespaces, maxLines int, logger *zap.Logger) *StructuredAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLines <= 0 {
		maxLines = 3
	}
	return &StructuredAgent{backend: backend, ns: ns, maxLines: maxLines, logger: logger.With(zap.String("agent", model.AgentStructured))}
}

// Name implements Agent
func (a *StructuredAgent) Name() string { return model.AgentStructured }

// Search implements Agent. Each extracted line becomes a sub-hit with id
// "{parent}::line::{n}"; the total never exceeds TopK.
func (a *StructuredAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	base, err := lexicalSearch(ctx, a.backend, a.ns, a.logger, req, matchText(req.Query))
	if err != nil {
		return nil, err
	}

	tokens := extract.QueryTokens(req.Query)
	var out []model.RetrievalHit
	for _, hit := range base {
		for i, line := range StructuredLines(hit.Payload.Text, tokens, a.maxLines) {
			if req.TopK > 0 && len(out) >= req.TopK {
				return out, nil
			}
			out = append(out, model.RetrievalHit{
				ID:    fmt.Sprintf("%s::line::%d", hit.ID, i),
				Score: hit.Score,
				Payload: model.Payload{
					Text:       line,
					Source:     hit.Payload.Source,
					Timestamp:  hit.Payload.Timestamp,
					SourceType: hit.Payload.SourceType,
					Domain:     hit.Payload.Domain,
				},
			})
		}
	}
	return out, nil
}

// StructuredLines returns up to max lines that look like table rows (two or
// more ',' or '|' separators, or a tab) or key/value pairs (a ':'). When
// tokens are given a line must contain one of them. Lines are truncated to
// 400 characters.
func StructuredLines(text string, tokens []string, max int) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		tabular := strings.Count(line, ",") >= 2 || strings.Count(line, "|") >= 2 || strings.Contains(line, "\t")
		if !tabular && !strings.Contains(line, ":") {
			continue
		}
		if len(tokens) > 0 && !containsAny(strings.ToLower(line), tokens) {
			continue
		}
		out = append(out, truncate(line, maxLineChars))
		if len(out) >= max {
			break
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// AuthorAgent searches for chunks whose source names an author term. The
// remaining query words must match first; they become optional only when
// the strict query finds nothing.
type AuthorAgent struct {
	backend LexicalBackend
	ns      Namespaces
	logger  *zap.Logger
}

// NewAuthorAgent creates an author agent
func NewAuthorAgent(backend LexicalBackend, ns Namespaces, logger *zap.Logger) *AuthorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorAgent{backend: backend, ns: ns, logger: logger.With(zap.String("agent", model.AgentAuthor))}
}

// Name implements Agent
func (a *AuthorAgent) Name() string { return model.AgentAuthor }

// Search implements Agent
func (a *AuthorAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	if len(req.Terms) == 0 {
		return nil, nil
	}

	rest := remainingTerms(req.Query, req.Terms)
	hits, err := lexicalSearch(ctx, a.backend, a.ns, a.logger, req, AuthorQuery(req.Terms, rest, true))
	if err != nil || len(hits) > 0 || rest == "" {
		return hits, err
	}

	a.logger.Debug("strict author query empty, relaxing", zap.Strings("terms", req.Terms))
	return lexicalSearch(ctx, a.backend, a.ns, a.logger, req, AuthorQuery(req.Terms, rest, false))
}

// AuthorQuery builds a bool query filtering source on any author term.
// rest is matched against text as must when strict, otherwise as should.
func AuthorQuery(terms []string, rest string, strict bool) map[string]any {
	wildcards := make([]any, 0, len(terms))
	for _, t := range terms {
		wildcards = append(wildcards, map[string]any{
			"wildcard": map[string]any{
				"source": map[string]any{"value": "*" + strings.ToLower(t) + "*", "case_insensitive": true},
			},
		})
	}

	b := map[string]any{
		"filter": []any{
			map[string]any{"bool": map[string]any{"should": wildcards, "minimum_should_match": 1}},
		},
	}
	if rest != "" {
		clause := "should"
		if strict {
			clause = "must"
		}
		b[clause] = []any{matchText(rest)}
	}
	return map[string]any{"bool": b}
}

// remainingTerms drops author terms and stopwords from query
func remainingTerms(query string, terms []string) string {
	author := make(map[string]bool, len(terms))
	for _, t := range terms {
		author[strings.ToLower(t)] = true
	}

	var words []string
	for _, w := range extract.QueryTokens(query) {
		if !author[w] && !extract.IsStopword(w) {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}
