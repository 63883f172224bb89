package fusion

import (
	"context"
	"time"

	"github.com/atikulmunna/sagrag/internal/cache"
	"github.com/atikulmunna/sagrag/internal/model"
	"go.uber.org/zap"
)

// Options configures a Fuser
type Options struct {
	RerankTopK      int
	RerankTimeout   time.Duration
	AuthorIndexPath string
	AuthorKeywords  []string
	Synonyms        map[string][]string
}

// FuseInput is one request's evidence to fuse
type FuseInput struct {
	Query         string
	Hits          []model.RetrievalHit
	Policy        Policy
	FreshnessDays *float64
	Now           time.Time // Zero means time.Now()
}

// FuseResult is the ranked evidence and the author outcome
type FuseResult struct {
	Items       []*model.EvidenceItem
	AuthorTerms []string
	AuthorGap   bool
}

// Fuser runs the fusion stages in order. Every stage is total.
type Fuser struct {
	reranker Reranker // May be nil
	opts     Options
	authors  *cache.FileLoader[AuthorIndex]
	logger   *zap.Logger
}

// NewFuser creates a fuser. A nil reranker keeps retrieval order.
func NewFuser(reranker Reranker, opts Options, logger *zap.Logger) *Fuser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RerankTopK <= 0 {
		opts.RerankTopK = 10
	}
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = 10 * time.Second
	}
	return &Fuser{
		reranker: reranker,
		opts:     opts,
		authors:  cache.NewFileLoader(opts.AuthorIndexPath, DecodeAuthorIndex),
		logger:   logger.With(zap.String("component", "fusion")),
	}
}

// AuthorTerms extracts the author terms of query
func (f *Fuser) AuthorTerms(query string) []string {
	return AuthorTerms(query, f.opts.AuthorKeywords)
}

// InvalidateAuthorIndex forces the author index to be re-read
func (f *Fuser) InvalidateAuthorIndex() {
	f.authors.Invalidate()
}

// Fuse normalizes, filters, deduplicates, biases and re-ranks hits
func (f *Fuser) Fuse(ctx context.Context, in FuseInput) FuseResult {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	items := Normalize(in.Hits)
	items = ApplyBlocklist(items, in.Policy.Blocklist)
	items = ApplyRules(items, in.Policy)
	items = ApplyFreshness(items, in.FreshnessDays, now)
	items = Dedup(items)

	terms := f.AuthorTerms(in.Query)
	for _, it := range items {
		it.AuthorBias = AuthorBias(it, terms)
	}

	items = f.rerank(ctx, in.Query, items)

	res := FuseResult{Items: items, AuthorTerms: terms}
	if len(terms) > 0 && len(items) > 0 {
		idx, err := f.authors.Load()
		if err != nil {
			f.logger.Warn("author index unavailable", zap.Error(err))
		}
		content := ContentTerms(in.Query, terms, f.opts.Synonyms)
		res.Items, res.AuthorGap = authorPass(items, terms, content, idx)
	}

	f.logger.Debug("evidence fused",
		zap.Int("hits", len(in.Hits)),
		zap.Int("items", len(res.Items)),
		zap.Strings("author_terms", terms),
		zap.Bool("author_gap", res.AuthorGap),
	)
	return res
}

// rerank scores items, sorts them descending and keeps the top k. On
// failure the first k items are returned unscored.
func (f *Fuser) rerank(ctx context.Context, query string, items []*model.EvidenceItem) []*model.EvidenceItem {
	k := f.opts.RerankTopK
	top := func() []*model.EvidenceItem {
		if len(items) > k {
			return items[:k]
		}
		return items
	}
	if len(items) == 0 || f.reranker == nil {
		return top()
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.RerankTimeout)
	defer cancel()

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	scores, err := f.reranker.Score(ctx, query, texts)
	if err != nil || len(scores) != len(items) {
		f.logger.Warn("rerank failed, keeping retrieval order", zap.Error(err), zap.Int("scores", len(scores)))
		return top()
	}

	for i, it := range items {
		s := scores[i]
		it.RerankScore = &s
	}
	sortByRerank(items, false)
	return top()
}
