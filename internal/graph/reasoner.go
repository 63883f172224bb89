package graph

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options bounds the reasoner's reads
type Options struct {
	MaxClaims           int
	MaxEntities         int
	MaxSubgraphEntities int
	Timeout             time.Duration
}

// Reasoner summarises the claim graph for a set of chunks. Failures degrade
// to empty results.
type Reasoner struct {
	store  Store
	opts   Options
	logger *zap.Logger
}

// NewReasoner creates a reasoner over store
func NewReasoner(store Store, opts Options, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxClaims <= 0 {
		opts.MaxClaims = 10
	}
	if opts.MaxEntities <= 0 {
		opts.MaxEntities = 10
	}
	if opts.MaxSubgraphEntities <= 0 {
		opts.MaxSubgraphEntities = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Reasoner{store: store, opts: opts, logger: logger.With(zap.String("component", "graph"))}
}

// Context is the graph view attached to an answer
type Context struct {
	Signals   []model.EntityDensity
	Subgraph  *model.Subgraph
	Reasoning *model.GraphReasoning
}

// Build computes signals, subgraph and reasoning for the evidence
func (r *Reasoner) Build(ctx context.Context, evidence []*model.EvidenceItem) Context {
	ids := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return Context{
		Signals:   r.Signals(ctx, evidence),
		Subgraph:  r.Subgraph(ctx, ids),
		Reasoning: r.Reason(ctx, ids),
	}
}

// Signals returns the support density of the entities named in the evidence
func (r *Reasoner) Signals(ctx context.Context, evidence []*model.EvidenceItem) []model.EntityDensity {
	seen := make(map[string]bool)
	var names []string
	for _, e := range evidence {
		for _, ent := range extract.Entities(e.Text) {
			if !seen[ent] {
				seen[ent] = true
				names = append(names, ent)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	out, err := r.store.EntityDensity(ctx, names)
	if err != nil {
		r.logger.Warn("graph signals unavailable", zap.Error(err))
		return nil
	}
	return out
}

// Subgraph returns the chunk to entity pairs of chunkIDs
func (r *Reasoner) Subgraph(ctx context.Context, chunkIDs []string) *model.Subgraph {
	if len(chunkIDs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	pairs, err := r.store.ChunkEntities(ctx, chunkIDs, r.opts.MaxSubgraphEntities)
	if err != nil {
		r.logger.Warn("graph subgraph unavailable", zap.Error(err))
		return nil
	}

	seen := make(map[string]bool)
	entities := []string{}
	for _, p := range pairs {
		if !seen[p.Entity] {
			seen[p.Entity] = true
			entities = append(entities, p.Entity)
		}
	}
	sort.Strings(entities)
	if pairs == nil {
		pairs = []model.ChunkEntity{}
	}
	return &model.Subgraph{Chunks: chunkIDs, Entities: entities, Pairs: pairs}
}

// Reason runs the graph reads concurrently and aggregates them. An empty
// chunk set or any store failure yields nil.
func (r *Reasoner) Reason(ctx context.Context, chunkIDs []string) *model.GraphReasoning {
	if len(chunkIDs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	ctx, span := telemetry.Tracer().Start(ctx, "graph.reason")
	span.SetAttributes(attribute.Int("graph.chunks", len(chunkIDs)))
	defer span.End()

	var (
		claims    []model.GraphClaim
		contra    map[string]int
		entities  []model.EntityDensity
		scores    []model.EvidenceScore
		relations []model.Relation
		paths     []model.GraphPath
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		claims, err = r.store.TopClaims(gctx, chunkIDs, r.opts.MaxClaims)
		return err
	})
	g.Go(func() (err error) {
		contra, err = r.store.ClaimContradictions(gctx, chunkIDs)
		return err
	})
	g.Go(func() (err error) {
		entities, err = r.store.TopEntities(gctx, chunkIDs, r.opts.MaxEntities)
		return err
	})
	g.Go(func() (err error) {
		scores, err = r.store.ChunkScores(gctx, chunkIDs)
		return err
	})
	g.Go(func() (err error) {
		relations, err = r.store.Relations(gctx, chunkIDs, r.opts.MaxEntities)
		return err
	})
	g.Go(func() (err error) {
		paths, err = r.store.Paths(gctx, chunkIDs, r.opts.MaxEntities)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		r.logger.Warn("graph reasoning unavailable", zap.Error(err))
		return nil
	}

	for i := range claims {
		claims[i].ContradictCount = contra[claims[i].ID]
	}
	for i := range scores {
		scores[i].Score = EvidenceScore(scores[i])
	}

	return &model.GraphReasoning{
		Claims:            nonNil(claims),
		EntityDensity:     nonNil(entities),
		Relations:         nonNil(relations),
		RelationStrength:  RelationStrength(relations),
		RelationConflicts: RelationConflicts(relations),
		EvidenceScores:    nonNil(scores),
		Paths:             nonNil(paths),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// EvidenceScore is support + 0.1*entities - 0.5*contradictions, rounded to
// three places
func EvidenceScore(s model.EvidenceScore) float64 {
	v := float64(s.SupportCount) + 0.1*float64(s.EntityCount) - 0.5*float64(s.ContradictCount)
	return math.Round(v*1000) / 1000
}

// RelationStrength sums counts per (src, predicate, dst) and keeps those
// asserted at least twice, strongest first
func RelationStrength(relations []model.Relation) []model.RelationStrength {
	var order []string
	sums := make(map[string]int)
	for _, r := range relations {
		key := strings.Join([]string{r.Src, r.Predicate, r.Dst}, "|")
		if _, ok := sums[key]; !ok {
			order = append(order, key)
		}
		sums[key] += r.Count
	}

	out := []model.RelationStrength{}
	for _, key := range order {
		if sums[key] >= 2 {
			out = append(out, model.RelationStrength{Relation: key, Count: sums[key]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// RelationConflicts returns subject/object pairs asserted under more than
// one predicate, predicates sorted
func RelationConflicts(relations []model.Relation) []model.RelationConflict {
	var order []string
	preds := make(map[string]map[string]bool)
	for _, r := range relations {
		key := r.Src + "|" + r.Dst
		if _, ok := preds[key]; !ok {
			preds[key] = make(map[string]bool)
			order = append(order, key)
		}
		preds[key][r.Predicate] = true
	}

	out := []model.RelationConflict{}
	for _, key := range order {
		if len(preds[key]) < 2 {
			continue
		}
		list := make([]string, 0, len(preds[key]))
		for p := range preds[key] {
			list = append(list, p)
		}
		sort.Strings(list)
		out = append(out, model.RelationConflict{Pair: key, Predicates: list})
	}
	return out
}
