// Package pipeline answers queries by running every stage in order:
// validation, planning, routing, retrieval, fusion, graph reasoning,
// judging, synthesis, scoring and audit.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atikulmunna/sagrag/internal/fusion"
	"github.com/atikulmunna/sagrag/internal/graph"
	"github.com/atikulmunna/sagrag/internal/judge"
	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/plan"
	"github.com/atikulmunna/sagrag/internal/retrieval"
	"github.com/atikulmunna/sagrag/internal/route"
	"github.com/atikulmunna/sagrag/internal/score"
	"github.com/atikulmunna/sagrag/internal/store"
	"github.com/atikulmunna/sagrag/internal/synth"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"github.com/atikulmunna/sagrag/internal/validate"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Components are the stages a Pipeline runs. Reasoner and Audit may be nil.
type Components struct {
	Planner      *plan.Planner
	Router       *route.Router
	Orchestrator *retrieval.Orchestrator
	Fuser        *fusion.Fuser
	Reasoner     *graph.Reasoner
	Judge        *judge.Judge
	Synthesizer  *synth.Generator
	Scorer       *score.Scorer
	Audit        *store.Store

	graphStore graph.Store
}

// Pipeline orchestrates the complete answer process
type Pipeline struct {
	Components
	config   *model.Config
	renderer *Renderer
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// New creates a pipeline from prepared components
func New(cfg *model.Config, c Components, logger *zap.Logger, m *metrics.Collector) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Components: c,
		config:     cfg,
		renderer:   NewRenderer(cfg.Output.IncludeFooter),
		logger:     logger.With(zap.String("component", "pipeline")),
		metrics:    m,
		now:        time.Now,
	}
}

// Answer runs the pipeline for req. Only malformed requests produce an
// error; every downstream failure degrades the response instead.
func (p *Pipeline) Answer(ctx context.Context, req model.QueryRequest) (*model.Response, error) {
	if err := validate.Request(req); err != nil {
		return nil, err
	}

	start := p.now()
	requestID := uuid.NewString()
	logger := p.logger.With(zap.String("request_id", requestID), zap.String("user_id", req.UserID))

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.answer")
	span.SetAttributes(attribute.String("request.id", requestID))
	defer span.End()

	// 1. Plan
	pl := p.Planner.Plan(ctx, req.Query)
	queries := pl.Queries
	if len(queries) == 0 {
		queries = []string{req.Query}
	}

	// 2. Route
	decision := p.Router.Route(ctx, req.Query, pl.Constraints, req.Preferences)
	domains := route.SearchDomains(decision, p.config.Domains.Fallbacks)

	// 3. Retrieve
	hits, diag := p.Orchestrator.Run(ctx, retrieval.Search{
		Query:       req.Query,
		SubQueries:  queries,
		Domains:     domains,
		Tenant:      p.tenant(req),
		AuthorTerms: p.Fuser.AuthorTerms(req.Query),
	})

	// 4. Fuse
	fused := p.Fuser.Fuse(ctx, fusion.FuseInput{
		Query:         req.Query,
		Hits:          hits,
		Policy:        fusion.MergePolicy(p.config.Policy, pl.Constraints, req.Preferences),
		FreshnessDays: p.freshness(pl.Constraints, req.Preferences),
		Now:           start,
	})

	// 5. Graph
	var gc graph.Context
	if p.Reasoner != nil {
		gc = p.Reasoner.Build(ctx, fused.Items)
	}

	// 6. Judge and synthesize
	verdict := p.Judge.Judge(ctx, req.Query, fused.Items, gc.Signals, gc.Subgraph, gc.Reasoning)
	answer := p.Synthesizer.Synthesize(ctx, synth.Input{
		Query:       req.Query,
		Evidence:    fused.Items,
		Judge:       verdict,
		Reasoning:   gc.Reasoning,
		AuthorTerms: fused.AuthorTerms,
		AuthorGap:   fused.AuthorGap,
	})

	// 7. Score
	assessment := p.Scorer.Calculate(score.Input{
		Results:    fused.Items,
		AuthorGap:  fused.AuthorGap,
		Confidence: answer.Confidence,
		Provenance: answer.Provenance,
		Judge:      verdict,
		Reasoning:  gc.Reasoning,
	})

	resp := &model.Response{
		RequestID:         requestID,
		UserID:            req.UserID,
		Query:             req.Query,
		CreatedAt:         start.UTC(),
		Domain:            decision.Domain,
		DomainSource:      decision.Source,
		AuthorTerms:       nonNil(fused.AuthorTerms),
		AuthorGap:         fused.AuthorGap,
		RetrievalFailures: assessment.RetrievalFailures,
		HallucinationRisk: assessment.HallucinationRisk,
		Intent:            pl.Intent,
		Plan:              pl,
		Results:           nonNil(fused.Items),
		GraphSignals:      nonNil(gc.Signals),
		GraphSubgraph:     gc.Subgraph,
		GraphReasoning:    gc.Reasoning,
		Judge:             verdict,
		Answer:            answer.Answer,
		Provenance:        answer.Provenance,
		Confidence:        answer.Confidence,
		ExplainTrace:      answer.ExplainTrace,
		Signals:           assessment.Signals,
		Diagnostics:       diag,
	}

	// 8. Audit
	if p.Audit != nil {
		if err := p.Audit.LogQuery(ctx, resp); err != nil {
			logger.Warn("audit write failed", zap.Error(err))
		}
	}

	elapsed := p.now().Sub(start)
	p.metrics.RecordAnswer(resp.DomainSource, resp.HallucinationRisk, elapsed)
	span.SetAttributes(
		attribute.String("answer.domain_source", resp.DomainSource),
		attribute.String("answer.explain_trace", string(resp.ExplainTrace)),
		attribute.Int("answer.results", len(resp.Results)),
	)
	logger.Info("answered query",
		zap.String("domain", resp.Domain),
		zap.String("domain_source", resp.DomainSource),
		zap.Int("results", len(resp.Results)),
		zap.Strings("retrieval_failures", resp.RetrievalFailures),
		zap.String("explain_trace", string(resp.ExplainTrace)),
		zap.Float64("confidence", resp.Confidence),
		zap.Float64("hallucination_risk", resp.HallucinationRisk),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

// tenant is the request tenant, or the user id, when isolation is on
func (p *Pipeline) tenant(req model.QueryRequest) string {
	if !p.config.Retrieval.TenantIsolation {
		return ""
	}
	if req.Tenant != "" {
		return req.Tenant
	}
	return req.UserID
}

// freshness resolves the freshness window: caller preference, then planner
// constraint, then the configured default. Zero disables filtering.
func (p *Pipeline) freshness(constraints, preferences model.Constraints) *float64 {
	if preferences.FreshnessDays != nil {
		return preferences.FreshnessDays
	}
	if constraints.FreshnessDays != nil {
		return constraints.FreshnessDays
	}
	if d := p.config.Policy.DefaultFreshnessDays; d > 0 {
		return &d
	}
	return nil
}

// RenderResponse renders the response to the specified outputs and prints
// a terminal summary
func (p *Pipeline) RenderResponse(resp *model.Response, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(resp, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(resp, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.RenderSummary(os.Stdout, resp)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
