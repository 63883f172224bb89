// Package retrieval runs the retrieval agents against the vector and lexical
// backends and merges their hits.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrNamespaceMissing is returned when a tenant or domain qualified
// collection or index does not exist
var ErrNamespaceMissing = errors.New("namespace missing")

// Request is one agent call
type Request struct {
	Query  string
	Domain string   // Empty for the base namespace
	Tenant string   // Empty without tenant isolation
	TopK   int
	Terms  []string // Author terms, author agent only
}

// Agent searches one backend for a single sub-query and domain
type Agent interface {
	Name() string
	Search(ctx context.Context, req Request) ([]model.RetrievalHit, error)
}

// Namespaces derives tenant and domain qualified backend names
type Namespaces struct {
	BaseCollection string
	BaseIndex      string
	IndexMap       map[string]string // Domain -> index overrides
}

// Collection returns the vector collection for domain and tenant. A domain
// takes precedence over the tenant.
func (n Namespaces) Collection(domain, tenant string) string {
	switch {
	case domain != "":
		return n.BaseCollection + "_" + domain
	case tenant != "":
		return n.BaseCollection + "_" + tenant
	}
	return n.BaseCollection
}

// Index returns the lexical index for domain and tenant
func (n Namespaces) Index(domain, tenant string) string {
	switch {
	case domain != "":
		if idx, ok := n.IndexMap[domain]; ok && idx != "" {
			return idx
		}
		return n.BaseIndex + "_" + domain
	case tenant != "":
		return n.BaseIndex + "_" + tenant
	}
	return n.BaseIndex
}

// Runner executes agent calls with an independent timeout per call
type Runner struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRunner creates a runner. A non-positive timeout uses 12s.
func NewRunner(timeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Runner{
		timeout: timeout,
		logger:  logger.With(zap.String("component", "retrieval")),
		metrics: m,
	}
}

type callResult struct {
	hits []model.RetrievalHit
	err  error
}

// Call runs agent under its own deadline. The deadline is detached from the
// parent's cancellation so one slow sibling never shortens another call.
// Hits are stamped with the agent name, elapsed time and status.
func (r *Runner) Call(parent context.Context, agent Agent, req Request) ([]model.RetrievalHit, model.AgentStatus) {
	name := agent.Name()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "retrieval."+name)
	span.SetAttributes(
		attribute.String("retrieval.domain", req.Domain),
		attribute.Int("retrieval.k", req.TopK),
	)
	defer span.End()

	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		hits, err := agent.Search(ctx, req)
		done <- callResult{hits: hits, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = callResult{err: ctx.Err()}
	}
	elapsed := time.Since(start)

	status := classify(ctx, res)
	if res.err != nil {
		span.RecordError(res.err)
		r.logger.Warn("agent call degraded",
			zap.String("agent", name),
			zap.String("domain", req.Domain),
			zap.String("status", string(status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.err),
		)
		res.hits = nil
	}
	span.SetAttributes(attribute.String("retrieval.status", string(status)))
	r.metrics.RecordAgentCall(name, string(status), elapsed)

	for i := range res.hits {
		res.hits[i].Agent = name
		res.hits[i].ElapsedMS = elapsed.Milliseconds()
		res.hits[i].Status = status
	}
	return res.hits, status
}

func classify(ctx context.Context, res callResult) model.AgentStatus {
	switch {
	case res.err == nil && len(res.hits) > 0:
		return model.StatusOK
	case res.err == nil:
		return model.StatusZeroHits
	case errors.Is(res.err, context.DeadlineExceeded), ctx.Err() != nil:
		return model.StatusTimeout
	}
	return model.StatusError
}

// withBaseFallback runs search against qualified and retries the base
// namespace when the qualified one fails
func withBaseFallback(ctx context.Context, logger *zap.Logger, qualified, base string, search func(context.Context, string) ([]model.RetrievalHit, error)) ([]model.RetrievalHit, error) {
	hits, err := search(ctx, qualified)
	if err == nil || qualified == base || ctx.Err() != nil {
		return hits, err
	}

	logger.Debug("qualified namespace failed, using base",
		zap.String("namespace", qualified),
		zap.String("base", base),
		zap.Error(err),
	)
	hits, baseErr := search(ctx, base)
	if baseErr != nil {
		return nil, fmt.Errorf("search %s after %v: %w", base, err, baseErr)
	}
	return hits, nil
}
