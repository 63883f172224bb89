package retrieval

import (
	"context"
	"sync"

	"github.com/atikulmunna/sagrag/internal/model"
	"go.uber.org/zap"
)

// Orchestrator fans agent calls out over sub-queries and domains and merges
// the hits in a fixed order
type Orchestrator struct {
	runner *Runner
	agents []Agent
	author Agent
	topK   int
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator. agents are merged in the given
// order; author may be nil.
func NewOrchestrator(runner *Runner, agents []Agent, author Agent, topK int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 6
	}
	return &Orchestrator{
		runner: runner,
		agents: agents,
		author: author,
		topK:   topK,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

type slot struct {
	agent  string
	hits   []model.RetrievalHit
	status model.AgentStatus
}

// Search is the retrieval work of one request
type Search struct {
	Query       string // Raw query, sent to the author agent
	SubQueries  []string
	Domains     []string // Empty searches the base namespace
	Tenant      string
	AuthorTerms []string // Empty skips the author agent
}

// Run dispatches every (sub-query, domain, agent) call and the author calls
// together and waits for all of them, so latency is bounded by the slowest
// single call. Hits are merged by sub-query, then domain, then agent order,
// with author hits last; the first hit seen for an id wins.
func (o *Orchestrator) Run(ctx context.Context, s Search) ([]model.RetrievalHit, *model.RetrievalDiagnostics) {
	domains := s.Domains
	if len(domains) == 0 {
		domains = []string{""}
	}

	var reqs []Request
	var agents []Agent
	for _, q := range s.SubQueries {
		for _, d := range domains {
			for _, a := range o.agents {
				reqs = append(reqs, Request{Query: q, Domain: d, Tenant: s.Tenant, TopK: o.topK})
				agents = append(agents, a)
			}
		}
	}
	if o.author != nil && len(s.AuthorTerms) > 0 {
		for _, d := range domains {
			reqs = append(reqs, Request{Query: s.Query, Domain: d, Tenant: s.Tenant, TopK: o.topK, Terms: s.AuthorTerms})
			agents = append(agents, o.author)
		}
	}
	return o.dispatch(ctx, agents, reqs)
}

func (o *Orchestrator) dispatch(ctx context.Context, agents []Agent, reqs []Request) ([]model.RetrievalHit, *model.RetrievalDiagnostics) {
	slots := make([]slot, len(reqs))

	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hits, status := o.runner.Call(ctx, agents[i], reqs[i])
			slots[i] = slot{agent: agents[i].Name(), hits: hits, status: status}
		}(i)
	}
	wg.Wait()

	diag := model.NewRetrievalDiagnostics()
	seen := make(map[string]bool)
	var merged []model.RetrievalHit
	for _, s := range slots {
		diag.Record(s.agent, s.status)
		for _, h := range s.hits {
			if h.ID == "" || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, h)
		}
	}

	o.logger.Debug("retrieval merged",
		zap.Int("calls", len(reqs)),
		zap.Int("hits", len(merged)),
	)
	return merged, diag
}
