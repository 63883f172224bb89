package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/atikulmunna/sagrag/internal/fusion"
	"github.com/atikulmunna/sagrag/internal/judge"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/plan"
	"github.com/atikulmunna/sagrag/internal/retrieval"
	"github.com/atikulmunna/sagrag/internal/route"
	"github.com/atikulmunna/sagrag/internal/score"
	"github.com/atikulmunna/sagrag/internal/store"
	"github.com/atikulmunna/sagrag/internal/synth"
	"github.com/atikulmunna/sagrag/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const senecaQuery = "What does Seneca say about fear?"

type fakeAgent struct {
	name  string
	hits  []model.RetrievalHit
	block bool
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Search(ctx context.Context, req retrieval.Request) ([]model.RetrievalHit, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return slices.Clone(a.hits), nil
}

// scriptedLLM answers judge and synthesis prompts and refuses planning
type scriptedLLM struct {
	enabled bool
	judge   string
	synth   string
}

func (s *scriptedLLM) Enabled() bool { return s.enabled }

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	switch {
	case !s.enabled:
		return "", errors.New("disabled")
	case strings.HasPrefix(prompt, "You are an evidence judge"):
		return s.judge, nil
	case strings.HasPrefix(prompt, "You are a synthesis model"):
		return s.synth, nil
	}
	return "", errors.New("unscripted prompt")
}

func intp(v int) *int { return &v }

func hit(id, source, text string) model.RetrievalHit {
	return model.RetrievalHit{
		ID:    id,
		Score: 0.9,
		Payload: model.Payload{
			Text:        text,
			Source:      source,
			OffsetStart: intp(0),
			OffsetEnd:   intp(len(text)),
		},
	}
}

var (
	senecaHit = hit("s1", "letters/seneca_letters.txt",
		"Fear is often more painful than the cause of it. We suffer more often in imagination than in reality.")
	marcusHit = hit("m1", "meditations/marcus.txt",
		"Marcus Aurelius wrote that fear fades when we examine it closely. He urged calm reflection before acting.")
	epictetusHit = hit("e1", "discourses/epictetus.txt",
		"Epictetus taught that fear comes from judgements about things outside our control.")
)

func newTestPipeline(t *testing.T, llm *scriptedLLM, agents []retrieval.Agent, author retrieval.Agent, audit *store.Store) *Pipeline {
	t.Helper()

	cfg := model.DefaultConfig()
	cfg.Retrieval.Timeout = 50 * time.Millisecond

	runner := retrieval.NewRunner(cfg.Retrieval.Timeout, nil, nil)
	c := Components{
		Planner:      plan.NewPlanner(llm, nil, plan.Options{Timeout: time.Second}, nil),
		Router:       route.NewRouter(cfg.Domains, nil, nil),
		Orchestrator: retrieval.NewOrchestrator(runner, agents, author, cfg.Retrieval.TopK, nil),
		Fuser:        fusion.NewFuser(nil, fusion.Options{}, nil),
		Judge:        judge.New(llm, cfg.Judge, nil, nil),
		Synthesizer:  synth.New(llm, cfg.Synthesis, nil, nil),
		Scorer:       score.NewScorer(cfg.Scoring),
		Audit:        audit,
	}
	return New(cfg, c, nil, nil)
}

func TestPipeline_Answer_AuthorFound(t *testing.T) {
	audit, err := store.Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	defer audit.Close()

	llm := &scriptedLLM{
		enabled: true,
		judge:   `{"confidence": 0.8, "trusted_ids": ["s1"], "notes": "author passage"}`,
		synth: `{"answer": "Seneca says fear is often more painful than the thing we fear.",
			"provenance": [{"id": "s1", "source": "letters/seneca_letters.txt", "offset_start": 0, "offset_end": 48}],
			"confidence": 0.75}`,
	}
	agents := []retrieval.Agent{
		&fakeAgent{name: model.AgentVector, hits: []model.RetrievalHit{senecaHit}},
		&fakeAgent{name: model.AgentLexical, hits: []model.RetrievalHit{marcusHit}},
	}
	author := &fakeAgent{name: model.AgentAuthor, hits: []model.RetrievalHit{senecaHit}}
	p := newTestPipeline(t, llm, agents, author, audit)

	resp, err := p.Answer(context.Background(), model.QueryRequest{UserID: "u1", Query: senecaQuery})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "stoic-guidance", resp.Intent)
	assert.Equal(t, []string{"seneca"}, resp.AuthorTerms)
	assert.False(t, resp.AuthorGap)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "s1", resp.Results[0].ID)

	assert.Equal(t, model.JudgeSuccess, resp.Judge.Outcome)
	assert.Equal(t, model.TraceSuccess, resp.ExplainTrace)
	assert.Contains(t, resp.Answer, "Seneca")
	assert.InDelta(t, 0.75, resp.Confidence, 1e-9)
	require.Len(t, resp.Provenance, 1)
	assert.Equal(t, model.ProvenanceItem{ID: "s1", Source: "letters/seneca_letters.txt", OffsetStart: 0, OffsetEnd: 48}, resp.Provenance[0])

	assert.Equal(t, []string{model.FailureLowResultCount}, resp.RetrievalFailures)
	assert.InDelta(t, 0.25, resp.HallucinationRisk, 1e-9)
	assert.Equal(t, model.DomainSourceUnknown, resp.DomainSource)

	require.NotNil(t, resp.Diagnostics)
	assert.Equal(t, 2, resp.Diagnostics.Agents[model.AgentVector].OK)
	assert.Equal(t, 1, resp.Diagnostics.Agents[model.AgentAuthor].OK)

	records, err := audit.ListAudit(context.Background(), store.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, resp.RequestID, records[0].RequestID)
	assert.Equal(t, store.UnknownDomain, records[0].Domain)
	assert.Equal(t, string(model.TraceSuccess), records[0].ExplainTrace)
}

func TestPipeline_Answer_AuthorGap(t *testing.T) {
	agents := []retrieval.Agent{
		&fakeAgent{name: model.AgentVector, hits: []model.RetrievalHit{marcusHit}},
		&fakeAgent{name: model.AgentLexical, hits: []model.RetrievalHit{epictetusHit}},
	}
	author := &fakeAgent{name: model.AgentAuthor}
	p := newTestPipeline(t, &scriptedLLM{}, agents, author, nil)

	resp, err := p.Answer(context.Background(), model.QueryRequest{UserID: "u1", Query: senecaQuery})
	require.NoError(t, err)

	assert.True(t, resp.AuthorGap)
	assert.Len(t, resp.Results, 2)
	assert.Contains(t, resp.RetrievalFailures, model.FailureAuthorGap)
	assert.Contains(t, resp.RetrievalFailures, model.FailureLowResultCount)

	assert.Equal(t, model.JudgeDisabled, resp.Judge.Outcome)
	assert.Equal(t, model.TraceDisabled, resp.ExplainTrace)
	assert.True(t, strings.HasPrefix(resp.Answer, "No direct passages from seneca mention the query keywords"), resp.Answer)
	assert.NotContains(t, strings.ToLower(resp.Answer), "imagination")
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
	assert.NotEmpty(t, resp.Provenance)
	assert.InDelta(t, 0.8, resp.HallucinationRisk, 1e-9)
	assert.Equal(t, 1, resp.Diagnostics.Agents[model.AgentAuthor].ZeroHits)
}

func TestPipeline_Answer_AllAgentsTimeOut(t *testing.T) {
	agents := []retrieval.Agent{
		&fakeAgent{name: model.AgentVector, block: true},
		&fakeAgent{name: model.AgentLexical, block: true},
	}
	author := &fakeAgent{name: model.AgentAuthor, block: true}
	p := newTestPipeline(t, &scriptedLLM{}, agents, author, nil)

	resp, err := p.Answer(context.Background(), model.QueryRequest{UserID: "u1", Query: senecaQuery})
	require.NoError(t, err)

	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, []string{model.FailureNoResults}, resp.RetrievalFailures)
	assert.Equal(t, synth.NoAnswer, resp.Answer)
	assert.LessOrEqual(t, resp.Confidence, 0.3)
	assert.NotNil(t, resp.Provenance)
	assert.Empty(t, resp.Provenance)
	assert.InDelta(t, 0.9, resp.HallucinationRisk, 1e-9)

	assert.Equal(t, 2, resp.Diagnostics.Agents[model.AgentVector].Timeout)
	assert.Equal(t, 2, resp.Diagnostics.Agents[model.AgentLexical].Timeout)
	assert.Equal(t, 1, resp.Diagnostics.Agents[model.AgentAuthor].Timeout)
}

func TestPipeline_Answer_AllAgentsTimeOut_ModelNotAsked(t *testing.T) {
	llm := &scriptedLLM{
		enabled: true,
		judge:   `{"confidence": 0.8, "trusted_ids": [], "notes": "nothing retrieved"}`,
		synth: `{"answer": "Seneca says fear is worse in imagination than in reality.",
			"provenance": [], "confidence": 0.9}`,
	}
	agents := []retrieval.Agent{
		&fakeAgent{name: model.AgentVector, block: true},
		&fakeAgent{name: model.AgentLexical, block: true},
	}
	author := &fakeAgent{name: model.AgentAuthor, block: true}
	p := newTestPipeline(t, llm, agents, author, nil)

	start := time.Now()
	resp, err := p.Answer(context.Background(), model.QueryRequest{UserID: "u1", Query: senecaQuery})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.Equal(t, synth.NoAnswer, resp.Answer)
	assert.Equal(t, model.TraceFallbackFormatted, resp.ExplainTrace)
	assert.LessOrEqual(t, resp.Confidence, 0.3)
	assert.Empty(t, resp.Provenance)
	assert.InDelta(t, 0.9, resp.HallucinationRisk, 1e-9)

	// Author calls run alongside the main fan-out, so one timeout bounds the request
	assert.Less(t, elapsed, 2*p.config.Retrieval.Timeout)
	assert.Equal(t, 1, resp.Diagnostics.Agents[model.AgentAuthor].Timeout)
}

func TestPipeline_Answer_InvalidRequest(t *testing.T) {
	p := newTestPipeline(t, &scriptedLLM{}, nil, nil, nil)

	_, err := p.Answer(context.Background(), model.QueryRequest{UserID: "u1", Query: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, validate.ErrInvalidRequest))
}

func TestPipeline_Tenant(t *testing.T) {
	p := newTestPipeline(t, &scriptedLLM{}, nil, nil, nil)
	req := model.QueryRequest{UserID: "u1", Query: "q"}

	assert.Equal(t, "", p.tenant(req))

	p.config.Retrieval.TenantIsolation = true
	assert.Equal(t, "u1", p.tenant(req))
	req.Tenant = "acme"
	assert.Equal(t, "acme", p.tenant(req))
}

func TestPipeline_Freshness(t *testing.T) {
	p := newTestPipeline(t, &scriptedLLM{}, nil, nil, nil)
	seven, thirty := 7.0, 30.0

	assert.Nil(t, p.freshness(model.Constraints{}, model.Constraints{}))

	p.config.Policy.DefaultFreshnessDays = 90
	got := p.freshness(model.Constraints{}, model.Constraints{})
	require.NotNil(t, got)
	assert.Equal(t, 90.0, *got)

	got = p.freshness(model.Constraints{FreshnessDays: &thirty}, model.Constraints{})
	assert.Equal(t, 30.0, *got)

	got = p.freshness(model.Constraints{FreshnessDays: &thirty}, model.Constraints{FreshnessDays: &seven})
	assert.Equal(t, 7.0, *got)
}
