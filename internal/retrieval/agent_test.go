package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	name  string
	delay time.Duration
	hits  []model.RetrievalHit
	err   error
}

func (s *stubAgent) Name() string { return s.name }

// Search ignores ctx on purpose so the runner deadline is what stops it
func (s *stubAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	out := make([]model.RetrievalHit, len(s.hits))
	copy(out, s.hits)
	return out, s.err
}

func hit(id string) model.RetrievalHit {
	return model.RetrievalHit{ID: id, Score: 1, Payload: model.Payload{Text: "text " + id}}
}

func TestNamespaces(t *testing.T) {
	ns := Namespaces{BaseCollection: "docs", BaseIndex: "docs_index", IndexMap: map[string]string{"legal": "law_v2"}}

	assert.Equal(t, "docs", ns.Collection("", ""))
	assert.Equal(t, "docs_acme", ns.Collection("", "acme"))
	assert.Equal(t, "docs_stoic", ns.Collection("stoic", "acme"))

	assert.Equal(t, "docs_index", ns.Index("", ""))
	assert.Equal(t, "docs_index_acme", ns.Index("", "acme"))
	assert.Equal(t, "docs_index_stoic", ns.Index("stoic", ""))
	assert.Equal(t, "law_v2", ns.Index("legal", "acme"))
}

func TestRunner_Statuses(t *testing.T) {
	r := NewRunner(50*time.Millisecond, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		agent  *stubAgent
		status model.AgentStatus
		hits   int
	}{
		{"ok", &stubAgent{name: "vector", hits: []model.RetrievalHit{hit("a"), hit("b")}}, model.StatusOK, 2},
		{"zero hits", &stubAgent{name: "vector"}, model.StatusZeroHits, 0},
		{"error", &stubAgent{name: "vector", hits: []model.RetrievalHit{hit("a")}, err: errors.New("boom")}, model.StatusError, 0},
		{"timeout", &stubAgent{name: "vector", delay: 300 * time.Millisecond, hits: []model.RetrievalHit{hit("a")}}, model.StatusTimeout, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, status := r.Call(ctx, tt.agent, Request{Query: "q", TopK: 6})
			assert.Equal(t, tt.status, status)
			assert.Len(t, hits, tt.hits)
			for _, h := range hits {
				assert.Equal(t, "vector", h.Agent)
				assert.Equal(t, tt.status, h.Status)
			}
		})
	}
}

func TestRunner_DetachedFromParentCancel(t *testing.T) {
	r := NewRunner(time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hits, status := r.Call(ctx, &stubAgent{name: "lexical", hits: []model.RetrievalHit{hit("a")}}, Request{Query: "q"})
	assert.Equal(t, model.StatusOK, status)
	assert.Len(t, hits, 1)
}

func TestOrchestrator_MergeOrderAndDedup(t *testing.T) {
	vector := &stubAgent{name: model.AgentVector, hits: []model.RetrievalHit{hit("shared"), hit("v1")}}
	lexical := &stubAgent{name: model.AgentLexical, delay: 20 * time.Millisecond, hits: []model.RetrievalHit{hit("shared"), hit("l1")}}
	structured := &stubAgent{name: model.AgentStructured}

	o := NewOrchestrator(NewRunner(time.Second, nil, nil), []Agent{vector, lexical, structured}, nil, 6, nil)
	hits, diag := o.Run(context.Background(), Search{SubQueries: []string{"q1", "q2"}})

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"shared", "v1", "l1"}, ids)
	assert.Equal(t, model.AgentVector, hits[0].Agent, "first-seen id wins in agent order")

	require.Contains(t, diag.Agents, model.AgentVector)
	assert.Equal(t, 2, diag.Agents[model.AgentVector].Attempted)
	assert.Equal(t, 2, diag.Agents[model.AgentStructured].ZeroHits)
}

func TestOrchestrator_TimeoutIndependence(t *testing.T) {
	slow := &stubAgent{name: model.AgentVector, delay: time.Second, hits: []model.RetrievalHit{hit("slow")}}
	fast := &stubAgent{name: model.AgentLexical, hits: []model.RetrievalHit{hit("fast")}}

	o := NewOrchestrator(NewRunner(100*time.Millisecond, nil, nil), []Agent{slow, fast}, nil, 6, nil)

	start := time.Now()
	hits, diag := o.Run(context.Background(), Search{SubQueries: []string{"q"}, Domains: []string{"stoic", "general"}})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	require.Len(t, hits, 1)
	assert.Equal(t, "fast", hits[0].ID)
	assert.Equal(t, 2, diag.Agents[model.AgentVector].Timeout)
	assert.Equal(t, 2, diag.Agents[model.AgentLexical].OK)
}

type recordingAgent struct {
	mu   sync.Mutex
	reqs []Request
}

func (a *recordingAgent) Name() string { return model.AgentAuthor }

func (a *recordingAgent) Search(ctx context.Context, req Request) ([]model.RetrievalHit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	return []model.RetrievalHit{hit("author-" + req.Domain)}, nil
}

func TestOrchestrator_AuthorCalls(t *testing.T) {
	author := &recordingAgent{}
	o := NewOrchestrator(NewRunner(time.Second, nil, nil), nil, author, 4, nil)

	hits, diag := o.Run(context.Background(), Search{
		Query:       "Seneca on fear",
		SubQueries:  []string{"Seneca on fear", "stoic fear"},
		Domains:     []string{"stoic"},
		Tenant:      "acme",
		AuthorTerms: []string{"seneca"},
	})
	require.Len(t, hits, 1)
	assert.Equal(t, "author-stoic", hits[0].ID)
	assert.Equal(t, 1, diag.Agents[model.AgentAuthor].OK)
	require.Len(t, author.reqs, 1, "one author call per domain, not per sub-query")
	assert.Equal(t, "Seneca on fear", author.reqs[0].Query)
	assert.Equal(t, []string{"seneca"}, author.reqs[0].Terms)
	assert.Equal(t, "acme", author.reqs[0].Tenant)

	hits, diag = o.Run(context.Background(), Search{Query: "q", SubQueries: []string{"q"}})
	assert.Empty(t, hits)
	assert.Empty(t, diag.Agents)
}

func TestOrchestrator_AuthorMergesLastAndRunsAlongside(t *testing.T) {
	timeout := 100 * time.Millisecond
	vector := &stubAgent{name: model.AgentVector, delay: time.Second, hits: []model.RetrievalHit{hit("slow")}}
	lexical := &stubAgent{name: model.AgentLexical, hits: []model.RetrievalHit{hit("s1"), hit("l1")}}
	author := &stubAgent{name: model.AgentAuthor, delay: time.Second, hits: []model.RetrievalHit{hit("late")}}
	fastAuthor := &stubAgent{name: model.AgentAuthor, hits: []model.RetrievalHit{hit("s1"), hit("a1")}}

	o := NewOrchestrator(NewRunner(timeout, nil, nil), []Agent{vector, lexical}, author, 6, nil)
	start := time.Now()
	_, diag := o.Run(context.Background(), Search{Query: "q", SubQueries: []string{"q"}, AuthorTerms: []string{"seneca"}})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*timeout, "author calls must not wait for the main fan-out")
	assert.Equal(t, 1, diag.Agents[model.AgentVector].Timeout)
	assert.Equal(t, 1, diag.Agents[model.AgentAuthor].Timeout)

	o = NewOrchestrator(NewRunner(timeout, nil, nil), []Agent{lexical}, fastAuthor, 6, nil)
	hits, _ := o.Run(context.Background(), Search{Query: "q", SubQueries: []string{"q"}, AuthorTerms: []string{"seneca"}})
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"s1", "l1", "a1"}, ids)
	assert.Equal(t, model.AgentLexical, hits[0].Agent)
}

func TestStructuredLines(t *testing.T) {
	text := "Intro paragraph about nothing\n" +
		"Name | Born | School\n" +
		"Seneca | 4 BC | Stoic\n" +
		"Fear: a passion to be tamed\n" +
		"Seneca, Epictetus, Marcus\n" +
		"Hello, world\n" +
		"Seneca\twrote\tletters\n"

	lines := StructuredLines(text, []string{"seneca"}, 3)
	assert.Equal(t, []string{"Seneca | 4 BC | Stoic", "Seneca, Epictetus, Marcus", "Seneca\twrote\tletters"}, lines)

	all := StructuredLines(text, nil, 10)
	assert.Equal(t, []string{
		"Name | Born | School",
		"Seneca | 4 BC | Stoic",
		"Fear: a passion to be tamed",
		"Seneca, Epictetus, Marcus",
		"Seneca\twrote\tletters",
	}, all)
}

func TestStructuredLines_Truncates(t *testing.T) {
	long := "key: "
	for len(long) < 600 {
		long += "value "
	}
	lines := StructuredLines(long, nil, 3)
	require.Len(t, lines, 1)
	assert.Len(t, []rune(lines[0]), 400)
}

type stubLexical struct {
	mu      sync.Mutex
	calls   []string
	queries []map[string]any
	fail    map[string]error
	results func(index string, query map[string]any) []model.RetrievalHit
}

func (s *stubLexical) Search(ctx context.Context, index string, query map[string]any, size int) ([]model.RetrievalHit, error) {
	s.mu.Lock()
	s.calls = append(s.calls, index)
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if err := s.fail[index]; err != nil {
		return nil, err
	}
	if s.results == nil {
		return nil, nil
	}
	return s.results(index, query), nil
}

func TestStructuredAgent_SubHits(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	backend := &stubLexical{results: func(string, map[string]any) []model.RetrievalHit {
		return []model.RetrievalHit{{
			ID:    "doc1",
			Score: 3.5,
			Payload: model.Payload{
				Text:      "Table\nSeneca | letters | 65\nSeneca | essays | 12\nSeneca | plays | 9\nSeneca | misc | 1",
				Source:    "seneca.csv",
				Timestamp: &ts,
				Domain:    "stoic",
			},
		}}
	}}
	ns := Namespaces{BaseCollection: "docs", BaseIndex: "docs_index"}
	a := NewStructuredAgent(backend, ns, 3, nil)

	hits, err := a.Search(context.Background(), Request{Query: "Seneca works", TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1::line::0", hits[0].ID)
	assert.Equal(t, "doc1::line::1", hits[1].ID)
	assert.Equal(t, "Seneca | letters | 65", hits[0].Payload.Text)
	assert.Equal(t, "seneca.csv", hits[0].Payload.Source)
	assert.Equal(t, 3.5, hits[0].Score)
	assert.Nil(t, hits[0].Payload.OffsetStart)
}

func TestLexicalAgent_FallsBackToBase(t *testing.T) {
	backend := &stubLexical{
		fail: map[string]error{"docs_index_stoic": ErrNamespaceMissing},
		results: func(index string, _ map[string]any) []model.RetrievalHit {
			return []model.RetrievalHit{hit(index)}
		},
	}
	a := NewLexicalAgent(backend, Namespaces{BaseIndex: "docs_index"}, nil)

	hits, err := a.Search(context.Background(), Request{Query: "fear", Domain: "stoic", TopK: 6})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs_index_stoic", "docs_index"}, backend.calls)
	require.Len(t, hits, 1)
	assert.Equal(t, "docs_index", hits[0].ID)
}

func TestAuthorAgent_RelaxesWhenStrictEmpty(t *testing.T) {
	backend := &stubLexical{results: func(_ string, query map[string]any) []model.RetrievalHit {
		b := query["bool"].(map[string]any)
		if _, strict := b["must"]; strict {
			return nil
		}
		return []model.RetrievalHit{hit("relaxed")}
	}}
	a := NewAuthorAgent(backend, Namespaces{BaseIndex: "docs_index"}, nil)

	hits, err := a.Search(context.Background(), Request{Query: "What does Seneca say about fear?", Terms: []string{"seneca"}, TopK: 6})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "relaxed", hits[0].ID)
	require.Len(t, backend.queries, 2)
	assert.Contains(t, backend.queries[0]["bool"], "must")
	assert.Contains(t, backend.queries[1]["bool"], "should")
}

func TestAuthorQuery(t *testing.T) {
	q := AuthorQuery([]string{"Seneca"}, "fear", true)
	b := q["bool"].(map[string]any)

	filter := b["filter"].([]any)
	require.Len(t, filter, 1)
	should := filter[0].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	wildcard := should[0].(map[string]any)["wildcard"].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "*seneca*", wildcard["value"])
	assert.Equal(t, []any{matchText("fear")}, b["must"])

	noRest := AuthorQuery([]string{"seneca"}, "", true)["bool"].(map[string]any)
	assert.NotContains(t, noRest, "must")
	assert.NotContains(t, noRest, "should")
}

func TestRemainingTerms(t *testing.T) {
	assert.Equal(t, "fear", remainingTerms("What does Seneca say about fear?", []string{"Seneca"}))
	assert.Equal(t, "", remainingTerms("Seneca", []string{"seneca"}))
}
