package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atikulmunna/sagrag/internal/model"
)

func sampleResponse() *model.Response {
	rerank := 3.5
	return &model.Response{
		RequestID:         "req-1",
		UserID:            "u1",
		Query:             "What does Seneca say about fear?",
		Domain:            "philosophy",
		DomainSource:      model.DomainSourceKeyword,
		AuthorTerms:       []string{"seneca"},
		RetrievalFailures: []string{model.FailureLowResultCount},
		HallucinationRisk: 0.25,
		Results: []*model.EvidenceItem{{
			ID:          "s1",
			Text:        "Fear is often more painful than the cause of it.",
			Source:      "seneca_letters.txt",
			Agent:       model.AgentVector,
			RerankScore: &rerank,
		}},
		GraphReasoning: &model.GraphReasoning{
			Claims:            []model.GraphClaim{{ID: "s1::claim::0", ContradictCount: 1}},
			RelationConflicts: []model.RelationConflict{{Pair: "seneca|stoic", Predicates: []string{"is", "rejects"}}},
		},
		Answer:       "Seneca says fear is worse in imagination than in reality.",
		Provenance:   []model.ProvenanceItem{{ID: "s1", Source: "seneca_letters.txt", OffsetStart: 0, OffsetEnd: 48}},
		Confidence:   0.75,
		ExplainTrace: model.TraceSuccess,
		Diagnostics: &model.RetrievalDiagnostics{Agents: map[string]*model.AgentCounters{
			model.AgentVector:  {Attempted: 2, OK: 2},
			model.AgentLexical: {Attempted: 2, Timeout: 2},
		}},
		Signals: []model.Signal{{
			Type:        model.SignalHallucinationRisk,
			Severity:    model.SeverityInfo,
			Description: "Low hallucination risk",
		}},
	}
}

func TestRenderer_Markdown(t *testing.T) {
	md := NewRenderer(true).Markdown(sampleResponse())

	for _, want := range []string{
		"# What does Seneca say about fear?",
		"Seneca says fear is worse",
		"| Confidence | 0.75 |",
		"| Domain | philosophy (keyword) |",
		"| Retrieval failures | low_result_count |",
		"- `s1` seneca_letters.txt [0:48]",
		"rerank 3.500",
		"**hallucination_risk** (info)",
		"| lexical | 2 | 0 | 0 | 2 | 0 |",
		"claim `s1::claim::0` contradicted 1 time(s)",
		"`seneca|stoic` asserted as is, rejects",
		footer,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestRenderer_Markdown_NoFooter(t *testing.T) {
	resp := sampleResponse()
	resp.Domain = ""
	resp.RetrievalFailures = []string{}

	md := NewRenderer(false).Markdown(resp)
	if strings.Contains(md, footer) {
		t.Error("Did not expect footer")
	}
	if !strings.Contains(md, "| Retrieval failures | - |") {
		t.Errorf("Expected dash for empty failures\n%s", md)
	}
}

func TestRenderer_RenderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "answer.json")
	if err := NewRenderer(true).RenderJSON(sampleResponse(), path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["explain_trace"] != "success" {
		t.Errorf("Unexpected explain_trace: %v", got["explain_trace"])
	}
	if got["hallucination_risk"] != 0.25 {
		t.Errorf("Unexpected hallucination_risk: %v", got["hallucination_risk"])
	}
}

func TestRenderer_RenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true).RenderSummary(&buf, sampleResponse())

	out := buf.String()
	if !strings.Contains(out, "Confidence: 0.75") {
		t.Errorf("Expected confidence in summary: %s", out)
	}
	if !strings.Contains(out, "low_result_count") {
		t.Errorf("Expected failures in summary: %s", out)
	}
}
