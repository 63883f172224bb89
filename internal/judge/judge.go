// Package judge calibrates answer confidence from evidence and graph context.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atikulmunna/sagrag/internal/llm"
	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Completer produces a completion for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Enabled() bool
}

const snippetChars = 400

// Fallback confidences
const (
	nonJSONConfidence  = 0.4
	errorConfidence    = 0.3
	disabledConfidence = 0.3
	fallbackTrusted    = 3
)

// Judge asks the LLM for a confidence verdict and applies the graph
// adjustments to whatever verdict results
type Judge struct {
	llm     Completer
	cfg     model.JudgeConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a judge
func New(c Completer, cfg model.JudgeConfig, logger *zap.Logger, m *metrics.Collector) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := model.DefaultConfig().Judge
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = def.MaxSnippets
	}
	return &Judge{llm: c, cfg: cfg, logger: logger.With(zap.String("component", "judge")), metrics: m}
}

type snippet struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

type verdict struct {
	Confidence any   `json:"confidence"`
	TrustedIDs []any `json:"trusted_ids"`
	Notes      any   `json:"notes"`
}

// Judge returns the calibrated verdict. It never fails: LLM errors and
// unparseable replies degrade to fixed fallback confidences.
func (j *Judge) Judge(ctx context.Context, query string, evidence []*model.EvidenceItem, signals []model.EntityDensity, subgraph *model.Subgraph, reasoning *model.GraphReasoning) model.JudgeOutput {
	ctx, span := telemetry.Tracer().Start(ctx, "judge")
	defer span.End()

	out := j.verdict(ctx, query, evidence, signals, subgraph, reasoning)
	out = Adjust(out, reasoning, j.cfg)

	span.SetAttributes(
		attribute.String("judge.outcome", string(out.Outcome)),
		attribute.Float64("judge.confidence", out.Confidence),
	)
	j.metrics.RecordJudge(string(out.Outcome))
	j.logger.Debug("judged evidence",
		zap.String("outcome", string(out.Outcome)),
		zap.Float64("confidence", out.Confidence),
		zap.Int("contradictions", len(out.Contradictions)),
	)
	return out
}

func (j *Judge) verdict(ctx context.Context, query string, evidence []*model.EvidenceItem, signals []model.EntityDensity, subgraph *model.Subgraph, reasoning *model.GraphReasoning) model.JudgeOutput {
	if !j.cfg.Enabled || j.llm == nil || !j.llm.Enabled() {
		return model.JudgeOutput{
			Confidence: disabledConfidence,
			TrustedIDs: []string{},
			Notes:      string(model.JudgeDisabled),
			Outcome:    model.JudgeDisabled,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	text, err := j.llm.Complete(ctx, j.prompt(query, evidence, signals, subgraph, reasoning), j.cfg.MaxTokens)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			j.logger.Warn("judge timed out", zap.Duration("timeout", j.cfg.Timeout))
		} else {
			j.logger.Warn("judge failed", zap.Error(err))
		}
		return model.JudgeOutput{
			Confidence: errorConfidence,
			TrustedIDs: topIDs(evidence, fallbackTrusted),
			Notes:      string(model.JudgeErrorFallback),
			Outcome:    model.JudgeErrorFallback,
		}
	}

	var v verdict
	if err := llm.ExtractJSON(text, &v); err != nil {
		j.logger.Debug("judge reply was not JSON", zap.Error(err))
		return model.JudgeOutput{
			Confidence: nonJSONConfidence,
			TrustedIDs: topIDs(evidence, fallbackTrusted),
			Notes:      string(model.JudgeNonJSON),
			Outcome:    model.JudgeNonJSON,
		}
	}

	conf, ok := parseConfidence(v.Confidence)
	if !ok {
		conf = nonJSONConfidence
	}
	out := model.JudgeOutput{
		Confidence: Clamp01(conf),
		TrustedIDs: stringIDs(v.TrustedIDs),
		Outcome:    model.JudgeSuccess,
	}
	if s, ok := v.Notes.(string); ok {
		out.Notes = s
	}
	return out
}

func (j *Judge) prompt(query string, evidence []*model.EvidenceItem, signals []model.EntityDensity, subgraph *model.Subgraph, reasoning *model.GraphReasoning) string {
	snippets := make([]snippet, 0, min(len(evidence), j.cfg.MaxSnippets))
	for _, e := range evidence {
		if len(snippets) >= j.cfg.MaxSnippets {
			break
		}
		snippets = append(snippets, snippet{ID: e.ID, Text: truncate(e.Text, snippetChars), Source: e.Source})
	}

	var b strings.Builder
	b.WriteString("You are an evidence judge for a RAG system.\n")
	b.WriteString("Return JSON only with keys:\n")
	b.WriteString(`{"confidence": 0.0-1.0, "trusted_ids": [...], "notes": "..."}` + "\n\n")
	fmt.Fprintf(&b, "User query:\n%s\n\n", query)
	fmt.Fprintf(&b, "Graph signals:\n%s\n\n", marshal(signals))
	fmt.Fprintf(&b, "Graph subgraph:\n%s\n\n", marshal(subgraph))
	fmt.Fprintf(&b, "Graph reasoning:\n%s\n\n", marshal(reasoning))
	b.WriteString("Instruction: if graph_reasoning shows claims with contradict_count > 0, lower confidence and include a note.\n")
	b.WriteString("Instruction: if graph_reasoning includes strong relations, use them to support or refute evidence.\n")
	b.WriteString("Instruction: increase confidence when multiple chunks support the same relation; decrease when relations conflict.\n")
	b.WriteString("Instruction: prefer evidence with higher evidence_scores and path counts when selecting trusted_ids.\n\n")
	fmt.Fprintf(&b, "Evidence snippets:\n%s\n", marshal(snippets))
	return b.String()
}

// Adjust applies the deterministic graph adjustments. Contradicted claims
// scale confidence down and cap it; relation conflicts and relation strength
// only count when nothing is contradicted.
func Adjust(out model.JudgeOutput, reasoning *model.GraphReasoning, cfg model.JudgeConfig) model.JudgeOutput {
	out.Confidence = Clamp01(out.Confidence)
	contradicted := reasoning.Contradicted()

	if n := len(contradicted); n > 0 {
		out.Contradictions = contradicted
		penalty := math.Min(cfg.PenaltyMax, cfg.PenaltyPerClaim*float64(n))
		out.Confidence = math.Min(out.Confidence*(1-penalty), cfg.ContradictionCap)
		out.Notes = appendNote(out.Notes, fmt.Sprintf(
			"confidence adjusted for %d contradictions (penalty=%.2f, cap=%.2f)", n, penalty, cfg.ContradictionCap))
	} else if reasoning != nil {
		if conflicts := len(reasoning.RelationConflicts); conflicts > 0 {
			penalty := math.Min(0.5, cfg.RelationConflictPenalty*float64(conflicts))
			out.Confidence = math.Max(0, out.Confidence*(1-penalty))
			out.Notes = appendNote(out.Notes, fmt.Sprintf("confidence reduced for relation conflicts (penalty=%.2f)", penalty))
		}
		if strength := len(reasoning.RelationStrength); strength > 0 {
			boost := math.Min(cfg.RelationBoostMax, cfg.RelationBoostPerRelation*float64(strength))
			out.Confidence = math.Min(1, out.Confidence+boost)
			out.Notes = appendNote(out.Notes, fmt.Sprintf("confidence boosted by relation strength (boost=%.2f)", boost))
		}
	}

	out.Confidence = Clamp01(out.Confidence)
	if out.TrustedIDs == nil {
		out.TrustedIDs = []string{}
	}
	return out
}

// Clamp01 bounds v to [0,1]; NaN becomes 0
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func parseConfidence(v any) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		return f, err == nil
	}
	return 0, false
}

func stringIDs(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		switch id := r.(type) {
		case string:
			if id != "" {
				out = append(out, id)
			}
		case float64:
			out = append(out, strconv.FormatFloat(id, 'f', -1, 64))
		}
	}
	return out
}

func topIDs(evidence []*model.EvidenceItem, n int) []string {
	out := []string{}
	for _, e := range evidence {
		if len(out) >= n {
			break
		}
		if e.ID != "" {
			out = append(out, e.ID)
		}
	}
	return out
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
