// Package synth generates the final grounded answer through a fallback
// chain that always yields usable text.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/llm"
	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// NoAnswer is returned when nothing usable could be produced
const NoAnswer = "I could not synthesize a confident answer from the available evidence."

const (
	snippetChars     = 500
	rewriteSnippets  = 3
	fallbackPicks    = 3
	noEvidenceCap    = 0.3
	minAnswerChars   = 20
	minAnswerWords   = 4
	maxFallbackLines = 2
)

var structuralTokens = []string{"{", "}", `"answer"`, "provenance", "explain_trace", "offset_start"}

// Completer produces a completion for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Enabled() bool
}

// Input carries everything synthesis needs
type Input struct {
	Query       string
	Evidence    []*model.EvidenceItem
	Judge       model.JudgeOutput
	Reasoning   *model.GraphReasoning
	AuthorTerms []string
	AuthorGap   bool
}

// Generator produces answers with the configured LLM
type Generator struct {
	llm     Completer
	cfg     model.SynthesisConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a generator
func New(c Completer, cfg model.SynthesisConfig, logger *zap.Logger, m *metrics.Collector) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := model.DefaultConfig().Synthesis
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = def.MaxSnippets
	}
	return &Generator{llm: c, cfg: cfg, logger: logger.With(zap.String("component", "synthesis")), metrics: m}
}

// Synthesize returns the answer with validated provenance and exactly one
// explain trace tag
func (g *Generator) Synthesize(ctx context.Context, in Input) model.SynthesisOutput {
	ctx, span := telemetry.Tracer().Start(ctx, "synthesis")
	defer span.End()

	out := g.generate(ctx, in)
	if strings.TrimSpace(out.Answer) == "" {
		out.Answer = NoAnswer
	}
	if len(in.Evidence) == 0 {
		out.Confidence = math.Min(out.Confidence, noEvidenceCap)
	}
	out.Confidence = clamp01(out.Confidence)
	if out.Provenance == nil {
		out.Provenance = []model.ProvenanceItem{}
	}

	span.SetAttributes(
		attribute.String("synthesis.trace", string(out.ExplainTrace)),
		attribute.Int("synthesis.provenance", len(out.Provenance)),
	)
	g.metrics.RecordSynthesis(string(out.ExplainTrace))
	return out
}

func (g *Generator) enabled() bool {
	return g.cfg.Enabled && g.llm != nil && g.llm.Enabled()
}

func (g *Generator) generate(ctx context.Context, in Input) model.SynthesisOutput {
	// Nothing to ground an answer in, so the model is never asked
	if len(in.Evidence) == 0 {
		trace := model.TraceFallbackFormatted
		if !g.enabled() {
			trace = model.TraceDisabled
		}
		return model.SynthesisOutput{
			Answer:       NoAnswer,
			Provenance:   []model.ProvenanceItem{},
			Confidence:   math.Min(in.Judge.Confidence, noEvidenceCap),
			ExplainTrace: trace,
		}
	}

	picks := g.picks(in)
	fallback := model.SynthesisOutput{
		Answer:     Extractive(picks, in.AuthorTerms, in.AuthorGap),
		Provenance: provenanceOf(picks),
		Confidence: in.Judge.Confidence,
	}

	if !g.enabled() {
		fallback.ExplainTrace = model.TraceDisabled
		return fallback
	}

	text, err := g.complete(ctx, g.prompt(in))
	if err != nil {
		fallback.ExplainTrace = model.TraceError
		if errors.Is(err, context.DeadlineExceeded) {
			fallback.ExplainTrace = model.TraceTimeout
		}
		g.logger.Warn("synthesis failed", zap.String("trace", string(fallback.ExplainTrace)), zap.Error(err))
		return fallback
	}

	var reply struct {
		Answer     any              `json:"answer"`
		Provenance []map[string]any `json:"provenance"`
		Confidence any              `json:"confidence"`
	}
	answer, parsed := "", false
	if err := llm.ExtractJSON(text, &reply); err == nil {
		if s, ok := reply.Answer.(string); ok && strings.TrimSpace(s) != "" {
			answer, parsed = strings.TrimSpace(s), true
		}
	}

	if parsed {
		out := model.SynthesisOutput{
			Answer:       answer,
			Provenance:   ValidateProvenance(reply.Provenance, in.Evidence),
			Confidence:   in.Judge.Confidence,
			ExplainTrace: model.TraceSuccess,
		}
		if c, ok := number(reply.Confidence); ok {
			out.Confidence = c
		}
		if len(out.Provenance) == 0 {
			out.Provenance = fallback.Provenance
		}
		if !Natural(out.Answer) {
			out.Answer, out.ExplainTrace = g.naturalize(ctx, in, picks)
		}
		return out
	}

	g.logger.Warn("synthesis reply was not JSON")
	out := fallback
	out.Answer = strings.TrimSpace(text)
	out.ExplainTrace = model.TraceNonJSON
	if !Natural(out.Answer) {
		out.Answer, out.ExplainTrace = g.naturalize(ctx, in, picks)
	}
	return out
}

// naturalize runs the rewrite pass and falls back to extracted sentences
func (g *Generator) naturalize(ctx context.Context, in Input, picks []*model.EvidenceItem) (string, model.SynthesisTrace) {
	text, err := g.complete(ctx, g.rewritePrompt(in))
	if err == nil {
		if answer := strings.TrimSpace(text); Natural(answer) {
			return answer, model.TraceNaturalized
		}
	} else {
		g.logger.Debug("rewrite pass failed", zap.Error(err))
	}
	return Extractive(picks, in.AuthorTerms, in.AuthorGap), model.TraceFallbackFormatted
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.llm.Complete(ctx, prompt, g.cfg.MaxTokens)
}

type snippet struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Source      string `json:"source"`
	OffsetStart *int   `json:"offset_start"`
	OffsetEnd   *int   `json:"offset_end"`
}

func (g *Generator) prompt(in Input) string {
	snippets := make([]snippet, 0, min(len(in.Evidence), g.cfg.MaxSnippets))
	for _, e := range in.Evidence {
		if len(snippets) >= g.cfg.MaxSnippets {
			break
		}
		snippets = append(snippets, snippet{
			ID:          e.ID,
			Text:        truncate(e.Text, snippetChars),
			Source:      e.Source,
			OffsetStart: e.OffsetStart,
			OffsetEnd:   e.OffsetEnd,
		})
	}

	var relations, scores any
	if r := in.Reasoning; r != nil {
		if len(r.RelationStrength) > 0 {
			relations = r.RelationStrength
		} else if len(r.Relations) > 0 {
			relations = r.Relations
		}
		if len(r.EvidenceScores) > 0 {
			scores = r.EvidenceScores
		}
	}

	var b strings.Builder
	b.WriteString("You are a synthesis model. Return JSON only:\n")
	b.WriteString(`{"answer": "...", "provenance": [...], "confidence": 0.0-1.0, "explain_trace": "..."}` + "\n")
	b.WriteString("Each provenance item must include id, source, offset_start, and offset_end.\n\n")
	b.WriteString("Grounding rules:\n")
	b.WriteString("- Answer directly in 2-4 sentences.\n")
	b.WriteString("- If the query names an author, prioritize evidence from that author. If none exists, say so briefly.\n")
	b.WriteString("- Prefer claims supported by graph relations and evidence snippets.\n")
	b.WriteString("- If relations contradict, mention the conflict and lower confidence.\n")
	b.WriteString("- Do not invent relations; cite only those provided.\n\n")
	fmt.Fprintf(&b, "User query:\n%s\n", in.Query)
	if len(in.AuthorTerms) > 0 {
		fmt.Fprintf(&b, "\nAuthor focus: %s\n", strings.Join(in.AuthorTerms, ", "))
		if in.AuthorGap {
			b.WriteString("Note: No author passages explicitly mention the query keywords; use other sources and say so briefly. Do not quote unrelated author passages.\n")
		}
	}
	fmt.Fprintf(&b, "\nJudge output:\n%s\n\n", marshal(in.Judge))
	fmt.Fprintf(&b, "Graph relations (if any):\n%s\n\n", marshal(relations))
	fmt.Fprintf(&b, "Evidence scores (if any):\n%s\n\n", marshal(scores))
	fmt.Fprintf(&b, "Evidence snippets:\n%s\n", marshal(snippets))
	return b.String()
}

func (g *Generator) rewritePrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Answer the question in 2-4 plain sentences using only the passages below.\n")
	b.WriteString("Do not return JSON, lists, field names or citations.\n\n")
	fmt.Fprintf(&b, "Question:\n%s\n\nPassages:\n", in.Query)
	for i, e := range in.Evidence {
		if i >= rewriteSnippets {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncate(e.Text, snippetChars))
	}
	return b.String()
}

// picks selects the evidence backing fallback answers: the judge's trusted
// ids when they resolve, otherwise the top three items. Under an author gap,
// author-matching items are dropped when others remain.
func (g *Generator) picks(in Input) []*model.EvidenceItem {
	byID := make(map[string]*model.EvidenceItem, len(in.Evidence))
	for _, e := range in.Evidence {
		if _, ok := byID[e.ID]; !ok {
			byID[e.ID] = e
		}
	}

	var picks []*model.EvidenceItem
	for _, id := range in.Judge.TrustedIDs {
		if e, ok := byID[id]; ok {
			picks = append(picks, e)
		}
	}
	if len(picks) == 0 {
		picks = in.Evidence[:min(fallbackPicks, len(in.Evidence))]
	}

	if len(in.AuthorTerms) > 0 && in.AuthorGap {
		var others []*model.EvidenceItem
		for _, e := range picks {
			if !mentionsAuthor(e, in.AuthorTerms) {
				others = append(others, e)
			}
		}
		if len(others) > 0 {
			picks = others
		}
	}
	return picks
}

func mentionsAuthor(e *model.EvidenceItem, terms []string) bool {
	source := strings.ToLower(e.Source)
	text := strings.ToLower(e.Text)
	for _, t := range terms {
		t = strings.ToLower(t)
		if strings.Contains(source, t) || strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// ValidateProvenance resolves model-cited items against the evidence by id
// (or chunk_id), filling missing fields. Items without a source and both
// offsets are dropped.
func ValidateProvenance(raw []map[string]any, evidence []*model.EvidenceItem) []model.ProvenanceItem {
	byID := make(map[string]*model.EvidenceItem, len(evidence))
	for _, e := range evidence {
		if _, ok := byID[e.ID]; !ok {
			byID[e.ID] = e
		}
	}

	out := []model.ProvenanceItem{}
	for _, p := range raw {
		id, _ := p["id"].(string)
		if id == "" {
			id, _ = p["chunk_id"].(string)
		}
		source, _ := p["source"].(string)
		start, hasStart := offset(p["offset_start"])
		end, hasEnd := offset(p["offset_end"])

		if e, ok := byID[id]; ok {
			if source == "" {
				source = e.Source
			}
			if !hasStart && e.OffsetStart != nil {
				start, hasStart = *e.OffsetStart, true
			}
			if !hasEnd && e.OffsetEnd != nil {
				end, hasEnd = *e.OffsetEnd, true
			}
		}
		if source == "" || !hasStart || !hasEnd {
			continue
		}
		out = append(out, model.ProvenanceItem{ID: id, Source: source, OffsetStart: start, OffsetEnd: end})
	}
	return out
}

func provenanceOf(items []*model.EvidenceItem) []model.ProvenanceItem {
	out := []model.ProvenanceItem{}
	for _, e := range items {
		if !e.HasProvenance() {
			continue
		}
		out = append(out, model.ProvenanceItem{
			ID:          e.ID,
			Source:      e.Source,
			OffsetStart: *e.OffsetStart,
			OffsetEnd:   *e.OffsetEnd,
		})
	}
	return out
}

// Natural reports whether answer reads as prose rather than structure
func Natural(answer string) bool {
	answer = strings.TrimSpace(answer)
	if len(answer) < minAnswerChars || len(strings.Fields(answer)) < minAnswerWords {
		return false
	}
	for _, tok := range structuralTokens {
		if strings.Contains(answer, tok) {
			return false
		}
	}
	return true
}

// Extractive joins the first one or two qualifying sentences of picks,
// prefixed with a disclaimer when the named author had no matching passages
func Extractive(picks []*model.EvidenceItem, authorTerms []string, authorGap bool) string {
	var sentences []string
	for _, p := range picks {
		sentences = append(sentences, extract.QualifyingSentences(strings.TrimSpace(p.Text), maxFallbackLines)...)
		if len(sentences) >= maxFallbackLines {
			break
		}
	}
	if len(sentences) == 0 {
		return ""
	}
	answer := strings.Join(sentences[:min(maxFallbackLines, len(sentences))], " ")
	if len(authorTerms) > 0 && authorGap {
		return fmt.Sprintf("No direct passages from %s mention the query keywords in the current dataset. %s",
			strings.Join(authorTerms, ", "), answer)
	}
	return answer
}

func offset(v any) (int, bool) {
	f, ok := number(v)
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
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
