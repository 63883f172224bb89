package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atikulmunna/sagrag/internal/model"
)

const footer = "_Generated by sagrag. Confidence and risk are heuristics over the retrieved evidence, not a verdict on truth._\n"

// Renderer writes responses as JSON, Markdown or a terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes resp as indented JSON
func (r *Renderer) RenderJSON(resp *model.Response, path string) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes resp as a Markdown report
func (r *Renderer) RenderMarkdown(resp *model.Response, path string) error {
	return writeFile(path, []byte(r.Markdown(resp)))
}

// Markdown formats resp as a Markdown report
func (r *Renderer) Markdown(resp *model.Response) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", resp.Query)
	fmt.Fprintf(&b, "%s\n\n", resp.Answer)

	b.WriteString("## Assessment\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Confidence | %.2f |\n", resp.Confidence)
	fmt.Fprintf(&b, "| Hallucination risk | %.2f |\n", resp.HallucinationRisk)
	fmt.Fprintf(&b, "| Explain trace | `%s` |\n", resp.ExplainTrace)
	fmt.Fprintf(&b, "| Domain | %s (%s) |\n", orDash(resp.Domain), resp.DomainSource)
	fmt.Fprintf(&b, "| Retrieval failures | %s |\n", orDash(strings.Join(resp.RetrievalFailures, ", ")))
	if len(resp.AuthorTerms) > 0 {
		fmt.Fprintf(&b, "| Author terms | %s |\n", strings.Join(resp.AuthorTerms, ", "))
	}
	fmt.Fprintf(&b, "| Request | `%s` |\n\n", resp.RequestID)

	if len(resp.Provenance) > 0 {
		b.WriteString("## Sources\n\n")
		for _, p := range resp.Provenance {
			fmt.Fprintf(&b, "- `%s` %s [%d:%d]\n", p.ID, p.Source, p.OffsetStart, p.OffsetEnd)
		}
		b.WriteString("\n")
	}

	if len(resp.Results) > 0 {
		b.WriteString("## Evidence\n\n")
		for i, e := range resp.Results {
			rerank := "-"
			if e.RerankScore != nil {
				rerank = fmt.Sprintf("%.3f", *e.RerankScore)
			}
			fmt.Fprintf(&b, "%d. **%s** (%s, rerank %s)", i+1, e.ID, e.Agent, rerank)
			if e.Source != "" {
				fmt.Fprintf(&b, " %s", e.Source)
			}
			fmt.Fprintf(&b, "\n   > %s\n", snippet(e.Text, 240))
		}
		b.WriteString("\n")
	}

	if d := resp.Diagnostics; d != nil && len(d.Agents) > 0 {
		b.WriteString("## Retrieval\n\n")
		b.WriteString("| Agent | Attempted | OK | Zero hits | Timeout | Error |\n|---|---|---|---|---|---|\n")
		for _, name := range d.AgentNames() {
			c := d.Agents[name]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n", name, c.Attempted, c.OK, c.ZeroHits, c.Timeout, c.Error)
		}
		b.WriteString("\n")
	}

	if len(resp.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range resp.Signals {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", s.Type, s.Severity, s.Description)
		}
		b.WriteString("\n")
	}

	if g := resp.GraphReasoning; g != nil && (len(g.RelationConflicts) > 0 || len(g.Contradicted()) > 0) {
		b.WriteString("## Graph\n\n")
		for _, c := range g.Contradicted() {
			fmt.Fprintf(&b, "- claim `%s` contradicted %d time(s)\n", c.ID, c.ContradictCount)
		}
		for _, c := range g.RelationConflicts {
			fmt.Fprintf(&b, "- `%s` asserted as %s\n", c.Pair, strings.Join(c.Predicates, ", "))
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

// RenderSummary prints a short summary of resp
func (r *Renderer) RenderSummary(w io.Writer, resp *model.Response) {
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	fmt.Fprintf(w, "Confidence: %.2f   Risk: %.2f   Trace: %s\n", resp.Confidence, resp.HallucinationRisk, resp.ExplainTrace)
	fmt.Fprintf(w, "Domain: %s (%s)   Results: %d\n", orDash(resp.Domain), resp.DomainSource, len(resp.Results))
	if len(resp.RetrievalFailures) > 0 {
		fmt.Fprintf(w, "⚠ Retrieval failures: %s\n", strings.Join(resp.RetrievalFailures, ", "))
	}
	for _, p := range resp.Provenance {
		fmt.Fprintf(w, "  • %s [%d:%d]\n", p.Source, p.OffsetStart, p.OffsetEnd)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
