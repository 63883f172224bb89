package model

import (
	"sort"
	"time"
)

// AgentStatus is the outcome of a single retrieval agent call
type AgentStatus string

const (
	StatusOK       AgentStatus = "ok"
	StatusZeroHits AgentStatus = "zero_hits"
	StatusTimeout  AgentStatus = "timeout"
	StatusError    AgentStatus = "error"
)

// Agent names, in merge order
const (
	AgentVector     = "vector"
	AgentLexical    = "lexical"
	AgentStructured = "structured"
	AgentAuthor     = "author"
)

// Payload is the backend-independent view of a stored chunk
type Payload struct {
	Text        string     `json:"text"`
	Source      string     `json:"source,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	OffsetStart *int       `json:"offset_start,omitempty"`
	OffsetEnd   *int       `json:"offset_end,omitempty"`
}

// RetrievalHit is a raw hit returned by one agent call
type RetrievalHit struct {
	ID        string      `json:"id"`                   // Stable across storage layers
	Score     float64     `json:"score"`
	Payload   Payload     `json:"payload"`
	Agent     string      `json:"agent"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Status    AgentStatus `json:"status"`
}

// EvidenceItem is a normalized hit. Fusion stages mutate it in place so ids
// stay stable through the pipeline.
type EvidenceItem struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Source      string     `json:"source,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	OffsetStart *int       `json:"offset_start,omitempty"`
	OffsetEnd   *int       `json:"offset_end,omitempty"`
	Score       float64    `json:"score"`
	Agent       string     `json:"agent"`
	ElapsedMS   int64      `json:"elapsed_ms"`
	AuthorBias  float64    `json:"author_bias"`
	RerankScore *float64   `json:"rerank_score,omitempty"`
}

// HasProvenance reports whether the item can be cited with a complete
// source and offset triple
func (e *EvidenceItem) HasProvenance() bool {
	return e.Source != "" && e.OffsetStart != nil && e.OffsetEnd != nil
}

// PolicyRule is one ordered allow/deny rule. A rule matches when every
// non-empty predicate holds.
type PolicyRule struct {
	Action      string   `json:"action" yaml:"action" mapstructure:"action"`                   // "allow" or "deny"
	Contains    []string `json:"contains,omitempty" yaml:"contains,omitempty" mapstructure:"contains"`
	NotContains []string `json:"not_contains,omitempty" yaml:"not_contains,omitempty" mapstructure:"not_contains"`
	Domains     []string `json:"domains,omitempty" yaml:"domains,omitempty" mapstructure:"domains"`
	SourceTypes []string `json:"source_types,omitempty" yaml:"source_types,omitempty" mapstructure:"source_types"`
}

// AgentCounters aggregates outcomes for one agent
type AgentCounters struct {
	Attempted int `json:"attempted"`
	OK        int `json:"ok"`
	ZeroHits  int `json:"zero_hits"`
	Timeout   int `json:"timeout"`
	Error     int `json:"error"`
}

// RetrievalDiagnostics holds per-agent counters for one request
type RetrievalDiagnostics struct {
	Agents map[string]*AgentCounters `json:"agents"`
}

// NewRetrievalDiagnostics creates empty diagnostics
func NewRetrievalDiagnostics() *RetrievalDiagnostics {
	return &RetrievalDiagnostics{Agents: make(map[string]*AgentCounters)}
}

// Record counts one agent outcome
func (d *RetrievalDiagnostics) Record(agent string, status AgentStatus) {
	c, ok := d.Agents[agent]
	if !ok {
		c = &AgentCounters{}
		d.Agents[agent] = c
	}
	c.Attempted++
	switch status {
	case StatusOK:
		c.OK++
	case StatusZeroHits:
		c.ZeroHits++
	case StatusTimeout:
		c.Timeout++
	default:
		c.Error++
	}
}

// AgentNames returns the recorded agent names in sorted order
func (d *RetrievalDiagnostics) AgentNames() []string {
	names := make([]string, 0, len(d.Agents))
	for name := range d.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
