package model

import "time"

// JudgeTrace identifies how a judge output was produced
type JudgeTrace string

const (
	JudgeSuccess       JudgeTrace = "success"
	JudgeNonJSON       JudgeTrace = "judge_non_json"
	JudgeErrorFallback JudgeTrace = "judge_error_fallback"
	JudgeDisabled      JudgeTrace = "judge_disabled"
)

// Contradiction names a contradicted claim
type Contradiction struct {
	ID              string `json:"id"`
	ContradictCount int    `json:"contradict_count"`
}

// JudgeOutput is the calibrated confidence verdict
type JudgeOutput struct {
	Confidence     float64         `json:"confidence"` // Always within [0,1]
	TrustedIDs     []string        `json:"trusted_ids"`
	Notes          string          `json:"notes,omitempty"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	Outcome        JudgeTrace      `json:"outcome"`
}

// SynthesisTrace is the single explain_trace tag attached to an answer
type SynthesisTrace string

const (
	TraceSuccess           SynthesisTrace = "success"
	TraceNaturalized       SynthesisTrace = "synthesis_naturalized"
	TraceNonJSON           SynthesisTrace = "synthesis_non_json"
	TraceFallbackFormatted SynthesisTrace = "synthesis_fallback_formatted"
	TraceTimeout           SynthesisTrace = "synthesis_timeout"
	TraceError             SynthesisTrace = "synthesis_error"
	TraceDisabled          SynthesisTrace = "synthesis_disabled"
)

// ProvenanceItem cites a span of a source. Items are only constructed when
// the source and both offsets are known.
type ProvenanceItem struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	OffsetStart int    `json:"offset_start"`
	OffsetEnd   int    `json:"offset_end"`
}

// SynthesisOutput is the generated answer and its citations
type SynthesisOutput struct {
	Answer       string           `json:"answer"`
	Provenance   []ProvenanceItem `json:"provenance"`
	Confidence   float64          `json:"confidence"`
	ExplainTrace SynthesisTrace   `json:"explain_trace"`
}

// Retrieval failure tags
const (
	FailureNoResults      = "no_results"
	FailureAuthorGap      = "author_gap"
	FailureLowResultCount = "low_result_count"
	FailureLowTopScore    = "low_top_score"
)

// Domain sources
const (
	DomainSourceConstraint = "constraint"
	DomainSourcePreference = "preference"
	DomainSourceKeyword    = "keyword"
	DomainSourceUnknown    = "unknown"
)

// Response is the full pipeline answer
type Response struct {
	RequestID         string                `json:"request_id"`
	UserID            string                `json:"user_id"`
	Query             string                `json:"query"`
	CreatedAt         time.Time             `json:"created_at"`
	Domain            string                `json:"domain"`
	DomainSource      string                `json:"domain_source"`
	AuthorTerms       []string              `json:"author_terms"`
	AuthorGap         bool                  `json:"author_gap"`
	RetrievalFailures []string              `json:"retrieval_failures"`
	HallucinationRisk float64               `json:"hallucination_risk"`
	Intent            string                `json:"intent"`
	Plan              Plan                  `json:"plan"`
	Results           []*EvidenceItem       `json:"results"`
	GraphSignals      []EntityDensity       `json:"graph_signals"`
	GraphSubgraph     *Subgraph             `json:"graph_subgraph"`
	GraphReasoning    *GraphReasoning       `json:"graph_reasoning"`
	Judge             JudgeOutput           `json:"judge"`
	Answer            string                `json:"answer"`
	Provenance        []ProvenanceItem      `json:"provenance"`
	Confidence        float64               `json:"confidence"`
	ExplainTrace      SynthesisTrace        `json:"explain_trace"`
	Signals           []Signal              `json:"signals,omitempty"` // Transparent quality signals
	Diagnostics       *RetrievalDiagnostics `json:"diagnostics,omitempty"`
}

// Signal is a quality signal with the inputs that produced it
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Formula and inputs
}

// SignalType classifies a quality signal
type SignalType string

const (
	SignalHallucinationRisk SignalType = "hallucination_risk"
	SignalRetrievalFailure  SignalType = "retrieval_failure"
	SignalContradiction     SignalType = "contradiction"
	SignalRelationConflict  SignalType = "relation_conflict"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
