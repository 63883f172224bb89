package score

import (
	"fmt"
	"math"

	"github.com/atikulmunna/sagrag/internal/model"
)

// Risk weights
const (
	noProvenanceWeight = 0.2
	lowTopScoreWeight  = 0.1
	authorGapWeight    = 0.1
)

// Scorer derives retrieval-failure tags, hallucination risk and the quality
// signals that explain them
type Scorer struct {
	cfg model.ScoringConfig
}

// NewScorer creates a scorer
func NewScorer(cfg model.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Input is what the scorer looks at once an answer exists
type Input struct {
	Results    []*model.EvidenceItem
	AuthorGap  bool
	Confidence float64
	Provenance []model.ProvenanceItem
	Judge      model.JudgeOutput
	Reasoning  *model.GraphReasoning
}

// Assessment is the scorer's verdict
type Assessment struct {
	RetrievalFailures []string
	HallucinationRisk float64
	Signals           []model.Signal
}

// Calculate scores an answer and generates diagnostic signals
func (s *Scorer) Calculate(in Input) Assessment {
	failures := s.RetrievalFailures(in.Results, in.AuthorGap)
	top := TopRerank(in.Results)
	risk := s.HallucinationRisk(in.Confidence, len(in.Provenance) > 0, top, in.AuthorGap)

	signals := []model.Signal{s.riskSignal(in, top, risk)}
	if len(failures) > 0 {
		signals = append(signals, s.failureSignal(failures, len(in.Results), top))
	}
	if sig, ok := contradictionSignal(in.Judge); ok {
		signals = append(signals, sig)
	}
	if sig, ok := conflictSignal(in.Reasoning); ok {
		signals = append(signals, sig)
	}

	return Assessment{RetrievalFailures: failures, HallucinationRisk: risk, Signals: signals}
}

// RetrievalFailures tags what went wrong with retrieval. The result is
// never nil.
func (s *Scorer) RetrievalFailures(results []*model.EvidenceItem, authorGap bool) []string {
	failures := []string{}
	if len(results) == 0 {
		failures = append(failures, model.FailureNoResults)
	}
	if authorGap {
		failures = append(failures, model.FailureAuthorGap)
	}
	if len(results) > 0 && len(results) < s.cfg.MinResultsCount {
		failures = append(failures, model.FailureLowResultCount)
	}
	if s.lowTop(TopRerank(results)) {
		failures = append(failures, model.FailureLowTopScore)
	}
	return failures
}

// HallucinationRisk is clamp01(1 - conf + 0.2*[no provenance] +
// 0.1*[low top rerank] + 0.1*[author gap]). NaN confidence counts as 0.
func (s *Scorer) HallucinationRisk(confidence float64, hasProvenance bool, topRerank *float64, authorGap bool) float64 {
	if math.IsNaN(confidence) {
		confidence = 0
	}
	risk := 1 - confidence
	if !hasProvenance {
		risk += noProvenanceWeight
	}
	if s.lowTop(topRerank) {
		risk += lowTopScoreWeight
	}
	if authorGap {
		risk += authorGapWeight
	}
	return Clamp01(risk)
}

func (s *Scorer) lowTop(top *float64) bool {
	return top != nil && *top < s.cfg.MinTopRerankScore
}

// TopRerank returns the rerank score of the first result, nil when there is
// none or the result was not reranked
func TopRerank(results []*model.EvidenceItem) *float64 {
	if len(results) == 0 {
		return nil
	}
	return results[0].RerankScore
}

// Clamp01 bounds v to [0,1]; NaN becomes 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *Scorer) riskSignal(in Input, top *float64, risk float64) model.Signal {
	severity := model.SeverityInfo
	if risk >= 0.7 {
		severity = model.SeverityCritical
	} else if risk >= 0.4 {
		severity = model.SeverityWarning
	}

	data := map[string]interface{}{
		"confidence":     Clamp01(in.Confidence),
		"has_provenance": len(in.Provenance) > 0,
		"author_gap":     in.AuthorGap,
		"risk":           risk,
		"formula":        "clamp01(1 - confidence + 0.2*[no provenance] + 0.1*[top rerank < min] + 0.1*[author gap])",
	}
	if top != nil {
		data["top_rerank_score"] = *top
		data["min_top_rerank_score"] = s.cfg.MinTopRerankScore
	}

	return model.Signal{
		Type:        model.SignalHallucinationRisk,
		Severity:    severity,
		Description: fmt.Sprintf("Hallucination risk: %.2f", risk),
		Data:        data,
	}
}

func (s *Scorer) failureSignal(failures []string, results int, top *float64) model.Signal {
	severity := model.SeverityWarning
	for _, f := range failures {
		if f == model.FailureNoResults {
			severity = model.SeverityCritical
		}
	}
	data := map[string]interface{}{
		"failures":          failures,
		"results":           results,
		"min_results_count": s.cfg.MinResultsCount,
	}
	if top != nil {
		data["top_rerank_score"] = *top
	}
	return model.Signal{
		Type:        model.SignalRetrievalFailure,
		Severity:    severity,
		Description: fmt.Sprintf("Retrieval failures: %v", failures),
		Data:        data,
	}
}

func contradictionSignal(j model.JudgeOutput) (model.Signal, bool) {
	if len(j.Contradictions) == 0 {
		return model.Signal{}, false
	}
	ids := make([]string, len(j.Contradictions))
	for i, c := range j.Contradictions {
		ids[i] = c.ID
	}
	return model.Signal{
		Type:        model.SignalContradiction,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("%d contradicted claims in the evidence", len(ids)),
		Data:        map[string]interface{}{"claims": ids},
	}, true
}

func conflictSignal(r *model.GraphReasoning) (model.Signal, bool) {
	if r == nil || len(r.RelationConflicts) == 0 {
		return model.Signal{}, false
	}
	pairs := make([]string, len(r.RelationConflicts))
	for i, c := range r.RelationConflicts {
		pairs[i] = c.Pair
	}
	return model.Signal{
		Type:        model.SignalRelationConflict,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d entity pairs asserted under conflicting predicates", len(pairs)),
		Data:        map[string]interface{}{"pairs": pairs},
	}, true
}
