package store

import (
	"context"

	"github.com/atikulmunna/sagrag/internal/model"
)

// TrainingExample pairs an audited answer with the feedback it received
type TrainingExample struct {
	Query      string                 `json:"query"`
	Answer     string                 `json:"answer"`
	Provenance []model.ProvenanceItem `json:"provenance"`
	Confidence float64                `json:"confidence"`
	Rating     *int                   `json:"rating"`
	Comment    *string                `json:"comment"`
}

// TrainingData joins the latest audit records with feedback on (user id,
// query). Records without matching feedback carry nil rating and comment.
func (s *Store) TrainingData(ctx context.Context, limit int, minRating *int) ([]TrainingExample, error) {
	logs, err := s.ListAudit(ctx, AuditFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	feedback, err := s.ListFeedback(ctx, limit, minRating)
	if err != nil {
		return nil, err
	}

	type key struct{ user, query string }
	byKey := make(map[key]Feedback, len(feedback))
	// Feedback is newest first; keep the most recent per key
	for i := len(feedback) - 1; i >= 0; i-- {
		f := feedback[i]
		byKey[key{f.UserID, f.Query}] = f
	}

	out := make([]TrainingExample, 0, len(logs))
	for _, r := range logs {
		ex := TrainingExample{
			Query:      r.Query,
			Answer:     r.Answer,
			Provenance: r.Provenance,
			Confidence: r.Confidence,
		}
		if f, ok := byKey[key{r.UserID, r.Query}]; ok {
			rating, comment := f.Rating, f.Comment
			ex.Rating, ex.Comment = &rating, &comment
		}
		out = append(out, ex)
	}
	return out, nil
}

// ExportTrainingData writes TrainingData to path as JSONL and returns the
// number of examples written
func (s *Store) ExportTrainingData(ctx context.Context, path string, limit int, minRating *int) (int, error) {
	examples, err := s.TrainingData(ctx, limit, minRating)
	if err != nil {
		return 0, err
	}
	if err := writeJSONL(path, examples); err != nil {
		return 0, err
	}
	return len(examples), nil
}
