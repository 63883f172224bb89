// Package fusion turns raw retrieval hits into a filtered, deduplicated and
// re-ranked evidence list.
package fusion

import (
	"strings"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/model"
)

// Normalize converts hits into evidence items. Source type and domain are
// lower-cased, HTML payloads are reduced to their visible text and items
// without text are dropped.
func Normalize(hits []model.RetrievalHit) []*model.EvidenceItem {
	out := make([]*model.EvidenceItem, 0, len(hits))
	for _, h := range hits {
		p := h.Payload
		sourceType := strings.ToLower(strings.TrimSpace(p.SourceType))

		text := p.Text
		if sourceType == "html" && text != "" {
			if visible, err := extract.VisibleText(text); err == nil {
				text = visible
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		out = append(out, &model.EvidenceItem{
			ID:          h.ID,
			Text:        text,
			Source:      p.Source,
			Timestamp:   p.Timestamp,
			SourceType:  sourceType,
			Domain:      strings.ToLower(strings.TrimSpace(p.Domain)),
			OffsetStart: p.OffsetStart,
			OffsetEnd:   p.OffsetEnd,
			Score:       h.Score,
			Agent:       h.Agent,
			ElapsedMS:   h.ElapsedMS,
		})
	}
	return out
}

// Dedup keeps the first item for each whitespace-normalized, lower-cased text
func Dedup(items []*model.EvidenceItem) []*model.EvidenceItem {
	seen := make(map[string]bool, len(items))
	out := make([]*model.EvidenceItem, 0, len(items))
	for _, it := range items {
		key := extract.Normalize(it.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
