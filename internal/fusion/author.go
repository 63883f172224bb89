package fusion

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/model"
)

// AuthorIndex maps a lower-cased author term to the sources attributed to it
type AuthorIndex map[string][]string

// DecodeAuthorIndex parses the JSON author index written at ingestion
func DecodeAuthorIndex(data []byte) (AuthorIndex, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode author index: %w", err)
	}
	idx := make(AuthorIndex, len(raw))
	for term, sources := range raw {
		key := strings.ToLower(strings.TrimSpace(term))
		idx[key] = append(idx[key], sources...)
	}
	return idx, nil
}

// Lists reports whether source is attributed to term
func (idx AuthorIndex) Lists(term, source string) bool {
	if source == "" {
		return false
	}
	for _, s := range idx[term] {
		if s == source || filepath.Base(s) == filepath.Base(source) {
			return true
		}
	}
	return false
}

// AuthorTerms returns the lower-cased capitalized query words that are not
// stopwords, followed by any configured author keyword found in the query.
func AuthorTerms(query string, keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	for _, w := range extract.Words(query) {
		r := []rune(w)
		if len(r) < 2 || !unicode.IsUpper(r[0]) || extract.IsStopword(w) {
			continue
		}
		add(strings.ToLower(w))
	}

	q := strings.ToLower(query)
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(q, kw) {
			add(kw)
		}
	}
	return out
}

// AuthorBias is 1 when a term names the source file, 0.5 when a term only
// appears in the text and 0 otherwise
func AuthorBias(it *model.EvidenceItem, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	file := strings.ToLower(filepath.Base(it.Source))
	if it.Source != "" && containsAny(file, terms) {
		return 1.0
	}
	if containsAny(strings.ToLower(it.Text), terms) {
		return 0.5
	}
	return 0
}

// isAuthorMatch reports whether the author index lists the item's source or
// a term appears in its source or text
func isAuthorMatch(it *model.EvidenceItem, terms []string, idx AuthorIndex) bool {
	source := strings.ToLower(it.Source)
	text := strings.ToLower(it.Text)
	for _, t := range terms {
		if idx.Lists(t, it.Source) || strings.Contains(source, t) || strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// ContentTerms returns the query words that carry topic meaning: longer than
// two characters, not stopwords and not author terms. Each term is expanded
// with its configured synonyms.
func ContentTerms(query string, authorTerms []string, synonyms map[string][]string) []string {
	author := make(map[string]bool, len(authorTerms))
	for _, t := range authorTerms {
		author[t] = true
	}

	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, w := range extract.QueryTokens(query) {
		if author[w] || extract.IsStopword(w) {
			continue
		}
		add(w)
		for _, syn := range synonyms[w] {
			add(strings.ToLower(strings.TrimSpace(syn)))
		}
	}
	return out
}

// sortByRerank orders items by rerank score descending. Items without a
// score keep their relative order after the scored ones.
func sortByRerank(items []*model.EvidenceItem, withBias bool) {
	key := func(it *model.EvidenceItem) (float64, bool) {
		if it.RerankScore == nil {
			if withBias {
				return it.AuthorBias, false
			}
			return 0, false
		}
		return *it.RerankScore, true
	}
	sort.SliceStable(items, func(i, j int) bool {
		ki, oki := key(items[i])
		kj, okj := key(items[j])
		if oki != okj {
			return oki
		}
		return ki > kj
	})
}

// authorPass folds the author bias into the ranking and restricts the
// evidence to author-matching items that also cover the query topic. When
// nothing qualifies the bias is removed again and authorGap is reported.
func authorPass(items []*model.EvidenceItem, terms, content []string, idx AuthorIndex) (out []*model.EvidenceItem, authorGap bool) {
	for _, it := range items {
		if it.RerankScore != nil {
			s := *it.RerankScore + it.AuthorBias
			it.RerankScore = &s
		}
	}
	sortByRerank(items, true)

	var subset []*model.EvidenceItem
	for _, it := range items {
		if !isAuthorMatch(it, terms, idx) {
			continue
		}
		if len(content) > 0 && !containsAny(strings.ToLower(it.Text), content) {
			continue
		}
		subset = append(subset, it)
	}
	if len(subset) > 0 {
		return subset, false
	}

	for _, it := range items {
		if it.RerankScore != nil {
			s := *it.RerankScore - it.AuthorBias
			it.RerankScore = &s
		}
	}
	sortByRerank(items, false)
	return items, true
}
