package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/atikulmunna/sagrag/internal/extract"
	"github.com/atikulmunna/sagrag/internal/model"
)

type memClaim struct {
	id         string
	text       string
	supporters map[string]bool // Chunk ids
	entities   map[string]bool
	contradict map[string]bool // Claim ids
}

type memChunk struct {
	id       string
	claims   []string
	entities map[string]bool
}

// MemoryStore is an in-process claim graph for offline use and tests
type MemoryStore struct {
	mu             sync.RWMutex
	chunks         map[string]*memChunk
	claims         map[string]*memClaim
	claimOrder     []string
	relations      []model.Relation // One edge per (src, predicate, dst)
	claimsPerChunk int
	overlap        float64
}

// NewMemoryStore creates an empty store. claimsPerChunk bounds the claims
// split from each chunk; overlap is the contradiction token overlap ratio.
func NewMemoryStore(claimsPerChunk int, overlap float64) *MemoryStore {
	if claimsPerChunk <= 0 {
		claimsPerChunk = 5
	}
	if overlap <= 0 {
		overlap = 0.6
	}
	return &MemoryStore{
		chunks:         make(map[string]*memChunk),
		claims:         make(map[string]*memClaim),
		claimsPerChunk: claimsPerChunk,
		overlap:        overlap,
	}
}

// AddChunk records a chunk with its claims, entity mentions and relations.
// New claims are tested for contradiction against every existing claim.
func (s *MemoryStore) AddChunk(id, text string, entities []string, relations []model.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.chunks[id]
	if !ok {
		ch = &memChunk{id: id, entities: make(map[string]bool)}
		s.chunks[id] = ch
	}
	for _, e := range entities {
		ch.entities[e] = true
	}

	existing := append([]string(nil), s.claimOrder...)
	var added []*memClaim
	for i, claim := range extract.SplitClaims(text, s.claimsPerChunk) {
		cid := extract.ClaimID(id, i)
		cl, ok := s.claims[cid]
		if !ok {
			cl = &memClaim{
				id:         cid,
				text:       claim,
				supporters: make(map[string]bool),
				entities:   make(map[string]bool),
				contradict: make(map[string]bool),
			}
			s.claims[cid] = cl
			s.claimOrder = append(s.claimOrder, cid)
			added = append(added, cl)
		}
		cl.supporters[id] = true
		ch.claims = append(ch.claims, cid)
		lower := strings.ToLower(claim)
		for _, e := range entities {
			if strings.Contains(lower, strings.ToLower(e)) {
				cl.entities[e] = true
			}
		}
	}

	for _, r := range relations {
		s.addRelation(r)
	}

	for _, cl := range added {
		for _, oid := range existing {
			if other := s.claims[oid]; Contradicts(cl.text, other.text, entities, s.overlap) {
				cl.contradict[oid] = true
			}
		}
	}
}

func (s *MemoryStore) addRelation(r model.Relation) {
	for _, existing := range s.relations {
		if existing.Src == r.Src && existing.Predicate == r.Predicate && existing.Dst == r.Dst {
			return
		}
	}
	s.relations = append(s.relations, model.Relation{Src: r.Src, Predicate: r.Predicate, Dst: r.Dst})
}

type fixtureChunk struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Entities  []string         `json:"entities"`
	Relations []model.Relation `json:"relations"`
}

// LoadFixture populates the store from a JSON file of
// {"chunks": [{id, text, entities, relations}]}
func (s *MemoryStore) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph fixture: %w", err)
	}
	var fx struct {
		Chunks []fixtureChunk `json:"chunks"`
	}
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode graph fixture: %w", err)
	}
	for _, c := range fx.Chunks {
		s.AddChunk(c.ID, c.Text, c.Entities, c.Relations)
	}
	return nil
}

// Close implements Store
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) chunkSet(ids []string) []*memChunk {
	var out []*memChunk
	seen := make(map[string]bool)
	for _, id := range ids {
		if ch, ok := s.chunks[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, ch)
		}
	}
	return out
}

func clip[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// TopClaims implements Store
func (s *MemoryStore) TopClaims(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	support := make(map[string]int)
	for _, ch := range s.chunkSet(chunkIDs) {
		for _, cid := range ch.claims {
			support[cid]++
		}
	}
	out := make([]model.GraphClaim, 0, len(support))
	for cid, n := range support {
		out = append(out, model.GraphClaim{ID: cid, Text: s.claims[cid].text, SupportCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SupportCount != out[j].SupportCount {
			return out[i].SupportCount > out[j].SupportCount
		}
		return out[i].ID < out[j].ID
	})
	return clip(out, limit), nil
}

// ClaimContradictions implements Store
func (s *MemoryStore) ClaimContradictions(ctx context.Context, chunkIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, ch := range s.chunkSet(chunkIDs) {
		for _, cid := range ch.claims {
			out[cid] = len(s.claims[cid].contradict)
		}
	}
	return out, nil
}

// TopEntities implements Store
func (s *MemoryStore) TopEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.EntityDensity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, ch := range s.chunkSet(chunkIDs) {
		for e := range ch.entities {
			counts[e]++
		}
	}
	return clip(sortedDensity(counts), limit), nil
}

func sortedDensity(counts map[string]int) []model.EntityDensity {
	out := make([]model.EntityDensity, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.EntityDensity{Name: name, ChunkCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChunkCount != out[j].ChunkCount {
			return out[i].ChunkCount > out[j].ChunkCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ChunkScores implements Store
func (s *MemoryStore) ChunkScores(ctx context.Context, chunkIDs []string) ([]model.EvidenceScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EvidenceScore
	for _, ch := range s.chunkSet(chunkIDs) {
		claims := make(map[string]bool)
		others := make(map[string]bool)
		for _, cid := range ch.claims {
			claims[cid] = true
			for o := range s.claims[cid].contradict {
				others[o] = true
			}
		}
		out = append(out, model.EvidenceScore{
			ChunkID:         ch.id,
			SupportCount:    len(claims),
			ContradictCount: len(others),
			EntityCount:     len(ch.entities),
		})
	}
	return out, nil
}

// Relations implements Store. The count of a relation is the number of
// chunks in the set that mention its subject.
func (s *MemoryStore) Relations(ctx context.Context, chunkIDs []string, limit int) ([]model.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunkSet(chunkIDs)
	var out []model.Relation
	for _, r := range s.relations {
		n := 0
		for _, ch := range chunks {
			if ch.entities[r.Src] {
				n++
			}
		}
		if n > 0 {
			out = append(out, model.Relation{Src: r.Src, Predicate: r.Predicate, Dst: r.Dst, Count: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return clip(out, limit), nil
}

// Paths implements Store
func (s *MemoryStore) Paths(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ chunk, src, dst string }
	counts := make(map[key]int)
	for _, ch := range s.chunkSet(chunkIDs) {
		for _, cid := range ch.claims {
			for e := range s.claims[cid].entities {
				for _, r := range s.relations {
					if r.Src == e {
						counts[key{ch.id, e, r.Dst}]++
					}
				}
			}
		}
	}

	out := make([]model.GraphPath, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.GraphPath{ChunkID: k.chunk, Src: k.src, Dst: k.dst, PathCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PathCount != b.PathCount {
			return a.PathCount > b.PathCount
		}
		if a.ChunkID != b.ChunkID {
			return a.ChunkID < b.ChunkID
		}
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		return a.Dst < b.Dst
	})
	return clip(out, limit), nil
}

// EntityDensity implements Store
func (s *MemoryStore) EntityDensity(ctx context.Context, names []string) ([]model.EntityDensity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	counts := make(map[string]int)
	for _, ch := range s.chunks {
		for e := range ch.entities {
			if want[e] {
				counts[e]++
			}
		}
	}
	return sortedDensity(counts), nil
}

// ChunkEntities implements Store
func (s *MemoryStore) ChunkEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.ChunkEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ChunkEntity
	for _, ch := range s.chunkSet(chunkIDs) {
		names := make([]string, 0, len(ch.entities))
		for e := range ch.entities {
			names = append(names, e)
		}
		sort.Strings(names)
		for _, e := range names {
			out = append(out, model.ChunkEntity{ChunkID: ch.id, Entity: e})
		}
	}
	return clip(out, limit), nil
}
