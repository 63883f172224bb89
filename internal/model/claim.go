package model

// GraphClaim is a claim node as seen by the reasoner
type GraphClaim struct {
	ID              string `json:"id"`               // "{chunk_id}::claim::{index}"
	Text            string `json:"text"`
	SupportCount    int    `json:"support_count"`    // Distinct supporting chunks
	ContradictCount int    `json:"contradict_count"` // Outgoing CONTRADICTS edges
}

// EntityDensity is the number of distinct chunks mentioning an entity
type EntityDensity struct {
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

// Relation is an aggregated (subject, predicate, object) triple
type Relation struct {
	Src       string `json:"src"`
	Predicate string `json:"predicate"`
	Dst       string `json:"dst"`
	Count     int    `json:"rel_count"`
}

// RelationStrength surfaces a relation asserted at least twice
type RelationStrength struct {
	Relation string `json:"relation"` // "src|predicate|dst"
	Count    int    `json:"count"`
}

// RelationConflict is a subject/object pair asserted under several predicates
type RelationConflict struct {
	Pair       string   `json:"pair"` // "src|dst"
	Predicates []string `json:"predicates"`
}

// EvidenceScore is the graph-derived score of one chunk
type EvidenceScore struct {
	ChunkID         string  `json:"chunk_id"`
	SupportCount    int     `json:"support_count"`
	ContradictCount int     `json:"contradict_count"`
	EntityCount     int     `json:"entity_count"`
	Score           float64 `json:"score"`
}

// GraphPath counts chunk -> claim -> entity -> entity paths
type GraphPath struct {
	ChunkID   string `json:"chunk_id"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	PathCount int    `json:"path_count"`
}

// GraphReasoning is the read-only summary of the claim graph for a chunk set
type GraphReasoning struct {
	Claims            []GraphClaim       `json:"claims"`
	EntityDensity     []EntityDensity    `json:"entity_density"`
	Relations         []Relation         `json:"relations"`
	RelationStrength  []RelationStrength `json:"relation_strength"`
	RelationConflicts []RelationConflict `json:"relation_conflicts"`
	EvidenceScores    []EvidenceScore    `json:"evidence_scores"`
	Paths             []GraphPath        `json:"paths"`
}

// Contradicted returns the claims with at least one contradiction edge
func (g *GraphReasoning) Contradicted() []Contradiction {
	if g == nil {
		return nil
	}
	var out []Contradiction
	for _, c := range g.Claims {
		if c.ContradictCount > 0 {
			out = append(out, Contradiction{ID: c.ID, ContradictCount: c.ContradictCount})
		}
	}
	return out
}

// ChunkEntity links a chunk to an entity it mentions
type ChunkEntity struct {
	ChunkID string `json:"chunk_id"`
	Entity  string `json:"entity"`
}

// Subgraph is the entity neighbourhood of a chunk set
type Subgraph struct {
	Chunks   []string      `json:"chunks"`
	Entities []string      `json:"entities"`
	Pairs    []ChunkEntity `json:"pairs"`
}
