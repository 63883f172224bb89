package graph

import (
	"context"
	"fmt"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	cypherClaims = `
MATCH (c:Chunk)-[:SUPPORTS]->(cl:Claim)
WHERE c.id IN $chunk_ids
RETURN cl.id AS id, cl.text AS text, count(distinct c) AS support_count
ORDER BY support_count DESC, id
LIMIT $limit`

	cypherContradictions = `
MATCH (c:Chunk)-[:SUPPORTS]->(cl:Claim)
WHERE c.id IN $chunk_ids
OPTIONAL MATCH (cl)-[:CONTRADICTS]->(other:Claim)
RETURN cl.id AS id, count(distinct other) AS contradict_count`

	cypherEntities = `
MATCH (c:Chunk)-[:MENTIONS]->(e:Entity)
WHERE c.id IN $chunk_ids
RETURN e.name AS name, count(distinct c) AS chunk_count
ORDER BY chunk_count DESC, name
LIMIT $limit`

	cypherChunkScores = `
MATCH (c:Chunk)
WHERE c.id IN $chunk_ids
OPTIONAL MATCH (c)-[:SUPPORTS]->(cl:Claim)
OPTIONAL MATCH (cl)-[:CONTRADICTS]->(other:Claim)
OPTIONAL MATCH (c)-[:MENTIONS]->(e:Entity)
RETURN c.id AS chunk_id,
       count(distinct cl) AS support_count,
       count(distinct other) AS contradict_count,
       count(distinct e) AS entity_count`

	cypherPaths = `
MATCH (c:Chunk)-[:SUPPORTS]->(cl:Claim)-[:MENTIONS]->(e:Entity)
WHERE c.id IN $chunk_ids
MATCH (e)-[:RELATES]->(e2:Entity)
RETURN c.id AS chunk_id, e.name AS src, e2.name AS dst, count(*) AS path_count
ORDER BY path_count DESC, chunk_id, src, dst
LIMIT $limit`

	cypherRelations = `
MATCH (c:Chunk)-[:MENTIONS]->(e:Entity)-[r:RELATES]->(e2:Entity)
WHERE c.id IN $chunk_ids
RETURN e.name AS src, r.predicate AS predicate, e2.name AS dst, count(r) AS rel_count
ORDER BY rel_count DESC, src, predicate, dst
LIMIT $limit`

	cypherDensity = `
MATCH (c:Chunk)-[:MENTIONS]->(e:Entity)
WHERE e.name IN $names
RETURN e.name AS name, count(distinct c) AS chunk_count
ORDER BY chunk_count DESC, name`

	cypherChunkEntities = `
MATCH (c:Chunk)-[:MENTIONS]->(e:Entity)
WHERE c.id IN $chunk_ids
RETURN c.id AS chunk_id, e.name AS entity
ORDER BY chunk_id, entity
LIMIT $limit`
)

// Neo4jConfig configures the Neo4j reader
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore runs read-only Cypher against Neo4j
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a store. The driver connects lazily on first query.
func NewNeo4jStore(cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

// Close releases the driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j read: %w", err)
	}
	return res.Records, nil
}

func recString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func recInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// TopClaims implements Store
func (s *Neo4jStore) TopClaims(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphClaim, error) {
	recs, err := s.read(ctx, cypherClaims, map[string]any{"chunk_ids": chunkIDs, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.GraphClaim, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.GraphClaim{
			ID:           recString(rec, "id"),
			Text:         recString(rec, "text"),
			SupportCount: recInt(rec, "support_count"),
		})
	}
	return out, nil
}

// ClaimContradictions implements Store
func (s *Neo4jStore) ClaimContradictions(ctx context.Context, chunkIDs []string) (map[string]int, error) {
	recs, err := s.read(ctx, cypherContradictions, map[string]any{"chunk_ids": chunkIDs})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(recs))
	for _, rec := range recs {
		out[recString(rec, "id")] = recInt(rec, "contradict_count")
	}
	return out, nil
}

// TopEntities implements Store
func (s *Neo4jStore) TopEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.EntityDensity, error) {
	recs, err := s.read(ctx, cypherEntities, map[string]any{"chunk_ids": chunkIDs, "limit": limit})
	if err != nil {
		return nil, err
	}
	return densities(recs), nil
}

func densities(recs []*neo4j.Record) []model.EntityDensity {
	out := make([]model.EntityDensity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.EntityDensity{
			Name:       recString(rec, "name"),
			ChunkCount: recInt(rec, "chunk_count"),
		})
	}
	return out
}

// ChunkScores implements Store
func (s *Neo4jStore) ChunkScores(ctx context.Context, chunkIDs []string) ([]model.EvidenceScore, error) {
	recs, err := s.read(ctx, cypherChunkScores, map[string]any{"chunk_ids": chunkIDs})
	if err != nil {
		return nil, err
	}
	out := make([]model.EvidenceScore, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.EvidenceScore{
			ChunkID:         recString(rec, "chunk_id"),
			SupportCount:    recInt(rec, "support_count"),
			ContradictCount: recInt(rec, "contradict_count"),
			EntityCount:     recInt(rec, "entity_count"),
		})
	}
	return out, nil
}

// Relations implements Store
func (s *Neo4jStore) Relations(ctx context.Context, chunkIDs []string, limit int) ([]model.Relation, error) {
	recs, err := s.read(ctx, cypherRelations, map[string]any{"chunk_ids": chunkIDs, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.Relation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.Relation{
			Src:       recString(rec, "src"),
			Predicate: recString(rec, "predicate"),
			Dst:       recString(rec, "dst"),
			Count:     recInt(rec, "rel_count"),
		})
	}
	return out, nil
}

// Paths implements Store
func (s *Neo4jStore) Paths(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphPath, error) {
	recs, err := s.read(ctx, cypherPaths, map[string]any{"chunk_ids": chunkIDs, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.GraphPath, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.GraphPath{
			ChunkID:   recString(rec, "chunk_id"),
			Src:       recString(rec, "src"),
			Dst:       recString(rec, "dst"),
			PathCount: recInt(rec, "path_count"),
		})
	}
	return out, nil
}

// EntityDensity implements Store
func (s *Neo4jStore) EntityDensity(ctx context.Context, names []string) ([]model.EntityDensity, error) {
	recs, err := s.read(ctx, cypherDensity, map[string]any{"names": names})
	if err != nil {
		return nil, err
	}
	return densities(recs), nil
}

// ChunkEntities implements Store
func (s *Neo4jStore) ChunkEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.ChunkEntity, error) {
	recs, err := s.read(ctx, cypherChunkEntities, map[string]any{"chunk_ids": chunkIDs, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.ChunkEntity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.ChunkEntity{
			ChunkID: recString(rec, "chunk_id"),
			Entity:  recString(rec, "entity"),
		})
	}
	return out, nil
}
