// Package graph reads the chunk, claim and entity graph and summarises it
// for a set of evidence chunks.
package graph

import (
	"context"

	"github.com/atikulmunna/sagrag/internal/model"
)

// Store is the read side of the claim graph. Nodes are Chunk, Claim and
// Entity; edges are MENTIONS, SUPPORTS, RELATES(predicate) and CONTRADICTS.
type Store interface {
	// TopClaims returns claims supported by the chunks, most supported first
	TopClaims(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphClaim, error)
	// ClaimContradictions returns outgoing CONTRADICTS counts per claim
	ClaimContradictions(ctx context.Context, chunkIDs []string) (map[string]int, error)
	// TopEntities returns entities mentioned by the chunks, densest first
	TopEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.EntityDensity, error)
	// ChunkScores returns per-chunk support, contradiction and entity counts
	ChunkScores(ctx context.Context, chunkIDs []string) ([]model.EvidenceScore, error)
	Relations(ctx context.Context, chunkIDs []string, limit int) ([]model.Relation, error)
	Paths(ctx context.Context, chunkIDs []string, limit int) ([]model.GraphPath, error)
	// EntityDensity counts the chunks mentioning each named entity
	EntityDensity(ctx context.Context, names []string) ([]model.EntityDensity, error)
	ChunkEntities(ctx context.Context, chunkIDs []string, limit int) ([]model.ChunkEntity, error)
	Close(ctx context.Context) error
}
