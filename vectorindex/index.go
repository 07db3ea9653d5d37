// Package vectorindex stores chunk embeddings in a nearest-neighbor index
// and answers filtered top-k similarity queries. Two backends are provided:
// pgvector inside the relational database and a hosted Qdrant instance.
package vectorindex

import "context"

// Item is one (vector id, embedding, metadata) entry. ID doubles as the
// chunk's external vector-index id and upserts are idempotent on it.
type Item struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Vector     []float32
}

// Match is a query hit, ordered by descending similarity. Ties are broken
// by chunk insertion order.
type Match struct {
	ID         string
	ChunkIndex int
	Score      float64
}

// Store is the vector index client. Index provisioning happens lazily on
// first use, not per call.
type Store interface {
	// Upsert writes items idempotently; re-sending an unchanged item
	// produces no duplicate query results.
	Upsert(ctx context.Context, items []Item) error
	// Query returns up to k matches for vector, scoped to documentID.
	Query(ctx context.Context, vector []float32, k int, documentID string) ([]Match, error)
	// DeleteDocument removes every vector stored for documentID.
	DeleteDocument(ctx context.Context, documentID string) error
	// Purge drops all vectors for every document.
	Purge(ctx context.Context) error
}
