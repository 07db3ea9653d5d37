package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore keeps embeddings in a chunk_vectors table next to the
// relational data, using cosine distance.
type PgvectorStore struct {
	pool      *pgxpool.Pool
	dimension int

	mu      sync.Mutex
	ensured bool
}

func NewPgvectorStore(pool *pgxpool.Pool, dimension int) *PgvectorStore {
	return &PgvectorStore{pool: pool, dimension: dimension}
}

// ensure provisions the extension, table, and ivfflat index once.
func (s *PgvectorStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if s.dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_vectors (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			embedding VECTOR(%d) NOT NULL
		)`, s.dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunk_vectors_embedding ON chunk_vectors USING ivfflat (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute vector schema statement: %w", err)
		}
	}

	s.ensured = true
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, items []Item) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		if s.dimension > 0 && len(item.Vector) != s.dimension {
			return fmt.Errorf("vector %s dimension mismatch: expected %d, got %d", item.ID, s.dimension, len(item.Vector))
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO chunk_vectors (id, document_id, chunk_index, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				chunk_index = EXCLUDED.chunk_index,
				embedding = EXCLUDED.embedding
		`, item.ID, item.DocumentID, item.ChunkIndex, pgvector.NewVector(item.Vector)); err != nil {
			return fmt.Errorf("upsert vector %s: %w", item.ID, err)
		}
	}

	return nil
}

func (s *PgvectorStore) Query(ctx context.Context, vector []float32, k int, documentID string) ([]Match, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		k = 3
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, chunk_index, (embedding <=> $1::vector) AS distance
		FROM chunk_vectors
		WHERE document_id = $2
		ORDER BY embedding <=> $1::vector, chunk_index
		LIMIT $3
	`, pgvector.NewVector(vector), documentID, k)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var (
			match    Match
			distance float64
		)
		if err := rows.Scan(&match.ID, &match.ChunkIndex, &distance); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		match.Score = 1 - distance
		matches = append(matches, match)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return matches, nil
}

func (s *PgvectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	return nil
}

func (s *PgvectorStore) Purge(ctx context.Context) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE chunk_vectors"); err != nil {
		return fmt.Errorf("truncate chunk_vectors: %w", err)
	}
	return nil
}

var _ Store = (*PgvectorStore)(nil)
