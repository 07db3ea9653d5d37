package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the relational tables on startup. Vector storage is
// provisioned separately by the configured index backend.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			file_type TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			storage_url TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			status TEXT NOT NULL,
			status_message TEXT NOT NULL DEFAULT '',
			chunk_count INT NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			vector_id TEXT NOT NULL,
			UNIQUE(document_id, chunk_index)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			context_chunk_ids JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_document ON chat_sessions(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
