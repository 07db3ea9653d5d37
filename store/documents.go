package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional status transition matched no row,
// meaning the document was not in the expected state.
var ErrConflict = errors.New("document is not in the expected state")

type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = "id, title, file_type, storage_key, storage_url, file_size, status, status_message, chunk_count, uploaded_at, processed_at"

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.FileType, &doc.StorageKey, &doc.StorageURL,
		&doc.FileSize, &doc.Status, &doc.StatusMessage, &doc.ChunkCount, &doc.UploadedAt, &doc.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) Create(ctx context.Context, doc Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, file_type, storage_key, storage_url, file_size, status, status_message, chunk_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', 0, NOW())
	`, doc.ID, doc.Title, doc.FileType, doc.StorageKey, doc.StorageURL, doc.FileSize, doc.Status)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	return scanDocument(row)
}

func (s *DocumentStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY uploaded_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Transition moves a document from one status to another. It returns
// ErrConflict when the document was not in the from state, which keeps the
// state machine monotonic under concurrent requests.
func (s *DocumentStore) Transition(ctx context.Context, id uuid.UUID, from, to Status, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $3, status_message = $4 WHERE id = $1 AND status = $2
	`, id, from, to, message)
	if err != nil {
		return fmt.Errorf("transition document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// MarkFailed records a terminal failure with a user-readable message.
func (s *DocumentStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, status_message = $3 WHERE id = $1
	`, id, StatusFailed, message); err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

// FinishProcessing persists the chunk rows and flips the document to ready
// in a single transaction, so a crash mid-write leaves no partially-indexed
// document visible.
func (s *DocumentStore) FinishProcessing(ctx context.Context, id uuid.UUID, chunks []Chunk) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", id); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for _, chunk := range chunks {
		if _, err = tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, content, vector_id)
			VALUES ($1, $2, $3, $4, $5)
		`, chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.VectorID); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2, status_message = '', chunk_count = $3, processed_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, StatusReady, len(chunks), StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrConflict
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChunksByVectorIDs returns the chunks whose vector ids are listed,
// preserving the order of ids.
func (s *DocumentStore) ChunksByVectorIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, vector_id
		FROM chunks WHERE vector_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query chunks by vector id: %w", err)
	}
	defer rows.Close()

	byVectorID := make(map[string]Chunk, len(ids))
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.VectorID); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byVectorID[chunk.VectorID] = chunk
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	ordered := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byVectorID[id]; ok {
			ordered = append(ordered, chunk)
		}
	}
	return ordered, nil
}

// ChunksByDocument returns the document's chunks in sequence order.
func (s *DocumentStore) ChunksByDocument(ctx context.Context, id uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, vector_id
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]Chunk, 0)
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.VectorID); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
