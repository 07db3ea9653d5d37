package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session ChatSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, document_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, session.ID, session.DocumentID, session.Title)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	var session ChatSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = $1
	`, id).Scan(&session.ID, &session.DocumentID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatSession{}, ErrNotFound
		}
		return ChatSession{}, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// Messages returns the session's messages in timestamp order; that order
// defines the conversational context fed to the answer composer.
func (s *SessionStore) Messages(ctx context.Context, sessionID uuid.UUID) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, context_chunk_ids, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		var (
			msg ChatMessage
			raw []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &raw, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &msg.ContextChunkIDs); err != nil {
				return nil, fmt.Errorf("decode context chunk ids: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendTurn writes the user question and the assistant answer as one
// transaction and bumps the session's updated_at. The user message carries
// an earlier timestamp so history ordering stays stable.
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID uuid.UUID, question, answer string, contextChunkIDs []string) (err error) {
	contextIDs, err := json.Marshal(contextChunkIDs)
	if err != nil {
		return fmt.Errorf("encode context chunk ids: %w", err)
	}
	if contextChunkIDs == nil {
		contextIDs = []byte("[]")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, context_chunk_ids, created_at)
		VALUES ($1, $2, $3, $4, '[]', NOW())
	`, uuid.New(), sessionID, RoleUser, question); err != nil {
		return fmt.Errorf("insert user message: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, context_chunk_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW() + interval '1 millisecond')
	`, uuid.New(), sessionID, RoleAssistant, answer, contextIDs); err != nil {
		return fmt.Errorf("insert assistant message: %w", err)
	}

	if _, err = tx.Exec(ctx, "UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1", sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
