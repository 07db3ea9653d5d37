// Package store persists documents, chunks, chat sessions, and chat
// messages in Postgres. The documents row is the synchronization point for
// the processing state machine.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Status is the document processing state. Transitions are monotonic:
// pending → processing → {ready, failed}; a failed document re-enters
// pending only on an explicit retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Document struct {
	ID            uuid.UUID
	Title         string
	FileType      string
	StorageKey    string
	StorageURL    string
	FileSize      int64
	Status        Status
	StatusMessage string
	ChunkCount    int
	UploadedAt    time.Time
	ProcessedAt   *time.Time
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	VectorID   string
}

type ChatSession struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ChatMessage struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	Role            string
	Content         string
	ContextChunkIDs []string
	CreatedAt       time.Time
}
