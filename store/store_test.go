package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/doc-chat/database"
	"github.com/fabfab/doc-chat/store"
)

// These tests need a running Postgres and are skipped by default:
//
//	RUN_DB_INTEGRATION_TESTS=1 POSTGRES_DSN=postgres://... go test ./store
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run Postgres-backed store tests")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/doc-chat?sslmode=disable"
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres connection: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return pool
}

func createDocument(t *testing.T, docs *store.DocumentStore) store.Document {
	t.Helper()
	doc := store.Document{
		ID:         uuid.New(),
		Title:      "integration.txt",
		FileType:   "txt",
		StorageKey: "key-" + uuid.NewString(),
		StorageURL: "file:///tmp/integration.txt",
		FileSize:   128,
		Status:     store.StatusPending,
	}
	if err := docs.Create(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	t.Cleanup(func() {
		_ = docs.Delete(context.Background(), doc.ID)
	})
	return doc
}

func TestDocumentLifecycle(t *testing.T) {
	pool := testPool(t)
	docs := store.NewDocumentStore(pool)
	ctx := context.Background()

	doc := createDocument(t, docs)

	loaded, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != store.StatusPending || loaded.Title != doc.Title {
		t.Fatalf("unexpected document: %+v", loaded)
	}

	if err := docs.Transition(ctx, doc.ID, store.StatusPending, store.StatusProcessing, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// The same transition again must fail: the document already left pending.
	err = docs.Transition(ctx, doc.ID, store.StatusPending, store.StatusProcessing, "")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	chunks := []store.Chunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, Content: "first chunk", VectorID: uuid.NewString()},
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 1, Content: "second chunk", VectorID: uuid.NewString()},
	}
	if err := docs.FinishProcessing(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("finish processing: %v", err)
	}

	ready, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if ready.Status != store.StatusReady || ready.ChunkCount != 2 || ready.ProcessedAt == nil {
		t.Fatalf("unexpected ready document: %+v", ready)
	}

	stored, err := docs.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("chunks by document: %v", err)
	}
	if len(stored) != 2 || stored[0].ChunkIndex != 0 || stored[1].ChunkIndex != 1 {
		t.Fatalf("unexpected chunks: %+v", stored)
	}

	// Lookup by vector id preserves the requested order.
	reversed := []string{chunks[1].VectorID, chunks[0].VectorID}
	byVector, err := docs.ChunksByVectorIDs(ctx, reversed)
	if err != nil {
		t.Fatalf("chunks by vector ids: %v", err)
	}
	if len(byVector) != 2 || byVector[0].VectorID != reversed[0] || byVector[1].VectorID != reversed[1] {
		t.Fatalf("unexpected order: %+v", byVector)
	}

	if err := docs.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := docs.Get(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := docs.Delete(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestFinishProcessingRequiresProcessingState(t *testing.T) {
	pool := testPool(t)
	docs := store.NewDocumentStore(pool)
	ctx := context.Background()

	doc := createDocument(t, docs)

	err := docs.FinishProcessing(ctx, doc.ID, nil)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for a pending document, got %v", err)
	}

	// The rolled-back transaction must leave the status untouched.
	loaded, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != store.StatusPending {
		t.Fatalf("expected pending, got %s", loaded.Status)
	}
}

func TestSessionHistoryOrdering(t *testing.T) {
	pool := testPool(t)
	docs := store.NewDocumentStore(pool)
	sessions := store.NewSessionStore(pool)
	ctx := context.Background()

	doc := createDocument(t, docs)

	session := store.ChatSession{ID: uuid.New(), DocumentID: doc.ID, Title: "Chat with integration.txt"}
	if err := sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := sessions.AppendTurn(ctx, session.ID, "first question", "first answer", []string{"v1", "v2"}); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if err := sessions.AppendTurn(ctx, session.ID, "second question", "second answer", nil); err != nil {
		t.Fatalf("append turn: %v", err)
	}

	messages, err := sessions.Messages(ctx, session.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}

	wantRoles := []string{store.RoleUser, store.RoleAssistant, store.RoleUser, store.RoleAssistant}
	for i, msg := range messages {
		if msg.Role != wantRoles[i] {
			t.Fatalf("message %d has role %s, want %s", i, msg.Role, wantRoles[i])
		}
	}
	if messages[0].Content != "first question" || messages[3].Content != "second answer" {
		t.Fatalf("messages out of order: %+v", messages)
	}
	if len(messages[1].ContextChunkIDs) != 2 || messages[1].ContextChunkIDs[0] != "v1" {
		t.Fatalf("unexpected context ids: %v", messages[1].ContextChunkIDs)
	}
	if len(messages[3].ContextChunkIDs) != 0 {
		t.Fatalf("expected no context ids, got %v", messages[3].ContextChunkIDs)
	}

	loaded, err := sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !loaded.UpdatedAt.After(loaded.CreatedAt) && !loaded.UpdatedAt.Equal(loaded.CreatedAt) {
		t.Fatalf("updated_at should be bumped: %+v", loaded)
	}
}

func TestSessionGetUnknown(t *testing.T) {
	pool := testPool(t)
	sessions := store.NewSessionStore(pool)

	_, err := sessions.Get(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
