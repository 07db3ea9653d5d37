// Package pipeline orchestrates document processing: extract text, split it
// into chunks, embed the chunks, and upsert the vectors. The document status
// row drives the state machine pending → processing → {ready, failed}.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/doc-chat/chunker"
	"github.com/fabfab/doc-chat/config"
	"github.com/fabfab/doc-chat/embeddings"
	"github.com/fabfab/doc-chat/extract"
	"github.com/fabfab/doc-chat/fault"
	"github.com/fabfab/doc-chat/storage"
	"github.com/fabfab/doc-chat/store"
	"github.com/fabfab/doc-chat/vectorindex"
)

// backoffBase is the linear backoff unit between retry attempts.
const backoffBase = 500 * time.Millisecond

// DocumentStore is the slice of the relational store the pipeline needs.
type DocumentStore interface {
	Create(ctx context.Context, doc store.Document) error
	Get(ctx context.Context, id uuid.UUID) (store.Document, error)
	Transition(ctx context.Context, id uuid.UUID, from, to store.Status, message string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	FinishProcessing(ctx context.Context, id uuid.UUID, chunks []store.Chunk) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	docs     DocumentStore
	blobs    storage.Store
	embedder embeddings.Embedder
	index    vectorindex.Store
	splitter *chunker.Chunker
	logger   *log.Logger
	cfg      config.PipelineConfig
}

func NewService(
	docs DocumentStore,
	blobs storage.Store,
	embedder embeddings.Embedder,
	index vectorindex.Store,
	splitter *chunker.Chunker,
	logger *log.Logger,
	cfg config.PipelineConfig,
) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		docs:     docs,
		blobs:    blobs,
		embedder: embedder,
		index:    index,
		splitter: splitter,
		logger:   logger,
		cfg:      cfg,
	}
}

// Upload stores the original file, creates the document record in pending,
// and processes it synchronously. The returned document is in a terminal
// state: ready, or failed with a user-readable message.
func (s *Service) Upload(ctx context.Context, filename string, size int64, r io.Reader) (store.Document, error) {
	format := extract.DetectFormat(filename)
	if format == extract.FormatUnknown || format == extract.FormatImage {
		return store.Document{}, fmt.Errorf("file %q: %w", filename, fault.ErrUnsupportedFormat)
	}

	key, url, err := s.blobs.Save(ctx, filename, r)
	if err != nil {
		return store.Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc := store.Document{
		ID:         uuid.New(),
		Title:      filename,
		FileType:   string(format),
		StorageKey: key,
		StorageURL: url,
		FileSize:   size,
		Status:     store.StatusPending,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Printf("orphaned upload %s: %v", key, delErr)
		}
		return store.Document{}, err
	}

	if err := s.Process(ctx, doc.ID); err != nil {
		s.logger.Printf("processing failed for %s: %v", doc.ID, err)
	}
	return s.docs.Get(ctx, doc.ID)
}

// Process runs the pipeline for a pending document. Any chunk-level failure
// after retries rolls back every vector already upserted and marks the
// document failed, so no partially-indexed document is left queryable.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.Transition(ctx, id, store.StatusPending, store.StatusProcessing, ""); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("document %s is %s, not pending: %w", id, doc.Status, err)
		}
		return err
	}

	if err := s.process(ctx, doc); err != nil {
		// The failure may be the request context itself being canceled; the
		// bookkeeping must still land or the document never reaches a
		// terminal state.
		cleanupCtx := context.WithoutCancel(ctx)
		s.rollback(cleanupCtx, id)
		if markErr := s.docs.MarkFailed(cleanupCtx, id, userMessage(err)); markErr != nil {
			s.logger.Printf("mark failed for %s: %v", id, markErr)
		}
		return err
	}

	return nil
}

// Retry re-enters a failed document into pending and processes it again.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	if err := s.docs.Transition(ctx, id, store.StatusFailed, store.StatusPending, ""); err != nil {
		return err
	}
	return s.Process(ctx, id)
}

// Delete removes the document and its chunks. The relational delete is
// authoritative for the user; vector and blob deletes are best effort and
// only logged on failure.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.index.DeleteDocument(ctx, id.String()); err != nil {
		s.logger.Printf("delete vectors for %s: %v", id, err)
	}
	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil {
		s.logger.Printf("delete stored file for %s: %v", id, err)
	}

	return s.docs.Delete(ctx, id)
}

func (s *Service) process(ctx context.Context, doc store.Document) error {
	rc, err := s.blobs.Open(ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	text, err := extract.Extract(data, extract.Format(doc.FileType))
	if err != nil {
		return err
	}

	spans := s.splitter.Split(text)
	if len(spans) == 0 {
		return fmt.Errorf("no chunks produced: %w", fault.ErrEmptyContent)
	}

	var vectors [][]float32
	err = fault.Retry(ctx, s.logger, s.cfg.MaxRetries, backoffBase, "embed chunks", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var embedErr error
		vectors, embedErr = s.embedder.Embed(callCtx, spans)
		return fault.Timeout(embedErr)
	})
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(spans) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(spans), len(vectors))
	}

	chunks := make([]store.Chunk, len(spans))
	items := make([]vectorindex.Item, len(spans))
	for idx, span := range spans {
		chunkID := uuid.New()
		chunks[idx] = store.Chunk{
			ID:         chunkID,
			DocumentID: doc.ID,
			ChunkIndex: idx,
			Content:    span,
			VectorID:   chunkID.String(),
		}
		items[idx] = vectorindex.Item{
			ID:         chunkID.String(),
			DocumentID: doc.ID.String(),
			ChunkIndex: idx,
			Vector:     vectors[idx],
		}
	}

	err = fault.Retry(ctx, s.logger, s.cfg.MaxRetries, backoffBase, "upsert vectors", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return fault.Timeout(s.index.Upsert(callCtx, items))
	})
	if err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	if err := s.docs.FinishProcessing(ctx, doc.ID, chunks); err != nil {
		return err
	}

	s.logger.Printf("processed %s (%d chunks)", doc.Title, len(chunks))
	return nil
}

// rollback removes vectors that may have been upserted before the failure.
// Chunk rows are only written in FinishProcessing's transaction, so the
// index is the only side effect to undo.
func (s *Service) rollback(ctx context.Context, id uuid.UUID) {
	if err := s.index.DeleteDocument(ctx, id.String()); err != nil {
		s.logger.Printf("rollback vectors for %s: %v", id, err)
	}
}

// userMessage maps pipeline failures to the message surfaced on the
// document record.
func userMessage(err error) string {
	switch {
	case errors.Is(err, fault.ErrUnsupportedFormat):
		return "this file type is not supported"
	case errors.Is(err, fault.ErrCorruptFile):
		return "the file could not be read"
	case errors.Is(err, fault.ErrEmptyContent):
		return "the document contains no usable text"
	case errors.Is(err, fault.ErrRateLimited):
		return "the embedding provider is rate limiting requests, retry later"
	case errors.Is(err, fault.ErrNetworkTimeout):
		return "a provider request timed out, retry later"
	case errors.Is(err, fault.ErrAuth):
		return "the provider rejected the configured credentials"
	default:
		return "processing failed"
	}
}
