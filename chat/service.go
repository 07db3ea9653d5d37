// Package chat answers questions against a processed document by retrieving
// the most relevant chunks and conditioning a hosted model on them.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/doc-chat/config"
	"github.com/fabfab/doc-chat/embeddings"
	"github.com/fabfab/doc-chat/fault"
	"github.com/fabfab/doc-chat/llm"
	"github.com/fabfab/doc-chat/store"
	"github.com/fabfab/doc-chat/vectorindex"
)

// historyLimit caps how many prior messages feed the composer.
const historyLimit = 10

const backoffBase = 500 * time.Millisecond

// SessionStore is the slice of the relational store the chat service needs.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (store.ChatSession, error)
	Messages(ctx context.Context, sessionID uuid.UUID) ([]store.ChatMessage, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, question, answer string, contextChunkIDs []string) error
}

// DocumentReader resolves the session's document and the retrieved chunks.
type DocumentReader interface {
	Get(ctx context.Context, id uuid.UUID) (store.Document, error)
	ChunksByVectorIDs(ctx context.Context, ids []string) ([]store.Chunk, error)
}

type Service struct {
	sessions SessionStore
	docs     DocumentReader
	index    vectorindex.Store
	embedder embeddings.Embedder
	llm      llm.Client
	logger   *log.Logger

	topK            int
	maxContextChars int
	maxRetries      int
	callTimeout     time.Duration
}

func NewService(
	sessions SessionStore,
	docs DocumentReader,
	index vectorindex.Store,
	embedder embeddings.Embedder,
	llmClient llm.Client,
	logger *log.Logger,
	cfg config.Config,
) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		sessions:        sessions,
		docs:            docs,
		index:           index,
		embedder:        embedder,
		llm:             llmClient,
		logger:          logger,
		topK:            cfg.Pipeline.TopK,
		maxContextChars: cfg.LLM.MaxContextChars,
		maxRetries:      cfg.Pipeline.MaxRetries,
		callTimeout:     cfg.Pipeline.CallTimeout,
	}
}

// Send answers one question within a session and appends the turn to the
// session history. A failure returns an error for this single message and
// leaves the history untouched.
func (s *Service) Send(ctx context.Context, sessionID uuid.UUID, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question cannot be empty")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Response{}, err
	}

	doc, err := s.docs.Get(ctx, session.DocumentID)
	if err != nil {
		return Response{}, err
	}
	if doc.Status != store.StatusReady {
		return Response{}, fmt.Errorf("document %s is %s, not ready for chat", doc.ID, doc.Status)
	}

	var vectors [][]float32
	err = fault.Retry(ctx, s.logger, s.maxRetries, backoffBase, "embed question", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		var embedErr error
		vectors, embedErr = s.embedder.Embed(callCtx, []string{question})
		return fault.Timeout(embedErr)
	})
	if err != nil {
		return Response{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return Response{}, fmt.Errorf("embedder returned no vectors")
	}

	var matches []vectorindex.Match
	err = fault.Retry(ctx, s.logger, s.maxRetries, backoffBase, "query index", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		var queryErr error
		matches, queryErr = s.index.Query(callCtx, vectors[0], s.topK, doc.ID.String())
		return fault.Timeout(queryErr)
	})
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}

	passages, contextIDs, err := s.resolvePassages(ctx, matches)
	if err != nil {
		return Response{}, err
	}
	if len(passages) == 0 {
		s.logger.Printf("no context retrieved for session %s, answering without document context", sessionID)
	}

	history, err := s.history(ctx, sessionID)
	if err != nil {
		return Response{}, err
	}

	messages, err := BuildPrompt(question, passages, history, s.maxContextChars)
	if err != nil {
		return Response{}, err
	}

	var answer string
	err = fault.Retry(ctx, s.logger, s.maxRetries, backoffBase, "generate answer", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		var genErr error
		answer, genErr = s.llm.Generate(callCtx, messages)
		return fault.Timeout(genErr)
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm generate: %w", err)
	}
	answer = strings.TrimSpace(answer)

	if err := s.sessions.AppendTurn(ctx, sessionID, question, answer, contextIDs); err != nil {
		return Response{}, fmt.Errorf("persist chat turn: %w", err)
	}

	return Response{Answer: answer, ContextChunkIDs: contextIDs}, nil
}

// resolvePassages loads the chunk texts behind the index matches, keeping
// the index's ranking order.
func (s *Service) resolvePassages(ctx context.Context, matches []vectorindex.Match) ([]Passage, []string, error) {
	if len(matches) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float64, len(matches))
	for i, match := range matches {
		ids[i] = match.ID
		scores[match.ID] = match.Score
	}

	chunks, err := s.docs.ChunksByVectorIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load retrieved chunks: %w", err)
	}

	passages := make([]Passage, 0, len(chunks))
	contextIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		passages = append(passages, Passage{
			VectorID: chunk.VectorID,
			Content:  chunk.Content,
			Score:    scores[chunk.VectorID],
		})
		contextIDs = append(contextIDs, chunk.VectorID)
	}
	return passages, contextIDs, nil
}

func (s *Service) history(ctx context.Context, sessionID uuid.UUID) ([]llm.Message, error) {
	stored, err := s.sessions.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	if len(stored) > historyLimit {
		stored = stored[len(stored)-historyLimit:]
	}

	history := make([]llm.Message, len(stored))
	for i, msg := range stored {
		history[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}
	return history, nil
}
