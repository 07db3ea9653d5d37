// Package api exposes the HTTP surface: document upload and lifecycle,
// chat sessions, and message history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/fabfab/doc-chat/chat"
	"github.com/fabfab/doc-chat/fault"
	"github.com/fabfab/doc-chat/store"
)

// Pipeline runs document processing and lifecycle operations.
type Pipeline interface {
	Upload(ctx context.Context, filename string, size int64, r io.Reader) (store.Document, error)
	Retry(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Chat answers a question within a session.
type Chat interface {
	Send(ctx context.Context, sessionID uuid.UUID, question string) (chat.Response, error)
}

// Documents reads document records.
type Documents interface {
	Get(ctx context.Context, id uuid.UUID) (store.Document, error)
	List(ctx context.Context) ([]store.Document, error)
}

// Sessions reads and creates chat sessions.
type Sessions interface {
	Create(ctx context.Context, session store.ChatSession) error
	Get(ctx context.Context, id uuid.UUID) (store.ChatSession, error)
	Messages(ctx context.Context, sessionID uuid.UUID) ([]store.ChatMessage, error)
}

// Server exposes HTTP handlers for the core doc-chat workflows.
type Server struct {
	pipeline       Pipeline
	chat           Chat
	documents      Documents
	sessions       Sessions
	logger         *log.Logger
	maxUploadBytes int64
	handler        http.Handler
}

func New(pipeline Pipeline, chatSvc Chat, documents Documents, sessions Sessions, logger *log.Logger, maxUploadBytes int64) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}

	s := &Server{
		pipeline:       pipeline,
		chat:           chatSvc,
		documents:      documents,
		sessions:       sessions,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/documents", s.handleUpload)
	mux.HandleFunc("GET /v1/documents", s.handleListDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/retry", s.handleRetryDocument)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleHistory)
	return mux
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, fault.ErrUnsupportedFormat):
		s.writeError(w, http.StatusUnsupportedMediaType, err)
	case errors.Is(err, fault.ErrInvalidConfig):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, fault.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
