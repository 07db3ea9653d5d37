package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/doc-chat/store"
)

type documentResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	FileType      string  `json:"fileType"`
	StorageURL    string  `json:"storageUrl"`
	FileSize      int64   `json:"fileSize"`
	Status        string  `json:"status"`
	StatusMessage string  `json:"statusMessage,omitempty"`
	ChunkCount    int     `json:"chunkCount"`
	UploadedAt    string  `json:"uploadedAt"`
	ProcessedAt   *string `json:"processedAt,omitempty"`
}

type sessionResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type chatMessageResponse struct {
	ID              string   `json:"id"`
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	ContextChunkIDs []string `json:"contextChunkIds,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

type createSessionRequest struct {
	DocumentID string `json:"documentId"`
}

type sendMessageRequest struct {
	Question string `json:"question"`
}

type sendMessageResponse struct {
	Answer          string   `json:"answer"`
	ContextChunkIDs []string `json:"contextChunkIds,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload (max %d bytes): %w", s.maxUploadBytes, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required: %w", err))
		return
	}
	defer file.Close()

	doc, err := s.pipeline.Upload(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	payload := make([]documentResponse, len(docs))
	for i, doc := range docs {
		payload[i] = toDocumentResponse(doc)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.pipeline.Delete(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "document deleted"})
}

func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.pipeline.Retry(r.Context(), id); err != nil {
		// A conflict means the document was not failed and nothing was
		// retried; a processing failure is reflected on the returned record.
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			s.fail(w, err)
			return
		}
		s.logger.Printf("retry failed for %s: %v", id, err)
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid documentId: %w", err))
		return
	}

	doc, err := s.documents.Get(r.Context(), docID)
	if err != nil {
		s.fail(w, err)
		return
	}

	session := store.ChatSession{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Title:      "Chat with " + doc.Title,
	}
	if err := s.sessions.Create(r.Context(), session); err != nil {
		s.fail(w, err)
		return
	}

	created, err := s.sessions.Get(r.Context(), session.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionResponse(created))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	resp, err := s.chat.Send(r.Context(), id, req.Question)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sendMessageResponse{
		Answer:          resp.Answer,
		ContextChunkIDs: resp.ContextChunkIDs,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}

	messages, err := s.sessions.Messages(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	payload := make([]chatMessageResponse, len(messages))
	for i, msg := range messages {
		payload[i] = chatMessageResponse{
			ID:              msg.ID.String(),
			Role:            msg.Role,
			Content:         msg.Content,
			ContextChunkIDs: msg.ContextChunkIDs,
			CreatedAt:       msg.CreatedAt.Format(time.RFC3339),
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func toDocumentResponse(doc store.Document) documentResponse {
	resp := documentResponse{
		ID:            doc.ID.String(),
		Title:         doc.Title,
		FileType:      doc.FileType,
		StorageURL:    doc.StorageURL,
		FileSize:      doc.FileSize,
		Status:        string(doc.Status),
		StatusMessage: doc.StatusMessage,
		ChunkCount:    doc.ChunkCount,
		UploadedAt:    doc.UploadedAt.Format(time.RFC3339),
	}
	if doc.ProcessedAt != nil {
		processed := doc.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

func toSessionResponse(session store.ChatSession) sessionResponse {
	return sessionResponse{
		ID:         session.ID.String(),
		DocumentID: session.DocumentID.String(),
		Title:      session.Title,
		CreatedAt:  session.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  session.UpdatedAt.Format(time.RFC3339),
	}
}
