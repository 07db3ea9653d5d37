package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fabfab/doc-chat/fault"
)

// QdrantStore is a minimal REST client to a hosted Qdrant instance. The
// collection is created with cosine distance on first use.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type QdrantOptions struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewQdrantStore(opts QdrantOptions) *QdrantStore {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:        strings.TrimRight(opts.URL, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		dimension:  opts.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *QdrantStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 409 when the collection already exists.
	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	s.ensured = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, items []Item) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	points := make([]map[string]any, len(items))
	for i, item := range items {
		points[i] = map[string]any{
			"id":     item.ID,
			"vector": item.Vector,
			"payload": map[string]any{
				"document_id": item.DocumentID,
				"chunk_index": item.ChunkIndex,
			},
		}
	}

	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int, documentID string) ([]Match, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		k = 3
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), req, &resp); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, hit := range resp.Result {
		match := Match{ID: hit.ID, Score: hit.Score}
		if idx, ok := hit.Payload["chunk_index"].(float64); ok {
			match.ChunkIndex = int(idx)
		}
		matches = append(matches, match)
	}

	// Qdrant orders by score only; apply the insertion-order tie rule.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	return matches, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), body, nil); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Purge(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", s.collection), nil, nil, http.StatusNotFound); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	s.mu.Lock()
	s.ensured = false
	s.mu.Unlock()
	return nil
}

// do performs one JSON round trip. Status codes listed in accept are treated
// as success alongside 2xx.
func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, payload)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if timeoutErr := fault.Timeout(err); errors.Is(timeoutErr, fault.ErrNetworkTimeout) {
			return fmt.Errorf("call qdrant: %v: %w", err, fault.ErrNetworkTimeout)
		}
		return fmt.Errorf("call qdrant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		for _, code := range accept {
			if resp.StatusCode == code {
				return nil
			}
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("qdrant %s %s: %w", method, path, fault.ErrIndexNotFound)
		case http.StatusTooManyRequests:
			return fmt.Errorf("qdrant %s %s: %w", method, path, fault.ErrRateLimited)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("qdrant %s %s: %w", method, path, fault.ErrAuth)
		default:
			return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
