package vectorindex_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabfab/doc-chat/fault"
	"github.com/fabfab/doc-chat/vectorindex"
)

type qdrantFake struct {
	mux           *http.ServeMux
	ensureCalls   int
	upsertBodies  []map[string]any
	deleteBodies  []map[string]any
	searchResults []map[string]any
	searchStatus  int
	apiKeys       []string
}

func newQdrantFake() *qdrantFake {
	f := &qdrantFake{mux: http.NewServeMux()}

	record := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
			next(w, r)
		}
	}

	f.mux.HandleFunc("PUT /collections/test-chunks", record(func(w http.ResponseWriter, r *http.Request) {
		f.ensureCalls++
		w.WriteHeader(http.StatusOK)
	}))
	f.mux.HandleFunc("PUT /collections/test-chunks/points", record(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.upsertBodies = append(f.upsertBodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	f.mux.HandleFunc("POST /collections/test-chunks/points/search", record(func(w http.ResponseWriter, r *http.Request) {
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": f.searchResults})
	}))
	f.mux.HandleFunc("POST /collections/test-chunks/points/delete", record(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.deleteBodies = append(f.deleteBodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	f.mux.HandleFunc("DELETE /collections/test-chunks", record(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	return f
}

func newFakeStore(t *testing.T) (*vectorindex.QdrantStore, *qdrantFake) {
	t.Helper()
	fake := newQdrantFake()
	srv := httptest.NewServer(fake.mux)
	t.Cleanup(srv.Close)

	store := vectorindex.NewQdrantStore(vectorindex.QdrantOptions{
		URL:        srv.URL,
		APIKey:     "secret-key",
		Collection: "test-chunks",
		Dimension:  3,
	})
	return store, fake
}

func TestQdrantEnsureRunsOnce(t *testing.T) {
	store, fake := newFakeStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, []float32{1, 0, 0}, 3, "doc-1")
	require.NoError(t, err)
	_, err = store.Query(ctx, []float32{0, 1, 0}, 3, "doc-1")
	require.NoError(t, err)

	require.Equal(t, 1, fake.ensureCalls)
}

func TestQdrantSendsAPIKey(t *testing.T) {
	store, fake := newFakeStore(t)

	_, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, "doc-1")
	require.NoError(t, err)

	for _, key := range fake.apiKeys {
		require.Equal(t, "secret-key", key)
	}
}

func TestQdrantUpsertPayload(t *testing.T) {
	store, fake := newFakeStore(t)

	err := store.Upsert(context.Background(), []vectorindex.Item{
		{ID: "chunk-1", DocumentID: "doc-1", ChunkIndex: 0, Vector: []float32{1, 2, 3}},
		{ID: "chunk-2", DocumentID: "doc-1", ChunkIndex: 1, Vector: []float32{4, 5, 6}},
	})
	require.NoError(t, err)
	require.Len(t, fake.upsertBodies, 1)

	points, ok := fake.upsertBodies[0]["points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 2)

	first, ok := points[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "chunk-1", first["id"])
	payload, ok := first["payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "doc-1", payload["document_id"])
	require.Equal(t, float64(0), payload["chunk_index"])
}

func TestQdrantUpsertEmptyIsNoop(t *testing.T) {
	store, fake := newFakeStore(t)

	require.NoError(t, store.Upsert(context.Background(), nil))
	require.Empty(t, fake.upsertBodies)
}

func TestQdrantQueryOrdersByScoreThenChunkIndex(t *testing.T) {
	store, fake := newFakeStore(t)
	fake.searchResults = []map[string]any{
		{"id": "v-late", "score": 0.8, "payload": map[string]any{"chunk_index": 7}},
		{"id": "v-top", "score": 0.95, "payload": map[string]any{"chunk_index": 2}},
		{"id": "v-early", "score": 0.8, "payload": map[string]any{"chunk_index": 3}},
	}

	matches, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, "doc-1")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "v-top", matches[0].ID)
	require.Equal(t, "v-early", matches[1].ID, "equal scores break ties by chunk index")
	require.Equal(t, "v-late", matches[2].ID)
}

func TestQdrantQueryMapsMissingCollection(t *testing.T) {
	store, fake := newFakeStore(t)
	fake.searchStatus = http.StatusNotFound

	_, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, "doc-1")
	require.ErrorIs(t, err, fault.ErrIndexNotFound)
}

func TestQdrantQueryMapsRateLimit(t *testing.T) {
	store, fake := newFakeStore(t)
	fake.searchStatus = http.StatusTooManyRequests

	_, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, "doc-1")
	require.ErrorIs(t, err, fault.ErrRateLimited)
}

func TestQdrantQueryMapsAuthFailure(t *testing.T) {
	store, fake := newFakeStore(t)
	fake.searchStatus = http.StatusForbidden

	_, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, "doc-1")
	require.ErrorIs(t, err, fault.ErrAuth)
}

func TestQdrantDeleteDocumentFilters(t *testing.T) {
	store, fake := newFakeStore(t)

	require.NoError(t, store.DeleteDocument(context.Background(), "doc-42"))
	require.Len(t, fake.deleteBodies, 1)

	raw, err := json.Marshal(fake.deleteBodies[0])
	require.NoError(t, err)
	require.Contains(t, string(raw), "doc-42")
	require.Contains(t, string(raw), "document_id")
}

func TestQdrantPurgeToleratesMissingCollection(t *testing.T) {
	store, _ := newFakeStore(t)

	// The fake answers the collection DELETE with 404.
	require.NoError(t, store.Purge(context.Background()))
}
