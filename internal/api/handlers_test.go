package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/clipboard-service/internal/config"
	"github.com/kenneth/clipboard-service/internal/metrics"
	"github.com/kenneth/clipboard-service/internal/pipeline"
	"github.com/kenneth/clipboard-service/internal/scheduler"
	"github.com/kenneth/clipboard-service/internal/snippet"
	"github.com/kenneth/clipboard-service/internal/store"
)

// fakeStore is a minimal in-memory stand-in for *store.Store sufficient to
// drive the HTTP surface end to end.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	snippets map[int64]store.Snippet
	chunks   map[int64][]store.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{snippets: map[int64]store.Snippet{}, chunks: map[int64][]store.Chunk{}}
}

func (f *fakeStore) InsertSnippet(ctx context.Context, owner int64, sourceURL string, totalSize int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.snippets[id] = store.Snippet{ID: id, Owner: owner, SourceURL: sourceURL, TotalSize: totalSize, Status: store.StatusProcessing, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	return id, nil
}

func (f *fakeStore) InsertChunks(ctx context.Context, snippetID int64, chunks []store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		c.SnippetID = snippetID
		f.chunks[snippetID] = append(f.chunks[snippetID], c)
	}
	return nil
}

func (f *fakeStore) UpdateSnippetCompleted(ctx context.Context, snippetID int64, totalChunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn := f.snippets[snippetID]
	sn.Status = store.StatusCompleted
	sn.TotalChunks = totalChunks
	f.snippets[snippetID] = sn
	return nil
}

func (f *fakeStore) UpdateSnippetStatus(ctx context.Context, snippetID int64, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn := f.snippets[snippetID]
	sn.Status = status
	f.snippets[snippetID] = sn
	return nil
}

func (f *fakeStore) SoftDeleteSnippet(ctx context.Context, owner, snippetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn, ok := f.snippets[snippetID]
	if !ok || sn.IsDeleted || sn.Owner != owner {
		return store.ErrNotFound
	}
	sn.IsDeleted = true
	f.snippets[snippetID] = sn
	return nil
}

func (f *fakeStore) FindSnippetByIDAndOwner(ctx context.Context, owner, snippetID int64) (store.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn, ok := f.snippets[snippetID]
	if !ok || sn.IsDeleted || sn.Owner != owner {
		return store.Snippet{}, store.ErrNotFound
	}
	return sn, nil
}

func (f *fakeStore) FindRecentNonDeletedByOwner(ctx context.Context, owner int64, limit int) ([]store.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Snippet
	for _, sn := range f.snippets {
		if sn.Owner == owner && !sn.IsDeleted {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (f *fakeStore) FindAllByID(ctx context.Context, owner int64, ids []int64) (map[int64]store.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]store.Snippet{}
	for _, id := range ids {
		if sn, ok := f.snippets[id]; ok && sn.Owner == owner && !sn.IsDeleted {
			out[id] = sn
		}
	}
	return out, nil
}

func (f *fakeStore) FindChunksBySnippetOrderByIndex(ctx context.Context, snippetID int64) ([]store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Chunk(nil), f.chunks[snippetID]...), nil
}

func (f *fakeStore) FindChunksForSnippets(ctx context.Context, snippetIDs []int64) ([]store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Chunk
	for _, id := range snippetIDs {
		out = append(out, f.chunks[id]...)
	}
	return out, nil
}

func (f *fakeStore) CountNonDeletedByOwner(ctx context.Context, owner int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sn := range f.snippets {
		if sn.Owner == owner && !sn.IsDeleted {
			n++
		}
	}
	return n, nil
}

// fakeRecency is an in-memory stand-in for *recency.Queue.
type fakeRecency struct {
	mu    sync.Mutex
	lists map[int64][]int64
}

func newFakeRecency() *fakeRecency { return &fakeRecency{lists: map[int64][]int64{}} }

func (f *fakeRecency) PushFront(ctx context.Context, owner, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(owner, id)
	f.lists[owner] = append([]int64{id}, f.lists[owner]...)
	return nil
}

func (f *fakeRecency) MoveToFront(ctx context.Context, owner, id int64) error {
	return f.PushFront(ctx, owner, id)
}

func (f *fakeRecency) Recent(ctx context.Context, owner int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.lists[owner]...), nil
}

func (f *fakeRecency) Remove(ctx context.Context, owner, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(owner, id)
	return nil
}

func (f *fakeRecency) removeLocked(owner, id int64) {
	out := f.lists[owner][:0]
	for _, v := range f.lists[owner] {
		if v != id {
			out = append(out, v)
		}
	}
	f.lists[owner] = out
}

func (f *fakeRecency) Clear(ctx context.Context, owner int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lists, owner)
	return nil
}

func (f *fakeRecency) Size(ctx context.Context, owner int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.lists[owner])), nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	st := newFakeStore()
	rq := newFakeRecency()
	pl := pipeline.New(pipeline.Config{ChunkSize: 32, Workers: 4, SearchBoundary: 100})
	sch := scheduler.New(64, 2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sch.Shutdown(ctx)
	})

	logger := logrus.New()
	logger.SetOutput(nowhere{})
	cfg := config.SnippetConfig{MaxSnippetBytes: 20_000_000, MaxSnippetsPerUser: 1000, MaxWords: 3_000_000, DuplicateScanDepth: 50}
	svc := snippet.New(st, rq, pl, sch, nil, cfg, logger)

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	return NewHandler(svc, logger, m)
}

type nowhere struct{}

func (nowhere) Write(p []byte) (int, error) { return len(p), nil }

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func authedRequest(method, path string, body []byte, owner int64) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+strconv.FormatInt(owner, 10))
	return req
}

func TestHandleAcceptAndFetchOne(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	body, _ := json.Marshal(acceptRequest{Content: "hello world", SourceURL: "https://example.com"})
	req := authedRequest(http.MethodPost, "/api/v1/snippets", body, 1)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created snippetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/v1/snippets/"+strconv.FormatInt(created.ID, 10), nil, 1)
		router.ServeHTTP(w, req)
		return w.Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	req = authedRequest(http.MethodGet, "/api/v1/snippets/"+strconv.FormatInt(created.ID, 10), nil, 1)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched snippetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	require.Equal(t, "hello world", fetched.Content)
}

func TestHandleAcceptRejectsEmptyBody(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	body, _ := json.Marshal(acceptRequest{Content: ""})
	req := authedRequest(http.MethodPost, "/api/v1/snippets", body, 1)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRejectsMissingCredential(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snippets", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleFetchOneNotFound(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := authedRequest(http.MethodGet, "/api/v1/snippets/999", nil, 1)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDelete(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	body, _ := json.Marshal(acceptRequest{Content: "to be removed"})
	req := authedRequest(http.MethodPost, "/api/v1/snippets", body, 7)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created snippetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	req = authedRequest(http.MethodDelete, "/api/v1/snippets/"+strconv.FormatInt(created.ID, 10), nil, 7)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req = authedRequest(http.MethodGet, "/api/v1/snippets/"+strconv.FormatInt(created.ID, 10), nil, 7)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealthLiveReady(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	for _, path := range []string{"/health", "/live", "/ready"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}
