package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unihelp/internal/domain"
	"unihelp/internal/embedding/hashing"
	"unihelp/internal/metrics"
	"unihelp/internal/service"
)

type fakeCollection struct {
	size   int
	model  string
	points []map[string]any
}

// fakeQdrant implements just enough of the Qdrant REST API for the client.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	requests    []string
	upserts     []int
	apiKeys     []string
	legacy      bool
	failInfo    bool
	failQuery   bool
	conflict    bool
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]*fakeCollection{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func reply(w http.ResponseWriter, code int, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]any{"result": result, "status": "ok", "time": 0.001}
	if code >= 300 {
		body = map[string]any{"status": map[string]any{"error": result}, "time": 0.001}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		names := []map[string]any{}
		for name := range f.collections {
			names = append(names, map[string]any{"name": name})
		}
		reply(w, 200, map[string]any{"collections": names})

	case len(parts) == 2 && r.Method == http.MethodPut:
		if _, ok := f.collections[parts[1]]; ok || f.conflict {
			reply(w, http.StatusConflict, "Wrong input: Collection `"+parts[1]+"` already exists!")
			return
		}
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
			Metadata map[string]string `json:"metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.collections[parts[1]] = &fakeCollection{size: body.Vectors.Size, model: body.Metadata["embedding_model"]}
		reply(w, 200, true)

	case len(parts) == 2 && r.Method == http.MethodGet:
		c, ok := f.collections[parts[1]]
		if !ok || f.failInfo {
			reply(w, http.StatusNotFound, "Not found: Collection `"+parts[1]+"` doesn't exist!")
			return
		}
		meta := map[string]any{}
		if c.model != "" {
			meta["embedding_model"] = c.model
		}
		reply(w, 200, map[string]any{
			"status":       "green",
			"points_count": len(c.points),
			"config": map[string]any{
				"params":   map[string]any{"vectors": map[string]any{"size": c.size, "distance": "Cosine"}},
				"metadata": meta,
			},
		})

	case len(parts) == 2 && r.Method == http.MethodDelete:
		if _, ok := f.collections[parts[1]]; !ok {
			reply(w, http.StatusNotFound, "Not found")
			return
		}
		delete(f.collections, parts[1])
		reply(w, 200, true)

	case len(parts) == 3 && r.Method == http.MethodPut:
		c, ok := f.collections[parts[1]]
		if r.URL.Query().Get("wait") != "true" {
			reply(w, http.StatusBadRequest, "expected wait=true")
			return
		}
		if !ok {
			reply(w, http.StatusNotFound, "Not found")
			return
		}
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.upserts = append(f.upserts, len(body.Points))
		c.points = append(c.points, body.Points...)
		reply(w, 200, map[string]any{"operation_id": len(f.upserts), "status": "completed"})

	case len(parts) == 4 && r.Method == http.MethodPost:
		c, ok := f.collections[parts[1]]
		if !ok || f.failQuery {
			reply(w, http.StatusNotFound, "Not found")
			return
		}
		var body struct {
			Limit int `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		hits := []map[string]any{}
		for i, p := range c.points {
			if i >= body.Limit {
				break
			}
			hits = append(hits, map[string]any{"id": p["id"], "score": 1.0 - float64(i)/10, "payload": p["payload"]})
		}
		if f.legacy {
			reply(w, 200, hits)
			return
		}
		reply(w, 200, map[string]any{"points": hits})

	default:
		reply(w, http.StatusBadRequest, "unexpected "+r.Method+" "+r.URL.Path)
	}
}

func newClient(srv *httptest.Server, m *metrics.Metrics) *Client {
	return NewClient(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "university_docs"}, hashing.NewEmbedder(32), nil, m)
}

func chunkMetas(n int) []domain.ChunkMetadata {
	out := make([]domain.ChunkMetadata, n)
	for i := range out {
		out[i] = domain.ChunkMetadata{Source: "guide.pdf", ChunkIndex: i, Extra: map[string]any{"title": "Guide"}}
	}
	return out
}

func TestEnsureCollectionCreatesOnce(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c := newClient(srv, nil)
	ctx := context.Background()

	require.NoError(t, c.EnsureCollection(ctx))
	require.NoError(t, c.EnsureCollection(ctx))

	assert.Equal(t, []string{
		"GET /collections",
		"PUT /collections/university_docs",
		"GET /collections",
		"GET /collections/university_docs",
	}, f.requests)
	assert.Equal(t, 32, f.collections["university_docs"].size)
	assert.Equal(t, "hashing-32", f.collections["university_docs"].model)
	for _, k := range f.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestEnsureCollectionConflictIsSuccess(t *testing.T) {
	f, srv := newFakeQdrant(t)
	f.conflict = true
	require.NoError(t, newClient(srv, nil).EnsureCollection(context.Background()))
}

func TestEnsureCollectionModelMismatch(t *testing.T) {
	f, srv := newFakeQdrant(t)
	ctx := context.Background()

	f.collections["university_docs"] = &fakeCollection{size: 1536, model: "text-embedding-3-small"}
	err := newClient(srv, nil).EnsureCollection(ctx)
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	f.collections["university_docs"] = &fakeCollection{size: 32, model: "text-embedding-3-small"}
	err = newClient(srv, nil).EnsureCollection(ctx)
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	f.collections["university_docs"] = &fakeCollection{size: 32}
	assert.NoError(t, newClient(srv, nil).EnsureCollection(ctx))
}

func TestAddDocumentsEmptyMakesNoCalls(t *testing.T) {
	f, srv := newFakeQdrant(t)
	n, err := newClient(srv, nil).AddDocuments(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.requests)
}

func TestAddDocumentsLengthMismatch(t *testing.T) {
	_, srv := newFakeQdrant(t)
	_, err := newClient(srv, nil).AddDocuments(context.Background(), []string{"a"}, chunkMetas(2))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAddDocumentsBatchesAndSequentialIDs(t *testing.T) {
	f, srv := newFakeQdrant(t)
	m := metrics.New()
	c := newClient(srv, m)
	ctx := context.Background()
	require.NoError(t, c.EnsureCollection(ctx))

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "passage"
	}
	n, err := c.AddDocuments(ctx, texts, chunkMetas(250))
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, []int{100, 100, 50}, f.upserts)

	n, err = c.AddDocuments(ctx, texts[:3], chunkMetas(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pts := f.collections["university_docs"].points
	require.Len(t, pts, 253)
	for i, p := range pts {
		assert.EqualValues(t, i, p["id"])
	}
	payload := pts[252]["payload"].(map[string]any)
	assert.Equal(t, "passage", payload["text"])
	assert.Equal(t, "guide.pdf", payload["source"])
	assert.EqualValues(t, 2, payload["chunk_index"])
	assert.Equal(t, "Guide", payload["title"])

	info, err := c.CollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 253, info.PointsCount)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.StoreRequests.WithLabelValues("upsert", "ok")))
}

func TestAddDocumentsOffsetFallsBackToZero(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c := newClient(srv, nil)
	ctx := context.Background()
	require.NoError(t, c.EnsureCollection(ctx))
	f.collections["university_docs"].points = []map[string]any{{"id": 0}}
	f.failInfo = true

	_, err := c.AddDocuments(ctx, []string{"x"}, chunkMetas(1))
	require.NoError(t, err)
	pts := f.collections["university_docs"].points
	assert.EqualValues(t, 0, pts[len(pts)-1]["id"])
}

func TestSearchFormats(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		f, srv := newFakeQdrant(t)
		f.legacy = legacy
		c := newClient(srv, nil)
		ctx := context.Background()
		require.NoError(t, c.EnsureCollection(ctx))

		results, err := c.Search(ctx, "bourses", 3)
		require.NoError(t, err)
		assert.Empty(t, results)

		_, err = c.AddDocuments(ctx, []string{"un", "deux", "trois", "quatre"}, chunkMetas(4))
		require.NoError(t, err)

		results, err = c.Search(ctx, "bourses", 3)
		require.NoError(t, err)
		require.Len(t, results, 3, "legacy=%v", legacy)
		assert.Equal(t, "un", results[0].Text)
		assert.Equal(t, "guide.pdf", results[0].Metadata.Source)
		assert.Equal(t, 1, results[1].Metadata.ChunkIndex)
		assert.Equal(t, "Guide", results[1].Metadata.Extra["title"])
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)

		results, err = c.Search(ctx, "bourses", 0)
		require.NoError(t, err)
		assert.Len(t, results, 4)
	}
}

func TestClearCollection(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c := newClient(srv, nil)
	ctx := context.Background()

	// absent collection: 404 on delete is tolerated
	require.NoError(t, c.ClearCollection(ctx))

	_, err := c.AddDocuments(ctx, []string{"a", "b"}, chunkMetas(2))
	require.NoError(t, err)
	require.NoError(t, c.ClearCollection(ctx))

	info, err := c.CollectionInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)
	assert.Equal(t, 32, info.VectorSize)
	assert.Contains(t, f.requests, "DELETE /collections/university_docs")
}

func TestFreshServerCreatesCollectionOnFirstUse(t *testing.T) {
	ctx := context.Background()

	f, srv := newFakeQdrant(t)
	results, err := newClient(srv, nil).Search(ctx, "bourses", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []string{
		"GET /collections",
		"PUT /collections/university_docs",
		"POST /collections/university_docs/points/query",
	}, f.requests)

	_, srv = newFakeQdrant(t)
	info, err := newClient(srv, nil).CollectionInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)
	assert.Equal(t, 32, info.VectorSize)
	assert.Equal(t, "hashing-32", info.EmbeddingModel)

	f, srv = newFakeQdrant(t)
	c := newClient(srv, nil)
	_, err = c.AddDocuments(ctx, []string{"a", "b"}, chunkMetas(2))
	require.NoError(t, err)
	assert.Len(t, f.collections["university_docs"].points, 2)

	// a collection deleted out of band is recreated by ClearCollection
	delete(f.collections, "university_docs")
	require.NoError(t, c.ClearCollection(ctx))
	info, err = c.CollectionInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)

	_, srv = newFakeQdrant(t)
	ans, err := service.NewAssistant(newClient(srv, nil), nil, service.AssistantConfig{}, nil, nil).
		Answer(ctx, "Comment obtenir une bourse ?")
	require.NoError(t, err)
	assert.Equal(t, "Aucun document pertinent trouvé.", ans.Text)
	assert.True(t, ans.Fallback)
}

func TestLazyCreateReportsModelMismatch(t *testing.T) {
	f, srv := newFakeQdrant(t)
	f.collections["university_docs"] = &fakeCollection{size: 1536, model: "text-embedding-3-small"}
	c := newClient(srv, nil)

	_, err := c.Search(context.Background(), "x", 3)
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
	_, err = c.CollectionInfo(context.Background())
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
}

func TestStoreErrors(t *testing.T) {
	f, srv := newFakeQdrant(t)
	f.failQuery = true
	m := metrics.New()
	c := newClient(srv, m)
	ctx := context.Background()

	_, err := c.Search(ctx, "x", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Not found")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRequests.WithLabelValues("query", "error")))

	srv.Close()
	_, err = c.CollectionInfo(ctx)
	assert.ErrorIs(t, err, domain.ErrStore)
}
