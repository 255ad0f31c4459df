package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/embedding"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
	"unihelp/internal/vectorstore"
)

const DefaultBatchSize = 100

// Client is a REST client to a single Qdrant collection.
// It assumes cosine distance and creates the collection on first use.
//
// Point ids are taken from the collection's point count right before each
// upload. Two writers running at once can therefore pick the same ids.
type Client struct {
	url            string
	apiKey         string
	collection     string
	batchSize      int
	scoreThreshold float64
	embedder       embedding.Embedder
	client         *http.Client
	logger         *zap.Logger
	metrics        *metrics.Metrics

	mu    sync.Mutex
	ready bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	BatchSize  int
	// ScoreThreshold drops hits scoring below it. Zero disables the filter.
	ScoreThreshold float64
}

var _ vectorstore.Store = (*Client)(nil)

func NewClient(cfg Config, emb embedding.Embedder, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Client{
		url:            strings.TrimRight(cfg.URL, "/"),
		apiKey:         cfg.APIKey,
		collection:     cfg.Collection,
		batchSize:      cfg.BatchSize,
		scoreThreshold: cfg.ScoreThreshold,
		embedder:       emb,
		client:         &http.Client{},
		logger:         logging.Or(logger).With(zap.String("component", "qdrant"), zap.String("collection", cfg.Collection)),
		metrics:        m,
	}
}

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type collectionDescription struct {
	PointsCount *int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		} `json:"params"`
		Metadata map[string]any `json:"metadata"`
	} `json:"config"`
}

func (c *Client) collectionPath() string {
	return "/collections/" + url.PathEscape(c.collection)
}

// EnsureCollection creates the collection when it does not exist. For an
// existing collection, the vector size and recorded embedding model must
// match the configured embedder.
func (c *Client) EnsureCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.ensureCollection(ctx)
	c.ready = err == nil
	return err
}

// ensure runs EnsureCollection once per client, or again after a clear.
func (c *Client) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	err := c.ensureCollection(ctx)
	c.ready = err == nil
	return err
}

func (c *Client) ensureCollection(ctx context.Context) error {
	exists, err := c.exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return c.create(ctx)
	}

	info, err := c.info(ctx)
	if err != nil {
		return err
	}
	if info.VectorSize != 0 && info.VectorSize != c.embedder.Dimension() {
		return fmt.Errorf("%w: collection %s stores %d-dimensional vectors, embedder %s produces %d",
			domain.ErrModelMismatch, c.collection, info.VectorSize, c.embedder.Model(), c.embedder.Dimension())
	}
	if info.EmbeddingModel != "" && info.EmbeddingModel != c.embedder.Model() {
		return fmt.Errorf("%w: collection %s was built with %s, configured model is %s",
			domain.ErrModelMismatch, c.collection, info.EmbeddingModel, c.embedder.Model())
	}
	c.logger.Debug("collection exists", zap.Int("points", info.PointsCount))
	return nil
}

func (c *Client) exists(ctx context.Context) (bool, error) {
	var list struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if _, err := c.do(ctx, "list", http.MethodGet, "/collections", nil, &list); err != nil {
		return false, err
	}
	for _, col := range list.Collections {
		if col.Name == c.collection {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) create(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.embedder.Dimension(),
			"distance": "Cosine",
		},
		"metadata": map[string]any{
			"embedding_model": c.embedder.Model(),
		},
	}
	status, err := c.do(ctx, "create", http.MethodPut, c.collectionPath(), body, nil, http.StatusConflict)
	if err != nil {
		// Another process may have created it between the list and the create.
		if strings.Contains(err.Error(), "already exists") {
			c.logger.Info("collection already exists")
			return nil
		}
		return err
	}
	if status == http.StatusConflict {
		c.logger.Info("collection already exists")
		return nil
	}
	c.logger.Info("created collection", zap.Int("dimension", c.embedder.Dimension()), zap.String("model", c.embedder.Model()))
	return nil
}

// AddDocuments embeds texts and uploads them as points in batches.
// Uploaded batches are not rolled back when a later one fails.
func (c *Client) AddDocuments(ctx context.Context, texts []string, metas []domain.ChunkMetadata) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if len(texts) != len(metas) {
		return 0, fmt.Errorf("%w: %d texts but %d metadata records", domain.ErrInvalidInput, len(texts), len(metas))
	}
	if err := c.ensure(ctx); err != nil {
		return 0, err
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingService, len(texts), len(vectors))
	}

	offset := 0
	if info, err := c.info(ctx); err != nil {
		c.logger.Warn("could not read point count, ids start at 0", zap.Error(err))
	} else {
		offset = info.PointsCount
	}

	points := make([]point, len(texts))
	for i := range texts {
		points[i] = point{
			ID:      uint64(offset + i),
			Vector:  vectors[i],
			Payload: metas[i].Payload(texts[i]),
		}
	}

	path := c.collectionPath() + "/points?wait=true"
	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		body := map[string]any{"points": points[start:end]}
		if _, err := c.do(ctx, "upsert", http.MethodPut, path, body, nil); err != nil {
			return 0, err
		}
		c.logger.Debug("uploaded batch", zap.Int("from", start), zap.Int("to", end))
	}
	c.logger.Info("added documents", zap.Int("count", len(points)), zap.Int("first_id", offset))
	return len(points), nil
}

// Search returns the closest chunks to query, best first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = vectorstore.DefaultSearchLimit
	}
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedOne(ctx, c.embedder, query)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query":        vec,
		"limit":        limit,
		"with_payload": true,
	}
	if c.scoreThreshold > 0 {
		body["score_threshold"] = c.scoreThreshold
	}
	var raw json.RawMessage
	if _, err := c.do(ctx, "query", http.MethodPost, c.collectionPath()+"/points/query", body, &raw); err != nil {
		return nil, err
	}
	hits, err := decodePoints(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode query result: %v", domain.ErrStore, err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		text, meta := domain.MetadataFromPayload(h.Payload)
		results = append(results, domain.SearchResult{Text: text, Metadata: meta, Score: h.Score})
	}
	return results, nil
}

// decodePoints accepts both {"points": [...]} and the older bare list.
func decodePoints(raw json.RawMessage) ([]scoredPoint, error) {
	var wrapped struct {
		Points []scoredPoint `json:"points"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Points, nil
	}
	var list []scoredPoint
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CollectionInfo(ctx context.Context) (domain.CollectionInfo, error) {
	if err := c.ensure(ctx); err != nil {
		return domain.CollectionInfo{}, err
	}
	return c.info(ctx)
}

func (c *Client) info(ctx context.Context) (domain.CollectionInfo, error) {
	var desc collectionDescription
	if _, err := c.do(ctx, "info", http.MethodGet, c.collectionPath(), nil, &desc); err != nil {
		return domain.CollectionInfo{}, err
	}
	info := domain.CollectionInfo{
		Name:       c.collection,
		VectorSize: desc.Config.Params.Vectors.Size,
	}
	if desc.PointsCount != nil {
		info.PointsCount = *desc.PointsCount
	}
	if model, ok := desc.Config.Metadata["embedding_model"].(string); ok {
		info.EmbeddingModel = model
	}
	return info, nil
}

// ClearCollection drops the collection, tolerating its absence, and creates
// it again empty.
func (c *Client) ClearCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	status, err := c.do(ctx, "delete", http.MethodDelete, c.collectionPath(), nil, nil, http.StatusNotFound)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		c.logger.Debug("collection did not exist")
	} else {
		c.logger.Info("deleted collection")
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}
	c.ready = true
	return nil
}
