package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/embedding"
	"unihelp/internal/logging"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 100
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	api       *openai.Client
	model     string
	dimension int
	batchSize int
	logger    *zap.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embeddings: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		dimension: embedding.DimensionForModel(cfg.Model),
		batchSize: cfg.BatchSize,
		logger:    logging.Or(logger).With(zap.String("component", "embedder"), zap.String("model", cfg.Model)),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Model returns the embedding model name sent with every request.
func (c *Client) Model() string { return c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// EmbedBatch embeds texts in requests of at most BatchSize inputs. Failures
// are not retried.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	started := time.Now()
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: batch,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingService, len(batch), len(resp.Data))
	}

	// The API does not promise output order; place each vector by its index.
	vecs := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbeddingService, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", domain.ErrEmbeddingService, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", domain.ErrEmbeddingService, i)
		}
	}

	c.logger.Debug("embedded batch", zap.Int("inputs", len(batch)), zap.Duration("took", time.Since(started)))
	return vecs, nil
}
