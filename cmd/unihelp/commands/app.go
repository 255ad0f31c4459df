package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"unihelp/internal/chunker"
	"unihelp/internal/config"
	"unihelp/internal/embedding"
	"unihelp/internal/embedding/hashing"
	"unihelp/internal/embedding/openai"
	"unihelp/internal/extractor"
	"unihelp/internal/llm"
	"unihelp/internal/metrics"
	"unihelp/internal/service"
	"unihelp/internal/vectorstore"
	"unihelp/internal/vectorstore/memory"
	"unihelp/internal/vectorstore/qdrant"
)

// app holds the components shared by every command.
type app struct {
	cfg           *config.AppConfig
	logger        *zap.Logger
	metrics       *metrics.Metrics
	metricsServer *http.Server

	store     vectorstore.Store
	pipeline  *service.IngestionPipeline
	assistant *service.Assistant
	email     *service.EmailGenerator
}

// build assembles the components selected by configuration.
func (a *app) build(context.Context) error {
	cfg := a.cfg
	timeout := time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second

	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.Embedder.Model,
			BatchSize: cfg.Embedder.BatchSize,
			Timeout:   timeout,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("openai embedder: %w (set %s or use embedder.type: hashing)", err, cfg.OpenAI.APIKeyEnv)
		}
		emb = client
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	default:
		return fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	switch cfg.VectorStore.Type {
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		a.store = qdrant.NewClient(qdrant.Config{
			URL:            q.URL,
			APIKey:         q.APIKey,
			Collection:     q.Collection,
			BatchSize:      q.BatchSize,
			ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		}, emb, a.logger, a.metrics)
	case "memory":
		a.store = memory.NewStore(cfg.VectorStore.Qdrant.Collection, emb, a.logger)
	default:
		return fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	// Generation is optional: without a key the assistant answers with the
	// retrieved context.
	var completer llm.Completer
	if cfg.OpenAI.APIKey != "" {
		c, err := llm.NewOpenAI(llm.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.Completion.Model,
			Timeout: timeout,
		}, a.logger)
		if err != nil {
			return err
		}
		completer = c
	} else {
		a.logger.Warn("no OpenAI API key, answers will fall back to retrieved context", zap.String("env", cfg.OpenAI.APIKeyEnv))
	}

	a.pipeline = service.NewIngestionPipeline(
		extractor.New(a.logger, a.metrics),
		chunker.NewTokenChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
		a.store, a.logger, a.metrics,
	)
	a.assistant = service.NewAssistant(a.store, completer, service.AssistantConfig{
		TopK:           cfg.Retrieval.TopK,
		MaxCharsPerHit: cfg.Retrieval.MaxCharsPerHit,
		FallbackChars:  cfg.Retrieval.FallbackChars,
		Temperature:    cfg.Completion.Temperature,
		MaxTokens:      cfg.Completion.MaxTokens,
	}, a.logger, a.metrics)
	a.email = service.NewEmailGenerator(completer, a.logger, a.metrics)
	return nil
}
