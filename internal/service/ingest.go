package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unihelp/internal/chunker"
	"unihelp/internal/domain"
	"unihelp/internal/extractor"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
	"unihelp/internal/vectorstore"
)

const (
	StatusSuccess = "success"
	StatusWarning = "warning"
)

// Extractor is the part of the document extractor the pipeline needs.
type Extractor interface {
	Extract(path string) (string, error)
	ExtractDirReport(ctx context.Context, dir string) (extractor.DirReport, error)
}

// Chunker splits named documents into chunk records.
type Chunker interface {
	ChunkDocuments(docs map[string]string) []domain.ChunkRecord
}

// IngestSummary reports the outcome of one ingestion run.
type IngestSummary struct {
	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	FilesProcessed int    `json:"files_processed"`
	FilesFailed    int    `json:"files_failed"`
	ChunksCreated  int    `json:"chunks_created"`
	ChunksAdded    int    `json:"chunks_added"`
	TotalPoints    int    `json:"total_points"`
}

// IngestionPipeline loads documents from disk into the vector store.
// Re-ingesting the same files appends new points; nothing is deduplicated.
type IngestionPipeline struct {
	extractor Extractor
	chunker   Chunker
	store     vectorstore.Store
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewIngestionPipeline(ex Extractor, ch Chunker, store vectorstore.Store, logger *zap.Logger, m *metrics.Metrics) *IngestionPipeline {
	return &IngestionPipeline{
		extractor: ex,
		chunker:   ch,
		store:     store,
		logger:    logging.Or(logger).With(zap.String("component", "ingest")),
		metrics:   m,
	}
}

// IngestDirectory extracts, chunks and indexes every supported file under
// dir. With forceReindex the collection is emptied first. A directory with
// no usable documents yields a warning summary, not an error.
func (p *IngestionPipeline) IngestDirectory(ctx context.Context, dir string, forceReindex bool) (IngestSummary, error) {
	summary := IngestSummary{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", summary.RunID), zap.String("dir", dir))

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return summary, fmt.Errorf("%w: directory %s", domain.ErrNotFound, dir)
		}
		return summary, err
	}

	if forceReindex {
		log.Info("clearing collection before reindex")
		if err := p.store.ClearCollection(ctx); err != nil {
			return summary, fmt.Errorf("clear collection: %w", err)
		}
	} else if err := p.store.EnsureCollection(ctx); err != nil {
		return summary, fmt.Errorf("ensure collection: %w", err)
	}

	report, err := p.extractor.ExtractDirReport(ctx, dir)
	if err != nil {
		return summary, err
	}
	summary.FilesProcessed = len(report.Docs)
	summary.FilesFailed = len(report.Failed)
	if len(report.Docs) == 0 {
		summary.Status = StatusWarning
		summary.Message = "no supported documents found"
		log.Warn(summary.Message, zap.Int("failed", summary.FilesFailed))
		return summary, nil
	}

	return p.index(ctx, log, summary, report.Docs)
}

// IngestFile indexes a single file into the existing collection.
// Extraction errors are returned as is.
func (p *IngestionPipeline) IngestFile(ctx context.Context, path string) (IngestSummary, error) {
	summary := IngestSummary{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", summary.RunID), zap.String("file", path))

	text, err := p.extractor.Extract(path)
	if err != nil {
		p.metrics.Extracted("failed")
		return summary, err
	}
	p.metrics.Extracted("ok")
	if err := p.store.EnsureCollection(ctx); err != nil {
		return summary, fmt.Errorf("ensure collection: %w", err)
	}
	summary.FilesProcessed = 1
	return p.index(ctx, log, summary, map[string]string{filepath.Base(path): text})
}

// EnsureIngested ingests dir only when the collection holds no points yet.
// It reports whether an ingestion ran.
func (p *IngestionPipeline) EnsureIngested(ctx context.Context, dir string) (IngestSummary, bool, error) {
	if err := p.store.EnsureCollection(ctx); err != nil {
		return IngestSummary{}, false, fmt.Errorf("ensure collection: %w", err)
	}
	info, err := p.store.CollectionInfo(ctx)
	if err != nil {
		return IngestSummary{}, false, fmt.Errorf("collection info: %w", err)
	}
	if info.PointsCount > 0 {
		p.logger.Info("collection already populated", zap.Int("points", info.PointsCount))
		return IngestSummary{Status: StatusSuccess, TotalPoints: info.PointsCount}, false, nil
	}
	summary, err := p.IngestDirectory(ctx, dir, false)
	return summary, err == nil, err
}

func (p *IngestionPipeline) index(ctx context.Context, log *zap.Logger, summary IngestSummary, docs map[string]string) (IngestSummary, error) {
	records := p.chunker.ChunkDocuments(docs)
	summary.ChunksCreated = len(records)
	texts, metas := chunker.Split(records)

	added, err := p.store.AddDocuments(ctx, texts, metas)
	if err != nil {
		return summary, fmt.Errorf("add documents: %w", err)
	}
	summary.ChunksAdded = added
	p.metrics.Indexed(added)

	info, err := p.store.CollectionInfo(ctx)
	if err != nil {
		return summary, fmt.Errorf("collection info: %w", err)
	}
	summary.TotalPoints = info.PointsCount
	summary.Status = StatusSuccess

	log.Info("ingestion complete",
		zap.Int("files", summary.FilesProcessed),
		zap.Int("failed", summary.FilesFailed),
		zap.Int("chunks", summary.ChunksCreated),
		zap.Int("added", summary.ChunksAdded),
		zap.Int("total_points", summary.TotalPoints))
	return summary, nil
}
