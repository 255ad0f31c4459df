package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"unihelp/internal/chunker"
	"unihelp/internal/domain"
	"unihelp/internal/embedding/hashing"
	"unihelp/internal/extractor"
	"unihelp/internal/vectorstore"
	"unihelp/internal/vectorstore/memory"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newPipeline(t *testing.T) (*IngestionPipeline, *memory.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore("university_docs", hashing.NewEmbedder(64), logger)
	p := NewIngestionPipeline(extractor.New(logger, nil), chunker.NewTokenChunker(512, 50), store, logger, nil)
	return p, store
}

const threeParagraphs = "Les inscriptions ouvrent en juillet.\n\nLes frais se paient en ligne.\n\nLa carte étudiante est remise à la rentrée."

func TestIngestDirectorySingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), threeParagraphs)
	p, _ := newPipeline(t)

	summary, err := p.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Equal(t, 1, summary.FilesProcessed)
	assert.Equal(t, 0, summary.FilesFailed)
	assert.Equal(t, 1, summary.ChunksCreated)
	assert.Equal(t, 1, summary.ChunksAdded)
	assert.Equal(t, 1, summary.TotalPoints)
	_, err = uuid.Parse(summary.RunID)
	assert.NoError(t, err)
}

func TestIngestDirectoryTwiceAppends(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), threeParagraphs)
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "# Bourses\n\nDossier à déposer avant mars.")
	p, _ := newPipeline(t)
	ctx := context.Background()

	first, err := p.IngestDirectory(ctx, dir, false)
	require.NoError(t, err)
	second, err := p.IngestDirectory(ctx, dir, false)
	require.NoError(t, err)

	assert.Equal(t, first.ChunksAdded, second.ChunksAdded)
	assert.Equal(t, first.TotalPoints+second.ChunksAdded, second.TotalPoints)
	assert.NotEqual(t, first.RunID, second.RunID)

	forced, err := p.IngestDirectory(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, first.TotalPoints, forced.TotalPoints)
}

func TestIngestDirectorySkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), threeParagraphs)
	writeFile(t, filepath.Join(dir, "broken.pdf"), "%PDF-1.4 not really")
	p, _ := newPipeline(t)

	summary, err := p.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesProcessed)
	assert.Equal(t, 1, summary.FilesFailed)
	assert.Equal(t, StatusSuccess, summary.Status)
}

func TestIngestDirectoryEmptyIsWarning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "photo.jpg"), "jpg")
	p, store := newPipeline(t)

	summary, err := p.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, summary.Status)
	assert.Equal(t, "no supported documents found", summary.Message)
	assert.Zero(t, summary.ChunksAdded)

	info, err := store.CollectionInfo(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)
}

func TestIngestDirectoryMissing(t *testing.T) {
	p, _ := newPipeline(t)
	_, err := p.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage.md")
	writeFile(t, path, "Convention de stage signée par trois parties.")
	p, store := newPipeline(t)
	ctx := context.Background()

	summary, err := p.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesProcessed)
	assert.Equal(t, 1, summary.TotalPoints)

	results, err := store.Search(ctx, "convention de stage", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "stage.md", results[0].Metadata.Source)

	_, err = p.IngestFile(ctx, filepath.Join(dir, "notes.docx"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	writeFile(t, filepath.Join(dir, "notes.docx"), "x")
	_, err = p.IngestFile(ctx, filepath.Join(dir, "notes.docx"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestEnsureIngestedOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), threeParagraphs)
	p, _ := newPipeline(t)
	ctx := context.Background()

	summary, ran, err := p.EnsureIngested(ctx, dir)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, summary.TotalPoints)

	summary, ran, err = p.EnsureIngested(ctx, dir)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, summary.TotalPoints)
}

// failingStore wraps a store and fails the chosen operation.
type failingStore struct {
	vectorstore.Store
	failAdd bool
}

func (f failingStore) AddDocuments(ctx context.Context, texts []string, metas []domain.ChunkMetadata) (int, error) {
	if f.failAdd {
		return 0, errors.Join(domain.ErrStore, errors.New("connection refused"))
	}
	return f.Store.AddDocuments(ctx, texts, metas)
}

func TestIngestDirectoryPropagatesStoreFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), threeParagraphs)
	logger := zaptest.NewLogger(t)
	store := failingStore{Store: memory.NewStore("docs", hashing.NewEmbedder(16), logger), failAdd: true}
	p := NewIngestionPipeline(extractor.New(logger, nil), chunker.NewTokenChunker(0, 0), store, logger, nil)

	_, err := p.IngestDirectory(context.Background(), dir, false)
	assert.ErrorIs(t, err, domain.ErrStore)
}
