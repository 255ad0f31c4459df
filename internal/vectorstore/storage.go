package vectorstore

import (
	"context"

	"unihelp/internal/domain"
)

// Store persists embedded chunks in a single collection and answers
// similarity queries against it. Implementations embed texts themselves,
// so callers only deal with text and metadata.
type Store interface {
	// EnsureCollection creates the collection when it is missing.
	EnsureCollection(ctx context.Context) error
	// AddDocuments embeds and appends texts, returning how many were stored.
	// Ids continue from the current point count and are never reused.
	AddDocuments(ctx context.Context, texts []string, metas []domain.ChunkMetadata) (int, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
	CollectionInfo(ctx context.Context) (domain.CollectionInfo, error)
	// ClearCollection drops every point and recreates an empty collection.
	ClearCollection(ctx context.Context) error
}

// DefaultSearchLimit applies when a caller passes a non-positive limit.
const DefaultSearchLimit = 5
