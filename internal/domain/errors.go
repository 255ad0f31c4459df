package domain

import "errors"

// Pipeline errors. Callers match them with errors.Is; concrete failures
// wrap one of these with the underlying cause.
var (
	// ErrNotFound indicates a missing file or directory.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat indicates a file extension the extractor does not handle.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtractionFailure indicates a parse error inside a supported format.
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrEmbeddingService indicates the embedding API failed or answered badly.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrCompletionService indicates the chat-completion API failed.
	ErrCompletionService = errors.New("completion service error")

	// ErrStore indicates a vector-store protocol or transport failure.
	ErrStore = errors.New("vector store error")

	// ErrModelMismatch indicates the collection was built with a different
	// embedding model or vector size than the one configured.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrInvalidInput indicates malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)
