package embedding

import (
	"context"
	"strings"
)

// Embedder converts text into dense vectors. Dimension must be known before
// the first call so that a collection can be created up front.
type Embedder interface {
	Name() string
	Model() string
	Dimension() int
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DimensionForModel maps an embedding model name to its vector size.
// Unknown models are assumed to produce 1536-dimensional vectors.
func DimensionForModel(model string) int {
	switch {
	case strings.Contains(model, "3-large"):
		return 3072
	case strings.Contains(model, "3-small"), strings.Contains(model, "ada-002"):
		return 1536
	default:
		return 1536
	}
}

// EmbedOne is a convenience for single-text callers such as query embedding.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
