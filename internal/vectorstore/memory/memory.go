package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/embedding"
	"unihelp/internal/logging"
	"unihelp/internal/vectorstore"
)

// Store is a simple in-memory vector store using brute-force cosine similarity.
// Contents are lost when the process exits.
type Store struct {
	mu       sync.RWMutex
	name     string
	embedder embedding.Embedder
	logger   *zap.Logger
	created  bool
	points   []point
}

type point struct {
	id     uint64
	vector []float32
	text   string
	meta   domain.ChunkMetadata
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(name string, emb embedding.Embedder, logger *zap.Logger) *Store {
	return &Store{
		name:     name,
		embedder: emb,
		logger:   logging.Or(logger).With(zap.String("component", "memory-store"), zap.String("collection", name)),
	}
}

func (s *Store) EnsureCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		s.created = true
		s.logger.Info("created collection", zap.Int("dimension", s.embedder.Dimension()))
	}
	return nil
}

func (s *Store) AddDocuments(ctx context.Context, texts []string, metas []domain.ChunkMetadata) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if len(texts) != len(metas) {
		return 0, fmt.Errorf("%w: %d texts but %d metadata records", domain.ErrInvalidInput, len(texts), len(metas))
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingService, len(texts), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	offset := len(s.points)
	for i := range texts {
		if len(vectors[i]) != s.embedder.Dimension() {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrModelMismatch, i, len(vectors[i]), s.embedder.Dimension())
		}
	}
	for i := range texts {
		s.points = append(s.points, point{
			id:     uint64(offset + i),
			vector: vectors[i],
			text:   texts[i],
			meta:   metas[i],
		})
	}
	return len(texts), nil
}

func (s *Store) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = vectorstore.DefaultSearchLimit
	}
	vec, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]float64, len(s.points))
	for i := range s.points {
		scores[i] = cosine(s.points[i].vector, vec)
	}
	idxs := argsortDesc(scores)
	if limit > len(idxs) {
		limit = len(idxs)
	}
	results := make([]domain.SearchResult, 0, limit)
	for _, j := range idxs[:limit] {
		p := s.points[j]
		results = append(results, domain.SearchResult{Text: p.text, Metadata: p.meta, Score: scores[j]})
	}
	return results, nil
}

func (s *Store) CollectionInfo(context.Context) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CollectionInfo{
		Name:           s.name,
		PointsCount:    len(s.points),
		VectorSize:     s.embedder.Dimension(),
		EmbeddingModel: s.embedder.Model(),
	}, nil
}

func (s *Store) ClearCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
	s.created = true
	s.logger.Info("cleared collection")
	return nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// argsortDesc orders indexes by descending score; ties keep insertion order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
