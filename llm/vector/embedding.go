package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
)

// DefaultEmbeddingDim matches the sentence embedding model used for the
// chunk and clause collections
const DefaultEmbeddingDim = 384

// EmbeddingService wraps an embedding model for vector generation
type EmbeddingService struct {
	embedder embedding.Embedder
	dim      int
	observed bool
	mu       sync.RWMutex
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(embedder embedding.Embedder, dim int) *EmbeddingService {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &EmbeddingService{
		embedder: embedder,
		dim:      dim,
	}
}

// Embed generates an embedding vector for a single text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates one vector per text. Any empty input, short reply or
// empty vector fails the whole batch.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text %d in batch is empty", i)
		}
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vectors), len(texts))
	}

	// Convert all vectors to float32
	result := make([][]float32, len(texts))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding returned for text %d", i)
		}
		result[i] = make([]float32, len(vec))
		for j, v := range vec {
			result[i][j] = float32(v)
		}
	}

	s.mu.Lock()
	s.dim = len(result[0])
	s.observed = true
	s.mu.Unlock()

	return result, nil
}

// Resolve returns the dimension the model actually produces, embedding a
// short sample once if no vector has been generated yet
func (s *EmbeddingService) Resolve(ctx context.Context) (int, error) {
	s.mu.RLock()
	dim, observed := s.dim, s.observed
	s.mu.RUnlock()
	if observed {
		return dim, nil
	}

	vectors, err := s.EmbedBatch(ctx, []string{"dimension"})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve embedding dimension: %w", err)
	}
	return len(vectors[0]), nil
}

// Dimension returns the configured dimension until a vector has been
// generated, then the observed one
func (s *EmbeddingService) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}
