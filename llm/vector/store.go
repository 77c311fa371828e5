package vector

import (
	"context"
)

// Point is a vector with its payload, addressed by id within a collection
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// Hit is a search result with its cosine similarity
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// Text returns the "text" payload field
func (h Hit) Text() string {
	s, _ := h.Payload["text"].(string)
	return s
}

// PageNumber returns the "page_number" payload field
func (h Hit) PageNumber() int {
	switch v := h.Payload["page_number"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Filter restricts a search. The zero value matches everything.
type Filter struct {
	DocID string
}

// Index defines the operations of a collection-addressed vector index
type Index interface {
	// EnsureCollection creates the named collection if it does not exist.
	// A concurrent creator winning the race is not an error.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert writes points, overwriting any existing point with the same id
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns up to limit hits ordered by descending similarity
	Search(ctx context.Context, name string, vector []float32, limit int, filter Filter) ([]Hit, error)

	// Count returns the number of points in the collection
	Count(ctx context.Context, name string) (int, error)

	// Close closes any connections or resources
	Close() error
}

// StoreConfig holds configuration for index implementations
type StoreConfig struct {
	// Embedding dimension (must match the embedding model)
	EmbeddingDim int

	// Prefix for index names and keys
	KeyPrefix string
}

// DefaultStoreConfig returns default configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EmbeddingDim: DefaultEmbeddingDim,
		KeyPrefix:    "cl:",
	}
}
