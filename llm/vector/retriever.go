package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contractlens/llm"
)

// DefaultBatchSize is the number of chunks embedded per request
const DefaultBatchSize = 4

// TextPoint is a text to embed and store under a fixed id
type TextPoint struct {
	ID      string
	Text    string
	Payload map[string]interface{}
}

// Retriever ties an Index to an EmbeddingService
type Retriever struct {
	index     Index
	embedder  *EmbeddingService
	batchSize int
	logger    *slog.Logger
}

// NewRetriever creates a retriever. batchSize <= 0 uses DefaultBatchSize.
func NewRetriever(index Index, embedder *EmbeddingService, batchSize int, logger *slog.Logger) *Retriever {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:     index,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Index returns the underlying index
func (r *Retriever) Index() Index {
	return r.index
}

// Dimension returns the embedding dimension
func (r *Retriever) Dimension() int {
	return r.embedder.Dimension()
}

// EnsureCollection creates the collection with the dimension the embedding
// model produces, which may differ from the configured one
func (r *Retriever) EnsureCollection(ctx context.Context, collection string) error {
	configured := r.embedder.Dimension()
	dim, err := r.embedder.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}
	if dim != configured {
		r.logger.Warn("index.dim.mismatch", "collection", collection, "configured", configured, "actual", dim)
	}

	if err := r.index.EnsureCollection(ctx, collection, dim); err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}
	return nil
}

// IndexChunks embeds and upserts chunks batch by batch. A failing batch
// aborts the call; batches before it remain stored.
func (r *Retriever) IndexChunks(ctx context.Context, collection string, chunks []llm.Chunk) error {
	points := make([]TextPoint, len(chunks))
	for i, c := range chunks {
		payload := make(map[string]interface{}, len(c.Metadata)+3)
		for k, v := range c.Metadata {
			payload[k] = v
		}
		payload["text"] = c.Text
		payload["doc_id"] = c.DocID
		payload["page_number"] = c.PageNumber
		points[i] = TextPoint{ID: c.ID, Text: c.Text, Payload: payload}
	}
	return r.IndexPoints(ctx, collection, points)
}

// IndexPoints embeds and upserts texts batch by batch
func (r *Retriever) IndexPoints(ctx context.Context, collection string, points []TextPoint) error {
	start := time.Now()

	for offset := 0; offset < len(points); offset += r.batchSize {
		end := min(offset+r.batchSize, len(points))
		batch := points[offset:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			r.logger.Error("index.batch.embed.failed", "collection", collection, "batch", offset, "err", err)
			return fmt.Errorf("failed to embed batch at offset %d: %w", offset, err)
		}

		out := make([]Point, len(batch))
		for i, p := range batch {
			out[i] = Point{ID: p.ID, Vector: vectors[i], Payload: p.Payload}
		}

		if err := r.index.Upsert(ctx, collection, out); err != nil {
			r.logger.Error("index.batch.upsert.failed", "collection", collection, "batch", offset, "err", err)
			return fmt.Errorf("failed to upsert batch at offset %d: %w", offset, err)
		}
		r.logger.Debug("index.batch.upsert", "collection", collection, "batch", offset, "size", len(batch))
	}

	r.logger.Info("index.done", "collection", collection, "points", len(points), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// SearchText embeds query and searches the collection
func (r *Retriever) SearchText(ctx context.Context, collection, query string, limit int, filter Filter) ([]Hit, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := r.index.Search(ctx, collection, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("search in %s failed: %w", collection, err)
	}
	return hits, nil
}
