package vector

import (
	"context"
	"errors"
	"testing"

	"contractlens/llm"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEmbedder delegates to a LocalEmbedder and fails on call failOn
type failingEmbedder struct {
	inner  *LocalEmbedder
	calls  int
	failOn int
}

func (f *failingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("embedding endpoint unavailable")
	}
	return f.inner.EmbedStrings(ctx, texts, opts...)
}

// shortEmbedder drops the last vector of every multi-text batch
type shortEmbedder struct{}

func (shortEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	n := len(texts)
	if n > 1 {
		n--
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func newTestRetriever(t *testing.T, embedder embedding.Embedder) *Retriever {
	t.Helper()
	idx, err := NewMemoryIndex("")
	require.NoError(t, err)
	r := NewRetriever(idx, NewEmbeddingService(embedder, 256), 0, nil)
	require.NoError(t, r.EnsureCollection(context.Background(), llm.CollectionChunks))
	return r
}

func testChunks(docID string, n int) []llm.Chunk {
	texts := []string{
		"Payment terms are Net 30 days from invoice date.",
		"The consultant hourly rate is 90 USD.",
		"Either party may terminate with 30 days notice.",
		"Liability is capped at fees paid in prior 12 months.",
		"This agreement is governed by the laws of Delaware.",
		"Invoices must reference the purchase order number.",
	}
	chunks := make([]llm.Chunk, n)
	for i := range chunks {
		chunks[i] = llm.Chunk{
			ID:         docID + "-" + string(rune('a'+i)),
			DocID:      docID,
			Text:       texts[i%len(texts)],
			PageNumber: i + 1,
			Metadata:   map[string]interface{}{"filename": "contract.pdf", "type": "text"},
		}
	}
	return chunks
}

func TestRetriever_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t, NewLocalEmbedder(256))

	require.NoError(t, r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-1", 6)))

	n, err := r.Index().Count(ctx, llm.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	hits, err := r.SearchText(ctx, llm.CollectionChunks, "payment terms: Net 30", 1, Filter{DocID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text(), "Net 30")
	assert.Equal(t, "doc-1", hits[0].Payload["doc_id"])
	assert.Equal(t, "contract.pdf", hits[0].Payload["filename"])
	assert.Equal(t, 1, hits[0].PageNumber())
}

func TestRetriever_SearchFiltersOtherDocuments(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t, NewLocalEmbedder(256))

	require.NoError(t, r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-1", 3)))
	require.NoError(t, r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-2", 3)))

	hits, err := r.SearchText(ctx, llm.CollectionChunks, "hourly rate", 10, Filter{DocID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, "doc-2", h.Payload["doc_id"])
	}
}

func TestRetriever_BatchFailureKeepsEarlierBatches(t *testing.T) {
	ctx := context.Background()
	// call 1 resolves the dimension, call 2 is the first batch
	emb := &failingEmbedder{inner: NewLocalEmbedder(256), failOn: 3}
	r := newTestRetriever(t, emb)

	err := r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-1", 6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 4")

	n, err := r.Index().Count(ctx, llm.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, n)
	assert.Equal(t, 3, emb.calls)
}

func TestRetriever_ShortEmbeddingReplyFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t, shortEmbedder{})

	err := r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-1", 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 0")
}

func TestRetriever_CollectionUsesModelDimension(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex("")
	require.NoError(t, err)
	svc := NewEmbeddingService(NewLocalEmbedder(1536), DefaultEmbeddingDim)
	r := NewRetriever(idx, svc, 0, nil)

	require.NoError(t, r.EnsureCollection(ctx, llm.CollectionChunks))
	assert.Equal(t, 1536, r.Dimension())

	require.NoError(t, r.IndexChunks(ctx, llm.CollectionChunks, testChunks("doc-1", 3)))
	hits, err := r.SearchText(ctx, llm.CollectionChunks, "hourly rate", 1, Filter{DocID: "doc-1"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRetriever_EnsureCollectionEmbedderDown(t *testing.T) {
	idx, err := NewMemoryIndex("")
	require.NoError(t, err)
	emb := &failingEmbedder{inner: NewLocalEmbedder(8), failOn: 1}
	r := NewRetriever(idx, NewEmbeddingService(emb, 8), 0, nil)

	err = r.EnsureCollection(context.Background(), llm.CollectionChunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding dimension")
}

func TestRetriever_EmptyInputIsNoop(t *testing.T) {
	r := newTestRetriever(t, NewLocalEmbedder(256))
	assert.NoError(t, r.IndexChunks(context.Background(), llm.CollectionChunks, nil))
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEmbedder(128)

	a, err := e.EmbedStrings(ctx, []string{"Liability Cap", "Liability Cap"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])
	require.Len(t, a[0], 128)

	norm := 0.0
	for _, v := range a[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestLocalEmbedder_LexicalOverlapScoresHigher(t *testing.T) {
	ctx := context.Background()
	svc := NewEmbeddingService(NewLocalEmbedder(256), 256)

	vecs, err := svc.EmbedBatch(ctx, []string{
		"Termination for Convenience",
		"Either party may terminate for convenience upon notice",
		"Governing law of the State of New York",
	})
	require.NoError(t, err)

	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestLocalEmbedder_BlankTextIsUnitVector(t *testing.T) {
	vecs, err := NewLocalEmbedder(8).EmbedStrings(context.Background(), []string{"   "})
	require.NoError(t, err)
	assert.Equal(t, 1.0, vecs[0][0])
}

func TestEmbeddingService_ResolveOnce(t *testing.T) {
	ctx := context.Background()
	emb := &failingEmbedder{inner: NewLocalEmbedder(32)}
	svc := NewEmbeddingService(emb, 0)
	assert.Equal(t, DefaultEmbeddingDim, svc.Dimension())

	dim, err := svc.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 32, dim)
	assert.Equal(t, 32, svc.Dimension())

	_, err = svc.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestEmbeddingService_RejectsEmptyText(t *testing.T) {
	svc := NewEmbeddingService(NewLocalEmbedder(8), 8)

	_, err := svc.Embed(context.Background(), "")
	assert.Error(t, err)

	_, err = svc.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.Error(t, err)
}
