package vector

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

// LocalEmbedder is a deterministic feature-hashing embedder. Word tokens and
// character trigrams are hashed into a fixed number of signed buckets and the
// result is L2 normalised, so equal texts always map to equal vectors and
// lexical overlap gives positive cosine similarity. It needs no network.
type LocalEmbedder struct {
	dim          int
	tokenPattern *regexp.Regexp
}

var _ embedding.Embedder = (*LocalEmbedder)(nil)

// NewLocalEmbedder creates a local embedder producing dim-sized vectors
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &LocalEmbedder{
		dim:          dim,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

// EmbedStrings implements embedding.Embedder
func (e *LocalEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *LocalEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.dim)
	tokens := e.tokenPattern.FindAllString(strings.ToLower(text), -1)

	for _, tok := range tokens {
		e.add(vec, "w:"+tok, 1.0)
		padded := "^" + tok + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// Blank input still gets a unit vector so cosine stays defined
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e *LocalEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
