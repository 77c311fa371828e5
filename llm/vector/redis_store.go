package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	// Default index configuration
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldVector     = "vector"
	fieldDocID      = "doc_id"
	fieldText       = "text"
	fieldPageNumber = "page_number"
	fieldPayload    = "payload"
	fieldScore      = "score"
)

// RedisIndex implements Index using Redis with RediSearch vector search.
// Each collection is one FT index over hashes under its own key prefix.
type RedisIndex struct {
	client         *redis.Client
	config         StoreConfig
	mu             sync.Mutex
	known          map[string]bool
	efConstruction int
	m              int
}

var _ Index = (*RedisIndex)(nil)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	KeyPrefix      string
	VectorDim      int
	EFConstruction int
	M              int
}

// DefaultRedisConfig returns a local single-node configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		PoolSize:       10,
		KeyPrefix:      DefaultStoreConfig().KeyPrefix,
		VectorDim:      DefaultEmbeddingDim,
		EFConstruction: defaultEFConstruction,
		M:              defaultM,
	}
}

// NewRedisIndex connects to Redis and returns an index client
func NewRedisIndex(ctx context.Context, cfg RedisConfig) (*RedisIndex, error) {
	// RESP2 keeps FT.SEARCH replies as flat arrays
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		Protocol: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultStoreConfig().KeyPrefix
	}
	ef := cfg.EFConstruction
	if ef <= 0 {
		ef = defaultEFConstruction
	}
	m := cfg.M
	if m <= 0 {
		m = defaultM
	}

	return &RedisIndex{
		client:         client,
		config:         StoreConfig{EmbeddingDim: cfg.VectorDim, KeyPrefix: prefix},
		known:          make(map[string]bool),
		efConstruction: ef,
		m:              m,
	}, nil
}

func (s *RedisIndex) indexName(collection string) string {
	return s.config.KeyPrefix + collection
}

func (s *RedisIndex) keyPrefix(collection string) string {
	return s.config.KeyPrefix + collection + ":"
}

// EnsureCollection creates the HNSW vector index if it doesn't exist
func (s *RedisIndex) EnsureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.known[name] {
		return nil
	}

	indexName := s.indexName(name)
	if _, err := s.client.Do(ctx, "FT.INFO", indexName).Result(); err == nil {
		s.known[name] = true
		return nil
	}

	if dim <= 0 {
		dim = s.config.EmbeddingDim
	}

	// FT.CREATE cl:contract_chunks
	//   ON HASH PREFIX 1 "cl:contract_chunks:"
	//   SCHEMA vector VECTOR HNSW 10 TYPE FLOAT32 DIM 384 DISTANCE_METRIC COSINE EF_CONSTRUCTION 200 M 16
	//          doc_id TAG
	//          text TEXT
	//          page_number NUMERIC
	_, err := s.client.Do(ctx, "FT.CREATE", indexName,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix(name),
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.efConstruction),
		"M", strconv.Itoa(s.m),
		fieldDocID, "TAG",
		fieldText, "TEXT",
		fieldPageNumber, "NUMERIC",
	).Result()
	if err != nil && !isIndexExists(err) {
		return fmt.Errorf("failed to create index %s: %w", indexName, err)
	}

	s.known[name] = true
	return nil
}

// isIndexExists reports whether FT.CREATE lost a race with another creator
func isIndexExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "index already exists")
}

// Upsert writes points as hashes in a single pipeline
func (s *RedisIndex) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id cannot be empty")
		}

		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload for %s: %w", p.ID, err)
		}

		view := Hit{Payload: p.Payload}
		docID, _ := p.Payload[fieldDocID].(string)
		pipe.HSet(ctx, s.keyPrefix(name)+p.ID,
			fieldVector, encodeVector(p.Vector),
			fieldDocID, docID,
			fieldText, view.Text(),
			fieldPageNumber, view.PageNumber(),
			fieldPayload, payloadJSON,
		)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// encodeVector encodes a float32 vector as little-endian bytes
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector decodes a little-endian float32 vector
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// escapeTag escapes punctuation and spaces in a TAG query value
func escapeTag(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c > 127 {
			b.WriteRune(c)
			continue
		}
		b.WriteByte('\\')
		b.WriteRune(c)
	}
	return b.String()
}

// knnQuery builds the FT.SEARCH query string for a KNN search
func knnQuery(limit int, filter Filter) string {
	base := "*"
	if filter.DocID != "" {
		base = fmt.Sprintf("(@%s:{%s})", fieldDocID, escapeTag(filter.DocID))
	}
	return fmt.Sprintf("%s=>[KNN %d @%s $vec AS %s]", base, limit, fieldVector, fieldScore)
}

// Search performs KNN search over the collection
func (s *RedisIndex) Search(ctx context.Context, name string, vector []float32, limit int, filter Filter) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 100 {
		limit = 100
	}

	// FT.SEARCH cl:contract_chunks "(@doc_id:{...})=>[KNN 5 @vector $vec AS score]"
	//   PARAMS 2 vec "<bytes>"
	//   SORTBY score
	//   RETURN 2 payload score
	//   LIMIT 0 5
	//   DIALECT 2
	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(name), knnQuery(limit, filter),
		"PARAMS", "2", "vec", encodeVector(vector),
		"SORTBY", fieldScore,
		"RETURN", "2", fieldPayload, fieldScore,
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits, err := parseSearchResults(result, s.keyPrefix(name))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return hits, nil
}

// parseSearchResults parses an RESP2 FT.SEARCH reply:
// count, then pairs of (key, [field, value, ...])
func parseSearchResults(result interface{}, keyPrefix string) ([]Hit, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result format")
	}

	hits := []Hit{}
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		hit := Hit{ID: strings.TrimPrefix(key, keyPrefix), Payload: map[string]interface{}{}}
		for j := 0; j+1 < len(fields); j += 2 {
			fieldName, _ := fields[j].(string)
			fieldValue, _ := fields[j+1].(string)
			switch fieldName {
			case fieldPayload:
				if err := json.Unmarshal([]byte(fieldValue), &hit.Payload); err != nil {
					return nil, fmt.Errorf("invalid payload for %s: %w", key, err)
				}
			case fieldScore:
				// RediSearch reports cosine distance
				if d, err := strconv.ParseFloat(fieldValue, 32); err == nil {
					hit.Score = float32(1 - d)
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed hashes in the collection
func (s *RedisIndex) Count(ctx context.Context, name string) (int, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.indexName(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get index info: %w", err)
	}
	return parseNumDocs(info)
}

// parseNumDocs reads num_docs from an FT.INFO reply
func parseNumDocs(info interface{}) (int, error) {
	values, ok := info.([]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected info format")
	}

	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			switch v := values[i+1].(type) {
			case int64:
				return int(v), nil
			case string:
				n, err := strconv.Atoi(v)
				if err != nil {
					return 0, fmt.Errorf("invalid num_docs %q: %w", v, err)
				}
				return n, nil
			}
		}
	}
	return 0, nil
}

// Close closes the Redis connection
func (s *RedisIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
