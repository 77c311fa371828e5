package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// snapshot is the JSON structure of a persisted memory index
type snapshot struct {
	Version     string                         `json:"version"`
	UpdatedAt   string                         `json:"updated_at"`
	Collections map[string]*snapshotCollection `json:"collections"`
}

type snapshotCollection struct {
	Dim    int           `json:"dim"`
	Points []storedPoint `json:"points"`
}

type storedPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

type memoryCollection struct {
	dim    int
	order  []string // insertion order, used to break score ties
	points map[string]storedPoint
}

// MemoryIndex implements Index in process with brute-force cosine scoring.
// When a file path is set the index can be loaded from and saved to a JSON
// snapshot.
type MemoryIndex struct {
	filePath    string
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index. filePath may be empty.
func NewMemoryIndex(filePath string) (*MemoryIndex, error) {
	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &MemoryIndex{
		filePath:    filePath,
		collections: make(map[string]*memoryCollection),
	}, nil
}

// Load reads the snapshot file if it exists
func (m *MemoryIndex) Load() error {
	if m.filePath == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read index snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse index snapshot: %w", err)
	}

	m.collections = make(map[string]*memoryCollection, len(snap.Collections))
	for name, sc := range snap.Collections {
		col := &memoryCollection{dim: sc.Dim, points: make(map[string]storedPoint, len(sc.Points))}
		for _, p := range sc.Points {
			col.order = append(col.order, p.ID)
			col.points[p.ID] = p
		}
		m.collections[name] = col
	}
	return nil
}

// Save writes the snapshot file. It is a no-op without a file path.
func (m *MemoryIndex) Save() error {
	if m.filePath == "" {
		return nil
	}

	m.mu.RLock()
	snap := snapshot{
		Version:     "1.0",
		UpdatedAt:   time.Now().Format(time.RFC3339),
		Collections: make(map[string]*snapshotCollection, len(m.collections)),
	}
	for name, col := range m.collections {
		sc := &snapshotCollection{Dim: col.dim, Points: make([]storedPoint, 0, len(col.order))}
		for _, id := range col.order {
			sc.Points = append(sc.Points, col.points[id])
		}
		snap.Collections[name] = sc
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index snapshot: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection if missing
func (m *MemoryIndex) EnsureCollection(ctx context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return nil
	}
	m.collections[name] = &memoryCollection{dim: dim, points: make(map[string]storedPoint)}
	return nil
}

// Upsert writes points, replacing existing ids in place
func (m *MemoryIndex) Upsert(ctx context.Context, name string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("collection %q does not exist", name)
	}

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id cannot be empty")
		}
		if col.dim > 0 && len(p.Vector) != col.dim {
			return fmt.Errorf("point %s has dimension %d, collection %q expects %d", p.ID, len(p.Vector), name, col.dim)
		}
	}

	for _, p := range points {
		if _, exists := col.points[p.ID]; !exists {
			col.order = append(col.order, p.ID)
		}
		col.points[p.ID] = storedPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return nil
}

// Search scores every point in the collection against vector
func (m *MemoryIndex) Search(ctx context.Context, name string, vector []float32, limit int, filter Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", name)
	}
	if limit <= 0 {
		limit = 5
	}

	hits := make([]Hit, 0, len(col.order))
	for _, id := range col.order {
		p := col.points[id]
		if filter.DocID != "" && fmt.Sprint(p.Payload["doc_id"]) != filter.DocID {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of points in the collection
func (m *MemoryIndex) Count(ctx context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return 0, nil
	}
	return len(col.points), nil
}

// Close saves the snapshot if one is configured
func (m *MemoryIndex) Close() error {
	return m.Save()
}

// cosine computes cosine similarity, 0 when either vector is zero
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
