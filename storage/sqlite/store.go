// Package sqlite implements the document, finding and review stores on a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"contractlens/llm"
	"contractlens/storage"
	"contractlens/storage/sqlite/migrations"
)

const dbFile = "contractlens.db"

// Store owns the database handle
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ storage.DocumentStore = (*Store)(nil)
	_ storage.FindingStore  = (*FindingStore)(nil)
	_ storage.ReviewStore   = (*FindingStore)(nil)
)

// Open opens or creates the database under dataDir and applies migrations
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, dbFile)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Findings returns the finding and review store sharing this database
func (s *Store) Findings() *FindingStore {
	return &FindingStore{store: s}
}

// migrate applies every NNN_name.up.sql newer than the recorded version
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Documents ====================

const documentColumns = "id, filename, blob_key, status, extraction_result, created_at, updated_at"

// Create implements storage.DocumentStore
func (s *Store) Create(ctx context.Context, doc *storage.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = storage.StatusPending
	}
	now := s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	extraction, err := marshalNullable(doc.Extraction)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.BlobKey, string(doc.Status), extraction,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get implements storage.DocumentStore
func (s *Store) Get(ctx context.Context, id string) (*storage.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUnknownDocument(id)
	}
	return doc, err
}

// UpdateStatus implements storage.DocumentStore
func (s *Store) UpdateStatus(ctx context.Context, id string, status storage.Status) error {
	return s.updateDocument(ctx, id, "status = ?", string(status))
}

// SaveExtraction implements storage.DocumentStore
func (s *Store) SaveExtraction(ctx context.Context, id string, result *llm.ExtractionResult) error {
	data, err := marshalNullable(result)
	if err != nil {
		return err
	}
	return s.updateDocument(ctx, id, "extraction_result = ?", data)
}

func (s *Store) updateDocument(ctx context.Context, id, set string, value interface{}) error {
	res, err := s.db.ExecContext(ctx, "UPDATE documents SET "+set+", updated_at = ? WHERE id = ?",
		value, s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUnknownDocument(id)
	}
	return nil
}

// ListExtracted implements storage.DocumentStore
func (s *Store) ListExtracted(ctx context.Context) ([]storage.Document, error) {
	return s.listDocuments(ctx, "WHERE extraction_result IS NOT NULL")
}

// List implements storage.DocumentStore
func (s *Store) List(ctx context.Context) ([]storage.Document, error) {
	return s.listDocuments(ctx, "")
}

func (s *Store) listDocuments(ctx context.Context, where string) ([]storage.Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents "+where+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*storage.Document, error) {
	var (
		doc              storage.Document
		status           string
		extraction       sql.NullString
		created, updated int64
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.BlobKey, &status, &extraction, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Status = storage.Status(status)
	doc.CreatedAt = time.Unix(0, created)
	doc.UpdatedAt = time.Unix(0, updated)

	if extraction.Valid && extraction.String != "" {
		var result llm.ExtractionResult
		if err := json.Unmarshal([]byte(extraction.String), &result); err != nil {
			return nil, fmt.Errorf("failed to decode extraction of %s: %w", doc.ID, err)
		}
		doc.Extraction = &result
	}
	return &doc, nil
}

// marshalNullable encodes v as JSON, or SQL NULL for a nil pointer
func marshalNullable(v *llm.ExtractionResult) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction: %w", err)
	}
	return string(b), nil
}
