// Package blob keeps uploaded files on the local filesystem.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"contractlens/llm"
	"contractlens/storage"
)

// FSStore stores each blob as one file under root
type FSStore struct {
	root string
}

var _ storage.BlobStore = (*FSStore)(nil)

// NewFSStore creates the root directory if needed
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Put copies r into a new file named by a UUID plus the extension of name
func (s *FSStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.root, key)

	// Write to a temp name so a failed copy leaves no partial blob
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return key, nil
}

// Open returns the blob contents
func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s: %w", key, llm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Path maps a key to its file, rejecting keys that leave the root
func (s *FSStore) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	path := filepath.Join(s.root, key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("blob %s: %w", key, llm.ErrNotFound)
	}
	return path, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
