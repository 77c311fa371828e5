package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractlens/llm/reasoning"
	"contractlens/storage"
)

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	d := NewDispatcher(context.Background(), 2, nil)

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Submit(fmt.Sprintf("doc-%d", i), func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	assert.Empty(t, d.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcher_SerializesSameKey(t *testing.T) {
	d := NewDispatcher(context.Background(), 4, nil)

	var mu sync.Mutex
	var inside int
	var overlapped bool
	for i := 0; i < 6; i++ {
		require.NoError(t, d.Submit("same-doc", func(ctx context.Context) error {
			mu.Lock()
			inside++
			if inside > 1 {
				overlapped = true
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			return nil
		}))
	}

	d.Wait()
	assert.False(t, overlapped)
	assert.Zero(t, d.locks.size())
}

func TestDispatcher_CollectsErrorsWithoutCancelling(t *testing.T) {
	d := NewDispatcher(context.Background(), 2, nil)

	var done atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Submit(fmt.Sprintf("doc-%d", i), func(ctx context.Context) error {
			done.Add(1)
			if i%2 == 0 {
				return boom
			}
			return nil
		}))
	}

	errs := d.Wait()
	assert.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 2, d.Failed())
	assert.Equal(t, int32(4), done.Load())
}

func TestDispatcher_RejectsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(ctx, 1, nil)
	cancel()

	err := d.Submit("doc", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.Wait())
}

func TestWatch_IngestsNewFiles(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	inbox := filepath.Join(f.dir, "inbox")
	require.NoError(t, os.Mkdir(inbox, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "existing.txt"), []byte(invoiceText), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx, 2, nil)

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- f.svc.Watch(ctx, inbox, d, WatchOptions{Debounce: 50 * time.Millisecond, InitialScan: true})
	}()

	// give the watcher time to register before creating files
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "msa.txt"), []byte(contractText), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, ".hidden.txt"), []byte(contractText), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "photo.png"), []byte("png"), 0644))

	require.Eventually(t, func() bool {
		docs, err := f.store.List(context.Background())
		if err != nil || len(docs) != 2 {
			return false
		}
		for _, doc := range docs {
			if doc.Status != storage.StatusReviewNeeded {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-watchErr)
	d.Wait()

	docs, err := f.store.List(context.Background())
	require.NoError(t, err)
	names := []string{docs[0].Filename, docs[1].Filename}
	assert.ElementsMatch(t, []string{"existing.txt", "msa.txt"}, names)
}

func TestWatch_RejectsMissingDir(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	d := NewDispatcher(context.Background(), 1, nil)
	err := f.svc.Watch(context.Background(), filepath.Join(f.dir, "nope"), d, WatchOptions{})
	assert.Error(t, err)
}

func TestExpandEntries(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	dir := filepath.Join(f.dir, "batch")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"a.txt", "nested/b.md", "c.png", ".d.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	paths, err := f.svc.ExpandEntries(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "nested", "b.md")}, paths)
}
