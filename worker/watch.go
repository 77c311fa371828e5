package worker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the write bursts of a file being copied in
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures the inbox watcher
type WatchOptions struct {
	// Debounce is how long a file must stay quiet before it is ingested
	Debounce time.Duration
	// InitialScan ingests the supported files already in the directory
	InitialScan bool
}

// Watch ingests and processes every supported file that appears in dir
// until ctx is done. Jobs run on d; the caller waits on d afterwards.
func (s *Service) Watch(ctx context.Context, dir string, d *Dispatcher, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.logger.Info("watch.start", "dir", dir)

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	seen := make(map[string]time.Time)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(opts.Debounce)
			return
		}
		timers[path] = time.AfterFunc(opts.Debounce, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	if opts.InitialScan {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if path := filepath.Join(dir, e.Name()); e.Type().IsRegular() && s.watchable(path) {
				schedule(path)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch.stop", "dir", dir)
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !s.watchable(ev.Name) {
				continue
			}
			schedule(ev.Name)

		case path := <-ready:
			delete(timers, path)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if mod, ok := seen[path]; ok && mod.Equal(info.ModTime()) {
				continue
			}
			seen[path] = info.ModTime()

			s.logger.Info("watch.file.ready", "path", path)
			if err := d.Submit(path, func(ctx context.Context) error {
				_, err := s.IngestAndProcess(ctx, path)
				return err
			}); err != nil {
				return nil
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watch.error", "dir", dir, "err", err)
		}
	}
}

// watchable skips hidden and temporary files and unsupported types
func (s *Service) watchable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, "~") {
		return false
	}
	return s.parsers.Supports(path)
}

// ExpandEntries lists the regular files under dir accepted by the service,
// used when a directory is passed to ingest
func (s *Service) ExpandEntries(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && s.watchable(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return paths, nil
}
