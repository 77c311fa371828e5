package worker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the concurrency used when none is configured
const DefaultWorkers = 4

// Job is one unit of dispatched work
type Job func(ctx context.Context) error

// Dispatcher runs jobs with bounded concurrency. Jobs sharing a key never
// run at the same time.
type Dispatcher struct {
	group  *errgroup.Group
	ctx    context.Context
	locks  *keyedMutex
	logger *slog.Logger

	mu   sync.Mutex
	errs []error
}

// NewDispatcher creates a dispatcher running at most workers jobs at once.
// A failing job does not cancel the others.
func NewDispatcher(ctx context.Context, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	return &Dispatcher{
		group:  g,
		ctx:    ctx,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Submit queues a job under key, blocking while all workers are busy.
// It returns the context error once the dispatcher's context is done.
func (d *Dispatcher) Submit(key string, job Job) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	d.group.Go(func() error {
		unlock := d.locks.Lock(key)
		defer unlock()

		if err := d.ctx.Err(); err != nil {
			d.record(key, err)
			return nil
		}
		if err := job(d.ctx); err != nil {
			d.record(key, err)
		}
		return nil
	})
	return nil
}

func (d *Dispatcher) record(key string, err error) {
	d.logger.Warn("dispatch.job.failed", "key", key, "err", err)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

// Wait blocks until every submitted job has finished and returns the job
// errors in completion order
func (d *Dispatcher) Wait() []error {
	_ = d.group.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errs
}

// Failed returns the number of jobs that returned an error so far
func (d *Dispatcher) Failed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

// keyedMutex hands out one mutex per key and drops it once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its unlock function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
