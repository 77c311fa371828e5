// Package pipeline runs small state machines whose stages hand off through
// explicit transitions. Each of the extraction, comparison and risk
// pipelines is a Machine over its own state struct.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StateName identifies a stage
type StateName string

// Transition tells the machine what to run after a stage
type Transition struct {
	next StateName
	done bool
}

// Continue moves to the named stage
func Continue(next StateName) Transition {
	return Transition{next: next}
}

// Terminate ends the run
func Terminate() Transition {
	return Transition{done: true}
}

// Next returns the next stage and whether the run ends here
func (t Transition) Next() (StateName, bool) {
	return t.next, t.done
}

// Stage mutates the state and picks the transition. An error aborts the run.
type Stage[S any] func(ctx context.Context, state *S) (Transition, error)

// StageEvent is reported after each stage
type StageEvent struct {
	Pipeline string
	Stage    StateName
	Elapsed  time.Duration
	Err      error
}

// StageHook observes a finished stage. ctx is the context the run was
// started with.
type StageHook func(ctx context.Context, ev StageEvent)

// Machine is a named set of stages with a start state
type Machine[S any] struct {
	name    string
	start   StateName
	stages  map[StateName]Stage[S]
	onStage StageHook
	logger  *slog.Logger
}

// New creates a machine that begins at start
func New[S any](name string, start StateName, logger *slog.Logger) *Machine[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine[S]{
		name:   name,
		start:  start,
		stages: make(map[StateName]Stage[S]),
		logger: logger,
	}
}

// Add registers a stage, replacing any previous stage of that name
func (m *Machine[S]) Add(name StateName, stage Stage[S]) *Machine[S] {
	m.stages[name] = stage
	return m
}

// OnStage sets a hook called after every stage
func (m *Machine[S]) OnStage(fn StageHook) *Machine[S] {
	m.onStage = fn
	return m
}

// Stage returns a registered stage, for running it in isolation
func (m *Machine[S]) Stage(name StateName) (Stage[S], bool) {
	s, ok := m.stages[name]
	return s, ok
}

// Run walks transitions from the start state until a stage terminates
func (m *Machine[S]) Run(ctx context.Context, state *S) error {
	current := m.start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stage, ok := m.stages[current]
		if !ok {
			return fmt.Errorf("pipeline %s: unknown state %q", m.name, current)
		}

		start := time.Now()
		t, err := stage(ctx, state)
		elapsed := time.Since(start)

		if m.onStage != nil {
			m.onStage(ctx, StageEvent{Pipeline: m.name, Stage: current, Elapsed: elapsed, Err: err})
		}
		if err != nil {
			m.logger.Error(m.name+".stage.failed", "stage", current, "elapsed_ms", elapsed.Milliseconds(), "err", err)
			return fmt.Errorf("pipeline %s: stage %s: %w", m.name, current, err)
		}
		m.logger.Debug(m.name+".stage.done", "stage", current, "elapsed_ms", elapsed.Milliseconds())

		next, done := t.Next()
		if done {
			return nil
		}
		current = next
	}
}
