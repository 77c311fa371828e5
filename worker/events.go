package worker

import (
	"context"
	"time"

	"contractlens/pubsub"
	"contractlens/storage"
)

// Task names carried on events
const (
	TaskProcess = "process"
	TaskCompare = "compare"
	TaskRisk    = "risk"
	TaskSeed    = "seed"
)

// TaskEvent is the payload published for every task transition
type TaskEvent struct {
	DocID    string
	Filename string
	Task     string
	Stage    string
	Status   storage.Status
	Err      string
	Findings int
	Elapsed  time.Duration
}

type taskKey struct{}

// task is carried on the context so stage hooks can attribute progress
type task struct {
	docID    string
	filename string
	name     string
}

func withTask(ctx context.Context, t task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

func taskFrom(ctx context.Context) (task, bool) {
	t, ok := ctx.Value(taskKey{}).(task)
	return t, ok
}

// nopPublisher drops every event
type nopPublisher struct{}

func (nopPublisher) Publish(pubsub.EventType, TaskEvent) {}
