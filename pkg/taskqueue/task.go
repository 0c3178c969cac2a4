// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package taskqueue runs the log parsing operations asynchronously on a
// pool of workers, or on the consumers of a remote queue.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Name identifies what a task does.
type Name string

// Task names.
const (
	ParseBuildLog       Name = "parse-build-log"
	ParseSingleBuildLog Name = "parse-single-build-log"
	CreateLogsSummary   Name = "create-logs-summary"
)

var (
	ErrClosed      = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
	ErrUnknownTask = errors.New("unknown task")
)

// Task is a unit of work. IDs are hex object identifiers.
type Task struct {
	ID         string    `json:"id"`
	Name       Name      `json:"name"`
	JobID      string    `json:"job_id,omitempty"`
	BuildID    string    `json:"build_id,omitempty"`
	Job        string    `json:"job,omitempty"`
	Kernel     string    `json:"kernel,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (t Task) String() string {
	switch t.Name {
	case ParseSingleBuildLog:
		return fmt.Sprintf("%s[%s build=%s]", t.Name, t.ID, t.BuildID)
	default:
		return fmt.Sprintf("%s[%s %s/%s]", t.Name, t.ID, t.Job, t.Kernel)
	}
}

// Result is what a handler reports. Next lists tasks to run right after,
// in order, on the same worker.
type Result struct {
	Code   int
	Errors map[int][]string
	Next   []Task
}

// Handler executes one kind of task.
type Handler func(ctx context.Context, t Task) (Result, error)

// Queue accepts tasks for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

// EnqueueWait retries q.Enqueue every interval while q is full.
func EnqueueWait(ctx context.Context, q Queue, t Task, interval time.Duration) error {
	for {
		err := q.Enqueue(ctx, t)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
