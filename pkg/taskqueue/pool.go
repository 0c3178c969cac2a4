// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package taskqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/metrics"
)

// Pool is an in-process Queue served by a fixed number of workers.
type Pool struct {
	workers  int
	clock    clock.Clock
	metrics  *metrics.Metrics
	handlers map[Name]Handler

	mu     sync.RWMutex
	closed bool
	tasks  chan Task
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// PoolClock sets the clock used to stamp enqueued tasks.
func PoolClock(c clock.Clock) PoolOption {
	return func(p *Pool) { p.clock = c }
}

// PoolMetrics enables task metrics.
func PoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool returns a pool of workers with a backlog of size tasks.
func NewPool(workers, size int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers:  workers,
		clock:    clock.New(),
		handlers: make(map[Name]Handler),
		tasks:    make(chan Task, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle registers h for tasks called name. It must be called before Start.
func (p *Pool) Handle(name Name, h Handler) {
	p.handlers[name] = h
}

// Start launches the workers. They stop once Close is called and the
// backlog is drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			wctx := logging.WithField(ctx, "worker", id)
			for t := range p.tasks {
				p.Run(wctx, t)
			}
		}(i)
	}
}

// Enqueue adds t to the backlog without blocking.
func (p *Pool) Enqueue(ctx context.Context, t Task) error {
	if _, ok := p.handlers[t.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = p.clock.Now()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		logging.Debugf(ctx, "Enqueued %s", t)
		return nil
	default:
		return ErrQueueFull
	}
}

// Run executes t and the tasks it chains, synchronously.
func (p *Pool) Run(ctx context.Context, t Task) {
	h, ok := p.handlers[t.Name]
	if !ok {
		logging.Errorf(ctx, "No handler for %s", t)
		p.metrics.Task(string(t.Name), "unknown")
		return
	}
	ctx = logging.WithField(ctx, "task", t.ID)
	res, err := p.safeRun(ctx, h, t)
	if err != nil {
		logging.Errorf(ctx, "Task %s failed: %v", t, err)
		p.metrics.Task(string(t.Name), "error")
		return
	}
	if len(res.Errors) > 0 {
		logging.Warnf(ctx, "Task %s finished with status %d and errors %v", t, res.Code, res.Errors)
		p.metrics.Task(string(t.Name), "partial")
	} else {
		logging.Infof(ctx, "Task %s finished with status %d", t, res.Code)
		p.metrics.Task(string(t.Name), "ok")
	}
	for _, next := range res.Next {
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		if next.EnqueuedAt.IsZero() {
			next.EnqueuedAt = p.clock.Now()
		}
		p.Run(ctx, next)
	}
}

func (p *Pool) safeRun(ctx context.Context, h Handler, t Task) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, t)
}

// Close stops accepting tasks and waits for the workers to drain the
// backlog.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

var _ Queue = (*Pool)(nil)
