// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/status"
)

type call struct {
	name    Name
	jobID   primitive.ObjectID
	buildID primitive.ObjectID
	job     string
	kernel  string
}

type fakeParser struct {
	mu    sync.Mutex
	calls []call
	code  int
}

func (f *fakeParser) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeParser) ParseBuildLog(_ context.Context, jobID primitive.ObjectID, job, kernel string) (int, *status.Errors) {
	f.record(call{name: ParseBuildLog, jobID: jobID, job: job, kernel: kernel})
	errs := status.NewErrors()
	if f.code == status.InternalError {
		errs.Add(status.InternalError, "boom")
	}
	return f.code, errs
}

func (f *fakeParser) ParseSingleBuildLog(_ context.Context, buildID, jobID primitive.ObjectID) (int, *status.Errors) {
	f.record(call{name: ParseSingleBuildLog, jobID: jobID, buildID: buildID})
	return f.code, status.NewErrors()
}

func (f *fakeParser) CreateBuildLogsSummary(_ context.Context, job, kernel string) (int, *status.Errors) {
	f.record(call{name: CreateLogsSummary, job: job, kernel: kernel})
	return status.OK, status.NewErrors()
}

func TestPoolChainsSummary(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{code: status.Created}
	pool := NewPool(2, 4)
	RegisterParserTasks(pool, fp)
	pool.Start(ctx)

	jobID := primitive.NewObjectID()
	require.NoError(t, pool.Enqueue(ctx, Task{Name: ParseBuildLog, JobID: jobID.Hex(), Job: "k", Kernel: "v1"}))
	pool.Close()

	require.Equal(t, []call{
		{name: ParseBuildLog, jobID: jobID, job: "k", kernel: "v1"},
		{name: CreateLogsSummary, job: "k", kernel: "v1"},
	}, fp.calls)
}

func TestPoolNoChainOnFailure(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{code: status.InternalError}
	pool := NewPool(1, 4)
	RegisterParserTasks(pool, fp)
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(ctx, Task{Name: ParseBuildLog, JobID: primitive.NewObjectID().Hex(), Job: "k", Kernel: "v1"}))
	pool.Close()
	require.Len(t, fp.calls, 1)
}

func TestPoolSingleBuild(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{code: status.OK}
	pool := NewPool(1, 4)
	RegisterParserTasks(pool, fp)
	pool.Start(ctx)

	buildID := primitive.NewObjectID()
	require.NoError(t, pool.Enqueue(ctx, Task{Name: ParseSingleBuildLog, BuildID: buildID.Hex()}))
	// malformed ids fail the task without calling the parser
	require.NoError(t, pool.Enqueue(ctx, Task{Name: ParseSingleBuildLog, BuildID: "nope"}))
	pool.Close()

	require.Equal(t, []call{{name: ParseSingleBuildLog, buildID: buildID}}, fp.calls)
}

func TestPoolEnqueueErrors(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(1, 1)
	RegisterParserTasks(pool, &fakeParser{code: status.OK})

	require.ErrorIs(t, pool.Enqueue(ctx, Task{Name: "import-job"}), ErrUnknownTask)

	// not started: the backlog fills up
	require.NoError(t, pool.Enqueue(ctx, Task{Name: CreateLogsSummary, Job: "k", Kernel: "v1"}))
	require.ErrorIs(t, pool.Enqueue(ctx, Task{Name: CreateLogsSummary, Job: "k", Kernel: "v1"}), ErrQueueFull)

	pool.Start(ctx)
	pool.Close()
	require.ErrorIs(t, pool.Enqueue(ctx, Task{Name: CreateLogsSummary}), ErrClosed)
	pool.Close()
}

func TestPoolRecoversPanics(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(1, 2)
	ran := false
	pool.Handle("explode", func(context.Context, Task) (Result, error) { panic("boom") })
	pool.Handle(CreateLogsSummary, func(context.Context, Task) (Result, error) {
		ran = true
		return Result{Code: status.OK}, nil
	})
	pool.Start(ctx)
	require.NoError(t, pool.Enqueue(ctx, Task{Name: "explode"}))
	require.NoError(t, pool.Enqueue(ctx, Task{Name: CreateLogsSummary}))
	pool.Close()
	require.True(t, ran)
}

func TestTaskString(t *testing.T) {
	require.Equal(t, "create-logs-summary[1 k/v1]", Task{ID: "1", Name: CreateLogsSummary, Job: "k", Kernel: "v1"}.String())
	require.Equal(t, "parse-single-build-log[2 build=abc]", Task{ID: "2", Name: ParseSingleBuildLog, BuildID: "abc"}.String())
}

func TestEnqueueWait(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(1, 1)
	RegisterParserTasks(pool, &fakeParser{code: status.OK})
	require.NoError(t, pool.Enqueue(ctx, Task{Name: CreateLogsSummary}))

	done := make(chan error, 1)
	go func() { done <- EnqueueWait(ctx, pool, Task{Name: CreateLogsSummary}, time.Millisecond) }()
	pool.Start(ctx)
	require.NoError(t, <-done)
	pool.Close()

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	full := NewPool(1, 0)
	full.Handle(CreateLogsSummary, func(context.Context, Task) (Result, error) { return Result{}, nil })
	require.ErrorIs(t, EnqueueWait(cctx, full, Task{Name: CreateLogsSummary}, time.Millisecond), context.Canceled)
}
