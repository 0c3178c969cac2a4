// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

//go:build integration
// +build integration

package dblocker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/plugins/storage/mongo"
)

func TestDBLocker(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	stor, err := mongo.Connect(ctx, uri, "logparser-integ")
	require.NoError(t, err)
	defer func() { _ = stor.Close(ctx) }()

	mock := clock.NewMock()
	mock.Set(time.Now())
	tl := New(stor.Database(), 5*time.Second, WithClock(mock), WithCollection("locks_integ"))
	_, _ = tl.coll.DeleteMany(ctx, map[string]any{})

	tok, err := tl.Acquire(ctx, "log-parser-x", 0)
	require.NoError(t, err)
	_, err = tl.Acquire(ctx, "log-parser-x", 0)
	require.ErrorIs(t, err, lock.ErrTimeout)

	mock.Add(6 * time.Second)
	fresh, err := tl.Acquire(ctx, "log-parser-x", 0)
	require.NoError(t, err)
	require.ErrorIs(t, tl.Release(ctx, "log-parser-x", tok), lock.ErrNotHeld)
	require.NoError(t, tl.Release(ctx, "log-parser-x", fresh))
}
