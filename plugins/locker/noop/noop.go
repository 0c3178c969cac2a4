// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package noop implements a no-op locker, for single-writer runs.
package noop

import (
	"context"
	"time"

	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
)

// Name is the name used to look this plugin up.
var Name = "noop"

// Noop is the no-op locker. It does nothing.
type Noop struct {
}

// Acquire takes the lock by doing nothing.
func (Noop) Acquire(ctx context.Context, key string, _ time.Duration) (lock.Token, error) {
	logging.Debugf(ctx, "Locked %s by doing nothing", key)
	return lock.Token(key), nil
}

// Release releases the lock by doing nothing.
func (Noop) Release(ctx context.Context, key string, _ lock.Token) error {
	logging.Debugf(ctx, "Unlocked %s by doing nothing", key)
	return nil
}

func (Noop) Close() error {
	return nil
}

// New returns a new Noop locker.
func New() lock.Locker {
	return &Noop{}
}
