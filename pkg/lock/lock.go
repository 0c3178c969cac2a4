// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package lock defines the named mutual-exclusion lock that serializes
// writers of a shared record across workers and processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a lock could not be acquired within the
	// allowed wait.
	ErrTimeout = errors.New("timed out waiting for lock")
	// ErrNotHeld is returned by Release when the token no longer owns the
	// lock, typically because its lease expired.
	ErrNotHeld = errors.New("lock not held")
)

// Token identifies one acquisition of a lock.
type Token string

// Locker hands out named leases. A lease expires on its own after the
// locker's TTL so that a crashed holder cannot block others forever.
type Locker interface {
	// Acquire blocks for at most wait until key is free and takes it.
	Acquire(ctx context.Context, key string, wait time.Duration) (Token, error)
	// Release gives key back. It is an error to release with a token that
	// does not own the lock.
	Release(ctx context.Context, key string, token Token) error
	Close() error
}
