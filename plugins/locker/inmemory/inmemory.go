// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package inmemory implements a process-local locker with leases.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
)

// Name is the name used to look this plugin up.
var Name = "inmemory"

type lease struct {
	token   lock.Token
	expires time.Time
}

// InMemory is a lock.Locker shared by the goroutines of one process.
type InMemory struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.Mutex
	leases  map[string]lease
	waiters map[string]chan struct{}
}

// Option configures an InMemory locker.
type Option func(*InMemory)

// OptionClock sets the clock used for lease expiry and wait deadlines.
func OptionClock(c clock.Clock) Option {
	return func(l *InMemory) { l.clock = c }
}

// New returns a locker whose leases last ttl.
func New(ttl time.Duration, opts ...Option) *InMemory {
	l := &InMemory{
		clock:   clock.New(),
		ttl:     ttl,
		leases:  make(map[string]lease),
		waiters: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *InMemory) Acquire(ctx context.Context, key string, wait time.Duration) (lock.Token, error) {
	token := lock.Token(uuid.NewString())
	deadline := l.clock.Now().Add(wait)
	for {
		l.mu.Lock()
		now := l.clock.Now()
		cur, held := l.leases[key]
		if !held || !now.Before(cur.expires) {
			if held {
				logging.Warnf(ctx, "Lease on %s expired, taking over", key)
			}
			l.leases[key] = lease{token: token, expires: now.Add(l.ttl)}
			l.mu.Unlock()
			return token, nil
		}
		if !now.Before(deadline) {
			l.mu.Unlock()
			return "", lock.ErrTimeout
		}
		released, ok := l.waiters[key]
		if !ok {
			released = make(chan struct{})
			l.waiters[key] = released
		}
		wake := cur.expires
		if deadline.Before(wake) {
			wake = deadline
		}
		l.mu.Unlock()

		timer := l.clock.Timer(wake.Sub(now))
		select {
		case <-released:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
		timer.Stop()
	}
}

func (l *InMemory) Release(_ context.Context, key string, token lock.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, held := l.leases[key]
	if !held || cur.token != token {
		return lock.ErrNotHeld
	}
	delete(l.leases, key)
	if ch, ok := l.waiters[key]; ok {
		close(ch)
		delete(l.waiters, key)
	}
	return nil
}

func (l *InMemory) Close() error {
	return nil
}

var _ lock.Locker = (*InMemory)(nil)
