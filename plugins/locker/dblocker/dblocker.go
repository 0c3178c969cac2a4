// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package dblocker implements a locker on top of a MongoDB collection, so
// that workers in different processes share the same locks.
package dblocker

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
)

// Name is the name used to look this plugin up.
var Name = "dblocker"

// DefaultCollection holds one document per held lock.
const DefaultCollection = "locks"

// DefaultPollInterval is how often a blocked Acquire retries.
const DefaultPollInterval = 50 * time.Millisecond

type record struct {
	Key       string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// DBLocker is a lock.Locker backed by a collection. A lock is a document
// whose _id is the lock key; an expired document may be taken over.
type DBLocker struct {
	coll  *mongo.Collection
	ttl   time.Duration
	poll  time.Duration
	clock clock.Clock
}

// Opt is a function type that sets parameters on the DBLocker object
type Opt func(tl *DBLocker)

// WithClock sets the clock used for lease expiry.
func WithClock(c clock.Clock) Opt {
	return func(tl *DBLocker) { tl.clock = c }
}

// WithPollInterval sets the retry interval of a blocked Acquire.
func WithPollInterval(d time.Duration) Opt {
	return func(tl *DBLocker) { tl.poll = d }
}

// WithCollection overrides the lock collection name.
func WithCollection(name string) Opt {
	return func(tl *DBLocker) { tl.coll = tl.coll.Database().Collection(name) }
}

// New returns a DBLocker storing its leases in db.
func New(db *mongo.Database, ttl time.Duration, opts ...Opt) *DBLocker {
	tl := &DBLocker{
		coll:  db.Collection(DefaultCollection),
		ttl:   ttl,
		poll:  DefaultPollInterval,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(tl)
	}
	return tl
}

func (tl *DBLocker) tryAcquire(ctx context.Context, key string, owner string) (bool, error) {
	now := tl.clock.Now()
	rec := record{Key: key, Owner: owner, ExpiresAt: now.Add(tl.ttl)}
	_, err := tl.coll.InsertOne(ctx, rec)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("could not insert lock %s: %w", key, err)
	}
	// held, take it over only if the lease has expired
	res, err := tl.coll.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"owner": owner, "expires_at": rec.ExpiresAt}},
	)
	if err != nil {
		return false, fmt.Errorf("could not take over lock %s: %w", key, err)
	}
	if res.ModifiedCount > 0 {
		logging.Warnf(ctx, "Lease on %s expired, taking over", key)
		return true, nil
	}
	return false, nil
}

func (tl *DBLocker) Acquire(ctx context.Context, key string, wait time.Duration) (lock.Token, error) {
	owner := uuid.NewString()
	deadline := tl.clock.Now().Add(wait)
	for {
		ok, err := tl.tryAcquire(ctx, key, owner)
		if err != nil {
			return "", err
		}
		if ok {
			return lock.Token(owner), nil
		}
		if !tl.clock.Now().Before(deadline) {
			return "", lock.ErrTimeout
		}
		select {
		case <-tl.clock.After(tl.poll):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (tl *DBLocker) Release(ctx context.Context, key string, token lock.Token) error {
	res, err := tl.coll.DeleteOne(ctx, bson.M{"_id": key, "owner": string(token)})
	if err != nil {
		return fmt.Errorf("could not release lock %s: %w", key, err)
	}
	if res.DeletedCount == 0 {
		return lock.ErrNotHeld
	}
	return nil
}

func (tl *DBLocker) Close() error {
	return nil
}

var _ lock.Locker = (*DBLocker)(nil)
