// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/patterns"
	"github.com/kernelci/logparser/pkg/status"
	"github.com/kernelci/logparser/pkg/storage"
	"github.com/kernelci/logparser/plugins/locker/inmemory"
	"github.com/kernelci/logparser/plugins/storage/memory"
)

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	storage.Store
	findErr   map[string]error
	updateErr error
	saveErr   error
	findDelay time.Duration
}

func (f *faultyStore) FindOne(ctx context.Context, coll string, filter bson.M, out any) error {
	if err := f.findErr[coll]; err != nil {
		return err
	}
	if f.findDelay > 0 {
		time.Sleep(f.findDelay)
	}
	return f.Store.FindOne(ctx, coll, filter, out)
}

func (f *faultyStore) FindAndUpdate(ctx context.Context, coll string, filter bson.M, fields bson.M) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Store.FindAndUpdate(ctx, coll, filter, fields)
}

func (f *faultyStore) Save(ctx context.Context, doc storage.Document) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	return f.Store.Save(ctx, doc)
}

type PersistSuite struct {
	suite.Suite

	ctx    context.Context
	mem    *memory.Memory
	store  *faultyStore
	locker *inmemory.InMemory
	clock  *clock.Mock
	parser *Parser
	jobID  primitive.ObjectID
}

func TestPersistSuite(t *testing.T) {
	suite.Run(t, new(PersistSuite))
}

func (s *PersistSuite) SetupTest() {
	s.ctx = context.Background()
	s.mem = memory.New()
	s.store = &faultyStore{Store: s.mem, findErr: map[string]error{}}
	s.locker = inmemory.New(5 * time.Second)
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2015, 9, 1, 10, 0, 0, 0, time.UTC))
	s.parser = New(s.store, s.locker, OptionClock(s.clock), OptionLockWait(time.Second))
	s.jobID = primitive.NewObjectID()
}

func (s *PersistSuite) newBuild(defconfig string) *build.Build {
	b := &build.Build{
		JobID:         s.jobID,
		Job:           "k",
		Kernel:        "v1",
		Arch:          "arm",
		Defconfig:     defconfig,
		DefconfigFull: defconfig,
		Status:        build.StatusPass,
		Compiler:      "gcc",
		Version:       "1.0",
	}
	_, err := s.mem.Save(s.ctx, b)
	s.Require().NoError(err)
	return b
}

func (s *PersistSuite) summary() *ErrorSummary {
	var sum ErrorSummary
	s.Require().NoError(s.mem.FindOne(s.ctx, ErrorsSummaryCollection, bson.M{"job": "k", "kernel": "v1"}, &sum))
	return &sum
}

func (s *PersistSuite) TestSaveSummarySequential() {
	code := s.parser.saveSummary(s.ctx, Counts{"err1": 1}, nil, nil, s.jobID, "k", "v1")
	s.Require().Equal(status.Created, code)
	created := s.summary().CreatedOn

	s.clock.Add(time.Hour)
	code = s.parser.saveSummary(s.ctx, Counts{"err1": 2, "err2": 1}, nil, nil, s.jobID, "k", "v1")
	s.Require().Equal(status.OK, code)

	sum := s.summary()
	s.Require().Equal([]LineCount{{3, "err1"}, {1, "err2"}}, sum.Errors)
	s.Require().Empty(sum.Warnings)
	s.Require().Empty(sum.Mismatches)
	s.Require().Equal(SchemaVersion, sum.Version)
	s.Require().True(created.Equal(sum.CreatedOn))

	n, err := s.mem.Count(ErrorsSummaryCollection, bson.M{})
	s.Require().NoError(err)
	s.Require().Equal(1, n)
}

func (s *PersistSuite) TestSaveSummaryCategoriesIndependent() {
	s.Require().Equal(status.Created, s.parser.saveSummary(s.ctx, Counts{"e": 1}, Counts{"w": 2}, nil, s.jobID, "k", "v1"))
	s.Require().Equal(status.OK, s.parser.saveSummary(s.ctx, nil, nil, Counts{"m": 1}, s.jobID, "k", "v1"))

	sum := s.summary()
	s.Require().Equal([]LineCount{{1, "e"}}, sum.Errors)
	s.Require().Equal([]LineCount{{2, "w"}}, sum.Warnings)
	s.Require().Equal([]LineCount{{1, "m"}}, sum.Mismatches)
}

func (s *PersistSuite) TestSaveSummaryEmptyIsNoop() {
	s.Require().Equal(status.OK, s.parser.saveSummary(s.ctx, Counts{}, nil, Counts{}, s.jobID, "k", "v1"))
	n, err := s.mem.Count(ErrorsSummaryCollection, bson.M{})
	s.Require().NoError(err)
	s.Require().Zero(n)
}

func (s *PersistSuite) TestSaveSummaryLockTimeout() {
	tok, err := s.locker.Acquire(s.ctx, LockKey(s.jobID), 0)
	s.Require().NoError(err)

	parser := New(s.store, s.locker, OptionLockWait(10*time.Millisecond))
	code := parser.saveSummary(s.ctx, Counts{"err1": 1}, nil, nil, s.jobID, "k", "v1")
	s.Require().Equal(status.InternalError, code)

	n, err := s.mem.Count(ErrorsSummaryCollection, bson.M{})
	s.Require().NoError(err)
	s.Require().Zero(n)
	s.Require().NoError(s.locker.Release(s.ctx, LockKey(s.jobID), tok))
}

func (s *PersistSuite) TestSaveSummaryLookupFailure() {
	s.store.findErr[ErrorsSummaryCollection] = storage.ErrQuery
	code := s.parser.saveSummary(s.ctx, Counts{"err1": 1}, nil, nil, s.jobID, "k", "v1")
	s.Require().Equal(status.InternalError, code)

	delete(s.store.findErr, ErrorsSummaryCollection)
	n, err := s.mem.Count(ErrorsSummaryCollection, bson.M{})
	s.Require().NoError(err)
	s.Require().Zero(n)

	// the lock was released on the failure path
	tok, err := s.locker.Acquire(s.ctx, LockKey(s.jobID), 0)
	s.Require().NoError(err)
	s.Require().NoError(s.locker.Release(s.ctx, LockKey(s.jobID), tok))
}

func (s *PersistSuite) TestSaveSummaryConcurrent() {
	s.store.findDelay = 5 * time.Millisecond
	parser := New(s.store, s.locker, OptionLockWait(10*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts := Counts{"err1": 1}
			if i%2 == 0 {
				counts["err2"] = 2
			}
			code := parser.saveSummary(s.ctx, counts, Counts{"w": 1}, nil, s.jobID, "k", "v1")
			s.Assert().Contains([]int{status.OK, status.Created}, code)
		}(i)
	}
	wg.Wait()

	sum := s.summary()
	s.Require().Equal([]LineCount{{10, "err2"}, {10, "err1"}}, sum.Errors)
	s.Require().Equal([]LineCount{{10, "w"}}, sum.Warnings)
	n, err := s.mem.Count(ErrorsSummaryCollection, bson.M{})
	s.Require().NoError(err)
	s.Require().Equal(1, n)
}

func (s *PersistSuite) TestSaveDefconfigErrorsOverwrites() {
	b := s.newBuild("defconfig")
	s.Require().Equal(status.Created, s.parser.SaveDefconfigErrors(s.ctx, b, s.jobID, Lines{Errors: []string{"e1"}}))
	s.Require().Equal(status.OK, s.parser.SaveDefconfigErrors(s.ctx, b, s.jobID, Lines{Errors: []string{"e2", "e3"}, Warnings: []string{"w"}}))

	n, err := s.mem.Count(ErrorLogsCollection, bson.M{"build_id": b.ID})
	s.Require().NoError(err)
	s.Require().Equal(1, n)

	got, err := s.parser.FindErrorLog(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Equal([]string{"e2", "e3"}, got.Errors)
	s.Require().Equal(2, got.ErrorsCount)
	s.Require().Equal([]string{"w"}, got.Warnings)
	s.Require().Empty(got.Mismatches)
	s.Require().Equal("gcc", got.Compiler)
	s.Require().Equal(s.jobID, got.JobID)
}

func (s *PersistSuite) TestSaveDefconfigErrorsLooksUpBuildID() {
	stored := s.newBuild("defconfig")
	inHand := *stored
	inHand.ID = primitive.NilObjectID

	s.Require().Equal(status.Created, s.parser.SaveDefconfigErrors(s.ctx, &inHand, s.jobID, Lines{Errors: []string{"e1"}}))
	got, err := s.parser.FindErrorLog(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.Require().Equal([]string{"e1"}, got.Errors)
}

func (s *PersistSuite) TestSaveDefconfigErrorsWithoutBuild() {
	b := &build.Build{Job: "k", Kernel: "v1", Defconfig: "d", DefconfigFull: "d", Status: build.StatusFail}
	s.Require().Equal(status.Created, s.parser.SaveDefconfigErrors(s.ctx, b, s.jobID, Lines{Errors: []string{"e1"}}))
	// fallback key matches the record created without a build id
	s.Require().Equal(status.OK, s.parser.SaveDefconfigErrors(s.ctx, b, s.jobID, Lines{Errors: []string{"e2"}}))

	n, err := s.mem.Count(ErrorLogsCollection, bson.M{"build_id": nil})
	s.Require().NoError(err)
	s.Require().Equal(1, n)
}

func (s *PersistSuite) TestSaveDefconfigErrorsFailure() {
	b := s.newBuild("defconfig")
	s.store.saveErr = storage.ErrInsert
	s.Require().Equal(status.InternalError, s.parser.SaveDefconfigErrors(s.ctx, b, s.jobID, Lines{Errors: []string{"e1"}}))
}

func (s *PersistSuite) TestSaveUpdatesBuildCounters() {
	b := s.newBuild("defconfig")
	errs := status.NewErrors()
	lines := Lines{Errors: []string{"e1", "e1"}, Warnings: []string{"w"}, Mismatches: []string{"m1", "m2", "m3"}}
	code := s.parser.save(s.ctx, b, s.jobID, lines, errs)
	s.Require().Equal(status.Created, code)
	s.Require().True(errs.Empty())

	var got build.Build
	s.Require().NoError(s.mem.FindOne(s.ctx, build.Collection, bson.M{"_id": b.ID}, &got))
	s.Require().Equal(2, got.Errors)
	s.Require().Equal(1, got.Warnings)
	s.Require().Equal(3, got.Mismatches)

	sum := s.summary()
	s.Require().Equal([]LineCount{{2, "e1"}}, sum.Errors)
	s.Require().Equal([]LineCount{{1, "m3"}, {1, "m2"}, {1, "m1"}}, sum.Mismatches)
}

func (s *PersistSuite) TestSaveContinuesAfterFailures() {
	b := s.newBuild("defconfig")
	s.store.findErr[ErrorLogsCollection] = errors.New("db down")
	s.store.updateErr = storage.ErrUpdate

	errs := status.NewErrors()
	code := s.parser.save(s.ctx, b, s.jobID, Lines{Errors: []string{"e1"}}, errs)
	// the summary is created even though the earlier steps failed
	s.Require().Equal(status.Created, code)
	msgs := errs.Get(status.InternalError)
	s.Require().Len(msgs, 2)
	s.Require().True(strings.HasPrefix(msgs[0], "Error saving errors log document"))
	s.Require().True(strings.HasPrefix(msgs[1], "Error updating build errors count"))
}

func (s *PersistSuite) TestClassifyAndSaveScenario() {
	b := s.newBuild("defconfig")
	log := "foo error: bar\nbaz warning: qux\na warning: Section mismatch detected\nplain text\n"
	lines, err := ScanLines(strings.NewReader(log), patterns.Default)
	s.Require().NoError(err)
	s.Require().Equal([]string{"foo error: bar"}, lines.Errors)
	s.Require().Equal([]string{"baz warning: qux"}, lines.Warnings)
	s.Require().Equal([]string{"a warning: Section mismatch detected"}, lines.Mismatches)

	errs := status.NewErrors()
	s.Require().Equal(status.Created, s.parser.save(s.ctx, b, s.jobID, lines, errs))
	s.Require().True(errs.Empty())
}

func TestLockKey(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("55e5a6cf59b514676b3d1bd8")
	require.NoError(t, err)
	require.Equal(t, "log-parser-55e5a6cf59b514676b3d1bd8", LockKey(id))
}
