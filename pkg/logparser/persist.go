// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/status"
	"github.com/kernelci/logparser/pkg/storage"
)

// LockKey is the name of the lock guarding the summary of jobID.
func LockKey(jobID primitive.ObjectID) string {
	return "log-parser-" + jobID.Hex()
}

// optional maps an empty string to a null filter value.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func buildFilter(b *build.Build, jobID primitive.ObjectID) bson.M {
	f := bson.M{
		"job":            b.Job,
		"kernel":         b.Kernel,
		"arch":           optional(b.Arch),
		"defconfig":      b.Defconfig,
		"defconfig_full": b.DefconfigFull,
	}
	if !jobID.IsZero() {
		f["job_id"] = jobID
	}
	return f
}

// SaveDefconfigErrors stores the error log of one build, replacing any
// previous error log of the same build. It returns 201 when a record was
// created, 200 when one was replaced, 500 on failure.
func (p *Parser) SaveDefconfigErrors(ctx context.Context, b *build.Build, jobID primitive.ObjectID, lines Lines) int {
	var buildID *primitive.ObjectID
	if !b.ID.IsZero() {
		id := b.ID
		buildID = &id
	} else {
		var found build.Build
		err := p.store.FindOne(ctx, build.Collection, buildFilter(b, jobID), &found)
		switch {
		case err == nil:
			buildID = &found.ID
		case errors.Is(err, storage.ErrNotFound):
			logging.Warnf(ctx, "No build ID found for %s-%s-%s (%s)", b.Job, b.Kernel, b.DefconfigFull, b.Arch)
		default:
			logging.Errorf(ctx, "Error looking up build ID for %s-%s-%s (%s): %v", b.Job, b.Kernel, b.DefconfigFull, b.Arch, err)
		}
	}

	var prevFilter bson.M
	if buildID != nil {
		prevFilter = bson.M{"build_id": *buildID}
	} else {
		prevFilter = bson.M{
			"job":            b.Job,
			"kernel":         b.Kernel,
			"arch":           optional(b.Arch),
			"defconfig_full": b.DefconfigFull,
			"defconfig":      b.Defconfig,
			"status":         b.Status,
		}
	}

	doc := &ErrorLog{
		Version:             SchemaVersion,
		JobID:               jobID,
		BuildID:             buildID,
		Job:                 b.Job,
		Kernel:              b.Kernel,
		Arch:                b.Arch,
		Defconfig:           b.Defconfig,
		DefconfigFull:       b.DefconfigFull,
		Status:              b.Status,
		CreatedOn:           p.clock.Now().UTC(),
		Errors:              nonNil(lines.Errors),
		ErrorsCount:         len(lines.Errors),
		Warnings:            nonNil(lines.Warnings),
		WarningsCount:       len(lines.Warnings),
		Mismatches:          nonNil(lines.Mismatches),
		MismatchesCount:     len(lines.Mismatches),
		FileServerResource:  b.FileServerResource,
		FileServerURL:       b.FileServerURL,
		Compiler:            b.Compiler,
		CompilerVersion:     b.CompilerVersion,
		CompilerVersionExt:  b.CompilerVersionExt,
		CompilerVersionFull: b.CompilerVersionFull,
	}

	var prev ErrorLog
	err := p.store.FindOne(ctx, ErrorLogsCollection, prevFilter, &prev)
	switch {
	case err == nil:
		doc.ID = prev.ID
	case errors.Is(err, storage.ErrNotFound):
	default:
		logging.Errorf(ctx, "Error looking up previous error log for %s-%s-%s: %v", b.Job, b.Kernel, b.DefconfigFull, err)
		return status.InternalError
	}

	created, err := p.store.Save(ctx, doc)
	if err != nil {
		logging.Errorf(ctx, "Error saving error log for %s-%s-%s: %v", b.Job, b.Kernel, b.DefconfigFull, err)
		return status.InternalError
	}
	if created {
		return status.Created
	}
	return status.OK
}

// updateBuildDoc sets the error, warning and mismatch counters of the
// build record.
func (p *Parser) updateBuildDoc(ctx context.Context, b *build.Build, jobID primitive.ObjectID, errCount, warnCount, mismCount int) int {
	err := p.store.FindAndUpdate(ctx, build.Collection, buildFilter(b, jobID), bson.M{
		"errors":     errCount,
		"warnings":   warnCount,
		"mismatches": mismCount,
	})
	switch {
	case err == nil:
		return status.OK
	case errors.Is(err, storage.ErrNotFound):
		return status.NotFound
	default:
		logging.Errorf(ctx, "Error updating build %s-%s-%s: %v", b.Job, b.Kernel, b.DefconfigFull, err)
		return status.InternalError
	}
}

// saveSummary folds the frequency tables into the job/kernel summary
// while holding the job lock.
func (p *Parser) saveSummary(ctx context.Context, errCounts, warnCounts, mismCounts Counts, jobID primitive.ObjectID, job, kernel string) (retCode int) {
	if len(errCounts) == 0 && len(warnCounts) == 0 && len(mismCounts) == 0 {
		return status.OK
	}

	key := LockKey(jobID)
	token, err := p.locker.Acquire(ctx, key, p.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			p.metrics.LockTimeout()
		}
		logging.Errorf(ctx, "Cannot acquire lock %s: %v", key, err)
		p.metrics.SummarySaved("failed")
		return status.InternalError
	}
	defer func() {
		// release even if ctx was cancelled meanwhile
		if err := p.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logging.Warnf(ctx, "Error releasing lock %s: %v", key, err)
		}
		if retCode == status.InternalError {
			p.metrics.SummarySaved("failed")
		}
	}()

	filter := bson.M{"job_id": jobID, "job": job, "kernel": kernel}
	if jobID.IsZero() {
		filter["job_id"] = nil
	}

	var prev ErrorSummary
	err = p.store.FindOne(ctx, ErrorsSummaryCollection, filter, &prev)
	switch {
	case err == nil:
		return p.updatePrevSummary(ctx, &prev, errCounts, warnCounts, mismCounts)
	case errors.Is(err, storage.ErrNotFound):
		return p.createSummary(ctx, errCounts, warnCounts, mismCounts, jobID, job, kernel)
	default:
		logging.Errorf(ctx, "Error looking up summary for %s-%s: %v", job, kernel, err)
		return status.InternalError
	}
}

func (p *Parser) updatePrevSummary(ctx context.Context, prev *ErrorSummary, errCounts, warnCounts, mismCounts Counts) int {
	if len(errCounts) > 0 {
		prev.Errors = Merge(prev.Errors, errCounts)
	}
	if len(mismCounts) > 0 {
		prev.Mismatches = Merge(prev.Mismatches, mismCounts)
	}
	if len(warnCounts) > 0 {
		prev.Warnings = Merge(prev.Warnings, warnCounts)
	}
	err := p.store.FindAndUpdate(ctx, ErrorsSummaryCollection, bson.M{"_id": prev.ID}, bson.M{
		"errors":     nonNilCounts(prev.Errors),
		"mismatches": nonNilCounts(prev.Mismatches),
		"warnings":   nonNilCounts(prev.Warnings),
	})
	if err != nil {
		logging.Errorf(ctx, "Error updating summary %s: %v", prev.ID.Hex(), err)
		return status.InternalError
	}
	p.metrics.SummarySaved("updated")
	return status.OK
}

func (p *Parser) createSummary(ctx context.Context, errCounts, warnCounts, mismCounts Counts, jobID primitive.ObjectID, job, kernel string) int {
	summary := &ErrorSummary{
		Version:    SchemaVersion,
		CreatedOn:  p.clock.Now().UTC(),
		JobID:      jobID,
		Job:        job,
		Kernel:     kernel,
		Errors:     Sorted(errCounts),
		Mismatches: Sorted(mismCounts),
		Warnings:   Sorted(warnCounts),
	}
	if _, err := p.store.Save(ctx, summary); err != nil {
		logging.Errorf(ctx, "Error saving summary for %s-%s: %v", job, kernel, err)
		return status.InternalError
	}
	p.metrics.SummarySaved("created")
	return status.Created
}

func nonNilCounts(c []LineCount) []LineCount {
	if c == nil {
		return []LineCount{}
	}
	return c
}

// save persists the lines of one build: error log, build counters and
// summary. Only the summary outcome is returned; earlier failures are
// recorded in errs and do not stop the later steps.
func (p *Parser) save(ctx context.Context, b *build.Build, jobID primitive.ObjectID, lines Lines, errs *status.Errors) int {
	code := p.SaveDefconfigErrors(ctx, b, jobID, lines)
	if code == status.InternalError {
		msg := fmt.Sprintf("Error saving errors log document for '%s-%s-%s' (%s)", b.Job, b.Kernel, b.DefconfigFull, b.Arch)
		logging.Errorf(ctx, "%s", msg)
		errs.Add(code, msg)
	}

	errCounts, warnCounts, mismCounts := CountLines(lines.Errors, lines.Warnings, lines.Mismatches)

	code = p.updateBuildDoc(ctx, b, jobID, len(lines.Errors), len(lines.Warnings), len(lines.Mismatches))
	if code != status.OK {
		msg := fmt.Sprintf("Error updating build errors count for %s-%s %s (%s)", b.Job, b.Kernel, b.Defconfig, b.Arch)
		logging.Errorf(ctx, "%s", msg)
		errs.Add(code, msg)
	}

	code = p.saveSummary(ctx, errCounts, warnCounts, mismCounts, jobID, b.Job, b.Kernel)
	if code == status.InternalError {
		msg := fmt.Sprintf("Error saving errors summary for %s-%s (%s)", b.Job, b.Kernel, jobID.Hex())
		logging.Errorf(ctx, "%s", msg)
		errs.Add(code, msg)
	}
	return code
}
