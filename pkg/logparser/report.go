// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/status"
	"github.com/kernelci/logparser/pkg/storage"
)

// WriteSummary writes one "%4d line" entry per pair, errors first, then
// warnings, then mismatches.
func WriteSummary(w io.Writer, s *ErrorSummary) error {
	for _, table := range [][]LineCount{s.Errors, s.Warnings, s.Mismatches} {
		for _, lc := range table {
			if _, err := fmt.Fprintf(w, "%4d %s\n", lc.Count, lc.Line); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindSummary returns the error summary of job/kernel.
func (p *Parser) FindSummary(ctx context.Context, job, kernel string) (*ErrorSummary, error) {
	var s ErrorSummary
	if err := p.store.FindOne(ctx, ErrorsSummaryCollection, bson.M{"job": job, "kernel": kernel}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindErrorLog returns the error log stored for a build.
func (p *Parser) FindErrorLog(ctx context.Context, buildID primitive.ObjectID) (*ErrorLog, error) {
	var e ErrorLog
	if err := p.store.FindOne(ctx, ErrorLogsCollection, bson.M{"build_id": buildID}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateBuildLogsSummary writes the job/kernel error summary as text into
// <base>/<job>/<kernel>. Nothing is written when there is no summary or
// it is empty.
func (p *Parser) CreateBuildLogsSummary(ctx context.Context, job, kernel string) (int, *status.Errors) {
	errs := status.NewErrors()
	if !build.ValidName(job) || !build.ValidName(kernel) {
		errs.Addf(status.InternalError, "Wrong job or kernel names: %s - %s", job, kernel)
		return status.InternalError, errs
	}

	s, err := p.FindSummary(ctx, job, kernel)
	if errors.Is(err, storage.ErrNotFound) {
		logging.Infof(ctx, "No build logs summary found for %s-%s", job, kernel)
		return status.OK, errs
	}
	if err != nil {
		msg := fmt.Sprintf("Error looking up build logs summary for %s-%s", job, kernel)
		logging.Errorf(ctx, "%s: %v", msg, err)
		errs.Add(status.InternalError, msg)
		return status.InternalError, errs
	}
	if s.Empty() {
		logging.Infof(ctx, "Build logs summary for %s-%s is empty", job, kernel)
		return status.OK, errs
	}

	path := filepath.Join(p.basePath, job, kernel, p.summaryFile)
	if err := p.writeSummaryFile(path, s); err != nil {
		msg := fmt.Sprintf("Error writing build logs summary file for %s-%s", job, kernel)
		logging.Errorf(ctx, "%s: %v", msg, err)
		errs.Add(status.InternalError, msg)
		return status.InternalError, errs
	}
	logging.Infof(ctx, "Build logs summary written to %s", path)
	return status.OK, errs
}

func (p *Parser) writeSummaryFile(path string, s *ErrorSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSummary(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
