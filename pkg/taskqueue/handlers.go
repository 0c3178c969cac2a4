// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package taskqueue

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/status"
)

// Parser is the part of logparser.Parser the task handlers drive.
type Parser interface {
	ParseBuildLog(ctx context.Context, jobID primitive.ObjectID, job, kernel string) (int, *status.Errors)
	ParseSingleBuildLog(ctx context.Context, buildID, jobID primitive.ObjectID) (int, *status.Errors)
	CreateBuildLogsSummary(ctx context.Context, job, kernel string) (int, *status.Errors)
}

// Registrar is anything handlers can be registered on.
type Registrar interface {
	Handle(name Name, h Handler)
}

// RegisterParserTasks wires the log parsing tasks to p. A successful parse
// is followed by the creation of the logs summary of the same kernel.
func RegisterParserTasks(r Registrar, p Parser) {
	r.Handle(ParseBuildLog, func(ctx context.Context, t Task) (Result, error) {
		jobID, err := objectID(t.JobID)
		if err != nil {
			return Result{}, fmt.Errorf("invalid job id: %w", err)
		}
		code, errs := p.ParseBuildLog(ctx, jobID, t.Job, t.Kernel)
		res := Result{Code: code, Errors: errs.Map()}
		if success(code) {
			res.Next = []Task{{Name: CreateLogsSummary, Job: t.Job, Kernel: t.Kernel}}
		}
		return res, nil
	})
	r.Handle(ParseSingleBuildLog, func(ctx context.Context, t Task) (Result, error) {
		buildID, err := objectID(t.BuildID)
		if err != nil {
			return Result{}, fmt.Errorf("invalid build id: %w", err)
		}
		jobID, err := objectID(t.JobID)
		if err != nil {
			return Result{}, fmt.Errorf("invalid job id: %w", err)
		}
		code, errs := p.ParseSingleBuildLog(ctx, buildID, jobID)
		res := Result{Code: code, Errors: errs.Map()}
		if success(code) && t.Job != "" && t.Kernel != "" {
			res.Next = []Task{{Name: CreateLogsSummary, Job: t.Job, Kernel: t.Kernel}}
		}
		return res, nil
	})
	r.Handle(CreateLogsSummary, func(ctx context.Context, t Task) (Result, error) {
		code, errs := p.CreateBuildLogsSummary(ctx, t.Job, t.Kernel)
		return Result{Code: code, Errors: errs.Map()}, nil
	})
}

func success(code int) bool {
	return code == status.OK || code == status.Created
}

// objectID parses a hex identifier; empty means unset.
func objectID(hex string) (primitive.ObjectID, error) {
	if hex == "" {
		return primitive.NilObjectID, nil
	}
	return primitive.ObjectIDFromHex(hex)
}
