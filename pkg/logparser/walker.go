// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/status"
	"github.com/kernelci/logparser/pkg/storage"
)

// ParseBuildLog parses the log of every build found under
// <base>/<job>/<kernel>. The returned code is the one of the last build
// processed; every failure met along the way is in the returned errors.
func (p *Parser) ParseBuildLog(ctx context.Context, jobID primitive.ObjectID, job, kernel string) (int, *status.Errors) {
	errs := status.NewErrors()
	if jobID.IsZero() {
		logging.Warnf(ctx, "No job ID specified, cannot continue")
		errs.Add(status.InternalError, "No job ID specified, cannot continue")
		return status.InternalError, errs
	}
	ctx = logging.WithField(ctx, "job_id", jobID.Hex())
	return p.traverseDirAndParse(ctx, jobID, job, kernel, errs), errs
}

func (p *Parser) traverseDirAndParse(ctx context.Context, jobID primitive.ObjectID, job, kernel string, errs *status.Errors) int {
	if !build.ValidName(job) || !build.ValidName(kernel) {
		msg := fmt.Sprintf("Wrong job or kernel names: %s - %s", job, kernel)
		logging.Errorf(ctx, "%s", msg)
		errs.Add(status.InternalError, msg)
		return status.InternalError
	}

	kernelDir := filepath.Join(p.basePath, job, kernel)
	if fi, err := os.Stat(kernelDir); err != nil || !fi.IsDir() {
		msg := fmt.Sprintf("Provided values (%s,%s) do not match a directory", job, kernel)
		logging.Errorf(ctx, "%s", msg)
		errs.Add(status.InternalError, msg)
		return status.InternalError
	}

	entries, err := os.ReadDir(kernelDir)
	if err != nil {
		msg := fmt.Sprintf("Cannot list build directories for %s-%s", job, kernel)
		logging.Errorf(ctx, "%s: %v", msg, err)
		errs.Add(status.InternalError, msg)
		return status.InternalError
	}

	ctx = logging.WithField(ctx, "job", job)
	ctx = logging.WithField(ctx, "kernel", kernel)

	code := status.OK
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		buildDir := filepath.Join(kernelDir, entry.Name())
		// follows symlinked build dirs
		if fi, err := os.Stat(buildDir); err != nil || !fi.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs.Addf(status.InternalError, "Parsing of %s-%s interrupted: %v", job, kernel, err)
			return status.InternalError
		}
		b := build.ReadBuildData(buildDir, job, kernel, errs)
		if b == nil {
			logging.Warnf(ctx, "Skipping build dir %s", entry.Name())
			code = status.InternalError
			p.metrics.BuildParsed(code)
			continue
		}
		code = p.parseBuild(ctx, b, jobID, buildDir, errs)
	}
	return code
}

// parseBuild scans and saves one build whose record is already in hand.
func (p *Parser) parseBuild(ctx context.Context, b *build.Build, jobID primitive.ObjectID, buildDir string, errs *status.Errors) int {
	logFile := p.logPath(b, buildDir)
	code, lines, err := p.ParseLog(ctx, b.Job, b.Kernel, b.Defconfig, logFile, buildDir, errs)
	switch {
	case errors.Is(err, ErrNoBuildLog):
		errs.Addf(status.InternalError, "Build dir '%s' does not have a build log", filepath.Base(buildDir))
	case err != nil:
	default:
		// lines are saved even if the side files could not be written
		code = p.save(ctx, b, jobID, lines, errs)
	}
	p.metrics.BuildParsed(code)
	return code
}

func (p *Parser) logPath(b *build.Build, buildDir string) string {
	name := b.BuildLog
	if name == "" {
		name = p.buildLogFile
	}
	return filepath.Join(buildDir, filepath.Base(name))
}

// ParseSingleBuildLog parses the log of the build stored with buildID.
func (p *Parser) ParseSingleBuildLog(ctx context.Context, buildID, jobID primitive.ObjectID) (int, *status.Errors) {
	errs := status.NewErrors()

	var b build.Build
	err := p.store.FindOne(ctx, build.Collection, bson.M{"_id": buildID}, &b)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Errorf(ctx, "Error looking up build %s: %v", buildID.Hex(), err)
		}
		errs.Add(status.InternalError, "No build ID found, cannot parse logs")
		return status.InternalError, errs
	}
	if jobID.IsZero() {
		jobID = b.JobID
	}

	buildDir := b.Dirname
	if buildDir == "" {
		if !build.ValidName(b.Job) || !build.ValidName(b.Kernel) {
			errs.Addf(status.InternalError, "Wrong job or kernel names: %s - %s", b.Job, b.Kernel)
			return status.InternalError, errs
		}
		buildDir = filepath.Join(p.basePath, b.Job, b.Kernel, b.Arch+"-"+b.DefconfigFull)
	}

	ctx = logging.WithField(ctx, "build_id", buildID.Hex())
	return p.parseBuild(ctx, &b, jobID, buildDir, errs), errs
}
