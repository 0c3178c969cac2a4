// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/status"
	"github.com/kernelci/logparser/plugins/locker/inmemory"
	"github.com/kernelci/logparser/plugins/storage/memory"
)

type fixture struct {
	base   string
	mem    *memory.Memory
	parser *Parser
	jobID  primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	base := t.TempDir()
	mem := memory.New()
	return &fixture{
		base:   base,
		mem:    mem,
		parser: New(mem, inmemory.New(5*time.Second), OptionBasePath(base)),
		jobID:  primitive.NewObjectID(),
	}
}

// addBuild creates a build directory with its metadata and log, and the
// matching build record.
func (f *fixture) addBuild(t *testing.T, job, kernel, arch, defconfig, log string) string {
	dir := filepath.Join(f.base, job, kernel, arch+"-"+defconfig)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{"defconfig": "` + defconfig + `", "arch": "` + arch + `", "build_result": "PASS"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, build.MetaFile), []byte(meta), 0o644))
	if log != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultBuildLogFile), []byte(log), 0o644))
	}
	_, err := f.mem.Save(context.Background(), &build.Build{
		JobID: f.jobID, Job: job, Kernel: kernel, Arch: arch,
		Defconfig: defconfig, DefconfigFull: defconfig, Status: build.StatusPass,
	})
	require.NoError(t, err)
	return dir
}

func TestParseBuildLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBuild(t, "k", "v1", "arm", "multi_v7_defconfig", "a.c: error: err1\nb.c: warning: w1\n")
	f.addBuild(t, "k", "v1", "x86", "x86_64_defconfig", "a.c: error: err1\nc.c: error: err2\n")
	require.NoError(t, os.MkdirAll(filepath.Join(f.base, "k", "v1", ".hidden"), 0o755))

	code, errs := f.parser.ParseBuildLog(ctx, f.jobID, "k", "v1")
	require.Equal(t, status.OK, code)
	require.True(t, errs.Empty(), errs.Map())

	sum, err := f.parser.FindSummary(ctx, "k", "v1")
	require.NoError(t, err)
	require.Equal(t, []LineCount{{2, "a.c: error: err1"}, {1, "c.c: error: err2"}}, sum.Errors)
	require.Equal(t, []LineCount{{1, "b.c: warning: w1"}}, sum.Warnings)

	var b build.Build
	require.NoError(t, f.mem.FindOne(ctx, build.Collection, bson.M{"arch": "x86"}, &b))
	require.Equal(t, 2, b.Errors)

	n, err := f.mem.Count(ErrorLogsCollection, bson.M{"job": "k"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestParseBuildLogTwiceDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBuild(t, "k", "v1", "arm", "defconfig", "a.c: error: err1\n")

	for _, want := range []int{status.Created, status.OK} {
		code, errs := f.parser.ParseBuildLog(ctx, f.jobID, "k", "v1")
		require.Equal(t, want, code)
		require.True(t, errs.Empty())
	}
	n, err := f.mem.Count(ErrorLogsCollection, bson.M{})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// summaries accumulate, one record per job/kernel
	sum, err := f.parser.FindSummary(ctx, "k", "v1")
	require.NoError(t, err)
	require.Equal(t, []LineCount{{2, "a.c: error: err1"}}, sum.Errors)
}

func TestParseBuildLogMissingLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := f.addBuild(t, "k", "v1", "arm", "defconfig", "")

	code, errs := f.parser.ParseBuildLog(ctx, f.jobID, "k", "v1")
	require.Equal(t, status.InternalError, code)
	require.Len(t, errs.Get(status.InternalError), 1)

	for _, name := range []string{DefaultErrorsFile, DefaultWarningsFile, DefaultMismatchesFile} {
		require.NoFileExists(t, filepath.Join(dir, name))
	}
	n, err := f.mem.Count(ErrorLogsCollection, bson.M{})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestParseBuildLogBadMetadataSkipsBuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bad := filepath.Join(f.base, "k", "v1", "arm-broken")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, build.MetaFile), []byte("{"), 0o644))
	f.addBuild(t, "k", "v1", "x86", "defconfig", "a.c: error: err1\n")

	code, errs := f.parser.ParseBuildLog(ctx, f.jobID, "k", "v1")
	// x86-defconfig sorts after arm-broken and creates the summary
	require.Equal(t, status.Created, code)
	require.Len(t, errs.Get(status.InternalError), 1)

	sum, err := f.parser.FindSummary(ctx, "k", "v1")
	require.NoError(t, err)
	require.Len(t, sum.Errors, 1)
}

func TestParseBuildLogFollowsSymlinkedBuildDir(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	kernelDir := filepath.Join(f.base, "k", "v1")
	require.NoError(t, os.MkdirAll(kernelDir, 0o755))

	target := filepath.Join(t.TempDir(), "x86-defconfig")
	require.NoError(t, os.MkdirAll(target, 0o755))
	meta := `{"defconfig": "defconfig", "arch": "x86", "build_result": "PASS"}`
	require.NoError(t, os.WriteFile(filepath.Join(target, build.MetaFile), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, DefaultBuildLogFile), []byte("a.c: error: err1\n"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(kernelDir, "x86-defconfig")))
	// plain files next to the build dirs are ignored
	require.NoError(t, os.WriteFile(filepath.Join(kernelDir, "notes.txt"), []byte("x"), 0o644))

	code, _ := f.parser.ParseBuildLog(ctx, f.jobID, "k", "v1")
	require.Equal(t, status.Created, code)

	sum, err := f.parser.FindSummary(ctx, "k", "v1")
	require.NoError(t, err)
	require.Equal(t, []LineCount{{1, "a.c: error: err1"}}, sum.Errors)
}

func TestParseBuildLogRejectsInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	code, errs := f.parser.ParseBuildLog(ctx, primitive.NilObjectID, "k", "v1")
	require.Equal(t, status.InternalError, code)
	require.Equal(t, []string{"No job ID specified, cannot continue"}, errs.Get(status.InternalError))

	code, errs = f.parser.ParseBuildLog(ctx, f.jobID, "../etc", "v1")
	require.Equal(t, status.InternalError, code)
	require.Len(t, errs.Get(status.InternalError), 1)

	code, errs = f.parser.ParseBuildLog(ctx, f.jobID, "k", "missing")
	require.Equal(t, status.InternalError, code)
	require.Equal(t, []string{"Provided values (k,missing) do not match a directory"}, errs.Get(status.InternalError))
}

func TestParseSingleBuildLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBuild(t, "k", "v1", "arm", "defconfig", "a.c: error: err1\nWARNING: Section mismatch in x\n")

	var b build.Build
	require.NoError(t, f.mem.FindOne(ctx, build.Collection, bson.M{"arch": "arm"}, &b))

	code, errs := f.parser.ParseSingleBuildLog(ctx, b.ID, primitive.NilObjectID)
	require.Equal(t, status.Created, code)
	require.True(t, errs.Empty(), errs.Map())

	e, err := f.parser.FindErrorLog(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a.c: error: err1"}, e.Errors)
	require.Equal(t, 1, e.MismatchesCount)
	require.Equal(t, f.jobID, e.JobID)

	require.NoError(t, f.mem.FindOne(ctx, build.Collection, bson.M{"_id": b.ID}, &b))
	require.Equal(t, 1, b.Errors)
	require.Equal(t, 1, b.Mismatches)
}

func TestParseSingleBuildLogUsesDirname(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "elsewhere")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "my.log"), []byte("x: error: y\n"), 0o644))

	b := &build.Build{JobID: f.jobID, Job: "k", Kernel: "v1", Defconfig: "d", DefconfigFull: "d", Dirname: dir, BuildLog: "my.log"}
	_, err := f.mem.Save(ctx, b)
	require.NoError(t, err)

	code, errs := f.parser.ParseSingleBuildLog(ctx, b.ID, f.jobID)
	require.Equal(t, status.Created, code)
	require.True(t, errs.Empty(), errs.Map())
	require.FileExists(t, filepath.Join(dir, DefaultErrorsFile))
}

func TestParseSingleBuildLogUnknownBuild(t *testing.T) {
	f := newFixture(t)
	code, errs := f.parser.ParseSingleBuildLog(context.Background(), primitive.NewObjectID(), f.jobID)
	require.Equal(t, status.InternalError, code)
	require.Equal(t, []string{"No build ID found, cannot parse logs"}, errs.Get(status.InternalError))
}
