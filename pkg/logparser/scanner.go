// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/patterns"
	"github.com/kernelci/logparser/pkg/status"
)

// ErrNoBuildLog is returned by ParseLog when the log file does not exist.
var ErrNoBuildLog = errors.New("build log not found")

// ScanLines classifies every line read from r and returns the cleaned
// lines by category, in log order. Lines are not length bounded.
func ScanLines(r io.Reader, c *patterns.Classifier) (Lines, error) {
	var lines Lines
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			switch c.Classify(line) {
			case patterns.Error:
				lines.Errors = append(lines.Errors, patterns.CleanLine(line))
			case patterns.Warning:
				lines.Warnings = append(lines.Warnings, patterns.CleanLine(line))
			case patterns.Mismatch:
				lines.Mismatches = append(lines.Mismatches, patterns.CleanLine(line))
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}

// ParseLog scans logFile and writes the extracted lines next to it in
// buildDir. A missing log yields 500 and ErrNoBuildLog with nothing
// recorded in errs. A read failure yields 500 and no lines. A failure
// writing the side files yields 500 but the lines are still returned.
func (p *Parser) ParseLog(ctx context.Context, job, kernel, defconfig, logFile, buildDir string, errs *status.Errors) (int, Lines, error) {
	fi, err := os.Stat(logFile)
	if err != nil || fi.IsDir() {
		logging.Warnf(ctx, "Build dir '%s' does not have a build log", defconfig)
		return status.InternalError, Lines{}, ErrNoBuildLog
	}

	logging.Infof(ctx, "Parsing build log file '%s'", logFile)
	start := p.clock.Now()
	lines, err := p.readLog(logFile)
	p.metrics.ParseDuration(p.clock.Since(start))
	if err != nil {
		msg := fmt.Sprintf("Cannot read build log file for %s-%s-%s", job, kernel, defconfig)
		logging.Errorf(ctx, "%s: %v", msg, err)
		errs.Add(status.InternalError, msg)
		return status.InternalError, Lines{}, err
	}
	p.metrics.Lines(patterns.Error.String(), len(lines.Errors))
	p.metrics.Lines(patterns.Warning.String(), len(lines.Warnings))
	p.metrics.Lines(patterns.Mismatch.String(), len(lines.Mismatches))

	code := status.OK
	for _, side := range []struct {
		name  string
		lines []string
	}{
		{p.sideFiles.Errors, lines.Errors},
		{p.sideFiles.Warnings, lines.Warnings},
		{p.sideFiles.Mismatches, lines.Mismatches},
	} {
		if len(side.lines) == 0 {
			continue
		}
		if err := writeLines(filepath.Join(buildDir, side.name), side.lines); err != nil {
			msg := fmt.Sprintf("Error writing to %s file for %s-%s-%s", side.name, job, kernel, defconfig)
			logging.Errorf(ctx, "%s: %v", msg, err)
			errs.Add(status.InternalError, msg)
			code = status.InternalError
		}
	}
	return code, lines, nil
}

func (p *Parser) readLog(path string) (Lines, error) {
	f, err := os.Open(path)
	if err != nil {
		return Lines{}, err
	}
	defer f.Close()
	return ScanLines(f, p.classifier)
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
