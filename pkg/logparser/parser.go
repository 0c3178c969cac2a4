// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package logparser extracts error, warning and section mismatch lines
// from kernel build logs and folds them into per build error logs and
// per job/kernel error summaries.
package logparser

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/metrics"
	"github.com/kernelci/logparser/pkg/patterns"
	"github.com/kernelci/logparser/pkg/storage"
)

// Defaults used when no option overrides them.
const (
	DefaultBasePath       = "/var/www/images/kernel-ci"
	DefaultBuildLogFile   = "build.log"
	DefaultErrorsFile     = "errors"
	DefaultWarningsFile   = "warnings"
	DefaultMismatchesFile = "mismatches"
	DefaultSummaryFile    = "build-logs-summary.txt"
	DefaultLockWait       = 5 * time.Second
)

// SideFiles names the files written next to a build log with the
// extracted lines.
type SideFiles struct {
	Errors     string
	Warnings   string
	Mismatches string
}

// Parser runs the parsing pipeline. It is safe for concurrent use.
type Parser struct {
	store      storage.Store
	locker     lock.Locker
	classifier *patterns.Classifier
	clock      clock.Clock
	metrics    *metrics.Metrics

	basePath     string
	buildLogFile string
	sideFiles    SideFiles
	summaryFile  string
	lockWait     time.Duration
}

// Option is used to change Parser configuration.
type Option func(p *Parser)

// OptionClock sets the clock used to stamp created records.
func OptionClock(c clock.Clock) Option {
	return func(p *Parser) { p.clock = c }
}

// OptionClassifier replaces the default pattern classifier.
func OptionClassifier(c *patterns.Classifier) Option {
	return func(p *Parser) { p.classifier = c }
}

// OptionMetrics enables metric collection.
func OptionMetrics(m *metrics.Metrics) Option {
	return func(p *Parser) { p.metrics = m }
}

// OptionBasePath sets the root of the <job>/<kernel>/<build> tree.
func OptionBasePath(path string) Option {
	return func(p *Parser) { p.basePath = path }
}

// OptionBuildLogFile sets the default build log file name.
func OptionBuildLogFile(name string) Option {
	return func(p *Parser) { p.buildLogFile = name }
}

// OptionSideFiles sets the names of the extracted-lines files.
func OptionSideFiles(f SideFiles) Option {
	return func(p *Parser) { p.sideFiles = f }
}

// OptionSummaryFile sets the name of the per kernel logs summary file.
func OptionSummaryFile(name string) Option {
	return func(p *Parser) { p.summaryFile = name }
}

// OptionLockWait bounds the wait for the summary lock.
func OptionLockWait(d time.Duration) Option {
	return func(p *Parser) { p.lockWait = d }
}

// New returns a parser persisting into store and serializing summary
// updates with locker.
func New(store storage.Store, locker lock.Locker, opts ...Option) *Parser {
	p := &Parser{
		store:        store,
		locker:       locker,
		classifier:   patterns.Default,
		clock:        clock.New(),
		basePath:     DefaultBasePath,
		buildLogFile: DefaultBuildLogFile,
		sideFiles: SideFiles{
			Errors:     DefaultErrorsFile,
			Warnings:   DefaultWarningsFile,
			Mismatches: DefaultMismatchesFile,
		},
		summaryFile: DefaultSummaryFile,
		lockWait:    DefaultLockWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
