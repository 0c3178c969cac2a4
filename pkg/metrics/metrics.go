// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package metrics exports prometheus counters for the log parsing
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logparser"

// Metrics groups the pipeline collectors.
type Metrics struct {
	buildsParsed  *prometheus.CounterVec
	lines         *prometheus.CounterVec
	summarySaves  *prometheus.CounterVec
	lockTimeouts  prometheus.Counter
	parseDuration prometheus.Histogram
	tasks         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		buildsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_parsed_total",
			Help:      "Builds whose log went through the pipeline, by resulting status code.",
		}, []string{"code"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Extracted log lines by category.",
		}, []string{"category"}),
		summarySaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_saves_total",
			Help:      "Error summary writes by result.",
		}, []string{"result"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Summary lock acquisitions that timed out.",
		}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent scanning a single build log.",
			Buckets:   prometheus.DefBuckets,
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Executed tasks by name and outcome.",
		}, []string{"task", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.buildsParsed, m.lines, m.summarySaves, m.lockTimeouts, m.parseDuration, m.tasks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BuildParsed counts one processed build.
func (m *Metrics) BuildParsed(code int) {
	if m == nil {
		return
	}
	m.buildsParsed.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Lines adds n extracted lines of category.
func (m *Metrics) Lines(category string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.lines.WithLabelValues(category).Add(float64(n))
}

// SummarySaved counts a summary write; result is created, updated or failed.
func (m *Metrics) SummarySaved(result string) {
	if m == nil {
		return
	}
	m.summarySaves.WithLabelValues(result).Inc()
}

// LockTimeout counts a failed lock acquisition.
func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// ParseDuration observes the duration of a log scan.
func (m *Metrics) ParseDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.parseDuration.Observe(d.Seconds())
}

// Task counts an executed task.
func (m *Metrics) Task(name, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(name, outcome).Inc()
}
