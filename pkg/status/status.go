// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package status holds the HTTP-style status codes used by the parsing
// pipeline and the accumulator that collects failures keyed by code.
package status

import (
	"fmt"
	"sort"
	"sync"
)

// Codes returned by the pipeline operations.
const (
	OK                  = 200
	Created             = 201
	Accepted            = 202
	NotFound            = 404
	UnprocessableEntity = 422
	InternalError       = 500
)

// Errors accumulates messages grouped by status code. The zero value is
// ready to use and safe for concurrent use.
type Errors struct {
	mu     sync.Mutex
	byCode map[int][]string
}

// NewErrors returns an empty accumulator.
func NewErrors() *Errors {
	return &Errors{}
}

// Add appends a message under code.
func (e *Errors) Add(code int, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byCode == nil {
		e.byCode = make(map[int][]string)
	}
	e.byCode[code] = append(e.byCode[code], msg)
}

// Addf is Add with formatting.
func (e *Errors) Addf(code int, format string, args ...any) {
	e.Add(code, fmt.Sprintf(format, args...))
}

// Merge appends all entries of other.
func (e *Errors) Merge(other *Errors) {
	if other == nil || other == e {
		return
	}
	for code, msgs := range other.Map() {
		for _, m := range msgs {
			e.Add(code, m)
		}
	}
}

// Get returns a copy of the messages recorded for code.
func (e *Errors) Get(code int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.byCode[code]...)
}

// Empty reports whether nothing was recorded.
func (e *Errors) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byCode) == 0
}

// Codes returns the recorded codes in ascending order.
func (e *Errors) Codes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	codes := make([]int, 0, len(e.byCode))
	for c := range e.byCode {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// Map returns a deep copy of the accumulated messages.
func (e *Errors) Map() map[int][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := make(map[int][]string, len(e.byCode))
	for c, msgs := range e.byCode {
		m[c] = append([]string(nil), msgs...)
	}
	return m
}
