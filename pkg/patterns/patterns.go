// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package patterns classifies individual build log lines into error,
// warning or section-mismatch categories.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Category is the classification of a single log line.
type Category int

// Categories, in evaluation order.
const (
	None Category = iota
	Error
	Warning
	Mismatch
)

func (c Category) String() string {
	switch c {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Mismatch:
		return "mismatch"
	}
	return "none"
}

// Set is the externally supplied pattern configuration. Each entry is a
// Go regular expression; use the (?i) flag for case-insensitive matching.
type Set struct {
	Errors     []string `yaml:"errors"`
	Warning    string   `yaml:"warning"`
	Mismatch   string   `yaml:"mismatch"`
	NoWarnings []string `yaml:"no_warnings"`
}

// DefaultSet returns the pattern set used for kernel builds.
func DefaultSet() Set {
	return Set{
		Errors: []string{
			`(?i)error:`,
			`^ERROR`,
			`(?i)undefined reference`,
			`(?i)gcc doesn't support`,
		},
		Warning:  `(?i)warning:`,
		Mismatch: `(?i)Section mismatch`,
		NoWarnings: []string{
			`(?i)TODO: return_address should use unwind tables`,
			`(?i)NPTL on non MMU needs fixing`,
			`(?i)Sparse checking disabled for this file`,
		},
	}
}

// Classifier is an immutable compiled pattern set. It is safe for
// concurrent use.
type Classifier struct {
	errors   []*regexp.Regexp
	warning  *regexp.Regexp
	mismatch *regexp.Regexp
	exclude  []*regexp.Regexp
}

// New compiles s.
func New(s Set) (*Classifier, error) {
	c := &Classifier{}
	for _, p := range s.Errors {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid error pattern %q: %w", p, err)
		}
		c.errors = append(c.errors, re)
	}
	var err error
	if c.warning, err = regexp.Compile(s.Warning); err != nil {
		return nil, fmt.Errorf("invalid warning pattern %q: %w", s.Warning, err)
	}
	if c.mismatch, err = regexp.Compile(s.Mismatch); err != nil {
		return nil, fmt.Errorf("invalid mismatch pattern %q: %w", s.Mismatch, err)
	}
	// The mismatch pattern also suppresses warnings.
	c.exclude = append(c.exclude, c.mismatch)
	for _, p := range s.NoWarnings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid no-warning pattern %q: %w", p, err)
		}
		c.exclude = append(c.exclude, re)
	}
	return c, nil
}

// MustNew is like New but panics on an invalid set.
func MustNew(s Set) *Classifier {
	c, err := New(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Default is the classifier compiled from DefaultSet.
var Default = MustNew(DefaultSet())

// Classify returns the category of line. Error beats warning, warning beats
// mismatch. A line matching any exclusion pattern is never a warning.
func (c *Classifier) Classify(line string) Category {
	for _, re := range c.errors {
		if re.MatchString(line) {
			return Error
		}
	}
	if c.warning.MatchString(line) && !c.excluded(line) {
		return Warning
	}
	if c.mismatch.MatchString(line) {
		return Mismatch
	}
	return None
}

func (c *Classifier) excluded(line string) bool {
	for _, re := range c.exclude {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// CleanLine trims surrounding whitespace and a single leading "../".
func CleanLine(line string) string {
	return strings.TrimPrefix(strings.TrimSpace(line), "../")
}
