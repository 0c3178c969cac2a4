// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package build

import (
	"strings"
	"unicode"
)

const invalidNameChars = `/\*?$&()[]{}:;=<>|~'"` + "`"

// ValidName reports whether name is safe to use as a single path
// component for a job, kernel or build directory.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return false
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
