// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// kcilog parses kernel build logs from the command line.
//
// Usage:
//
//	kcilog classify [file]
//	kcilog parse --job=<job> --kernel=<kernel> --job-id=<id> [--print]
//	kcilog parse-build --build-id=<id> [--job-id=<id>]
//	kcilog summary --job=<job> --kernel=<kernel> [--print]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
