// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/status"
)

// report prints the outcome of an operation and turns failures into an
// error for the exit status.
func report(w io.Writer, code int, errs *status.Errors) error {
	fmt.Fprintf(w, "status: %d\n", code)
	for _, c := range errs.Codes() {
		for _, msg := range errs.Get(c) {
			fmt.Fprintf(w, "  %d: %s\n", c, msg)
		}
	}
	if code >= status.InternalError {
		return fmt.Errorf("failed with status %d", code)
	}
	return nil
}

func optionalID(name, hex string) (primitive.ObjectID, error) {
	if hex == "" {
		return primitive.NilObjectID, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return id, fmt.Errorf("invalid %s %q: %w", name, hex, err)
	}
	return id, nil
}

func newParseCmd(g *globalFlags) *cobra.Command {
	var job, kernel, jobID string
	var show bool
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse every build log of a job/kernel and update the stored results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := optionalID("job id", jobID)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer e.Close(ctx)

			code, errs := e.parser.ParseBuildLog(ctx, id, job, kernel)
			if err := report(cmd.ErrOrStderr(), code, errs); err != nil {
				return err
			}
			if show {
				return printSummary(ctx, cmd.OutOrStdout(), e.parser, job, kernel)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&job, "job", "", "Job name (required)")
	f.StringVar(&kernel, "kernel", "", "Kernel name (required)")
	f.StringVar(&jobID, "job-id", "", "Job document ID (required)")
	f.BoolVar(&show, "print", false, "Print the resulting summary")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("kernel")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}

func newParseBuildCmd(g *globalFlags) *cobra.Command {
	var buildID, jobID string
	cmd := &cobra.Command{
		Use:   "parse-build",
		Short: "Parse the log of one stored build",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bid, err := primitive.ObjectIDFromHex(buildID)
			if err != nil {
				return fmt.Errorf("invalid build id %q: %w", buildID, err)
			}
			jid, err := optionalID("job id", jobID)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer e.Close(ctx)

			code, errs := e.parser.ParseSingleBuildLog(ctx, bid, jid)
			return report(cmd.ErrOrStderr(), code, errs)
		},
	}
	f := cmd.Flags()
	f.StringVar(&buildID, "build-id", "", "Build document ID (required)")
	f.StringVar(&jobID, "job-id", "", "Job document ID, defaults to the one of the build")
	_ = cmd.MarkFlagRequired("build-id")
	return cmd
}
