// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"github.com/spf13/cobra"
)

func newSummaryCmd(g *globalFlags) *cobra.Command {
	var job, kernel string
	var show bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Write the logs summary file of a job/kernel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer e.Close(ctx)

			if show {
				return printSummary(ctx, cmd.OutOrStdout(), e.parser, job, kernel)
			}
			code, errs := e.parser.CreateBuildLogsSummary(ctx, job, kernel)
			return report(cmd.ErrOrStderr(), code, errs)
		},
	}
	f := cmd.Flags()
	f.StringVar(&job, "job", "", "Job name (required)")
	f.StringVar(&kernel, "kernel", "", "Kernel name (required)")
	f.BoolVar(&show, "print", false, "Print the summary instead of writing the file")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("kernel")
	return cmd
}
