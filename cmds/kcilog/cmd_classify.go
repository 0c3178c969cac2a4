// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kernelci/logparser/pkg/config"
	"github.com/kernelci/logparser/pkg/logparser"
	"github.com/kernelci/logparser/pkg/patterns"
)

func newClassifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Print the frequency table of a build log without storing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.config)
			if err != nil {
				return err
			}
			cl, err := patterns.New(cfg.Patterns)
			if err != nil {
				return err
			}
			in, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()

			lines, err := logparser.ScanLines(in, cl)
			if err != nil {
				return fmt.Errorf("could not read log: %w", err)
			}
			errs, warns, mism := logparser.CountLines(lines.Errors, lines.Warnings, lines.Mismatches)
			return logparser.WriteSummary(cmd.OutOrStdout(), &logparser.ErrorSummary{
				Errors:     logparser.Sorted(errs),
				Warnings:   logparser.Sorted(warns),
				Mismatches: logparser.Sorted(mism),
			})
		},
	}
}
