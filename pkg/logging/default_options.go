// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logging

import (
	"context"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus/formatter"
	sirupsen "github.com/sirupsen/logrus"
)

// TimestampFormat is the layout used for every log line.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// WithBelt returns a context carrying a logrus backed logger writing
// compact text to stderr.
func WithBelt(ctx context.Context, logLevel logger.Level) context.Context {
	return WithBeltWriter(ctx, os.Stderr, logLevel)
}

// WithBeltWriter is WithBelt with the output sent to w.
func WithBeltWriter(ctx context.Context, w io.Writer, logLevel logger.Level) context.Context {
	l := logrus.DefaultLogrusLogger()
	l.Out = w
	// filtering is done by the belt logger
	l.Level = sirupsen.TraceLevel
	l.Formatter = &formatter.CompactText{
		TimestampFormat: TimestampFormat,
	}
	return logger.CtxWithLogger(ctx, logrus.New(l).WithLevel(logLevel))
}
