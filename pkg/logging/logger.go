// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logging

import (
	"context"

	"github.com/facebookincubator/go-belt/beltctx"
	"github.com/facebookincubator/go-belt/pkg/field"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// WithField is an shorthand for beltctx.WithField
func WithField(ctx context.Context, key field.Key, value field.Value) context.Context {
	return beltctx.WithField(ctx, key, value)
}

// WithFields is an shorthand for beltctx.WithFields
func WithFields(ctx context.Context, fields field.Map[any]) context.Context {
	return beltctx.WithFields(ctx, fields)
}

// Debugf is an shorthand for logger.FromCtx(ctx).Debugf
func Debugf(ctx context.Context, format string, args ...any) {
	logger.FromCtx(ctx).Debugf(format, args...)
}

// Infof is an shorthand for logger.FromCtx(ctx).Infof
func Infof(ctx context.Context, format string, args ...any) {
	logger.FromCtx(ctx).Infof(format, args...)
}

// Warnf is an shorthand for logger.FromCtx(ctx).Warnf
func Warnf(ctx context.Context, format string, args ...any) {
	logger.FromCtx(ctx).Warnf(format, args...)
}

// Errorf is an shorthand for logger.FromCtx(ctx).Errorf
func Errorf(ctx context.Context, format string, args ...any) {
	logger.FromCtx(ctx).Errorf(format, args...)
}

// Fatalf is an shorthand for logger.FromCtx(ctx).Fatalf
func Fatalf(ctx context.Context, format string, args ...any) {
	logger.FromCtx(ctx).Fatalf(format, args...)
}
