// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package server

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/logparser"
)

// indexes returns the indexes backing the lookups done while parsing.
func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		build.Collection: {
			{Keys: bson.D{{Key: "job", Value: 1}, {Key: "kernel", Value: 1}}},
		},
		logparser.ErrorLogsCollection: {
			{Keys: bson.D{{Key: "build_id", Value: 1}}},
		},
		logparser.ErrorsSummaryCollection: {
			{Keys: bson.D{{Key: "job", Value: 1}, {Key: "kernel", Value: 1}}},
		},
	}
}
