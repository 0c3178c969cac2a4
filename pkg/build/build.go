// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package build describes a single kernel build as stored in the build
// collection, and parses the build.meta file produced by the builders.
package build

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection is the name of the build collection.
const Collection = "build"

// MetaFile is the per-build metadata file name.
const MetaFile = "build.meta"

// Status is the outcome of a build.
type Status string

// Build statuses.
const (
	StatusBuild   Status = "BUILD"
	StatusFail    Status = "FAIL"
	StatusPass    Status = "PASS"
	StatusUnknown Status = "UNKNOWN"
)

// Build is a build document. The parsing pipeline only ever writes the
// Errors, Warnings and Mismatches counters.
type Build struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	JobID         primitive.ObjectID `bson:"job_id,omitempty" json:"job_id,omitempty"`
	Job           string             `bson:"job" json:"job"`
	Kernel        string             `bson:"kernel" json:"kernel"`
	Arch          string             `bson:"arch,omitempty" json:"arch,omitempty"`
	Defconfig     string             `bson:"defconfig" json:"defconfig"`
	DefconfigFull string             `bson:"defconfig_full" json:"defconfig_full"`
	Status        Status             `bson:"status" json:"status"`
	Dirname       string             `bson:"dirname,omitempty" json:"dirname,omitempty"`
	BuildLog      string             `bson:"build_log,omitempty" json:"build_log,omitempty"`

	Errors     int `bson:"errors" json:"errors"`
	Warnings   int `bson:"warnings" json:"warnings"`
	Mismatches int `bson:"mismatches" json:"mismatches"`

	KconfigFragments string `bson:"kconfig_fragments,omitempty" json:"kconfig_fragments,omitempty"`

	FileServerResource string `bson:"file_server_resource,omitempty" json:"file_server_resource,omitempty"`
	FileServerURL      string `bson:"file_server_url,omitempty" json:"file_server_url,omitempty"`

	Compiler            string `bson:"compiler,omitempty" json:"compiler,omitempty"`
	CompilerVersion     string `bson:"compiler_version,omitempty" json:"compiler_version,omitempty"`
	CompilerVersionExt  string `bson:"compiler_version_ext,omitempty" json:"compiler_version_ext,omitempty"`
	CompilerVersionFull string `bson:"compiler_version_full,omitempty" json:"compiler_version_full,omitempty"`

	GitURL       string `bson:"git_url,omitempty" json:"git_url,omitempty"`
	GitBranch    string `bson:"git_branch,omitempty" json:"git_branch,omitempty"`
	GitCommit    string `bson:"git_commit,omitempty" json:"git_commit,omitempty"`
	GitDescribe  string `bson:"git_describe,omitempty" json:"git_describe,omitempty"`
	GitDescribeV string `bson:"git_describe_v,omitempty" json:"git_describe_v,omitempty"`

	KernelVersion string    `bson:"kernel_version,omitempty" json:"kernel_version,omitempty"`
	CreatedOn     time.Time `bson:"created_on" json:"created_on"`
	Version       string    `bson:"version" json:"version"`
}

// Collection implements storage.Document.
func (b *Build) Collection() string { return Collection }

// DocID implements storage.Document.
func (b *Build) DocID() primitive.ObjectID { return b.ID }

// SetDocID implements storage.Document.
func (b *Build) SetDocID(id primitive.ObjectID) { b.ID = id }
