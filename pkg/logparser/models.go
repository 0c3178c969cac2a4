// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
)

// Collection names.
const (
	ErrorLogsCollection     = "error_logs"
	ErrorsSummaryCollection = "errors_summary"
)

// SchemaVersion is written on every record created by the parser.
const SchemaVersion = "1.0"

// ErrorLog holds the lines extracted from one build log.
type ErrorLog struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"_id,omitempty"`
	Version       string              `bson:"version" json:"version"`
	JobID         primitive.ObjectID  `bson:"job_id,omitempty" json:"job_id,omitempty"`
	BuildID       *primitive.ObjectID `bson:"build_id" json:"build_id"`
	Job           string              `bson:"job" json:"job"`
	Kernel        string              `bson:"kernel" json:"kernel"`
	Arch          string              `bson:"arch,omitempty" json:"arch,omitempty"`
	Defconfig     string              `bson:"defconfig" json:"defconfig"`
	DefconfigFull string              `bson:"defconfig_full" json:"defconfig_full"`
	Status        build.Status        `bson:"status" json:"status"`
	CreatedOn     time.Time           `bson:"created_on" json:"created_on"`

	Errors          []string `bson:"errors" json:"errors"`
	ErrorsCount     int      `bson:"errors_count" json:"errors_count"`
	Warnings        []string `bson:"warnings" json:"warnings"`
	WarningsCount   int      `bson:"warnings_count" json:"warnings_count"`
	Mismatches      []string `bson:"mismatches" json:"mismatches"`
	MismatchesCount int      `bson:"mismatches_count" json:"mismatches_count"`

	FileServerResource string `bson:"file_server_resource,omitempty" json:"file_server_resource,omitempty"`
	FileServerURL      string `bson:"file_server_url,omitempty" json:"file_server_url,omitempty"`

	Compiler            string `bson:"compiler,omitempty" json:"compiler,omitempty"`
	CompilerVersion     string `bson:"compiler_version,omitempty" json:"compiler_version,omitempty"`
	CompilerVersionExt  string `bson:"compiler_version_ext,omitempty" json:"compiler_version_ext,omitempty"`
	CompilerVersionFull string `bson:"compiler_version_full,omitempty" json:"compiler_version_full,omitempty"`
}

func (e *ErrorLog) Collection() string             { return ErrorLogsCollection }
func (e *ErrorLog) DocID() primitive.ObjectID      { return e.ID }
func (e *ErrorLog) SetDocID(id primitive.ObjectID) { e.ID = id }

// ErrorSummary is the cumulative frequency table of a job/kernel pair.
type ErrorSummary struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Version    string             `bson:"version" json:"version"`
	CreatedOn  time.Time          `bson:"created_on" json:"created_on"`
	JobID      primitive.ObjectID `bson:"job_id,omitempty" json:"job_id,omitempty"`
	Job        string             `bson:"job" json:"job"`
	Kernel     string             `bson:"kernel" json:"kernel"`
	Errors     []LineCount        `bson:"errors" json:"errors"`
	Mismatches []LineCount        `bson:"mismatches" json:"mismatches"`
	Warnings   []LineCount        `bson:"warnings" json:"warnings"`
}

func (s *ErrorSummary) Collection() string             { return ErrorsSummaryCollection }
func (s *ErrorSummary) DocID() primitive.ObjectID      { return s.ID }
func (s *ErrorSummary) SetDocID(id primitive.ObjectID) { s.ID = id }

// Empty reports whether the summary holds no line at all.
func (s *ErrorSummary) Empty() bool {
	return len(s.Errors) == 0 && len(s.Warnings) == 0 && len(s.Mismatches) == 0
}

// Lines holds the line lists extracted from one log.
type Lines struct {
	Errors     []string
	Warnings   []string
	Mismatches []string
}

// Empty reports whether no line was extracted.
func (l Lines) Empty() bool {
	return len(l.Errors) == 0 && len(l.Warnings) == 0 && len(l.Mismatches) == 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
