// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package storage defines the document store used by the parsing
// pipeline. Engines live under plugins/storage.
package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrInsert         = errors.New("error inserting into the db")
	ErrQuery          = errors.New("error querying from the database")
	ErrUpdate         = errors.New("error updating the database")
	ErrConstructQuery = errors.New("error forming db query")
)

// Document is a record that knows its collection and identifier.
type Document interface {
	Collection() string
	DocID() primitive.ObjectID
	SetDocID(primitive.ObjectID)
}

// Store is the narrow set of document operations the pipeline needs.
// Filters are equality matches; a nil filter value matches a missing or
// null field.
type Store interface {
	// FindOne decodes the first document matching filter into out, or
	// returns ErrNotFound.
	FindOne(ctx context.Context, collection string, filter bson.M, out any) error
	// FindAndUpdate sets fields on the first document matching filter, or
	// returns ErrNotFound.
	FindAndUpdate(ctx context.Context, collection string, filter bson.M, fields bson.M) error
	// Save inserts doc when it has no identifier, assigning one, and
	// replaces it otherwise. created is true when a new document was
	// written.
	Save(ctx context.Context, doc Document) (created bool, err error)
	// Delete removes every document matching filter.
	Delete(ctx context.Context, collection string, filter bson.M) error
	Close(ctx context.Context) error
}
