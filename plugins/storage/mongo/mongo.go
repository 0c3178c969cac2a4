// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kernelci/logparser/pkg/storage"
)

var (
	DefaultDB                = "kernel-ci"
	DefaultConnectionTimeout = 10 * time.Second
)

// Storage is a storage.Store backed by a MongoDB database.
type Storage struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and returns a Storage on database dbName.
func Connect(ctx context.Context, uri, dbName string) (*Storage, error) {
	client, err := mongo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, DefaultConnectionTimeout)
	defer cancel()

	if err := client.Connect(cctx); err != nil {
		return nil, err
	}

	// check that the server is alive
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("Err while pinging mongo server: %w", err)
	}

	if dbName == "" {
		dbName = DefaultDB
	}
	return &Storage{client: client, db: client.Database(dbName)}, nil
}

// Client returns the underlying client, shared with the database locker.
func (s *Storage) Client() *mongo.Client { return s.client }

// Database returns the database handle.
func (s *Storage) Database() *mongo.Database { return s.db }

func (s *Storage) FindOne(ctx context.Context, collection string, filter bson.M, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return nil
}

func (s *Storage) FindAndUpdate(ctx context.Context, collection string, filter bson.M, fields bson.M) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, doc storage.Document) (bool, error) {
	coll := s.db.Collection(doc.Collection())
	if doc.DocID().IsZero() {
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return false, fmt.Errorf("%w: %v", storage.ErrInsert, err)
		}
		id, ok := res.InsertedID.(primitive.ObjectID)
		if !ok {
			return false, fmt.Errorf("%w: unexpected id type %T", storage.ErrInsert, res.InsertedID)
		}
		doc.SetDocID(id)
		return true, nil
	}
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.DocID()}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Storage) Delete(ctx context.Context, collection string, filter bson.M) error {
	if _, err := s.db.Collection(collection).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	return nil
}

// EnsureIndexes creates the lookup indexes used by the pipeline.
func (s *Storage) EnsureIndexes(ctx context.Context, models map[string][]mongo.IndexModel) error {
	for coll, idx := range models {
		if len(idx) == 0 {
			continue
		}
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("could not create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ storage.Store = (*Storage)(nil)
