// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/storage"
)

// Memory implements storage.Store in memory. Documents are kept in their
// BSON encoding so reads see exactly what a database round trip would.
type Memory struct {
	lock        sync.Mutex
	collections map[string][]bson.Raw
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{collections: make(map[string][]bson.Raw)}
}

func (m *Memory) FindOne(_ context.Context, collection string, filter bson.M, out any) error {
	f, err := bson.Marshal(filter)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	idx, err := m.find(collection, f)
	if err != nil {
		return err
	}
	if err := bson.Unmarshal(m.collections[collection][idx], out); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return nil
}

func (m *Memory) FindAndUpdate(_ context.Context, collection string, filter bson.M, fields bson.M) error {
	f, err := bson.Marshal(filter)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	idx, err := m.find(collection, f)
	if err != nil {
		return err
	}
	var doc bson.D
	if err := bson.Unmarshal(m.collections[collection][idx], &doc); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	for k, v := range fields {
		replaced := false
		for i := range doc {
			if doc[i].Key == k {
				doc[i].Value = v
				replaced = true
				break
			}
		}
		if !replaced {
			doc = append(doc, bson.E{Key: k, Value: v})
		}
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	m.collections[collection][idx] = raw
	return nil
}

func (m *Memory) Save(_ context.Context, doc storage.Document) (bool, error) {
	if doc.DocID().IsZero() {
		doc.SetDocID(primitive.NewObjectID())
		raw, err := bson.Marshal(doc)
		if err != nil {
			return false, fmt.Errorf("%w: %v", storage.ErrInsert, err)
		}
		m.lock.Lock()
		defer m.lock.Unlock()
		m.collections[doc.Collection()] = append(m.collections[doc.Collection()], raw)
		return true, nil
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrUpdate, err)
	}
	f, err := bson.Marshal(bson.M{"_id": doc.DocID()})
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	idx, err := m.find(doc.Collection(), f)
	if err == storage.ErrNotFound {
		m.collections[doc.Collection()] = append(m.collections[doc.Collection()], raw)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	m.collections[doc.Collection()][idx] = raw
	return false, nil
}

func (m *Memory) Delete(_ context.Context, collection string, filter bson.M) error {
	f, err := bson.Marshal(filter)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	var kept []bson.Raw
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, f)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, doc)
		}
	}
	m.collections[collection] = kept
	return nil
}

// Count returns the number of documents in collection matching filter.
func (m *Memory) Count(collection string, filter bson.M) (int, error) {
	f, err := bson.Marshal(filter)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// find must be called with the lock held.
func (m *Memory) find(collection string, filter bson.Raw) (int, error) {
	for i, doc := range m.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, storage.ErrNotFound
}

func matches(doc, filter bson.Raw) (bool, error) {
	elems, err := filter.Elements()
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrConstructQuery, err)
	}
	for _, e := range elems {
		want := e.Value()
		got, err := doc.LookupErr(strings.Split(e.Key(), ".")...)
		if want.Type == bsontype.Null {
			if err == nil && got.Type != bsontype.Null {
				return false, nil
			}
			continue
		}
		if err != nil || !equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func equal(a, b bson.RawValue) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	return a.Equal(b)
}

func number(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	}
	return 0, false
}

var _ storage.Store = (*Memory)(nil)
