// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package logparser

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Counts maps a line text to the number of times it was seen.
type Counts map[string]int

// LineCount is one entry of a frequency table. It is stored as the two
// element array [count, line].
type LineCount struct {
	Count int
	Line  string
}

func (lc LineCount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(bson.A{int64(lc.Count), lc.Line})
}

func (lc *LineCount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	arr, ok := bson.RawValue{Type: t, Value: data}.ArrayOK()
	if !ok {
		return fmt.Errorf("line count: expected array, got %s", t)
	}
	vals, err := arr.Values()
	if err != nil {
		return fmt.Errorf("line count: %w", err)
	}
	if len(vals) != 2 {
		return fmt.Errorf("line count: expected 2 elements, got %d", len(vals))
	}
	switch vals[0].Type {
	case bsontype.Int32:
		lc.Count = int(vals[0].Int32())
	case bsontype.Int64:
		lc.Count = int(vals[0].Int64())
	case bsontype.Double:
		lc.Count = int(vals[0].Double())
	default:
		return fmt.Errorf("line count: unexpected count type %s", vals[0].Type)
	}
	line, ok := vals[1].StringValueOK()
	if !ok {
		return fmt.Errorf("line count: unexpected line type %s", vals[1].Type)
	}
	lc.Line = line
	return nil
}

func (lc LineCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{lc.Count, lc.Line})
}

func (lc *LineCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line count: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &lc.Count); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &lc.Line)
}

// CountLines builds the three frequency tables. The lists are walked
// together position by position up to the longest one, and every
// non-empty value counts once in its own table.
func CountLines(errors, warnings, mismatches []string) (Counts, Counts, Counts) {
	errCounts, warnCounts, mismCounts := Counts{}, Counts{}, Counts{}
	n := len(errors)
	if len(warnings) > n {
		n = len(warnings)
	}
	if len(mismatches) > n {
		n = len(mismatches)
	}
	for i := 0; i < n; i++ {
		if i < len(errors) && errors[i] != "" {
			errCounts[errors[i]]++
		}
		if i < len(warnings) && warnings[i] != "" {
			warnCounts[warnings[i]]++
		}
		if i < len(mismatches) && mismatches[i] != "" {
			mismCounts[mismatches[i]]++
		}
	}
	return errCounts, warnCounts, mismCounts
}

// Sorted turns counts into a table ordered by descending count, ties
// ordered by descending line text.
func Sorted(counts Counts) []LineCount {
	out := make([]LineCount, 0, len(counts))
	for line, c := range counts {
		out = append(out, LineCount{Count: c, Line: line})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Line > out[j].Line
	})
	return out
}

// Merge adds counts to the previous table and returns the new sorted table.
// prev is not modified.
func Merge(prev []LineCount, counts Counts) []LineCount {
	merged := make(Counts, len(prev)+len(counts))
	for _, lc := range prev {
		merged[lc.Line] += lc.Count
	}
	for line, c := range counts {
		merged[line] += c
	}
	return Sorted(merged)
}
