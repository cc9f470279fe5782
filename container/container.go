// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package container builds the typed in-memory form of one source
// record. A Source maps category names to rows of typed values,
// produced by applying the schema's item transforms (whitespace
// stripping, character-reference decoding, iterable splitting) and
// type conversion to the raw record. One Source is owned by one
// record's pipeline pass and never shared.
package container

import (
	"fmt"
	"sort"

	"github.com/exdb/repoload/dictionary"
)

// Row maps attribute names to typed values: string, int64, float64,
// time.Time, or []interface{} for iterables. Null values are omitted.
type Row map[string]interface{}

// Source is the typed container for one record.
type Source struct {
	RecordID   string
	Categories map[string][]Row
}

// Rows returns the rows of a category, nil if absent.
func (s *Source) Rows(category string) []Row {
	return s.Categories[category]
}

// Has reports whether the category is present with at least one row.
func (s *Source) Has(category string) bool {
	return len(s.Categories[category]) > 0
}

// DistinctValues returns the distinct string forms of an item's
// values across all rows, in first-seen order. Used to enumerate
// slice instances.
func (s *Source) DistinctValues(ref dictionary.ItemRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, row := range s.Categories[ref.Category] {
		v, ok := row[ref.Attribute]
		if !ok {
			continue
		}
		str := ValueString(v)
		if str == "" || seen[str] {
			continue
		}
		seen[str] = true
		out = append(out, str)
	}
	return out
}

// Values returns the string forms of every value of an item across
// all rows, iterable elements flattened.
func (s *Source) Values(ref dictionary.ItemRef) []string {
	var out []string
	for _, row := range s.Categories[ref.Category] {
		v, ok := row[ref.Attribute]
		if !ok {
			continue
		}
		if seq, ok := v.([]interface{}); ok {
			for _, el := range seq {
				if el != nil {
					out = append(out, ValueString(el))
				}
			}
			continue
		}
		out = append(out, ValueString(v))
	}
	return out
}

// CategoryNames returns present category names sorted.
func (s *Source) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValueString renders a typed value the way it keys lookups: the raw
// string for strings, decimal forms for numerics.
func ValueString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
