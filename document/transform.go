// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package document

import (
	"fmt"

	"github.com/exdb/repoload/container"
	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/rules"
	"github.com/exdb/repoload/schema"
)

// Key holds the synthetic lookup fields identifying a document in the
// target store.
type Key map[string]interface{}

// Target is one document ready for the target store.
type Target struct {
	Collection string
	Content    map[string]interface{}
	Key        Key
}

// MissingKeyError rejects one record's documents because a mandatory
// private key has no source value. Fatal for that record only.
type MissingKeyError struct {
	RecordID   string
	Collection string
	Field      string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("record %s, collection %s: mandatory private key %s has no value", e.RecordID, e.Collection, e.Field)
}

// ValueError rejects a document because a key-bearing value has the
// wrong shape, e.g. an iterable where a scalar key is needed.
type ValueError struct {
	RecordID   string
	Collection string
	Item       string
	Reason     string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("record %s, collection %s: %s: %s", e.RecordID, e.Collection, e.Item, e.Reason)
}

// Transform applies a collection mapping to one source container.
// The second return is true when the record was dropped by the
// collection's selection filter, which is an outcome, not an error.
// An empty slice set yields zero documents and no error.
func Transform(src *container.Source, m *CollectionMapping) ([]Target, bool, error) {
	if m.Filter != nil && !admits(src, m.Filter) {
		return nil, true, nil
	}

	if !m.Sliced() {
		doc, err := buildDocument(src, m, m.ParentCategories, nil, nil)
		if err != nil {
			return nil, false, err
		}
		if doc == nil {
			return nil, false, nil
		}
		return []Target{*doc}, false, nil
	}

	values := sliceValues(src, m)
	docs := make([]Target, 0, len(values))
	for _, v := range values {
		sliceRows := make(map[string][]container.Row, len(m.SliceCategories))
		for _, cat := range m.SliceCategories {
			sliceRows[cat] = matchRows(src.Rows(cat), m.SliceLinks[cat], v)
		}
		doc, err := buildDocument(src, m, m.Extras, m.SliceCategories, sliceRows)
		if err != nil {
			return nil, false, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, false, nil
}

// admits applies a selection filter: every term's observed values
// must intersect its allowed set. A record missing a term's category
// entirely is not admitted.
func admits(src *container.Source, filter *rules.SelectionFilter) bool {
	for _, term := range filter.Terms {
		observed := src.Values(dictionary.ItemRef{Category: term.Category, Attribute: term.Attribute})
		if len(observed) == 0 {
			return false
		}
		allowed := make(map[string]bool, len(term.Values))
		for _, v := range term.Values {
			allowed[v] = true
		}
		hit := false
		for _, v := range observed {
			if allowed[v] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// sliceValues enumerates the distinct slice parent values present in
// the container, after the slice's value filter, in row order.
func sliceValues(src *container.Source, m *CollectionMapping) []string {
	slice := m.Slice
	rows := src.Rows(slice.Parent.Category)
	if f := slice.Filter; f != nil {
		if f.Category == slice.Parent.Category {
			rows = matchAllowed(rows, f)
		} else if !admits(src, &rules.SelectionFilter{Terms: []rules.AllowedValues{*f}}) {
			return nil
		}
	}
	var values []string
	seen := map[string]bool{}
	for _, row := range rows {
		v, ok := row[slice.Parent.Attribute]
		if !ok {
			continue
		}
		str := container.ValueString(v)
		if str == "" || seen[str] {
			continue
		}
		seen[str] = true
		values = append(values, str)
	}
	return values
}

func matchAllowed(rows []container.Row, f *rules.AllowedValues) []container.Row {
	allowed := make(map[string]bool, len(f.Values))
	for _, v := range f.Values {
		allowed[v] = true
	}
	var keep []container.Row
	for _, row := range rows {
		if v, ok := row[f.Attribute]; ok && allowed[container.ValueString(v)] {
			keep = append(keep, row)
		}
	}
	return keep
}

// matchRows keeps the rows whose link attribute equals the slice
// value. Every admitted row lands in exactly one slice.
func matchRows(rows []container.Row, linkAttr, value string) []container.Row {
	var keep []container.Row
	for _, row := range rows {
		if v, ok := row[linkAttr]; ok && container.ValueString(v) == value {
			keep = append(keep, row)
		}
	}
	return keep
}

// buildDocument assembles one document from parent-level categories
// plus, for slice documents, the pre-filtered slice-level rows.
// Returns nil when the container contributes no content at all.
func buildDocument(src *container.Source, m *CollectionMapping, parentCats, sliceCats []string, sliceRows map[string][]container.Row) (*Target, error) {
	content := make(map[string]interface{})
	used := make(map[string][]container.Row)

	for _, cat := range parentCats {
		rows := src.Rows(cat)
		if len(rows) == 0 {
			continue
		}
		used[cat] = rows
		content[cat] = emitCategory(m.Schema.Category(cat), rows)
	}
	for _, cat := range sliceCats {
		rows := sliceRows[cat]
		if len(rows) == 0 {
			continue
		}
		used[cat] = rows
		if m.SliceUnit[cat] && len(rows) == 1 {
			content[cat] = copyRow(rows[0])
		} else {
			content[cat] = copyRows(rows)
		}
	}
	if len(content) == 0 {
		return nil, nil
	}

	applyAggregates(content, m.Aggregates)

	// One-category documents drop the category level unless the
	// collection retains singletons.
	if !m.RetainSingleton && len(content) == 1 {
		for name, v := range content {
			if obj, ok := v.(map[string]interface{}); ok {
				delete(content, name)
				for k, f := range obj {
					content[k] = f
				}
			}
		}
	}

	key, err := injectKeys(src, m, used, content)
	if err != nil {
		return nil, err
	}
	return &Target{Collection: m.Collection, Content: content, Key: key}, nil
}

// emitCategory renders a category's rows: unit cardinality collapses
// to a nested object, multi stays an array of objects.
func emitCategory(def *schema.CategoryDef, rows []container.Row) interface{} {
	if def != nil && def.Cardinality == schema.CardinalityUnit && !def.Extra {
		return copyRow(rows[0])
	}
	return copyRows(rows)
}

// applyAggregates collapses the rows of an aggregate's categories
// into one named field instead of parallel arrays. A unit aggregate
// holding exactly one row emits an object.
func applyAggregates(content map[string]interface{}, aggs []rules.Aggregate) {
	for _, agg := range aggs {
		var rows []interface{}
		found := false
		for _, cat := range agg.Categories {
			v, ok := content[cat]
			if !ok {
				continue
			}
			found = true
			delete(content, cat)
			if seq, ok := v.([]interface{}); ok {
				rows = append(rows, seq...)
			} else {
				rows = append(rows, v)
			}
		}
		if !found {
			continue
		}
		if agg.Unit && len(rows) == 1 {
			content[agg.Name] = rows[0]
		} else {
			content[agg.Name] = rows
		}
	}
}

// injectKeys copies private key source values into their synthetic
// field names. Lookups prefer the rows this document was built from,
// so a sliced key takes the slice instance's value.
func injectKeys(src *container.Source, m *CollectionMapping, used map[string][]container.Row, content map[string]interface{}) (Key, error) {
	key := make(Key)
	for _, pk := range m.PrivateKeys {
		val, ok := lookupValue(used, src, pk.Source)
		if !ok {
			if pk.Mandatory {
				return nil, &MissingKeyError{RecordID: src.RecordID, Collection: m.Collection, Field: pk.Name}
			}
			continue
		}
		if _, isSeq := val.([]interface{}); isSeq {
			return nil, &ValueError{
				RecordID:   src.RecordID,
				Collection: m.Collection,
				Item:       pk.Source.String(),
				Reason:     "iterable value cannot key a document",
			}
		}
		content[pk.Name] = val
		if pk.Mandatory {
			key[pk.Name] = val
		}
	}
	return key, nil
}

func lookupValue(used map[string][]container.Row, src *container.Source, ref dictionary.ItemRef) (interface{}, bool) {
	rows, ok := used[ref.Category]
	if !ok {
		rows = src.Rows(ref.Category)
	}
	for _, row := range rows {
		if v, ok := row[ref.Attribute]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func copyRow(row container.Row) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		if seq, ok := v.([]interface{}); ok {
			cp := make([]interface{}, len(seq))
			copy(cp, seq)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

func copyRows(rows []container.Row) []interface{} {
	out := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyRow(row))
	}
	return out
}
