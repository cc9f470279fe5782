// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package document maps compiled schemas onto target collections and
// transforms typed source containers into target documents. The
// organizer resolves, per collection, which categories are emitted at
// the parent level, which per slice instance, and which are
// duplicated extras; the transformer then applies a mapping to one
// container, enforcing cardinality, slicing, selection filters,
// aggregation, and private key injection.
package document

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/rules"
	"github.com/exdb/repoload/schema"
)

// CollectionMapping describes how one source container decomposes
// into documents of one target collection. Mappings are built once
// per run, immutable, and shared across workers.
type CollectionMapping struct {
	Collection string
	Schema     *schema.Compiled

	// ParentCategories are emitted once per record, sorted.
	ParentCategories []string
	// Slice, when set, splits the record into one document per
	// distinct slice parent value.
	Slice *rules.SliceDefinition
	// SliceCategories are emitted per slice instance; SliceLinks maps
	// each to the attribute whose value ties a row to its slice.
	SliceCategories []string
	SliceLinks      map[string]string
	// Extras are duplicated verbatim into every slice instance.
	Extras []string
	// SliceUnit categories emit a single retained row as an object.
	SliceUnit map[string]bool

	Filter          *rules.SelectionFilter
	PrivateKeys     []rules.PrivateKey
	Indexes         []rules.IndexSpec
	Aggregates      []rules.Aggregate
	RetainSingleton bool
	Prunable        []string
}

// Sliced reports whether the mapping produces per-slice documents.
func (m *CollectionMapping) Sliced() bool { return m.Slice != nil }

// BuildMappings resolves every collection of the compiled schema into
// a CollectionMapping. Collection-level include/exclude filters are
// strictly narrower than the schema's: an include entry naming a
// category outside the compiled universe is an error. Slice extras
// override exclude lists.
func BuildMappings(compiled *schema.Compiled, store *rules.Store) (map[string]*CollectionMapping, error) {
	mappings := make(map[string]*CollectionMapping)
	for _, name := range sortedCollections(store, compiled.Name) {
		def := store.Collections[name]
		m, err := buildMapping(compiled, def)
		if err != nil {
			return nil, errors.Wrapf(err, "building mapping for collection %s", name)
		}
		mappings[name] = m
	}
	return mappings, nil
}

func sortedCollections(store *rules.Store, schemaName string) []string {
	names := store.CollectionsForSchema(schemaName)
	sort.Strings(names)
	return names
}

func buildMapping(compiled *schema.Compiled, def *rules.CollectionDefinition) (*CollectionMapping, error) {
	m := &CollectionMapping{
		Collection:      def.Name,
		Schema:          compiled,
		PrivateKeys:     def.PrivateKeys,
		Indexes:         def.Indexes,
		Aggregates:      def.Aggregates,
		RetainSingleton: def.RetainSingleton,
		Prunable:        def.Prunable,
	}

	set, err := collectionUniverse(compiled, def)
	if err != nil {
		return nil, err
	}

	if def.Filter != "" {
		filter, ok := compiled.Selectors[def.Filter]
		if !ok {
			return nil, errors.Errorf("selection filter %q not in compiled schema", def.Filter)
		}
		m.Filter = &filter
	}

	if def.Slice == "" {
		// Once a schema is sliced, the slices' dropParent categories
		// leave the parent-level view entirely.
		for _, slice := range compiled.Slices {
			for _, name := range slice.DropParent {
				delete(set, name)
			}
		}
		m.ParentCategories = sortedKeys(set)
		return m, nil
	}

	slice, ok := compiled.Slices[def.Slice]
	if !ok {
		return nil, errors.Errorf("slice %q not in compiled schema", def.Slice)
	}
	m.Slice = &slice
	m.SliceLinks = make(map[string]string)
	m.SliceUnit = make(map[string]bool, len(slice.Unit))
	for _, name := range slice.Unit {
		m.SliceUnit[name] = true
	}

	// Extras always ride along, even past a collection exclude.
	for _, name := range slice.Extras {
		if compiled.Category(name) == nil {
			return nil, errors.Errorf("slice extra %q not in compiled schema", name)
		}
		set[name] = true
	}
	extras := make(map[string]bool, len(slice.Extras))
	for _, name := range slice.Extras {
		extras[name] = true
	}
	dropped := make(map[string]bool, len(slice.DropParent))
	for _, name := range slice.DropParent {
		dropped[name] = true
	}

	// A sliced collection carries slice-level categories and extras
	// only; everything else belongs to the parent collection. The
	// slice's dropParent list prunes its own classification.
	for _, name := range sortedKeys(set) {
		if dropped[name] {
			continue
		}
		if extras[name] {
			m.Extras = append(m.Extras, name)
			continue
		}
		if link, ok := sliceLink(compiled, &slice, name); ok {
			m.SliceCategories = append(m.SliceCategories, name)
			m.SliceLinks[name] = link
		}
	}
	return m, nil
}

// sliceLink finds the attribute of a category that ties its rows to
// the slice parent: the parent attribute itself on the parent
// category, or any attribute whose declared parent is the slice
// parent item.
func sliceLink(compiled *schema.Compiled, slice *rules.SliceDefinition, category string) (string, bool) {
	if category == slice.Parent.Category {
		return slice.Parent.Attribute, true
	}
	def := compiled.Category(category)
	for _, at := range def.Attributes {
		if at.Parent != nil && *at.Parent == slice.Parent {
			return at.Name, true
		}
	}
	return "", false
}

func collectionUniverse(compiled *schema.Compiled, def *rules.CollectionDefinition) (map[string]bool, error) {
	set := make(map[string]bool)
	if len(def.Include) > 0 {
		for _, name := range def.Include {
			if compiled.Category(name) == nil {
				return nil, fmt.Errorf("include entry %q not in compiled schema; collection filters only narrow", name)
			}
			set[name] = true
		}
	} else {
		for name := range compiled.Categories {
			set[name] = true
		}
	}
	for _, name := range def.Exclude {
		delete(set, name)
	}
	return set, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
