// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package rules holds the typed configuration overlays that, together
// with the dictionary model, drive schema compilation: content
// filters, cardinality declarations, selection filters, slice
// definitions, item transforms, and per-collection definitions. Rules
// are decoded from YAML and validated at load time; control flow
// never reads raw configuration trees.
package rules

import (
	"github.com/pkg/errors"

	"github.com/exdb/repoload/dictionary"
)

// AllowedValues constrains one attribute to a value set.
type AllowedValues struct {
	Category  string   `yaml:"category"`
	Attribute string   `yaml:"attribute"`
	Values    []string `yaml:"values"`
}

// SelectionFilter admits a record only if, for every term, all of the
// attribute's observed values fall in the allowed set. A record
// missing a term's category is not admitted.
type SelectionFilter struct {
	Tag    string
	Schema string
	Terms  []AllowedValues
}

// CardinalityRule binds a category to the parent item whose value
// bounds one logical row group. Categories without a rule default to
// unit cardinality keyed on the schema's block item.
type CardinalityRule struct {
	Category string             `yaml:"category"`
	Parent   dictionary.ItemRef `yaml:"parent"`
}

// SliceDefinition decomposes a record into per-child documents keyed
// by the distinct values of Parent. Extras are carried into every
// slice instance; DropParent categories leave the parent-level view
// once sliced; Unit categories emit a single retained row as an
// object rather than a one-element array.
type SliceDefinition struct {
	Name       string
	Schema     string
	Parent     dictionary.ItemRef `yaml:"parent"`
	Filter     *AllowedValues     `yaml:"filter,omitempty"`
	Extras     []string           `yaml:"extras,omitempty"`
	DropParent []string           `yaml:"dropParent,omitempty"`
	Unit       []string           `yaml:"unitCategories,omitempty"`
}

// ContentClassMember tags a category (or a subset of its attributes)
// as belonging to a lifecycle class.
type ContentClassMember struct {
	Category   string   `yaml:"category"`
	Attributes []string `yaml:"attributes,omitempty"`
}

// ContentClassRule marks content with a lifecycle tag (generated,
// evolving, consolidated). Documentation and filtering only.
type ContentClassRule struct {
	Tag     string
	Schema  string
	Members []ContentClassMember
}

// SchemaContentFilter narrows a schema's category universe. A
// non-empty include list wins; otherwise all dictionary categories
// minus the exclude list.
type SchemaContentFilter struct {
	Include           []string             `yaml:"include,omitempty"`
	Exclude           []string             `yaml:"exclude,omitempty"`
	ExcludeAttributes []dictionary.ItemRef `yaml:"excludeAttributes,omitempty"`
}

// ItemTransforms declares the value transforms applied by the
// container builder, in fixed order: whitespace stripping, then
// character-reference decoding, then iterable splitting (the split
// table comes from attribute delimiters in the dictionary).
type ItemTransforms struct {
	StripWhitespace []dictionary.ItemRef `yaml:"stripWhitespace,omitempty"`
	DecodeCharRefs  []string             `yaml:"decodeCharRefs,omitempty"`
}

// BlockAttribute injects a synthetic per-category attribute carrying
// the record identifier into every category of the schema (or the
// listed subset).
type BlockAttribute struct {
	Name       string              `yaml:"name"`
	Type       dictionary.TypeCode `yaml:"type"`
	Width      int                 `yaml:"width,omitempty"`
	Categories []string            `yaml:"categories,omitempty"`
}

// PrivateKey injects a synthetic lookup field into produced
// documents, copied from a source item.
type PrivateKey struct {
	Source       dictionary.ItemRef `yaml:"source"`
	Name         string             `yaml:"name"`
	Mandatory    bool               `yaml:"mandatory"`
	UpdateOnLoad bool               `yaml:"updateOnLoad"`
}

// IndexSpec declares a target-store index on a collection.
type IndexSpec struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
	Unique bool     `yaml:"unique"`
}

// Aggregate collapses the rows of several categories sharing a
// cardinality key into one named field instead of parallel arrays.
// Unit aggregates holding exactly one row emit an object.
type Aggregate struct {
	Name       string   `yaml:"name"`
	Categories []string `yaml:"categories"`
	Unit       bool     `yaml:"unit"`
}

// CollectionDefinition describes one target collection: which schema
// it projects, how it narrows the category set, whether it is sliced,
// and its private keys and indexes.
type CollectionDefinition struct {
	Name            string
	Schema          string      `yaml:"schema"`
	Include         []string    `yaml:"include,omitempty"`
	Exclude         []string    `yaml:"exclude,omitempty"`
	Slice           string      `yaml:"slice,omitempty"`
	Filter          string      `yaml:"filter,omitempty"`
	PrivateKeys     []PrivateKey `yaml:"privateKeys,omitempty"`
	Indexes         []IndexSpec  `yaml:"indexes,omitempty"`
	RetainSingleton bool         `yaml:"retainSingleton"`
	Aggregates      []Aggregate  `yaml:"aggregates,omitempty"`
	Prunable        []string     `yaml:"prunable,omitempty"`
}

// SchemaRules groups every rule keyed by one schema name.
type SchemaRules struct {
	ContentFilter     SchemaContentFilter
	Cardinality       []CardinalityRule
	CardinalityExtras []string
	SelectionFilters  map[string]SelectionFilter // by tag
	Slices            map[string]SliceDefinition // by slice name
	ContentClasses    map[string]ContentClassRule
	Transforms        ItemTransforms
	BlockAttribute    *BlockAttribute
	AuxOverrides      []string // aux categories allowed to override primary
}

// Store is the full, validated rule set for a site.
type Store struct {
	Schemas     map[string]*SchemaRules
	Collections map[string]*CollectionDefinition
}

// Schema returns the rules for a schema name, or an empty rule set if
// none are configured. The compiler treats absence as "no overlay".
func (s *Store) Schema(name string) *SchemaRules {
	if r, ok := s.Schemas[name]; ok {
		return r
	}
	return &SchemaRules{
		SelectionFilters: map[string]SelectionFilter{},
		Slices:           map[string]SliceDefinition{},
		ContentClasses:   map[string]ContentClassRule{},
	}
}

// Collection returns the named collection definition.
func (s *Store) Collection(name string) (*CollectionDefinition, error) {
	def, ok := s.Collections[name]
	if !ok {
		return nil, errors.Errorf("collection %q not defined", name)
	}
	return def, nil
}

// CollectionsForSchema returns the names of collections projecting
// the given schema, unordered.
func (s *Store) CollectionsForSchema(schema string) []string {
	var names []string
	for name, def := range s.Collections {
		if def.Schema == schema {
			names = append(names, name)
		}
	}
	return names
}

// validate checks internal references: collection schema, slice and
// filter names must resolve. Dictionary-level references are checked
// later by the schema compiler against the merged dictionary.
func (s *Store) validate() error {
	for name, def := range s.Collections {
		sr, ok := s.Schemas[def.Schema]
		if !ok {
			return errors.Errorf("collection %s: unknown schema %q", name, def.Schema)
		}
		if def.Slice != "" {
			if _, ok := sr.Slices[def.Slice]; !ok {
				return errors.Errorf("collection %s: unknown slice %q in schema %s", name, def.Slice, def.Schema)
			}
		}
		if def.Filter != "" {
			if _, ok := sr.SelectionFilters[def.Filter]; !ok {
				return errors.Errorf("collection %s: unknown selection filter %q in schema %s", name, def.Filter, def.Schema)
			}
		}
		for _, pk := range def.PrivateKeys {
			if pk.Name == "" {
				return errors.Errorf("collection %s: private key from %s has no target field name", name, pk.Source)
			}
		}
		for _, agg := range def.Aggregates {
			if agg.Name == "" || len(agg.Categories) == 0 {
				return errors.Errorf("collection %s: aggregate must name a field and at least one category", name)
			}
		}
	}
	for schema, sr := range s.Schemas {
		seen := map[string]bool{}
		for _, extra := range sr.CardinalityExtras {
			if seen[extra] {
				return errors.Errorf("schema %s: category %s listed as cardinality extra more than once", schema, extra)
			}
			seen[extra] = true
		}
	}
	return nil
}
