// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package schema compiles the dictionary model plus the site rule
// store into concrete per-target schemas. A compiled schema is
// deterministic: the same inputs always produce a byte-identical
// encoding, so operators can diff digests to decide whether target
// store validators need redeploying.
package schema

import (
	"fmt"
	"sort"

	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/rules"
)

// Level selects how much of the attribute universe a compiled schema
// carries.
type Level string

const (
	// LevelFull keeps every resolved attribute.
	LevelFull Level = "full"
	// LevelMin keeps only mandatory attributes and key attributes.
	LevelMin Level = "min"
)

// ResolutionError reports a configuration/dictionary mismatch found
// during compilation. It is fatal to the whole compile step: a rule
// referencing a category absent from the dictionary means the site
// configuration is stale.
type ResolutionError struct {
	Schema string
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("schema %s: %s: %s", e.Schema, e.Ref, e.Reason)
}

// Cardinality says whether a category contributes one row group
// (unit) or many per parent key.
type Cardinality string

const (
	CardinalityUnit  Cardinality = "unit"
	CardinalityMulti Cardinality = "multi"
)

// AttributeDef is one resolved attribute of a compiled category.
type AttributeDef struct {
	Name      string              `json:"name"`
	Type      dictionary.TypeCode `json:"type"`
	Nullable  bool                `json:"nullable"`
	Width     int                 `json:"width,omitempty"`
	Delimiter string              `json:"delimiter,omitempty"`
	Key       bool                `json:"key,omitempty"`
	Synthetic bool                `json:"synthetic,omitempty"`
	Parent    *dictionary.ItemRef `json:"parent,omitempty"`
}

// CategoryDef is one resolved category. Attributes are ordered keys
// first, then the rest, each group sorted by name.
type CategoryDef struct {
	Name           string              `json:"name"`
	Attributes     []AttributeDef      `json:"attributes"`
	Cardinality    Cardinality         `json:"cardinality"`
	Parent         *dictionary.ItemRef `json:"parent,omitempty"`
	Extra          bool                `json:"extra,omitempty"`
	ContentClasses []string            `json:"contentClasses,omitempty"`
}

// Attribute returns the named attribute definition or nil.
func (c *CategoryDef) Attribute(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// Compiled is the result of resolving one named schema at one
// validation level.
type Compiled struct {
	Name       string                            `json:"name"`
	Version    string                            `json:"version"`
	Level      Level                             `json:"level"`
	Categories map[string]CategoryDef            `json:"categories"`
	Selectors  map[string]rules.SelectionFilter  `json:"selectors,omitempty"`
	Slices     map[string]rules.SliceDefinition  `json:"slices,omitempty"`
	Transforms rules.ItemTransforms              `json:"transforms"`
	BlockAttr  *rules.BlockAttribute             `json:"blockAttribute,omitempty"`
	// AuxOverrides lists auxiliary categories allowed to replace a
	// same-named primary category during container build.
	AuxOverrides []string `json:"auxOverrides,omitempty"`
}

// Category returns the named compiled category or nil.
func (c *Compiled) Category(name string) *CategoryDef {
	if def, ok := c.Categories[name]; ok {
		return &def
	}
	return nil
}

// CategoryNames returns the compiled category names sorted.
func (c *Compiled) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile resolves schemaName against the dictionary and rule store
// at the given validation level.
func Compile(dict *dictionary.Dictionary, store *rules.Store, schemaName string, level Level) (*Compiled, error) {
	sr := store.Schema(schemaName)

	universe, err := resolveUniverse(dict, sr, schemaName)
	if err != nil {
		return nil, err
	}

	// Cardinality and slice rules must reference live dictionary
	// content. Report, never skip: a dangling reference means stale
	// configuration.
	cardByCategory := make(map[string]rules.CardinalityRule, len(sr.Cardinality))
	for _, rule := range sr.Cardinality {
		if dict.Category(rule.Category) == nil {
			return nil, &ResolutionError{Schema: schemaName, Ref: rule.Category, Reason: "cardinality rule references category not in dictionary"}
		}
		if !dict.HasItem(rule.Parent) {
			return nil, &ResolutionError{Schema: schemaName, Ref: rule.Parent.String(), Reason: "cardinality parent item not in dictionary"}
		}
		cardByCategory[rule.Category] = rule
	}
	extras := make(map[string]bool, len(sr.CardinalityExtras))
	for _, name := range sr.CardinalityExtras {
		if dict.Category(name) == nil {
			return nil, &ResolutionError{Schema: schemaName, Ref: name, Reason: "cardinality extra references category not in dictionary"}
		}
		extras[name] = true
	}
	for _, slice := range sr.Slices {
		if dict.Category(slice.Parent.Category) == nil {
			return nil, &ResolutionError{Schema: schemaName, Ref: slice.Parent.Category, Reason: "slice parent references category not in dictionary"}
		}
		if !universe[slice.Parent.Category] {
			return nil, &ResolutionError{Schema: schemaName, Ref: slice.Parent.String(), Reason: "slice parent category excluded from schema"}
		}
	}

	excludedAttrs := make(map[dictionary.ItemRef]bool, len(sr.ContentFilter.ExcludeAttributes))
	for _, ref := range sr.ContentFilter.ExcludeAttributes {
		excludedAttrs[ref] = true
	}
	keyItems := keyItemSet(sr)

	compiled := &Compiled{
		Name:         schemaName,
		Version:      dict.Version,
		Level:        level,
		Categories:   make(map[string]CategoryDef, len(universe)),
		Selectors:    sr.SelectionFilters,
		Slices:       sr.Slices,
		Transforms:   sr.Transforms,
		BlockAttr:    sr.BlockAttribute,
		AuxOverrides: sr.AuxOverrides,
	}
	if len(compiled.Selectors) == 0 {
		compiled.Selectors = nil
	}
	if len(compiled.Slices) == 0 {
		compiled.Slices = nil
	}

	classByCategory := contentClassIndex(sr)

	for name := range universe {
		cat := dict.Category(name)
		def := CategoryDef{
			Name:           name,
			Cardinality:    CardinalityUnit,
			ContentClasses: classByCategory[name],
		}
		if rule, ok := cardByCategory[name]; ok {
			parent := rule.Parent
			def.Parent = &parent
			def.Cardinality = CardinalityMulti
		}
		if extras[name] {
			def.Extra = true
			def.Cardinality = CardinalityMulti
		}

		for _, at := range cat.Attributes {
			ref := dictionary.ItemRef{Category: name, Attribute: at.Name}
			if excludedAttrs[ref] {
				continue
			}
			isKey := keyItems[ref]
			if level == LevelMin && at.Nullable && !isKey {
				continue
			}
			def.Attributes = append(def.Attributes, AttributeDef{
				Name:      at.Name,
				Type:      at.Type,
				Nullable:  at.Nullable,
				Width:     at.Width,
				Delimiter: at.Delimiter,
				Key:       isKey,
				Parent:    at.Parent,
			})
		}
		if ba := sr.BlockAttribute; ba != nil && blockApplies(ba, name) {
			def.Attributes = append(def.Attributes, AttributeDef{
				Name:      ba.Name,
				Type:      ba.Type,
				Width:     ba.Width,
				Key:       true,
				Synthetic: true,
			})
		}
		orderAttributes(def.Attributes)
		compiled.Categories[name] = def
	}
	return compiled, nil
}

// resolveUniverse applies the schema content filter: a non-empty
// include list wins, otherwise all dictionary categories minus the
// exclude list.
func resolveUniverse(dict *dictionary.Dictionary, sr *rules.SchemaRules, schemaName string) (map[string]bool, error) {
	universe := make(map[string]bool)
	if len(sr.ContentFilter.Include) > 0 {
		for _, name := range sr.ContentFilter.Include {
			if dict.Category(name) == nil {
				return nil, &ResolutionError{Schema: schemaName, Ref: name, Reason: "include list references category not in dictionary"}
			}
			universe[name] = true
		}
		return universe, nil
	}
	excluded := make(map[string]bool, len(sr.ContentFilter.Exclude))
	for _, name := range sr.ContentFilter.Exclude {
		excluded[name] = true
	}
	for _, name := range dict.CategoryNames() {
		if !excluded[name] {
			universe[name] = true
		}
	}
	return universe, nil
}

// keyItemSet collects every item that acts as a grouping key:
// cardinality parents and slice parents.
func keyItemSet(sr *rules.SchemaRules) map[dictionary.ItemRef]bool {
	keys := make(map[dictionary.ItemRef]bool)
	for _, rule := range sr.Cardinality {
		keys[rule.Parent] = true
	}
	for _, slice := range sr.Slices {
		keys[slice.Parent] = true
	}
	return keys
}

func contentClassIndex(sr *rules.SchemaRules) map[string][]string {
	idx := make(map[string][]string)
	for _, tag := range sortedClassTags(sr) {
		for _, member := range sr.ContentClasses[tag].Members {
			idx[member.Category] = append(idx[member.Category], tag)
		}
	}
	return idx
}

func sortedClassTags(sr *rules.SchemaRules) []string {
	tags := make([]string, 0, len(sr.ContentClasses))
	for tag := range sr.ContentClasses {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func blockApplies(ba *rules.BlockAttribute, category string) bool {
	if len(ba.Categories) == 0 {
		return true
	}
	for _, name := range ba.Categories {
		if name == category {
			return true
		}
	}
	return false
}

// orderAttributes sorts keys first, then the rest, each group by
// name. Keeps encodings stable across compiles.
func orderAttributes(attrs []AttributeDef) {
	sort.SliceStable(attrs, func(i, j int) bool {
		if attrs[i].Key != attrs[j].Key {
			return attrs[i].Key
		}
		return attrs[i].Name < attrs[j].Name
	})
}
