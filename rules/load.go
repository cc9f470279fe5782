// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rules

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// fileSchema is the YAML shape of one schema's rule block.
type fileSchema struct {
	ContentFilter     SchemaContentFilter              `yaml:"contentFilter"`
	Cardinality       []CardinalityRule                `yaml:"cardinality,omitempty"`
	CardinalityExtras []string                         `yaml:"cardinalityExtras,omitempty"`
	SelectionFilters  map[string][]AllowedValues       `yaml:"selectionFilters,omitempty"`
	Slices            map[string]SliceDefinition       `yaml:"slices,omitempty"`
	ContentClasses    map[string][]ContentClassMember  `yaml:"contentClasses,omitempty"`
	Transforms        ItemTransforms                   `yaml:"transforms"`
	BlockAttribute    *BlockAttribute                  `yaml:"blockAttribute,omitempty"`
	AuxOverrides      []string                         `yaml:"auxOverrides,omitempty"`
}

type fileDocument struct {
	Schemas     map[string]fileSchema            `yaml:"schemas"`
	Collections map[string]CollectionDefinition  `yaml:"collections"`
}

// Load reads and validates a rule store from a YAML file.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading rule file")
	}
	return Parse(raw)
}

// Parse decodes a rule store from YAML bytes and validates internal
// references.
func Parse(raw []byte) (*Store, error) {
	var doc fileDocument
	if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding rule file")
	}

	store := &Store{
		Schemas:     make(map[string]*SchemaRules, len(doc.Schemas)),
		Collections: make(map[string]*CollectionDefinition, len(doc.Collections)),
	}
	for name, fs := range doc.Schemas {
		sr := &SchemaRules{
			ContentFilter:     fs.ContentFilter,
			Cardinality:       fs.Cardinality,
			CardinalityExtras: fs.CardinalityExtras,
			SelectionFilters:  make(map[string]SelectionFilter, len(fs.SelectionFilters)),
			Slices:            make(map[string]SliceDefinition, len(fs.Slices)),
			ContentClasses:    make(map[string]ContentClassRule, len(fs.ContentClasses)),
			Transforms:        fs.Transforms,
			BlockAttribute:    fs.BlockAttribute,
			AuxOverrides:      fs.AuxOverrides,
		}
		for tag, terms := range fs.SelectionFilters {
			sr.SelectionFilters[tag] = SelectionFilter{Tag: tag, Schema: name, Terms: terms}
		}
		for sliceName, def := range fs.Slices {
			def.Name = sliceName
			def.Schema = name
			sr.Slices[sliceName] = def
		}
		for tag, members := range fs.ContentClasses {
			sr.ContentClasses[tag] = ContentClassRule{Tag: tag, Schema: name, Members: members}
		}
		store.Schemas[name] = sr
	}
	for name, def := range doc.Collections {
		d := def
		d.Name = name
		store.Collections[name] = &d
	}

	if err := store.validate(); err != nil {
		return nil, errors.Wrap(err, "validating rule store")
	}
	return store, nil
}
