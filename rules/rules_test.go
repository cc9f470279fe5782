// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `
schemas:
  core:
    contentFilter:
      exclude: [internal_audit]
      excludeAttributes:
        - {category: entry, attribute: scratch}
    cardinality:
      - category: entity
        parent: {category: entity, attribute: id}
    cardinalityExtras: [citation]
    selectionFilters:
      public:
        - category: status
          attribute: status_code
          values: [REL]
    slices:
      entity:
        parent: {category: entity, attribute: id}
        extras: [entry]
        dropParent: [entity_poly]
        unitCategories: [entity]
    transforms:
      stripWhitespace:
        - {category: entry, attribute: title}
      decodeCharRefs: [citation]
    blockAttribute:
      name: record_id
      type: string
      width: 12
    auxOverrides: [validation_summary]
collections:
  core_entry:
    schema: core
    filter: public
    privateKeys:
      - source: {category: entry, attribute: id}
        name: _entry_id
        mandatory: true
    indexes:
      - name: primary
        fields: [_entry_id]
        unique: true
    retainSingleton: true
  core_entity:
    schema: core
    slice: entity
    privateKeys:
      - source: {category: entry, attribute: id}
        name: _entry_id
        mandatory: true
      - source: {category: entity, attribute: id}
        name: _entity_id
        mandatory: true
`

func TestParse(t *testing.T) {
	store, err := Parse([]byte(testRules))
	require.NoError(t, err)

	sr := store.Schema("core")
	assert.Equal(t, []string{"internal_audit"}, sr.ContentFilter.Exclude)
	require.Len(t, sr.Cardinality, 1)
	assert.Equal(t, "entity", sr.Cardinality[0].Parent.Category)

	filter, ok := sr.SelectionFilters["public"]
	require.True(t, ok)
	assert.Equal(t, "core", filter.Schema)
	assert.Equal(t, []string{"REL"}, filter.Terms[0].Values)

	slice, ok := sr.Slices["entity"]
	require.True(t, ok)
	assert.Equal(t, "entity", slice.Name)
	assert.Equal(t, []string{"entry"}, slice.Extras)

	require.NotNil(t, sr.BlockAttribute)
	assert.Equal(t, "record_id", sr.BlockAttribute.Name)

	def, err := store.Collection("core_entity")
	require.NoError(t, err)
	assert.Equal(t, "entity", def.Slice)
	assert.Len(t, def.PrivateKeys, 2)
}

func TestSchemaAbsentIsEmptyOverlay(t *testing.T) {
	store, err := Parse([]byte(testRules))
	require.NoError(t, err)
	sr := store.Schema("nope")
	assert.Empty(t, sr.Cardinality)
	assert.Empty(t, sr.Slices)
}

func TestCollectionsForSchema(t *testing.T) {
	store, err := Parse([]byte(testRules))
	require.NoError(t, err)
	names := store.CollectionsForSchema("core")
	assert.ElementsMatch(t, []string{"core_entry", "core_entity"}, names)
}

func TestParseUnknownReferences(t *testing.T) {
	_, err := Parse([]byte(`
schemas:
  core: {}
collections:
  c1:
    schema: other
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown schema "other"`)

	_, err = Parse([]byte(`
schemas:
  core: {}
collections:
  c1:
    schema: core
    slice: nope
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown slice "nope"`)

	_, err = Parse([]byte(`
schemas:
  core: {}
collections:
  c1:
    schema: core
    filter: nope
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown selection filter "nope"`)
}

func TestParseRejectsDuplicateExtras(t *testing.T) {
	_, err := Parse([]byte(`
schemas:
  core:
    cardinalityExtras: [citation, citation]
collections: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cardinality extra")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
schemas:
  core:
    nonsense: true
collections: {}
`))
	assert.Error(t, err)
}
