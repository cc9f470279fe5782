// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/logger"
	"github.com/exdb/repoload/repo"
	"github.com/exdb/repoload/rules"
	"github.com/exdb/repoload/schema"
)

func buildSchema(t *testing.T, ruleYAML string) *schema.Compiled {
	t.Helper()
	d := dictionary.New("1.0")
	require.NoError(t, d.AddCategory(dictionary.Category{
		Name: "entry",
		Attributes: []dictionary.Attribute{
			{Name: "id", Type: dictionary.TypeString},
			{Name: "title", Type: dictionary.TypeString, Nullable: true},
			{Name: "deposit_date", Type: dictionary.TypeDate, Nullable: true},
			{Name: "year", Type: dictionary.TypeInteger, Nullable: true},
			{Name: "keywords", Type: dictionary.TypeIterableString, Nullable: true, Delimiter: ";"},
			{Name: "weights", Type: dictionary.TypeIterableFloat, Nullable: true, Delimiter: ","},
		},
	}))
	require.NoError(t, d.AddCategory(dictionary.Category{
		Name: "entity",
		Attributes: []dictionary.Attribute{
			{Name: "id", Type: dictionary.TypeInteger},
			{Name: "type", Type: dictionary.TypeString, Nullable: true},
		},
	}))
	require.NoError(t, d.AddCategory(dictionary.Category{
		Name: "validation_summary",
		Attributes: []dictionary.Attribute{
			{Name: "score", Type: dictionary.TypeFloat, Nullable: true},
		},
	}))
	store, err := rules.Parse([]byte(ruleYAML))
	require.NoError(t, err)
	compiled, err := schema.Compile(d, store, "core", schema.LevelFull)
	require.NoError(t, err)
	return compiled
}

const baseRules = `
schemas:
  core:
    cardinality:
      - category: entity
        parent: {category: entity, attribute: id}
    transforms:
      stripWhitespace:
        - {category: entry, attribute: id}
      decodeCharRefs: [entry]
    auxOverrides: [validation_summary]
collections: {}
`

func TestBuildTypesAndNulls(t *testing.T) {
	compiled := buildSchema(t, baseRules)
	b := NewBuilder(compiled, logger.NewLogfLogger(t))

	src, err := b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry": {{
				"id":           " 1A BC ",
				"title":        "Alpha &amp; beta",
				"deposit_date": "2020-05-17",
				"year":         "2020",
			}},
			"entity": {
				{"id": "1", "type": "polymer"},
				{"id": "2", "type": "?"},
			},
		},
	})
	require.NoError(t, err)

	row := src.Rows("entry")[0]
	assert.Equal(t, "1ABC", row["id"], "whitespace stripped before typing")
	assert.Equal(t, "Alpha & beta", row["title"], "character references decoded")
	assert.Equal(t, int64(2020), row["year"])
	assert.Equal(t, time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC), row["deposit_date"])

	rows := src.Rows("entity")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	_, ok := rows[1]["type"]
	assert.False(t, ok, "null marker values are omitted")
}

func TestBuildIterableSplit(t *testing.T) {
	compiled := buildSchema(t, baseRules)
	b := NewBuilder(compiled, logger.NewLogfLogger(t))

	src, err := b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry": {{
				"id":       "1ABC",
				"keywords": "A;B;C",
				"weights":  "1.5, 2.5, ?",
			}},
		},
	})
	require.NoError(t, err)

	row := src.Rows("entry")[0]
	assert.Equal(t, []interface{}{"A", "B", "C"}, row["keywords"])
	assert.Equal(t, []interface{}{1.5, 2.5, nil}, row["weights"], "null elements survive as nil")

	// a bare scalar still becomes a single-element sequence
	src, err = b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry": {{"id": "1ABC", "keywords": "A"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"A"}, src.Rows("entry")[0]["keywords"])
}

func TestBuildMalformedValues(t *testing.T) {
	compiled := buildSchema(t, baseRules)
	b := NewBuilder(compiled, logger.NewLogfLogger(t))

	// non-key malformed value coerces to null
	src, err := b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry": {{"id": "1ABC", "year": "twenty-twenty"}},
		},
	})
	require.NoError(t, err)
	_, ok := src.Rows("entry")[0]["year"]
	assert.False(t, ok)

	// malformed key value is fatal for the record
	_, err = b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entity": {{"id": "not-a-number"}},
		},
	})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "1ABC", buildErr.RecordID)
	assert.Equal(t, "entity.id", buildErr.Item)
}

func TestBuildBlockAttribute(t *testing.T) {
	compiled := buildSchema(t, `
schemas:
  core:
    blockAttribute:
      name: record_id
      type: string
collections: {}
`)
	b := NewBuilder(compiled, logger.NewLogfLogger(t))
	src, err := b.Build(&repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entity": {{"id": "1"}, {"id": "2"}},
		},
	})
	require.NoError(t, err)
	for _, row := range src.Rows("entity") {
		assert.Equal(t, "1ABC", row["record_id"])
	}
}

func TestBuildAuxMerge(t *testing.T) {
	compiled := buildSchema(t, baseRules)
	b := NewBuilder(compiled, logger.NewLogfLogger(t))

	primary := &repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry":              {{"id": "1ABC"}},
			"validation_summary": {{"score": "0.10"}},
		},
	}
	aux := &repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"validation_summary": {{"score": "0.93"}},
		},
	}

	src, err := b.Build(primary, aux)
	require.NoError(t, err)
	assert.Equal(t, 0.93, src.Rows("validation_summary")[0]["score"], "override category replaces primary")

	// colliding non-override category is an error
	aux2 := &repo.Record{
		ID: "1ABC",
		Categories: map[string][]map[string]string{
			"entry": {{"id": "1ABC"}},
		},
	}
	_, err = b.Build(primary, aux2)
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "entry", buildErr.Item)

	// inputs are not mutated
	assert.Equal(t, "0.10", primary.Categories["validation_summary"][0]["score"])
}

func TestDistinctAndValues(t *testing.T) {
	src := &Source{
		RecordID: "1ABC",
		Categories: map[string][]Row{
			"entity": {
				{"id": "1", "tags": []interface{}{"x", nil, "y"}},
				{"id": "2"},
				{"id": "1"},
			},
		},
	}
	ref := dictionary.ItemRef{Category: "entity", Attribute: "id"}
	assert.Equal(t, []string{"1", "2"}, src.DistinctValues(ref))
	assert.Equal(t, []string{"x", "y"},
		src.Values(dictionary.ItemRef{Category: "entity", Attribute: "tags"}))
}
