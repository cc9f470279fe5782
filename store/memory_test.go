// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/rules"
)

func doc(id string, fields map[string]interface{}) document.Target {
	content := map[string]interface{}{"_entry_id": id}
	for k, v := range fields {
		content[k] = v
	}
	return document.Target{
		Collection: "core_entry",
		Content:    content,
		Key:        document.Key{"_entry_id": id},
	}
}

func TestMemoryInsertFetch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Insert(ctx, "core_entry", doc("1ABC", map[string]interface{}{"title": "one"})))
	require.NoError(t, m.Insert(ctx, "core_entry", doc("2XYZ", nil)))

	got, err := m.Fetch(ctx, "core_entry", document.Key{"_entry_id": "1ABC"})
	require.NoError(t, err)
	assert.Equal(t, "one", got["title"])

	_, err = m.Fetch(ctx, "core_entry", document.Key{"_entry_id": "MISSING"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReplaceUpserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := document.Key{"_entry_id": "1ABC"}

	require.NoError(t, m.Replace(ctx, "core_entry", key, doc("1ABC", map[string]interface{}{"title": "v1"})))
	assert.Equal(t, 1, m.Count("core_entry"))

	require.NoError(t, m.Replace(ctx, "core_entry", key, doc("1ABC", map[string]interface{}{"title": "v2"})))
	assert.Equal(t, 1, m.Count("core_entry"), "replace of the same key does not grow the collection")

	got, err := m.Fetch(ctx, "core_entry", key)
	require.NoError(t, err)
	assert.Equal(t, "v2", got["title"])
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Insert(ctx, "core_entry", doc("1ABC", nil)))
	require.NoError(t, m.Insert(ctx, "core_entry", doc("1abcX", nil)))
	require.NoError(t, m.Insert(ctx, "core_entry", doc("2XYZ", nil)))

	n, err := m.Purge(ctx, "core_entry", document.Key{"_entry_id": "1ABC"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// regex purge matches case-insensitive prefixes
	require.NoError(t, m.Insert(ctx, "core_entry", doc("1ABC", nil)))
	n, err = m.Purge(ctx, "core_entry", document.Key{"_entry_id": "1ABC"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, m.Count("core_entry"))

	// an empty key never matches anything
	n, err = m.Purge(ctx, "core_entry", document.Key{}, true)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryDistinct(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Insert(ctx, "core_entity", doc("1ABC", map[string]interface{}{"kind": "a"})))
	require.NoError(t, m.Insert(ctx, "core_entity", doc("1ABC", map[string]interface{}{"kind": "b"})))
	require.NoError(t, m.Insert(ctx, "core_entity", doc("2XYZ", map[string]interface{}{"kind": "a"})))

	values, err := m.Distinct(ctx, "core_entity", "_entry_id")
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"1ABC", "2XYZ"}, values)
}

func TestMemoryCollectionsAndIndexes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateCollection(ctx, "core_entry"))
	require.NoError(t, m.EnsureIndexes(ctx, "core_entry", []rules.IndexSpec{
		{Name: "primary", Fields: []string{"_entry_id"}, Unique: true},
	}))
	assert.Len(t, m.Indexes("core_entry"), 1)
	assert.Equal(t, []string{"core_entry"}, m.Collections())

	require.NoError(t, m.DropCollection(ctx, "core_entry"))
	assert.Empty(t, m.Collections())
	assert.Empty(t, m.Indexes("core_entry"))
}

func TestMemoryFetchCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Insert(ctx, "core_entry", doc("1ABC", map[string]interface{}{
		"entry": map[string]interface{}{"title": "one"},
	})))
	got, err := m.Fetch(ctx, "core_entry", document.Key{"_entry_id": "1ABC"})
	require.NoError(t, err)
	got["entry"].(map[string]interface{})["title"] = "mutated"

	again, err := m.Fetch(ctx, "core_entry", document.Key{"_entry_id": "1ABC"})
	require.NoError(t, err)
	assert.Equal(t, "one", again["entry"].(map[string]interface{})["title"])
}
