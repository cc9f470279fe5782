// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/exdb/repoload/container"
	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/rules"
)

// Memory is an in-process Store used by tests and dry runs. Its
// replace and purge semantics match the mongo adapter's contracts.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]map[string]interface{}
	indexes     map[string][]rules.IndexSpec
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]map[string]interface{}),
		indexes:     make(map[string][]rules.IndexSpec),
	}
}

// MemoryFactory returns a Factory handing every caller the same
// shared instance, so a test can inspect what workers wrote.
func MemoryFactory(m *Memory) Factory {
	return func(ctx context.Context) (Store, error) {
		return m, nil
	}
}

func (m *Memory) Insert(ctx context.Context, collection string, doc document.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], copyDoc(doc.Content))
	return nil
}

func (m *Memory) Replace(ctx context.Context, collection string, key document.Key, doc document.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	for i, existing := range docs {
		if matches(existing, key, false) {
			docs[i] = copyDoc(doc.Content)
			return nil
		}
	}
	m.collections[collection] = append(docs, copyDoc(doc.Content))
	return nil
}

func (m *Memory) Purge(ctx context.Context, collection string, key document.Key, regex bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	var kept []map[string]interface{}
	var purged int64
	for _, existing := range docs {
		if matches(existing, key, regex) {
			purged++
			continue
		}
		kept = append(kept, existing)
	}
	m.collections[collection] = kept
	return purged, nil
}

func (m *Memory) Fetch(ctx context.Context, collection string, key document.Key) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.collections[collection] {
		if matches(existing, key, false) {
			return copyDoc(existing), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Distinct(ctx context.Context, collection, field string) ([]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []interface{}
	seen := map[string]bool{}
	for _, existing := range m.collections[collection] {
		v, ok := existing[field]
		if !ok {
			continue
		}
		str := container.ValueString(v)
		if seen[str] {
			continue
		}
		seen[str] = true
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) CreateCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = nil
	}
	return nil
}

func (m *Memory) DropCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	delete(m.indexes, collection)
	return nil
}

func (m *Memory) EnsureIndexes(ctx context.Context, collection string, indexes []rules.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[collection] = indexes
	return nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// Documents returns copies of every document in a collection.
func (m *Memory) Documents(collection string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		out = append(out, copyDoc(doc))
	}
	return out
}

// Indexes returns the index specs last ensured on a collection.
func (m *Memory) Indexes(collection string) []rules.IndexSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexes[collection]
}

// Collections returns the existing collection names.
func (m *Memory) Collections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.collections {
		names = append(names, name)
	}
	return names
}

func matches(doc map[string]interface{}, key document.Key, regex bool) bool {
	if len(key) == 0 {
		return false
	}
	for field, want := range key {
		have, ok := doc[field]
		if !ok {
			return false
		}
		if regex {
			haveStr, wantStr := container.ValueString(have), container.ValueString(want)
			if !strings.HasPrefix(strings.ToLower(haveStr), strings.ToLower(wantStr)) {
				return false
			}
			continue
		}
		if have != want {
			return false
		}
	}
	return true
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case map[string]interface{}:
			out[k] = copyDoc(t)
		case []interface{}:
			cp := make([]interface{}, len(t))
			for i, el := range t {
				if obj, ok := el.(map[string]interface{}); ok {
					cp[i] = copyDoc(obj)
				} else {
					cp[i] = el
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
