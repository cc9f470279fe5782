// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/rules"
)

// Cache stores canonical schema encodings on disk keyed by
// (schema name, dictionary version, validation level). It is an
// explicit object with run lifecycle; nothing here is process-global.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating schema cache directory")
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(name, version string, level Level) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s-%s.json", name, version, level))
}

// Get returns the cached compiled schema, or ok=false on a miss. A
// cached entry whose name, version, or level disagrees with its key
// is treated as a miss.
func (c *Cache) Get(name, version string, level Level) (*Compiled, bool, error) {
	buf, err := os.ReadFile(c.path(name, version, level))
	if os.IsNotExist(err) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrap(err, "reading schema cache entry")
	}
	compiled, err := Decode(buf)
	if err != nil {
		return nil, false, errors.Wrap(err, "parsing schema cache entry")
	}
	if compiled.Name != name || compiled.Version != version || compiled.Level != level {
		return nil, false, nil
	}
	return compiled, true, nil
}

// Put writes the canonical encoding for later runs.
func (c *Cache) Put(compiled *Compiled) error {
	buf, err := compiled.Encode()
	if err != nil {
		return err
	}
	path := c.path(compiled.Name, compiled.Version, compiled.Level)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return errors.Wrap(err, "writing schema cache entry")
	}
	return nil
}

// Invalidate removes every cached entry for a schema name.
func (c *Cache) Invalidate(name string) error {
	matches, err := filepath.Glob(filepath.Join(c.dir, name+"-*.json"))
	if err != nil {
		return errors.Wrap(err, "scanning schema cache")
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return errors.Wrap(err, "removing schema cache entry")
		}
	}
	return nil
}

// CompileCached resolves a schema through the cache. The dictionary
// version keys the entry, so a dictionary change invalidates it; a
// rules change with an unchanged dictionary version requires clearing
// the cache directory (compile-schema --refresh does this per
// schema).
func CompileCached(cache *Cache, dict *dictionary.Dictionary, store *rules.Store, name string, level Level) (*Compiled, error) {
	if cache != nil {
		if compiled, ok, err := cache.Get(name, dict.Version, level); err != nil {
			return nil, err
		} else if ok {
			return compiled, nil
		}
	}
	compiled, err := Compile(dict, store, name, level)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Put(compiled); err != nil {
			return nil, err
		}
	}
	return compiled, nil
}
