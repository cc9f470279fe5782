// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package store abstracts the target document store. The load
// orchestrator only sees this interface; the mongo implementation
// backs real runs and the memory implementation backs tests and dry
// runs. Every worker opens its own Store through a Factory, so no
// connection is ever shared across workers.
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/rules"
)

// ErrNotFound is returned by Fetch when no document matches the key.
var ErrNotFound = errors.New("document not found")

// Store is a thin client over one target database.
type Store interface {
	// Insert writes one document.
	Insert(ctx context.Context, collection string, doc document.Target) error
	// Replace upserts the document matching key.
	Replace(ctx context.Context, collection string, key document.Key, doc document.Target) error
	// Purge deletes documents matching key and returns the count.
	// With regex set, string key values match as case-insensitive
	// prefixes.
	Purge(ctx context.Context, collection string, key document.Key, regex bool) (int64, error)
	// Fetch returns the content of the first document matching key.
	Fetch(ctx context.Context, collection string, key document.Key) (map[string]interface{}, error)
	// Distinct returns the distinct values of a field.
	Distinct(ctx context.Context, collection, field string) ([]interface{}, error)

	CreateCollection(ctx context.Context, collection string) error
	DropCollection(ctx context.Context, collection string) error
	EnsureIndexes(ctx context.Context, collection string, indexes []rules.IndexSpec) error

	Close(ctx context.Context) error
}

// Factory opens a fresh store handle. The orchestrator calls it once
// per worker.
type Factory func(ctx context.Context) (Store, error)
