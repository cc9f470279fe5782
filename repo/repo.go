// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package repo supplies source records to the load pipeline. A record
// is the raw, untyped category/attribute form of one repository
// entry; typing and transformation happen downstream in the container
// builder. Providers cover a local file repository, explicit ID list
// files, and a holdings manifest feed.
package repo

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Record is one source repository entry: every category holds rows of
// raw string values. Null markers ("?", ".", empty) survive to the
// container builder untouched.
type Record struct {
	ID         string                         `yaml:"id" json:"id"`
	Categories map[string][]map[string]string `yaml:"categories" json:"categories"`
}

// Provider resolves and fetches source records.
type Provider interface {
	// List returns every available record ID, sorted.
	List(ctx context.Context) ([]string, error)
	// Fetch returns the record for one ID.
	Fetch(ctx context.Context, id string) (*Record, error)
}

// AuxProvider optionally supplies auxiliary merge records (for
// example a validation report keyed by the same ID). Providers that
// have none simply don't implement it.
type AuxProvider interface {
	FetchAux(ctx context.Context, id string) ([]*Record, error)
}

// ReadIDList reads one identifier per line, skipping blanks and
// leading/trailing whitespace. Used for explicit run lists and for
// resuming from a fail-list.
func ReadIDList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening id list")
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading id list")
	}
	return ids, nil
}

// WriteIDList writes one identifier per line. The list is written
// sorted so that reruns over the same outcome produce identical
// files.
func WriteIDList(path string, ids []string) error {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	var sb strings.Builder
	for _, id := range sorted {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return errors.Wrap(err, "writing id list")
	}
	return nil
}
