// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package document

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// Prune drops designated large, low-value fields from a document
// until its encoded size fits the byte limit, largest field first.
// Required fields are never touched; if the document still exceeds
// the limit with every prunable field gone, Prune reports an error
// and the orchestrator records the document as failed.
func Prune(t *Target, prunable []string, limitBytes int) ([]string, error) {
	if limitBytes <= 0 {
		return nil, nil
	}
	size, err := encodedSize(t.Content)
	if err != nil {
		return nil, err
	}
	if size <= limitBytes {
		return nil, nil
	}

	type candidate struct {
		name string
		size int
	}
	var candidates []candidate
	for _, name := range prunable {
		v, ok := t.Content[name]
		if !ok {
			continue
		}
		fieldSize, err := encodedSize(v)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{name: name, size: fieldSize})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].size > candidates[j].size
	})

	var dropped []string
	for _, c := range candidates {
		delete(t.Content, c.name)
		dropped = append(dropped, c.name)
		size -= c.size
		if size <= limitBytes {
			return dropped, nil
		}
	}
	// recompute once; the running estimate ignores separators
	size, err = encodedSize(t.Content)
	if err != nil {
		return dropped, err
	}
	if size > limitBytes {
		return dropped, errors.Errorf("document still %d bytes after pruning %d fields (limit %d)", size, len(dropped), limitBytes)
	}
	return dropped, nil
}

func encodedSize(v interface{}) (int, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return 0, errors.Wrap(err, "sizing document")
	}
	return len(buf), nil
}
