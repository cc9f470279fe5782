// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package load

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/logger"
	"github.com/exdb/repoload/repo"
	"github.com/exdb/repoload/store"
)

// Chunk partitions ids into ordered sublists of at most size
// elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// SplitIDList partitions ids into n ordered sublists of near-equal
// size, for distribution across independent invocations.
func SplitIDList(ids []string, n int) [][]string {
	if n <= 1 || len(ids) == 0 {
		if len(ids) == 0 {
			return nil
		}
		return [][]string{ids}
	}
	if n > len(ids) {
		n = len(ids)
	}
	sublists := make([][]string, 0, n)
	base := len(ids) / n
	extra := len(ids) % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		sublists = append(sublists, ids[start:start+size])
		start += size
	}
	return sublists
}

// WriteSublists writes each sublist as <prefix>-NN.txt under dir and
// returns the paths.
func WriteSublists(dir, prefix string, sublists [][]string) ([]string, error) {
	paths := make([]string, 0, len(sublists))
	for i, ids := range sublists {
		path := filepath.Join(dir, fmt.Sprintf("%s-%02d.txt", prefix, i+1))
		if err := repo.WriteIDList(path, ids); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Wipe drops the named collections, or with a key field set, purges
// matching documents instead of dropping.
func Wipe(ctx context.Context, factory store.Factory, collections []string, keyField, keyValue string, regex bool, log logger.Logger) error {
	if log == nil {
		log = logger.NopLogger
	}
	st, err := factory(ctx)
	if err != nil {
		return errors.Wrap(err, "opening store for wipe")
	}
	defer st.Close(ctx)
	for _, name := range collections {
		if keyField == "" {
			if err := st.DropCollection(ctx, name); err != nil {
				return err
			}
			log.Infof("dropped collection %s", name)
			continue
		}
		n, err := st.Purge(ctx, name, document.Key{keyField: keyValue}, regex)
		if err != nil {
			return err
		}
		log.Infof("purged %d documents from %s", n, name)
	}
	return nil
}

// VerifyLoad re-transforms each record and structurally compares the
// stored documents against the freshly produced ones, without
// writing. Mismatches and fetch misses are recorded per record as
// verify failures.
func (l *Loader) VerifyLoad(ctx context.Context, ids []string) (*Result, error) {
	result := &Result{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}
	var err error
	if len(ids) == 0 {
		ids, err = l.provider.List(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "discovering record ids")
		}
	}

	st, err := l.factory(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "opening store for verification")
	}
	defer st.Close(ctx)

	ledger := &Ledger{}
	for _, id := range ids {
		ledger.Record(l.verifyRecord(ctx, st, id))
	}
	result.Entries = Merge([]*Ledger{ledger})
	result.Failed = FailedIDs(result.Entries)
	result.Attempted = AttemptedIDs(result.Entries)
	result.Finished = time.Now().UTC()
	if l.cfg.FailListPath != "" {
		if err := repo.WriteIDList(l.cfg.FailListPath, result.Failed); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (l *Loader) verifyRecord(ctx context.Context, st store.Store, id string) (string, Outcome, error) {
	rec, err := l.provider.Fetch(ctx, id)
	if err != nil {
		return id, OutcomeBuildFailed, err
	}
	var aux []*repo.Record
	if ap, ok := l.provider.(repo.AuxProvider); ok {
		if aux, err = ap.FetchAux(ctx, id); err != nil {
			return id, OutcomeBuildFailed, err
		}
	}
	src, err := l.builder.Build(rec, aux...)
	if err != nil {
		return id, OutcomeBuildFailed, err
	}
	for _, name := range l.names {
		docs, filtered, err := document.Transform(src, l.mappings[name])
		if err != nil {
			return id, OutcomeTransformFailed, err
		}
		if filtered {
			continue
		}
		if err := l.verifyDocs(ctx, st, id, name, docs); err != nil {
			return id, OutcomeVerifyFailed, err
		}
	}
	return id, OutcomeSucceeded, nil
}

// ETLDerived re-reads the loaded collections and emits one derived
// summary document per collection (record and slice key counts) into
// the status collection.
func (l *Loader) ETLDerived(ctx context.Context) error {
	if l.cfg.StatusCollection == "" {
		return errors.New("derived content needs a status collection")
	}
	st, err := l.factory(ctx)
	if err != nil {
		return errors.Wrap(err, "opening store for derived content")
	}
	defer st.Close(ctx)

	runID := uuid.NewString()
	for _, name := range l.names {
		m := l.mappings[name]
		summary := map[string]interface{}{
			"run_id":     runID,
			"collection": name,
			"schema":     l.schema.Name,
			"generated":  time.Now().UTC(),
		}
		for _, pk := range m.PrivateKeys {
			if !pk.Mandatory {
				continue
			}
			values, err := st.Distinct(ctx, name, pk.Name)
			if err != nil {
				return err
			}
			summary["distinct_"+pk.Name] = len(values)
		}
		doc := document.Target{
			Collection: l.cfg.StatusCollection,
			Content:    summary,
			Key:        document.Key{"run_id": runID, "collection": name},
		}
		if err := st.Insert(ctx, l.cfg.StatusCollection, doc); err != nil {
			return err
		}
		l.log.Infof("derived summary for %s written to %s", name, l.cfg.StatusCollection)
	}
	return nil
}
