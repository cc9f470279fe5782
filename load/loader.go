// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/exdb/repoload/container"
	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/logger"
	"github.com/exdb/repoload/repo"
	"github.com/exdb/repoload/schema"
	"github.com/exdb/repoload/store"
)

// LoadType selects the write semantics of a run.
type LoadType string

const (
	// LoadFull assumes the target collections are being populated
	// fresh: plain inserts, no pre-existing-document handling.
	LoadFull LoadType = "full"
	// LoadReplace purges existing documents under each record's keys
	// before inserting, so re-running a chunk is idempotent.
	LoadReplace LoadType = "replace"
)

// Config bounds one run.
type Config struct {
	LoadType      LoadType
	NumProc       int
	ChunkSize     int
	FileLimit     int
	ReadBackCheck bool
	RegexPurge    bool
	PruneLimitMB  int
	// MaxFailRate is the tolerated fraction of failed records before
	// the run reports failure. Zero tolerates none.
	MaxFailRate   float64
	RecordTimeout time.Duration

	FailListPath string
	SaveListPath string

	// StatusCollection receives one run-status document per run.
	// Empty disables bookkeeping.
	StatusCollection string
}

func (c Config) withDefaults() Config {
	if c.LoadType == "" {
		c.LoadType = LoadFull
	}
	if c.NumProc <= 0 {
		c.NumProc = 2
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 10
	}
	return c
}

// WriteError is a per-record target store failure. Recorded, never
// aborts the chunk or the run.
type WriteError struct {
	RecordID   string
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing record %s to %s: %v", e.RecordID, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerifyError reports a read-back mismatch, surfaced distinctly from
// write failures.
type VerifyError struct {
	RecordID   string
	Collection string
	Detail     string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("read-back check for record %s in %s: %s", e.RecordID, e.Collection, e.Detail)
}

// Loader runs batches against one compiled schema. The compiled
// schema and mappings are immutable and shared by every worker; each
// worker opens its own store handle through the factory.
type Loader struct {
	cfg      Config
	schema   *schema.Compiled
	mappings map[string]*document.CollectionMapping
	names    []string // mapping names, sorted
	builder  *container.Builder
	provider repo.Provider
	factory  store.Factory
	log      logger.Logger
}

func New(cfg Config, compiled *schema.Compiled, mappings map[string]*document.CollectionMapping, provider repo.Provider, factory store.Factory, log logger.Logger) *Loader {
	if log == nil {
		log = logger.NopLogger
	}
	names := maps.Keys(mappings)
	slices.Sort(names)
	return &Loader{
		cfg:      cfg.withDefaults(),
		schema:   compiled,
		mappings: mappings,
		names:    names,
		builder:  container.NewBuilder(compiled, log),
		provider: provider,
		factory:  factory,
		log:      log,
	}
}

// Result summarizes one run.
type Result struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Entries   []Entry
	Failed    []string
	Attempted []string
}

// FailRate is failed over attempted; zero when nothing was attempted.
func (r *Result) FailRate() float64 {
	if len(r.Attempted) == 0 {
		return 0
	}
	return float64(len(r.Failed)) / float64(len(r.Attempted))
}

// Succeeded reports whether the run stayed within the configured
// failure tolerance.
func (r *Result) Succeeded(maxFailRate float64) bool {
	if len(r.Failed) == 0 {
		return true
	}
	return r.FailRate() <= maxFailRate
}

// Run executes one batch. A non-empty explicit ID list overrides
// discovery. The run always completes and leaves fail/save lists; a
// cancelled context stops dispatching new chunks while in-flight
// chunks finish and flush their ledgers.
func (l *Loader) Run(ctx context.Context, ids []string) (*Result, error) {
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
	if l.cfg.FileLimit > 0 && len(ids) > l.cfg.FileLimit {
		ids = ids[:l.cfg.FileLimit]
	}
	chunks := Chunk(ids, l.cfg.ChunkSize)
	l.log.Infof("run %s: %d records in %d chunks, %d workers, %s load",
		result.RunID, len(ids), len(chunks), l.cfg.NumProc, l.cfg.LoadType)

	if err := l.prepare(ctx); err != nil {
		return nil, err
	}

	ledgers := make([]*Ledger, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.NumProc)
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			l.log.Warnf("run %s: dispatch stopped after %d chunks: %v", result.RunID, i, gctx.Err())
			break
		}
		i, chunk := i, chunk
		ledgers[i] = &Ledger{}
		g.Go(func() error {
			l.runChunk(gctx, chunk, ledgers[i])
			return nil
		})
	}
	// workers report through their ledgers, never through errors
	_ = g.Wait()

	result.Entries = Merge(ledgers)
	result.Failed = FailedIDs(result.Entries)
	result.Attempted = AttemptedIDs(result.Entries)
	result.Finished = time.Now().UTC()

	if l.cfg.FailListPath != "" {
		if err := repo.WriteIDList(l.cfg.FailListPath, result.Failed); err != nil {
			return result, err
		}
	}
	if l.cfg.SaveListPath != "" {
		if err := repo.WriteIDList(l.cfg.SaveListPath, result.Attempted); err != nil {
			return result, err
		}
	}
	if err := l.writeStatus(ctx, result); err != nil {
		l.log.Errorf("run %s: recording load status: %v", result.RunID, err)
	}
	l.log.Infof("run %s: attempted %d, failed %d (rate %.3f)",
		result.RunID, len(result.Attempted), len(result.Failed), result.FailRate())
	return result, nil
}

// prepare creates target collections and their indexes once before
// workers start.
func (l *Loader) prepare(ctx context.Context) error {
	st, err := l.factory(ctx)
	if err != nil {
		return errors.Wrap(err, "opening store for run preparation")
	}
	defer st.Close(ctx)
	for _, name := range l.names {
		if err := st.CreateCollection(ctx, name); err != nil {
			return err
		}
		if err := st.EnsureIndexes(ctx, name, l.mappings[name].Indexes); err != nil {
			return err
		}
	}
	return nil
}

// runChunk processes one chunk serially on one worker. A panic is
// contained here: every unprocessed record of the chunk is marked
// crashed and sibling chunks continue untouched.
func (l *Loader) runChunk(ctx context.Context, ids []string, ledger *Ledger) {
	processed := 0
	defer func() {
		if r := recover(); r != nil && processed < len(ids) {
			l.log.Errorf("worker crashed processing record %s: %v", ids[processed], r)
			for _, id := range ids[processed:] {
				ledger.Record(id, OutcomeWorkerCrash, fmt.Errorf("worker panic: %v", r))
			}
		}
	}()

	st, err := l.factory(ctx)
	if err != nil {
		for _, id := range ids {
			ledger.Record(id, OutcomeWriteFailed, errors.Wrap(err, "opening store"))
		}
		return
	}
	defer st.Close(context.Background())

	for ; processed < len(ids); processed++ {
		id := ids[processed]
		outcome, err := l.processRecord(ctx, st, id)
		ledger.Record(id, outcome, err)
	}
}

// processRecord runs one record through build, transform, write, and
// verify, returning its outcome.
func (l *Loader) processRecord(ctx context.Context, st store.Store, id string) (Outcome, error) {
	rec, err := l.provider.Fetch(ctx, id)
	if err != nil {
		return OutcomeBuildFailed, err
	}
	var aux []*repo.Record
	if ap, ok := l.provider.(repo.AuxProvider); ok {
		if aux, err = ap.FetchAux(ctx, id); err != nil {
			return OutcomeBuildFailed, err
		}
	}
	src, err := l.builder.Build(rec, aux...)
	if err != nil {
		return OutcomeBuildFailed, err
	}

	written := false
	filtered := false
	for _, name := range l.names {
		m := l.mappings[name]
		docs, filteredOut, err := document.Transform(src, m)
		if err != nil {
			return OutcomeTransformFailed, err
		}
		if filteredOut {
			filtered = true
			continue
		}
		if len(docs) == 0 {
			continue
		}
		if l.cfg.PruneLimitMB > 0 {
			for i := range docs {
				dropped, err := document.Prune(&docs[i], m.Prunable, l.cfg.PruneLimitMB<<20)
				if err != nil {
					return OutcomeWriteFailed, &WriteError{RecordID: id, Collection: name, Err: err}
				}
				if len(dropped) > 0 {
					l.log.Warnf("record %s: pruned %v from %s to fit %dMB", id, dropped, name, l.cfg.PruneLimitMB)
				}
			}
		}
		if err := l.writeDocs(ctx, st, id, m, docs); err != nil {
			return OutcomeWriteFailed, err
		}
		if l.cfg.ReadBackCheck {
			if err := l.verifyDocs(ctx, st, id, name, docs); err != nil {
				return OutcomeVerifyFailed, err
			}
		}
		written = true
	}
	if !written && filtered {
		return OutcomeFiltered, nil
	}
	return OutcomeSucceeded, nil
}

// writeDocs writes one record's documents to one collection. Replace
// loads purge under the record-scoped key first, so stale slice
// documents from an earlier load disappear and re-running is
// idempotent.
func (l *Loader) writeDocs(ctx context.Context, st store.Store, id string, m *document.CollectionMapping, docs []document.Target) error {
	perDocPurge := false
	if l.cfg.LoadType == LoadReplace {
		purgeKey := recordScopedKey(m, &docs[0])
		perDocPurge = purgeKey == nil
		if purgeKey != nil {
			if err := l.timed(ctx, func(ctx context.Context) error {
				_, err := st.Purge(ctx, m.Collection, purgeKey, l.cfg.RegexPurge)
				return err
			}); err != nil {
				return &WriteError{RecordID: id, Collection: m.Collection, Err: err}
			}
		}
	}
	for i := range docs {
		doc := docs[i]
		err := l.timed(ctx, func(ctx context.Context) error {
			if l.cfg.LoadType == LoadReplace && perDocPurge && len(doc.Key) > 0 {
				if _, err := st.Purge(ctx, m.Collection, doc.Key, l.cfg.RegexPurge); err != nil {
					return err
				}
			}
			return st.Insert(ctx, m.Collection, doc)
		})
		if err != nil {
			return &WriteError{RecordID: id, Collection: m.Collection, Err: err}
		}
	}
	return nil
}

// verifyDocs re-fetches each written document and compares it
// structurally to what was written.
func (l *Loader) verifyDocs(ctx context.Context, st store.Store, id, collection string, docs []document.Target) error {
	for i := range docs {
		doc := docs[i]
		if len(doc.Key) == 0 {
			continue
		}
		var fetched map[string]interface{}
		err := l.timed(ctx, func(ctx context.Context) error {
			var err error
			fetched, err = st.Fetch(ctx, collection, doc.Key)
			return err
		})
		if err != nil {
			return &VerifyError{RecordID: id, Collection: collection, Detail: err.Error()}
		}
		same, err := structurallyEqual(doc.Content, fetched)
		if err != nil {
			return &VerifyError{RecordID: id, Collection: collection, Detail: err.Error()}
		}
		if !same {
			return &VerifyError{RecordID: id, Collection: collection, Detail: "stored document differs from written document"}
		}
	}
	return nil
}

// timed applies the per-record operation timeout when configured.
func (l *Loader) timed(ctx context.Context, op func(context.Context) error) error {
	if l.cfg.RecordTimeout <= 0 {
		return op(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, l.cfg.RecordTimeout)
	defer cancel()
	return op(tctx)
}

// writeStatus appends the run-status bookkeeping document.
func (l *Loader) writeStatus(ctx context.Context, result *Result) error {
	if l.cfg.StatusCollection == "" {
		return nil
	}
	st, err := l.factory(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)
	doc := document.Target{
		Collection: l.cfg.StatusCollection,
		Content: map[string]interface{}{
			"run_id":    result.RunID,
			"schema":    l.schema.Name,
			"version":   l.schema.Version,
			"load_type": string(l.cfg.LoadType),
			"started":   result.Started,
			"finished":  result.Finished,
			"attempted": len(result.Attempted),
			"failed":    len(result.Failed),
			"success":   result.Succeeded(l.cfg.MaxFailRate),
		},
		Key: document.Key{"run_id": result.RunID},
	}
	return st.Insert(ctx, l.cfg.StatusCollection, doc)
}

// recordScopedKey extracts the key fields shared by every document
// of one record in a collection: the mandatory private keys sourced
// outside the slice-level categories. Nil when the collection has no
// record-scoped key.
func recordScopedKey(m *document.CollectionMapping, doc *document.Target) document.Key {
	sliceLevel := map[string]bool{}
	for _, cat := range m.SliceCategories {
		sliceLevel[cat] = true
	}
	key := document.Key{}
	for _, pk := range m.PrivateKeys {
		if !pk.Mandatory || sliceLevel[pk.Source.Category] {
			continue
		}
		v, ok := doc.Content[pk.Name]
		if !ok {
			continue
		}
		key[pk.Name] = v
	}
	if len(key) == 0 {
		return nil
	}
	return key
}

// structurallyEqual compares two documents through their canonical
// JSON forms, tolerating representation drift across the store round
// trip. Timestamps are reduced to UTC instants first: the same moment
// rendered in two zones is still the same value.
func structurallyEqual(a, b map[string]interface{}) (bool, error) {
	ab, err := json.Marshal(canonicalTimes(a))
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(canonicalTimes(b))
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func canonicalTimes(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, el := range t {
			out[k] = canonicalTimes(el)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = canonicalTimes(el)
		}
		return out
	default:
		return v
	}
}
