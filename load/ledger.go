// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package load drives the end-to-end batch: it resolves the working
// ID set, splits it into chunks, runs a bounded worker pool that
// builds, transforms, writes, and optionally verifies each record,
// and accumulates per-record outcomes into fail and save lists for
// resumable re-runs.
package load

import (
	"sort"
)

// Outcome classifies the result of processing one record.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFiltered        Outcome = "filtered"
	OutcomeBuildFailed     Outcome = "build-failed"
	OutcomeTransformFailed Outcome = "transform-failed"
	OutcomeWriteFailed     Outcome = "write-failed"
	OutcomeVerifyFailed    Outcome = "verify-failed"
	OutcomeWorkerCrash     Outcome = "worker-crash"
)

// Failure reports whether the outcome counts toward the fail-list.
// Filtered-out records are an outcome, not a failure.
func (o Outcome) Failure() bool {
	switch o {
	case OutcomeBuildFailed, OutcomeTransformFailed, OutcomeWriteFailed,
		OutcomeVerifyFailed, OutcomeWorkerCrash:
		return true
	}
	return false
}

// Entry is one record's outcome.
type Entry struct {
	ID      string
	Outcome Outcome
	Detail  string
}

// Ledger is one worker's append-only outcome log. A ledger is owned
// by exactly one worker while the pool runs; merging happens strictly
// after all workers have exited.
type Ledger struct {
	entries []Entry
}

// Record appends one outcome.
func (l *Ledger) Record(id string, outcome Outcome, err error) {
	entry := Entry{ID: id, Outcome: outcome}
	if err != nil {
		entry.Detail = err.Error()
	}
	l.entries = append(l.entries, entry)
}

// Entries returns the recorded outcomes in append order.
func (l *Ledger) Entries() []Entry {
	return l.entries
}

// Merge concatenates per-worker ledgers and sorts by record ID, so
// final fail/save lists are identical regardless of chunk completion
// order.
func Merge(ledgers []*Ledger) []Entry {
	var merged []Entry
	for _, l := range ledgers {
		if l != nil {
			merged = append(merged, l.entries...)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// FailedIDs returns the IDs of failing entries, deduplicated, in
// sorted order.
func FailedIDs(entries []Entry) []string {
	return selectIDs(entries, func(e Entry) bool { return e.Outcome.Failure() })
}

// AttemptedIDs returns every entry's ID, deduplicated, in sorted
// order.
func AttemptedIDs(entries []Entry) []string {
	return selectIDs(entries, func(e Entry) bool { return true })
}

func selectIDs(entries []Entry, keep func(Entry) bool) []string {
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if !keep(e) || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}
