// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package container

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/logger"
	"github.com/exdb/repoload/repo"
	"github.com/exdb/repoload/schema"
)

// BuildError reports a per-record container build failure. It is
// recorded against that one record and never aborts the chunk.
type BuildError struct {
	RecordID string
	Item     string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building container for record %s: %s: %v", e.RecordID, e.Item, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// nullValue reports the dictionary's null markers.
func nullValue(raw string) bool {
	return raw == "" || raw == "?" || raw == "."
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// defaultDelimiter splits iterable values whose attribute declares
// none.
const defaultDelimiter = ","

// Builder turns raw records into typed Sources under one compiled
// schema. A Builder is immutable after construction and safe to share
// across workers.
type Builder struct {
	schema   *schema.Compiled
	strip    map[dictionary.ItemRef]bool
	decode   map[string]bool
	override map[string]bool
	log      logger.Logger
}

func NewBuilder(compiled *schema.Compiled, log logger.Logger) *Builder {
	if log == nil {
		log = logger.NopLogger
	}
	b := &Builder{
		schema:   compiled,
		strip:    make(map[dictionary.ItemRef]bool, len(compiled.Transforms.StripWhitespace)),
		decode:   make(map[string]bool, len(compiled.Transforms.DecodeCharRefs)),
		override: make(map[string]bool, len(compiled.AuxOverrides)),
		log:      log,
	}
	for _, ref := range compiled.Transforms.StripWhitespace {
		b.strip[ref] = true
	}
	for _, name := range compiled.Transforms.DecodeCharRefs {
		b.decode[name] = true
	}
	for _, name := range compiled.AuxOverrides {
		b.override[name] = true
	}
	return b
}

// Build types the primary record and merges any auxiliary records
// into the same namespace. A category name collision between primary
// and auxiliary content is an error unless the schema designates the
// auxiliary category as an override. Inputs are never mutated.
func (b *Builder) Build(primary *repo.Record, aux ...*repo.Record) (*Source, error) {
	src := &Source{
		RecordID:   primary.ID,
		Categories: make(map[string][]Row),
	}
	for name, def := range b.schema.Categories {
		rows, ok := primary.Categories[name]
		if !ok {
			continue
		}
		typed, err := b.buildCategory(primary.ID, &def, rows)
		if err != nil {
			return nil, err
		}
		src.Categories[name] = typed
	}

	for _, rec := range aux {
		for name, def := range b.schema.Categories {
			rows, ok := rec.Categories[name]
			if !ok {
				continue
			}
			if _, present := src.Categories[name]; present && !b.override[name] {
				return nil, &BuildError{
					RecordID: primary.ID,
					Item:     name,
					Err:      errors.New("auxiliary category collides with primary content and is not an override"),
				}
			}
			typed, err := b.buildCategory(primary.ID, &def, rows)
			if err != nil {
				return nil, err
			}
			src.Categories[name] = typed
		}
	}
	return src, nil
}

func (b *Builder) buildCategory(recordID string, def *schema.CategoryDef, rows []map[string]string) ([]Row, error) {
	typed := make([]Row, 0, len(rows))
	for _, raw := range rows {
		row := make(Row, len(def.Attributes))
		for i := range def.Attributes {
			at := &def.Attributes[i]
			if at.Synthetic {
				row[at.Name] = recordID
				continue
			}
			rawVal, ok := raw[at.Name]
			if !ok || nullValue(rawVal) {
				continue
			}
			val, err := b.convert(def.Name, at, rawVal)
			if err != nil {
				if at.Key {
					return nil, &BuildError{
						RecordID: recordID,
						Item:     def.Name + "." + at.Name,
						Err:      err,
					}
				}
				b.log.Warnf("record %s: %s.%s: %v; coerced to null", recordID, def.Name, at.Name, err)
				continue
			}
			if val != nil {
				row[at.Name] = val
			}
		}
		typed = append(typed, row)
	}
	return typed, nil
}

// convert applies the item transforms in fixed order, then splits
// iterables, then types the value.
func (b *Builder) convert(category string, at *schema.AttributeDef, raw string) (interface{}, error) {
	if b.strip[dictionary.ItemRef{Category: category, Attribute: at.Name}] {
		raw = whitespaceRE.ReplaceAllString(raw, "")
	}
	if b.decode[category] {
		raw = html.UnescapeString(raw)
	}
	if nullValue(raw) {
		return nil, nil
	}

	if at.Type.Iterable() {
		delim := at.Delimiter
		if delim == "" {
			delim = defaultDelimiter
		}
		parts := strings.Split(raw, delim)
		seq := make([]interface{}, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if nullValue(part) {
				seq = append(seq, nil)
				continue
			}
			el, err := convertScalar(at.Type.Element(), part)
			if err != nil {
				if at.Key {
					return nil, err
				}
				b.log.Warnf("%s.%s element %q: %v; coerced to null", category, at.Name, part, err)
				seq = append(seq, nil)
				continue
			}
			seq = append(seq, el)
		}
		return seq, nil
	}
	return convertScalar(at.Type, raw)
}

func convertScalar(t dictionary.TypeCode, raw string) (interface{}, error) {
	switch t {
	case dictionary.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Errorf("malformed integer %q", raw)
		}
		return n, nil
	case dictionary.TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Errorf("malformed float %q", raw)
		}
		return f, nil
	case dictionary.TypeDate:
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, errors.Errorf("malformed date %q", raw)
		}
		return ts, nil
	case dictionary.TypeDateTime:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, nil
			}
		}
		return nil, errors.Errorf("malformed datetime %q", raw)
	default:
		return raw, nil
	}
}
