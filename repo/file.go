// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package repo

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// FileProvider reads records from a directory of YAML files, one per
// record, named <id>.yaml. Auxiliary records live in a sibling
// directory under the same ID with a suffix per aux source, e.g.
// <id>-validation.yaml.
type FileProvider struct {
	Dir    string
	AuxDir string
}

var _ Provider = (*FileProvider)(nil)
var _ AuxProvider = (*FileProvider)(nil)

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "scanning record directory")
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *FileProvider) Fetch(ctx context.Context, id string) (*Record, error) {
	return readRecord(filepath.Join(p.Dir, id+".yaml"))
}

// FetchAux returns every record in AuxDir whose name starts with
// "<id>-". A provider with no AuxDir has no auxiliary records.
func (p *FileProvider) FetchAux(ctx context.Context, id string) ([]*Record, error) {
	if p.AuxDir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(p.AuxDir, id+"-*.yaml"))
	if err != nil {
		return nil, errors.Wrap(err, "scanning aux directory")
	}
	sort.Strings(matches)
	var records []*Record
	for _, path := range matches {
		rec, err := readRecord(path)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func readRecord(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading record")
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrapf(err, "decoding record %s", path)
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	return &rec, nil
}
