// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package dictionary

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Provider supplies a parsed, merged Dictionary. Implementations own
// retrieval (files, object storage, a registry service); the schema
// compiler only ever sees the model.
type Provider interface {
	Dictionary() (*Dictionary, error)
}

// fileDocument is the YAML shape of one dictionary source document.
type fileDocument struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

// FileProvider reads one or more YAML dictionary documents and merges
// them in order. Later documents may extend earlier categories but
// may not redeclare an attribute with a different type.
type FileProvider struct {
	Paths []string
}

func NewFileProvider(paths ...string) *FileProvider {
	return &FileProvider{Paths: paths}
}

func (p *FileProvider) Dictionary() (*Dictionary, error) {
	if len(p.Paths) == 0 {
		return nil, errors.New("no dictionary source paths configured")
	}
	var dict *Dictionary
	for _, path := range p.Paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading dictionary source")
		}
		var doc fileDocument
		if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "decoding dictionary source %s", path)
		}
		if dict == nil {
			dict = New(doc.Version)
		}
		for _, cat := range doc.Categories {
			if err := dict.AddCategory(cat); err != nil {
				return nil, errors.Wrapf(err, "loading dictionary source %s", path)
			}
		}
	}
	if err := dict.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating merged dictionary")
	}
	return dict, nil
}
