// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/dictionary"
	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/logger"
	"github.com/exdb/repoload/repo"
	"github.com/exdb/repoload/rules"
	"github.com/exdb/repoload/schema"
	"github.com/exdb/repoload/store"
)

// UsageError wraps errors caused by bad command arguments, so the
// command layer can print usage instead of a stack trace.
var UsageError = errors.New("usage error")

// CmdIO holds standard unix inputs and outputs.
type CmdIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	logger logger.Logger
}

// NewCmdIO returns a new instance of CmdIO with inputs and outputs set
// to the arguments.
func NewCmdIO(stdin io.Reader, stdout, stderr io.Writer) *CmdIO {
	return &CmdIO{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		logger: logger.NewStandardLogger(stderr),
	}
}

func (c *CmdIO) Logger() logger.Logger {
	return c.logger
}

// SetupLogger routes the command's log output to path through a
// reopenable file writer. SIGHUP reopens the file, so external log
// rotation works on long runs. An empty path keeps the stderr logger.
func (c *CmdIO) SetupLogger(path string) error {
	if path == "" {
		return nil
	}
	fw, err := logger.NewFileWriter(path)
	if err != nil {
		return errors.Wrap(err, "opening log file")
	}
	c.logger = logger.NewStandardLogger(fw)
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := fw.Reopen(); err != nil {
				c.logger.Errorf("reopening log file %s: %v", path, err)
			}
		}
	}()
	return nil
}

// SchemaOptions name the inputs every schema-aware command shares:
// the dictionary sources, the rule file, and the compile target.
type SchemaOptions struct {
	// Dictionary source files, merged in order.
	Dictionaries []string

	// Path of the rule file.
	Rules string

	// Name of the schema to compile.
	Schema string

	// Content level, "full" or "min".
	Level string

	// Directory for compiled schema caching. Empty disables the cache.
	CacheDir string
}

// CompileSchema loads the dictionary and rules and compiles the named
// schema, going through the cache directory when one is configured.
func (o *SchemaOptions) CompileSchema() (*schema.Compiled, *rules.Store, error) {
	if len(o.Dictionaries) == 0 {
		return nil, nil, errors.Wrap(UsageError, "at least one dictionary file is required")
	}
	if o.Rules == "" {
		return nil, nil, errors.Wrap(UsageError, "a rule file is required")
	}
	if o.Schema == "" {
		return nil, nil, errors.Wrap(UsageError, "a schema name is required")
	}
	level := schema.Level(o.Level)
	if level == "" {
		level = schema.LevelFull
	}
	if level != schema.LevelFull && level != schema.LevelMin {
		return nil, nil, errors.Wrapf(UsageError, "unknown content level %q", o.Level)
	}

	provider := &dictionary.FileProvider{Paths: o.Dictionaries}
	dict, err := provider.Dictionary()
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading dictionary")
	}
	ruleStore, err := rules.Load(o.Rules)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading rules")
	}

	var compiled *schema.Compiled
	if o.CacheDir != "" {
		cache, err := schema.NewCache(o.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		compiled, err = schema.CompileCached(cache, dict, ruleStore, o.Schema, level)
		if err != nil {
			return nil, nil, err
		}
	} else {
		compiled, err = schema.Compile(dict, ruleStore, o.Schema, level)
		if err != nil {
			return nil, nil, err
		}
	}
	return compiled, ruleStore, nil
}

// StoreOptions name the document store a command writes to. An empty
// URI selects an in-process memory store, for dry runs.
type StoreOptions struct {
	MongoURI      string
	MongoDatabase string
}

func (o *StoreOptions) Factory() store.Factory {
	if o.MongoURI == "" {
		return store.MemoryFactory(store.NewMemory())
	}
	return store.MongoFactory(store.MongoConfig{
		URI:      o.MongoURI,
		Database: o.MongoDatabase,
	})
}

// RepoOptions name the record repository a command reads from.
type RepoOptions struct {
	// Directory of record files.
	Dir string

	// Optional directory of auxiliary record files.
	AuxDir string

	// Optional manifest URL for ID discovery.
	ManifestURL string

	// Optional explicit ID list file. Overrides discovery.
	IDList string
}

func (o *RepoOptions) Provider() (repo.Provider, error) {
	if o.Dir == "" {
		return nil, errors.Wrap(UsageError, "a record repository directory is required")
	}
	return &repo.FileProvider{Dir: o.Dir, AuxDir: o.AuxDir}, nil
}

// ResolveIDs returns the explicit ID list when one is configured,
// otherwise the manifest's IDs, otherwise nil so the loader discovers
// from the repository.
func (o *RepoOptions) ResolveIDs(ctx context.Context, log logger.Logger) ([]string, error) {
	if o.IDList != "" {
		ids, err := repo.ReadIDList(o.IDList)
		if err != nil {
			return nil, errors.Wrap(err, "reading ID list")
		}
		return ids, nil
	}
	if o.ManifestURL != "" {
		feed := &repo.ManifestFeed{URL: o.ManifestURL, Log: log}
		ids, err := feed.IDs(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetching manifest")
		}
		return ids, nil
	}
	return nil, nil
}

// buildMappings compiles the collection mappings for every collection
// bound to the compiled schema.
func buildMappings(compiled *schema.Compiled, ruleStore *rules.Store) (map[string]*document.CollectionMapping, error) {
	mappings, err := document.BuildMappings(compiled, ruleStore)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, errors.Errorf("no collections are defined for schema %q", compiled.Name)
	}
	return mappings, nil
}
