// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/exdb/repoload/load"
)

// RunLoaderCommand represents a command for loading a set of
// repository records into the document store.
type RunLoaderCommand struct {
	SchemaOptions
	StoreOptions
	RepoOptions

	// Load strategy, "full" or "replace".
	LoadType string

	NumProc   int
	ChunkSize int
	FileLimit int

	FailListPath     string
	SaveListPath     string
	StatusCollection string

	ReadBackCheck bool
	RegexPurge    bool
	PruneLimitMB  int
	MaxFailRate   float64
	RecordTimeout time.Duration

	*CmdIO
}

// NewRunLoaderCommand returns a new instance of RunLoaderCommand.
func NewRunLoaderCommand(stdin io.Reader, stdout, stderr io.Writer) *RunLoaderCommand {
	return &RunLoaderCommand{
		CmdIO: NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the load.
func (cmd *RunLoaderCommand) Run(ctx context.Context) error {
	loadType := load.LoadType(cmd.LoadType)
	if loadType == "" {
		loadType = load.LoadFull
	}
	if loadType != load.LoadFull && loadType != load.LoadReplace {
		return fmt.Errorf("%w: unknown load type %q", UsageError, cmd.LoadType)
	}

	compiled, ruleStore, err := cmd.CompileSchema()
	if err != nil {
		return err
	}
	mappings, err := buildMappings(compiled, ruleStore)
	if err != nil {
		return err
	}
	provider, err := cmd.Provider()
	if err != nil {
		return err
	}
	ids, err := cmd.ResolveIDs(ctx, cmd.Logger())
	if err != nil {
		return err
	}

	loader := load.New(load.Config{
		LoadType:         loadType,
		NumProc:          cmd.NumProc,
		ChunkSize:        cmd.ChunkSize,
		FileLimit:        cmd.FileLimit,
		ReadBackCheck:    cmd.ReadBackCheck,
		RegexPurge:       cmd.RegexPurge,
		PruneLimitMB:     cmd.PruneLimitMB,
		MaxFailRate:      cmd.MaxFailRate,
		RecordTimeout:    cmd.RecordTimeout,
		FailListPath:     cmd.FailListPath,
		SaveListPath:     cmd.SaveListPath,
		StatusCollection: cmd.StatusCollection,
	}, compiled, mappings, provider, cmd.Factory(), cmd.Logger())

	result, err := loader.Run(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "run %s: attempted %d, failed %d\n",
		result.RunID, len(result.Attempted), len(result.Failed))
	if !result.Succeeded(cmd.MaxFailRate) {
		return fmt.Errorf("load failed: %d of %d records failed (rate %.3f, tolerance %.3f)",
			len(result.Failed), len(result.Attempted), result.FailRate(), cmd.MaxFailRate)
	}
	return nil
}
