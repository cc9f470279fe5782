// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/exdb/repoload/load"
)

// SplitIDListCommand represents a command for partitioning a record ID
// list into sublists for parallel loader invocations.
type SplitIDListCommand struct {
	RepoOptions

	// Number of sublists.
	NumLists int

	// Output directory and filename prefix.
	OutputDir string
	Prefix    string

	*CmdIO
}

// NewSplitIDListCommand returns a new instance of SplitIDListCommand.
func NewSplitIDListCommand(stdin io.Reader, stdout, stderr io.Writer) *SplitIDListCommand {
	return &SplitIDListCommand{
		Prefix: "idlist",
		CmdIO:  NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the split.
func (cmd *SplitIDListCommand) Run(ctx context.Context) error {
	if cmd.NumLists <= 0 {
		return fmt.Errorf("%w: the number of sublists must be positive", UsageError)
	}
	if cmd.OutputDir == "" {
		return fmt.Errorf("%w: an output directory is required", UsageError)
	}

	ids, err := cmd.ResolveIDs(ctx, cmd.Logger())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		provider, err := cmd.Provider()
		if err != nil {
			return err
		}
		if ids, err = provider.List(ctx); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no record IDs to split")
	}

	paths, err := load.WriteSublists(cmd.OutputDir, cmd.Prefix, load.SplitIDList(ids, cmd.NumLists))
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintln(cmd.Stdout, path)
	}
	return nil
}
