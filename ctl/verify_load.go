// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/exdb/repoload/load"
)

// VerifyLoadCommand represents a command for structurally comparing
// stored documents against a fresh transformation of their records.
type VerifyLoadCommand struct {
	SchemaOptions
	StoreOptions
	RepoOptions

	FailListPath string

	*CmdIO
}

// NewVerifyLoadCommand returns a new instance of VerifyLoadCommand.
func NewVerifyLoadCommand(stdin io.Reader, stdout, stderr io.Writer) *VerifyLoadCommand {
	return &VerifyLoadCommand{
		CmdIO: NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the verification.
func (cmd *VerifyLoadCommand) Run(ctx context.Context) error {
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
		FailListPath: cmd.FailListPath,
	}, compiled, mappings, provider, cmd.Factory(), cmd.Logger())

	result, err := loader.VerifyLoad(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "verified %d records, %d mismatched\n",
		len(result.Attempted), len(result.Failed))
	if len(result.Failed) > 0 {
		return fmt.Errorf("verification failed for %d of %d records",
			len(result.Failed), len(result.Attempted))
	}
	return nil
}
