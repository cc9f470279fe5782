// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/exdb/repoload/load"
)

// ETLDerivedCommand represents a command for emitting derived summary
// content from the loaded collections into the status collection.
type ETLDerivedCommand struct {
	SchemaOptions
	StoreOptions

	StatusCollection string

	*CmdIO
}

// NewETLDerivedCommand returns a new instance of ETLDerivedCommand.
func NewETLDerivedCommand(stdin io.Reader, stdout, stderr io.Writer) *ETLDerivedCommand {
	return &ETLDerivedCommand{
		CmdIO: NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the derivation.
func (cmd *ETLDerivedCommand) Run(ctx context.Context) error {
	if cmd.StatusCollection == "" {
		return fmt.Errorf("%w: a status collection is required", UsageError)
	}
	compiled, ruleStore, err := cmd.CompileSchema()
	if err != nil {
		return err
	}
	mappings, err := buildMappings(compiled, ruleStore)
	if err != nil {
		return err
	}

	loader := load.New(load.Config{
		StatusCollection: cmd.StatusCollection,
	}, compiled, mappings, nil, cmd.Factory(), cmd.Logger())
	return loader.ETLDerived(ctx)
}
