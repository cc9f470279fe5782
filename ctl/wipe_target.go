// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/exdb/repoload/load"
)

// WipeTargetCommand represents a command for dropping target
// collections, or purging a slice of their documents by key.
type WipeTargetCommand struct {
	StoreOptions

	// Collections to wipe. Empty means every collection bound to the
	// schema, which then must be resolvable.
	Collections []string
	SchemaOptions

	// Purge by key instead of dropping. KeyField empty means drop.
	KeyField   string
	KeyValue   string
	RegexPurge bool

	*CmdIO
}

// NewWipeTargetCommand returns a new instance of WipeTargetCommand.
func NewWipeTargetCommand(stdin io.Reader, stdout, stderr io.Writer) *WipeTargetCommand {
	return &WipeTargetCommand{
		CmdIO: NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the wipe.
func (cmd *WipeTargetCommand) Run(ctx context.Context) error {
	collections := cmd.Collections
	if len(collections) == 0 {
		compiled, ruleStore, err := cmd.CompileSchema()
		if err != nil {
			return err
		}
		mappings, err := buildMappings(compiled, ruleStore)
		if err != nil {
			return err
		}
		for name := range mappings {
			collections = append(collections, name)
		}
	}
	if cmd.KeyField == "" && cmd.KeyValue != "" {
		return fmt.Errorf("%w: a key value needs a key field", UsageError)
	}
	return load.Wipe(ctx, cmd.Factory(), collections, cmd.KeyField, cmd.KeyValue,
		cmd.RegexPurge, cmd.Logger())
}
