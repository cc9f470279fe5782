// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/exdb/repoload/schema"
)

// CompileSchemaCommand represents a command for compiling a schema and
// writing its canonical encoding.
type CompileSchemaCommand struct {
	SchemaOptions

	// Output file for the encoded schema. Empty writes to stdout.
	OutputPath string

	// Print the digest only.
	DigestOnly bool

	// Invalidate cached artifacts for the schema before compiling.
	Refresh bool

	*CmdIO
}

// NewCompileSchemaCommand returns a new instance of CompileSchemaCommand.
func NewCompileSchemaCommand(stdin io.Reader, stdout, stderr io.Writer) *CompileSchemaCommand {
	return &CompileSchemaCommand{
		CmdIO: NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the compilation.
func (cmd *CompileSchemaCommand) Run(ctx context.Context) error {
	if cmd.Refresh && cmd.CacheDir != "" {
		cache, err := schema.NewCache(cmd.CacheDir)
		if err != nil {
			return err
		}
		if err := cache.Invalidate(cmd.Schema); err != nil {
			return err
		}
	}
	compiled, _, err := cmd.CompileSchema()
	if err != nil {
		return err
	}
	encoded, err := compiled.Encode()
	if err != nil {
		return err
	}
	if cmd.DigestOnly {
		digest, err := compiled.Digest()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Stdout, digest)
		return nil
	}
	if cmd.OutputPath == "" {
		_, err = cmd.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(cmd.OutputPath, encoded, 0o644); err != nil {
		return errors.Wrap(err, "writing compiled schema")
	}
	cmd.Logger().Infof("wrote %s (%d categories)", cmd.OutputPath, len(compiled.Categories))
	return nil
}
