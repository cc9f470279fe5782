// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/exdb/repoload/ctl"
)

func newCompileSchemaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	compiler := ctl.NewCompileSchemaCommand(stdin, stdout, stderr)
	compileCmd := &cobra.Command{
		Use:   "compile-schema",
		Short: "Compile a schema and write its canonical encoding.",
		Long: `
Compiles the named schema from the dictionary and rule files and writes
the canonical JSON encoding. The encoding is deterministic, so the same
inputs always produce byte-identical output and the same digest.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, compiler.CmdIO); err != nil {
				return err
			}
			return compiler.Run(context.Background())
		},
	}
	flags := compileCmd.Flags()
	setSchemaFlags(flags, &compiler.SchemaOptions)
	flags.StringVarP(&compiler.OutputPath, "output-file", "o", "", "File to write the encoding to - default stdout.")
	flags.BoolVar(&compiler.DigestOnly, "digest", false, "Print the schema digest instead of the encoding.")
	flags.BoolVar(&compiler.Refresh, "refresh", false, "Invalidate cached artifacts for the schema before compiling.")
	return compileCmd
}
