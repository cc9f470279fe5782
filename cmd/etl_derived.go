// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/exdb/repoload/ctl"
)

func newETLDerivedCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	deriver := ctl.NewETLDerivedCommand(stdin, stdout, stderr)
	derivedCmd := &cobra.Command{
		Use:   "etl-derived-content",
		Short: "Emit derived summary content from the loaded collections.",
		Long: `
Re-reads the loaded collections and writes one derived summary document
per collection into the status collection, with distinct key counts for
each mandatory private key.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, deriver.CmdIO); err != nil {
				return err
			}
			return deriver.Run(context.Background())
		},
	}
	flags := derivedCmd.Flags()
	setSchemaFlags(flags, &deriver.SchemaOptions)
	setStoreFlags(flags, &deriver.StoreOptions)
	flags.StringVar(&deriver.StatusCollection, "status-collection", "", "Collection to write summary documents to.")
	return derivedCmd
}
