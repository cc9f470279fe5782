// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/exdb/repoload/ctl"
)

func newVerifyLoadCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	verifier := ctl.NewVerifyLoadCommand(stdin, stdout, stderr)
	verifyCmd := &cobra.Command{
		Use:   "verify-load",
		Short: "Compare stored documents against a fresh transformation.",
		Long: `
Re-transforms each repository record and structurally compares the
stored documents against the freshly produced ones, without writing.
Mismatched record IDs are written to the fail list.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, verifier.CmdIO); err != nil {
				return err
			}
			return verifier.Run(context.Background())
		},
	}
	flags := verifyCmd.Flags()
	setSchemaFlags(flags, &verifier.SchemaOptions)
	setStoreFlags(flags, &verifier.StoreOptions)
	setRepoFlags(flags, &verifier.RepoOptions)
	flags.StringVar(&verifier.FailListPath, "fail-list", "", "File to write mismatched record IDs to.")
	return verifyCmd
}
