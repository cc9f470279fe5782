// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/exdb/repoload/ctl"
)

func newSplitIDListCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	splitter := ctl.NewSplitIDListCommand(stdin, stdout, stderr)
	splitCmd := &cobra.Command{
		Use:   "split-id-list",
		Short: "Partition a record ID list into sublists for parallel runs.",
		Long: `
Partitions the record IDs from an ID list file, a manifest, or the
repository directory into near-equal sublists and writes one file per
sublist, printing the paths.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, splitter.CmdIO); err != nil {
				return err
			}
			return splitter.Run(context.Background())
		},
	}
	flags := splitCmd.Flags()
	setRepoFlags(flags, &splitter.RepoOptions)
	flags.IntVarP(&splitter.NumLists, "num-sublists", "n", 1, "Number of sublists to produce.")
	flags.StringVarP(&splitter.OutputDir, "output-dir", "o", "", "Directory to write sublist files to.")
	flags.StringVar(&splitter.Prefix, "prefix", "idlist", "Sublist filename prefix.")
	return splitCmd
}
