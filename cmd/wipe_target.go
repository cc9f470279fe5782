// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/exdb/repoload/ctl"
)

func newWipeTargetCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	wiper := ctl.NewWipeTargetCommand(stdin, stdout, stderr)
	wipeCmd := &cobra.Command{
		Use:   "wipe-target",
		Short: "Drop target collections, or purge their documents by key.",
		Long: `
Drops the named collections from the document store. With a key field
set, purges matching documents instead of dropping. Without an explicit
collection list, wipes every collection bound to the compiled schema.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, wiper.CmdIO); err != nil {
				return err
			}
			return wiper.Run(context.Background())
		},
	}
	flags := wipeCmd.Flags()
	setStoreFlags(flags, &wiper.StoreOptions)
	setSchemaFlags(flags, &wiper.SchemaOptions)
	flags.StringSliceVar(&wiper.Collections, "collection", nil, "Collection to wipe, repeatable.")
	flags.StringVar(&wiper.KeyField, "key-field", "", "Purge documents matching this field instead of dropping.")
	flags.StringVar(&wiper.KeyValue, "key-value", "", "Value the key field must match.")
	flags.BoolVar(&wiper.RegexPurge, "regex-purge", false, "Match the key value as a case-insensitive prefix.")
	return wipeCmd
}
