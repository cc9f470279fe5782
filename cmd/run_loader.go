// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/exdb/repoload/ctl"
)

func newRunLoaderCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	loader := ctl.NewRunLoaderCommand(stdin, stdout, stderr)
	runCmd := &cobra.Command{
		Use:   "run-loader",
		Short: "Load repository records into the document store.",
		Long: `
Compiles the named schema from the dictionary and rule files, transforms
each repository record into collection documents, and loads them in
parallel chunks. A full load inserts; a replace load purges each
record's prior documents before inserting, so re-running is idempotent.

Records that fail are recorded in the fail list and do not stop the
run; the command exits nonzero when the failure rate exceeds the
tolerance.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupCommandLogger(cmd, loader.CmdIO); err != nil {
				return err
			}
			return loader.Run(context.Background())
		},
	}
	flags := runCmd.Flags()
	setSchemaFlags(flags, &loader.SchemaOptions)
	setStoreFlags(flags, &loader.StoreOptions)
	setRepoFlags(flags, &loader.RepoOptions)

	flags.StringVar(&loader.LoadType, "load-type", "full", "Load strategy: full or replace.")
	flags.IntVar(&loader.NumProc, "num-proc", 2, "Number of concurrent chunk workers.")
	flags.IntVar(&loader.ChunkSize, "chunk-size", 10, "Records per chunk.")
	flags.IntVar(&loader.FileLimit, "file-limit", 0, "Maximum number of records to load, 0 for no limit.")
	flags.StringVar(&loader.FailListPath, "fail-list", "", "File to write failed record IDs to.")
	flags.StringVar(&loader.SaveListPath, "save-list", "", "File to write attempted record IDs to.")
	flags.StringVar(&loader.StatusCollection, "status-collection", "", "Collection to record run status in.")
	flags.BoolVar(&loader.ReadBackCheck, "read-back-check", false, "Re-fetch and compare each written document.")
	flags.BoolVar(&loader.RegexPurge, "regex-purge", false, "Purge replace-load keys by case-insensitive prefix.")
	flags.IntVar(&loader.PruneLimitMB, "prune-limit-mb", 0, "Drop prunable fields from documents over this size, 0 disables.")
	flags.Float64Var(&loader.MaxFailRate, "max-fail-rate", 0, "Tolerated fraction of failed records.")
	flags.DurationVar(&loader.RecordTimeout, "record-timeout", 0, "Per-document store operation timeout, 0 for none.")

	return runCmd
}

func setSchemaFlags(flags *pflag.FlagSet, o *ctl.SchemaOptions) {
	flags.StringSliceVar(&o.Dictionaries, "dictionary", nil, "Dictionary file, repeatable; later files merge over earlier ones.")
	flags.StringVar(&o.Rules, "rules", "", "Rule file binding schemas and collections.")
	flags.StringVar(&o.Schema, "schema", "", "Schema name to compile.")
	flags.StringVar(&o.Level, "schema-level", "full", "Content level: full or min.")
	flags.StringVar(&o.CacheDir, "cache-dir", "", "Directory for compiled schema caching.")
}

func setStoreFlags(flags *pflag.FlagSet, o *ctl.StoreOptions) {
	flags.StringVar(&o.MongoURI, "mongo-uri", "", "MongoDB connection URI. Empty uses an in-process store.")
	flags.StringVar(&o.MongoDatabase, "mongo-db", "", "MongoDB database name.")
}

func setRepoFlags(flags *pflag.FlagSet, o *ctl.RepoOptions) {
	flags.StringVar(&o.Dir, "repo-dir", "", "Directory of repository record files.")
	flags.StringVar(&o.AuxDir, "aux-dir", "", "Directory of auxiliary record files.")
	flags.StringVar(&o.ManifestURL, "manifest-url", "", "Manifest URL for record ID discovery.")
	flags.StringVar(&o.IDList, "id-list", "", "File of record IDs to load, one per line.")
}
