// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/exdb/repoload/ctl"
)

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "repoload",
		Short: "repoload compiles dictionary-defined schemas and loads repository records into a document store.",
		Long: `repoload compiles dictionary-defined schemas and loads repository records
into a document store.

This binary contains the loader itself, as well as tools for compiling
and inspecting schemas, wiping target collections, splitting ID lists
for parallel runs, and verifying loaded content.
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			return setAllConfig(v, cmd.Flags())
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	rc.PersistentFlags().String("log-file", "", "Log to this file instead of stderr; SIGHUP reopens it.")

	rc.AddCommand(newRunLoaderCommand(stdin, stdout, stderr))
	rc.AddCommand(newCompileSchemaCommand(stdin, stdout, stderr))
	rc.AddCommand(newWipeTargetCommand(stdin, stdout, stderr))
	rc.AddCommand(newSplitIDListCommand(stdin, stdout, stderr))
	rc.AddCommand(newVerifyLoadCommand(stdin, stdout, stderr))
	rc.AddCommand(newETLDerivedCommand(stdin, stdout, stderr))

	rc.SetOutput(stderr)
	return rc
}

// setupCommandLogger applies the persistent log-file flag to one
// command's IO before it runs.
func setupCommandLogger(cmd *cobra.Command, cio *ctl.CmdIO) error {
	path, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return err
	}
	return cio.SetupLogger(path)
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line,
// the environment, and a config file (if specified), and applies the
// configuration in that priority order. Since each flag in the set contains
// a pointer to where its value should be stored, setAllConfig can directly
// modify the value of each config variable.
//
// setAllConfig looks for environment variables which are capitalized
// versions of the flag names with dashes replaced by underscores, prefixed
// with REPOLOAD plus an underscore.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix("REPOLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	c := v.GetString("config")
	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
		for _, key := range v.AllKeys() {
			if _, ok := validTags[key]; !ok {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// special handling is needed for stringSlice as v.GetString will
			// always return "" in the case that the value is an actual string
			// slice from a config file rather than a comma separated string
			// from a flag or env var.
			vss := v.GetStringSlice(f.Name)
			value = strings.Join(vss, ",")
		} else {
			value = v.GetString(f.Name)
		}

		if f.Changed {
			// A value set by a flag is the highest priority; skipping the
			// viper lookup also works around string slices appending the
			// comma separated form to the existing value instead of
			// replacing it.
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
