// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/srtk/internal/config"
	"github.com/sigil-dev/srtk/internal/dataset"
	"github.com/sigil-dev/srtk/internal/secrets"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// flagKeyPrefix marks command annotations that bind a flag to a config key.
const flagKeyPrefix = "srtk.flag."

// app is the state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{logger: slog.Default()}

	root := &cobra.Command{
		Use:   "srtk",
		Short: "srtk: subgraph retrieval toolkit",
		Long: "srtk retrieves question-relevant subgraphs from a knowledge graph and builds\n" +
			"weak supervision for the relation scorer that guides retrieval.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newVersionCmd(),
		newSecretCmd(),
		newRetrieveCmd(a),
		newSearchPathsCmd(a),
		newPreprocessCmd(a),
		newLoadCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
	)

	return root
}

// bindFlag makes flag name override config key when it is set.
func bindFlag(cmd *cobra.Command, name, key string) {
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations[flagKeyPrefix+name] = key
}

// setup installs the logger and builds the viper instance with the standard
// precedence (flag > env > file > defaults).
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	v := config.New()
	explicit, _ := cmd.Flags().GetString("config")
	if path := config.Resolve(explicit); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		config.CheckPermissions(path, a.logger)
		a.logger.Debug("loaded config", "path", path)
	}

	for ann, key := range cmd.Annotations {
		name, ok := strings.CutPrefix(ann, flagKeyPrefix)
		if !ok {
			continue
		}
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding --%s flag: %w", name, err)
		}
	}

	a.v = v
	return nil
}

// config resolves keyring references and decodes the validated settings.
func (a *app) config() (*config.Config, error) {
	if err := secrets.ResolveViper(a.v, secretStoreFactory()); err != nil {
		return nil, err
	}
	return config.FromViper(a.v)
}

// openOutput writes to the command's stdout for "-" and to a file otherwise.
func openOutput(cmd *cobra.Command, path string) (*dataset.Writer, error) {
	if path == "" || path == "-" {
		return dataset.NewWriter(cmd.OutOrStdout()), nil
	}
	return dataset.Create(path)
}

// readSamples loads the input file and gives every sample an id.
func readSamples(path string) ([]dataset.Sample, error) {
	samples, err := dataset.ReadFile[dataset.Sample](path)
	if err != nil {
		return nil, err
	}
	for i := range samples {
		samples[i] = dataset.EnsureID(samples[i])
	}
	return samples, nil
}
