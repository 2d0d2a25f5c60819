// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

//go:embed srtk.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/srtk/srtk.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "srtk", "srtk.yaml"), nil
}

// Resolve picks the config file to load: the explicit path when given,
// otherwise the default path if a file exists there. An empty result means
// defaults only.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path, err := DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// WriteDefault writes the commented default config to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "config %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "checking %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "writing config %s: %w", path, err)
	}

	slog.Info("created default config", "path", path)
	return nil
}
