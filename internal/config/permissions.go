// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// exposedBits are the group and other read bits.
const exposedBits fs.FileMode = 0o044

// CheckPermissions warns when the config file at path is readable by other
// users; it may hold scorer API keys or graph credentials. It reports
// whether a warning was logged. Startup is never blocked.
func CheckPermissions(path string, logger *slog.Logger) bool {
	if path == "" {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("skipping config permission check", "path", path, "error", err)
		return false
	}
	if info.Mode().Perm()&exposedBits == 0 {
		return false
	}

	logger.Warn("config file is readable by other users, credentials may be exposed",
		"path", path,
		"mode", info.Mode(),
		"recommended", "0600",
	)
	return true
}
