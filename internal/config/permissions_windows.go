// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

import "log/slog"

// CheckPermissions is a no-op on Windows, which uses ACLs rather than mode
// bits.
func CheckPermissions(path string, logger *slog.Logger) bool {
	if logger != nil && path != "" {
		logger.Debug("config permission check not implemented on Windows", "path", path)
	}
	return false
}
