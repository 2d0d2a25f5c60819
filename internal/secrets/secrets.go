// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps scorer API keys and graph credentials out of config
// files. A config value of the form keyring://service/key (or keyring://key
// for the default service) is replaced by the secret held in the OS keyring.
package secrets

// DefaultService is the keyring service used by the CLI and by short
// keyring://key references.
const DefaultService = "srtk"

// Store reads and writes named secrets.
type Store interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
}
