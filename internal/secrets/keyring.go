// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

var _ Store = KeyringStore{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() KeyringStore { return KeyringStore{} }

func checkName(op, service, key string) error {
	if service == "" || key == "" {
		return sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"secret %s: service and key must not be empty (got %q/%q)", op, service, key)
	}
	return nil
}

func (KeyringStore) Set(service, key, value string) error {
	if err := checkName("set", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (KeyringStore) Get(service, key string) (string, error) {
	if err := checkName("get", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (KeyringStore) Delete(service, key string) error {
	if err := checkName("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return sigilerr.Wrapf(err, sigilerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}
