// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

const scheme = "keyring://"

// IsReference reports whether value points into the keyring.
func IsReference(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseReference splits keyring://service/key. keyring://key names a key of
// DefaultService.
func ParseReference(ref string) (service, key string, err error) {
	if !IsReference(ref) {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}

	rest := strings.TrimPrefix(ref, scheme)
	service, key, found := strings.Cut(rest, "/")
	if !found {
		service, key = DefaultService, rest
	}
	if service == "" || key == "" || strings.Contains(key, "/") {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key or keyring://key", ref)
	}
	return service, key, nil
}

// Resolve returns the secret value points to. Values that are not keyring
// references are returned unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}

	service, key, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring reference held by v with its secret.
// It returns one error per reference that could not be resolved, naming the
// config key; resolved keys are updated even when others fail.
func ResolveViper(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsReference(val) {
			continue
		}

		secret, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "config key %s", key))
			continue
		}
		v.Set(key, secret)
	}
	return errors.Join(errs...)
}
