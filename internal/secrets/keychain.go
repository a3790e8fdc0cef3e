package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name used for keychain entries.
const keychainService = "focus"

// KeychainBackend stores secrets in the operating system keychain
// (Keychain Access, Secret Service or Credential Manager).
type KeychainBackend struct {
	available bool
}

// NewKeychainBackend probes the keychain once so a locked or missing service
// is reported as ErrBackendUnavailable instead of failing on every call.
func NewKeychainBackend() *KeychainBackend {
	backend := &KeychainBackend{available: true}
	_, err := keyring.Get(keychainService, "__focus_availability_test__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		backend.available = false
	}
	return backend
}

func (k *KeychainBackend) Name() string {
	return "keychain"
}

// Available reports whether the keychain answered the probe.
func (k *KeychainBackend) Available() bool {
	return k.available
}

func (k *KeychainBackend) Get(ctx context.Context, key string) (string, error) {
	if !k.available {
		return "", fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	value, err := keyring.Get(keychainService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		return "", keychainError(err)
	}
	return value, nil
}

func (k *KeychainBackend) Set(ctx context.Context, key, value string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Set(keychainService, key, value); err != nil {
		return keychainError(err)
	}
	return nil
}

func (k *KeychainBackend) Delete(ctx context.Context, key string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if err := keyring.Delete(keychainService, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		return keychainError(err)
	}
	return nil
}

// Default returns the keychain backend when it is usable, otherwise an
// in-memory backend.
func Default() Backend {
	if keychain := NewKeychainBackend(); keychain.Available() {
		return keychain
	}
	return NewMemoryBackend()
}

func keychainError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"locked", "cannot access", "permission denied", "dbus", "secret service", "user canceled"} {
		if strings.Contains(msg, indicator) {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
		}
	}
	return fmt.Errorf("keychain error: %w", err)
}
