// Package secrets stores module secrets outside of presets and hands each
// module instance a store restricted to its own keys.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/focus/sdk"
)

var (
	// ErrSecretNotFound is returned when a secret key does not exist in the backend.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidKey is returned for empty keys or keys that would escape the module namespace.
	ErrInvalidKey = errors.New("invalid secret key")
)

// Backend is a flat key/value secret store shared by every module.
type Backend interface {
	Name() string
	// Get retrieves a secret by key. Returns ErrSecretNotFound if not present.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes a secret. Returns ErrSecretNotFound if not present.
	Delete(ctx context.Context, key string) error
}

// MemoryBackend keeps secrets in process memory. It backs tests and hosts
// without a usable keychain.
type MemoryBackend struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: map[string]string{}}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return value, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	delete(m.secrets, key)
	return nil
}

// Scoped restricts backend to the keys of one module. Keys are stored as
// "<moduleID>/<key>"; a module cannot address another module's secrets.
func Scoped(backend Backend, moduleID string) sdk.SecretStore {
	return &scopedStore{backend: backend, prefix: strings.ToLower(strings.TrimSpace(moduleID)) + "/"}
}

type scopedStore struct {
	backend Backend
	prefix  string
}

func (s *scopedStore) key(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "/\\") || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return s.prefix + key, nil
}

func (s *scopedStore) Get(ctx context.Context, key string) (string, error) {
	full, err := s.key(key)
	if err != nil {
		return "", err
	}
	return s.backend.Get(ctx, full)
}

func (s *scopedStore) Set(ctx context.Context, key, value string) error {
	full, err := s.key(key)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, full, value)
}

func (s *scopedStore) Delete(ctx context.Context, key string) error {
	full, err := s.key(key)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, full)
}
