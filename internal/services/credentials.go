package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
)

// CredentialSource provides the credential used to open a model session. An empty string with a
// nil error means no credential is configured.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a credential taken from the configuration file.
type StaticCredential string

// EnvCredential reads the first non-empty environment variable among its names.
type EnvCredential []string

// CredentialChain returns the first non-empty credential of its sources.
type CredentialChain []CredentialSource

// NoCredential is the selector for providers that need no credential, such as a local Ollama.
// It always reports a selected credential.
type NoCredential struct{}

// Credential implements CredentialSource.
func (s StaticCredential) Credential(context.Context) (string, error) {
	return os.ExpandEnv(string(s)), nil
}

// Credential implements CredentialSource.
func (e EnvCredential) Credential(context.Context) (string, error) {
	for _, key := range e {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// Credential implements CredentialSource.
func (c CredentialChain) Credential(ctx context.Context) (string, error) {
	for _, src := range c {
		cred, err := src.Credential(ctx)
		if err != nil {
			return "", err
		}
		if cred != "" {
			return cred, nil
		}
	}
	return "", nil
}

// HasSelectedCredential implements chat.CredentialSelector.
func (NoCredential) HasSelectedCredential(context.Context) (bool, error) {
	return true, nil
}

// SelectCredential implements chat.CredentialSelector.
func (NoCredential) SelectCredential(context.Context, string) error {
	return nil
}

// MemoryKeyring is a credential selector keeping the selected API key for the lifetime of the
// process.
type MemoryKeyring struct {
	mu  sync.Mutex
	key string
}

// HasSelectedCredential implements chat.CredentialSelector.
func (m *MemoryKeyring) HasSelectedCredential(ctx context.Context) (bool, error) {
	cred, err := m.Credential(ctx)
	return cred != "", err
}

// SelectCredential implements chat.CredentialSelector.
func (m *MemoryKeyring) SelectCredential(_ context.Context, credential string) error {
	if credential == "" {
		return fmt.Errorf("credential is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = credential
	return nil
}

// Credential implements CredentialSource.
func (m *MemoryKeyring) Credential(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, nil
}

type fallbackSelector struct {
	chat.CredentialSelector
	fallback CredentialSource
}

// WithFallback returns selector reporting a selected credential also when fallback provides one,
// such as a key from the configuration file or the environment. Selection goes to selector.
func WithFallback(selector chat.CredentialSelector, fallback CredentialSource) chat.CredentialSelector {
	return fallbackSelector{CredentialSelector: selector, fallback: fallback}
}

func (f fallbackSelector) HasSelectedCredential(ctx context.Context) (bool, error) {
	ok, err := f.CredentialSelector.HasSelectedCredential(ctx)
	if err != nil || ok {
		return ok, err
	}
	cred, err := f.fallback.Credential(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read fallback credential: %w", err)
	}
	return cred != "", nil
}
