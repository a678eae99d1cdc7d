// Package credentials stores API keys for hosted providers in
// credentials.toml inside the .shelf/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/shelf/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// providerEnvVars maps provider names to the environment variable that
// overrides a stored key.
var providerEnvVars = map[string]string{
	"openai":       "OPENAI_API_KEY",
	"anthropic":    "ANTHROPIC_API_KEY",
	"groq":         "GROQ_API_KEY",
	"google-books": "GOOGLE_BOOKS_API_KEY",
	"qdrant":       "QDRANT_API_KEY",
}

// Credentials is the on-disk form of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the API key for a single provider.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}

// Manager manages reading and writing credentials.toml in the .shelf/ directory.
type Manager struct {
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .shelf/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	target, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	return &Manager{targetPath: filepath.Join(target, credentialsFile)}, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given provider.
func (m *Manager) SetKey(provider, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Providers[provider] = ProviderCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given provider.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Providers[provider].APIKey, nil
}

// RemoveKey deletes the stored credential for a provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Providers, provider)

	return m.Save(creds)
}

// ListProviders returns the names of providers that have stored credentials.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	return providers, nil
}

// Resolve returns the API key for envVar. A set environment variable wins;
// otherwise the key stored for the provider owning envVar is used.
func (m *Manager) Resolve(envVar string) (string, error) {
	if envVar == "" {
		return "", nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	provider := ProviderForEnvVar(envVar)
	if provider == "" {
		return "", nil
	}
	return m.GetKey(provider)
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProvider returns the environment variable name for a given provider.
// Returns an empty string for unknown providers.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// ProviderForEnvVar is the inverse of EnvVarForProvider.
func ProviderForEnvVar(envVar string) string {
	for p, v := range providerEnvVars {
		if v == envVar {
			return p
		}
	}
	return ""
}

// SupportedProviders returns the list of providers that take API keys.
func SupportedProviders() []string {
	providers := make([]string, 0, len(providerEnvVars))
	for p := range providerEnvVars {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// IsSupportedProvider returns true if the given provider is supported.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
