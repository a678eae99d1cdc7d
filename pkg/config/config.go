package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/shelf/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .shelf/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// orderedKeys follows the TOML section layout.
var orderedKeys = []string{
	"storage.catalog_path",
	"storage.ownership_provider",
	"storage.ownership_target",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.max_input_chars",
	"ocr.provider",
	"ocr.target",
	"ocr.model",
	"ocr.api_key_env",
	"explain.provider",
	"explain.target",
	"explain.model",
	"explain.api_key_env",
	"explain.books_target",
	"match.semantic_threshold",
	"match.lexical_threshold",
	"match.fallback_threshold",
	"match.semantic_weight",
	"match.duplicate_threshold",
	"match.top_k",
	"match.min_title_words",
	"match.min_title_chars",
	"ownership.fuzzy_threshold",
	"ownership.length_margin",
	"ownership.cache_ttl",
	"ownership.cache_capacity",
	"stability.window",
	"stability.quorum",
	"stability.idle_timeout",
	"inference.max_concurrent",
	"inference.timeout",
	"api.listen",
	"api.max_upload_bytes",
	"api.temp_dir",
	"events.provider",
	"events.brokers",
	"events.topic",
}

// ValidConfigKeys returns the list of all supported configuration key names
// in TOML section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range configKeys {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(result, rest...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .shelf/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config. Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// WithDefaults fills zero-value fields in cfg with defaults and returns it.
func WithDefaults(cfg *Config) *Config {
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()
	zero := &Config{}

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	for key, info := range configKeys {
		if info.get(cfg) != info.get(zero) {
			continue
		}
		if def := info.get(defaults); def != "" {
			if err := info.set(cfg, def); err != nil {
				panic(fmt.Sprintf("invalid default for %s: %v", key, err))
			}
		}
	}
}

// SaveConfig persists the configuration to config.toml in the target .shelf/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// Validate checks cross-field constraints that single key setters cannot.
func (cfg *Config) Validate() error {
	m := cfg.Match
	if m.DuplicateThreshold != 0 && m.SemanticThreshold != 0 && m.DuplicateThreshold < m.SemanticThreshold {
		return fmt.Errorf("match.duplicate_threshold (%v) must not be below match.semantic_threshold (%v)",
			m.DuplicateThreshold, m.SemanticThreshold)
	}

	s := cfg.Stability
	if s.Quorum != 0 && s.Window != 0 && s.Quorum > s.Window {
		return fmt.Errorf("stability.quorum (%d) must not exceed stability.window (%d)", s.Quorum, s.Window)
	}

	return nil
}

// PresetConfig returns a Config with sane defaults for the named preset.
// Supported presets: "local", "groq", "offline".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "local":
		return cfg, nil

	case "groq":
		cfg.OCR = OCRConfig{
			Provider:  "openai",
			Target:    "https://api.groq.com/openai",
			Model:     "meta-llama/llama-4-scout-17b-16e-instruct",
			APIKeyEnv: "GROQ_API_KEY",
		}
		cfg.Explain.Provider = "openai"
		cfg.Explain.Target = "https://api.groq.com/openai"
		cfg.Explain.Model = "llama-3.1-8b-instant"
		cfg.Explain.APIKeyEnv = "GROQ_API_KEY"
		return cfg, nil

	case "offline":
		cfg.Embedding.Provider = "hashing"
		cfg.Embedding.Target = ""
		cfg.Embedding.Model = ""
		cfg.Explain.Provider = "none"
		cfg.Storage.OwnershipProvider = "sqlite"
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: local, groq, offline)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"local", "groq", "offline"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
