package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent shelf configuration stored as config.toml
// in the .shelf/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	OCR         OCRConfig         `toml:"ocr"`
	Explain     ExplainConfig     `toml:"explain"`
	Match       MatchConfig       `toml:"match"`
	Ownership   OwnershipConfig   `toml:"ownership"`
	Stability   StabilityConfig   `toml:"stability"`
	Inference   InferenceConfig   `toml:"inference"`
	API         APIConfig         `toml:"api"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig holds the catalog file location and the ownership store backend.
type StorageConfig struct {
	CatalogPath       string `toml:"catalog_path,omitempty"`
	OwnershipProvider string `toml:"ownership_provider,omitempty"`
	OwnershipTarget   string `toml:"ownership_target,omitempty"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string `toml:"provider,omitempty"`
	Target        string `toml:"target,omitempty"`
	Model         string `toml:"model,omitempty"`
	Dimensions    uint   `toml:"dimensions,omitempty"`
	MaxInputChars int    `toml:"max_input_chars,omitempty"`
}

// OCRConfig holds the vision model used to read titles off photos.
type OCRConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Target    string `toml:"target,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
}

// ExplainConfig holds the chat model and metadata source used for explanations.
type ExplainConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Target      string `toml:"target,omitempty"`
	Model       string `toml:"model,omitempty"`
	APIKeyEnv   string `toml:"api_key_env,omitempty"`
	BooksTarget string `toml:"books_target,omitempty"`
}

// MatchConfig holds the catalog match policy.
type MatchConfig struct {
	SemanticThreshold  float64 `toml:"semantic_threshold,omitempty"`
	LexicalThreshold   float64 `toml:"lexical_threshold,omitempty"`
	FallbackThreshold  float64 `toml:"fallback_threshold,omitempty"`
	SemanticWeight     float64 `toml:"semantic_weight,omitempty"`
	DuplicateThreshold float64 `toml:"duplicate_threshold,omitempty"`
	TopK               int     `toml:"top_k,omitempty"`
	MinTitleWords      int     `toml:"min_title_words,omitempty"`
	MinTitleChars      int     `toml:"min_title_chars,omitempty"`
}

// OwnershipConfig holds the per-user ledger policy.
type OwnershipConfig struct {
	FuzzyThreshold float64 `toml:"fuzzy_threshold,omitempty"`
	LengthMargin   int     `toml:"length_margin,omitempty"`
	CacheTTL       string  `toml:"cache_ttl,omitempty"`
	CacheCapacity  int     `toml:"cache_capacity,omitempty"`
}

// StabilityConfig holds the live-scan debounce window.
type StabilityConfig struct {
	Window      int    `toml:"window,omitempty"`
	Quorum      int    `toml:"quorum,omitempty"`
	IdleTimeout string `toml:"idle_timeout,omitempty"`
}

// InferenceConfig bounds OCR and embedding calls.
type InferenceConfig struct {
	MaxConcurrent int    `toml:"max_concurrent,omitempty"`
	Timeout       string `toml:"timeout,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen         string `toml:"listen,omitempty"`
	MaxUploadBytes int64  `toml:"max_upload_bytes,omitempty"`
	TempDir        string `toml:"temp_dir,omitempty"`
}

// EventsConfig holds the book-saved event stream settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// CacheTTLDuration parses CacheTTL, falling back to the default on error.
func (o OwnershipConfig) CacheTTLDuration() time.Duration {
	return parseDuration(o.CacheTTL, defaultCacheTTL)
}

// IdleTimeoutDuration parses IdleTimeout, falling back to the default on error.
func (s StabilityConfig) IdleTimeoutDuration() time.Duration {
	return parseDuration(s.IdleTimeout, defaultIdleTimeout)
}

// TimeoutDuration parses Timeout, falling back to the default on error.
func (i InferenceConfig) TimeoutDuration() time.Duration {
	return parseDuration(i.Timeout, defaultInferenceTimeout)
}

// BrokerList splits the comma separated broker list.
func (e EventsConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseDuration(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func oneOfKey(field func(c *Config) *string, allowed ...string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, a := range allowed {
				if v == a {
					*field(c) = v
					return nil
				}
			}
			return fmt.Errorf("invalid value %q (allowed: %s)", v, strings.Join(allowed, ", "))
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

// ratioKey handles thresholds and weights, which must sit in [0, 1].
func ratioKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("invalid value for %s: must be between 0 and 1", name)
			}
			*field(c) = f
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for %s: must be positive", name)
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.catalog_path": stringKey(func(c *Config) *string { return &c.Storage.CatalogPath }),
	"storage.ownership_provider": oneOfKey(func(c *Config) *string { return &c.Storage.OwnershipProvider },
		"memory", "sqlite", "postgres", "redis"),
	"storage.ownership_target": stringKey(func(c *Config) *string { return &c.Storage.OwnershipTarget }),

	"vector_store.provider": oneOfKey(func(c *Config) *string { return &c.VectorStore.Provider },
		"flat", "sqlite", "qdrant"),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider": oneOfKey(func(c *Config) *string { return &c.Embedding.Provider },
		"ollama", "hashing"),
	"embedding.target": stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":  stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.max_input_chars": intKey("embedding.max_input_chars", func(c *Config) *int { return &c.Embedding.MaxInputChars }),

	"ocr.provider": oneOfKey(func(c *Config) *string { return &c.OCR.Provider },
		"ollama", "openai", "anthropic"),
	"ocr.target":      stringKey(func(c *Config) *string { return &c.OCR.Target }),
	"ocr.model":       stringKey(func(c *Config) *string { return &c.OCR.Model }),
	"ocr.api_key_env": stringKey(func(c *Config) *string { return &c.OCR.APIKeyEnv }),

	"explain.provider": oneOfKey(func(c *Config) *string { return &c.Explain.Provider },
		"ollama", "openai", "anthropic", "none"),
	"explain.target":       stringKey(func(c *Config) *string { return &c.Explain.Target }),
	"explain.model":        stringKey(func(c *Config) *string { return &c.Explain.Model }),
	"explain.api_key_env":  stringKey(func(c *Config) *string { return &c.Explain.APIKeyEnv }),
	"explain.books_target": stringKey(func(c *Config) *string { return &c.Explain.BooksTarget }),

	"match.semantic_threshold":  ratioKey("match.semantic_threshold", func(c *Config) *float64 { return &c.Match.SemanticThreshold }),
	"match.lexical_threshold":   ratioKey("match.lexical_threshold", func(c *Config) *float64 { return &c.Match.LexicalThreshold }),
	"match.fallback_threshold":  ratioKey("match.fallback_threshold", func(c *Config) *float64 { return &c.Match.FallbackThreshold }),
	"match.semantic_weight":     ratioKey("match.semantic_weight", func(c *Config) *float64 { return &c.Match.SemanticWeight }),
	"match.duplicate_threshold": ratioKey("match.duplicate_threshold", func(c *Config) *float64 { return &c.Match.DuplicateThreshold }),
	"match.top_k":               intKey("match.top_k", func(c *Config) *int { return &c.Match.TopK }),
	"match.min_title_words":     intKey("match.min_title_words", func(c *Config) *int { return &c.Match.MinTitleWords }),
	"match.min_title_chars":     intKey("match.min_title_chars", func(c *Config) *int { return &c.Match.MinTitleChars }),

	"ownership.fuzzy_threshold": ratioKey("ownership.fuzzy_threshold", func(c *Config) *float64 { return &c.Ownership.FuzzyThreshold }),
	"ownership.length_margin":   intKey("ownership.length_margin", func(c *Config) *int { return &c.Ownership.LengthMargin }),
	"ownership.cache_ttl":       durationKey("ownership.cache_ttl", func(c *Config) *string { return &c.Ownership.CacheTTL }),
	"ownership.cache_capacity":  intKey("ownership.cache_capacity", func(c *Config) *int { return &c.Ownership.CacheCapacity }),

	"stability.window":       intKey("stability.window", func(c *Config) *int { return &c.Stability.Window }),
	"stability.quorum":       intKey("stability.quorum", func(c *Config) *int { return &c.Stability.Quorum }),
	"stability.idle_timeout": durationKey("stability.idle_timeout", func(c *Config) *string { return &c.Stability.IdleTimeout }),

	"inference.max_concurrent": intKey("inference.max_concurrent", func(c *Config) *int { return &c.Inference.MaxConcurrent }),
	"inference.timeout":        durationKey("inference.timeout", func(c *Config) *string { return &c.Inference.Timeout }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.max_upload_bytes": {
		get: func(c *Config) string {
			if c.API.MaxUploadBytes == 0 {
				return ""
			}
			return strconv.FormatInt(c.API.MaxUploadBytes, 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for api.max_upload_bytes: %w", err)
			}
			c.API.MaxUploadBytes = n
			return nil
		},
	},
	"api.temp_dir": stringKey(func(c *Config) *string { return &c.API.TempDir }),

	"events.provider": oneOfKey(func(c *Config) *string { return &c.Events.Provider },
		"none", "kafka"),
	"events.brokers": stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":   stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
