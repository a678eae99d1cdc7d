package config

const (
	defaultCatalogPath       = "catalog.json"
	defaultOwnershipProvider = "sqlite"
	defaultOwnershipTarget   = "shelf.db"

	defaultVectorProvider   = "flat"
	defaultVectorTarget     = "index.bin"
	defaultVectorCollection = "shelf_books"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "all-minilm"
	defaultEmbeddingDimensions = 384
	defaultMaxInputChars       = 80

	defaultOCRProvider = "ollama"
	defaultOCRModel    = "llava"
	defaultAPIKeyEnv   = "GROQ_API_KEY"

	defaultExplainProvider = "ollama"
	defaultExplainModel    = "llama3.1"
	defaultBooksTarget     = "https://www.googleapis.com/books/v1"

	defaultSemanticThreshold  = 0.72
	defaultLexicalThreshold   = 0.80
	defaultFallbackThreshold  = 0.66
	defaultSemanticWeight     = 0.7
	defaultDuplicateThreshold = 0.87
	defaultTopK               = 5
	defaultMinTitleWords      = 2
	defaultMinTitleChars      = 5

	defaultFuzzyThreshold = 0.88
	defaultLengthMargin   = 12
	defaultCacheTTL       = "5m"
	defaultCacheCapacity  = 1024

	defaultStabilityWindow = 5
	defaultStabilityQuorum = 4
	defaultIdleTimeout     = "10s"

	defaultMaxConcurrent    = 1
	defaultInferenceTimeout = "12s"

	defaultAPIListen      = ":8081"
	defaultMaxUploadBytes = 10 << 20

	defaultEventsProvider = "none"
	defaultEventsTopic    = "shelf.books"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			CatalogPath:       defaultCatalogPath,
			OwnershipProvider: defaultOwnershipProvider,
			OwnershipTarget:   defaultOwnershipTarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:      defaultEmbeddingProvider,
			Target:        defaultOllamaTarget,
			Model:         defaultEmbeddingModel,
			Dimensions:    defaultEmbeddingDimensions,
			MaxInputChars: defaultMaxInputChars,
		},
		OCR: OCRConfig{
			Provider:  defaultOCRProvider,
			Target:    defaultOllamaTarget,
			Model:     defaultOCRModel,
			APIKeyEnv: defaultAPIKeyEnv,
		},
		Explain: ExplainConfig{
			Provider:    defaultExplainProvider,
			Target:      defaultOllamaTarget,
			Model:       defaultExplainModel,
			APIKeyEnv:   defaultAPIKeyEnv,
			BooksTarget: defaultBooksTarget,
		},
		Match: MatchConfig{
			SemanticThreshold:  defaultSemanticThreshold,
			LexicalThreshold:   defaultLexicalThreshold,
			FallbackThreshold:  defaultFallbackThreshold,
			SemanticWeight:     defaultSemanticWeight,
			DuplicateThreshold: defaultDuplicateThreshold,
			TopK:               defaultTopK,
			MinTitleWords:      defaultMinTitleWords,
			MinTitleChars:      defaultMinTitleChars,
		},
		Ownership: OwnershipConfig{
			FuzzyThreshold: defaultFuzzyThreshold,
			LengthMargin:   defaultLengthMargin,
			CacheTTL:       defaultCacheTTL,
			CacheCapacity:  defaultCacheCapacity,
		},
		Stability: StabilityConfig{
			Window:      defaultStabilityWindow,
			Quorum:      defaultStabilityQuorum,
			IdleTimeout: defaultIdleTimeout,
		},
		Inference: InferenceConfig{
			MaxConcurrent: defaultMaxConcurrent,
			Timeout:       defaultInferenceTimeout,
		},
		API: APIConfig{
			Listen:         defaultAPIListen,
			MaxUploadBytes: defaultMaxUploadBytes,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
