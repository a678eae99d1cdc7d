// Package bootstrap builds the shelf service graph from a resolved config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/config"
	"github.com/papercomputeco/shelf/pkg/credentials"
	"github.com/papercomputeco/shelf/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/shelf/pkg/embeddings/utils"
	"github.com/papercomputeco/shelf/pkg/eventstream"
	"github.com/papercomputeco/shelf/pkg/eventstream/kafka"
	"github.com/papercomputeco/shelf/pkg/eventstream/nop"
	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/llm"
	"github.com/papercomputeco/shelf/pkg/llm/provider"
	"github.com/papercomputeco/shelf/pkg/ocr"
	"github.com/papercomputeco/shelf/pkg/ownership"
	"github.com/papercomputeco/shelf/pkg/scanner"
	"github.com/papercomputeco/shelf/pkg/similarity"
	"github.com/papercomputeco/shelf/pkg/stability"
	"github.com/papercomputeco/shelf/pkg/storage"
	"github.com/papercomputeco/shelf/pkg/storage/inmemory"
	"github.com/papercomputeco/shelf/pkg/storage/postgres"
	"github.com/papercomputeco/shelf/pkg/storage/redis"
	"github.com/papercomputeco/shelf/pkg/storage/sqlite"
	"github.com/papercomputeco/shelf/pkg/vector"
	vectorutils "github.com/papercomputeco/shelf/pkg/vector/utils"
	"github.com/papercomputeco/shelf/pkg/worker"
)

// Environment variables holding credentials that never live in config.toml.
const (
	BooksAPIKeyEnv  = "GOOGLE_BOOKS_API_KEY"
	QdrantAPIKeyEnv = "QDRANT_API_KEY"
)

// Catalog is the catalog with the embedder and index it owns.
type Catalog struct {
	*catalog.Catalog
	Embedder *embeddings.Guarded
	Index    vector.Driver
}

// Close closes the index and the embedder.
func (c *Catalog) Close() error {
	return errors.Join(c.Catalog.Close(), c.Embedder.Close())
}

// Services is every long lived component behind the API.
type Services struct {
	Catalog   *Catalog
	Store     storage.Driver
	Ledger    *ownership.Ledger
	Tracker   *stability.Tracker
	Extractor *ocr.VisionExtractor
	Explainer *explain.Explainer
	Publisher eventstream.Publisher
	Pool      *worker.Pool
	Scanner   *scanner.Scanner

	closers []func() error
}

// Close shuts components down in reverse construction order.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Resolve makes a relative path relative to dir. Empty paths and ":memory:"
// are returned unchanged.
func Resolve(dir, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Thresholds converts the match section into a catalog policy.
func Thresholds(m config.MatchConfig) catalog.Thresholds {
	return catalog.Thresholds{
		Semantic:       m.SemanticThreshold,
		Lexical:        m.LexicalThreshold,
		Fallback:       m.FallbackThreshold,
		SemanticWeight: m.SemanticWeight,
		Duplicate:      m.DuplicateThreshold,
		TopK:           m.TopK,
		MinTitleWords:  m.MinTitleWords,
		MinTitleChars:  m.MinTitleChars,
	}
}

// Matcher converts the ownership section into a fuzzy equivalence policy.
func Matcher(o config.OwnershipConfig) similarity.Matcher {
	return similarity.Matcher{Threshold: o.FuzzyThreshold, LengthMargin: o.LengthMargin}
}

// OpenCatalog opens the catalog, its index and its embedder. Relative paths
// resolve against dir.
func OpenCatalog(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*Catalog, error) {
	qdrantKey, err := APIKey(dir, QdrantAPIKeyEnv)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType:  cfg.Embedding.Provider,
		TargetURL:     cfg.Embedding.Target,
		Model:         cfg.Embedding.Model,
		Dimensions:    int(cfg.Embedding.Dimensions),
		MaxInputChars: cfg.Embedding.MaxInputChars,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	index, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       vectorTarget(cfg, dir),
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		APIKey:       qdrantKey,
		Logger:       logger,
	})
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}

	cat, err := catalog.Open(ctx, catalog.Options{
		Store:      catalog.NewFileStore(Resolve(dir, cfg.Storage.CatalogPath)),
		Index:      index,
		Embedder:   embedder,
		Thresholds: Thresholds(cfg.Match),
		Dimensions: int(cfg.Embedding.Dimensions),
		Logger:     logger,
	})
	if err != nil {
		index.Close()
		embedder.Close()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	return &Catalog{Catalog: cat, Embedder: embedder, Index: index}, nil
}

// vectorTarget resolves file backed index paths; qdrant targets are addresses.
func vectorTarget(cfg *config.Config, dir string) string {
	if cfg.VectorStore.Provider == "qdrant" {
		return cfg.VectorStore.Target
	}
	return Resolve(dir, cfg.VectorStore.Target)
}

// NewStorageDriver opens the configured ownership store.
func NewStorageDriver(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (storage.Driver, error) {
	target := cfg.Storage.OwnershipTarget

	switch cfg.Storage.OwnershipProvider {
	case "memory":
		logger.Info("using in-memory ownership storage")
		return inmemory.NewDriver(), nil
	case "", "sqlite":
		path := Resolve(dir, target)
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite ownership store: %w", err)
		}
		logger.Info("using SQLite ownership storage", "path", path)
		return driver, nil
	case "postgres":
		driver, err := postgres.NewDriver(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL ownership store: %w", err)
		}
		logger.Info("using PostgreSQL ownership storage")
		return driver, nil
	case "redis":
		driver, err := redis.NewDriver(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis ownership store: %w", err)
		}
		logger.Info("using Redis ownership storage")
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported ownership provider: %s", cfg.Storage.OwnershipProvider)
	}
}

// APIKey resolves envVar from the environment, falling back to the key
// stored in dir's credentials.toml.
func APIKey(dir, envVar string) (string, error) {
	mgr, err := credentials.NewManager(dir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	key, err := mgr.Resolve(envVar)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", envVar, err)
	}
	return key, nil
}

// NewProvider builds a chat provider, resolving its API key from apiKeyEnv.
func NewProvider(providerType, target, apiKeyEnv, dir string, cfg *config.Config) (provider.Provider, error) {
	apiKey, err := APIKey(dir, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	return provider.New(providerType, llm.ClientConfig{
		BaseURL: target,
		APIKey:  apiKey,
		Timeout: cfg.Inference.TimeoutDuration(),
	})
}

// NewExplainer builds the book explainer. The "none" provider answers from
// book metadata alone.
func NewExplainer(cfg *config.Config, dir string, logger *slog.Logger) (*explain.Explainer, error) {
	var p provider.Provider
	if cfg.Explain.Provider != "none" {
		var err error
		p, err = NewProvider(cfg.Explain.Provider, cfg.Explain.Target, cfg.Explain.APIKeyEnv, dir, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating explain provider: %w", err)
		}
	}
	booksKey, err := APIKey(dir, BooksAPIKeyEnv)
	if err != nil {
		return nil, err
	}
	return explain.New(explain.Options{
		Books:    explain.NewGoogleBooks(cfg.Explain.BooksTarget, booksKey, cfg.Inference.TimeoutDuration()),
		Provider: p,
		Model:    cfg.Explain.Model,
		Logger:   logger,
	}), nil
}

// NewPublisher builds the configured book event publisher.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.BrokerList(),
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		logger.Info("publishing book events to kafka", "topic", p.Topic())
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", cfg.Events.Provider)
	}
}

// Open builds every service behind the API. On error anything already
// opened is closed.
func Open(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (_ *Services, err error) {
	s := &Services{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.Catalog, err = OpenCatalog(ctx, cfg, dir, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.Catalog.Close)

	s.Store, err = NewStorageDriver(ctx, cfg, dir, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.Store.Close)

	s.Ledger = ownership.NewLedger(ownership.Options{
		Store:         s.Store,
		Matcher:       Matcher(cfg.Ownership),
		CacheTTL:      cfg.Ownership.CacheTTLDuration(),
		CacheCapacity: cfg.Ownership.CacheCapacity,
		Logger:        logger,
	})

	s.Tracker = stability.NewTracker(stability.Options{
		Window:      cfg.Stability.Window,
		Quorum:      cfg.Stability.Quorum,
		IdleTimeout: cfg.Stability.IdleTimeoutDuration(),
		Matcher:     Matcher(cfg.Ownership),
		Logger:      logger,
	})

	ocrProvider, err := NewProvider(cfg.OCR.Provider, cfg.OCR.Target, cfg.OCR.APIKeyEnv, dir, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating OCR provider: %w", err)
	}
	s.Extractor = ocr.NewVisionExtractor(ocrProvider, cfg.OCR.Model, logger)
	s.closers = append(s.closers, s.Extractor.Close)

	s.Explainer, err = NewExplainer(cfg, dir, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.Explainer.Close)

	s.Publisher, err = NewPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.Publisher.Close)

	s.Pool, err = worker.NewPool(&worker.Config{
		Publisher: s.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	s.closers = append(s.closers, func() error {
		s.Pool.Close()
		return nil
	})

	s.Scanner = scanner.New(scanner.Options{
		Catalog:        s.Catalog.Catalog,
		Ledger:         s.Ledger,
		Tracker:        s.Tracker,
		Extractor:      s.Extractor,
		Explainer:      s.Explainer,
		Jobs:           s.Pool,
		MaxConcurrent:  int64(cfg.Inference.MaxConcurrent),
		Timeout:        cfg.Inference.TimeoutDuration(),
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		TempDir:        cfg.API.TempDir,
		Logger:         logger,
	})

	return s, nil
}

// Reload applies the hot reloadable parts of cfg: match thresholds and the
// fuzzy policy shared by the ownership ledger and the stability tracker.
func (s *Services) Reload(cfg *config.Config) error {
	if err := s.Catalog.SetThresholds(Thresholds(cfg.Match)); err != nil {
		return err
	}
	s.Ledger.SetMatcher(Matcher(cfg.Ownership))
	s.Tracker.SetMatcher(Matcher(cfg.Ownership))
	return nil
}
