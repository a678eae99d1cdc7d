// Package catalog is the global registry of canonical book titles and the
// vector index that searches it. The i-th record always sits at index
// position i; every mutation keeps the two aligned or rolls the index back.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/shelf/pkg/embeddings"
	"github.com/papercomputeco/shelf/pkg/metrics"
	"github.com/papercomputeco/shelf/pkg/normalize"
	"github.com/papercomputeco/shelf/pkg/similarity"
	"github.com/papercomputeco/shelf/pkg/vector"
)

const (
	defaultRebuildBatch = 64

	// embedConcurrency caps parallel embedding of records loaded without one.
	embedConcurrency = 4
)

// Options configures Open.
type Options struct {
	Store      RecordStore
	Index      vector.Driver
	Embedder   embeddings.Embedder
	Thresholds Thresholds

	// Dimensions is the embedding size. Zero infers it from stored records.
	Dimensions int

	// RebuildBatch is the number of entries added per index call on rebuild.
	RebuildBatch int

	Logger *slog.Logger

	// Now stamps new records. Defaults to time.Now.
	Now func() time.Time
}

// Match is the outcome of FindBestMatch.
type Match struct {
	// Record is the matched book. It is zero when Strength is StrengthNone.
	Record   BookRecord
	Position int
	Strength Strength

	// Semantic, Lexical and Combined are the scores of the best neighbour
	// seen, whether or not it matched.
	Semantic float64
	Lexical  float64
	Combined float64
}

// Found reports whether the match is weak or strong.
func (m Match) Found() bool {
	return m.Strength != StrengthNone
}

// Insertion is the outcome of Insert.
type Insertion struct {
	Record   BookRecord
	Position int

	// Created is false when an existing record was returned instead.
	Created bool
}

// Stats summarizes the catalog.
type Stats struct {
	Books      int        `json:"books"`
	Indexed    int        `json:"indexed"`
	Dimensions int        `json:"dimensions"`
	Thresholds Thresholds `json:"thresholds"`
}

// Catalog is safe for concurrent use. Queries share a read lock; inserts and
// rebuilds take the single mutation lock.
type Catalog struct {
	store    RecordStore
	index    vector.Driver
	embedder embeddings.Embedder
	logger   *slog.Logger
	now      func() time.Time
	batch    int

	thresholds atomic.Pointer[Thresholds]

	mu      sync.RWMutex
	records []BookRecord
	byTitle map[string]int
	dims    int
}

// Open loads the catalog, embeds records that lack an embedding and rebuilds
// the index when it disagrees with the records.
func Open(ctx context.Context, opts Options) (*Catalog, error) {
	if opts.Store == nil || opts.Index == nil || opts.Embedder == nil {
		return nil, errors.New("catalog requires a store, an index and an embedder")
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RebuildBatch <= 0 {
		opts.RebuildBatch = defaultRebuildBatch
	}

	c := &Catalog{
		store:    opts.Store,
		index:    opts.Index,
		embedder: opts.Embedder,
		logger:   opts.Logger,
		now:      opts.Now,
		batch:    opts.RebuildBatch,
		dims:     opts.Dimensions,
	}
	t := opts.Thresholds
	c.thresholds.Store(&t)

	loaded, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	records, changed, err := c.prepare(ctx, loaded)
	if err != nil {
		return nil, err
	}
	c.setRecords(records)

	if changed {
		if err := c.store.Save(ctx, records); err != nil {
			return nil, err
		}
	}

	count, err := c.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if changed || count != len(records) {
		c.logger.Warn("catalog and vector index disagree, rebuilding index",
			"records", len(records),
			"indexed", count,
		)
		if err := c.rebuild(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.Info("catalog opened", "books", len(records), "dimensions", c.dims)
	return c, nil
}

// prepare normalizes titles, drops duplicates and embeds records that have no
// usable embedding. changed reports whether the records differ from storage.
func (c *Catalog) prepare(ctx context.Context, loaded []BookRecord) ([]BookRecord, bool, error) {
	if c.dims == 0 {
		for _, r := range loaded {
			if len(r.Embedding) > 0 {
				c.dims = len(r.Embedding)
				break
			}
		}
	}

	changed := false
	seen := make(map[string]struct{}, len(loaded))
	records := make([]BookRecord, 0, len(loaded))

	for _, r := range loaded {
		title := normalize.Normalize(r.Title)
		if title != r.Title {
			changed = true
		}
		if title == "" {
			c.logger.Warn("dropping catalog record with empty title", "raw", r.Title)
			changed = true
			continue
		}
		if _, dup := seen[title]; dup {
			c.logger.Warn("dropping duplicate catalog record", "title", title)
			changed = true
			continue
		}
		seen[title] = struct{}{}

		if len(r.Embedding) == 0 || (c.dims > 0 && len(r.Embedding) != c.dims) || title != r.Title {
			r.Embedding = nil
			changed = true
		}

		r.Title = title
		if r.CreatedAt.IsZero() {
			r.CreatedAt = c.now().UTC()
			changed = true
		}
		records = append(records, r)
	}

	if err := c.embedMissing(ctx, records); err != nil {
		return nil, false, err
	}

	kept := records[:0]
	for _, r := range records {
		if r.Embedding == nil {
			c.logger.Warn("dropping catalog record without signal", "title", r.Title)
			continue
		}
		if c.dims == 0 {
			c.dims = len(r.Embedding)
		}
		if len(r.Embedding) != c.dims {
			return nil, false, fmt.Errorf("%w: %q has %d, want %d", ErrDimensions, r.Title, len(r.Embedding), c.dims)
		}
		kept = append(kept, r)
	}

	return kept, changed, nil
}

// embedMissing fills in the embedding of every record that has none. Records
// the embedder finds no signal in keep a nil embedding.
func (c *Catalog) embedMissing(ctx context.Context, records []BookRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i := range records {
		if records[i].Embedding != nil {
			continue
		}
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, records[i].Title)
			if errors.Is(err, embeddings.ErrNoSignal) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("embedding catalog record %q: %w", records[i].Title, err)
			}
			records[i].Embedding = vec
			return nil
		})
	}

	return g.Wait()
}

func (c *Catalog) setRecords(records []BookRecord) {
	c.records = records
	c.byTitle = make(map[string]int, len(records))
	for i, r := range records {
		c.byTitle[r.Title] = i
	}
	metrics.CatalogBooks.Set(float64(len(records)))
}

// rebuild re-adds every record to an emptied index. The caller holds the
// mutation lock or has exclusive access.
func (c *Catalog) rebuild(ctx context.Context) error {
	if err := c.index.Truncate(ctx, 0); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	for start := 0; start < len(c.records); start += c.batch {
		end := min(start+c.batch, len(c.records))
		entries := make([]vector.Entry, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, vector.Entry{Position: i, Embedding: c.records[i].Embedding})
		}
		if err := c.index.Add(ctx, entries); err != nil {
			return fmt.Errorf("rebuilding index at %d: %w", start, err)
		}
	}

	if err := c.index.Flush(ctx); err != nil {
		return fmt.Errorf("flushing rebuilt index: %w", err)
	}

	metrics.CatalogRebuilds.Inc()
	c.logger.Info("vector index rebuilt", "books", len(c.records))
	return nil
}

// Rebuild re-creates the vector index from the stored record embeddings.
func (c *Catalog) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuild(ctx)
}

// Thresholds returns the current policy.
func (c *Catalog) Thresholds() Thresholds {
	return *c.thresholds.Load()
}

// SetThresholds swaps the policy. In-flight queries finish on the old one.
func (c *Catalog) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.thresholds.Store(&t)
	c.logger.Info("catalog thresholds updated",
		"semantic", t.Semantic,
		"lexical", t.Lexical,
		"fallback", t.Fallback,
		"duplicate", t.Duplicate,
	)
	return nil
}

// FindBestMatch looks up the closest catalog record to title.
func (c *Catalog) FindBestMatch(ctx context.Context, title string) (Match, error) {
	normalized := normalize.Normalize(title)
	if normalized == "" {
		return Match{}, ErrEmptyTitle
	}

	vec, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return Match{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match(ctx, normalized, vec, c.Thresholds())
}

// match verifies the nearest neighbours of vec with the lexical gate. The
// caller holds a lock.
func (c *Catalog) match(ctx context.Context, normalized string, vec []float32, t Thresholds) (Match, error) {
	if pos, ok := c.byTitle[normalized]; ok {
		return Match{
			Record:   c.records[pos],
			Position: pos,
			Strength: StrengthStrong,
			Semantic: 1,
			Lexical:  1,
			Combined: 1,
		}, nil
	}

	results, err := c.index.Query(ctx, vec, t.TopK)
	if err != nil {
		return Match{}, fmt.Errorf("querying index: %w", err)
	}

	best := Match{Position: -1, Combined: -1}
	for _, r := range results {
		if r.Position < 0 || r.Position >= len(c.records) {
			c.logger.Warn("index returned a position beyond the catalog", "position", r.Position)
			continue
		}

		rec := c.records[r.Position]
		lexical := similarity.TokenSetRatio(normalized, rec.Title)
		combined := t.Combined(r.Score, lexical)
		strength := Classify(r.Score, lexical, t)

		if strength > best.Strength || (strength == best.Strength && combined > best.Combined) {
			best = Match{
				Position: r.Position,
				Strength: strength,
				Semantic: r.Score,
				Lexical:  lexical,
				Combined: combined,
			}
			if strength != StrengthNone {
				best.Record = rec
			}
		}
	}

	if best.Strength == StrengthNone {
		best.Position = -1
		best.Record = BookRecord{}
		if best.Combined < 0 {
			best.Combined = 0
		}
	}

	return best, nil
}

// Insert adds title to the catalog unless it or a strict duplicate is
// already present, in which case the existing record is returned.
func (c *Catalog) Insert(ctx context.Context, title string) (Insertion, error) {
	t := c.Thresholds()

	normalized := normalize.Normalize(title)
	if normalize.Words(normalized) < t.MinTitleWords || len(normalized) < t.MinTitleChars {
		return Insertion{}, fmt.Errorf("%w: %q", ErrUnusableTitle, normalized)
	}

	vec, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return Insertion{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pos, ok := c.byTitle[normalized]; ok {
		return Insertion{Record: c.records[pos], Position: pos}, nil
	}

	if c.dims == 0 {
		c.dims = len(vec)
	}
	if len(vec) != c.dims {
		return Insertion{}, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(vec), c.dims)
	}

	results, err := c.index.Query(ctx, vec, t.TopK)
	if err != nil {
		return Insertion{}, fmt.Errorf("querying index: %w", err)
	}
	for _, r := range results {
		if r.Position < 0 || r.Position >= len(c.records) {
			continue
		}
		rec := c.records[r.Position]
		if r.Score >= t.Duplicate && similarity.TokenSetRatio(normalized, rec.Title) >= t.Lexical {
			c.logger.Debug("insert matched an existing record",
				"title", normalized,
				"existing", rec.Title,
				"semantic", r.Score,
			)
			return Insertion{Record: rec, Position: r.Position}, nil
		}
	}

	pos := len(c.records)
	rec := BookRecord{Title: normalized, Embedding: vec, CreatedAt: c.now().UTC()}

	if err := c.index.Add(ctx, []vector.Entry{{Position: pos, Embedding: vec}}); err != nil {
		return Insertion{}, c.rollback(ctx, pos, fmt.Errorf("adding to index: %w", err))
	}
	if err := c.index.Flush(ctx); err != nil {
		return Insertion{}, c.rollback(ctx, pos, fmt.Errorf("flushing index: %w", err))
	}

	next := append(slices.Clip(c.records), rec)
	if err := c.store.Save(ctx, next); err != nil {
		return Insertion{}, c.rollback(ctx, pos, fmt.Errorf("saving catalog: %w", err))
	}

	c.records = next
	c.byTitle[normalized] = pos
	metrics.CatalogBooks.Set(float64(len(c.records)))

	c.logger.Info("book cataloged", "title", normalized, "position", pos)
	return Insertion{Record: rec, Position: pos, Created: true}, nil
}

// rollback truncates the index back to n entries after a failed insert.
func (c *Catalog) rollback(ctx context.Context, n int, cause error) error {
	// The caller's context may be what failed; rollback must still run.
	ctx = context.WithoutCancel(ctx)

	if err := c.index.Truncate(ctx, n); err != nil {
		c.logger.Error("index rollback failed", "position", n, "error", err)
		return errors.Join(cause, err)
	}
	if err := c.index.Flush(ctx); err != nil {
		c.logger.Error("index rollback flush failed", "position", n, "error", err)
		return errors.Join(cause, err)
	}
	c.logger.Warn("insert rolled back", "position", n, "error", cause)
	return cause
}

// Len is the number of records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Records returns a copy of every record in position order.
func (c *Catalog) Records() []BookRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records)
}

// Stats reports record and index counts.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	indexed, err := c.index.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Books:      len(c.records),
		Indexed:    indexed,
		Dimensions: c.dims,
		Thresholds: c.Thresholds(),
	}, nil
}

// Close closes the index.
func (c *Catalog) Close() error {
	return c.index.Close()
}
