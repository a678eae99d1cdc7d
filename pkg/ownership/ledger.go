// Package ownership records which books each user has saved.
//
// The backing store's insert-if-absent is the source of truth for
// duplicate prevention; the in-process cache only speeds up reads.
package ownership

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/shelf/pkg/metrics"
	"github.com/papercomputeco/shelf/pkg/normalize"
	"github.com/papercomputeco/shelf/pkg/similarity"
	"github.com/papercomputeco/shelf/pkg/storage"
)

// ErrEmptyTitle is returned when a title to save normalizes to nothing.
var ErrEmptyTitle = errors.New("title is empty after normalization")

// Options configures a Ledger.
type Options struct {
	Store         storage.Driver
	Matcher       similarity.Matcher
	CacheTTL      time.Duration
	CacheCapacity int
	Logger        *slog.Logger
	Now           func() time.Time
}

// Ledger answers and records per-user ownership.
type Ledger struct {
	store   storage.Driver
	matcher atomic.Pointer[similarity.Matcher]
	cache   *Cache
	logger  *slog.Logger
	now     func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(opts Options) *Ledger {
	if opts.Matcher == (similarity.Matcher{}) {
		opts.Matcher = similarity.DefaultMatcher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Ledger{
		store:  opts.Store,
		cache:  NewCache(opts.CacheTTL, opts.CacheCapacity, opts.Now),
		logger: opts.Logger,
		now:    opts.Now,
	}
	l.matcher.Store(&opts.Matcher)
	return l
}

// SetMatcher swaps the fuzzy equivalence policy used by later lookups.
func (l *Ledger) SetMatcher(m similarity.Matcher) {
	if m == (similarity.Matcher{}) {
		m = similarity.DefaultMatcher()
	}
	l.matcher.Store(&m)
}

// Matcher returns the current fuzzy equivalence policy.
func (l *Ledger) Matcher() similarity.Matcher {
	return *l.matcher.Load()
}

// Titles returns the user's titles, from cache when fresh.
func (l *Ledger) Titles(ctx context.Context, user string) ([]string, error) {
	if user == "" {
		return nil, storage.ErrEmptyUser
	}

	if titles, ok := l.cache.Get(user); ok {
		metrics.CacheResult(true)
		return titles, nil
	}
	metrics.CacheResult(false)

	return l.cache.Fill(ctx, user, func(ctx context.Context) ([]string, error) {
		return l.store.Titles(ctx, user)
	})
}

// HasBook reports whether the user owns title or a fuzzy equivalent of it.
// A title with no signal is never owned.
func (l *Ledger) HasBook(ctx context.Context, user, title string) (bool, error) {
	normalized := normalize.Normalize(title)
	if normalized == "" {
		if user == "" {
			return false, storage.ErrEmptyUser
		}
		return false, nil
	}

	titles, err := l.Titles(ctx, user)
	if err != nil {
		return false, err
	}
	return l.owns(titles, normalized), nil
}

func (l *Ledger) owns(titles []string, normalized string) bool {
	m := l.matcher.Load()
	for _, t := range titles {
		if m.Equivalent(normalized, t) {
			return true
		}
	}
	return false
}

// SaveBook records that the user owns title. It returns false when the user
// already owns it or a fuzzy equivalent, including when a concurrent save
// won the race at the store.
func (l *Ledger) SaveBook(ctx context.Context, user, title string) (bool, error) {
	normalized := normalize.Normalize(title)
	if normalized == "" {
		return false, ErrEmptyTitle
	}

	owned, err := l.HasBook(ctx, user, normalized)
	if err != nil {
		return false, err
	}
	if owned {
		return false, nil
	}

	inserted, err := l.store.InsertIfAbsent(ctx, storage.Entry{
		UserID:      user,
		Fingerprint: normalize.Fingerprint(normalized),
		Title:       normalized,
		CreatedAt:   l.now().UTC(),
	})
	if err != nil {
		return false, err
	}

	if !inserted {
		// Another writer got there first; resync on the next read.
		l.cache.Invalidate(user)
		l.logger.Debug("ownership insert lost to an existing entry", "user", user, "title", normalized)
		return false, nil
	}

	l.cache.Append(user, normalized)
	l.logger.Info("book saved", "user", user, "title", normalized)
	return true, nil
}

// Cache exposes the read cache for inspection.
func (l *Ledger) Cache() *Cache {
	return l.cache
}
