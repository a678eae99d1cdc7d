// Package redis provides a Redis-backed storage driver. Each user's books
// live in one hash keyed by title fingerprint.
package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/shelf/pkg/storage"
)

// KeyPrefix namespaces the per-user hashes.
const KeyPrefix = "shelf:owned:"

type value struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Driver implements storage.Driver for Redis.
type Driver struct {
	client *redis.Client
}

// NewDriver connects to the Redis server at url, e.g. "redis://localhost:6379/0".
func NewDriver(ctx context.Context, url string) (*Driver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *Driver {
	return &Driver{client: client}
}

func key(userID string) string {
	return KeyPrefix + userID
}

// Titles returns the user's titles, oldest first.
func (d *Driver) Titles(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, storage.ErrEmptyUser
	}

	fields, err := d.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading owned books: %w", err)
	}

	values := make([]value, 0, len(fields))
	for fp, raw := range fields {
		var v value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding owned book %s: %w", fp, err)
		}
		values = append(values, v)
	}

	slices.SortFunc(values, func(a, b value) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Title < b.Title {
			return -1
		}
		if a.Title > b.Title {
			return 1
		}
		return 0
	})

	titles := make([]string, len(values))
	for i, v := range values {
		titles[i] = v.Title
	}
	return titles, nil
}

// InsertIfAbsent sets the fingerprint field only if it is not already set.
func (d *Driver) InsertIfAbsent(ctx context.Context, entry storage.Entry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}

	raw, err := json.Marshal(value{Title: entry.Title, CreatedAt: entry.CreatedAt.UTC()})
	if err != nil {
		return false, fmt.Errorf("encoding owned book: %w", err)
	}

	ok, err := d.client.HSetNX(ctx, key(entry.UserID), entry.Fingerprint, raw).Result()
	if err != nil {
		return false, fmt.Errorf("inserting owned book: %w", err)
	}
	return ok, nil
}

// Forget deletes every book the user owns.
func (d *Driver) Forget(ctx context.Context, userID string) error {
	if userID == "" {
		return storage.ErrEmptyUser
	}
	return d.client.Del(ctx, key(userID)).Err()
}

// Close closes the client.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ storage.Driver = (*Driver)(nil)
