// Package inmemory provides a map backed storage driver.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/shelf/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the per-user entries
	mu sync.RWMutex

	// users maps a user id to their entries in insertion order
	users map[string][]storage.Entry
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		users: make(map[string][]storage.Entry),
	}
}

// Titles returns the user's titles in insertion order.
func (d *Driver) Titles(_ context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, storage.ErrEmptyUser
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := d.users[userID]
	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}
	return titles, nil
}

// InsertIfAbsent stores the entry unless its fingerprint is already owned.
func (d *Driver) InsertIfAbsent(_ context.Context, entry storage.Entry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.users[entry.UserID] {
		if e.Fingerprint == entry.Fingerprint {
			return false, nil
		}
	}

	d.users[entry.UserID] = append(d.users[entry.UserID], entry)
	return true, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
