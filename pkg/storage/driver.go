// Package storage persists which books each user owns.
//
// Entries are keyed by (user, title fingerprint). Drivers insert
// idempotently: a second insert of the same key is a no-op that reports
// false, which is what makes SaveBook race free across processes.
package storage

import (
	"context"
	"time"
)

// Entry is one owned book.
type Entry struct {
	UserID string

	// Fingerprint is normalize.Fingerprint of Title.
	Fingerprint string

	// Title is the normalized title as first saved.
	Title string

	CreatedAt time.Time
}

// Driver defines the interface for persisting and retrieving ownership
// entries in a storage backend.
type Driver interface {
	// Titles returns every title the user owns, oldest first.
	Titles(ctx context.Context, userID string) ([]string, error)

	// InsertIfAbsent stores the entry unless the user already has one with the
	// same fingerprint. It returns true if the entry was newly inserted.
	InsertIfAbsent(ctx context.Context, entry Entry) (bool, error)

	// Close closes the store and releases any resources.
	Close() error
}
