package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyUser is returned when an operation is missing a user id.
	ErrEmptyUser = errors.New("user id is required")

	// ErrEmptyFingerprint is returned when an entry has no fingerprint.
	ErrEmptyFingerprint = errors.New("title fingerprint is required")
)

// Validate checks the fields every driver requires.
func (e Entry) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUser
	}
	if e.Fingerprint == "" {
		return fmt.Errorf("%w: title %q", ErrEmptyFingerprint, e.Title)
	}
	return nil
}
