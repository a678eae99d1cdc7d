package catalog

import "errors"

var (
	// ErrUnusableTitle is returned when a title is too short to insert.
	ErrUnusableTitle = errors.New("title too short to catalog")

	// ErrEmptyTitle is returned when a title normalizes to nothing.
	ErrEmptyTitle = errors.New("title is empty after normalization")

	// ErrCorruptCatalog is returned when the catalog file cannot be decoded.
	ErrCorruptCatalog = errors.New("catalog file is corrupt")

	// ErrDimensions is returned when stored embeddings disagree with the model.
	ErrDimensions = errors.New("catalog embedding dimensions mismatch")
)
