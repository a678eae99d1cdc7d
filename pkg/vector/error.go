package vector

import "errors"

var (
	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensions is returned when an embedding does not match the index size.
	ErrDimensions = errors.New("embedding dimensions do not match index")

	// ErrPosition is returned when added entries do not continue the index.
	ErrPosition = errors.New("entry position does not continue the index")

	// ErrCorrupt is returned when a persisted index cannot be decoded.
	ErrCorrupt = errors.New("vector index file is corrupt")
)
