// Package vector provides interfaces and implementations for the nearest
// neighbour index behind the book catalog.
//
// Index positions are dense: the i-th embedding added to an index has position
// i, matching the i-th catalog record. Drivers only ever append at the end or
// truncate from the end, which keeps positions and records aligned.
package vector

import "context"

// Entry is an embedding stored at a catalog position.
type Entry struct {
	// Position is the catalog index of the record this embedding belongs to.
	Position int

	// Embedding is the unit length vector of the record's title.
	Embedding []float32
}

// Result is a query hit.
type Result struct {
	Position int

	// Score is the cosine similarity with the query, in [-1, 1]. Higher is
	// more similar.
	Score float64
}

// Driver handles storage and retrieval of catalog embeddings.
type Driver interface {
	// Add appends entries. Their positions must continue the current count
	// exactly, otherwise ErrPosition is returned and nothing is stored.
	Add(ctx context.Context, entries []Entry) error

	// Query returns up to k results ordered by descending score. An empty
	// index yields no results.
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)

	// Count is the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Truncate drops every entry at position n or above.
	Truncate(ctx context.Context, n int) error

	// Flush makes every added entry durable.
	Flush(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}
