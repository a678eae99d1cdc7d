package vector

import "fmt"

// CheckEntries verifies that entries continue an index of count entries with
// the given dimensions. Zero dims skips the size check.
func CheckEntries(entries []Entry, count, dims int) error {
	for i, e := range entries {
		if e.Position != count+i {
			return fmt.Errorf("%w: got %d, want %d", ErrPosition, e.Position, count+i)
		}
		if dims > 0 && len(e.Embedding) != dims {
			return fmt.Errorf("%w: position %d has %d, want %d", ErrDimensions, e.Position, len(e.Embedding), dims)
		}
	}
	return nil
}

// ClampK bounds k to the index size.
func ClampK(k, count int) int {
	if k <= 0 || k > count {
		return count
	}
	return k
}
