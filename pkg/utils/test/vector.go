package testutils

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/papercomputeco/shelf/pkg/embeddings"
	"github.com/papercomputeco/shelf/pkg/vector"
)

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")

// MockVectorDriver is an exact in-memory vector driver with failure injection.
type MockVectorDriver struct {
	mu   sync.Mutex
	rows [][]float32

	// FailAdd causes Add to return ErrInjected.
	FailAdd bool

	// FailFlush causes Flush to return ErrInjected.
	FailFlush bool

	// Flushes counts successful Flush calls.
	Flushes int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Add(_ context.Context, entries []vector.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd {
		return ErrInjected
	}
	if err := vector.CheckEntries(entries, len(m.rows), 0); err != nil {
		return err
	}
	for _, e := range entries {
		m.rows = append(m.rows, slices.Clone(e.Embedding))
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, k int) ([]vector.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]vector.Result, len(m.rows))
	for i, row := range m.rows {
		results[i] = vector.Result{Position: i, Score: embeddings.Dot(row, embedding)}
	}
	slices.SortStableFunc(results, func(a, b vector.Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return results[:vector.ClampK(k, len(results))], nil
}

func (m *MockVectorDriver) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *MockVectorDriver) Truncate(_ context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < len(m.rows) {
		m.rows = m.rows[:max(n, 0)]
	}
	return nil
}

func (m *MockVectorDriver) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFlush {
		return ErrInjected
	}
	m.Flushes++
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
