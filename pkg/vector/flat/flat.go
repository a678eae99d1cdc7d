// Package flat provides an exact, in-process vector index persisted to a
// single binary file.
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/papercomputeco/shelf/pkg/vector"
)

const (
	magic = "SHLFVEC1"

	// headerSize is the magic, a uint32 dimension count and a uint64 row count.
	headerSize = int64(len(magic)) + 4 + 8
)

// Config holds configuration for the flat driver.
type Config struct {
	// Path is the index file. Empty or ":memory:" keeps the index in memory only.
	Path string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions int
}

// Driver is an exact nearest neighbour index over unit vectors.
type Driver struct {
	path   string
	dims   int
	logger *slog.Logger

	mu   sync.RWMutex
	rows [][]float32
}

// NewDriver opens the index at c.Path, loading it if the file exists.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("flat index dimensions must be configured")
	}

	d := &Driver{
		dims:   c.Dimensions,
		logger: logger,
	}
	if c.Path != "" && c.Path != ":memory:" {
		d.path = c.Path
	}

	if d.path != "" {
		err := d.load()
		switch {
		case errors.Is(err, vector.ErrCorrupt), errors.Is(err, vector.ErrDimensions):
			// An empty index disagrees with the catalog, which rebuilds it.
			logger.Warn("discarding unreadable flat index", "path", d.path, "error", err)
			d.rows = nil
		case err != nil:
			return nil, err
		}
	}

	logger.Info("flat vector index initialized",
		"path", d.path,
		"dimensions", d.dims,
		"count", len(d.rows),
	)

	return d, nil
}

func (d *Driver) load() error {
	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading index info: %w", err)
	}

	r := bufio.NewReader(f)

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil || string(header) != magic {
		return fmt.Errorf("%w: bad header", vector.ErrCorrupt)
	}

	var dims uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return fmt.Errorf("%w: reading dimensions: %w", vector.ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("%w: reading count: %w", vector.ErrCorrupt, err)
	}
	if int(dims) != d.dims {
		return fmt.Errorf("%w: file has %d, configured %d", vector.ErrDimensions, dims, d.dims)
	}

	rowSize := int64(4 * d.dims)
	if available := (info.Size() - headerSize) / rowSize; count > uint64(available) {
		return fmt.Errorf("%w: header claims %d rows, file holds %d", vector.ErrCorrupt, count, available)
	}

	buf := make([]byte, rowSize)
	rows := make([][]float32, 0, count)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%w: reading row %d: %w", vector.ErrCorrupt, i, err)
		}
		row := make([]float32, d.dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		rows = append(rows, row)
	}

	d.rows = rows
	return nil
}

// Add appends entries to the index.
func (d *Driver) Add(_ context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := vector.CheckEntries(entries, len(d.rows), d.dims); err != nil {
		return err
	}
	for _, e := range entries {
		d.rows = append(d.rows, slices.Clone(e.Embedding))
	}

	d.logger.Debug("added entries to flat index", "count", len(entries))
	return nil
}

// Query scans every row and returns the k best by inner product.
func (d *Driver) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensions, len(embedding), d.dims)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	k = vector.ClampK(k, len(d.rows))
	if k == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]vector.Result, len(d.rows))
	for i, row := range d.rows {
		var dot float64
		for j, x := range row {
			dot += float64(x) * float64(embedding[j])
		}
		results[i] = vector.Result{Position: i, Score: dot}
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

	return results[:k], nil
}

// Count is the number of rows.
func (d *Driver) Count(context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows), nil
}

// Truncate drops every row at position n or above.
func (d *Driver) Truncate(_ context.Context, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n < len(d.rows) {
		clear(d.rows[n:])
		d.rows = d.rows[:n]
	}
	return nil
}

// Flush writes the index to a temporary file and renames it over Path.
func (d *Driver) Flush(context.Context) error {
	if d.path == "" {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}

	d.logger.Debug("flushed flat index", "path", d.path, "count", len(d.rows))
	return nil
}

func (d *Driver) write(f *os.File) error {
	w := bufio.NewWriter(f)

	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(d.dims)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(d.rows))); err != nil {
		return err
	}

	buf := make([]byte, 4*d.dims)
	for _, row := range d.rows {
		for j, x := range row {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}

	return w.Flush()
}

// Close releases the in-memory rows. Unflushed entries are lost.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = nil
	return nil
}

var _ vector.Driver = (*Driver)(nil)
