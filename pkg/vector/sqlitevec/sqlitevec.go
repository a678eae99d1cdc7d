// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/shelf/pkg/vector"
)

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
// Catalog position p is stored at rowid p+1 since vec0 rowids start at 1.
type SQLiteVecDriver struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger

	// mu serializes writes so position checks and inserts are atomic.
	mu sync.Mutex
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *slog.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dimensions := c.Dimensions
	if dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", vector.ErrConnection, err)
	}

	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS book_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", dimensions,
		"vec_version", vecVersion,
	)

	return &SQLiteVecDriver{
		db:     db,
		dims:   int(dimensions),
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Add appends entries in a single transaction.
func (d *SQLiteVecDriver) Add(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	count, err := d.Count(ctx)
	if err != nil {
		return err
	}
	if err := vector.CheckEntries(entries, count, d.dims); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO book_embeddings(rowid, embedding) VALUES (?, ?)`,
			int64(e.Position)+1, serializeFloat32(e.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding at position %d: %w", e.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added entries to sqlite-vec", "count", len(entries))
	return nil
}

// Query runs a KNN search over the vec0 table.
func (d *SQLiteVecDriver) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensions, len(embedding), d.dims)
	}

	count, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	k = vector.ClampK(k, count)
	if k == 0 {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM book_embeddings
		WHERE embedding MATCH ?
			AND k = ?
		ORDER BY distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	results := make([]vector.Result, 0, k)
	for rows.Next() {
		var rowID int64
		var distance float64
		if err := rows.Scan(&rowID, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		results = append(results, vector.Result{
			Position: int(rowID - 1),
			// cosine distance is 1 - cosine similarity
			Score: 1 - distance,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

// Count is the number of stored embeddings.
func (d *SQLiteVecDriver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// Truncate drops every embedding at position n or above.
func (d *SQLiteVecDriver) Truncate(ctx context.Context, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM book_embeddings WHERE rowid > ?`, int64(max(n, 0)),
	); err != nil {
		return fmt.Errorf("truncating embeddings: %w", err)
	}
	return nil
}

// Flush is a no-op: every Add commits its own transaction.
func (d *SQLiteVecDriver) Flush(context.Context) error {
	return nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

var _ vector.Driver = (*SQLiteVecDriver)(nil)
