// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/shelf/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS owned_books (
	user_id     TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	title       TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, fingerprint)
)`

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database is private to its connection, and SQLite allows a
	// single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDriver{db: db}, nil
}

// Titles returns the user's titles, oldest first.
func (d *SQLiteDriver) Titles(ctx context.Context, userID string) ([]string, error) {
	return storage.SQLTitles(ctx, d.db,
		`SELECT title FROM owned_books WHERE user_id = ? ORDER BY created_at, rowid`,
		userID,
	)
}

// InsertIfAbsent inserts the entry, doing nothing on a key conflict.
func (d *SQLiteDriver) InsertIfAbsent(ctx context.Context, entry storage.Entry) (bool, error) {
	return storage.SQLInsertIfAbsent(ctx, d.db,
		`INSERT INTO owned_books (user_id, fingerprint, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, fingerprint) DO NOTHING`,
		entry,
	)
}

// Close closes the database.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

var _ storage.Driver = (*SQLiteDriver)(nil)
