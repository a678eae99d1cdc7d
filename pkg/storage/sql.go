package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLTitles and SQLInsertIfAbsent share the query logic of the SQL drivers,
// which differ only in placeholder syntax.

// SQLTitles runs query with userID and collects the title column.
func SQLTitles(ctx context.Context, db *sql.DB, query, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating titles: %w", err)
	}
	return titles, nil
}

// SQLInsertIfAbsent runs an INSERT ... ON CONFLICT DO NOTHING statement and
// reports whether a row was written.
func SQLInsertIfAbsent(ctx context.Context, db *sql.DB, stmt string, entry Entry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, stmt, entry.UserID, entry.Fingerprint, entry.Title, entry.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("inserting owned book: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}
