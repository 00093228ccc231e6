package reader

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// SQLReader reads identifiers from the first column of a SELECT against a
// SQLite database, such as the src_ip column of an IR event store. The
// database is opened read-only.
type SQLReader struct {
	path   string
	query  string
	filter *Filter
}

// NewSQLReader creates a reader running query against the database at path.
func NewSQLReader(path, query string, filter *Filter) *SQLReader {
	return &SQLReader{path: path, query: query, filter: filter}
}

func (r *SQLReader) Read(ctx context.Context) ([]string, error) {
	q := strings.TrimSpace(r.query)
	if !strings.HasPrefix(strings.ToUpper(q), "SELECT") {
		return nil, fmt.Errorf("%w: query must be a SELECT statement", ErrInvalidInputContent)
	}
	if _, err := os.Stat(r.path); err != nil {
		return nil, fmt.Errorf("open database %s: %w", r.path, err)
	}

	db, err := sql.Open(sqliteDriver, sqliteReadOnlyDSN(r.path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.path, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrInvalidInputContent, err)
		}
		if v.Valid {
			ids = append(ids, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: query returned no identifiers", ErrInvalidInputContent)
	}
	return r.filter.Filter(ctx, ids)
}
