package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// PathFromURI extracts the database file from an SQLAlchemy style URI:
// sqlite:///relative.db, sqlite:////absolute.db or sqlite://.
func PathFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "sqlite://")
	if !ok {
		return "", fmt.Errorf("not a sqlite uri: %q", uri)
	}
	if rest == "" || rest == "/" || rest == "/:memory:" {
		return ":memory:", nil
	}
	if !strings.HasPrefix(rest, "/") {
		return "", fmt.Errorf("sqlite uri must not have a host: %q", uri)
	}
	rest = strings.TrimPrefix(rest, "/")
	if path, _, found := strings.Cut(rest, "?"); found {
		rest = path
	}
	if rest == "" {
		return "", errors.New("sqlite path is required")
	}
	return rest, nil
}

// Open opens the database file read-write and checks it answers.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
