package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect selects the placeholder and identifier quoting syntax. Queries are
// written with $N placeholders, each used once and in ascending order, and
// double-quoted identifiers. They never contain double-quoted literals.
type Dialect int

const (
	Postgres Dialect = iota + 1
	SQLite
	MySQL
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

func (d Dialect) valid() bool {
	return d == Postgres || d == SQLite || d == MySQL
}

func (d Dialect) rebind(query string) string {
	if d == Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '"' && d == MySQL {
			b.WriteByte('`')
			continue
		}
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// upsertExperimentTag inserts or replaces one experiment tag.
func (d Dialect) upsertExperimentTag() string {
	if d == MySQL {
		return `INSERT INTO experiment_tags ("key", value, experiment_id) VALUES ($1,$2,$3)
		 ON DUPLICATE KEY UPDATE value = VALUES(value)`
	}
	return `INSERT INTO experiment_tags ("key", value, experiment_id) VALUES ($1,$2,$3)
		 ON CONFLICT ("key", experiment_id) DO UPDATE SET value = excluded.value`
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.ErrNotFound
	}
	return err
}

// experimentArg passes numeric ids as integers so the comparison with the
// integer experiment_id column needs no cast.
func experimentArg(id string) any {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func metricValue(value float64, isNaN bool) float64 {
	if isNaN {
		return math.NaN()
	}
	return value
}

func lifecycle(stage sql.NullString) domain.LifecycleStage {
	if stage.Valid && strings.EqualFold(stage.String, string(domain.LifecycleDeleted)) {
		return domain.LifecycleDeleted
	}
	return domain.LifecycleActive
}
