package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Config struct {
	URL          string
	PingTimeout  time.Duration
	MaxOpenConns int
}

// ConfigFromEnv builds a config for the tracking database at storeURI.
// SQLAlchemy driver suffixes such as "postgresql+psycopg2" are dropped.
func ConfigFromEnv(storeURI string) (Config, error) {
	pingTimeout, err := env.Duration("MLFLOW_SQL_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:          NormalizeURL(storeURI),
		PingTimeout:  pingTimeout,
		MaxOpenConns: 2,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NormalizeURL rewrites an SQLAlchemy style URI into one pgx understands.
func NormalizeURL(storeURI string) string {
	storeURI = strings.TrimSpace(storeURI)
	scheme, rest, ok := strings.Cut(storeURI, "://")
	if !ok {
		return storeURI
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	return scheme + "://" + rest
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("database url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
	if c.PingTimeout <= 0 {
		return errors.New("MLFLOW_SQL_PING_TIMEOUT must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("max open conns must be >= 1")
	}
	return nil
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
