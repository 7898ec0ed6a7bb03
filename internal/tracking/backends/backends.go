// Package backends opens the tracking backend named by a store URI.
package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/auth"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/mysql"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/postgres"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/sqlite"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/artifacts"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/filestore"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/rest"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/sqlstore"
)

const DefaultStoreURI = "./mlruns"

// StoreURI returns the explicit URI, else MLFLOW_TRACKING_URI, else the
// local mlruns directory.
func StoreURI(explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	return env.String("MLFLOW_TRACKING_URI", DefaultStoreURI)
}

// Kind is the backend family a store URI selects.
type Kind string

const (
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindSQLite   Kind = "sqlite"
	KindREST     Kind = "rest"
)

// KindOf classifies uri without opening anything.
func KindOf(uri string) (Kind, error) {
	uri = strings.TrimSpace(uri)
	scheme, _, hasScheme := strings.Cut(uri, "://")
	if !hasScheme {
		if uri == "databricks" || strings.HasPrefix(uri, "databricks:") {
			return "", fmt.Errorf("store uri %q: %w", uri, tracking.ErrUnsupportedStore)
		}
		return KindFile, nil
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	switch strings.ToLower(scheme) {
	case "file":
		return KindFile, nil
	case "postgres", "postgresql":
		return KindPostgres, nil
	case "mysql":
		return KindMySQL, nil
	case "sqlite":
		return KindSQLite, nil
	case "http", "https":
		return KindREST, nil
	default:
		return "", fmt.Errorf("store uri %q: %w", uri, tracking.ErrUnsupportedStore)
	}
}

// Open selects and opens the backend for uri. The capabilities of the
// backend are fixed here; callers never probe them again.
func Open(ctx context.Context, uri string, logger *slog.Logger) (tracking.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	uri = strings.TrimSpace(uri)
	kind, err := KindOf(uri)
	if err != nil {
		return tracking.Backend{}, err
	}

	switch kind {
	case KindFile:
		root := strings.TrimPrefix(strings.TrimPrefix(uri, "file://"), "file:")
		store, err := filestore.Open(root)
		if err != nil {
			return tracking.Backend{}, err
		}
		logger.Info("opened file store", "root", store.Identity())
		return tracking.Backend{
			Store:     store,
			Registry:  filestore.NewRegistry(store),
			Artifacts: artifacts.NewResolver("", nil),
		}, nil

	case KindPostgres:
		cfg, err := postgres.ConfigFromEnv(uri)
		if err != nil {
			return tracking.Backend{}, err
		}
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return tracking.Backend{}, fmt.Errorf("open postgres store: %w", err)
		}
		return sqlBackend(db, sqlstore.Postgres, uri, logger)

	case KindMySQL:
		cfg, err := mysql.ConfigFromEnv(uri)
		if err != nil {
			return tracking.Backend{}, err
		}
		db, err := mysql.Open(ctx, cfg)
		if err != nil {
			return tracking.Backend{}, fmt.Errorf("open mysql store: %w", err)
		}
		return sqlBackend(db, sqlstore.MySQL, uri, logger)

	case KindSQLite:
		path, err := sqlite.PathFromURI(uri)
		if err != nil {
			return tracking.Backend{}, err
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return tracking.Backend{}, fmt.Errorf("open sqlite store: %w", err)
		}
		return sqlBackend(db, sqlstore.SQLite, uri, logger)

	case KindREST:
		authCfg, err := auth.ConfigFromEnv()
		if err != nil {
			return tracking.Backend{}, err
		}
		httpClient, err := auth.NewHTTPClient(ctx, authCfg)
		if err != nil {
			return tracking.Backend{}, err
		}
		return restBackend(ctx, uri, httpClient, logger)
	}
	return tracking.Backend{}, fmt.Errorf("store uri %q: %w", uri, tracking.ErrUnsupportedStore)
}

func sqlBackend(db *sql.DB, dialect sqlstore.Dialect, uri string, logger *slog.Logger) (tracking.Backend, error) {
	store, err := sqlstore.New(db, dialect, uri)
	if err != nil {
		_ = db.Close()
		return tracking.Backend{}, err
	}
	logger.Info("opened sql store", "dialect", dialect.String())
	return tracking.Backend{
		Store:     store,
		Registry:  store,
		Artifacts: artifacts.NewResolver("", nil),
	}, nil
}

func restBackend(ctx context.Context, uri string, httpClient *http.Client, logger *slog.Logger) (tracking.Backend, error) {
	store, err := rest.Open(ctx, uri, httpClient)
	if err != nil {
		return tracking.Backend{}, err
	}
	logger.Info("opened tracking server", "uri", store.Identity(), "flavour", string(store.Flavour()))
	return tracking.Backend{
		Store:     store,
		Registry:  rest.NewRegistry(store),
		Artifacts: artifacts.NewResolver(store.Identity(), httpClient),
	}, nil
}
