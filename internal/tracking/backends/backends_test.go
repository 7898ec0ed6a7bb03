package backends

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/filestore"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/rest"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/sqlstore"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"./mlruns":                            KindFile,
		"/abs/mlruns":                         KindFile,
		"file:///abs/mlruns":                  KindFile,
		"postgresql://u:p@db/mlflow":          KindPostgres,
		"postgresql+psycopg2://u:p@db/mlflow": KindPostgres,
		"mysql://u:p@db/mlflow":               KindMySQL,
		"mysql+pymysql://u:p@db:3306/mlflow":  KindMySQL,
		"sqlite:///mlflow.db":                 KindSQLite,
		"http://localhost:5000":               KindREST,
		"https://mlflow.example.com":          KindREST,
	}
	for uri, want := range cases {
		got, err := KindOf(uri)
		if err != nil || got != want {
			t.Fatalf("KindOf(%q)=%q err=%v, want %q", uri, got, err, want)
		}
	}
	for _, uri := range []string{"databricks", "databricks://profile", "mssql://db/mlflow", "mssql+pyodbc://db/mlflow"} {
		if _, err := KindOf(uri); !errors.Is(err, tracking.ErrUnsupportedStore) {
			t.Fatalf("KindOf(%q) err=%v, want ErrUnsupportedStore", uri, err)
		}
	}
}

func TestStoreURI(t *testing.T) {
	t.Setenv("MLFLOW_TRACKING_URI", "")
	if got := StoreURI(""); got != DefaultStoreURI {
		t.Fatalf("StoreURI()=%q, want default", got)
	}
	t.Setenv("MLFLOW_TRACKING_URI", "http://tracking:5000")
	if got := StoreURI(""); got != "http://tracking:5000" {
		t.Fatalf("StoreURI()=%q, want env", got)
	}
	if got := StoreURI(" sqlite:///x.db "); got != "sqlite:///x.db" {
		t.Fatalf("StoreURI()=%q, want explicit", got)
	}
}

func TestOpenFileStore(t *testing.T) {
	root := t.TempDir()
	backend, err := Open(context.Background(), "file://"+root, newTestLogger())
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	defer backend.Close()
	if _, ok := backend.Store.(*filestore.Store); !ok {
		t.Fatalf("store=%T, want *filestore.Store", backend.Store)
	}
	if backend.Registry == nil || backend.Artifacts == nil {
		t.Fatalf("backend=%+v, want registry and artifacts", backend)
	}
}

func TestOpenSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlflow.db")
	backend, err := Open(context.Background(), "sqlite:///"+path, newTestLogger())
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	defer backend.Close()
	if _, ok := backend.Store.(*sqlstore.Store); !ok {
		t.Fatalf("store=%T, want *sqlstore.Store", backend.Store)
	}
	if backend.Store.Identity() != "sqlite:///"+path {
		t.Fatalf("identity=%q", backend.Store.Identity())
	}
}

func TestOpenRESTStore(t *testing.T) {
	for _, key := range []string{"MLFLOW_TRACKING_AUTH", "MLFLOW_TRACKING_TOKEN", "MLFLOW_TRACKING_USERNAME", "MLFLOW_TRACKING_PASSWORD", "MLFLOW_TRACKING_OIDC_ISSUER_URL"} {
		t.Setenv(key, "")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"experiments":[]}`))
	}))
	defer srv.Close()

	backend, err := Open(context.Background(), srv.URL, newTestLogger())
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	store, ok := backend.Store.(*rest.Store)
	if !ok || store.Flavour() != rest.FlavourSearch {
		t.Fatalf("store=%T, want search flavour rest store", backend.Store)
	}
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, "databricks", newTestLogger()); !errors.Is(err, tracking.ErrUnsupportedStore) {
		t.Fatalf("Open(databricks) err=%v, want ErrUnsupportedStore", err)
	}
	if _, err := Open(ctx, filepath.Join(t.TempDir(), "missing"), newTestLogger()); err == nil {
		t.Fatalf("Open(missing dir) expected error")
	}
	if _, err := Open(ctx, "mysql://u:p@db", newTestLogger()); err == nil {
		t.Fatalf("Open(mysql without database) expected error")
	}
}
