package sqlstore

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/sqlite"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

const schema = `
CREATE TABLE experiments (
	experiment_id INTEGER PRIMARY KEY,
	name VARCHAR(256) NOT NULL UNIQUE,
	artifact_location VARCHAR(256),
	lifecycle_stage VARCHAR(32)
);
CREATE TABLE experiment_tags (
	key VARCHAR(250) NOT NULL,
	value VARCHAR(5000),
	experiment_id INTEGER NOT NULL,
	PRIMARY KEY (key, experiment_id)
);
CREATE TABLE runs (
	run_uuid VARCHAR(32) PRIMARY KEY,
	name VARCHAR(250),
	source_type VARCHAR(20),
	source_name VARCHAR(500),
	entry_point_name VARCHAR(50),
	user_id VARCHAR(256),
	status VARCHAR(9),
	start_time BIGINT,
	end_time BIGINT,
	source_version VARCHAR(50),
	lifecycle_stage VARCHAR(20),
	artifact_uri VARCHAR(200),
	experiment_id INTEGER
);
CREATE TABLE tags (
	key VARCHAR(250) NOT NULL,
	value VARCHAR(5000),
	run_uuid VARCHAR(32) NOT NULL,
	PRIMARY KEY (key, run_uuid)
);
CREATE TABLE params (
	key VARCHAR(250) NOT NULL,
	value VARCHAR(500) NOT NULL,
	run_uuid VARCHAR(32) NOT NULL,
	PRIMARY KEY (key, run_uuid)
);
CREATE TABLE metrics (
	key VARCHAR(250) NOT NULL,
	value FLOAT NOT NULL,
	timestamp BIGINT NOT NULL,
	run_uuid VARCHAR(32) NOT NULL,
	step BIGINT NOT NULL DEFAULT 0,
	is_nan BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (key, timestamp, step, run_uuid, value, is_nan)
);
CREATE TABLE model_versions (
	name VARCHAR(256) NOT NULL,
	version INTEGER NOT NULL,
	current_stage VARCHAR(20),
	source VARCHAR(500),
	run_id VARCHAR(32),
	PRIMARY KEY (name, version)
);
`

const fixture = `
INSERT INTO experiments VALUES (0, 'Default', 'file:///tmp/art/0', 'active');
INSERT INTO experiments VALUES (3, 'Second', 's3://bucket/3', 'active');
INSERT INTO experiments VALUES (4, 'Gone', 's3://bucket/4', 'deleted');
INSERT INTO experiment_tags VALUES ('mlflow.note.content', 'notes', 0);
INSERT INTO runs (run_uuid, name, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri, experiment_id)
	VALUES ('run-a', 'first', 'alice', 'FINISHED', 1000, 2000, 'active', 'file:///tmp/art/0/run-a/artifacts', 0);
INSERT INTO runs (run_uuid, name, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri, experiment_id)
	VALUES ('run-b', NULL, 'bob', 'RUNNING', 3000, NULL, 'deleted', 'file:///tmp/art/0/run-b/artifacts', 0);
INSERT INTO tags VALUES ('mlflow.user', 'alice', 'run-a');
INSERT INTO tags VALUES ('mlflow.source.name', 'train.py', 'run-a');
INSERT INTO params VALUES ('lr', '0.01', 'run-a');
INSERT INTO metrics VALUES ('loss', 0.5, 1000, 'run-a', 0, 0);
INSERT INTO metrics VALUES ('loss', 0.25, 1100, 'run-a', 1, 0);
INSERT INTO metrics VALUES ('loss', 0, 1200, 'run-a', 2, 1);
INSERT INTO metrics VALUES ('acc', 0.9, 1000, 'run-a', 0, 0);
INSERT INTO model_versions VALUES ('clf', 1, 'None', 's3://bucket/0/run-a/artifacts/model', 'run-a');
INSERT INTO model_versions VALUES ('clf', 2, 'Deleted_Internal', 's3://bucket/0/run-a/artifacts/model', 'run-a');
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "mlflow.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, fixture); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	store, err := New(db, SQLite, "sqlite:///mlflow.db")
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRebind(t *testing.T) {
	got := SQLite.rebind(`SELECT a FROM t WHERE x = $1 AND y = $12`)
	if got != `SELECT a FROM t WHERE x = ? AND y = ?` {
		t.Fatalf("rebind=%q", got)
	}
	if got := Postgres.rebind(`SELECT "key" FROM t WHERE x = $1`); got != `SELECT "key" FROM t WHERE x = $1` {
		t.Fatalf("postgres rebind=%q", got)
	}
	if got := MySQL.rebind(`SELECT "key", value FROM t WHERE "key" = $1 AND y = $2`); got != "SELECT `key`, value FROM t WHERE `key` = ? AND y = ?" {
		t.Fatalf("mysql rebind=%q", got)
	}
}

func TestUpsertExperimentTagPerDialect(t *testing.T) {
	mysql := MySQL.rebind(MySQL.upsertExperimentTag())
	if !strings.Contains(mysql, "ON DUPLICATE KEY UPDATE") || !strings.Contains(mysql, "(`key`, value, experiment_id) VALUES (?,?,?)") {
		t.Fatalf("mysql upsert=%q", mysql)
	}
	for _, d := range []Dialect{Postgres, SQLite} {
		if q := d.upsertExperimentTag(); !strings.Contains(q, `ON CONFLICT ("key", experiment_id)`) {
			t.Fatalf("%s upsert=%q", d, q)
		}
	}
}

func TestNewAcceptsKnownDialects(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite, MySQL} {
		db, err := sqlite.Open(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("sqlite.Open() err=%v", err)
		}
		store, err := New(db, d, d.String()+"://x")
		if err != nil {
			t.Fatalf("New(%s) err=%v", d, err)
		}
		_ = store.Close()
	}
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open() err=%v", err)
	}
	defer db.Close()
	if _, err := New(db, Dialect(0), "x"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil, SQLite, "x"); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestListExperiments(t *testing.T) {
	store := newTestStore(t)
	exps, err := store.ListExperiments(context.Background())
	if err != nil {
		t.Fatalf("ListExperiments() err=%v", err)
	}
	want := []domain.Experiment{
		{ID: "0", Name: "Default", ArtifactLocation: "file:///tmp/art/0", LifecycleStage: domain.LifecycleActive, Tags: domain.Tags{"mlflow.note.content": "notes"}},
		{ID: "3", Name: "Second", ArtifactLocation: "s3://bucket/3", LifecycleStage: domain.LifecycleActive, Tags: domain.Tags{}},
	}
	if diff := cmp.Diff(want, exps); diff != "" {
		t.Fatalf("experiments mismatch (-want +got):\n%s", diff)
	}
}

func TestListRunInfosHonoursView(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	all, err := store.ListRunInfos(ctx, "0", tracking.ViewAll)
	if err != nil {
		t.Fatalf("ListRunInfos() err=%v", err)
	}
	if len(all) != 2 || all[0].RunID != "run-b" || all[1].RunID != "run-a" {
		t.Fatalf("ListRunInfos(ALL)=%+v", all)
	}
	if all[0].EndTime != nil {
		t.Fatalf("run-b end time=%v, want nil", *all[0].EndTime)
	}

	deleted, err := store.ListRunInfos(ctx, "0", tracking.ViewDeletedOnly)
	if err != nil {
		t.Fatalf("ListRunInfos() err=%v", err)
	}
	if len(deleted) != 1 || deleted[0].RunID != "run-b" || deleted[0].LifecycleStage != domain.LifecycleDeleted {
		t.Fatalf("ListRunInfos(DELETED)=%+v", deleted)
	}
}

func TestGetRun(t *testing.T) {
	store := newTestStore(t)
	run, err := store.GetRun(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if run.Info.RunName != "first" || run.Info.ExperimentID != "0" || !run.Info.Finished() {
		t.Fatalf("info=%+v", run.Info)
	}
	if diff := cmp.Diff(domain.Tags{"lr": "0.01"}, run.Params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if len(run.Metrics) != 2 || run.Metrics[1].Key != "loss" || run.Metrics[1].Step != 2 || !math.IsNaN(run.Metrics[1].Value) {
		t.Fatalf("metrics=%+v", run.Metrics)
	}

	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("GetRun(missing) err=%v, want ErrNotFound", err)
	}
}

func TestGetMetricHistory(t *testing.T) {
	store := newTestStore(t)
	history, err := store.GetMetricHistory(context.Background(), "run-a", "loss")
	if err != nil {
		t.Fatalf("GetMetricHistory() err=%v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history)=%d, want 3", len(history))
	}
	if history[0] != (domain.Metric{Key: "loss", Value: 0.5, Timestamp: 1000, Step: 0}) {
		t.Fatalf("history[0]=%+v", history[0])
	}
	if !math.IsNaN(history[2].Value) {
		t.Fatalf("history[2]=%+v, want NaN", history[2])
	}
}

func TestSetExperimentTagUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, value := range []string{"p1", "p2"} {
		if err := store.SetExperimentTag(ctx, "3", "comet-project-ws", value); err != nil {
			t.Fatalf("SetExperimentTag(%s) err=%v", value, err)
		}
	}
	exps, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments() err=%v", err)
	}
	if got := exps[1].Tags["comet-project-ws"]; got != "p2" {
		t.Fatalf("tag=%q, want p2", got)
	}
}

func TestSearchModelVersionsSkipsDeleted(t *testing.T) {
	store := newTestStore(t)
	versions, err := store.SearchModelVersions(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("SearchModelVersions() err=%v", err)
	}
	want := []domain.ModelVersion{{Name: "clf", Version: "1", Source: "s3://bucket/0/run-a/artifacts/model", RunID: "run-a"}}
	if diff := cmp.Diff(want, versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
}
