// Package sqlstore reads the relational schema the MLflow SQL store keeps in
// PostgreSQL, MySQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

type Store struct {
	db       DB
	closer   func() error
	dialect  Dialect
	identity string
}

// New wraps an open database. identity is the store URI as configured.
func New(db *sql.DB, dialect Dialect, identity string) (*Store, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if !dialect.valid() {
		return nil, fmt.Errorf("unknown dialect %d", dialect)
	}
	return &Store{db: db, closer: db.Close, dialect: dialect, identity: strings.TrimSpace(identity)}, nil
}

func (s *Store) Identity() string {
	return s.identity
}

func (s *Store) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sql store not initialized")
	}
	rows, err := s.query(
		ctx,
		`SELECT experiment_id, name, artifact_location, lifecycle_stage
		 FROM experiments
		 WHERE lifecycle_stage = $1
		 ORDER BY experiment_id`,
		string(domain.LifecycleActive),
	)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	experiments := make([]domain.Experiment, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			exp              domain.Experiment
			artifactLocation sql.NullString
			stage            sql.NullString
		)
		if err := rows.Scan(&exp.ID, &exp.Name, &artifactLocation, &stage); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exp.ArtifactLocation = artifactLocation.String
		exp.LifecycleStage = lifecycle(stage)
		exp.Tags = domain.Tags{}
		index[exp.ID] = len(experiments)
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}

	tagRows, err := s.query(ctx, `SELECT experiment_id, "key", value FROM experiment_tags`)
	if err != nil {
		return nil, fmt.Errorf("list experiment tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			expID, key string
			value      sql.NullString
		)
		if err := tagRows.Scan(&expID, &key, &value); err != nil {
			return nil, fmt.Errorf("scan experiment tag: %w", err)
		}
		if i, ok := index[expID]; ok {
			experiments[i].Tags[key] = value.String
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("list experiment tags: %w", err)
	}
	return experiments, nil
}

const runColumns = `run_uuid, experiment_id, name, user_id, status, start_time, end_time, artifact_uri, lifecycle_stage`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(row rowScanner) (domain.RunInfo, error) {
	var (
		info                      domain.RunInfo
		name, userID, status, uri sql.NullString
		stage                     sql.NullString
		startTime, endTime        sql.NullInt64
	)
	if err := row.Scan(&info.RunID, &info.ExperimentID, &name, &userID, &status, &startTime, &endTime, &uri, &stage); err != nil {
		return domain.RunInfo{}, err
	}
	info.RunName = name.String
	info.UserID = userID.String
	info.Status = status.String
	info.StartTime = startTime.Int64
	if endTime.Valid {
		info.EndTime = domain.Int64(endTime.Int64)
	}
	info.ArtifactURI = uri.String
	info.LifecycleStage = lifecycle(stage)
	return info, nil
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view tracking.ViewType) ([]domain.RunInfo, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sql store not initialized")
	}
	query, args := buildRunListQuery(experimentID, view)
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	infos := make([]domain.RunInfo, 0)
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return infos, nil
}

func buildRunListQuery(experimentID string, view tracking.ViewType) (string, []any) {
	args := []any{experimentArg(experimentID)}
	query := `SELECT ` + runColumns + ` FROM runs WHERE experiment_id = $1`
	switch view {
	case tracking.ViewActiveOnly:
		args = append(args, string(domain.LifecycleActive))
		query += fmt.Sprintf(" AND lifecycle_stage = $%d", len(args))
	case tracking.ViewDeletedOnly:
		args = append(args, string(domain.LifecycleDeleted))
		query += fmt.Sprintf(" AND lifecycle_stage = $%d", len(args))
	}
	query += " ORDER BY start_time DESC, run_uuid"
	return query, args
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("sql store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+runColumns+` FROM runs WHERE run_uuid = $1`), runID)
	info, err := scanRunInfo(row)
	if err != nil {
		return domain.Run{}, fmt.Errorf("run %s: %w", runID, handleNotFound(err))
	}
	run := domain.Run{Info: info}
	if run.Tags, err = s.keyValues(ctx, "tags", runID); err != nil {
		return domain.Run{}, err
	}
	if run.Params, err = s.keyValues(ctx, "params", runID); err != nil {
		return domain.Run{}, err
	}
	if run.Metrics, err = s.latestMetrics(ctx, runID); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

// keyValues reads the tags or params table; table is never user input.
func (s *Store) keyValues(ctx context.Context, table, runID string) (domain.Tags, error) {
	rows, err := s.query(ctx, `SELECT "key", value FROM `+table+` WHERE run_uuid = $1 ORDER BY "key"`, runID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	out := domain.Tags{}
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) metricRows(ctx context.Context, query string, args ...any) ([]domain.Metric, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Metric
	for rows.Next() {
		var (
			m     domain.Metric
			isNaN bool
		)
		if err := rows.Scan(&m.Key, &m.Value, &m.Timestamp, &m.Step, &isNaN); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Value = metricValue(m.Value, isNaN)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// latestMetrics keeps, per key, the point with the highest (step, timestamp).
func (s *Store) latestMetrics(ctx context.Context, runID string) ([]domain.Metric, error) {
	all, err := s.metricRows(
		ctx,
		`SELECT "key", value, timestamp, step, is_nan FROM metrics WHERE run_uuid = $1 ORDER BY "key", step, timestamp`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	var latest []domain.Metric
	for _, m := range all {
		if n := len(latest); n > 0 && latest[n-1].Key == m.Key {
			latest[n-1] = m
			continue
		}
		latest = append(latest, m)
	}
	return latest, nil
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sql store not initialized")
	}
	history, err := s.metricRows(
		ctx,
		`SELECT "key", value, timestamp, step, is_nan FROM metrics WHERE run_uuid = $1 AND "key" = $2 ORDER BY timestamp, step`,
		strings.TrimSpace(runID),
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("metric history %s: %w", key, err)
	}
	return history, nil
}

func (s *Store) SetExperimentTag(ctx context.Context, experimentID, key, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("tag key is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(s.dialect.upsertExperimentTag()),
		key,
		value,
		experimentArg(experimentID),
	)
	if err != nil {
		return fmt.Errorf("set experiment tag: %w", err)
	}
	return nil
}

// SearchModelVersions makes the store double as the model registry, as the
// registry tables live in the same database.
func (s *Store) SearchModelVersions(ctx context.Context, runID string) ([]domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sql store not initialized")
	}
	rows, err := s.query(
		ctx,
		`SELECT name, version, source, run_id
		 FROM model_versions
		 WHERE run_id = $1 AND current_stage <> $2
		 ORDER BY name, version`,
		strings.TrimSpace(runID),
		"Deleted_Internal",
	)
	if err != nil {
		return nil, fmt.Errorf("search model versions: %w", err)
	}
	defer rows.Close()
	var out []domain.ModelVersion
	for rows.Next() {
		var (
			mv     domain.ModelVersion
			source sql.NullString
			run    sql.NullString
		)
		if err := rows.Scan(&mv.Name, &mv.Version, &source, &run); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		mv.Source = source.String
		mv.RunID = run.String
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search model versions: %w", err)
	}
	return out, nil
}
