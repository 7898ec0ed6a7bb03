// Package filestore reads the on-disk layout written by the MLflow file
// store: one directory per experiment holding one directory per run, with
// YAML metadata and one file per tag, parameter and metric key.
package filestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

const (
	trashDir  = ".trash"
	modelsDir = "models"
	tagsDir   = "tags"
)

type Store struct {
	root string
}

// Open validates that root exists. The identity of the store is the absolute
// root path.
func Open(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("file store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open file store: %s is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Identity() string {
	return s.root
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	experiments := make([]domain.Experiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == trashDir || entry.Name() == modelsDir {
			continue
		}
		exp, err := s.readExperiment(filepath.Join(s.root, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if exp.LifecycleStage == domain.LifecycleDeleted {
			continue
		}
		experiments = append(experiments, exp)
	}
	sort.SliceStable(experiments, func(i, j int) bool {
		return lessID(experiments[i].ID, experiments[j].ID)
	})
	return experiments, nil
}

func (s *Store) readExperiment(dir string) (domain.Experiment, error) {
	var meta experimentMeta
	if err := readMeta(filepath.Join(dir, metaFile), &meta); err != nil {
		return domain.Experiment{}, err
	}
	exp := meta.toDomain()
	if exp.ID == "" {
		exp.ID = filepath.Base(dir)
	}
	tags, err := readKeyedFiles(filepath.Join(dir, tagsDir))
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("experiment %s tags: %w", exp.ID, err)
	}
	exp.Tags = tags
	return exp, nil
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view tracking.ViewType) ([]domain.RunInfo, error) {
	expDir, err := s.experimentDir(experimentID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(expDir)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	infos := make([]domain.RunInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == tagsDir {
			continue
		}
		var meta runMeta
		err := readMeta(filepath.Join(expDir, entry.Name(), metaFile), &meta)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		info := meta.toDomain()
		if info.RunID == "" {
			info.RunID = entry.Name()
		}
		if !view.Includes(info.LifecycleStage) {
			continue
		}
		infos = append(infos, info)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].StartTime != infos[j].StartTime {
			return infos[i].StartTime > infos[j].StartTime
		}
		return infos[i].RunID < infos[j].RunID
	})
	return infos, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	runDir, err := s.runDir(runID)
	if err != nil {
		return domain.Run{}, err
	}
	var meta runMeta
	if err := readMeta(filepath.Join(runDir, metaFile), &meta); err != nil {
		return domain.Run{}, fmt.Errorf("run %s: %w", runID, err)
	}
	run := domain.Run{Info: meta.toDomain()}
	if run.Info.RunID == "" {
		run.Info.RunID = runID
	}
	if run.Tags, err = readKeyedFiles(filepath.Join(runDir, "tags")); err != nil {
		return domain.Run{}, fmt.Errorf("run %s tags: %w", runID, err)
	}
	if run.Params, err = readKeyedFiles(filepath.Join(runDir, "params")); err != nil {
		return domain.Run{}, fmt.Errorf("run %s params: %w", runID, err)
	}
	metricsDir := filepath.Join(runDir, "metrics")
	keys, err := listKeys(metricsDir)
	if err != nil {
		return domain.Run{}, fmt.Errorf("run %s metrics: %w", runID, err)
	}
	for _, key := range keys {
		history, err := readMetricFile(filepath.Join(metricsDir, filepath.FromSlash(key)), key)
		if err != nil {
			return domain.Run{}, fmt.Errorf("run %s metric %s: %w", runID, key, err)
		}
		if latest, ok := latestMetric(history); ok {
			run.Metrics = append(run.Metrics, latest)
		}
	}
	return run, nil
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	runDir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	rel, err := safeKeyPath(key)
	if err != nil {
		return nil, err
	}
	history, err := readMetricFile(filepath.Join(runDir, "metrics", rel), key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metric history %s: %w", key, err)
	}
	return history, nil
}

func (s *Store) SetExperimentTag(ctx context.Context, experimentID, key, value string) error {
	expDir, err := s.experimentDir(experimentID)
	if err != nil {
		return err
	}
	rel, err := safeKeyPath(key)
	if err != nil {
		return err
	}
	path := filepath.Join(expDir, tagsDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("set experiment tag: %w", err)
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("set experiment tag: %w", err)
	}
	return nil
}

func (s *Store) experimentDir(experimentID string) (string, error) {
	experimentID = strings.TrimSpace(experimentID)
	if experimentID == "" || strings.ContainsAny(experimentID, `/\`) || experimentID == "." || experimentID == ".." {
		return "", fmt.Errorf("invalid experiment id %q", experimentID)
	}
	dir := filepath.Join(s.root, experimentID)
	if _, err := os.Stat(filepath.Join(dir, metaFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("experiment %s: %w", experimentID, tracking.ErrNotFound)
		}
		return "", err
	}
	return dir, nil
}

func (s *Store) runDir(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == trashDir || entry.Name() == modelsDir {
			continue
		}
		candidate := filepath.Join(s.root, entry.Name(), runID)
		if _, err := os.Stat(filepath.Join(candidate, metaFile)); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
}

// listKeys returns the slash-separated relative paths of every regular file
// below dir. Keys containing "/" are stored as nested directories.
func listKeys(dir string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func readKeyedFiles(dir string) (domain.Tags, error) {
	keys, err := listKeys(dir)
	if err != nil {
		return nil, err
	}
	out := make(domain.Tags, len(keys))
	for _, key := range keys {
		raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if err != nil {
			return nil, err
		}
		out[key] = string(raw)
	}
	return out, nil
}

// readMetricFile parses "timestamp value [step]" lines.
func readMetricFile(path, key string) ([]domain.Metric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var history []domain.Metric
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("line %d: expected 2 or 3 fields, got %d", line, len(fields))
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: value: %w", line, err)
		}
		var step int64
		if len(fields) == 3 {
			if step, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: step: %w", line, err)
			}
		}
		history = append(history, domain.Metric{Key: key, Value: value, Timestamp: ts, Step: step})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// latestMetric picks the point with the highest (step, timestamp, value).
func latestMetric(history []domain.Metric) (domain.Metric, bool) {
	if len(history) == 0 {
		return domain.Metric{}, false
	}
	best := history[0]
	for _, m := range history[1:] {
		switch {
		case m.Step != best.Step:
			if m.Step > best.Step {
				best = m
			}
		case m.Timestamp != best.Timestamp:
			if m.Timestamp > best.Timestamp {
				best = m
			}
		case m.Value > best.Value:
			best = m
		}
	}
	return best, true
}

func safeKeyPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

// lessID orders numeric experiment ids numerically and the rest lexically.
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	if (aerr == nil) != (berr == nil) {
		return aerr == nil
	}
	return a < b
}
