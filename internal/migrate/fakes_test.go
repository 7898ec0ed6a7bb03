package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/offline"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	identity    string
	experiments []domain.Experiment
	runInfos    map[string][]domain.RunInfo
	runs        map[string]domain.Run
	histories   map[string][]domain.Metric
	listErr     map[string]error
	getErr      map[string]error
	tags        map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identity:  "/tmp/mlruns",
		runInfos:  map[string][]domain.RunInfo{},
		runs:      map[string]domain.Run{},
		histories: map[string][]domain.Metric{},
		listErr:   map[string]error{},
		getErr:    map[string]error{},
		tags:      map[string]string{},
	}
}

func (s *fakeStore) addRun(run domain.Run, histories map[string][]domain.Metric) {
	s.runInfos[run.Info.ExperimentID] = append(s.runInfos[run.Info.ExperimentID], run.Info)
	s.runs[run.Info.RunID] = run
	for key, h := range histories {
		s.histories[run.Info.RunID+"/"+key] = h
	}
}

func (s *fakeStore) Identity() string { return s.identity }
func (s *fakeStore) Close() error     { return nil }

func (s *fakeStore) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	return s.experiments, nil
}

func (s *fakeStore) ListRunInfos(ctx context.Context, experimentID string, view tracking.ViewType) ([]domain.RunInfo, error) {
	if view != tracking.ViewAll {
		return nil, fmt.Errorf("unexpected view %s", view)
	}
	if err := s.listErr[experimentID]; err != nil {
		return nil, err
	}
	return s.runInfos[experimentID], nil
}

func (s *fakeStore) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if err := s.getErr[runID]; err != nil {
		return domain.Run{}, err
	}
	run, ok := s.runs[runID]
	if !ok {
		return domain.Run{}, tracking.ErrNotFound
	}
	return run, nil
}

func (s *fakeStore) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	return s.histories[runID+"/"+key], nil
}

func (s *fakeStore) SetExperimentTag(ctx context.Context, experimentID, key, value string) error {
	s.tags[experimentID+"/"+key] = value
	return nil
}

type fakeRegistry struct {
	versions map[string][]domain.ModelVersion
}

func (r *fakeRegistry) SearchModelVersions(ctx context.Context, runID string) ([]domain.ModelVersion, error) {
	return r.versions[runID], nil
}

// fakeRepo serves files from memory. Listings are sorted like a directory
// read.
type fakeRepo struct {
	files map[string]string
}

func (r *fakeRepo) ListArtifacts(ctx context.Context, dir string) ([]domain.FileInfo, error) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	paths := make([]string, 0, len(r.files))
	for p := range r.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seen := map[string]bool{}
	var out []domain.FileInfo
	for _, p := range paths {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if head, _, nested := strings.Cut(rest, "/"); nested {
			child := prefix + head
			if !seen[child] {
				seen[child] = true
				out = append(out, domain.FileInfo{Path: child, IsDir: true})
			}
			continue
		}
		out = append(out, domain.FileInfo{Path: p, Size: int64(len(r.files[p]))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *fakeRepo) OpenArtifact(ctx context.Context, path string) (io.ReadCloser, error) {
	content, ok := r.files[path]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type fakeResolver struct {
	repos map[string]tracking.ArtifactRepository
	panic map[string]bool
}

func (r *fakeResolver) Resolve(ctx context.Context, artifactURI string) (tracking.ArtifactRepository, error) {
	if r.panic[artifactURI] {
		panic("artifact backend exploded")
	}
	repo, ok := r.repos[artifactURI]
	if !ok {
		return &fakeRepo{files: map[string]string{}}, nil
	}
	return repo, nil
}

type recordingReporter struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingReporter) Report(ctx context.Context, event telemetry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// readMessages decodes the message log of an archive.
func readMessages(t *testing.T, archive string) []map[string]any {
	t.Helper()
	raw, err := offline.ReadEntry(archive, offline.MessagesFile)
	if err != nil {
		t.Fatalf("ReadEntry() err=%v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n") {
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, msg)
	}
	return out
}

func payloadOf(msg map[string]any) map[string]any {
	p, _ := msg["payload"].(map[string]any)
	return p
}
