// Package tracking defines the capabilities the migration needs from a
// source tracking backend. Each supported backend kind lives in its own
// subpackage and is selected once by backends.Open.
package tracking

import (
	"context"
	"errors"
	"io"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedStore = errors.New("unsupported store")
)

// ViewType filters listings by lifecycle stage.
type ViewType int

const (
	ViewActiveOnly ViewType = iota + 1
	ViewDeletedOnly
	ViewAll
)

func (v ViewType) String() string {
	switch v {
	case ViewActiveOnly:
		return "ACTIVE_ONLY"
	case ViewDeletedOnly:
		return "DELETED_ONLY"
	case ViewAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// Includes reports whether an entity in the given stage passes the filter.
func (v ViewType) Includes(stage domain.LifecycleStage) bool {
	deleted := stage == domain.LifecycleDeleted
	switch v {
	case ViewActiveOnly:
		return !deleted
	case ViewDeletedOnly:
		return deleted
	default:
		return true
	}
}

// Store reads experiments and runs from a tracking backend.
type Store interface {
	// Identity names the store location; it seeds destination project names.
	Identity() string
	ListExperiments(ctx context.Context) ([]domain.Experiment, error)
	ListRunInfos(ctx context.Context, experimentID string, view ViewType) ([]domain.RunInfo, error)
	GetRun(ctx context.Context, runID string) (domain.Run, error)
	GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error)
	SetExperimentTag(ctx context.Context, experimentID, key, value string) error
	Close() error
}

// ModelRegistry looks up registered model versions.
type ModelRegistry interface {
	SearchModelVersions(ctx context.Context, runID string) ([]domain.ModelVersion, error)
}

// ArtifactRepository lists and reads the artifacts below one artifact root.
// Paths are relative to that root; "" is the root itself.
type ArtifactRepository interface {
	ListArtifacts(ctx context.Context, dir string) ([]domain.FileInfo, error)
	OpenArtifact(ctx context.Context, path string) (io.ReadCloser, error)
}

// ArtifactResolver returns the repository serving an artifact URI.
type ArtifactResolver interface {
	Resolve(ctx context.Context, artifactURI string) (ArtifactRepository, error)
}

// Backend bundles the capabilities of one opened tracking location.
// Registry is nil when the backend has no model registry.
type Backend struct {
	Store     Store
	Registry  ModelRegistry
	Artifacts ArtifactResolver
}

func (b Backend) Close() error {
	if b.Store == nil {
		return nil
	}
	return b.Store.Close()
}
