// Package migrate walks a tracking backend and turns every finished run into
// an offline archive, then stamps and optionally uploads the archives.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

var (
	// ErrRunIncomplete marks runs without an end time. They are skipped.
	ErrRunIncomplete = errors.New("run has no end time")
	// ErrMalformedRun marks runs missing tags every archive needs.
	ErrMalformedRun = errors.New("malformed run")
)

// Options configure a Translator.
type Options struct {
	// OutputDir receives one <run-id>.zip per prepared run.
	OutputDir string
	// ServerURL is the destination site root, used for parent run links.
	ServerURL string
	// APIKey is attached to telemetry events.
	APIKey string
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.OutputDir) == "" {
		return errors.New("output dir is required")
	}
	return nil
}

// PreparedRun is a run whose archive has been written but not stamped.
type PreparedRun struct {
	Info    domain.RunInfo
	Archive string
}

// PreparedExperiment groups the prepared runs of one experiment.
type PreparedExperiment struct {
	Experiment domain.Experiment
	Runs       []PreparedRun
}

// Translator owns the walk over one backend and the counters it produces.
// It is not safe for concurrent use.
type Translator struct {
	store     tracking.Store
	registry  tracking.ModelRegistry
	artifacts tracking.ArtifactResolver
	reporter  telemetry.Reporter
	logger    *slog.Logger
	opts      Options

	summary Summary
}

func NewTranslator(backend tracking.Backend, opts Options, reporter telemetry.Reporter, logger *slog.Logger) (*Translator, error) {
	if backend.Store == nil {
		return nil, errors.New("tracking store is required")
	}
	if backend.Artifacts == nil {
		return nil, errors.New("artifact resolver is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = telemetry.NoopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		store:     backend.Store,
		registry:  backend.Registry,
		artifacts: backend.Artifacts,
		reporter:  reporter,
		logger:    logger,
		opts:      opts,
	}, nil
}

// Summary returns the counters accumulated so far.
func (t *Translator) Summary() Summary {
	return t.summary
}

// Prepare writes the archives of every experiment. Only a failure to list
// experiments is returned; failures of single experiments and runs are
// logged, reported and skipped.
func (t *Translator) Prepare(ctx context.Context) ([]PreparedExperiment, error) {
	if t == nil || t.store == nil {
		return nil, fmt.Errorf("translator not initialized")
	}
	if err := os.MkdirAll(t.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	experiments, err := t.store.ListExperiments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	t.logger.Info("preparing data locally", "store", t.store.Identity(), "experiments", len(experiments))

	prepared := make([]PreparedExperiment, 0, len(experiments))
	for i, exp := range experiments {
		logger := t.logger.With("experiment", exp.DisplayName(), "experiment_id", exp.ID)
		logger.Info(fmt.Sprintf("preparing experiment %d/%d", i+1, len(experiments)))
		t.summary.Experiments++

		var runs []PreparedRun
		err := protect(func() error {
			var err error
			runs, err = t.prepareExperiment(ctx, exp)
			return err
		})
		if err != nil {
			logger.Error("preparing experiment failed", "error", err)
			t.report(ctx, err)
			continue
		}
		prepared = append(prepared, PreparedExperiment{Experiment: exp, Runs: runs})
	}
	return prepared, nil
}

func (t *Translator) report(ctx context.Context, err error) {
	event := telemetry.Event{Name: telemetry.EventError, APIKey: t.opts.APIKey, ErrMsg: errorReport(err)}
	if rerr := t.reporter.Report(ctx, event); rerr != nil {
		t.logger.Debug("telemetry report failed", "error", rerr)
	}
}
