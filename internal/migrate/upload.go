package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/offline"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
	"github.com/animus-labs/comet-for-mlflow/internal/project"
)

// Destination is the part of the destination API the uploader needs.
type Destination interface {
	SetProjectNotes(ctx context.Context, workspace, name, notes string) error
	UploadOfflineArchive(ctx context.Context, archivePath string, force bool) error
}

// ProjectResolver maps an experiment onto its destination project.
type ProjectResolver interface {
	Resolve(ctx context.Context, exp *domain.Experiment) (domain.Project, error)
}

type UploaderConfig struct {
	Workspace   string
	ForceUpload bool
	APIKey      string
}

// Uploader stamps and pushes prepared archives.
type Uploader struct {
	dest     Destination
	resolver ProjectResolver
	reporter telemetry.Reporter
	logger   *slog.Logger
	cfg      UploaderConfig
}

func NewUploader(dest Destination, resolver ProjectResolver, cfg UploaderConfig, reporter telemetry.Reporter, logger *slog.Logger) (*Uploader, error) {
	if dest == nil {
		return nil, errors.New("destination is required")
	}
	if resolver == nil {
		return nil, errors.New("project resolver is required")
	}
	if strings.TrimSpace(cfg.Workspace) == "" {
		return nil, errors.New("workspace is required")
	}
	if reporter == nil {
		reporter = telemetry.NoopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{dest: dest, resolver: resolver, reporter: reporter, logger: logger, cfg: cfg}, nil
}

// Upload resolves the project of every prepared experiment, syncs its notes,
// then stamps and uploads its archives. It returns the names of the projects
// that received data. A failing experiment is logged, reported and skipped.
func (u *Uploader) Upload(ctx context.Context, prepared []PreparedExperiment) []string {
	var names []string
	for i := range prepared {
		exp := &prepared[i].Experiment
		logger := u.logger.With("experiment", exp.DisplayName(), "experiment_id", exp.ID)

		var name string
		err := protect(func() error {
			var err error
			name, err = u.uploadExperiment(ctx, exp, prepared[i].Runs)
			return err
		})
		if err != nil {
			logger.Error("uploading experiment failed", "error", err)
			event := telemetry.Event{Name: telemetry.EventError, APIKey: u.cfg.APIKey, ErrMsg: errorReport(err)}
			if rerr := u.reporter.Report(ctx, event); rerr != nil {
				logger.Debug("telemetry report failed", "error", rerr)
			}
			continue
		}
		names = append(names, name)
	}
	return names
}

func (u *Uploader) uploadExperiment(ctx context.Context, exp *domain.Experiment, runs []PreparedRun) (string, error) {
	p, err := u.resolver.Resolve(ctx, exp)
	if err != nil {
		return "", fmt.Errorf("resolve project: %w", err)
	}
	if note := exp.Tags[tagNoteContent]; note != "" {
		if err := u.dest.SetProjectNotes(ctx, u.cfg.Workspace, p.Name, ProjectNotes(note)); err != nil {
			return "", err
		}
	}
	for _, run := range runs {
		if err := offline.Stamp(run.Archive, offline.ManifestFor(run.Info, p.Name, u.cfg.Workspace)); err != nil {
			return "", err
		}
		if err := u.dest.UploadOfflineArchive(ctx, run.Archive, u.cfg.ForceUpload); err != nil {
			return "", err
		}
		u.logger.Info("uploaded run", "run_id", run.Info.RunID, "project", p.Name, "archive", filepath.Base(run.Archive))
	}
	return p.Name, nil
}

// SaveLocally stamps every archive with the derived project name so the
// archives can be uploaded later. workspace may be empty.
func SaveLocally(prepared []PreparedExperiment, storeID, workspace string) error {
	var errs []error
	for _, pe := range prepared {
		name := project.Name(pe.Experiment.DisplayName(), storeID)
		for _, run := range pe.Runs {
			if err := offline.Stamp(run.Archive, offline.ManifestFor(run.Info, name, workspace)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// LocalHints are the commands that upload or preview archives saved in dir.
func LocalHints(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return []string{
		"comet upload " + filepath.Join(abs, "*.zip"),
		"comet offline " + filepath.Join(abs, "*.zip"),
	}
}
