package offline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

// Manifest is the experiment.json entry that binds an archive to a project.
type Manifest struct {
	ProjectName string
	Workspace   string
	StartTime   int64
	StopTime    *int64
	OfflineID   string
}

// ManifestFor builds the manifest of a run. The run id doubles as the
// offline id so the destination recognises repeated uploads.
func ManifestFor(info domain.RunInfo, projectName, workspace string) Manifest {
	return Manifest{
		ProjectName: projectName,
		Workspace:   workspace,
		StartTime:   info.StartTime,
		StopTime:    info.EndTime,
		OfflineID:   info.RunID,
	}
}

func (m Manifest) Validate() error {
	if strings.TrimSpace(m.ProjectName) == "" {
		return errors.New("project name is required")
	}
	if strings.TrimSpace(m.OfflineID) == "" {
		return errors.New("offline id is required")
	}
	return nil
}

func (m Manifest) object() Object {
	return Object{
		{Key: "auto_metric_logging", Value: true},
		{Key: "auto_output_logging"},
		{Key: "auto_param_logging", Value: true},
		{Key: "disabled", Value: false},
		{Key: "feature_toggles_overrides", Value: Object{}},
		{Key: "log_code", Value: false},
		{Key: "log_env_details", Value: false},
		{Key: "log_git_metadata", Value: true},
		{Key: "log_graph", Value: true},
		{Key: "parse_args", Value: true},
		{Key: "project_name", Value: m.ProjectName},
		{Key: "start_time", Value: m.StartTime},
		{Key: "stop_time", Value: m.StopTime},
		{Key: "tags", Value: []any{}},
		{Key: "workspace", Value: nullable(m.Workspace)},
		{Key: "offline_id", Value: m.OfflineID},
	}
}

// MarshalManifest encodes the manifest the way it is stored in the archive.
func MarshalManifest(m Manifest) ([]byte, error) {
	return Marshal(m.object())
}

// Stamp writes the manifest into the archive. The archive is rewritten to a
// sibling temp file and renamed over the original; an existing manifest is
// replaced, so stamping twice leaves a single entry.
func Stamp(archivePath string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	payload, err := MarshalManifest(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	src, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".stamp-*.zip")
	if err != nil {
		return fmt.Errorf("stamp %s: %w", archivePath, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("stamp %s: %w", archivePath, err)
	}

	zw := zip.NewWriter(tmp)
	for _, f := range src.File {
		if f.Name == ManifestFile {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fail(err)
		}
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestFile, Method: zip.Deflate})
	if err != nil {
		return fail(err)
	}
	if _, err := w.Write(payload); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("stamp %s: %w", archivePath, err)
	}
	_ = src.Close()
	if err := os.Rename(tmpName, archivePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("stamp %s: %w", archivePath, err)
	}
	return nil
}
