package offline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

const (
	MessagesFile = "messages.json"
	ManifestFile = "experiment.json"
)

// Builder accumulates the messages and artifact payloads of one run in a
// private scratch directory until Finish packs them into an archive.
type Builder struct {
	outputDir string
	dir       string
	file      *os.File
	writer    *Writer
	finished  bool

	newID func() string
}

// NewBuilder creates the output directory when missing and a fresh scratch
// directory for one run.
func NewBuilder(outputDir string) (*Builder, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	dir, err := os.MkdirTemp("", "comet-for-mlflow-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	file, err := os.Create(filepath.Join(dir, MessagesFile))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("create message log: %w", err)
	}
	return &Builder{
		outputDir: outputDir,
		dir:       dir,
		file:      file,
		writer:    NewWriter(file),
		newID:     newAssetID,
	}, nil
}

func newAssetID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Dir is the scratch directory.
func (b *Builder) Dir() string {
	return b.dir
}

func (b *Builder) Write(msg Object) error {
	if b == nil || b.writer == nil {
		return fmt.Errorf("archive builder not initialized")
	}
	if b.finished {
		return errors.New("archive already finished")
	}
	return b.writer.Write(msg)
}

// MessageCount is the number of messages written so far.
func (b *Builder) MessageCount() int {
	if b == nil {
		return 0
	}
	return b.writer.Count()
}

// AddAsset copies the payload into the scratch directory and records an
// asset upload for it under artifactPath.
func (b *Builder) AddAsset(r io.Reader, artifactPath string, timestamp int64) error {
	upload, err := b.stage(r, artifactPath, timestamp)
	if err != nil {
		return err
	}
	return b.Write(AssetMessage(upload))
}

// AddModelElement is AddAsset for an artifact that belongs to a registered
// model.
func (b *Builder) AddModelElement(r io.Reader, artifactPath, modelName string, timestamp int64) error {
	upload, err := b.stage(r, artifactPath, timestamp)
	if err != nil {
		return err
	}
	return b.Write(ModelElementMessage(upload, modelName))
}

func (b *Builder) stage(r io.Reader, artifactPath string, timestamp int64) (AssetUpload, error) {
	if b == nil || b.writer == nil {
		return AssetUpload{}, fmt.Errorf("archive builder not initialized")
	}
	if b.finished {
		return AssetUpload{}, errors.New("archive already finished")
	}
	tmp, err := os.CreateTemp(b.dir, "tmp")
	if err != nil {
		return AssetUpload{}, fmt.Errorf("stage %s: %w", artifactPath, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return AssetUpload{}, fmt.Errorf("stage %s: %w", artifactPath, err)
	}
	if err := tmp.Close(); err != nil {
		return AssetUpload{}, fmt.Errorf("stage %s: %w", artifactPath, err)
	}
	return AssetUpload{
		AssetID:   b.newID(),
		FileName:  artifactPath,
		Extension: Extension(artifactPath),
		FilePath:  filepath.Base(tmp.Name()),
		Timestamp: timestamp,
	}, nil
}

// Extension returns the extension of the last path element without the dot.
// Leading dots do not start an extension, so ".env" has none.
func Extension(p string) string {
	base := strings.TrimLeft(path.Base(p), ".")
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

// Finish packs every scratch file into <outputDir>/<runID>.zip and returns
// the archive path. The scratch directory is removed only on success.
func (b *Builder) Finish(runID string) (string, error) {
	if b == nil || b.writer == nil {
		return "", fmt.Errorf("archive builder not initialized")
	}
	if b.finished {
		return "", errors.New("archive already finished")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", errors.New("run id is required")
	}
	b.finished = true
	if err := b.writer.Flush(); err != nil {
		_ = b.file.Close()
		return "", fmt.Errorf("flush message log: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return "", fmt.Errorf("close message log: %w", err)
	}

	archivePath := filepath.Join(b.outputDir, runID+".zip")
	if err := zipDir(b.dir, archivePath); err != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("compress %s: %w", runID, err)
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return archivePath, fmt.Errorf("remove scratch dir: %w", err)
	}
	return archivePath, nil
}

// Release closes the message log of a run that will not be archived. The
// scratch directory is kept for inspection. After Finish it is a no-op.
func (b *Builder) Release() error {
	if b == nil || b.finished {
		return nil
	}
	b.finished = true
	if b.file == nil {
		return nil
	}
	return b.file.Close()
}

func zipDir(dir, archivePath string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// ReadEntry returns the content of one archive entry.
func ReadEntry(archivePath, name string) ([]byte, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: entry %s not found", archivePath, name)
}
