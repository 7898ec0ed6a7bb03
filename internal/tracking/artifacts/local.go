package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

// LocalRepository serves artifacts stored on the local filesystem.
type LocalRepository struct {
	root string
}

func NewLocalRepository(root string) *LocalRepository {
	return &LocalRepository{root: filepath.Clean(root)}
}

func (r *LocalRepository) ListArtifacts(ctx context.Context, dir string) ([]domain.FileInfo, error) {
	rel, err := cleanRelative(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(r.root, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info := domain.FileInfo{Path: path.Join(rel, entry.Name()), IsDir: entry.IsDir()}
		if !entry.IsDir() {
			st, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat artifact %s: %w", info.Path, err)
			}
			info.Size = st.Size()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *LocalRepository) OpenArtifact(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	rel, err := cleanRelative(artifactPath)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, errors.New("artifact path is required")
	}
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// cleanRelative normalises a slash-separated artifact path and rejects
// paths escaping the repository root. The root itself is "".
func cleanRelative(p string) (string, error) {
	p = strings.Trim(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"), "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid artifact path %q", p)
		}
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", nil
	}
	return clean, nil
}
