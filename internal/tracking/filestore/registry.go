package filestore

import (
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
)

// Registry reads registered models from <root>/models/<name>/version-<n>.
type Registry struct {
	root string
}

func NewRegistry(s *Store) *Registry {
	if s == nil {
		return nil
	}
	return &Registry{root: filepath.Join(s.root, modelsDir)}
}

func (r *Registry) SearchModelVersions(ctx context.Context, runID string) ([]domain.ModelVersion, error) {
	if r == nil {
		return nil, errors.New("registry not initialized")
	}
	models, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list registered models: %w", err)
	}
	var out []domain.ModelVersion
	for _, model := range models {
		if !model.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(r.root, model.Name()))
		if err != nil {
			return nil, fmt.Errorf("list versions of %s: %w", model.Name(), err)
		}
		for _, version := range versions {
			if !version.IsDir() || !strings.HasPrefix(version.Name(), "version-") {
				continue
			}
			var meta modelVersionMeta
			err := readMeta(filepath.Join(r.root, model.Name(), version.Name(), metaFile), &meta)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(meta.RunID) != runID {
				continue
			}
			name := meta.Name
			if name == "" {
				name = model.Name()
			}
			out = append(out, domain.ModelVersion{
				Name:    name,
				Version: strings.TrimSpace(meta.Version),
				Source:  strings.TrimSpace(meta.Source),
				RunID:   strings.TrimSpace(meta.RunID),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		vi, _ := strconv.Atoi(out[i].Version)
		vj, _ := strconv.Atoi(out[j].Version)
		return vi < vj
	})
	return out, nil
}
