package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

// modelPrefix is the artifact path a registered model was created from.
type modelPrefix struct {
	Prefix string
	Model  string
}

// modelPrefixes keeps registry order. Versions registered from the same
// path share one entry named after the last of them.
func modelPrefixes(versions []domain.ModelVersion, info domain.RunInfo) []modelPrefix {
	var out []modelPrefix
	index := make(map[string]int)
	for _, v := range versions {
		rel, ok := tracking.RelativeArtifactPath(v.Source, info.ArtifactURI, info.RunID)
		if !ok {
			continue
		}
		if i, seen := index[rel]; seen {
			out[i].Model = v.Name
			continue
		}
		index[rel] = len(out)
		out = append(out, modelPrefix{Prefix: rel, Model: v.Name})
	}
	return out
}

// matchModel returns the model of the first prefix artifactPath starts with.
func matchModel(prefixes []modelPrefix, artifactPath string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(artifactPath, p.Prefix) {
			return p.Model, true
		}
	}
	return "", false
}

// walkArtifacts calls fn for every file below the repository root. The walk
// is depth first with an explicit stack: the files of a directory come in
// listing order, then the last listed subdirectory is entered first.
func walkArtifacts(ctx context.Context, repo tracking.ArtifactRepository, fn func(domain.FileInfo) error) error {
	stack := []string{""}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := repo.ListArtifacts(ctx, dir)
		if err != nil {
			return fmt.Errorf("list artifacts %q: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir {
				stack = append(stack, entry.Path)
				continue
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
