package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/storage/objectstore"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

// S3Repository serves artifacts below s3://bucket/prefix.
type S3Repository struct {
	store  objectstore.Store
	bucket string
	prefix string
}

func NewS3Repository(store objectstore.Store, bucket, prefix string) (*S3Repository, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &S3Repository{store: store, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (r *S3Repository) key(rel string) string {
	return strings.TrimPrefix(path.Join(r.prefix, rel), "/")
}

func (r *S3Repository) ListArtifacts(ctx context.Context, dir string) ([]domain.FileInfo, error) {
	rel, err := cleanRelative(dir)
	if err != nil {
		return nil, err
	}
	listPrefix := r.key(rel)
	if listPrefix != "" {
		listPrefix += "/"
	}
	objects, err := r.store.List(ctx, r.bucket, listPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, listPrefix), "/")
		if name == "" {
			continue
		}
		out = append(out, domain.FileInfo{Path: path.Join(rel, name), IsDir: obj.Dir, Size: obj.Size})
	}
	return out, nil
}

func (r *S3Repository) OpenArtifact(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	rel, err := cleanRelative(artifactPath)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, errors.New("artifact path is required")
	}
	body, err := r.store.Open(ctx, r.bucket, r.key(rel))
	if objectstore.IsNoSuchKey(err) {
		return nil, fmt.Errorf("artifact %s: %w", rel, tracking.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
