// Package artifacts provides the artifact repositories runs can point at:
// local directories, S3 buckets and the tracking server's artifact proxy.
package artifacts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	platformstore "github.com/animus-labs/comet-for-mlflow/internal/platform/objectstore"
	"github.com/animus-labs/comet-for-mlflow/internal/storage/objectstore"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

// Resolver maps artifact URIs onto repositories. The S3 client is built on
// first use so stores that never reference S3 need no S3 configuration.
type Resolver struct {
	trackingURL    string
	httpClient     *http.Client
	newObjectStore func() (objectstore.Store, error)
	objectStore    objectstore.Store
}

// NewResolver returns a resolver. trackingURL is the tracking server used
// for host-less mlflow-artifacts URIs; it is empty for file and SQL stores.
func NewResolver(trackingURL string, httpClient *http.Client) *Resolver {
	return &Resolver{
		trackingURL:    strings.TrimRight(trackingURL, "/"),
		httpClient:     httpClient,
		newObjectStore: objectStoreFromEnv,
	}
}

// WithObjectStore replaces the S3 backend, mainly for tests.
func (r *Resolver) WithObjectStore(store objectstore.Store) *Resolver {
	r.objectStore = store
	return r
}

func objectStoreFromEnv() (objectstore.Store, error) {
	cfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return objectstore.NewMinioStore(cfg)
}

func (r *Resolver) Resolve(ctx context.Context, artifactURI string) (tracking.ArtifactRepository, error) {
	artifactURI = strings.TrimSpace(artifactURI)
	if artifactURI == "" {
		return nil, fmt.Errorf("artifact uri is required")
	}
	if !strings.Contains(artifactURI, ":") || strings.HasPrefix(artifactURI, "/") {
		return NewLocalRepository(artifactURI), nil
	}
	u, err := url.Parse(artifactURI)
	if err != nil {
		return nil, fmt.Errorf("parse artifact uri: %w", err)
	}
	switch u.Scheme {
	case "file":
		p, err := url.PathUnescape(u.Path)
		if err != nil {
			return nil, fmt.Errorf("parse artifact uri: %w", err)
		}
		return NewLocalRepository(p), nil
	case "s3":
		store, err := r.s3Store()
		if err != nil {
			return nil, fmt.Errorf("s3 artifact store: %w", err)
		}
		return NewS3Repository(store, u.Host, u.Path)
	case "mlflow-artifacts":
		base := r.trackingURL
		if u.Host != "" {
			scheme := "http"
			if strings.HasPrefix(r.trackingURL, "https://") {
				scheme = "https"
			}
			base = scheme + "://" + u.Host
		}
		if base == "" {
			return nil, fmt.Errorf("%s needs a tracking server uri: %w", artifactURI, tracking.ErrUnsupportedStore)
		}
		return NewHTTPRepository(base, u.Path, r.httpClient), nil
	default:
		return nil, fmt.Errorf("artifact uri %s: %w", artifactURI, tracking.ErrUnsupportedStore)
	}
}

func (r *Resolver) s3Store() (objectstore.Store, error) {
	if r.objectStore != nil {
		return r.objectStore, nil
	}
	store, err := r.newObjectStore()
	if err != nil {
		return nil, err
	}
	r.objectStore = store
	return store, nil
}
