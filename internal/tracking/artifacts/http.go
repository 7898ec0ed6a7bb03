package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
)

const proxyPrefix = "/api/2.0/mlflow-artifacts/artifacts"

// HTTPRepository serves artifacts proxied by a tracking server
// (mlflow-artifacts URIs).
type HTTPRepository struct {
	baseURL string
	root    string
	http    *http.Client
}

func NewHTTPRepository(baseURL, root string, httpClient *http.Client) *HTTPRepository {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		root:    strings.Trim(root, "/"),
		http:    httpClient,
	}
}

func (r *HTTPRepository) ListArtifacts(ctx context.Context, dir string) ([]domain.FileInfo, error) {
	rel, err := cleanRelative(dir)
	if err != nil {
		return nil, err
	}
	query := url.Values{"path": {path.Join(r.root, rel)}}
	resp, err := r.get(ctx, proxyPrefix+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Files []struct {
			Path     string      `json:"path"`
			IsDir    bool        `json:"is_dir"`
			FileSize json.Number `json:"file_size"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode artifact listing: %w", err)
	}
	files := make([]domain.FileInfo, 0, len(out.Files))
	for _, f := range out.Files {
		size, _ := f.FileSize.Int64()
		files = append(files, domain.FileInfo{Path: path.Join(rel, f.Path), IsDir: f.IsDir, Size: size})
	}
	return files, nil
}

func (r *HTTPRepository) OpenArtifact(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	rel, err := cleanRelative(artifactPath)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, errors.New("artifact path is required")
	}
	escaped := (&url.URL{Path: path.Join(r.root, rel)}).EscapedPath()
	resp, err := r.get(ctx, proxyPrefix+"/"+escaped)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	return resp.Body, nil
}

func (r *HTTPRepository) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
