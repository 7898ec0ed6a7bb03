// Package rest talks to an MLflow tracking server over its REST API.
//
// Servers older than MLflow 1.28 only offer experiments/list; newer ones only
// offer experiments/search. The flavour is probed once when the store is
// opened.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/domain"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

const (
	searchPageSize  = 1000
	historyPageSize = 25000
)

type Flavour string

const (
	FlavourSearch Flavour = "search"
	FlavourLegacy Flavour = "legacy"
)

type experimentLister interface {
	listExperiments(ctx context.Context) ([]domain.Experiment, error)
}

type Store struct {
	client  *client
	lister  experimentLister
	flavour Flavour
}

// Open connects to the tracking server at baseURL and selects the API
// flavour it supports. httpClient carries authentication.
func Open(ctx context.Context, baseURL string, httpClient *http.Client) (*Store, error) {
	c, err := newClient(baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	flavour, err := probeFlavour(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("probe tracking server %s: %w", c.baseURL, err)
	}
	s := &Store{client: c, flavour: flavour}
	switch flavour {
	case FlavourLegacy:
		s.lister = legacyLister{client: c}
	default:
		s.lister = searchLister{client: c}
	}
	return s, nil
}

func probeFlavour(ctx context.Context, c *client) (Flavour, error) {
	var out struct{}
	err := c.postJSON(ctx, "experiments/search", map[string]any{"max_results": 1}, &out)
	if err == nil {
		return FlavourSearch, nil
	}
	if errors.Is(err, errEndpointNotFound) {
		return FlavourLegacy, nil
	}
	return "", err
}

func (s *Store) Flavour() Flavour {
	return s.flavour
}

// Identity is the tracking server URI.
func (s *Store) Identity() string {
	return s.client.baseURL
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	if s == nil || s.lister == nil {
		return nil, fmt.Errorf("rest store not initialized")
	}
	return s.lister.listExperiments(ctx)
}

type searchLister struct {
	client *client
}

func (l searchLister) listExperiments(ctx context.Context) ([]domain.Experiment, error) {
	var (
		experiments []domain.Experiment
		pageToken   string
	)
	for {
		body := map[string]any{
			"max_results": searchPageSize,
			"view_type":   tracking.ViewActiveOnly.String(),
		}
		if pageToken != "" {
			body["page_token"] = pageToken
		}
		var out struct {
			Experiments   []experimentJSON `json:"experiments"`
			NextPageToken string           `json:"next_page_token"`
		}
		if err := l.client.postJSON(ctx, "experiments/search", body, &out); err != nil {
			return nil, fmt.Errorf("search experiments: %w", err)
		}
		for _, exp := range out.Experiments {
			experiments = append(experiments, exp.toDomain())
		}
		if out.NextPageToken == "" {
			return experiments, nil
		}
		pageToken = out.NextPageToken
	}
}

type legacyLister struct {
	client *client
}

func (l legacyLister) listExperiments(ctx context.Context) ([]domain.Experiment, error) {
	var out struct {
		Experiments []experimentJSON `json:"experiments"`
	}
	query := url.Values{"view_type": {tracking.ViewActiveOnly.String()}}
	if err := l.client.getJSON(ctx, "experiments/list", query, &out); err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	experiments := make([]domain.Experiment, 0, len(out.Experiments))
	for _, exp := range out.Experiments {
		experiments = append(experiments, exp.toDomain())
	}
	return experiments, nil
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view tracking.ViewType) ([]domain.RunInfo, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("rest store not initialized")
	}
	var (
		infos     []domain.RunInfo
		pageToken string
	)
	for {
		body := map[string]any{
			"experiment_ids": []string{experimentID},
			"run_view_type":  view.String(),
			"max_results":    searchPageSize,
		}
		if pageToken != "" {
			body["page_token"] = pageToken
		}
		var out struct {
			Runs          []runJSON `json:"runs"`
			NextPageToken string    `json:"next_page_token"`
		}
		if err := s.client.postJSON(ctx, "runs/search", body, &out); err != nil {
			return nil, fmt.Errorf("search runs: %w", err)
		}
		for _, run := range out.Runs {
			infos = append(infos, run.Info.toDomain())
		}
		if out.NextPageToken == "" {
			return infos, nil
		}
		pageToken = out.NextPageToken
	}
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if s == nil || s.client == nil {
		return domain.Run{}, fmt.Errorf("rest store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.Run{}, errors.New("run id is required")
	}
	var out struct {
		Run runJSON `json:"run"`
	}
	if err := s.client.getJSON(ctx, "runs/get", url.Values{"run_id": {runID}, "run_uuid": {runID}}, &out); err != nil {
		return domain.Run{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return out.Run.toDomain(), nil
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("rest store not initialized")
	}
	var (
		history   []domain.Metric
		pageToken string
	)
	for {
		query := url.Values{
			"run_id":      {runID},
			"run_uuid":    {runID},
			"metric_key":  {key},
			"max_results": {strconv.Itoa(historyPageSize)},
		}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		var out struct {
			Metrics       []metricJSON `json:"metrics"`
			NextPageToken string       `json:"next_page_token"`
		}
		if err := s.client.getJSON(ctx, "metrics/get-history", query, &out); err != nil {
			return nil, fmt.Errorf("metric history %s: %w", key, err)
		}
		for _, m := range out.Metrics {
			history = append(history, m.toDomain())
		}
		if out.NextPageToken == "" {
			return history, nil
		}
		pageToken = out.NextPageToken
	}
}

func (s *Store) SetExperimentTag(ctx context.Context, experimentID, key, value string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("rest store not initialized")
	}
	body := map[string]string{"experiment_id": experimentID, "key": key, "value": value}
	if err := s.client.postJSON(ctx, "experiments/set-experiment-tag", body, nil); err != nil {
		return fmt.Errorf("set experiment tag: %w", err)
	}
	return nil
}

// Registry searches the server's model registry.
type Registry struct {
	client *client
}

func NewRegistry(s *Store) *Registry {
	return &Registry{client: s.client}
}

func (r *Registry) SearchModelVersions(ctx context.Context, runID string) ([]domain.ModelVersion, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("rest registry not initialized")
	}
	var (
		versions  []domain.ModelVersion
		pageToken string
	)
	filter := fmt.Sprintf("run_id='%s'", strings.ReplaceAll(runID, "'", ""))
	for {
		query := url.Values{"filter": {filter}}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		var out struct {
			ModelVersions []modelVersionJSON `json:"model_versions"`
			NextPageToken string             `json:"next_page_token"`
		}
		err := r.client.getJSON(ctx, "model-versions/search", query, &out)
		if errors.Is(err, errEndpointNotFound) {
			// Server runs without a model registry.
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("search model versions: %w", err)
		}
		for _, mv := range out.ModelVersions {
			versions = append(versions, mv.toDomain())
		}
		if out.NextPageToken == "" {
			return versions, nil
		}
		pageToken = out.NextPageToken
	}
}
