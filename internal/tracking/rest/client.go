package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/tracking"
)

const apiPrefix = "/api/2.0/mlflow/"

var errEndpointNotFound = errors.New("endpoint not found")

// APIError is a non-2xx answer of the tracking server.
type APIError struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("mlflow api: %d %s: %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("mlflow api: %d: %s", e.Status, e.Message)
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, httpClient *http.Client) (*client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse tracking uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tracking uri must be http or https: %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{baseURL: baseURL, http: httpClient}, nil
}

func (c *client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	path := apiPrefix + endpoint
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	return c.do(ctx, http.MethodPost, apiPrefix+endpoint, body, out)
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var body struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)
	apiErr := &APIError{Status: status, ErrorCode: body.ErrorCode, Message: body.Message}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	switch {
	case body.ErrorCode == "RESOURCE_DOES_NOT_EXIST":
		return fmt.Errorf("%w: %w", tracking.ErrNotFound, apiErr)
	case body.ErrorCode == "ENDPOINT_NOT_FOUND", status == http.StatusNotFound && body.ErrorCode == "":
		return fmt.Errorf("%w: %w", errEndpointNotFound, apiErr)
	default:
		return apiErr
	}
}
