// Package comet is a small client for the destination service: account and
// project lookups, project creation, offline archive uploads and event
// notifications.
package comet

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
	"time"
)

const (
	restPrefix   = "api/rest/v2/"
	authPrefix   = "api/auth/"
	clientPrefix = "clientlib/"

	// SignupReason tags accounts created by this tool.
	SignupReason = "comet-for-mlflow"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx answer of the service.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comet api: %s %s: status=%d: %s", e.Method, e.Path, e.Status, e.Message)
}

type Client struct {
	serverURL string
	apiKey    string
	http      *http.Client
}

// New returns a client for serverURL, the site root such as
// https://www.comet.ml/. apiKey may be empty for the signup endpoints.
func New(serverURL, apiKey string, httpClient *http.Client) (*Client, error) {
	serverURL = strings.TrimSpace(serverURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %q", serverURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultTransport()}
	}
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/") + "/",
		apiKey:    strings.TrimSpace(apiKey),
		http:      httpClient,
	}, nil
}

// defaultTransport bounds the wait for response headers only. Archive
// uploads stream for as long as they need and are cancelled through ctx.
func defaultTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 60 * time.Second
	return t
}

// ServerURL is the site root, always with a trailing slash.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// WithAPIKey returns a copy of the client that authenticates with apiKey.
func (c *Client) WithAPIKey(apiKey string) *Client {
	cp := *c
	cp.apiKey = strings.TrimSpace(apiKey)
	return &cp
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("comet client not initialized")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(req, resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeError(req *http.Request, status int, body []byte) error {
	var payload struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	apiErr := &APIError{Method: req.Method, Path: req.URL.Path, Status: status, Message: payload.Msg}
	if apiErr.Message == "" {
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	default:
		return apiErr
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.serverURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, out)
}
