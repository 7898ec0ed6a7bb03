package objectstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
)

const defaultEndpoint = "s3.amazonaws.com"

// Config describes the S3-compatible endpoint holding MLflow artifacts.
// Empty keys fall back to the AWS credential chain.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	UseSSL       bool
}

// ConfigFromEnv reads the variables the MLflow S3 artifact repository uses.
func ConfigFromEnv() (Config, error) {
	endpoint, useSSL, err := ParseEndpoint(env.String("MLFLOW_S3_ENDPOINT_URL", ""))
	if err != nil {
		return Config{}, fmt.Errorf("MLFLOW_S3_ENDPOINT_URL: %w", err)
	}
	ignoreTLS, err := env.Bool("MLFLOW_S3_IGNORE_TLS", false)
	if err != nil {
		return Config{}, err
	}
	if ignoreTLS {
		useSSL = false
	}
	cfg := Config{
		Endpoint:     endpoint,
		AccessKey:    env.String("AWS_ACCESS_KEY_ID", ""),
		SecretKey:    env.String("AWS_SECRET_ACCESS_KEY", ""),
		SessionToken: env.String("AWS_SESSION_TOKEN", ""),
		Region:       env.First("us-east-1", "AWS_DEFAULT_REGION", "AWS_REGION"),
		UseSSL:       useSSL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEndpoint splits an endpoint URL into host[:port] and the TLS flag.
// A bare host keeps TLS on; "" selects AWS.
func ParseEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultEndpoint, true, nil
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("access key and secret key must be set together")
	}
	return nil
}
