package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
)

const (
	ModeHTTP   = "http"
	ModeNDJSON = "ndjson"
	ModeNone   = "none"
)

// Config selects where events go.
type Config struct {
	Mode string
	Path string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode: strings.ToLower(env.String("COMET_FOR_MLFLOW_TELEMETRY", ModeHTTP)),
		Path: env.String("COMET_FOR_MLFLOW_TELEMETRY_FILE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "", ModeHTTP, ModeNone:
		return nil
	case ModeNDJSON:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("COMET_FOR_MLFLOW_TELEMETRY_FILE is required for ndjson telemetry")
		}
		return nil
	default:
		return fmt.Errorf("unsupported telemetry mode: %s", c.Mode)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the reporter for cfg. remote delivers events over HTTP; when
// nil the http mode falls back to dropping events. The returned closer
// releases the ndjson file.
func Open(cfg Config, remote Reporter) (Reporter, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeNone:
		return NoopReporter{}, nopCloser{}, nil
	case ModeNDJSON:
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open telemetry file: %w", err)
		}
		return NewNDJSONReporter(f), f, nil
	default:
		if remote == nil {
			return NoopReporter{}, nopCloser{}, nil
		}
		return remote, nopCloser{}, nil
	}
}
