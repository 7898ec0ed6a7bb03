// Package auth builds the HTTP clients used to talk to an MLflow tracking
// server that sits behind authentication.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
)

type Mode string

const (
	ModeNone   Mode = "none"
	ModeBasic  Mode = "basic"
	ModeBearer Mode = "bearer"
	ModeOIDC   Mode = "oidc"
)

type Config struct {
	Mode Mode

	Username string
	Password string
	Token    string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string

	InsecureSkipVerify bool
}

// ConfigFromEnv reads the MLflow client variables. Without an explicit
// MLFLOW_TRACKING_AUTH the mode follows whichever credentials are present.
func ConfigFromEnv() (Config, error) {
	insecure, err := env.Bool("MLFLOW_TRACKING_INSECURE_TLS", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Username:           env.String("MLFLOW_TRACKING_USERNAME", ""),
		Password:           env.String("MLFLOW_TRACKING_PASSWORD", ""),
		Token:              env.String("MLFLOW_TRACKING_TOKEN", ""),
		OIDCIssuerURL:      env.String("MLFLOW_TRACKING_OIDC_ISSUER_URL", ""),
		OIDCClientID:       env.String("MLFLOW_TRACKING_OIDC_CLIENT_ID", ""),
		OIDCClientSecret:   env.String("MLFLOW_TRACKING_OIDC_CLIENT_SECRET", ""),
		OIDCScopes:         parseScopes(env.String("MLFLOW_TRACKING_OIDC_SCOPES", "openid")),
		InsecureSkipVerify: insecure,
	}

	modeRaw := strings.ToLower(env.String("MLFLOW_TRACKING_AUTH", ""))
	switch modeRaw {
	case "":
		cfg.Mode = inferMode(cfg)
	case string(ModeNone), string(ModeBasic), string(ModeBearer), string(ModeOIDC):
		cfg.Mode = Mode(modeRaw)
	default:
		return Config{}, fmt.Errorf("MLFLOW_TRACKING_AUTH must be one of: none, basic, bearer, oidc (got %q)", modeRaw)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func inferMode(cfg Config) Mode {
	switch {
	case cfg.OIDCIssuerURL != "":
		return ModeOIDC
	case cfg.Token != "":
		return ModeBearer
	case cfg.Username != "" || cfg.Password != "":
		return ModeBasic
	default:
		return ModeNone
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeNone:
	case ModeBasic:
		if strings.TrimSpace(c.Username) == "" {
			return errors.New("MLFLOW_TRACKING_USERNAME is required for basic auth")
		}
	case ModeBearer:
		if strings.TrimSpace(c.Token) == "" {
			return errors.New("MLFLOW_TRACKING_TOKEN is required for bearer auth")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("MLFLOW_TRACKING_OIDC_ISSUER_URL is required for oidc auth")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("MLFLOW_TRACKING_OIDC_CLIENT_ID is required for oidc auth")
		}
		if strings.TrimSpace(c.OIDCClientSecret) == "" {
			return errors.New("MLFLOW_TRACKING_OIDC_CLIENT_SECRET is required for oidc auth")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

func parseScopes(value string) []string {
	fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
	if len(fields) == 0 {
		return []string{"openid"}
	}
	return fields
}
