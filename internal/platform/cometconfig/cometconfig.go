// Package cometconfig reads and writes the destination credential file, an
// ini file with a [comet] section.
package cometconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
)

const (
	DefaultServerURL = "https://www.comet.ml/"
	DefaultFileName  = ".comet.config"

	section = "comet"
	header  = "# Config file for Comet.ml\n# For help see https://www.comet.ml/docs/python-sdk/getting-started/\n"
)

type Config struct {
	Path      string
	APIKey    string
	Workspace string
	ServerURL string
}

// DefaultPath is COMET_CONFIG when set, otherwise ~/.comet.config.
func DefaultPath() (string, error) {
	if v, ok := env.Lookup("COMET_CONFIG"); ok {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Load reads path, which may not exist, and lets COMET_API_KEY,
// COMET_WORKSPACE and COMET_URL_OVERRIDE take precedence over it.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	file, err := ini.LooseLoad(path)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	s := file.Section(section)
	cfg := Config{
		Path:      path,
		APIKey:    env.String("COMET_API_KEY", strings.TrimSpace(s.Key("api_key").String())),
		Workspace: env.String("COMET_WORKSPACE", strings.TrimSpace(s.Key("workspace").String())),
		ServerURL: NormalizeServerURL(env.String("COMET_URL_OVERRIDE", s.Key("url_override").String())),
	}
	return cfg, nil
}

// NormalizeServerURL returns the site root with a trailing slash. Overrides
// that point at the client library endpoint are accepted too.
func NormalizeServerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultServerURL
	}
	raw = strings.TrimRight(raw, "/")
	raw = strings.TrimSuffix(raw, "/clientlib")
	return raw + "/"
}

// SaveAPIKey rewrites path with the header comment and the api key. Other
// keys of the [comet] section are kept.
func SaveAPIKey(path, apiKey string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("api key is required")
	}
	existing, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	out := ini.Empty()
	s := out.Section(section)
	for _, key := range existing.Section(section).Keys() {
		if key.Name() == "api_key" {
			continue
		}
		if _, err := s.NewKey(key.Name(), key.Value()); err != nil {
			return fmt.Errorf("copy %s: %w", key.Name(), err)
		}
	}
	if _, err := s.NewKey("api_key", strings.TrimSpace(apiKey)); err != nil {
		return fmt.Errorf("set api key: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	if _, err := out.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
