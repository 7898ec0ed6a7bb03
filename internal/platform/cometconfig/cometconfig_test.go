package cometconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"COMET_API_KEY", "COMET_WORKSPACE", "COMET_URL_OVERRIDE", "COMET_CONFIG"} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.config"))
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.APIKey != "" || cfg.ServerURL != DefaultServerURL {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadPrefersEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "comet.config")
	content := "[comet]\napi_key = from-file\nworkspace = team\nurl_override = https://comet.example.com/clientlib/\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.APIKey != "from-file" || cfg.Workspace != "team" || cfg.ServerURL != "https://comet.example.com/" {
		t.Fatalf("cfg=%+v", cfg)
	}

	t.Setenv("COMET_API_KEY", "from-env")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Fatalf("api key=%q, want from-env", cfg.APIKey)
	}
}

func TestSaveAPIKeyWritesHeaderAndKeepsWorkspace(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "comet.config")
	if err := os.WriteFile(path, []byte("[comet]\nworkspace = team\napi_key = old\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := SaveAPIKey(path, "new-key"); err != nil {
		t.Fatalf("SaveAPIKey() err=%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Config file for Comet.ml\n# For help see ") {
		t.Fatalf("missing header:\n%s", data)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.APIKey != "new-key" || cfg.Workspace != "team" {
		t.Fatalf("cfg=%+v", cfg)
	}

	if err := SaveAPIKey(path, " "); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestDefaultPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMET_CONFIG", "/tmp/custom.config")
	path, err := DefaultPath()
	if err != nil || path != "/tmp/custom.config" {
		t.Fatalf("DefaultPath()=%q err=%v", path, err)
	}
	t.Setenv("COMET_CONFIG", "")
	t.Setenv("HOME", "/home/tester")
	path, err = DefaultPath()
	if err != nil || path != filepath.Join("/home/tester", DefaultFileName) {
		t.Fatalf("DefaultPath()=%q err=%v", path, err)
	}
}

func TestNormalizeServerURL(t *testing.T) {
	cases := map[string]string{
		"":                            DefaultServerURL,
		"https://comet.example.com":   "https://comet.example.com/",
		"https://comet.example.com/":  "https://comet.example.com/",
		"http://localhost/clientlib/": "http://localhost/",
	}
	for in, want := range cases {
		if got := NormalizeServerURL(in); got != want {
			t.Errorf("NormalizeServerURL(%q)=%q, want %q", in, got, want)
		}
	}
}
