package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func clearAuthEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MLFLOW_TRACKING_AUTH",
		"MLFLOW_TRACKING_USERNAME",
		"MLFLOW_TRACKING_PASSWORD",
		"MLFLOW_TRACKING_TOKEN",
		"MLFLOW_TRACKING_OIDC_ISSUER_URL",
		"MLFLOW_TRACKING_OIDC_CLIENT_ID",
		"MLFLOW_TRACKING_OIDC_CLIENT_SECRET",
		"MLFLOW_TRACKING_OIDC_SCOPES",
		"MLFLOW_TRACKING_INSECURE_TLS",
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv_InfersMode(t *testing.T) {
	clearAuthEnv(t)
	cfg, err := ConfigFromEnv()
	if err != nil || cfg.Mode != ModeNone {
		t.Fatalf("ConfigFromEnv()=%+v err=%v, want none", cfg, err)
	}

	t.Setenv("MLFLOW_TRACKING_TOKEN", "tok")
	cfg, err = ConfigFromEnv()
	if err != nil || cfg.Mode != ModeBearer {
		t.Fatalf("ConfigFromEnv()=%+v err=%v, want bearer", cfg, err)
	}

	t.Setenv("MLFLOW_TRACKING_TOKEN", "")
	t.Setenv("MLFLOW_TRACKING_USERNAME", "alice")
	cfg, err = ConfigFromEnv()
	if err != nil || cfg.Mode != ModeBasic {
		t.Fatalf("ConfigFromEnv()=%+v err=%v, want basic", cfg, err)
	}
}

func TestConfigFromEnv_OIDCRequiresClient(t *testing.T) {
	clearAuthEnv(t)
	t.Setenv("MLFLOW_TRACKING_AUTH", "oidc")
	t.Setenv("MLFLOW_TRACKING_OIDC_ISSUER_URL", "https://issuer.example")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error without client id")
	}
}

func TestConfigFromEnv_RejectsUnknownMode(t *testing.T) {
	clearAuthEnv(t)
	t.Setenv("MLFLOW_TRACKING_AUTH", "kerberos")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestParseScopes(t *testing.T) {
	got := parseScopes("openid, mlflow  read")
	if len(got) != 3 || got[1] != "mlflow" {
		t.Fatalf("parseScopes()=%v", got)
	}
	if got := parseScopes(""); len(got) != 1 || got[0] != "openid" {
		t.Fatalf("parseScopes(\"\")=%v", got)
	}
}

func echoAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func authorizationFor(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}

func TestNewHTTPClient_BasicAndBearer(t *testing.T) {
	srv := echoAuthServer(t)
	ctx := context.Background()

	basic, err := NewHTTPClient(ctx, Config{Mode: ModeBasic, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPClient(basic) err=%v", err)
	}
	if got := authorizationFor(t, basic, srv.URL); got != "Basic YWxpY2U6c2VjcmV0" {
		t.Fatalf("basic Authorization=%q", got)
	}

	bearer, err := NewHTTPClient(ctx, Config{Mode: ModeBearer, Token: "tok"})
	if err != nil {
		t.Fatalf("NewHTTPClient(bearer) err=%v", err)
	}
	if got := authorizationFor(t, bearer, srv.URL); got != "Bearer tok" {
		t.Fatalf("bearer Authorization=%q", got)
	}
}

func TestNewHTTPClient_NoWholeRequestTimeout(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{
		{Mode: ModeNone},
		{Mode: ModeBasic, Username: "alice", Password: "secret"},
		{Mode: ModeBearer, Token: "tok"},
	} {
		c, err := NewHTTPClient(ctx, cfg)
		if err != nil {
			t.Fatalf("NewHTTPClient(%s) err=%v", cfg.Mode, err)
		}
		if c.Timeout != 0 {
			t.Fatalf("%s: Timeout=%v, want 0", cfg.Mode, c.Timeout)
		}
	}
	tr, ok := newTransport(Config{}).(*http.Transport)
	if !ok {
		t.Fatalf("newTransport returned %T", newTransport(Config{}))
	}
	if tr.ResponseHeaderTimeout != responseHeaderTimeout {
		t.Fatalf("ResponseHeaderTimeout=%v, want %v", tr.ResponseHeaderTimeout, responseHeaderTimeout)
	}
}

func TestNewHTTPClient_OIDCClientCredentials(t *testing.T) {
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "issued",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuer = srv.URL

	client, err := NewHTTPClient(context.Background(), Config{
		Mode:             ModeOIDC,
		OIDCIssuerURL:    issuer,
		OIDCClientID:     "migrator",
		OIDCClientSecret: "s3cret",
		OIDCScopes:       []string{"openid"},
	})
	if err != nil {
		t.Fatalf("NewHTTPClient(oidc) err=%v", err)
	}
	if got := authorizationFor(t, client, srv.URL+"/api"); got != "Bearer issued" {
		t.Fatalf("oidc Authorization=%q", got)
	}
}
