package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	if err := (Event{Name: EventError}).Validate(); err == nil {
		t.Fatalf("expected error for missing time")
	}
	if err := (Event{OccurredAt: time.Now()}).Validate(); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := (Event{OccurredAt: time.Now(), Name: EventError}).Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestNDJSONReporterOmitsAPIKey(t *testing.T) {
	var buf bytes.Buffer
	r := NewNDJSONReporter(&buf)
	event := Event{
		OccurredAt: time.Unix(1700000000, 0),
		Name:       EventError,
		APIKey:     "secret",
		ErrMsg:     "boom",
	}
	if err := r.Report(context.Background(), event); err != nil {
		t.Fatalf("Report() err=%v", err)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("api key leaked: %s", buf.String())
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["event_name"] != EventError || got["err_msg"] != "boom" || got["has_api_key"] != true {
		t.Fatalf("event=%v", got)
	}
	if got["occurred_at"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("occurred_at=%v", got["occurred_at"])
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COMET_FOR_MLFLOW_TELEMETRY", "")
	cfg, err := ConfigFromEnv()
	if err != nil || cfg.Mode != ModeHTTP {
		t.Fatalf("ConfigFromEnv()=%+v err=%v, want http", cfg, err)
	}

	t.Setenv("COMET_FOR_MLFLOW_TELEMETRY", "NDJSON")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for ndjson without file")
	}

	t.Setenv("COMET_FOR_MLFLOW_TELEMETRY", "carrier-pigeon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestOpenSelectsReporter(t *testing.T) {
	var remoteCalls int
	remote := ReporterFunc(func(ctx context.Context, event Event) error {
		remoteCalls++
		return nil
	})

	r, closer, err := Open(Config{Mode: ModeHTTP}, remote)
	if err != nil {
		t.Fatalf("Open(http) err=%v", err)
	}
	_ = r.Report(context.Background(), Event{Name: EventError})
	_ = closer.Close()
	if remoteCalls != 1 {
		t.Fatalf("remote calls=%d, want 1", remoteCalls)
	}

	if r, _, err := Open(Config{Mode: ModeNone}, remote); err != nil {
		t.Fatalf("Open(none) err=%v", err)
	} else if _, ok := r.(NoopReporter); !ok {
		t.Fatalf("Open(none)=%T, want NoopReporter", r)
	}

	path := filepath.Join(t.TempDir(), "events.ndjson")
	r, closer, err = Open(Config{Mode: ModeNDJSON, Path: path}, remote)
	if err != nil {
		t.Fatalf("Open(ndjson) err=%v", err)
	}
	if err := r.Report(context.Background(), Event{Name: EventNewUser}); err != nil {
		t.Fatalf("Report() err=%v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), EventNewUser) {
		t.Fatalf("file=%s", data)
	}
}
