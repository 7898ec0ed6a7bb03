package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// NDJSONReporter writes events as newline-delimited JSON. The API key is
// never written.
type NDJSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewNDJSONReporter(w io.Writer) *NDJSONReporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONReporter{enc: enc}
}

type exportEvent struct {
	OccurredAt string `json:"occurred_at"`
	Name       string `json:"event_name"`
	HasAPIKey  bool   `json:"has_api_key"`
	ErrMsg     string `json:"err_msg,omitempty"`
}

func (r *NDJSONReporter) Report(ctx context.Context, event Event) error {
	event = Stamped(event, nil)
	if err := event.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(exportEvent{
		OccurredAt: event.OccurredAt.UTC().Format(timeFormatRFC3339Nano),
		Name:       event.Name,
		HasAPIKey:  event.APIKey != "",
		ErrMsg:     event.ErrMsg,
	})
}

const timeFormatRFC3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
