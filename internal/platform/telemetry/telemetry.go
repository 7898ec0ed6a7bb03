// Package telemetry carries usage and error events about a migration to the
// destination service or to a local file.
package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	EventError        = "mlflow_error"
	EventNewUser      = "mlflow_new_user"
	EventExistingUser = "mlflow_existing_user"
)

type Event struct {
	OccurredAt time.Time
	Name       string
	APIKey     string
	ErrMsg     string
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("Name is required")
	}
	return nil
}

// Reporter delivers events. Reporting is best effort; callers log failures
// and carry on.
type Reporter interface {
	Report(ctx context.Context, event Event) error
}

// NoopReporter drops every event.
type NoopReporter struct{}

func (NoopReporter) Report(ctx context.Context, event Event) error {
	return nil
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, event Event) error

func (f ReporterFunc) Report(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Stamped fills in the occurrence time when unset.
func Stamped(event Event, now func() time.Time) Event {
	if event.OccurredAt.IsZero() {
		if now == nil {
			now = time.Now
		}
		event.OccurredAt = now().UTC()
	}
	return event
}
