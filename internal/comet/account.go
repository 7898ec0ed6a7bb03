package comet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
)

// CheckEmail reports whether an account exists for email. Any answer other
// than 200 counts as unknown, except 429 which is ErrRateLimited.
func (c *Client) CheckEmail(ctx context.Context, email string) (bool, error) {
	in := map[string]any{"email": email, "signupReason": SignupReason}
	err := c.postJSON(ctx, authPrefix+"check-email", in, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRateLimited) {
		return false, err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}
	return false, fmt.Errorf("check email: %w", err)
}

// NewUser is the answer of CreateUser. Token is a short-lived login token
// used in the links shown after the upload.
type NewUser struct {
	APIKey string `json:"apiKey"`
	Token  string `json:"token"`
}

func (c *Client) CreateUser(ctx context.Context, email, username string) (NewUser, error) {
	in := map[string]any{"email": email, "username": username, "signupReason": SignupReason}
	var out NewUser
	if err := c.postJSON(ctx, authPrefix+"new-user", in, &out); err != nil {
		return NewUser{}, fmt.Errorf("create user: %w", err)
	}
	if strings.TrimSpace(out.APIKey) == "" {
		return NewUser{}, errors.New("create user: no api key in answer")
	}
	return out, nil
}

// Report sends a telemetry event. It makes the client a telemetry.Reporter.
func (c *Client) Report(ctx context.Context, event telemetry.Event) error {
	event = telemetry.Stamped(event, nil)
	if err := event.Validate(); err != nil {
		return err
	}
	apiKey := event.APIKey
	if apiKey == "" {
		apiKey = c.apiKey
	}
	in := map[string]any{
		"event_name": event.Name,
		"api_key":    apiKey,
		"err_msg":    event.ErrMsg,
		"timestamp":  event.OccurredAt.UnixMilli(),
	}
	if err := c.postJSON(ctx, clientPrefix+"notify/event", in, nil); err != nil {
		return fmt.Errorf("report %s: %w", event.Name, err)
	}
	return nil
}
