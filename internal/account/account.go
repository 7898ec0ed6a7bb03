// Package account finds the destination API key, signing the operator up
// when no key is configured.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/animus-labs/comet-for-mlflow/internal/comet"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
)

// ErrRateLimited means the destination refused the login for now. The
// process should exit instead of retrying.
var ErrRateLimited = errors.New("too many user login requests, please try again in one minute")

// API is the part of the destination client used to sign up.
type API interface {
	CheckEmail(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, email, username string) (comet.NewUser, error)
}

// Asker reads one answer from the operator.
type Asker interface {
	Ask(question string) (string, error)
}

// KeySaver persists a freshly created API key.
type KeySaver func(apiKey string) error

// Credentials is what the rest of the run needs. Token is only set for new
// accounts and lets the printed links log the operator in.
type Credentials struct {
	APIKey string
	Token  string
}

type Flow struct {
	api      API
	asker    Asker
	save     KeySaver
	reporter telemetry.Reporter
	logger   *slog.Logger
}

func NewFlow(api API, asker Asker, save KeySaver, reporter telemetry.Reporter, logger *slog.Logger) (*Flow, error) {
	if api == nil {
		return nil, errors.New("account api is required")
	}
	if asker == nil {
		return nil, errors.New("asker is required")
	}
	if save == nil {
		return nil, errors.New("key saver is required")
	}
	if reporter == nil {
		reporter = telemetry.NoopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{api: api, asker: asker, save: save, reporter: reporter, logger: logger}, nil
}

// Login returns apiKey when it is already known. Otherwise it asks for the
// email (unless given), then either creates an account or asks for the key
// of the existing one.
func (f *Flow) Login(ctx context.Context, apiKey, email string) (Credentials, error) {
	if f == nil || f.api == nil {
		return Credentials{}, fmt.Errorf("account flow not initialized")
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		f.report(ctx, telemetry.EventExistingUser, apiKey)
		return Credentials{APIKey: apiKey}, nil
	}

	f.logger.Info("Please create a free Comet account with your email.")
	email = strings.TrimSpace(email)
	if email == "" {
		var err error
		if email, err = f.asker.Ask("Email: "); err != nil {
			return Credentials{}, fmt.Errorf("read email: %w", err)
		}
	}

	known, err := f.api.CheckEmail(ctx, email)
	if errors.Is(err, comet.ErrRateLimited) {
		return Credentials{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	if err != nil {
		return Credentials{}, err
	}
	if known {
		return f.existingUser(ctx)
	}
	return f.newUser(ctx, email)
}

func (f *Flow) newUser(ctx context.Context, email string) (Credentials, error) {
	f.logger.Info("Please enter a username for your new account.")
	username, err := f.asker.Ask("Username: ")
	if err != nil {
		return Credentials{}, fmt.Errorf("read username: %w", err)
	}
	user, err := f.api.CreateUser(ctx, email, username)
	if errors.Is(err, comet.ErrRateLimited) {
		return Credentials{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	if err != nil {
		return Credentials{}, err
	}
	f.report(ctx, telemetry.EventNewUser, user.APIKey)
	f.logger.Info("A Comet.ml account has been created for you and an email was sent to you to setup your password later.")

	if err := f.save(user.APIKey); err != nil {
		return Credentials{}, fmt.Errorf("save api key: %w", err)
	}
	f.logger.Info("Your Comet API Key has been saved, it is also available on your Comet.ml dashboard.")
	return Credentials{APIKey: user.APIKey, Token: user.Token}, nil
}

func (f *Flow) existingUser(ctx context.Context) (Credentials, error) {
	f.logger.Info("An account already exists for this email, please input your API Key below (you can find it in your Settings page, https://comet.ml/docs/quick-start/#getting-your-comet-api-key):")
	apiKey, err := f.asker.Ask("API Key: ")
	if err != nil {
		return Credentials{}, fmt.Errorf("read api key: %w", err)
	}
	if apiKey == "" {
		return Credentials{}, errors.New("api key is required")
	}
	f.report(ctx, telemetry.EventExistingUser, apiKey)
	return Credentials{APIKey: apiKey}, nil
}

func (f *Flow) report(ctx context.Context, name, apiKey string) {
	if err := f.reporter.Report(ctx, telemetry.Event{Name: name, APIKey: apiKey}); err != nil {
		f.logger.Debug("telemetry report failed", "event", name, "error", err)
	}
}
