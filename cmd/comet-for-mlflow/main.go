package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/animus-labs/comet-for-mlflow/internal/account"
	"github.com/animus-labs/comet-for-mlflow/internal/comet"
	"github.com/animus-labs/comet-for-mlflow/internal/migrate"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/cometconfig"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/env"
	"github.com/animus-labs/comet-for-mlflow/internal/platform/telemetry"
	"github.com/animus-labs/comet-for-mlflow/internal/project"
	"github.com/animus-labs/comet-for-mlflow/internal/prompt"
	"github.com/animus-labs/comet-for-mlflow/internal/tracking/backends"
)

const banner = ` __   __         ___ ___     ___  __   __                 ___       __
/  ` + "`" + ` /  \  |\/| |__   |  __ |__  /  \ |__) __  |\/| |    |__  |    /  \ |  |
\__, \__/  |  | |___  |     |    \__/ |  \     |  | |___ |    |___ \__/ |/\|

`

const (
	supportLine = "If you need support, you can contact us at http://chat.comet.ml/ or https://comet.ml/docs/quick-start/#getting-support"
	sdkLine     = "Get deeper instrumentation by adding Comet SDK to your project: https://comet.ml/docs/python-sdk/mlflow/"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.String("COMET_FOR_MLFLOW_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("parse COMET_FOR_MLFLOW_LOG_LEVEL: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch format := strings.ToLower(env.String("COMET_FOR_MLFLOW_LOG_FORMAT", "text")); format {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	logger, err := newLogger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	configPath, err := cometconfig.DefaultPath()
	if err != nil {
		logger.Error("invalid comet config", "error", err)
		return 2
	}
	cfg, err := cometconfig.Load(configPath)
	if err != nil {
		logger.Error("invalid comet config", "error", err)
		return 2
	}
	telemetryCfg, err := telemetry.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid telemetry config", "error", err)
		return 2
	}
	client, err := comet.New(cfg.ServerURL, "", nil)
	if err != nil {
		logger.Error("invalid server url", "error", err)
		return 2
	}
	reporter, closer, err := telemetry.Open(telemetryCfg, client)
	if err != nil {
		logger.Error("telemetry unavailable", "error", err)
		return 2
	}
	defer func() { _ = closer.Close() }()

	defer func() {
		if r := recover(); r != nil {
			event := telemetry.Event{Name: telemetry.EventError, ErrMsg: fmt.Sprintf("panic: %v\n%s", r, debug.Stack())}
			_ = reporter.Report(ctx, event)
			panic(r)
		}
	}()

	fmt.Fprint(stdout, banner)
	prompter := prompt.New(stdin, stdout)

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	flow, err := account.NewFlow(client, prompter, func(key string) error {
		return cometconfig.SaveAPIKey(configPath, key)
	}, reporter, logger)
	if err != nil {
		logger.Error("account flow init failed", "error", err)
		return 1
	}
	creds, err := flow.Login(ctx, apiKey, opts.Email)
	if errors.Is(err, account.ErrRateLimited) {
		logger.Error("Too many user login requests, please try again in one minute.")
		return 1
	}
	if err != nil {
		logger.Error("login failed", "error", err)
		return 1
	}
	client = client.WithAPIKey(creds.APIKey)

	workspace := cfg.Workspace
	if workspace == "" {
		details, err := client.AccountDetails(ctx)
		if err != nil {
			logger.Error("account details unavailable", "error", err)
			return 1
		}
		workspace = details.DefaultWorkspaceName
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		if outputDir, err = os.MkdirTemp("", "comet-for-mlflow-"); err != nil {
			logger.Error("create output dir", "error", err)
			return 1
		}
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		logger.Error("resolve output dir", "error", err)
		return 1
	}

	backend, err := backends.Open(ctx, backends.StoreURI(opts.StoreURI), logger)
	if err != nil {
		logger.Error("mlflow store unavailable", "error", err)
		return 1
	}
	defer func() { _ = backend.Close() }()

	translator, err := migrate.NewTranslator(backend, migrate.Options{
		OutputDir: outputDir,
		ServerURL: client.ServerURL(),
		APIKey:    creds.APIKey,
	}, reporter, logger)
	if err != nil {
		logger.Error("translator init failed", "error", err)
		return 1
	}

	logger.Info("Starting Comet Extension for MLFlow")
	logger.Info("You will have an opportunity to review.")
	prepared, err := translator.Prepare(ctx)
	if err != nil {
		logger.Error("prepare failed", "error", err)
		return 1
	}
	summary := translator.Summary()
	fmt.Fprintf(stdout, "\n%s\n\n", summary.Table())
	fmt.Fprintf(stdout, "All prepared data has been saved to: %s (%s)\n\n", outputDir, summary.ArchiveSize())

	upload := opts.Upload
	if upload {
		if opts.Answer != nil {
			upload = *opts.Answer
		} else if upload, err = prompter.Confirm("Upload prepared data to Comet.ml? [y/N] "); err != nil {
			logger.Error("read answer", "error", err)
			return 1
		}
	}

	storeID := backend.Store.Identity()
	if upload {
		resolver, err := project.NewResolver(client, backend.Store, workspace, storeID, logger)
		if err != nil {
			logger.Error("project resolver init failed", "error", err)
			return 1
		}
		uploader, err := migrate.NewUploader(client, resolver, migrate.UploaderConfig{
			Workspace:   workspace,
			ForceUpload: opts.ForceReupload,
			APIKey:      creds.APIKey,
		}, reporter, logger)
		if err != nil {
			logger.Error("uploader init failed", "error", err)
			return 1
		}
		logger.Info("Start uploading data to Comet.ml")
		names := uploader.Upload(ctx, prepared)

		fmt.Fprintln(stdout, "\nExplore your experiment data on Comet.ml with the following links:")
		for _, link := range migrate.ProjectLinks(client.ServerURL(), workspace, names, creds.Token) {
			fmt.Fprintf(stdout, "\t- %s\n", link)
		}
		fmt.Fprintln(stdout, sdkLine)
	} else {
		if err := migrate.SaveLocally(prepared, storeID, workspace); err != nil {
			logger.Error("stamping archives failed", "error", err)
		}
		hints := migrate.LocalHints(outputDir)
		fmt.Fprintln(stdout, "Data not uploaded. To upload later run:")
		fmt.Fprintf(stdout, "   %s\n\n", hints[0])
		fmt.Fprintln(stdout, "To get a preview of what was prepared, run:")
		fmt.Fprintf(stdout, "   %s\n", hints[1])
	}

	fmt.Fprintf(stdout, "\n%s\n", supportLine)
	return 0
}
