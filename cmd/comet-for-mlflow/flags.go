package main

import (
	"errors"
	"flag"
	"io"
)

type options struct {
	Upload        bool
	APIKey        string
	StoreURI      string
	OutputDir     string
	ForceReupload bool
	Email         string
	// Answer is the preset reply to the upload question; nil asks.
	Answer *bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	opts := options{Upload: true}
	fs := flag.NewFlagSet("comet-for-mlflow", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolFunc("upload", "Upload all MLFlow experiments to Comet.ml (default)", func(string) error {
		opts.Upload = true
		return nil
	})
	fs.BoolFunc("no-upload", "Do not upload; only prepare the archives locally", func(string) error {
		opts.Upload = false
		return nil
	})
	fs.StringVar(&opts.APIKey, "api-key", "", "Comet API key; can also be configured with COMET_API_KEY or the config file")
	fs.StringVar(&opts.StoreURI, "mlflow-store-uri", "", "MLFlow store uri; defaults to MLFLOW_TRACKING_URI, then ./mlruns")
	fs.StringVar(&opts.OutputDir, "output-dir", "", "Directory receiving the prepared archives; defaults to a fresh temporary directory")
	fs.BoolVar(&opts.ForceReupload, "force-reupload", false, "Upload archives again even when already uploaded")
	fs.StringVar(&opts.Email, "email", "", "Email address used when a Comet.ml account has to be created")

	answer := func(v bool) func(string) error {
		return func(string) error {
			if opts.Answer != nil && *opts.Answer != v {
				return errors.New("--yes and --no are mutually exclusive")
			}
			opts.Answer = &v
			return nil
		}
	}
	for _, name := range []string{"y", "yes"} {
		fs.BoolFunc(name, "Answer yes to the upload question", answer(true))
	}
	for _, name := range []string{"n", "no"} {
		fs.BoolFunc(name, "Answer no to the upload question", answer(false))
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, errors.New("unexpected arguments")
	}
	return opts, nil
}
