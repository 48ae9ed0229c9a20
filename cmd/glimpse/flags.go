package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glimpse/internal/inference"
	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/model"
)

var (
	modelDir      string
	tokenizerPath string
	hfConfigPath  string
	weightsPath   string
	device        string
	backend       string
	eosToken      string
	fallbackEOSID int64
	configFile    string
	logLevel      string
	logFormat     string
	debug         bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model directory (config.json, model.safetensors, tokenizer.json); defaults to $" + envModelDir,
			Destination: &modelDir,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "compute device (auto, cpu, cuda)",
			Value:       "auto",
			Destination: &device,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "model back-end; empty uses config.json",
			Destination: &backend,
		},
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "override path to tokenizer.json",
			Destination: &tokenizerPath,
		},
		&cli.StringFlag{
			Name:        "hf-config",
			Usage:       "override path to config.json",
			Destination: &hfConfigPath,
		},
		&cli.StringFlag{
			Name:        "weights",
			Usage:       "override path to model.safetensors",
			Destination: &weightsPath,
		},
		&cli.StringFlag{
			Name:        "eos-token",
			Usage:       "vocabulary entry used as both BOS and EOS",
			Value:       inference.DefaultEOSToken,
			Destination: &eosToken,
		},
		&cli.Int64Flag{
			Name:        "fallback-eos-id",
			Usage:       "id used when --eos-token is not in the vocabulary (-1 = fail)",
			Value:       inference.DefaultFallbackEOSID,
			Destination: &fallbackEOSID,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging applies the config file's logging defaults and stores the
// resulting logger in the context for every subcommand.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.NewFormat(logFormat, stderr(cmd), level)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// engineConfig builds the inference configuration from the shared model
// flags.
func engineConfig(ctx context.Context, cmd *cli.Command) (inference.Config, error) {
	dir, err := resolveModelDir(modelDir, stderr(cmd))
	if err != nil {
		return inference.Config{}, err
	}
	dev, err := model.ParseDevice(device)
	if err != nil {
		return inference.Config{}, err
	}
	cfg := inference.DefaultConfig()
	cfg.ModelDir = dir
	cfg.Artifacts = model.Artifacts{
		Config:    hfConfigPath,
		Weights:   weightsPath,
		Tokenizer: tokenizerPath,
	}
	cfg.Device = dev
	cfg.Backend = backend
	cfg.EOSToken = eosToken
	cfg.FallbackEOSID = int(fallbackEOSID)
	cfg.Logger = logger.FromContext(ctx)
	return cfg, nil
}
