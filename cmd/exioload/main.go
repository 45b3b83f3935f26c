// Package main provides the EXIOBASE loader CLI.
//
// exioload loads the database configured by EXIO_* environment variables,
// logs a summary of every densified table and exits. Any failure exits 1.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/born-ml/exiobase/internal/config"
	"github.com/born-ml/exiobase/internal/database"
	"github.com/born-ml/exiobase/internal/logging"
	"github.com/born-ml/exiobase/internal/telemetry"
)

const version = "v0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "version":
			_, _ = fmt.Fprintf(stdout, "exioload %s\n", version)
			return 0
		default:
			_, _ = fmt.Fprintf(stderr, "exioload: unknown command %q\n\n", args[0])
			_, _ = fmt.Fprintln(stderr, "Usage: exioload [version]")
			_, _ = fmt.Fprintln(stderr, "Configuration is read from EXIO_* environment variables.")
			return 2
		}
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "exioload: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "exioload: %v\n", err)
		return 1
	}
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))
	ctx = logging.WithLogger(ctx, logger)

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "exioload",
		ServiceVersion: version,
		Exporter:       cfg.TraceExporter,
		RunID:          runID,
		Writer:         stdout,
	}, logger)
	if err != nil {
		logger.ErrorContext(ctx, "telemetry setup failed", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.WarnContext(ctx, "telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	opts, err := database.NewOptions(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "invalid configuration", slog.Any("error", err))
		return 1
	}

	logger.InfoContext(ctx, "loading database",
		slog.String("layout", opts.Layout.Name),
		slog.String("mat_file", opts.MatPath),
		slog.String("field_matching", string(opts.Matching)))

	db, err := database.Load(ctx, opts)
	if err != nil {
		logger.ErrorContext(ctx, "load failed", slog.Any("error", err))
		return 1
	}

	logger.InfoContext(ctx, "bundle",
		slog.String("header", db.Header),
		slog.String("version", db.Version),
		slog.Int("fields", len(db.Sparse)))
	for _, s := range db.Summaries() {
		logger.InfoContext(ctx, "table", slog.Any("summary", s))
	}
	return 0
}
