package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/crimson-sun/maillog/internal/config"
	"github.com/crimson-sun/maillog/internal/engine"
	"github.com/crimson-sun/maillog/internal/logging"
	"github.com/crimson-sun/maillog/internal/pipeline"

	// Register compressed input decoders.
	_ "github.com/crimson-sun/maillog/internal/source/gzip"
	_ "github.com/crimson-sun/maillog/internal/source/zstd"

	// Zone data for MAILLOG_TIMEZONE on hosts without it.
	_ "time/tzdata"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	args, err := parseFlags(os.Args[1:], &cfg)
	if err != nil {
		os.Exit(2)
	}
	if cfg.ShowVersion {
		fmt.Println("maillog", config.Version)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logging.Init(cfg.ToStdout(), logging.ParseLevel(cfg.LogLevel))

	paths, err := pipeline.Expand(inputPatterns(cfg.Input.Glob, args)...)
	if err != nil {
		log.Fatalf("no inputs: %v", err)
	}
	if !cfg.ToStdout() {
		if err := checkOutputPaths(cfg.Output.Dir, paths); err != nil {
			log.Fatalf("output file collision: %v", err)
		}
	}

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	sink, closeShared, err := buildSink(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open outputs: %v", err)
	}

	p, err := buildPipeline(cfg, sink)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	slog.Info("maillog: starting", "files", len(paths), "type", cfg.Output.Type, "workers", cfg.Workers)
	sum, runErr := p.Run(ctx, paths)

	if err := closeShared(); err != nil {
		slog.Error("failed to close outputs", "error", err)
		runErr = errors.Join(runErr, err)
	}

	printSummary(sum)
	if runErr != nil {
		os.Exit(1)
	}
}

func buildPipeline(cfg config.Config, sink pipeline.Sink) (*pipeline.Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	engOpts := []engine.Option{
		engine.WithLocation(loc),
		engine.WithMaxLineSize(cfg.Engine.MaxLineSize),
	}

	opts := []pipeline.Option{
		pipeline.WithCompression(cfg.Input.Compression),
		pipeline.WithYear(cfg.Engine.Year),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithEngineOptions(engOpts...),
	}
	if cfg.Input.YearFromMtime {
		opts = append(opts, pipeline.WithYearFromMtime())
	}
	return pipeline.New(sink, opts...), nil
}

func printSummary(sum pipeline.Summary) {
	p := message.NewPrinter(language.English)
	p.Fprintf(os.Stderr, "%d files (%d failed), %d lines read, %d matched, %d completed, %d incomplete, %d warnings\n",
		sum.Files, sum.Failed, sum.Stats.LinesRead, sum.Stats.LinesMatched,
		sum.Stats.Completed, sum.Stats.Incomplete, sum.Stats.Warnings)
}
