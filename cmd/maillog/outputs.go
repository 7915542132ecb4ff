package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/maillog/internal/config"
	"github.com/crimson-sun/maillog/internal/output"
	"github.com/crimson-sun/maillog/internal/output/async"
	"github.com/crimson-sun/maillog/internal/output/file"
	"github.com/crimson-sun/maillog/internal/output/multi"
	"github.com/crimson-sun/maillog/internal/output/postgres"
	"github.com/crimson-sun/maillog/internal/output/sqlite"
	"github.com/crimson-sun/maillog/internal/output/stdout"
	"github.com/crimson-sun/maillog/internal/output/webhook"
	"github.com/crimson-sun/maillog/internal/pipeline"
)

// buildSink opens the outputs shared by every input and returns a Sink
// that adds the per-input file, if any. The returned close func closes the
// shared outputs and must run after the pipeline finishes.
func buildSink(ctx context.Context, cfg config.Config) (pipeline.Sink, func() error, error) {
	var shared []output.Output
	closeShared := func() error {
		var errs []error
		for _, o := range shared {
			errs = append(errs, o.Close())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (pipeline.Sink, func() error, error) {
		return nil, nil, errors.Join(err, closeShared())
	}

	if cfg.ToStdout() {
		enc, err := output.NewEncoder(cfg.Output.Type)
		if err != nil {
			return fail(err)
		}
		shared = append(shared, stdout.New(enc, cfg.Output.Pretty))
	}
	if cfg.Output.SQLitePath != "" {
		o, err := sqlite.Open(cfg.Output.SQLitePath, sqlite.WithBatchSize(cfg.Output.BatchSize))
		if err != nil {
			return fail(fmt.Errorf("sqlite: %w", err))
		}
		shared = append(shared, o)
	}
	if cfg.Output.PostgresURL != "" {
		o, err := postgres.New(ctx, cfg.Output.PostgresURL,
			postgres.WithTable(cfg.Output.PostgresTable),
			postgres.WithBatchSize(cfg.Output.BatchSize),
			postgres.WithMaxConns(cfg.Output.PostgresMaxConns),
		)
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		shared = append(shared, o)
	}
	if cfg.Output.WebhookURL != "" {
		onErr := func(err error) {
			slog.Error("webhook delivery failed", "error", err)
		}
		wh := webhook.New(cfg.Output.WebhookURL,
			webhook.WithHeaders(cfg.Output.WebhookHeaders),
			webhook.WithBatchSize(cfg.Output.BatchSize),
			webhook.WithOnError(onErr),
		)
		shared = append(shared, async.New(wh, async.WithOnError(onErr)))
	}

	sink := func(_ context.Context, input string) (output.Output, error) {
		outs := make([]output.Output, 0, len(shared)+1)
		for _, o := range shared {
			outs = append(outs, output.NopCloser(o))
		}
		if !cfg.ToStdout() {
			enc, err := output.NewEncoder(cfg.Output.Type)
			if err != nil {
				return nil, err
			}
			f, err := file.New(file.PathFor(cfg.Output.Dir, input), enc,
				file.WithTruncate(),
				file.WithMaxSize(cfg.Output.MaxFileSize),
			)
			if err != nil {
				return nil, err
			}
			outs = append(outs, f)
		}
		if len(outs) == 1 {
			return outs[0], nil
		}
		return multi.New(outs...), nil
	}
	return sink, closeShared, nil
}

// checkOutputPaths rejects inputs that would write the same output file,
// such as two "maillog" files from different directories.
func checkOutputPaths(dir string, inputs []string) error {
	owner := make(map[string]string, len(inputs))
	var errs []error
	for _, in := range inputs {
		out := file.PathFor(dir, in)
		if prev, ok := owner[out]; ok {
			errs = append(errs, fmt.Errorf("inputs %s and %s both write %s", prev, in, out))
			continue
		}
		owner[out] = in
	}
	return errors.Join(errs...)
}
