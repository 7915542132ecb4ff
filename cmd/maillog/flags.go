package main

import (
	"flag"
	"strings"

	"github.com/crimson-sun/maillog/internal/config"
)

// parseFlags overrides cfg with the flags present in args and returns the
// remaining arguments, which are input patterns.
func parseFlags(args []string, cfg *config.Config) ([]string, error) {
	fs := flag.NewFlagSet("maillog", flag.ContinueOnError)

	fs.StringVar(&cfg.Input.Glob, "inputs", cfg.Input.Glob, "glob of maillog files to read")
	fs.StringVar(&cfg.Input.Compression, "compression", cfg.Input.Compression, "input compression: auto, none, gzip, zstd")
	compressed := fs.Bool("compressed", false, "inputs are gzip compressed (same as -compression=gzip)")
	fs.BoolVar(&cfg.Input.YearFromMtime, "year-from-mtime", cfg.Input.YearFromMtime, "take the year from each input's modification time")

	fs.IntVar(&cfg.Engine.Year, "year", cfg.Engine.Year, "year of the log timestamps (0 = current year)")
	fs.StringVar(&cfg.Engine.Timezone, "timezone", cfg.Engine.Timezone, "zone the log timestamps are in")

	fs.StringVar(&cfg.Output.Dir, "outputdir", cfg.Output.Dir, "directory for per-input output files (empty or - for stdout)")
	fs.StringVar(&cfg.Output.Type, "type", cfg.Output.Type, "export type: tsv, json, orig")
	fs.BoolVar(&cfg.Output.Pretty, "pretty", cfg.Output.Pretty, "indent JSON written to stdout")
	fs.StringVar(&cfg.Output.SQLitePath, "sqlite", cfg.Output.SQLitePath, "also write records to this SQLite database")
	fs.StringVar(&cfg.Output.PostgresURL, "postgres", cfg.Output.PostgresURL, "also write records to this Postgres database")
	fs.StringVar(&cfg.Output.WebhookURL, "webhook", cfg.Output.WebhookURL, "also POST record batches to this URL")

	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "files processed in parallel")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *compressed {
		cfg.Input.Compression = "gzip"
	}
	return fs.Args(), nil
}

// inputPatterns merges the configured glob with positional arguments.
// MAILLOG_INPUTS may list several globs separated by commas.
func inputPatterns(glob string, args []string) []string {
	var patterns []string
	for _, g := range strings.Split(glob, ",") {
		if g = strings.TrimSpace(g); g != "" {
			patterns = append(patterns, g)
		}
	}
	return append(patterns, args...)
}
