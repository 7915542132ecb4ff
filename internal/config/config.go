package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

// Config holds all maillog configuration. Values come from MAILLOG_*
// environment variables; command-line flags override them.
type Config struct {
	Input  InputConfig
	Engine EngineConfig
	Output OutputConfig

	Workers  int    `env:"MAILLOG_WORKERS" envDefault:"4"`
	LogLevel string `env:"MAILLOG_LOG_LEVEL" envDefault:"info"`

	ShowVersion bool
}

// InputConfig selects and decodes the maillog files.
type InputConfig struct {
	Glob          string `env:"MAILLOG_INPUTS"`
	Compression   string `env:"MAILLOG_COMPRESSION" envDefault:"auto"` // "auto", "none", "gzip", "zstd"
	YearFromMtime bool   `env:"MAILLOG_YEAR_FROM_MTIME"`
}

// EngineConfig holds reconstruction settings.
type EngineConfig struct {
	Year        int    `env:"MAILLOG_YEAR"` // 0 = current year
	Timezone    string `env:"MAILLOG_TIMEZONE" envDefault:"UTC"`
	MaxLineSize int    `env:"MAILLOG_MAX_LINE_SIZE" envDefault:"1048576"`
}

// OutputConfig holds record destination settings. Dir empty or "-" writes
// to stdout; otherwise one file per input is written under Dir.
type OutputConfig struct {
	Type        string `env:"MAILLOG_TYPE" envDefault:"tsv"` // "tsv", "json", "orig"
	Dir         string `env:"MAILLOG_OUTPUT_DIR"`
	Pretty      bool   `env:"MAILLOG_OUTPUT_PRETTY"`
	MaxFileSize int64  `env:"MAILLOG_OUTPUT_MAX_SIZE"` // 0 = no rotation

	SQLitePath       string `env:"MAILLOG_SQLITE_PATH"`
	PostgresURL      string `env:"MAILLOG_POSTGRES_URL"`
	PostgresTable    string `env:"MAILLOG_POSTGRES_TABLE" envDefault:"mail_records"`
	PostgresMaxConns int32  `env:"MAILLOG_POSTGRES_MAX_CONNS" envDefault:"4"`

	WebhookURL     string            `env:"MAILLOG_WEBHOOK_URL"`
	WebhookHeaders map[string]string `env:"MAILLOG_WEBHOOK_HEADERS"` // "Key:Value,Key2:Value2"

	BatchSize int `env:"MAILLOG_BATCH_SIZE" envDefault:"500"`
}

var (
	compressions = []string{"auto", "none", "gzip", "zstd"}
	exportTypes  = []string{"tsv", "json", "orig"}
)

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ToStdout reports whether records go to stdout rather than files.
func (c Config) ToStdout() bool {
	return c.Output.Dir == "" || c.Output.Dir == "-"
}

// Location returns the zone log timestamps are read in.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Engine.Timezone)
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(compressions, c.Input.Compression) {
		errs = append(errs, fmt.Errorf("MAILLOG_COMPRESSION %q must be one of %v", c.Input.Compression, compressions))
	}
	if !slices.Contains(exportTypes, c.Output.Type) {
		errs = append(errs, fmt.Errorf("MAILLOG_TYPE %q must be one of %v", c.Output.Type, exportTypes))
	}
	if c.Engine.Year < 0 {
		errs = append(errs, fmt.Errorf("MAILLOG_YEAR must be >= 0, got %d", c.Engine.Year))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("MAILLOG_TIMEZONE: %w", err))
	}
	if c.Engine.MaxLineSize <= 0 {
		errs = append(errs, fmt.Errorf("MAILLOG_MAX_LINE_SIZE must be > 0, got %d", c.Engine.MaxLineSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("MAILLOG_WORKERS must be >= 1, got %d", c.Workers))
	}
	if c.Output.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("MAILLOG_OUTPUT_MAX_SIZE must be >= 0, got %d", c.Output.MaxFileSize))
	}
	if c.Output.PostgresMaxConns < 1 {
		errs = append(errs, fmt.Errorf("MAILLOG_POSTGRES_MAX_CONNS must be >= 1, got %d", c.Output.PostgresMaxConns))
	}
	if c.Output.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("MAILLOG_BATCH_SIZE must be >= 1, got %d", c.Output.BatchSize))
	}

	return errors.Join(errs...)
}
