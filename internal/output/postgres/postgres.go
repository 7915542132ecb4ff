// Package postgres loads reconstructed records into PostgreSQL with COPY.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

const (
	defaultTable     = "mail_records"
	defaultBatchSize = 1000
)

var columns = []string{
	"run_id", "source", "host", "session_id", "start_time", "end_time", "completed",
	"client_host", "client_ip", "message_id", "envelope_from", "envelope_to", "original_to",
	"recipient_count", "size_bytes", "delivery_status_code", "delivery_disposition",
	"delivery_detail_message", "delay_total", "before_queue_manager", "queue_manager_time",
	"connection_setup", "message_transmission", "relay_host", "relay_ip", "relay_port",
	"subsystems_seen",
}

const schemaTmpl = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id                      BIGSERIAL PRIMARY KEY,
	run_id                  TEXT             NOT NULL DEFAULT '',
	source                  TEXT             NOT NULL DEFAULT '',
	host                    TEXT             NOT NULL,
	session_id              TEXT             NOT NULL,
	start_time              TIMESTAMPTZ      NOT NULL,
	end_time                TIMESTAMPTZ      NOT NULL,
	completed               BOOLEAN          NOT NULL,
	client_host             TEXT             NOT NULL DEFAULT '',
	client_ip               TEXT             NOT NULL DEFAULT '',
	message_id              TEXT             NOT NULL DEFAULT '',
	envelope_from           TEXT             NOT NULL DEFAULT '',
	envelope_to             TEXT[]           NOT NULL DEFAULT '{}',
	original_to             TEXT[]           NOT NULL DEFAULT '{}',
	recipient_count         BIGINT           NOT NULL DEFAULT 0,
	size_bytes              BIGINT           NOT NULL DEFAULT 0,
	delivery_status_code    TEXT[]           NOT NULL DEFAULT '{}',
	delivery_disposition    TEXT[]           NOT NULL DEFAULT '{}',
	delivery_detail_message TEXT[]           NOT NULL DEFAULT '{}',
	delay_total             DOUBLE PRECISION NOT NULL DEFAULT 0,
	before_queue_manager    DOUBLE PRECISION NOT NULL DEFAULT 0,
	queue_manager_time      DOUBLE PRECISION NOT NULL DEFAULT 0,
	connection_setup        DOUBLE PRECISION NOT NULL DEFAULT 0,
	message_transmission    DOUBLE PRECISION NOT NULL DEFAULT 0,
	relay_host              TEXT[]           NOT NULL DEFAULT '{}',
	relay_ip                TEXT[]           NOT NULL DEFAULT '{}',
	relay_port              TEXT[]           NOT NULL DEFAULT '{}',
	subsystems_seen         TEXT[]           NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (host, session_id);
`

// Option configures a Postgres Output.
type Option func(*Output)

// WithTable sets the destination table. Default: mail_records.
func WithTable(name string) Option {
	return func(o *Output) { o.table = name }
}

// WithBatchSize sets how many rows are buffered per COPY. Default: 1000.
func WithBatchSize(n int) Option {
	return func(o *Output) { o.batchSize = n }
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(o *Output) { o.maxConns = n }
}

// Output buffers rows and flushes them with COPY FROM.
type Output struct {
	pool      *pgxpool.Pool
	table     string
	batchSize int
	maxConns  int32

	mu   sync.Mutex
	rows [][]any
}

// New connects to url, verifies the connection and creates the table if
// needed.
func New(ctx context.Context, url string, opts ...Option) (*Output, error) {
	o := &Output{
		table:     defaultTable,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres output: parse url: %w", err)
	}
	if o.maxConns > 0 {
		poolConfig.MaxConns = o.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres output: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres output: ping: %w", err)
	}

	ident := pgx.Identifier{o.table}.Sanitize()
	index := pgx.Identifier{o.table + "_session"}.Sanitize()
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTmpl, ident, index)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres output: schema: %w", err)
	}

	o.pool = pool
	return o, nil
}

// Write buffers rec, flushing once batchSize rows are pending.
func (o *Output) Write(ctx context.Context, rec *model.MailRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.rows = append(o.rows, Row(ctx, rec))
	if len(o.rows) >= o.batchSize {
		return o.flushLocked(ctx)
	}
	return nil
}

// Close flushes pending rows and closes the pool.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.flushLocked(context.Background())
	o.pool.Close()
	return err
}

func (o *Output) flushLocked(ctx context.Context) error {
	if len(o.rows) == 0 {
		return nil
	}
	rows := o.rows
	o.rows = nil

	n, err := o.pool.CopyFrom(ctx, pgx.Identifier{o.table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres output: copy %d rows: %w", len(rows), err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("postgres output: copied %d of %d rows", n, len(rows))
	}
	return nil
}

// Row converts rec to COPY values in column order. Nil lists become empty
// arrays to satisfy the NOT NULL constraints.
func Row(ctx context.Context, rec *model.MailRecord) []any {
	return []any{
		output.RunIDFrom(ctx),
		output.SourceFrom(ctx),
		rec.Host,
		rec.SessionID,
		rec.StartTime,
		rec.EndTime,
		rec.Completed,
		rec.ClientHost,
		rec.ClientIP,
		rec.MessageID,
		rec.EnvelopeFrom,
		list(rec.EnvelopeTo),
		list(rec.OriginalTo),
		rec.RecipientCount,
		rec.SizeBytes,
		list(rec.DeliveryStatusCode),
		list(rec.DeliveryDisposition),
		list(rec.DeliveryDetailMessage),
		rec.DelayTotal,
		rec.BeforeQueueManager,
		rec.QueueManagerTime,
		rec.ConnectionSetup,
		rec.MessageTransmission,
		list(rec.RelayHost),
		list(rec.RelayIP),
		list(rec.RelayPort),
		list(rec.SubsystemsSeen),
	}
}

func list(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
