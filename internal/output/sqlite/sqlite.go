// Package sqlite indexes reconstructed records into a SQLite database, one
// row per record. List fields are stored as JSON arrays so they can be
// queried with json_each.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/valyala/fastjson"
	_ "modernc.org/sqlite"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

const defaultBatchSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS mail_records (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id                  TEXT    NOT NULL DEFAULT '',
	source                  TEXT    NOT NULL DEFAULT '',
	host                    TEXT    NOT NULL,
	session_id              TEXT    NOT NULL,
	start_time              INTEGER NOT NULL,
	end_time                INTEGER NOT NULL,
	completed               INTEGER NOT NULL,
	client_host             TEXT    NOT NULL DEFAULT '',
	client_ip               TEXT    NOT NULL DEFAULT '',
	message_id              TEXT    NOT NULL DEFAULT '',
	envelope_from           TEXT    NOT NULL DEFAULT '',
	envelope_to             TEXT    NOT NULL DEFAULT '[]',
	original_to             TEXT    NOT NULL DEFAULT '[]',
	recipient_count         INTEGER NOT NULL DEFAULT 0,
	size_bytes              INTEGER NOT NULL DEFAULT 0,
	delivery_status_code    TEXT    NOT NULL DEFAULT '[]',
	delivery_disposition    TEXT    NOT NULL DEFAULT '[]',
	delivery_detail_message TEXT    NOT NULL DEFAULT '[]',
	delay_total             REAL    NOT NULL DEFAULT 0,
	before_queue_manager    REAL    NOT NULL DEFAULT 0,
	queue_manager_time      REAL    NOT NULL DEFAULT 0,
	connection_setup        REAL    NOT NULL DEFAULT 0,
	message_transmission    REAL    NOT NULL DEFAULT 0,
	relay_host              TEXT    NOT NULL DEFAULT '[]',
	relay_ip                TEXT    NOT NULL DEFAULT '[]',
	relay_port              TEXT    NOT NULL DEFAULT '[]',
	subsystems_seen         TEXT    NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS mail_records_session ON mail_records (host, session_id);
CREATE INDEX IF NOT EXISTS mail_records_message ON mail_records (message_id);
CREATE INDEX IF NOT EXISTS mail_records_from ON mail_records (envelope_from);
`

var columns = []string{
	"run_id", "source", "host", "session_id", "start_time", "end_time", "completed",
	"client_host", "client_ip", "message_id", "envelope_from", "envelope_to", "original_to",
	"recipient_count", "size_bytes", "delivery_status_code", "delivery_disposition",
	"delivery_detail_message", "delay_total", "before_queue_manager", "queue_manager_time",
	"connection_setup", "message_transmission", "relay_host", "relay_ip", "relay_port",
	"subsystems_seen",
}

// Option configures a SQLite Output.
type Option func(*Output)

// WithBatchSize sets how many rows are inserted per transaction. Default: 500.
func WithBatchSize(n int) Option {
	return func(o *Output) { o.batchSize = n }
}

// Output inserts records in batched transactions.
type Output struct {
	db        *sql.DB
	insert    string
	batchSize int

	mu      sync.Mutex
	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	arena   fastjson.Arena
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, opts ...Option) (*Output, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite output: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite output: open: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite output: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite output: schema: %w", err)
	}

	o := &Output{
		db:        db,
		insert:    insertSQL(),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO mail_records (%s) VALUES (%s)", strings.Join(columns, ", "), marks)
}

// Write inserts rec. Rows are committed every batchSize records and on Close.
// The open transaction is shared by every file writing to o, so it never
// follows the cancellation of the ctx that happened to open it.
func (o *Output) Write(ctx context.Context, rec *model.MailRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	if o.tx == nil {
		tx, err := o.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite output: begin: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, o.insert)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite output: prepare: %w", err)
		}
		o.tx, o.stmt = tx, stmt
	}

	if _, err := o.stmt.ExecContext(ctx, o.row(ctx, rec)...); err != nil {
		return fmt.Errorf("sqlite output: insert %s/%s: %w", rec.Host, rec.SessionID, err)
	}
	o.pending++
	if o.pending >= o.batchSize {
		return o.commitLocked()
	}
	return nil
}

// Close commits pending rows and closes the database.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.commitLocked()
	if cerr := o.db.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("sqlite output: close: %w", cerr)
	}
	return err
}

func (o *Output) commitLocked() error {
	if o.tx == nil {
		return nil
	}
	o.stmt.Close()
	err := o.tx.Commit()
	o.tx, o.stmt, o.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("sqlite output: commit: %w", err)
	}
	return nil
}

func (o *Output) row(ctx context.Context, rec *model.MailRecord) []any {
	defer o.arena.Reset()
	return []any{
		output.RunIDFrom(ctx),
		output.SourceFrom(ctx),
		rec.Host,
		rec.SessionID,
		rec.StartTime.UTC().UnixMilli(),
		rec.EndTime.UTC().UnixMilli(),
		rec.Completed,
		rec.ClientHost,
		rec.ClientIP,
		rec.MessageID,
		rec.EnvelopeFrom,
		o.list(rec.EnvelopeTo),
		o.list(rec.OriginalTo),
		rec.RecipientCount,
		rec.SizeBytes,
		o.list(rec.DeliveryStatusCode),
		o.list(rec.DeliveryDisposition),
		o.list(rec.DeliveryDetailMessage),
		rec.DelayTotal,
		rec.BeforeQueueManager,
		rec.QueueManagerTime,
		rec.ConnectionSetup,
		rec.MessageTransmission,
		o.list(rec.RelayHost),
		o.list(rec.RelayIP),
		o.list(rec.RelayPort),
		o.list(rec.SubsystemsSeen),
	}
}

func (o *Output) list(ss []string) string {
	arr := o.arena.NewArray()
	for i, s := range ss {
		arr.SetArrayItem(i, o.arena.NewString(s))
	}
	return string(arr.MarshalTo(nil))
}
