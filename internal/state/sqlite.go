package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	deskotel "github.com/evalops/sales-desk/internal/otel"
)

var tracer = deskotel.Tracer("github.com/evalops/sales-desk/internal/state")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_events (
    kind TEXT NOT NULL,
    event_id TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, event_id)
);

CREATE TABLE IF NOT EXISTS ingest_cursor (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_events_time ON processed_events(processed_at);
`

const cursorRow = "last_history_id"

// SQLiteStore is the relational ledger backend. The primary-key INSERT OR
// IGNORE gives the atomic add-if-absent the idempotency contract requires;
// processed-ID rows expire after the configured TTL.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the ledger database at path and
// purges any rows past the TTL. Errors are fatal for this backend.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.purgeExpired(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Cursor implements Store.
func (s *SQLiteStore) Cursor(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ingest_cursor WHERE name = ?`, cursorRow).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor: %w", err)
	}
	return value, nil
}

// SetCursor implements Store.
func (s *SQLiteStore) SetCursor(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_cursor(name, value) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		cursorRow, id)
	if err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}
	return nil
}

// IsProcessed implements Store. Rows past the TTL no longer count.
func (s *SQLiteStore) IsProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_events WHERE kind = ? AND event_id = ? AND processed_at >= ?`,
		string(kind), id, s.now().Add(-s.ttl).UTC()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking processed %s %s: %w", kind, id, err)
	}
	return true, nil
}

// MarkProcessed implements Store. The unique-constraint insert is the
// critical section: concurrent duplicate deliveries race on the same row and
// exactly one insert wins.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "state.mark_processed",
		trace.WithAttributes(
			attribute.String("event.kind", string(kind)),
			attribute.String("event.id", id),
		))
	defer span.End()

	if err := s.purgeExpired(ctx); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events(kind, event_id, processed_at) VALUES(?, ?, ?)`,
		string(kind), id, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("marking processed %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking processed %s %s: %w", kind, id, err)
	}
	span.SetAttributes(attribute.Bool("event.first", n == 1))
	return n == 1, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) purgeExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < ?`, s.now().Add(-s.ttl).UTC())
	if err != nil {
		return fmt.Errorf("purging expired state rows: %w", err)
	}
	return nil
}
