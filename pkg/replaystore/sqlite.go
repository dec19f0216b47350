package replaystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS replay_records (
	seq INTEGER PRIMARY KEY,
	source_event_name TEXT NOT NULL,
	source_event_type TEXT NOT NULL,
	source_event_sequence INTEGER NOT NULL,
	task_id TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	slot INTEGER NOT NULL,
	signature TEXT NOT NULL,
	payload TEXT NOT NULL,
	projection_hash TEXT NOT NULL,
	dispute_id TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	span_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS replay_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	next_seq INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS replay_cursor (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	slot INTEGER NOT NULL,
	signature TEXT NOT NULL,
	event_name TEXT NOT NULL,
	trace_id TEXT NOT NULL DEFAULT '',
	span_id TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore is the database/sql-backed Store implementation, for
// deployments that want queryable durability without a standalone
// database server. Advisory operational cap: degrades past roughly
// 10 GiB, since every Save reloads the full record set to run the
// shared dedup/retention pass before rewriting the table.
type SQLiteStore struct {
	db    *sql.DB
	cfg   Config
	nowFn func() int64
}

// NewSQLiteStore opens (creating if needed) the schema on db.
func NewSQLiteStore(db *sql.DB, cfg Config) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, cfg: cfg, nowFn: func() int64 { return time.Now().UnixMilli() }}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("replaystore: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) loadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, source_event_name, source_event_type, source_event_sequence, task_id,
		       timestamp_ms, slot, signature, payload, projection_hash, dispute_id, trace_id, span_id
		FROM replay_records`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		r, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordRow(row rowScanner) (Record, error) {
	var r Record
	var payload string
	if err := row.Scan(&r.Seq, &r.SourceEventName, &r.SourceEventType, &r.SourceEventSequence, &r.TaskID,
		&r.TimestampMs, &r.Slot, &r.Signature, &payload, &r.ProjectionHash, &r.DisputeID, &r.TraceID, &r.SpanID); err != nil {
		return Record{}, err
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return Record{}, fmt.Errorf("replaystore: unmarshal payload for seq=%d: %w", r.Seq, err)
		}
	}
	return r, nil
}

func (s *SQLiteStore) loadNextSeq(ctx context.Context) (uint64, error) {
	var nextSeq uint64
	err := s.db.QueryRowContext(ctx, `SELECT next_seq FROM replay_meta WHERE id = 1`).Scan(&nextSeq)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return nextSeq, nil
}

func (s *SQLiteStore) Save(ctx context.Context, incoming []Record) (SaveResult, error) {
	existing, err := s.loadAll(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	nextSeq, err := s.loadNextSeq(ctx)
	if err != nil {
		return SaveResult{}, err
	}

	merged, nextSeq, result, err := mergeSave(existing, nextSeq, incoming)
	if err != nil {
		return SaveResult{}, err
	}
	retained := applyRetention(merged, s.cfg.Retention, s.nowFn())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM replay_records`); err != nil {
		return SaveResult{}, err
	}
	for _, r := range retained {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return SaveResult{}, fmt.Errorf("replaystore: marshal payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO replay_records (seq, source_event_name, source_event_type, source_event_sequence,
				task_id, timestamp_ms, slot, signature, payload, projection_hash, dispute_id, trace_id, span_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Seq, r.SourceEventName, r.SourceEventType, r.SourceEventSequence, r.TaskID,
			r.TimestampMs, r.Slot, r.Signature, string(payload), r.ProjectionHash, r.DisputeID, r.TraceID, r.SpanID); err != nil {
			return SaveResult{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO replay_meta (id, next_seq) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET next_seq = excluded.next_seq`, nextSeq); err != nil {
		return SaveResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	return result, nil
}

func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterAndPage(all, filter), nil
}

func (s *SQLiteStore) GetCursor(ctx context.Context) (*Cursor, error) {
	var c Cursor
	err := s.db.QueryRowContext(ctx, `SELECT slot, signature, event_name, trace_id, span_id FROM replay_cursor WHERE id = 1`).
		Scan(&c.Slot, &c.Signature, &c.EventName, &c.TraceID, &c.SpanID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) SaveCursor(ctx context.Context, cursor Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_cursor (id, slot, signature, event_name, trace_id, span_id) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET slot = excluded.slot, signature = excluded.signature,
			event_name = excluded.event_name, trace_id = excluded.trace_id, span_id = excluded.span_id`,
		cursor.Slot, cursor.Signature, cursor.EventName, cursor.TraceID, cursor.SpanID)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range []string{`DELETE FROM replay_records`, `DELETE FROM replay_meta`, `DELETE FROM replay_cursor`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Flush is a no-op: Save commits its transaction before returning.
func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }
