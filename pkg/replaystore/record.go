// Package replaystore persists the projected timeline of on-chain task
// events behind one interface with three interchangeable backends:
// in-memory, whole-file JSON, and SQLite. Grounded on the teacher's
// pkg/store/ledger three-implementation-one-interface shape and
// pkg/store/receipt_store_sqlite.go's migrate/queryOne pattern for the
// SQLite backend.
package replaystore

import (
	"fmt"

	"github.com/agenc/runtime/pkg/canonicalize"
)

// Record is one projected timeline event.
type Record struct {
	Seq                 uint64
	SourceEventName      string
	SourceEventType      string
	SourceEventSequence  uint64
	TaskID               string
	TimestampMs          int64
	Slot                 uint64
	Signature            string
	Payload              map[string]interface{}
	ProjectionHash       string
	DisputeID            string // empty means none
	TraceID              string
	SpanID               string
}

// dedupKey is the composite key Save deduplicates on.
func (r Record) dedupKey() string {
	return fmt.Sprintf("%d|%s|%s", r.Slot, r.Signature, r.SourceEventType)
}

// ComputeProjectionHash recomputes a record's projection hash from its
// canonical core fields (spec: slot, signature, sourceEventName,
// sourceEventSequence, payload, seq, taskId, timestampMs, type).
func ComputeProjectionHash(r Record) (string, error) {
	return canonicalize.SHA256Hex(map[string]interface{}{
		"slot":                r.Slot,
		"signature":           r.Signature,
		"sourceEventName":     r.SourceEventName,
		"sourceEventSequence": r.SourceEventSequence,
		"payload":             r.Payload,
		"seq":                 r.Seq,
		"taskId":              r.TaskID,
		"timestampMs":         r.TimestampMs,
		"type":                r.SourceEventType,
	})
}

// Cursor marks how far a backfill has progressed.
type Cursor struct {
	Slot      uint64
	Signature string
	EventName string
	TraceID   string
	SpanID    string
}

// StableString renders the cursor per the documented wire format.
func (c Cursor) StableString() string {
	s := fmt.Sprintf("%d:%s:%s", c.Slot, c.Signature, c.EventName)
	if c.TraceID != "" || c.SpanID != "" {
		s += fmt.Sprintf(":%s:%s", c.TraceID, c.SpanID)
	}
	return s
}

// Equal reports whether two cursors name the same {slot, signature,
// eventName} position (the fields backfill's stall check compares).
func (c Cursor) Equal(other Cursor) bool {
	return c.Slot == other.Slot && c.Signature == other.Signature && c.EventName == other.EventName
}

// SaveResult reports how a Save call split across new vs. deduplicated
// records.
type SaveResult struct {
	Inserted      int
	Duplicates    int
	DuplicateKeys []string // composite dedup keys of every duplicate encountered, in input order
}

// CompositeKey exposes a record's dedup key for callers outside this
// package that need to report on duplicates (e.g. backfill's duplicate
// report).
func CompositeKey(r Record) string { return r.dedupKey() }

// Filter narrows a Query call.
type Filter struct {
	TaskID          string
	DisputeID       string
	FromSlot        uint64
	ToSlot          uint64
	HasToSlot       bool
	FromTimestampMs int64
	ToTimestampMs   int64
	HasToTimestamp  bool
	Limit           int
	Offset          int
}

func (f Filter) matches(r Record) bool {
	if f.TaskID != "" && r.TaskID != f.TaskID {
		return false
	}
	if f.DisputeID != "" && r.DisputeID != f.DisputeID {
		return false
	}
	if r.Slot < f.FromSlot {
		return false
	}
	if f.HasToSlot && r.Slot > f.ToSlot {
		return false
	}
	if r.TimestampMs < f.FromTimestampMs {
		return false
	}
	if f.HasToTimestamp && r.TimestampMs > f.ToTimestampMs {
		return false
	}
	return true
}

// Retention bounds how long / how many records a store keeps, applied in
// the documented order after every save.
type Retention struct {
	TTLMs               int64
	MaxEventsPerTask    int
	MaxEventsPerDispute int
	MaxEventsTotal      int
}

// CompactionConfig controls the optional VACUUM-style pass.
type CompactionConfig struct {
	Enabled            bool
	CompactAfterWrites int
}

// Config bundles retention and compaction tunables shared by every
// backend.
type Config struct {
	Retention  Retention
	Compaction CompactionConfig
}
