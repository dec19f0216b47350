// Package audit is an append-only, hash-chained log of privileged
// operations. Grounded on pkg/store/audit_store.go's AuditStore: the
// same genesis-hash-then-forward-chain discipline, Append/Query/
// VerifyChain/ExportBundle shape, generalized from that store's
// free-form EntryType/Subject/Action/Payload record to this runtime's
// fixed {seq, timestampMs, actor, role, action, permission, inputHash,
// outputHash, prevHash, entryHash, metadata?} entry, and from the
// teacher's ad hoc struct-marshal hash to this module's canonical JSON
// hash.
package audit

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agenc/runtime/pkg/canonicalize"
)

// GenesisHash is the chain's fixed starting previous-hash: "0x" followed
// by 64 hex zeros.
var GenesisHash = "0x" + strings.Repeat("0", 64)

// Entry is one immutable audit record.
type Entry struct {
	Seq         uint64                 `json:"seq"`
	TimestampMs int64                  `json:"timestampMs"`
	Actor       string                 `json:"actor"`
	Role        string                 `json:"role"`
	Action      string                 `json:"action"`
	Permission  string                 `json:"permission"`
	InputHash   string                 `json:"inputHash"`
	OutputHash  string                 `json:"outputHash"`
	PrevHash    string                 `json:"prevHash"`
	EntryHash   string                 `json:"entryHash"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// AppendInput is the caller-supplied content of a new entry; Seq,
// PrevHash, and EntryHash are computed by Append.
type AppendInput struct {
	TimestampMs int64
	Actor       string
	Role        string
	Action      string
	Permission  string
	InputHash   string
	OutputHash  string
	Metadata    map[string]interface{}
}

// VerifyResult is the outcome of walking the chain forward.
type VerifyResult struct {
	Valid           bool
	Errors          []string
	EntriesVerified int
}

// Trail is an append-only, mutex-serialized hash chain.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTrail constructs an empty Trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Append computes seq and the hash chain fields and appends the entry,
// entirely behind the trail's mutex.
func (t *Trail) Append(in AppendInput) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevHash := GenesisHash
	if n := len(t.entries); n > 0 {
		prevHash = t.entries[n-1].EntryHash
	}

	entry := Entry{
		Seq:         uint64(len(t.entries)) + 1,
		TimestampMs: in.TimestampMs,
		Actor:       in.Actor,
		Role:        in.Role,
		Action:      in.Action,
		Permission:  in.Permission,
		InputHash:   in.InputHash,
		OutputHash:  in.OutputHash,
		PrevHash:    prevHash,
		Metadata:    in.Metadata,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: hash entry: %w", err)
	}
	entry.EntryHash = hash

	t.entries = append(t.entries, entry)
	return entry, nil
}

// entryHash hashes the canonical form of entry with EntryHash cleared,
// per "sha256(canonical(entry without entryHash))".
func entryHash(e Entry) (string, error) {
	e.EntryHash = ""
	digest, err := canonicalize.SHA256Hex(e)
	if err != nil {
		return "", err
	}
	return "0x" + digest, nil
}

// Entries returns a snapshot copy of every entry in insertion order.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Verify walks the chain forward from genesis, recomputing both the
// previous-hash linkage and each entry's own hash.
func (t *Trail) Verify() VerifyResult {
	entries := t.Entries()
	return VerifyEntries(entries)
}

// VerifyEntries verifies an externally supplied (e.g. deserialized)
// entry slice against the same chain rules Verify applies to a live
// Trail, so round-tripped audit JSON can be checked independently of
// the Trail that produced it.
func VerifyEntries(entries []Entry) VerifyResult {
	result := VerifyResult{Valid: true}
	expectedPrev := GenesisHash
	for i, entry := range entries {
		entriesSoFar := i + 1
		if entry.Seq != uint64(entriesSoFar) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: expected seq %d, got %d", i, entriesSoFar, entry.Seq))
		}
		if entry.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: expected prevHash %s, got %s", i, expectedPrev, entry.PrevHash))
		}
		computed, err := entryHash(entry)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: hash computation failed: %v", i, err))
			continue
		}
		if computed != entry.EntryHash {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: entryHash mismatch (computed %s, stored %s)", i, computed, entry.EntryHash))
		}
		expectedPrev = entry.EntryHash
		result.EntriesVerified = entriesSoFar
	}
	return result
}
