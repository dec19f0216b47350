package audit

import "testing"

func TestAppend_FirstEntryChainsFromGenesis(t *testing.T) {
	tr := NewTrail()
	entry, err := tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "admin", Action: "config.update", Permission: "allow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", entry.Seq)
	}
	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected prevHash to be genesis, got %s", entry.PrevHash)
	}
	if entry.EntryHash == "" {
		t.Fatalf("expected entryHash to be computed")
	}
}

func TestAppend_SecondEntryChainsFromFirst(t *testing.T) {
	tr := NewTrail()
	first, _ := tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "admin", Action: "config.update", Permission: "allow"})
	second, err := tr.Append(AppendInput{TimestampMs: 2000, Actor: "u2", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", second.Seq)
	}
	if second.PrevHash != first.EntryHash {
		t.Fatalf("expected second.prevHash == first.entryHash, got %s != %s", second.PrevHash, first.EntryHash)
	}
}

func TestAppend_IsDeterministicGivenIdenticalInput(t *testing.T) {
	trA := NewTrail()
	trB := NewTrail()
	in := AppendInput{TimestampMs: 1000, Actor: "u1", Role: "admin", Action: "config.update", Permission: "allow", InputHash: "abc", OutputHash: "def"}
	a, _ := trA.Append(in)
	b, _ := trB.Append(in)
	if a.EntryHash != b.EntryHash {
		t.Fatalf("expected identical input to produce identical hash, got %s != %s", a.EntryHash, b.EntryHash)
	}
}

func TestVerify_EmptyTrailIsValid(t *testing.T) {
	tr := NewTrail()
	result := tr.Verify()
	if !result.Valid || result.EntriesVerified != 0 {
		t.Fatalf("expected valid empty trail, got %+v", result)
	}
}

func TestVerify_ValidChainReportsNoErrors(t *testing.T) {
	tr := NewTrail()
	for i := 0; i < 5; i++ {
		tr.Append(AppendInput{TimestampMs: int64(1000 + i), Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	}
	result := tr.Verify()
	if !result.Valid || len(result.Errors) != 0 || result.EntriesVerified != 5 {
		t.Fatalf("expected valid 5-entry chain, got %+v", result)
	}
}

func TestVerify_DetectsTamperedEntryAction(t *testing.T) {
	tr := NewTrail()
	tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	entries := tr.Entries()
	entries[0].Action = "config.update" // tamper after hashing
	result := VerifyEntries(entries)
	if result.Valid {
		t.Fatalf("expected tampered entry to invalidate chain")
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected at least one error describing the tamper")
	}
}

func TestVerify_DetectsBrokenPrevHashLinkage(t *testing.T) {
	tr := NewTrail()
	tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	tr.Append(AppendInput{TimestampMs: 2000, Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	entries := tr.Entries()
	entries[1].PrevHash = "0xnotreal"
	result := VerifyEntries(entries)
	if result.Valid {
		t.Fatalf("expected broken prevHash linkage to invalidate chain")
	}
}

func TestVerify_DetectsOutOfOrderSequence(t *testing.T) {
	tr := NewTrail()
	tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	entries := tr.Entries()
	entries[0].Seq = 7
	result := VerifyEntries(entries)
	if result.Valid {
		t.Fatalf("expected mismatched seq to invalidate chain")
	}
}

func TestEntries_ReturnsSnapshotNotLiveSlice(t *testing.T) {
	tr := NewTrail()
	tr.Append(AppendInput{TimestampMs: 1000, Actor: "u1", Role: "execute", Action: "replay.backfill", Permission: "allow"})
	snap := tr.Entries()
	snap[0].Action = "mutated"
	live := tr.Entries()
	if live[0].Action == "mutated" {
		t.Fatalf("expected Entries() to return an independent copy")
	}
}
