// Package replaycompare compares a projected event list (from the replay
// timeline store) against a local trajectory trace, surfacing a
// deterministic, sorted anomaly list. Grounded on the teacher's
// pkg/replay/engine.go single-pass step comparison and divergence-point
// detection (Engine.StartReplay's per-step hash/type check), generalized
// from "diverged at step N" to a full anomaly taxonomy joined by key
// instead of terminating at the first mismatch.
package replaycompare

import (
	"fmt"
	"sort"
)

// Anomaly codes, per the documented taxonomy.
const (
	CodeHashMismatch     = "hash_mismatch"
	CodeMissingEvent     = "missing_event"
	CodeUnexpectedEvent  = "unexpected_event"
	CodeTypeMismatch     = "type_mismatch"
	CodeTransitionInvalid = "transition_invalid"
	CodeDuplicateSequence = "duplicate_sequence"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

var severityByCode = map[string]string{
	CodeHashMismatch:      SeverityError,
	CodeMissingEvent:      SeverityError,
	CodeUnexpectedEvent:   SeverityWarning,
	CodeTypeMismatch:      SeverityError,
	CodeTransitionInvalid: SeverityError,
	CodeDuplicateSequence: SeverityError,
}

// JoinMode controls how projected and trace events are matched.
type JoinMode int

const (
	// Lenient joins by sequence number alone.
	Lenient JoinMode = iota
	// Strict joins by (sequence number, signature).
	Strict
)

// ProjectedEvent is one event from the chain-side projection.
type ProjectedEvent struct {
	Seq            uint64
	Signature      string
	EventType      string
	ProjectionHash string
}

// TraceEvent is one event from the local trajectory trace.
type TraceEvent struct {
	Seq       uint64
	Signature string
	EventType string
	Hash      string
}

// Anomaly is one deviation found between the projected and traced views.
type Anomaly struct {
	Seq      uint64
	Code     string
	Severity string
	Message  string
}

// Result is the deterministic output of Compare.
type Result struct {
	Anomalies []Anomaly
}

// TransitionValidator reports whether moving from prevType to currType in
// encounter order is a valid state transition. A nil validator skips the
// transition_invalid check entirely.
type TransitionValidator func(prevType, currType string) bool

func joinKey(mode JoinMode, seq uint64, signature string) string {
	if mode == Strict {
		return fmt.Sprintf("%d:%s", seq, signature)
	}
	return fmt.Sprintf("%d", seq)
}

// Compare joins projected against traced events under mode, flags
// hash/type/missing/unexpected/duplicate anomalies, and — when validate
// is non-nil — validates the encounter-order transition sequence of the
// projected events. The returned anomalies are sorted by (seq, code).
func Compare(projected []ProjectedEvent, trace []TraceEvent, mode JoinMode, validate TransitionValidator) Result {
	var anomalies []Anomaly

	traceByKey := make(map[string]TraceEvent, len(trace))
	traceSeqSeen := make(map[uint64]int, len(trace))
	for _, t := range trace {
		traceSeqSeen[t.Seq]++
		key := joinKey(mode, t.Seq, t.Signature)
		traceByKey[key] = t
	}
	for seq, count := range traceSeqSeen {
		if count > 1 {
			anomalies = append(anomalies, newAnomaly(seq, CodeDuplicateSequence, fmt.Sprintf("sequence %d appears %d times in trace", seq, count)))
		}
	}

	projectedSeqSeen := make(map[uint64]int, len(projected))
	matchedKeys := make(map[string]bool, len(projected))
	for _, p := range projected {
		projectedSeqSeen[p.Seq]++
		key := joinKey(mode, p.Seq, p.Signature)
		matchedKeys[key] = true

		t, ok := traceByKey[key]
		if !ok {
			anomalies = append(anomalies, newAnomaly(p.Seq, CodeMissingEvent, fmt.Sprintf("no trace event for seq=%d", p.Seq)))
			continue
		}
		if p.ProjectionHash != t.Hash {
			anomalies = append(anomalies, newAnomaly(p.Seq, CodeHashMismatch, fmt.Sprintf("projection hash %q != trace hash %q", p.ProjectionHash, t.Hash)))
			continue
		}
		if p.EventType != t.EventType {
			anomalies = append(anomalies, newAnomaly(p.Seq, CodeTypeMismatch, fmt.Sprintf("projected type %q != traced type %q", p.EventType, t.EventType)))
		}
	}
	for seq, count := range projectedSeqSeen {
		if count > 1 {
			anomalies = append(anomalies, newAnomaly(seq, CodeDuplicateSequence, fmt.Sprintf("sequence %d appears %d times in projection", seq, count)))
		}
	}

	for _, t := range trace {
		key := joinKey(mode, t.Seq, t.Signature)
		if !matchedKeys[key] {
			anomalies = append(anomalies, newAnomaly(t.Seq, CodeUnexpectedEvent, fmt.Sprintf("trace event at seq=%d has no projected counterpart", t.Seq)))
		}
	}

	if validate != nil {
		ordered := append([]ProjectedEvent(nil), projected...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
		for i := 1; i < len(ordered); i++ {
			if !validate(ordered[i-1].EventType, ordered[i].EventType) {
				anomalies = append(anomalies, newAnomaly(ordered[i].Seq, CodeTransitionInvalid,
					fmt.Sprintf("invalid transition %q -> %q at seq=%d", ordered[i-1].EventType, ordered[i].EventType, ordered[i].Seq)))
			}
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Seq != anomalies[j].Seq {
			return anomalies[i].Seq < anomalies[j].Seq
		}
		return anomalies[i].Code < anomalies[j].Code
	})

	return Result{Anomalies: anomalies}
}

func newAnomaly(seq uint64, code, message string) Anomaly {
	return Anomaly{Seq: seq, Code: code, Severity: severityByCode[code], Message: message}
}
