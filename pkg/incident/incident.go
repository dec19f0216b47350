// Package incident builds a deterministic, serializable case record out
// of a projected timeline and its reconciliation anomalies. Grounded on
// pkg/compliance/dora/incident_workflow.go's ordered-step,
// deadline-aware incident record, generalized from a fixed DORA
// reporting workflow into a content-addressed case built purely from
// replay data: no external deadlines or NCA notifications, since this
// runtime has no regulatory-reporting obligation — just a reproducible
// summary of what happened and who was involved.
package incident

import (
	"fmt"
	"sort"

	"github.com/agenc/runtime/pkg/canonicalize"
	"github.com/agenc/runtime/pkg/replaycompare"
	"github.com/agenc/runtime/pkg/replaystore"
)

const SchemaVersion = 1

const (
	StatusOpen  = "open"
	StatusClean = "clean"
)

// actorKeys are the payload fields this builder recognizes as naming an
// actor. Order controls nothing semantically; it only fixes the scan
// order for determinism.
var actorKeys = []string{"creator", "worker", "approver", "reviewer", "disputant"}

// TraceWindow bounds the slot range a case covers.
type TraceWindow struct {
	FromSlot uint64 `json:"fromSlot"`
	ToSlot   uint64 `json:"toSlot"`
}

// Transition is one observed state change, in encounter order.
type Transition struct {
	Seq         uint64 `json:"seq"`
	FromState   string `json:"fromState"`
	ToState     string `json:"toState"`
	TimestampMs int64  `json:"timestampMs"`
}

// Actor is one participant observed in the timeline, with the slot
// range across which they appeared.
type Actor struct {
	Role          string `json:"role"`
	ID            string `json:"id"`
	FirstSeenSlot uint64 `json:"firstSeenSlot"`
	LastSeenSlot  uint64 `json:"lastSeenSlot"`
}

// IncidentCase is the deterministic, content-addressed output of Build.
type IncidentCase struct {
	SchemaVersion int          `json:"schemaVersion"`
	CaseID        string       `json:"caseId"`
	TraceWindow   TraceWindow  `json:"traceWindow"`
	Transitions   []Transition `json:"transitions"`
	Actors        []Actor      `json:"actors"`
	AnomalyRefs   []string     `json:"anomalyRefs"`
	EvidenceHash  string       `json:"evidenceHash"`
	CaseStatus    string       `json:"caseStatus"`
}

// ActorMap rebuilds the ID-keyed lookup from the wire-serialized Actors
// slice; deserializing a case and calling ActorMap is the documented
// rebuild step.
func (c IncidentCase) ActorMap() map[string]Actor {
	out := make(map[string]Actor, len(c.Actors))
	for _, a := range c.Actors {
		out[a.ID] = a
	}
	return out
}

// Serialize renders the case as stable, canonically ordered JSON text.
func Serialize(c IncidentCase) (string, error) {
	return canonicalize.StableString(c)
}

// Build constructs a deterministic IncidentCase from a projected
// timeline (assumed in the order replaystore.Query returns it: Slot,
// then SourceEventSequence, ascending) and the anomalies a comparison
// pass found against it.
func Build(taskID string, timeline []replaystore.Record, anomalies []replaycompare.Anomaly) (IncidentCase, error) {
	window := traceWindow(timeline)

	caseID, err := computeCaseID(taskID, window)
	if err != nil {
		return IncidentCase{}, fmt.Errorf("incident: compute case id: %w", err)
	}

	transitions := extractTransitions(timeline)
	actors := extractActors(timeline)
	anomalyRefs := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		anomalyRefs = append(anomalyRefs, fmt.Sprintf("%d:%s", a.Seq, a.Code))
	}

	status := StatusClean
	if len(anomalyRefs) > 0 {
		status = StatusOpen
	}

	evidenceHash, err := canonicalize.SHA256Hex(map[string]interface{}{
		"transitions": transitions,
		"actors":      actors,
		"anomalyRefs": anomalyRefs,
	})
	if err != nil {
		return IncidentCase{}, fmt.Errorf("incident: compute evidence hash: %w", err)
	}

	return IncidentCase{
		SchemaVersion: SchemaVersion,
		CaseID:        caseID,
		TraceWindow:   window,
		Transitions:   transitions,
		Actors:        actors,
		AnomalyRefs:   anomalyRefs,
		EvidenceHash:  evidenceHash,
		CaseStatus:    status,
	}, nil
}

func computeCaseID(taskID string, window TraceWindow) (string, error) {
	digest, err := canonicalize.SHA256Hex(map[string]interface{}{
		"traceWindow": window,
		"taskId":      taskID,
	})
	if err != nil {
		return "", err
	}
	return digest, nil
}

func traceWindow(timeline []replaystore.Record) TraceWindow {
	if len(timeline) == 0 {
		return TraceWindow{}
	}
	window := TraceWindow{FromSlot: timeline[0].Slot, ToSlot: timeline[0].Slot}
	for _, r := range timeline[1:] {
		if r.Slot < window.FromSlot {
			window.FromSlot = r.Slot
		}
		if r.Slot > window.ToSlot {
			window.ToSlot = r.Slot
		}
	}
	return window
}

// extractTransitions walks the timeline in encounter order, recording a
// Transition whenever a record's payload "state" field differs from the
// previous one seen.
func extractTransitions(timeline []replaystore.Record) []Transition {
	transitions := make([]Transition, 0)
	prevState := ""
	haveState := false
	for _, r := range timeline {
		state, ok := stringField(r.Payload, "state")
		if !ok {
			continue
		}
		if haveState && state != prevState {
			transitions = append(transitions, Transition{
				Seq:         r.Seq,
				FromState:   prevState,
				ToState:     state,
				TimestampMs: r.TimestampMs,
			})
		}
		prevState = state
		haveState = true
	}
	return transitions
}

// extractActors scans every record's payload for the recognized actor
// keys, tracking each actor's first/last seen slot.
func extractActors(timeline []replaystore.Record) []Actor {
	seen := make(map[string]*Actor)
	order := make([]string, 0)

	for _, r := range timeline {
		for _, role := range actorKeys {
			id, ok := stringField(r.Payload, role)
			if !ok || id == "" {
				continue
			}
			key := role + ":" + id
			actor, exists := seen[key]
			if !exists {
				actor = &Actor{Role: role, ID: id, FirstSeenSlot: r.Slot, LastSeenSlot: r.Slot}
				seen[key] = actor
				order = append(order, key)
				continue
			}
			if r.Slot < actor.FirstSeenSlot {
				actor.FirstSeenSlot = r.Slot
			}
			if r.Slot > actor.LastSeenSlot {
				actor.LastSeenSlot = r.Slot
			}
		}
	}

	sort.Strings(order)
	actors := make([]Actor, 0, len(order))
	for _, key := range order {
		actors = append(actors, *seen[key])
	}
	return actors
}

func stringField(payload map[string]interface{}, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
