// Package inconsistency detects pairwise structural and semantic
// disagreements between candidate outputs, optionally recording them into
// a provenance graph. Grounded on the teacher's pkg/proofgraph/graph.go
// node/edge shape and pkg/governance/corroborator.go's pairwise-validation
// style, implementing spec.md §4.6's mismatch-count and reason-code rules
// exactly.
package inconsistency

import (
	"github.com/agenc/runtime/pkg/canonicalize"
)

// Reason codes accumulated, in order, for a disagreeing pair.
const (
	ReasonLengthMismatch   = "length_mismatch"
	ReasonValueMismatch    = "value_mismatch"
	ReasonSemanticDistance = "semantic_distance"
)

// DefaultSemanticDistanceThreshold is the default distance at/above which
// ReasonSemanticDistance is recorded.
const DefaultSemanticDistanceThreshold = 0.25

// CandidateView is the subset of a candidate the detector needs.
type CandidateView struct {
	ID     string
	Output []canonicalize.U256
}

// Disagreement is one pair found to disagree.
type Disagreement struct {
	CandidateA        string
	CandidateB        string
	SemanticDistance  float64
	Reasons           []string
	ProvenanceEdgeIDs []string
}

// Config tunes detection thresholds.
type Config struct {
	SemanticDistanceThreshold float64
}

// DefaultConfig returns the documented default threshold.
func DefaultConfig() Config {
	return Config{SemanticDistanceThreshold: DefaultSemanticDistanceThreshold}
}

// Result is the full output of Detect.
type Result struct {
	TotalPairs         int
	TotalDisagreements int
	DisagreementRate   float64
	Disagreements      []Disagreement
	ProvenanceLinks    []string
}

// Detect compares every unordered pair in candidates, for the task
// identified by taskID, and optionally records disagreements into graph.
func Detect(taskID string, candidates []CandidateView, cfg Config, graph *ProvenanceGraph) Result {
	threshold := cfg.SemanticDistanceThreshold
	if threshold == 0 {
		threshold = DefaultSemanticDistanceThreshold
	}

	if graph != nil {
		for _, c := range candidates {
			graph.UpsertNode(CandidateNodeID(taskID, c.ID))
		}
	}

	var disagreements []Disagreement
	var provenanceLinks []string
	totalPairs := 0

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			totalPairs++
			left, right := candidates[i], candidates[j]

			mismatchCount, lenDiffers := countMismatches(left.Output, right.Output)
			maxLen := len(left.Output)
			if len(right.Output) > maxLen {
				maxLen = len(right.Output)
			}

			var distance float64
			if maxLen > 0 {
				distance = float64(mismatchCount) / float64(maxLen)
			}

			var reasons []string
			if lenDiffers {
				reasons = append(reasons, ReasonLengthMismatch)
			}
			if mismatchCount > 0 {
				reasons = append(reasons, ReasonValueMismatch)
			}
			if distance >= threshold {
				reasons = append(reasons, ReasonSemanticDistance)
			}

			if len(reasons) == 0 {
				continue
			}

			var edgeIDs []string
			if graph != nil {
				fromID := CandidateNodeID(taskID, left.ID)
				toID := CandidateNodeID(taskID, right.ID)
				edgeID := graph.AddContradictsEdge(fromID, toID)
				edgeIDs = []string{edgeID}
				provenanceLinks = append(provenanceLinks, edgeID)
			}

			disagreements = append(disagreements, Disagreement{
				CandidateA:        left.ID,
				CandidateB:        right.ID,
				SemanticDistance:  distance,
				Reasons:           reasons,
				ProvenanceEdgeIDs: edgeIDs,
			})
		}
	}

	var rate float64
	if totalPairs > 0 {
		rate = float64(len(disagreements)) / float64(totalPairs)
	}

	return Result{
		TotalPairs:         totalPairs,
		TotalDisagreements: len(disagreements),
		DisagreementRate:   rate,
		Disagreements:      disagreements,
		ProvenanceLinks:    provenanceLinks,
	}
}

func countMismatches(left, right []canonicalize.U256) (int, bool) {
	lenDiff := len(left) - len(right)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}

	minLen := len(left)
	if len(right) < minLen {
		minLen = len(right)
	}

	mismatches := lenDiff
	for i := 0; i < minLen; i++ {
		if !left[i].Equal(right[i]) {
			mismatches++
		}
	}

	return mismatches, len(left) != len(right)
}
