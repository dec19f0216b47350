package inconsistency

import (
	"testing"

	"github.com/agenc/runtime/pkg/canonicalize"
	"github.com/stretchr/testify/require"
)

func u(vs ...uint64) []canonicalize.U256 {
	out := make([]canonicalize.U256, len(vs))
	for i, v := range vs {
		out[i] = canonicalize.NewU256FromUint64(v)
	}
	return out
}

func TestDetect_IdenticalCandidatesNoDisagreement(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1, 2, 3)},
		{ID: "cand-2", Output: u(1, 2, 3)},
	}

	result := Detect("task-1", candidates, DefaultConfig(), nil)
	require.Equal(t, 1, result.TotalPairs)
	require.Equal(t, 0, result.TotalDisagreements)
	require.Equal(t, float64(0), result.DisagreementRate)
}

func TestDetect_LengthMismatchReasonRecorded(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1, 2, 3)},
		{ID: "cand-2", Output: u(1, 2)},
	}

	result := Detect("task-1", candidates, DefaultConfig(), nil)
	require.Len(t, result.Disagreements, 1)
	require.Contains(t, result.Disagreements[0].Reasons, ReasonLengthMismatch)
	require.Contains(t, result.Disagreements[0].Reasons, ReasonValueMismatch)
}

func TestDetect_ValueMismatchOnly(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1, 2, 3, 4)},
		{ID: "cand-2", Output: u(1, 9, 3, 4)},
	}

	result := Detect("task-1", candidates, DefaultConfig(), nil)
	require.Len(t, result.Disagreements, 1)
	d := result.Disagreements[0]
	require.NotContains(t, d.Reasons, ReasonLengthMismatch)
	require.Contains(t, d.Reasons, ReasonValueMismatch)
	require.InDelta(t, 0.25, d.SemanticDistance, 1e-9)
}

func TestDetect_SemanticDistanceReasonAtThreshold(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1, 2, 3, 4)},
		{ID: "cand-2", Output: u(9, 9, 3, 4)},
	}

	cfg := Config{SemanticDistanceThreshold: 0.5}
	result := Detect("task-1", candidates, cfg, nil)
	require.Len(t, result.Disagreements, 1)
	require.Contains(t, result.Disagreements[0].Reasons, ReasonSemanticDistance)
}

func TestDetect_EmptyOutputsNoDisagreement(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: nil},
		{ID: "cand-2", Output: nil},
	}

	result := Detect("task-1", candidates, DefaultConfig(), nil)
	require.Empty(t, result.Disagreements)
}

func TestDetect_RecordsProvenanceEdges(t *testing.T) {
	graph := NewProvenanceGraph()
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1, 2)},
		{ID: "cand-2", Output: u(3, 4)},
	}

	result := Detect("task-1", candidates, DefaultConfig(), graph)
	require.Len(t, result.ProvenanceLinks, 1)
	require.Len(t, graph.Edges(), 1)
	require.Len(t, graph.Nodes(), 2)

	edge := graph.Edges()[0]
	require.Equal(t, "contradicts", edge.Kind)
	require.Equal(t, CandidateNodeID("task-1", "cand-1"), edge.From)
	require.Equal(t, CandidateNodeID("task-1", "cand-2"), edge.To)
	require.Equal(t, []string{edge.ID}, result.Disagreements[0].ProvenanceEdgeIDs)
}

func TestDetect_ThreeCandidatesAllPairsCounted(t *testing.T) {
	candidates := []CandidateView{
		{ID: "cand-1", Output: u(1)},
		{ID: "cand-2", Output: u(2)},
		{ID: "cand-3", Output: u(3)},
	}

	result := Detect("task-1", candidates, DefaultConfig(), nil)
	require.Equal(t, 3, result.TotalPairs)
	require.Equal(t, 3, result.TotalDisagreements)
	require.Equal(t, float64(1), result.DisagreementRate)
}
