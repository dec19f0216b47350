package arbitration

import (
	"testing"

	"github.com/agenc/runtime/pkg/candidate"
	"github.com/agenc/runtime/pkg/inconsistency"
	"github.com/stretchr/testify/require"
)

func TestArbitrate_NoCandidatesEscalates(t *testing.T) {
	decision := Arbitrate(nil, nil, 0, 0, nil, Config{Weights: DefaultWeights()})
	require.Equal(t, ReasonNoCandidates, decision.Escalated)
	require.Nil(t, decision.Selected)
}

func TestArbitrate_SingleCandidateSelected(t *testing.T) {
	candidates := []candidate.Candidate{{ID: "cand-1", Attempt: 1, NoveltyScore: 1}}
	decision := Arbitrate(candidates, nil, 0, 0, nil, Config{Weights: DefaultWeights()})
	require.Empty(t, decision.Escalated)
	require.Equal(t, "cand-1", decision.Selected.CandidateID)
	require.Equal(t, float64(1), decision.Selected.Consistency)
}

func TestArbitrate_EscalatesOnPairwiseThreshold(t *testing.T) {
	candidates := []candidate.Candidate{
		{ID: "cand-1", Attempt: 1},
		{ID: "cand-2", Attempt: 2},
	}
	cfg := Config{Weights: DefaultWeights(), Thresholds: EscalationThresholds{MaxPairwiseDisagreements: 1}}
	decision := Arbitrate(candidates, map[string]int{"cand-1": 1, "cand-2": 1}, 1, 1, nil, cfg)
	require.Equal(t, ReasonDisagreementThreshold, decision.Escalated)
}

func TestArbitrate_EscalatesOnDisagreementRate(t *testing.T) {
	candidates := []candidate.Candidate{
		{ID: "cand-1", Attempt: 1},
		{ID: "cand-2", Attempt: 2},
		{ID: "cand-3", Attempt: 3},
	}
	cfg := Config{Weights: DefaultWeights(), Thresholds: EscalationThresholds{MaxDisagreementRate: 0.5}}
	decision := Arbitrate(candidates, map[string]int{"cand-1": 1, "cand-2": 1}, 2, 3, nil, cfg)
	require.Equal(t, ReasonDisagreementThreshold, decision.Escalated)
}

func TestArbitrate_HigherScoreWins(t *testing.T) {
	candidates := []candidate.Candidate{
		{ID: "cand-1", Attempt: 1, NoveltyScore: 0.1},
		{ID: "cand-2", Attempt: 1, NoveltyScore: 0.9},
	}
	confidence := func(id string) (float64, bool) { return 0.5, true }
	decision := Arbitrate(candidates, nil, 0, 1, confidence, Config{Weights: DefaultWeights()})
	require.Equal(t, "cand-2", decision.Selected.CandidateID)
}

func TestArbitrate_TieBreakIsDeterministicAcrossRuns(t *testing.T) {
	candidates := []candidate.Candidate{
		{ID: "cand-1", Attempt: 1, NoveltyScore: 0.5},
		{ID: "cand-2", Attempt: 1, NoveltyScore: 0.5},
	}
	cfg := Config{Weights: DefaultWeights(), Seed: "seed-x"}

	d1 := Arbitrate(candidates, nil, 0, 1, nil, cfg)
	d2 := Arbitrate(candidates, nil, 0, 1, nil, cfg)
	require.Equal(t, d1.Selected.CandidateID, d2.Selected.CandidateID)
}

func TestArbitrate_RecencyFavorsEarlierAttempt(t *testing.T) {
	candidates := []candidate.Candidate{
		{ID: "cand-1", Attempt: 1, NoveltyScore: 0.5},
		{ID: "cand-2", Attempt: 5, NoveltyScore: 0.5},
	}
	cfg := Config{Weights: Weights{Recency: 1}}
	decision := Arbitrate(candidates, nil, 0, 1, nil, cfg)
	require.Equal(t, "cand-1", decision.Selected.CandidateID)
}

func TestNormalizeWeights_ZeroTotalFallsBackToConsistency(t *testing.T) {
	w := normalizeWeights(Weights{})
	require.Equal(t, Weights{Consistency: 1}, w)
}

func TestCountPerCandidate_TalliesBothSides(t *testing.T) {
	disagreements := []inconsistency.Disagreement{
		{CandidateA: "cand-1", CandidateB: "cand-2"},
		{CandidateA: "cand-1", CandidateB: "cand-3"},
	}
	counts := CountPerCandidate(disagreements)
	require.Equal(t, 2, counts["cand-1"])
	require.Equal(t, 1, counts["cand-2"])
	require.Equal(t, 1, counts["cand-3"])
}
