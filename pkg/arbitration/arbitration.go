// Package arbitration selects a winning candidate from a generated set, or
// escalates when disagreement is too high to trust a selection. Grounded
// on the teacher's pkg/trust/leaderboard.go weighted-score-with-stable-rank
// pattern, generalized to spec.md §4.7's four-feature weighted score,
// FNV1a deterministic tie-break, and escalate-before-select rule.
package arbitration

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/agenc/runtime/pkg/candidate"
	"github.com/agenc/runtime/pkg/inconsistency"
)

// CountPerCandidate tallies how many disagreements each candidate id
// appears in, the shape Arbitrate's consistency feature consumes.
func CountPerCandidate(disagreements []inconsistency.Disagreement) map[string]int {
	counts := make(map[string]int)
	for _, d := range disagreements {
		counts[d.CandidateA]++
		counts[d.CandidateB]++
	}
	return counts
}

// Weights controls each feature's contribution to a candidate's score.
type Weights struct {
	Consistency float64
	Diversity   float64
	Confidence  float64
	Recency     float64
}

// DefaultWeights returns the documented defaults.
func DefaultWeights() Weights {
	return Weights{Consistency: 0.55, Diversity: 0.2, Confidence: 0.2, Recency: 0.05}
}

// EscalationThresholds controls when arbitration refuses to pick a winner.
type EscalationThresholds struct {
	MaxPairwiseDisagreements int
	MaxDisagreementRate      float64
}

// Config bundles weights, thresholds, and the seed used for tie-breaking.
type Config struct {
	Weights    Weights
	Thresholds EscalationThresholds
	Seed       string
}

// ConfidenceLookup resolves an external confidence signal for a candidate;
// callers without one may pass nil, in which case 0.5 is used throughout.
type ConfidenceLookup func(candidateID string) (float64, bool)

// RankedCandidate is one candidate with its computed score and features.
type RankedCandidate struct {
	CandidateID string
	Score       float64
	Consistency float64
	Diversity   float64
	Confidence  float64
	Recency     float64
}

// Reason codes for Escalate decisions.
const (
	ReasonNoCandidates          = "no_candidates"
	ReasonDisagreementThreshold = "disagreement_threshold"
)

// Decision is the discriminated union result of Arbitrate.
type Decision struct {
	Selected *RankedCandidate // non-nil iff Escalated == ""
	Escalated string          // reason code, empty string means selection was made
	Ranking  []RankedCandidate
}

// Arbitrate scores and ranks candidates, escalating instead of selecting if
// disagreement exceeds the configured thresholds (spec.md §4.7).
func Arbitrate(
	candidates []candidate.Candidate,
	disagreementsPerCandidate map[string]int,
	totalDisagreements int,
	totalPairs int,
	confidenceOf ConfidenceLookup,
	cfg Config,
) Decision {
	if len(candidates) == 0 {
		return Decision{Escalated: ReasonNoCandidates}
	}

	var disagreementRate float64
	if totalPairs > 0 {
		disagreementRate = float64(totalDisagreements) / float64(totalPairs)
	}

	weights := normalizeWeights(cfg.Weights)

	n := len(candidates)
	ranking := make([]RankedCandidate, 0, n)
	for _, c := range candidates {
		disagreeCount := disagreementsPerCandidate[c.ID]

		var consistency float64 = 1
		if n > 1 {
			consistency = 1 - float64(disagreeCount)/float64(n-1)
		}

		diversity := c.NoveltyScore

		confidence := 0.5
		if confidenceOf != nil {
			if v, ok := confidenceOf(c.ID); ok {
				confidence = v
			}
		}

		recency := 1.0
		if c.Attempt > 1 {
			recency = 1.0 / float64(c.Attempt)
		}

		score := consistency*weights.Consistency + diversity*weights.Diversity +
			confidence*weights.Confidence + recency*weights.Recency

		ranking = append(ranking, RankedCandidate{
			CandidateID: c.ID,
			Score:       score,
			Consistency: consistency,
			Diversity:   diversity,
			Confidence:  confidence,
			Recency:     recency,
		})
	}

	sortRanking(ranking, cfg.Seed)

	maxPairwise := float64(cfg.Thresholds.MaxPairwiseDisagreements)
	if cfg.Thresholds.MaxPairwiseDisagreements > 0 && float64(totalDisagreements) >= math.Floor(maxPairwise) {
		return Decision{Escalated: ReasonDisagreementThreshold, Ranking: ranking}
	}
	if cfg.Thresholds.MaxDisagreementRate > 0 && disagreementRate >= cfg.Thresholds.MaxDisagreementRate {
		return Decision{Escalated: ReasonDisagreementThreshold, Ranking: ranking}
	}

	winner := ranking[0]
	return Decision{Selected: &winner, Ranking: ranking}
}

func normalizeWeights(w Weights) Weights {
	total := w.Consistency + w.Diversity + w.Confidence + w.Recency
	if total <= 0 {
		return Weights{Consistency: 1}
	}
	return Weights{
		Consistency: w.Consistency / total,
		Diversity:   w.Diversity / total,
		Confidence:  w.Confidence / total,
		Recency:     w.Recency / total,
	}
}

// sortRanking orders candidates by (1) higher score, (2) lower fnv1a-derived
// unit float of seed+candidateID, (3) candidateID lexically ascending.
func sortRanking(ranking []RankedCandidate, seed string) {
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		fi := fnv1aUnitFloat(seed + ":" + ranking[i].CandidateID)
		fj := fnv1aUnitFloat(seed + ":" + ranking[j].CandidateID)
		if fi != fj {
			return fi < fj
		}
		return ranking[i].CandidateID < ranking[j].CandidateID
	})
}

func fnv1aUnitFloat(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64()) / float64(math.MaxUint64)
}
