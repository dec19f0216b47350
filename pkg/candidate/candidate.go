// Package candidate produces a bounded, deterministic sequence of candidate
// outputs for a task by repeatedly invoking an external executor
// collaborator. Grounded on the teacher's pkg/kernel.DeterministicPRNG for
// reproducible per-attempt seeding and pkg/executor's single-attempt
// Execute contract, generalized to spec.md §4.5's sequential bounded-cost
// generator with Jaccard-style novelty scoring.
package candidate

import (
	"context"
	"fmt"

	"github.com/agenc/runtime/pkg/canonicalize"
)

// Executor is the external collaborator that produces one candidate
// output per attempt. Implementations must be deterministic given the
// same (taskID, attempt, seed) to satisfy the generator's idempotence
// requirement.
type Executor interface {
	Execute(ctx context.Context, taskID string, attempt int, seed uint64) (output []canonicalize.U256, costLamports uint64, err error)
}

// PolicyBudget bounds how many candidates may be generated and how much
// cumulative execution cost may be spent doing so.
type PolicyBudget struct {
	MaxCandidates            int
	MaxExecutionCostLamports uint64
}

// Config holds generator-local tunables.
type Config struct {
	MaxCandidates int
}

// Candidate is one generated attempt.
type Candidate struct {
	ID             string
	Attempt        int
	Output         []canonicalize.U256
	Fingerprint    string
	NoveltyScore   float64
	TokenEstimate  uint64
	CumulativeCost uint64
}

// Generate produces at most min(policyBudget.MaxCandidates, cfg.MaxCandidates)
// candidates for taskID, stopping early if cumulative cost would exceed
// policyBudget.MaxExecutionCostLamports. Invocations of executor are
// strictly sequential (spec.md §4.5).
func Generate(ctx context.Context, taskID string, seed []byte, cfg Config, policyBudget PolicyBudget, executor Executor) ([]Candidate, error) {
	limit := cfg.MaxCandidates
	if policyBudget.MaxCandidates > 0 && policyBudget.MaxCandidates < limit {
		limit = policyBudget.MaxCandidates
	}
	if limit <= 0 {
		return nil, nil
	}

	prng := newSeededPRNG(seed)

	candidates := make([]Candidate, 0, limit)
	var cumulativeCost uint64

	for attempt := 1; attempt <= limit; attempt++ {
		attemptSeed := prng.next()

		output, cost, err := executor.Execute(ctx, taskID, attempt, attemptSeed)
		if err != nil {
			return candidates, fmt.Errorf("candidate: execute attempt %d: %w", attempt, err)
		}

		projectedCost := cumulativeCost + cost
		if policyBudget.MaxExecutionCostLamports > 0 && projectedCost > policyBudget.MaxExecutionCostLamports {
			break
		}
		cumulativeCost = projectedCost

		fingerprint, err := fingerprintOf(taskID, output)
		if err != nil {
			return candidates, fmt.Errorf("candidate: fingerprint attempt %d: %w", attempt, err)
		}

		novelty := noveltyScore(output, candidates)

		candidates = append(candidates, Candidate{
			ID:             fmt.Sprintf("cand-%d", attempt),
			Attempt:        attempt,
			Output:         output,
			Fingerprint:    fingerprint,
			NoveltyScore:   novelty,
			TokenEstimate:  uint64(len(output)),
			CumulativeCost: cumulativeCost,
		})
	}

	return candidates, nil
}

func fingerprintOf(taskID string, output []canonicalize.U256) (string, error) {
	return canonicalize.SHA256Hex(map[string]interface{}{
		"taskId": taskID,
		"output": output,
	})
}

// noveltyScore computes a Jaccard-style distance between output and the
// nearest (most similar) previously-generated candidate's output, treating
// each output as a set of decimal-string field elements. With no prior
// candidates, novelty is maximal (1).
func noveltyScore(output []canonicalize.U256, prior []Candidate) float64 {
	if len(prior) == 0 {
		return 1
	}

	set := toSet(output)

	maxSimilarity := 0.0
	for _, p := range prior {
		similarity := jaccardSimilarity(set, toSet(p.Output))
		if similarity > maxSimilarity {
			maxSimilarity = similarity
		}
	}

	return 1 - maxSimilarity
}

func toSet(output []canonicalize.U256) map[string]struct{} {
	set := make(map[string]struct{}, len(output))
	for _, v := range output {
		set[v.String()] = struct{}{}
	}
	return set
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
