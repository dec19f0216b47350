// Package risk scores a task's six-feature risk vector into a tier with
// explainable per-feature contributions, consumed by the verifier lane
// before it allocates a verification budget. Grounded on the teacher's
// pkg/budget/risk_budget.go RiskLevel/weighted-cost shape, generalized to
// the full six-feature weighted model this runtime requires.
package risk

import (
	"math"
)

// TaskType mirrors the three task kinds scored differently by default.
type TaskType string

const (
	TaskTypeExclusive     TaskType = "exclusive"
	TaskTypeCollaborative TaskType = "collaborative"
	TaskTypeCompetitive   TaskType = "competitive"
)

// Tier is the coarse risk bucket produced from a score.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Task carries the subset of task state the scorer needs.
type Task struct {
	RewardLamports  uint64
	DeadlineSeconds int64 // 0 = none
	CurrentClaims   int
	MaxWorkers      int
	Type            TaskType
}

// Context carries runtime signals external to the task itself.
type Context struct {
	NowUnixSeconds           int64
	VerifierDisagreementRate float64 // already in [0,1]
	RollbackRate             float64 // already in [0,1]
}

// Weights controls the contribution of each feature to the final score.
// Negative entries are coerced to 0 at scoring time (spec-mandated).
type Weights struct {
	Reward                float64
	Deadline              float64
	ClaimPressure         float64
	TaskType              float64
	VerifierDisagreement  float64
	Rollback              float64
}

// DefaultWeights returns the documented default weight vector.
func DefaultWeights() Weights {
	return Weights{
		Reward:               0.22,
		Deadline:             0.18,
		ClaimPressure:        0.15,
		TaskType:             0.2,
		VerifierDisagreement: 0.15,
		Rollback:             0.1,
	}
}

// TaskTypeSignals maps a task type to its intrinsic risk signal.
type TaskTypeSignals map[TaskType]float64

// DefaultTaskTypeSignals returns the documented defaults.
func DefaultTaskTypeSignals() TaskTypeSignals {
	return TaskTypeSignals{
		TaskTypeExclusive:     0.3,
		TaskTypeCollaborative: 0.5,
		TaskTypeCompetitive:   0.75,
	}
}

// Thresholds controls the score cutoffs between tiers.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds returns the documented defaults (0.5 / 0.3).
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.5, Medium: 0.3}
}

// Config bundles every tunable the scorer consults.
type Config struct {
	Weights         Weights
	TaskTypeSignals TaskTypeSignals
	Thresholds      Thresholds
}

// DefaultConfig returns a Config populated entirely from documented
// defaults.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		TaskTypeSignals: DefaultTaskTypeSignals(),
		Thresholds:      DefaultThresholds(),
	}
}

// Features holds each clamped [0,1] feature value.
type Features struct {
	Reward               float64
	Deadline             float64
	ClaimPressure        float64
	TaskType             float64
	VerifierDisagreement float64
	Rollback             float64
}

// Contributions holds each feature's value×weight contribution to the sum.
type Contributions struct {
	Reward               float64
	Deadline             float64
	ClaimPressure        float64
	TaskType             float64
	VerifierDisagreement float64
	Rollback             float64
}

// Result is the full output of Score, including the inputs used to produce
// it so a caller can render an explanation.
type Result struct {
	Score         float64
	Tier          Tier
	Features      Features
	Contributions Contributions
	Thresholds    Thresholds
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func coerceWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	return w
}

// Score computes the risk features, weighted score, and tier for task under
// ctx and cfg (spec.md §4.3, exactly).
func Score(task Task, ctx Context, cfg Config) Result {
	weights := Weights{
		Reward:               coerceWeight(cfg.Weights.Reward),
		Deadline:             coerceWeight(cfg.Weights.Deadline),
		ClaimPressure:        coerceWeight(cfg.Weights.ClaimPressure),
		TaskType:             coerceWeight(cfg.Weights.TaskType),
		VerifierDisagreement: coerceWeight(cfg.Weights.VerifierDisagreement),
		Rollback:             coerceWeight(cfg.Weights.Rollback),
	}

	features := computeFeatures(task, ctx, cfg)

	contributions := Contributions{
		Reward:               features.Reward * weights.Reward,
		Deadline:             features.Deadline * weights.Deadline,
		ClaimPressure:        features.ClaimPressure * weights.ClaimPressure,
		TaskType:             features.TaskType * weights.TaskType,
		VerifierDisagreement: features.VerifierDisagreement * weights.VerifierDisagreement,
		Rollback:             features.Rollback * weights.Rollback,
	}

	weightSum := weights.Reward + weights.Deadline + weights.ClaimPressure +
		weights.TaskType + weights.VerifierDisagreement + weights.Rollback

	var score float64
	if weightSum > 0 {
		contribSum := contributions.Reward + contributions.Deadline + contributions.ClaimPressure +
			contributions.TaskType + contributions.VerifierDisagreement + contributions.Rollback
		score = contribSum / weightSum
	}

	thresholds := cfg.Thresholds
	thresholds.High = clamp01(thresholds.High)
	thresholds.Medium = clamp01(thresholds.Medium)

	var tier Tier
	switch {
	case score >= thresholds.High:
		tier = TierHigh
	case score >= thresholds.Medium:
		tier = TierMedium
	default:
		tier = TierLow
	}

	return Result{
		Score:         score,
		Tier:          tier,
		Features:      features,
		Contributions: contributions,
		Thresholds:    thresholds,
	}
}

func computeFeatures(task Task, ctx Context, cfg Config) Features {
	reward := clamp01(math.Log10(float64(task.RewardLamports)+1) / 9)

	var deadline float64
	switch {
	case task.DeadlineSeconds == 0:
		deadline = 0
	case task.DeadlineSeconds <= ctx.NowUnixSeconds:
		deadline = 1
	default:
		remaining := float64(task.DeadlineSeconds - ctx.NowUnixSeconds)
		deadline = clamp01(1 - remaining/86400)
	}

	maxWorkers := task.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	claimPressure := clamp01(float64(task.CurrentClaims) / float64(maxWorkers))

	taskTypeSignals := cfg.TaskTypeSignals
	if taskTypeSignals == nil {
		taskTypeSignals = DefaultTaskTypeSignals()
	}
	taskTypeSignal, ok := taskTypeSignals[task.Type]
	if !ok {
		taskTypeSignal = DefaultTaskTypeSignals()[TaskTypeCollaborative]
	}

	return Features{
		Reward:               reward,
		Deadline:             deadline,
		ClaimPressure:        claimPressure,
		TaskType:             clamp01(taskTypeSignal),
		VerifierDisagreement: clamp01(ctx.VerifierDisagreementRate),
		Rollback:             clamp01(ctx.RollbackRate),
	}
}
