// Package verifybudget turns a risk tier and guardrail configuration into a
// concrete verification budget (max retries, max duration, minimum
// confidence) for the verifier lane to enforce. Grounded on the teacher's
// pkg/budget/enforcer.go fail-closed Check/Decision shape and its
// tier-keyed override pattern, adapted to spec.md §4.4's three-dimension
// allocator with hard-cap clamping and adaptive histograms.
package verifybudget

import (
	"github.com/agenc/runtime/pkg/metrics"
	"github.com/agenc/runtime/pkg/risk"
)

// Budget is the allocator's output: the triple the verifier lane enforces.
type Budget struct {
	MaxRetries    int
	MaxDurationMs int64
	MinConfidence float64
}

// TierOverride holds the per-tier values that, when set, take priority over
// the plain (tier-agnostic) setting. Nil means "use the plain setting".
type TierOverride struct {
	MaxRetries    *int
	MaxDurationMs *int64
	MinConfidence *float64
}

// Guardrails are hard caps no allocated budget may exceed, regardless of
// tier overrides.
type Guardrails struct {
	HardMaxVerificationRetries      int
	HardMaxVerificationDurationMs   int64
	HardMaxVerificationCostLamports uint64
}

// Config bundles the plain (fallback) budget, per-tier overrides, and hard
// caps the allocator consults.
type Config struct {
	Plain      Budget
	PerTier    map[risk.Tier]TierOverride
	Guardrails Guardrails
}

// Allocate resolves tier + cfg into a Budget, clamped to cfg.Guardrails, and
// records adaptive histograms against provider (spec.md §4.4's
// agenc.verifier.adaptive.{risk_score,max_retries,max_duration_ms} series).
func Allocate(tier risk.Tier, riskScore float64, cfg Config, provider metrics.Provider) Budget {
	override := cfg.PerTier[tier]

	maxRetries := cfg.Plain.MaxRetries
	if override.MaxRetries != nil {
		maxRetries = *override.MaxRetries
	}
	if cfg.Guardrails.HardMaxVerificationRetries > 0 && maxRetries > cfg.Guardrails.HardMaxVerificationRetries {
		maxRetries = cfg.Guardrails.HardMaxVerificationRetries
	}

	maxDurationMs := cfg.Plain.MaxDurationMs
	if override.MaxDurationMs != nil {
		maxDurationMs = *override.MaxDurationMs
	}
	if cfg.Guardrails.HardMaxVerificationDurationMs > 0 && maxDurationMs > cfg.Guardrails.HardMaxVerificationDurationMs {
		maxDurationMs = cfg.Guardrails.HardMaxVerificationDurationMs
	}

	minConfidence := cfg.Plain.MinConfidence
	if override.MinConfidence != nil {
		minConfidence = *override.MinConfidence
	}

	budget := Budget{
		MaxRetries:    maxRetries,
		MaxDurationMs: maxDurationMs,
		MinConfidence: minConfidence,
	}

	if provider != nil {
		labels := metrics.MustLabel("tier", string(tier))
		provider.Histogram("agenc.verifier.adaptive.risk_score", riskScore, labels)
		provider.Histogram("agenc.verifier.adaptive.max_retries", float64(budget.MaxRetries), labels)
		provider.Histogram("agenc.verifier.adaptive.max_duration_ms", float64(budget.MaxDurationMs), labels)
	}

	return budget
}
