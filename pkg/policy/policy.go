// Package policy is the fail-closed gate every externally-observable
// action passes through before it executes: action budgets, a spend
// budget, a risk ceiling, and a circuit breaker. Grounded on the
// teacher's pkg/budget/enforcer.go SimpleEnforcer.Check — fail-closed on
// every error path, decision-plus-reason-plus-receipt shape — generalized
// from a single daily/monthly spend check to the full rule set.
package policy

import (
	"strings"
	"sync"
	"time"

	"github.com/agenc/runtime/pkg/globmatch"
)

// Mode the circuit breaker enters once its violation threshold trips.
const (
	ModeSafe     = "safe_mode" // reject everything
	ModeDegraded = "degraded"  // reject writes, allow reads
	ModeClosed   = ""          // normal operation
)

// ActionBudgetRule bounds how often actions matching Pattern may occur
// within WindowMs.
type ActionBudgetRule struct {
	Pattern  string
	WindowMs int64
	Limit    int
}

// SpendBudgetRule bounds cumulative lamports spent within WindowMs.
type SpendBudgetRule struct {
	WindowMs      int64
	LimitLamports uint64
}

// CircuitBreakerConfig controls when repeated violations trip the
// breaker and how long it stays tripped.
type CircuitBreakerConfig struct {
	ViolationThreshold int
	WindowMs           int64
	CoolOffMs          int64
	Mode               string // ModeSafe or ModeDegraded
}

// Config bundles every rule the engine enforces.
type Config struct {
	ActionBudgets  []ActionBudgetRule
	SpendBudget    *SpendBudgetRule
	MaxRiskScore   float64
	CircuitBreaker CircuitBreakerConfig
}

// Request is one proposed action evaluated against the policy.
type Request struct {
	ActionType   string
	Subkey       string
	CostLamports uint64
	RiskScore    float64
	IsWrite      bool
}

// Decision is the fail-closed verdict on a Request.
type Decision struct {
	Allowed      bool
	Reason       string
	ViolatedRule string
	BreakerMode  string
}

type spendEntry struct {
	atMs   int64
	amount uint64
}

// Engine holds the in-memory sliding-window state every rule needs.
type Engine struct {
	mu            sync.Mutex
	cfg           Config
	actionWindows map[string][]int64
	spendWindow   []spendEntry
	violations    []int64
	breakerMode   string
	nowFn         func() int64
}

// NewEngine constructs an Engine with all windows empty and the breaker
// closed.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:           cfg,
		actionWindows: make(map[string][]int64),
		nowFn:         func() int64 { return time.Now().UnixMilli() },
	}
}

// WithClock overrides the engine's clock, for deterministic tests.
func (e *Engine) WithClock(fn func() int64) *Engine {
	e.nowFn = fn
	return e
}

// Evaluate checks req against every configured rule, in documented
// precedence: circuit breaker, then risk ceiling, then action budget,
// then spend budget. The first violation denies; passing every rule
// records the action/spend and allows it.
func (e *Engine) Evaluate(req Request) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	e.recoverBreakerIfCooledOff(now)

	if e.breakerMode == ModeSafe {
		return Decision{Allowed: false, Reason: "circuit breaker in safe_mode", ViolatedRule: "circuit_breaker", BreakerMode: e.breakerMode}
	}
	if e.breakerMode == ModeDegraded && req.IsWrite {
		return Decision{Allowed: false, Reason: "circuit breaker in degraded mode rejects writes", ViolatedRule: "circuit_breaker", BreakerMode: e.breakerMode}
	}

	if req.RiskScore > e.cfg.MaxRiskScore {
		e.recordViolation(now)
		return Decision{Allowed: false, Reason: "risk score exceeds ceiling", ViolatedRule: "risk_ceiling", BreakerMode: e.breakerMode}
	}

	key := req.ActionType + ":" + req.Subkey
	if rule, ok := e.matchingActionBudget(key); ok {
		window := pruneWindow(e.actionWindows[key], now-rule.WindowMs)
		if len(window) >= rule.Limit {
			e.actionWindows[key] = window
			e.recordViolation(now)
			return Decision{Allowed: false, Reason: "action budget exceeded", ViolatedRule: "action_budget", BreakerMode: e.breakerMode}
		}
		window = append(window, now)
		e.actionWindows[key] = window
	}

	if e.cfg.SpendBudget != nil {
		e.spendWindow = pruneSpend(e.spendWindow, now-e.cfg.SpendBudget.WindowMs)
		var total uint64
		for _, s := range e.spendWindow {
			total += s.amount
		}
		if total+req.CostLamports > e.cfg.SpendBudget.LimitLamports {
			e.recordViolation(now)
			return Decision{Allowed: false, Reason: "spend budget exceeded", ViolatedRule: "spend_budget", BreakerMode: e.breakerMode}
		}
		e.spendWindow = append(e.spendWindow, spendEntry{atMs: now, amount: req.CostLamports})
	}

	return Decision{Allowed: true, Reason: "within all limits", BreakerMode: e.breakerMode}
}

// matchingActionBudget returns the first rule whose dot-segment glob
// Pattern matches key. The ":" between action type and subkey counts as a
// segment boundary on both sides, so "claim.*" and "claim:*" both match
// the bucket "claim:task1".
func (e *Engine) matchingActionBudget(key string) (ActionBudgetRule, bool) {
	segmented := strings.Replace(key, ":", ".", 1)
	for _, rule := range e.cfg.ActionBudgets {
		if globmatch.Match(strings.Replace(rule.Pattern, ":", ".", 1), segmented) {
			return rule, true
		}
	}
	return ActionBudgetRule{}, false
}

func (e *Engine) recordViolation(now int64) {
	e.violations = pruneWindow(e.violations, now-e.cfg.CircuitBreaker.WindowMs)
	e.violations = append(e.violations, now)
	if e.breakerMode == ModeClosed && len(e.violations) >= e.cfg.CircuitBreaker.ViolationThreshold && e.cfg.CircuitBreaker.ViolationThreshold > 0 {
		e.breakerMode = e.cfg.CircuitBreaker.Mode
	}
}

// recoverBreakerIfCooledOff clears the breaker once CoolOffMs has
// elapsed since the last recorded violation with zero new violations in
// between.
func (e *Engine) recoverBreakerIfCooledOff(now int64) {
	if e.breakerMode == ModeClosed {
		return
	}
	if len(e.violations) == 0 {
		e.breakerMode = ModeClosed
		return
	}
	last := e.violations[len(e.violations)-1]
	if now-last >= e.cfg.CircuitBreaker.CoolOffMs {
		e.breakerMode = ModeClosed
		e.violations = nil
	}
}

func pruneWindow(timestamps []int64, cutoff int64) []int64 {
	out := timestamps[:0:0]
	for _, ts := range timestamps {
		if ts >= cutoff {
			out = append(out, ts)
		}
	}
	return out
}

func pruneSpend(entries []spendEntry, cutoff int64) []spendEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.atMs >= cutoff {
			out = append(out, e)
		}
	}
	return out
}
