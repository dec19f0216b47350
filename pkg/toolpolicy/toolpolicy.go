// Package toolpolicy evaluates an ordered allow/deny rule table against
// one tool invocation, with optional per-tool rate limiting on the
// winning rule. Grounded on the teacher's
// pkg/receipts/policies/enforcer.go PolicyEnforcer: a rule-table lookup
// with a strict-mode-aware default and conditions checked before an
// effect is allowed to proceed, generalized from an effect-type keyed
// map to an ordered, glob-matched rule list with a first-match-wins
// short-circuit on deny.
package toolpolicy

import (
	"sync"
	"time"

	"github.com/agenc/runtime/pkg/globmatch"
)

// Effect a rule assigns to a matching invocation.
const (
	Allow = "allow"
	Deny  = "deny"
)

// Conditions are ANDed together; a zero-value field is not enforced
// (e.g. an empty SessionIDs list does not restrict by session).
type Conditions struct {
	HeartbeatOnly      bool
	SessionIDs         []string
	Channels           []string
	SandboxOnly        bool
	HasRateLimit       bool
	RateLimitPerMinute int
}

// Rule is one row of the ordered table.
type Rule struct {
	Tool       string // glob, per pkg/globmatch
	Effect     string
	Conditions Conditions
}

// Context is one tool-invocation request to evaluate.
type Context struct {
	Tool      string
	Heartbeat bool
	SessionID string
	Channel   string
	Sandbox   bool
}

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed     bool
	Reason      string
	MatchedTool string
}

// RateLimiter is the sliding-window counter backing rate-limited rules.
// Allow reports whether one more invocation against key is permitted
// within limitPerMinute, counting this call if it is. The default
// Evaluator keeps this in process memory; a multi-replica deployment
// swaps in a shared backend (e.g. pkg/redislimiter) via WithRateLimiter
// so the limit holds across processes.
type RateLimiter interface {
	Allow(key string, limitPerMinute int) (bool, error)
	Reset()
}

// Evaluator holds the rule table and the rate limiter the winning allow
// rule (if any) consults.
type Evaluator struct {
	mu      sync.Mutex
	rules   []Rule
	limiter RateLimiter
}

// NewEvaluator constructs an Evaluator over rules, evaluated in the
// given order, backed by an in-process sliding-window rate limiter.
func NewEvaluator(rules []Rule) *Evaluator {
	return &Evaluator{
		rules:   rules,
		limiter: newMemoryLimiter(),
	}
}

// WithClock overrides the default in-memory limiter's clock, for
// deterministic tests. A no-op once WithRateLimiter has installed a
// different backend.
func (e *Evaluator) WithClock(fn func() int64) *Evaluator {
	if m, ok := e.limiter.(*memoryLimiter); ok {
		m.nowFn = fn
	}
	return e
}

// WithRateLimiter swaps in a different RateLimiter backend, e.g. one
// shared across replicas.
func (e *Evaluator) WithRateLimiter(rl RateLimiter) *Evaluator {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiter = rl
	return e
}

// Reload hot-swaps the rule table and clears every rate-limit counter,
// per the documented hot-reload semantics.
func (e *Evaluator) Reload(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.limiter.Reset()
}

// Evaluate walks the rule table once: a matched deny whose conditions
// are satisfied short-circuits immediately; otherwise the first matched,
// condition-satisfying allow becomes the candidate. A candidate carrying
// a rate-limit condition is then checked against its own sliding
// 60-second window. No matching rule, or no candidate surviving the rate
// check, is a default deny.
func (e *Evaluator) Evaluate(ctx Context) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	var candidate *Rule
	for i := range e.rules {
		rule := e.rules[i]
		if !globmatch.Match(rule.Tool, ctx.Tool) {
			continue
		}
		if !conditionsSatisfied(rule.Conditions, ctx) {
			continue
		}
		if rule.Effect == Deny {
			return Decision{Allowed: false, Reason: "denied by rule " + rule.Tool, MatchedTool: rule.Tool}
		}
		if rule.Effect == Allow && candidate == nil {
			candidate = &e.rules[i]
		}
	}

	if candidate == nil {
		return Decision{Allowed: false, Reason: "default deny: no matching allow rule"}
	}

	if candidate.Conditions.HasRateLimit {
		allowed, err := e.limiter.Allow(candidate.Tool, candidate.Conditions.RateLimitPerMinute)
		if err != nil || !allowed {
			reason := "rate limit exceeded for " + candidate.Tool
			if err != nil {
				reason = "rate limiter error, failing closed: " + err.Error()
			}
			return Decision{Allowed: false, Reason: reason, MatchedTool: candidate.Tool}
		}
	}

	return Decision{Allowed: true, Reason: "allowed by rule " + candidate.Tool, MatchedTool: candidate.Tool}
}

// memoryLimiter is the default in-process RateLimiter: a sliding
// 60-second window of call timestamps per key.
type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]int64
	nowFn   func() int64
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{windows: make(map[string][]int64), nowFn: func() int64 { return time.Now().UnixMilli() }}
}

func (m *memoryLimiter) Allow(key string, limitPerMinute int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	window := pruneOlderThan(m.windows[key], now-60_000)
	if len(window) >= limitPerMinute {
		m.windows[key] = window
		return false, nil
	}
	m.windows[key] = append(window, now)
	return true, nil
}

func (m *memoryLimiter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = make(map[string][]int64)
}

func conditionsSatisfied(c Conditions, ctx Context) bool {
	if c.HeartbeatOnly && !ctx.Heartbeat {
		return false
	}
	if len(c.SessionIDs) > 0 && !contains(c.SessionIDs, ctx.SessionID) {
		return false
	}
	if len(c.Channels) > 0 && !contains(c.Channels, ctx.Channel) {
		return false
	}
	if c.SandboxOnly && !ctx.Sandbox {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func pruneOlderThan(timestamps []int64, cutoff int64) []int64 {
	out := timestamps[:0:0]
	for _, ts := range timestamps {
		if ts >= cutoff {
			out = append(out, ts)
		}
	}
	return out
}
