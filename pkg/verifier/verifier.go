// Package verifier orchestrates the execute → verify → revise loop over
// the risk scorer, budget allocator, candidate generator, inconsistency
// detector, arbitration, and escalation graph. Grounded on the teacher's
// pkg/conform/engine.go deterministic gate-loop pattern (registered steps
// run in order, each result folded into a running report) and
// pkg/executor's single-attempt Execute contract for the external
// collaborator shape, generalized into the verifier lane's full state
// machine.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/agenc/runtime/pkg/arbitration"
	"github.com/agenc/runtime/pkg/candidate"
	"github.com/agenc/runtime/pkg/canonicalize"
	"github.com/agenc/runtime/pkg/escalation"
	"github.com/agenc/runtime/pkg/inconsistency"
	"github.com/agenc/runtime/pkg/metrics"
	"github.com/agenc/runtime/pkg/risk"
	"github.com/agenc/runtime/pkg/verifybudget"
)

// Output is a verified result: an ordered sequence of field elements, the
// same shape a Candidate's output carries.
type Output = []canonicalize.U256

// Task is the subset of task state the lane needs, wrapping risk.Task
// (the scorer's input) with the stable identifier the rest of the
// pipeline keys on.
type Task struct {
	ID string
	risk.Task
}

// Executor is the external collaborator that produces an attempt's output.
type Executor interface {
	Execute(ctx context.Context, task Task) (Output, error)
}

// Reviser is an optional capability an Executor may additionally implement;
// its presence is what the escalation graph calls "revision available".
type Reviser interface {
	Revise(ctx context.Context, previous Output, reasons []string) (Output, error)
}

// Verifier is the external collaborator that judges an attempt's output.
type Verifier interface {
	Verify(ctx context.Context, task Task, output Output) (Outcome, error)
}

// Outcome is the verifier's verdict for one attempt.
type Outcome struct {
	Verdict    escalation.Verdict
	Confidence float64
	Reasons    []string
}

// HistoryEntry records one verify call, in call order.
type HistoryEntry struct {
	Attempt    int
	Verdict    escalation.Verdict
	Confidence float64
	Reasons    []string
	DurationMs int64
}

// Result is the successful (non-escalated) outcome of Execute.
type Result struct {
	Passed       bool
	Output       Output
	Attempts     int
	Revisions    int
	History      []HistoryEntry
	AdaptiveRisk *risk.Result
}

// EscalationError is returned when the lane reaches terminal-escalate.
type EscalationError struct {
	Reason    string
	Attempts  int
	Revisions int
	History   []HistoryEntry
	Details   map[string]interface{}
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("verifier lane escalated: %s (attempts=%d, revisions=%d)", e.Reason, e.Attempts, e.Revisions)
}

// Config bundles every tunable the lane consults across a call.
type Config struct {
	Enabled              bool
	TaskTypeOverrides    map[risk.TaskType]bool
	AdaptiveMode         bool
	MinRiskScoreToVerify float64
	FailOnVerifierError  bool // default true
	ReExecuteAllowed     bool // default true

	RiskConfig               risk.Config
	BudgetConfig             verifybudget.Config
	MaxPairwiseDisagreements int
	MaxDisagreementRate      float64

	MultiCandidateEnabled bool
	CandidateExecutor     candidate.Executor
	CandidateConfig       candidate.Config
	CandidatePolicyBudget candidate.PolicyBudget
	InconsistencyConfig   inconsistency.Config
	ArbitrationConfig     arbitration.Config
	ConfidenceLookup      arbitration.ConfidenceLookup
	Seed                  []byte
}

// Lane is the orchestrator. Construct one per process; Execute holds no
// mutable state outside its local call stack, so a single Lane may be
// shared across concurrently-running tasks.
type Lane struct {
	Config   Config
	Executor Executor
	Verifier Verifier
	Metrics  metrics.Provider
	Now      func() time.Time
}

// NewLane builds a Lane with a real wall clock.
func NewLane(cfg Config, executor Executor, verifier Verifier, provider metrics.Provider) *Lane {
	if provider == nil {
		provider = metrics.NoopProvider{}
	}
	return &Lane{Config: cfg, Executor: executor, Verifier: verifier, Metrics: provider, Now: time.Now}
}

func (l *Lane) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func shouldVerify(task Task, cfg Config) bool {
	if override, ok := cfg.TaskTypeOverrides[task.Type]; ok {
		return override
	}
	return cfg.Enabled
}

// Execute runs the full adaptive verification loop for task. On
// terminal-escalate it returns a non-nil *EscalationError.
func (l *Lane) Execute(ctx context.Context, task Task, riskCtx risk.Context) (*Result, error) {
	if !shouldVerify(task, l.Config) {
		output, err := l.Executor.Execute(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("verifier: bypass execute: %w", err)
		}
		return &Result{Passed: true, Output: output, Attempts: 0}, nil
	}

	riskResult := risk.Score(task.Task, riskCtx, l.Config.RiskConfig)
	if l.Config.AdaptiveMode && riskResult.Score < l.Config.MinRiskScoreToVerify {
		output, err := l.Executor.Execute(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("verifier: below-threshold execute: %w", err)
		}
		return &Result{Passed: true, Output: output, Attempts: 0, AdaptiveRisk: &riskResult}, nil
	}

	budget := verifybudget.Allocate(riskResult.Tier, riskResult.Score, l.Config.BudgetConfig, l.Metrics)

	state := &loopState{
		start:               l.now(),
		failOnVerifierError: l.Config.FailOnVerifierError,
		reExecuteAllowed:    l.Config.ReExecuteAllowed,
	}

	for attempt := 1; attempt <= budget.MaxRetries+1; attempt++ {
		elapsed := l.now().Sub(state.start).Milliseconds()
		if elapsed > budget.MaxDurationMs {
			return nil, state.escalate(escalation.ReasonBudgetExhausted, attempt-1)
		}

		output, totalDisagreements, escalateReason, err := l.produceOutput(ctx, task, attempt)
		if err != nil {
			return nil, fmt.Errorf("verifier: produce output attempt %d: %w", attempt, err)
		}
		if escalateReason != "" {
			return nil, state.escalate(escalateReason, attempt-1)
		}

		passedOutput, done, err := l.verifyAndRevise(ctx, task, output, attempt, budget, totalDisagreements, state)
		if err != nil {
			return nil, err
		}
		if done {
			return &Result{Passed: true, Output: passedOutput, Attempts: attempt, Revisions: state.revisions, History: state.history, AdaptiveRisk: &riskResult}, nil
		}
		// state == retry: fall through to the next attempt.
	}

	return nil, state.escalate(escalation.ReasonRetriesExhausted, budget.MaxRetries+1)
}

// loopState carries the mutable bookkeeping threaded through one Execute
// call: accumulated history, revision count, and the wall-clock start used
// to compute each verify call's cooperative timeout.
type loopState struct {
	start               time.Time
	history             []HistoryEntry
	revisions           int
	failOnVerifierError bool
	reExecuteAllowed    bool
}

func (s *loopState) escalate(reason string, attempts int) *EscalationError {
	return &EscalationError{Reason: reason, Attempts: attempts, Revisions: s.revisions, History: s.history}
}

// verifyAndRevise runs the inner verify/revise subloop for one attempt's
// output. It returns (output, true, nil) on terminal-pass, (nil, false,
// nil) when the escalation graph says retry (a new attempt is needed), or
// a non-nil error — which is always an *EscalationError — otherwise.
func (l *Lane) verifyAndRevise(
	ctx context.Context,
	task Task,
	output Output,
	attempt int,
	budget verifybudget.Budget,
	totalDisagreements int,
	state *loopState,
) (Output, bool, error) {
	for {
		remainingMs := budget.MaxDurationMs - l.now().Sub(state.start).Milliseconds()
		if remainingMs < 0 {
			remainingMs = 0
		}
		verifyCtx, cancel := context.WithTimeout(ctx, time.Duration(remainingMs)*time.Millisecond)
		verifyStart := l.now()
		outcome, verr := l.Verifier.Verify(verifyCtx, task, output)
		durationMs := l.now().Sub(verifyStart).Milliseconds()
		timedOut := verifyCtx.Err() == context.DeadlineExceeded
		cancel()

		l.Metrics.Counter("agenc.verifier.checks", 1, nil)

		if timedOut {
			state.history = append(state.history, HistoryEntry{Attempt: attempt, Verdict: escalation.VerdictFail, Reasons: []string{"verifier_timeout"}, DurationMs: durationMs})
			return nil, false, state.escalate(escalation.ReasonTimeout, attempt)
		}

		if verr != nil {
			if state.failOnVerifierError {
				state.history = append(state.history, HistoryEntry{Attempt: attempt, Verdict: escalation.VerdictFail, Reasons: []string{"verifier_error"}, DurationMs: durationMs})
				err := state.escalate("verifier_error", attempt)
				err.Details = map[string]interface{}{"error": verr.Error()}
				return nil, false, err
			}
			outcome = Outcome{Verdict: escalation.VerdictFail, Reasons: []string{"verifier_error"}}
		}

		state.history = append(state.history, HistoryEntry{
			Attempt: attempt, Verdict: outcome.Verdict, Confidence: outcome.Confidence,
			Reasons: outcome.Reasons, DurationMs: durationMs,
		})
		recordVerdictMetric(l.Metrics, outcome.Verdict)

		attemptsExhausted := attempt >= budget.MaxRetries+1
		_, canRevise := l.Executor.(Reviser)

		transitionState, reason := escalation.Transition(escalation.Input{
			Verdict:           outcome.Verdict,
			DisagreementCount: totalDisagreements,
			MaxDisagreements:  l.Config.MaxPairwiseDisagreements,
			AttemptsExhausted: attemptsExhausted,
			RevisionAvailable: canRevise,
			ReExecuteAllowed:  state.reExecuteAllowed,
		})

		switch transitionState {
		case escalation.StatePass:
			return output, true, nil
		case escalation.StateRevise:
			reviser := l.Executor.(Reviser)
			revised, rerr := reviser.Revise(ctx, output, outcome.Reasons)
			if rerr != nil {
				return nil, false, fmt.Errorf("verifier: revise attempt %d: %w", attempt, rerr)
			}
			output = revised
			state.revisions++
			l.Metrics.Counter("agenc.verifier.revisions", 1, nil)
			continue
		case escalation.StateRetry:
			return nil, false, nil
		default: // escalation.StateEscalate
			return nil, false, state.escalate(reason, attempt)
		}
	}
}

// produceOutput runs step (a) of the loop: either direct executor
// invocation or the full candidate-generate/detect/arbitrate pipeline.
func (l *Lane) produceOutput(ctx context.Context, task Task, attempt int) (Output, int, string, error) {
	if !l.Config.MultiCandidateEnabled {
		output, err := l.Executor.Execute(ctx, task)
		return output, 0, "", err
	}

	candidates, err := candidate.Generate(ctx, task.ID, l.Config.Seed, l.Config.CandidateConfig, l.Config.CandidatePolicyBudget, l.Config.CandidateExecutor)
	if err != nil {
		return nil, 0, "", err
	}

	views := make([]inconsistency.CandidateView, len(candidates))
	for i, c := range candidates {
		views[i] = inconsistency.CandidateView{ID: c.ID, Output: c.Output}
	}
	detection := inconsistency.Detect(task.ID, views, l.Config.InconsistencyConfig, nil)
	if detection.TotalDisagreements > 0 {
		l.Metrics.Counter("agenc.verifier.disagreements", float64(detection.TotalDisagreements), nil)
	}

	arbCfg := l.Config.ArbitrationConfig
	arbCfg.Thresholds = arbitration.EscalationThresholds{
		MaxPairwiseDisagreements: l.Config.MaxPairwiseDisagreements,
		MaxDisagreementRate:      l.Config.MaxDisagreementRate,
	}
	arbCfg.Seed = fmt.Sprintf("%x:%d", l.Config.Seed, attempt)

	decision := arbitration.Arbitrate(candidates, arbitration.CountPerCandidate(detection.Disagreements), detection.TotalDisagreements, detection.TotalPairs, l.Config.ConfidenceLookup, arbCfg)
	if decision.Escalated != "" {
		return nil, detection.TotalDisagreements, decision.Escalated, nil
	}

	for _, c := range candidates {
		if c.ID == decision.Selected.CandidateID {
			return c.Output, detection.TotalDisagreements, "", nil
		}
	}
	return nil, detection.TotalDisagreements, "", fmt.Errorf("verifier: selected candidate %s not found in generated set", decision.Selected.CandidateID)
}

func recordVerdictMetric(provider metrics.Provider, verdict escalation.Verdict) {
	switch verdict {
	case escalation.VerdictPass:
		provider.Counter("agenc.verifier.passes", 1, nil)
	case escalation.VerdictFail:
		provider.Counter("agenc.verifier.fails", 1, nil)
	case escalation.VerdictNeedsRevision:
		provider.Counter("agenc.verifier.needsRevision", 1, nil)
	}
}
