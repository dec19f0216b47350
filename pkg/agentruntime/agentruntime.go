// Package agentruntime wires one agent process: a chain client that
// emits claimed tasks, the verifier lane as the execution path, the
// replay store and backfill as the event ingestion path, and the
// policy engine and audit trail as before/after hooks on every
// externally observable action. Grounded on cmd/helm/main.go's
// runServer bootstrap (construct every subsystem, wire them together,
// serve until a shutdown signal) and pkg/kernelruntime/runtime.go's
// Runtime (policy/sovereignty checks wrapping a persistence call),
// generalized from an HTTP kernel request handler into a task-claim
// loop with no HTTP surface of its own.
package agentruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agenc/runtime/pkg/audit"
	"github.com/agenc/runtime/pkg/backfill"
	"github.com/agenc/runtime/pkg/metrics"
	"github.com/agenc/runtime/pkg/policy"
	"github.com/agenc/runtime/pkg/replaystore"
	"github.com/agenc/runtime/pkg/risk"
	"github.com/agenc/runtime/pkg/verifier"
)

// ChainClient is the external collaborator the runtime glue claims and
// completes tasks through.
type ChainClient interface {
	SubscribeTasks(ctx context.Context, onTask func(ctx context.Context, task verifier.Task) error) error
	ClaimTask(ctx context.Context, task verifier.Task) (string, error)
	CompleteTask(ctx context.Context, task verifier.Task, output verifier.Output) (string, error)
	GetSlot(ctx context.Context) (uint64, error)
}

// RetryConfig is the documented exponential backoff the runtime applies
// to chain-client calls: base 1s, factor 2, cap 30s, 3 attempts by
// default.
type RetryConfig struct {
	BaseMs      int64
	Factor      float64
	CapMs       int64
	MaxAttempts int
}

// DefaultRetryConfig returns the documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{BaseMs: 1000, Factor: 2, CapMs: 30_000, MaxAttempts: 3}
}

// Config bundles every tunable the Runtime needs beyond its injected
// collaborators.
type Config struct {
	Retry                RetryConfig
	MaxConcurrentTasks   int
	BackfillConfig       backfill.Config
	RiskContextForTask   func(verifier.Task) risk.Context
	ActorID              string // identity recorded in every audit entry this process appends
}

// Runtime is one wired agent process.
type Runtime struct {
	cfg      Config
	lane     *verifier.Lane
	chain    ChainClient
	policy   *policy.Engine
	auditLog *audit.Trail
	store    replaystore.Store
	backfill *backfill.Runner
	metrics  metrics.Provider
	nowFn    func() int64

	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New constructs a Runtime. backfillRunner may be nil when this process
// does not ingest replay events.
func New(cfg Config, lane *verifier.Lane, chain ChainClient, policyEngine *policy.Engine, trail *audit.Trail, store replaystore.Store, backfillRunner *backfill.Runner, provider metrics.Provider) *Runtime {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if provider == nil {
		provider = metrics.NoopProvider{}
	}
	return &Runtime{
		cfg:      cfg,
		lane:     lane,
		chain:    chain,
		policy:   policyEngine,
		auditLog: trail,
		store:    store,
		backfill: backfillRunner,
		metrics:  provider,
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Run subscribes to the chain client's task stream and, concurrently,
// drives the backfill ingestion loop, until ctx is cancelled or either
// loop returns an error.
func (r *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	sem := make(chan struct{}, r.cfg.MaxConcurrentTasks)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.chain.SubscribeTasks(runCtx, func(taskCtx context.Context, task verifier.Task) error {
			select {
			case sem <- struct{}{}:
			case <-taskCtx.Done():
				return taskCtx.Err()
			}
			defer func() { <-sem }()
			return r.handleTask(taskCtx, task)
		})
		if err != nil {
			errCh <- fmt.Errorf("agentruntime: task subscription ended: %w", err)
		}
	}()

	if r.backfill != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.backfill.Run(runCtx, r.cfg.BackfillConfig); err != nil && runCtx.Err() == nil {
				errCh <- fmt.Errorf("agentruntime: backfill ended: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return r.Shutdown(context.Background())
	case err := <-errCh:
		cancel()
		r.wg.Wait()
		return err
	}
}

// Shutdown waits for in-flight handlers and the backfill loop to return,
// then flushes the store. It does not cancel anything itself; work stops
// when the context passed to Run is cancelled. Only the first call does
// anything; later calls return nil.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var shutdownErr error
	r.shutdownOnce.Do(func() {
		r.wg.Wait()
		if r.store != nil {
			if err := r.store.Flush(ctx); err != nil {
				shutdownErr = fmt.Errorf("agentruntime: flush store: %w", err)
			}
		}
	})
	return shutdownErr
}

// handleTask applies the before/after policy-and-audit hooks around a
// claim, runs the verifier lane, then applies the same hooks around the
// completion call.
func (r *Runtime) handleTask(ctx context.Context, task verifier.Task) error {
	if err := r.guardedAction(ctx, "claim", task.ID, func() (string, error) {
		return r.chain.ClaimTask(ctx, task)
	}); err != nil {
		return err
	}

	riskCtx := risk.Context{}
	if r.cfg.RiskContextForTask != nil {
		riskCtx = r.cfg.RiskContextForTask(task)
	}

	result, err := r.lane.Execute(ctx, task, riskCtx)
	if err != nil {
		var escErr *verifier.EscalationError
		if errors.As(err, &escErr) {
			r.appendAudit(task.ID, "execute", "deny", escErr.Error())
			r.metrics.Counter("agenc.audit.lane_escalation", 1, metrics.MustLabel("reason", escErr.Reason))
		}
		return err
	}
	r.appendAudit(task.ID, "execute", "allow", "")

	return r.guardedAction(ctx, "complete", task.ID, func() (string, error) {
		return r.chain.CompleteTask(ctx, task, result.Output)
	})
}

// guardedAction evaluates the policy engine before invoking action,
// retries action with the configured exponential backoff, and appends
// an audit entry recording the decision either way.
func (r *Runtime) guardedAction(ctx context.Context, name, taskID string, action func() (string, error)) error {
	if r.policy != nil {
		decision := r.policy.Evaluate(policy.Request{ActionType: name, Subkey: taskID, IsWrite: true})
		if !decision.Allowed {
			r.appendAudit(taskID, name, "deny", decision.Reason)
			return fmt.Errorf("agentruntime: %s denied by policy: %s", name, decision.Reason)
		}
	}

	txSig, err := retryWithBackoff(ctx, r.cfg.Retry, action)
	if err != nil {
		r.appendAudit(taskID, name, "allow", err.Error())
		return fmt.Errorf("agentruntime: %s failed: %w", name, err)
	}
	r.appendAudit(taskID, name, "allow", txSig)
	return nil
}

func (r *Runtime) appendAudit(taskID, action, permission, note string) {
	if r.auditLog == nil {
		return
	}
	metadata := map[string]interface{}{"taskId": taskID}
	if note != "" {
		metadata["note"] = note
	}
	_, _ = r.auditLog.Append(audit.AppendInput{
		TimestampMs: r.nowFn(),
		Actor:       r.cfg.ActorID,
		Role:        "execute",
		Action:      action,
		Permission:  permission,
		Metadata:    metadata,
	})
}

// retryWithBackoff retries action up to cfg.MaxAttempts times with
// exponential backoff between attempts, capped at cfg.CapMs.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, action func() (string, error)) (string, error) {
	var lastErr error
	delay := cfg.BaseMs
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := action()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}
		wait := time.Duration(delay) * time.Millisecond
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay = int64(float64(delay) * cfg.Factor)
		if delay > cfg.CapMs {
			delay = cfg.CapMs
		}
	}
	return "", lastErr
}
