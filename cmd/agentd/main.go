// Command agentd is one agent process: it claims tasks off a chain
// client, runs them through the verifier lane, and ingests chain events
// through the backfill loop, with the policy engine and audit trail
// wrapping every claim/execute/complete. Bootstrap and shutdown follow
// cmd/helm/main.go's runServer: construct every subsystem, wire them
// together, serve until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agenc/runtime/pkg/agentruntime"
	"github.com/agenc/runtime/pkg/audit"
	"github.com/agenc/runtime/pkg/backfill"
	"github.com/agenc/runtime/pkg/chainsim"
	"github.com/agenc/runtime/pkg/logging"
	"github.com/agenc/runtime/pkg/metrics"
	"github.com/agenc/runtime/pkg/policy"
	"github.com/agenc/runtime/pkg/replaystore"
	"github.com/agenc/runtime/pkg/risk"
	"github.com/agenc/runtime/pkg/verifier"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("agentd", flag.ContinueOnError)
	actorID := fs.String("actor", "agent-1", "identity recorded against every audit entry this process appends")
	maxConcurrent := fs.Int("max-concurrent-tasks", 4, "upper bound on in-flight task handlers")
	backfillPageSize := fs.Int("backfill-page-size", 200, "events requested per backfill page")
	logFormat := fs.String("log-format", "json", "logging.Format: json or text")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.New("agentd", logging.Config{Format: logging.Format(*logFormat)})
	slog.SetDefault(logger)

	logger.Info("agentd starting", "actor", *actorID)

	chain := chainsim.NewChain()
	store := replaystore.NewMemoryStore(replaystore.Config{})
	provider := metrics.NewInMemoryProvider()

	lane := verifier.NewLane(defaultVerifierConfig(), noopExecutor{}, noopVerifier{}, provider)
	policyEngine := policy.NewEngine(defaultPolicyConfig())
	trail := audit.NewTrail()
	projectors := defaultProjectors()
	backfillRunner := backfill.NewRunner(store, chain, projectors)
	backfillRunner.Metrics = provider

	rt := agentruntime.New(agentruntime.Config{
		ActorID:            *actorID,
		MaxConcurrentTasks: *maxConcurrent,
		BackfillConfig:     backfill.Config{PageSize: *backfillPageSize},
		RiskContextForTask: func(task verifier.Task) risk.Context {
			return risk.Context{NowUnixSeconds: time.Now().Unix()}
		},
	}, lane, chain, policyEngine, trail, store, backfillRunner, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("agentd shutting down")
		cancel()
	}()

	if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("agentd exited with error", "error", err)
		return 1
	}
	return 0
}

// defaultVerifierConfig enables adaptive single-candidate verification
// with the documented risk-scoring and budget defaults; multi-candidate
// arbitration is left disabled until a CandidateExecutor is wired in.
func defaultVerifierConfig() verifier.Config {
	return verifier.Config{
		Enabled:              true,
		AdaptiveMode:         true,
		MinRiskScoreToVerify: 0.3,
		FailOnVerifierError:  true,
		ReExecuteAllowed:     true,
		RiskConfig:           risk.DefaultConfig(),
	}
}

func defaultPolicyConfig() policy.Config {
	return policy.Config{
		MaxRiskScore: 0.9,
		CircuitBreaker: policy.CircuitBreakerConfig{
			ViolationThreshold: 5,
			WindowMs:           60_000,
			CoolOffMs:          30_000,
		},
	}
}

// defaultProjectors recognizes the task lifecycle events a simulated or
// real chain emits, projecting each into a replaystore.Record keyed by
// its state transition.
func defaultProjectors() map[string]backfill.Projector {
	project := func(state string) backfill.Projector {
		return func(ev backfill.RawEvent) (replaystore.Record, bool) {
			payload := map[string]interface{}{"state": state}
			for k, v := range ev.Payload {
				payload[k] = v
			}
			return replaystore.Record{
				SourceEventName:     ev.Name,
				SourceEventSequence: ev.SourceEventSequence,
				TaskID:              ev.TaskID,
				DisputeID:           ev.DisputeID,
				TimestampMs:         ev.TimestampMs,
				Slot:                ev.Slot,
				Signature:           ev.Signature,
				Payload:             payload,
				TraceID:             ev.TraceID,
				SpanID:              ev.SpanID,
			}, true
		}
	}
	return map[string]backfill.Projector{
		"created":   project("created"),
		"claimed":   project("claimed"),
		"completed": project("completed"),
		"disputed":  project("disputed"),
	}
}

// noopExecutor is the default local Executor: it performs no actual
// tool dispatch. Production deployments replace this with an adapter
// over a real tool driver (the teacher's pkg/executor.SafeExecutor
// shape); agentd's own scope is the claim/verify/complete loop, not
// tool execution itself.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, task verifier.Task) (verifier.Output, error) {
	return verifier.Output{}, nil
}

type noopVerifier struct{}

func (noopVerifier) Verify(ctx context.Context, task verifier.Task, output verifier.Output) (verifier.Outcome, error) {
	return verifier.Outcome{Verdict: "pass", Confidence: 1}, nil
}
