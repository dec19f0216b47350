// Package escalation implements the verifier lane's pure state-transition
// function: given the outcome of one attempt plus policy/budget context, it
// decides the next state with no side effects. Grounded on the reason-code
// and state vocabulary of the teacher's pkg/escalation/manager.go, reshaped
// from that file's stateful intent-lifecycle tracker into the side-effect
// free single-call transition spec.md §4.8 requires — the teacher's
// taxonomy of reasons survives, its bookkeeping does not.
package escalation

// State is one of the four terminal/continuing states a transition
// produces.
type State string

const (
	StatePass     State = "pass"
	StateRetry    State = "retry"
	StateRevise   State = "revise"
	StateEscalate State = "escalate"
)

// Reason codes Transition returns (see Transition for the order in which
// its rules are evaluated).
const (
	ReasonPolicyDenied        = "policy_denied"
	ReasonTimeout             = "timeout"
	ReasonBudgetExhausted     = "budget_exhausted"
	ReasonDisagreementThresh  = "disagreement_threshold"
	ReasonRetriesExhausted    = "retries_exhausted"
	ReasonRevisionUnavailable = "revision_unavailable"
	ReasonRetryAllowed        = "retry_allowed"
	ReasonNeedsRevision       = "needs_revision"
)

// Verdict mirrors the external verifier's outcome discriminator.
type Verdict string

const (
	VerdictPass          Verdict = "pass"
	VerdictFail          Verdict = "fail"
	VerdictNeedsRevision Verdict = "needs_revision"
)

// Input bundles every signal the transition function consults.
type Input struct {
	PolicyDenied      bool
	TimedOut          bool
	BudgetExhausted   bool
	Verdict           Verdict
	DisagreementCount int
	MaxDisagreements  int // 0 means no disagreement ceiling configured
	AttemptsExhausted bool
	RevisionAvailable bool
	ReExecuteAllowed  bool
}

// Transition evaluates Input against spec.md §4.8's priority-ordered rules
// and returns the next state with its reason code.
func Transition(in Input) (State, string) {
	switch {
	case in.PolicyDenied:
		return StateEscalate, ReasonPolicyDenied
	case in.TimedOut:
		return StateEscalate, ReasonTimeout
	case in.BudgetExhausted:
		return StateEscalate, ReasonBudgetExhausted
	case in.Verdict == VerdictPass:
		return StatePass, ""
	case in.MaxDisagreements > 0 && in.DisagreementCount >= in.MaxDisagreements:
		return StateEscalate, ReasonDisagreementThresh
	case in.AttemptsExhausted:
		return StateEscalate, ReasonRetriesExhausted
	case in.Verdict == VerdictNeedsRevision && in.RevisionAvailable:
		return StateRevise, ReasonNeedsRevision
	case in.Verdict == VerdictNeedsRevision && in.ReExecuteAllowed:
		return StateRetry, ReasonNeedsRevision
	case in.Verdict == VerdictNeedsRevision:
		return StateEscalate, ReasonRevisionUnavailable
	default:
		return StateRetry, ReasonRetryAllowed
	}
}
