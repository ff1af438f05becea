package gate

import "github.com/promptforge/promptforge/pkg/perr"

// RetryState is the gate self-review retry state machine's current
// state, mirroring the explicit enum + table-driven transition style of
// the teacher's governance.Decision / schema.GovernanceDecision.
type RetryState string

const (
	StateInitial       RetryState = "INITIAL"
	StatePendingReview RetryState = "PENDING_REVIEW"
	StatePass          RetryState = "PASS"
	StateFailRetry     RetryState = "FAIL_RETRY"
	StateFailExceeded  RetryState = "FAIL_EXCEEDED"
)

// GateAction is the user's choice once a gate's retry budget is
// exhausted (surfaced from StateFailExceeded).
type GateAction string

const (
	ActionRetry GateAction = "retry"
	ActionSkip  GateAction = "skip"
	ActionAbort GateAction = "abort"
)

// PendingReview is the suspended state persisted on a chain session while
// a gate awaits the caller's verdict.
type PendingReview struct {
	GateID      string `json:"gate_id"`
	StepNumber  int    `json:"step_number"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}

// Transition advances a gate's retry state given a parsed verdict and the
// gate's retry_config, per spec §4.3's
// INITIAL -> PENDING_REVIEW -> (PASS | FAIL_RETRY | FAIL_EXCEEDED) machine.
func Transition(pr PendingReview, v Verdict) (RetryState, PendingReview) {
	if v.Pass {
		return StatePass, pr
	}
	next := pr
	next.Attempt++
	if pr.MaxAttempts <= 0 || next.Attempt < pr.MaxAttempts {
		return StateFailRetry, next
	}
	return StateFailExceeded, next
}

// Resolve applies a user's gate_action once FAIL_EXCEEDED has been
// reached: retry resets the attempt counter and re-enters
// PENDING_REVIEW, skip treats the gate as passed, abort terminates the
// chain.
func Resolve(pr PendingReview, action GateAction) (RetryState, PendingReview, error) {
	switch action {
	case ActionRetry:
		pr.Attempt = 0
		return StatePendingReview, pr, nil
	case ActionSkip:
		return StatePass, pr, nil
	case ActionAbort:
		return StateFailExceeded, pr, nil
	default:
		return StateFailExceeded, pr, perr.New(perr.Gate, "unknown gate_action %q", action).
			WithHint("gate_action must be one of retry, skip, abort")
	}
}
