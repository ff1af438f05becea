// Package session implements the Chain Session Manager: persistent,
// resumable multi-step chain state with per-step lifecycle, gate-review
// suspension, and TTL-based cleanup. It generalizes the teacher's
// serve.SessionState save/load shape and runtime.SaveSnapshot/LoadSnapshot
// JSON persistence, hardened to an atomic write (write-temp, fsync,
// rename) per spec §4.2.
package session

import (
	"time"

	"github.com/promptforge/promptforge/pkg/gate"
)

// StepState is one chain step's lifecycle state.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRendered  StepState = "rendered"
	StepCompleted StepState = "completed"
)

// StepRecord is one step's lifecycle entry within a session.
type StepRecord struct {
	State         StepState `json:"state"`
	IsPlaceholder bool      `json:"is_placeholder"`
}

// PendingGateReview suspends a session pending a self-review verdict. It
// carries the rendered prompt so a resumed request can re-display it
// without re-rendering.
type PendingGateReview struct {
	gate.PendingReview
	Prompt string `json:"prompt"`
}

// ChainContext is the view a template render or conditional-branch
// evaluation needs of a session's accumulated state, per spec §4.2's
// get_chain_context.
type ChainContext struct {
	ChainID         string            `json:"chain_id"`
	ChainRunID      string            `json:"chain_run_id"`
	TotalSteps      int               `json:"total_steps"`
	CurrentStep     int               `json:"current_step"`
	CurrentStepArgs map[string]any    `json:"current_step_args,omitempty"`
	StepResults     map[int]string    `json:"step_results,omitempty"`
	Input           string            `json:"input,omitempty"`
	ChainMetadata   map[string]any    `json:"chain_metadata,omitempty"`
}

// Session is the persistent state of one chain execution.
type Session struct {
	SessionID       string             `json:"session_id"`
	ChainID         string             `json:"chain_id"`
	ChainRunID      string             `json:"chain_run_id"`
	CurrentStep     int                `json:"current_step"`
	TotalSteps      int                `json:"total_steps"`
	StepStates      map[int]StepRecord `json:"step_states"`
	ExecutionOrder  []int              `json:"execution_order"`
	StepResults     map[int]string     `json:"step_results"`
	StepArgs        map[int]map[string]any `json:"step_args,omitempty"`
	ChainMetadata   map[string]any     `json:"chain_metadata,omitempty"`
	PendingReview   *PendingGateReview `json:"pending_gate_review,omitempty"`
	SessionBlueprint any               `json:"session_blueprint,omitempty"`
	Priority        *int               `json:"priority,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	LastActivity    time.Time          `json:"last_activity"`
}

// Suspended reports whether the chain is paused awaiting a gate verdict.
func (s *Session) Suspended() bool {
	return s.PendingReview != nil
}
