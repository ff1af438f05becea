package session

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain-sessions.json")
	m := NewManager(Config{StatePath: path, CleanupInterval: time.Hour})
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func TestCreateSessionDuplicateWithoutForceRestart(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession("chain-demo", "demo", 2, nil, false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.CreateSession("chain-demo", "demo", 2, nil, false); err == nil {
		t.Fatal("want duplicate-session error without force_restart")
	}
	if _, err := m.CreateSession("chain-demo", "demo", 2, nil, true); err != nil {
		t.Fatalf("force_restart create: %v", err)
	}
}

func TestChainResumeWithGatePassAdvancesStep(t *testing.T) {
	// S2 — Chain resume with gate PASS.
	m := newTestManager(t)
	if _, err := m.CreateSession("chain-analysis_chain", "analysis_chain", 2, nil, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.SetStepArgs("chain-analysis_chain", 1, map[string]any{"input": "topic"}); err != nil {
		t.Fatalf("set step args: %v", err)
	}
	if err := m.SetPendingGateReview("chain-analysis_chain", &PendingGateReview{Prompt: "review step 1"}); err != nil {
		t.Fatalf("set pending review: %v", err)
	}

	if err := m.ClearPendingGateReview("chain-analysis_chain"); err != nil {
		t.Fatalf("clear pending review: %v", err)
	}
	if err := m.CompleteStep("chain-analysis_chain", 1, "step one complete", false); err != nil {
		t.Fatalf("complete step: %v", err)
	}

	s, ok := m.GetSession("chain-analysis_chain")
	if !ok {
		t.Fatal("session disappeared")
	}
	if s.CurrentStep != 1 {
		t.Fatalf("want current_step=1, got %d", s.CurrentStep)
	}
	if s.StepResults[1] != "step one complete" {
		t.Fatalf("want step_results[1] set, got %q", s.StepResults[1])
	}
	if s.Suspended() {
		t.Fatal("want pending review cleared after resume")
	}

	ctx, err := m.GetChainContext("chain-analysis_chain")
	if err != nil {
		t.Fatalf("get chain context: %v", err)
	}
	if ctx.Input != "step one complete" {
		t.Fatalf("want input aliased to previous step result, got %q", ctx.Input)
	}
}

func TestCompleteStepPreservePlaceholderDoesNotAdvance(t *testing.T) {
	m := newTestManager(t)
	m.CreateSession("chain-x", "x", 3, nil, false)
	if err := m.CompleteStep("chain-x", 1, "partial", true); err != nil {
		t.Fatalf("complete step: %v", err)
	}
	s, _ := m.GetSession("chain-x")
	if s.CurrentStep != 0 {
		t.Fatalf("want current_step unchanged at 0 for placeholder completion, got %d", s.CurrentStep)
	}
}

func TestUpdateSessionBlueprintIsolatesMutation(t *testing.T) {
	m := newTestManager(t)
	m.CreateSession("chain-bp", "bp", 1, nil, false)

	blueprint := map[string]any{"steps": []any{"a", "b"}}
	if err := m.UpdateSessionBlueprint("chain-bp", blueprint); err != nil {
		t.Fatalf("update blueprint: %v", err)
	}
	blueprint["steps"] = []any{"mutated"}

	got, err := m.GetSessionBlueprint("chain-bp")
	if err != nil {
		t.Fatalf("get blueprint: %v", err)
	}
	gotMap := got.(map[string]any)
	steps := gotMap["steps"].([]any)
	if steps[0] != "a" {
		t.Fatalf("want stored blueprint unaffected by later mutation, got %v", steps)
	}
}

func TestCleanupStaleSessionsRespectsReviewTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain-sessions.json")
	m := NewManager(Config{StatePath: path, ReviewTTL: time.Millisecond, ChainTTL: time.Hour, CleanupInterval: time.Hour})
	defer m.Shutdown()

	m.CreateSession("chain-review", "review", 1, nil, false)
	m.SetPendingGateReview("chain-review", &PendingGateReview{Prompt: "p"})
	m.CreateSession("chain-normal", "normal", 1, nil, false)

	time.Sleep(5 * time.Millisecond)
	removed := m.CleanupStaleSessions()

	if len(removed) != 1 || removed[0] != "chain-review" {
		t.Fatalf("want only the review session expired, got %v", removed)
	}
	if !m.HasActiveSession("chain-normal") {
		t.Fatal("want chain-normal still active under the longer chain TTL")
	}
}

func TestSaveReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain-sessions.json")
	m := NewManager(Config{StatePath: path, CleanupInterval: time.Hour})
	m.CreateSession("chain-rt", "rt", 2, map[string]any{"k": "v"}, false)
	m.SetStepState("chain-rt", 1, StepRendered, false)
	m.Shutdown()

	m2 := NewManager(Config{StatePath: path, CleanupInterval: time.Hour})
	defer m2.Shutdown()

	s, ok := m2.GetSession("chain-rt")
	if !ok {
		t.Fatal("want session to survive reload")
	}
	if s.TotalSteps != 2 || s.StepStates[1].State != StepRendered {
		t.Fatalf("want reloaded session to match saved state, got %+v", s)
	}
}
