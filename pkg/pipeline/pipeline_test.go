package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/promptforge/promptforge/pkg/promptdef"
	"github.com/promptforge/promptforge/pkg/registry"
	"github.com/promptforge/promptforge/pkg/session"
)

type fakePrompts map[string]promptdef.Prompt

func (f fakePrompts) Get(id string) (promptdef.Prompt, bool) { p, ok := f[id]; return p, ok }

type fakeMethodologies map[string]promptdef.Methodology

func (f fakeMethodologies) Get(id string) (promptdef.Methodology, bool) { m, ok := f[id]; return m, ok }
func (f fakeMethodologies) Snapshot() map[string]promptdef.Methodology  { return f }

type fakeStyles map[string]promptdef.Style

func (f fakeStyles) Get(id string) (promptdef.Style, bool) { s, ok := f[id]; return s, ok }

type fakeGates map[string]promptdef.Gate

func (f fakeGates) Gate(id string) (promptdef.Gate, bool) { g, ok := f[id]; return g, ok }

func newTestServices(t *testing.T, prompts fakePrompts) *Services {
	t.Helper()
	mgr := session.NewManager(session.Config{CleanupInterval: time.Hour})
	t.Cleanup(func() { mgr.Shutdown() })
	return &Services{
		Prompts:       prompts,
		Methodologies: fakeMethodologies{},
		Styles:        fakeStyles{},
		Gates:         fakeGates{},
		Sessions:      mgr,
	}
}

// S1 — Simple argument validation failure.
func TestArgumentValidationFailure(t *testing.T) {
	minLen := 10
	prompts := fakePrompts{
		"summarize": {
			ID:       "summarize",
			Name:     "Summarize",
			Template: "Summarize: {{.topic}}",
			Arguments: []promptdef.Argument{
				{Name: "topic", Type: promptdef.ArgString, Required: true, MinLength: &minLen},
			},
		},
	}

	ctx := NewContext(RawRequest{Command: `>>summarize topic="ai"`}, newTestServices(t, prompts))
	resp := New().Run(ctx)

	if !resp.IsError {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	for _, want := range []string{"Argument Validation Failed", `"topic"`, "at least 10 chars", `>>summarize topic="`} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("response text %q missing %q", resp.Text, want)
		}
	}
}

// S4 — Circular reference.
func TestCircularReferenceError(t *testing.T) {
	prompts := fakePrompts{
		"a": {ID: "a", Name: "a", Template: "{{ref:b}}"},
		"b": {ID: "b", Name: "b", Template: "{{ref:a}} tail"},
	}

	ctx := NewContext(RawRequest{Command: ">>a"}, newTestServices(t, prompts))
	resp := New().Run(ctx)

	if !resp.IsError {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	if !strings.Contains(resp.Text, "reference:") || !strings.Contains(resp.Text, "circular reference detected") {
		t.Errorf("expected a reference/circular error, got %q", resp.Text)
	}
}

// S5 — Duplicate session without force_restart.
func TestDuplicateSessionWithoutForceRestart(t *testing.T) {
	prompts := fakePrompts{
		"demo": {
			ID:   "demo",
			Name: "demo",
			ChainSteps: []promptdef.ChainStep{
				{StepNumber: 1, PromptID: "demo-step1"},
			},
		},
	}
	services := newTestServices(t, prompts)
	if _, err := services.Sessions.CreateSession("chain-demo", "demo", 1, prompts["demo"], false); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	ctx := NewContext(RawRequest{Command: ">>demo"}, services)
	resp := New().Run(ctx)

	if !resp.IsError {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	for _, want := range []string{"already exists", "force_restart=true"} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("response text %q missing %q", resp.Text, want)
		}
	}
}

// S6 — Hot-reload mid-flight: a request that already resolved prompt "p"
// keeps rendering against the version it resolved, even after the
// registry swaps to a new generation before the request finishes.
func TestHotReloadDoesNotAffectInFlightRequest(t *testing.T) {
	dir := t.TempDir()
	version := 1
	load := func() (map[string]promptdef.Prompt, error) {
		tmpl := "V1 content"
		if version == 2 {
			tmpl = "V2 content"
		}
		return map[string]promptdef.Prompt{"p": {ID: "p", Name: "p", Template: tmpl}}, nil
	}

	reg, err := registry.New(dir, time.Millisecond, load, nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	defer reg.Close()

	services := newTestServices(t, nil)
	services.Prompts = registryPromptLookup{reg}

	ctx := NewContext(RawRequest{Command: ">>p"}, services)

	// Drive the pipeline up through Execution Planning (stage 7) by hand,
	// then swap the registry before letting the remaining stages run.
	for _, s := range []Stage{
		requestNormalization{}, dependencyInjection{}, executionLifecycle{},
		commandParsing{}, inlineGateRegistration{}, operatorValidation{}, executionPlanning{},
	} {
		s.Execute(ctx)
		if ctx.Response != nil {
			t.Fatalf("stage %s set an unexpected response: %+v", s.Name(), ctx.Response)
		}
	}
	if ctx.ResolvedPrompt == nil || ctx.ResolvedPrompt.Template != "V1 content" {
		t.Fatalf("expected execution planning to resolve V1, got %+v", ctx.ResolvedPrompt)
	}

	version = 2
	reg.Reload()

	for _, s := range []Stage{
		scriptExecution{}, scriptAutoExecute{}, judgeSelection{}, gateEnhancement{},
		frameworkResolution{}, sessionManagement{}, injectionControl{}, promptGuidance{},
		responseCapture{}, stepExecution{}, gateReview{}, callToAction{},
		responseFormatting{}, postFormattingCleanup{},
	} {
		s.Execute(ctx)
	}

	if ctx.Response == nil || ctx.Response.Text != "V1 content" {
		t.Fatalf("in-flight request should still render V1, got %+v", ctx.Response)
	}
	if got, ok := reg.Get("p"); !ok || got.Template != "V2 content" {
		t.Fatalf("a fresh lookup should see V2, got %+v ok=%v", got, ok)
	}
	if reg.Generation() != 1 {
		t.Fatalf("expected exactly one reload generation bump, got %d", reg.Generation())
	}
}

// S2 — Chain resume with gate PASS, driven through the full pipeline
// rather than by calling session.Manager directly: the session sits at
// current_step=1 with step 1's gate review pending, and a PASS verdict
// must complete step 1 (not step 2) and render step 2 next.
func TestChainResumeWithGatePassRendersNextStep(t *testing.T) {
	prompts := fakePrompts{
		"analysis_chain": {
			ID: "analysis_chain",
			ChainSteps: []promptdef.ChainStep{
				{StepNumber: 1, PromptID: "step-one"},
				{StepNumber: 2, PromptID: "step-two"},
			},
		},
		"step-one": {ID: "step-one", Name: "step-one", Template: "Do step one."},
		"step-two": {ID: "step-two", Name: "step-two", Template: "Do step two."},
	}
	services := newTestServices(t, prompts)

	if _, err := services.Sessions.CreateSession("chain-analysis_chain", "analysis_chain", 2, prompts["analysis_chain"], false); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	if err := services.Sessions.SetStepArgs("chain-analysis_chain", 1, map[string]any{"input": "topic"}); err != nil {
		t.Fatalf("set step args: %v", err)
	}
	// Advance current_step to 1: step one has rendered and is now the step
	// under gate review, not yet completed with its real result.
	if err := services.Sessions.CompleteStep("chain-analysis_chain", 1, "", false); err != nil {
		t.Fatalf("seed current_step: %v", err)
	}
	if err := services.Sessions.SetPendingGateReview("chain-analysis_chain", &session.PendingGateReview{Prompt: "review step 1"}); err != nil {
		t.Fatalf("set pending review: %v", err)
	}

	ctx := NewContext(RawRequest{
		ChainID:      "chain-analysis_chain",
		UserResponse: "step one complete",
		GateVerdict:  "GATE_REVIEW: PASS - criteria met",
	}, services)
	resp := New().Run(ctx)

	if resp.IsError {
		t.Fatalf("expected a success response, got %+v", resp)
	}
	if !strings.Contains(resp.Text, "Do step two.") {
		t.Fatalf("expected step two's rendered prompt, got %q", resp.Text)
	}

	s, ok := services.Sessions.GetSession("chain-analysis_chain")
	if !ok {
		t.Fatal("session disappeared")
	}
	if s.StepResults[1] != "step one complete" {
		t.Fatalf("want step_results[1] = %q, got %q", "step one complete", s.StepResults[1])
	}
	if s.Suspended() {
		t.Fatal("want pending review cleared after a PASS verdict")
	}
}

type registryPromptLookup struct {
	reg *registry.Registry[promptdef.Prompt]
}

func (r registryPromptLookup) Get(id string) (promptdef.Prompt, bool) { return r.reg.Get(id) }
