package branch

import "testing"

func TestEvaluateLengthHelper(t *testing.T) {
	env := Env{
		Steps: map[string]StepResult{"data_check": {Result: "12345", Success: true}},
		Utils: Utils{},
	}
	ok, err := Evaluate(`utils.length(steps.data_check.result) < 10`, env)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("want true for a 5-char result under the 10 threshold")
	}
}

func TestEvaluateDenylistRejectsExpression(t *testing.T) {
	_, err := Evaluate(`exec("rm -rf /")`, Env{})
	if err == nil {
		t.Fatal("want rejection for denylisted identifier")
	}
}

func TestEvaluateRuntimeFailureIsSandboxError(t *testing.T) {
	_, err := Evaluate(`steps.missing.result`, Env{Steps: map[string]StepResult{}})
	if err == nil {
		t.Fatal("want evaluation failure for missing step reference")
	}
}

func TestDecideAlwaysRuns(t *testing.T) {
	d := Decide(Always, "", "", Env{}, LastStep{})
	if !d.Run {
		t.Fatal("want always to run")
	}
}

func TestDecideConditionalBranchingByResultLength(t *testing.T) {
	// S3 — Conditional branching by result length.
	shortEnv := Env{Steps: map[string]StepResult{"data_check": {Result: string(make([]byte, 500))}}}
	longEnv := Env{Steps: map[string]StepResult{"data_check": {Result: string(make([]byte, 2000))}}}

	simple := Decide(Conditional, `utils.length(steps.data_check.result) < 1000`, "", shortEnv, LastStep{})
	complex := Decide(Conditional, `utils.length(steps.data_check.result) >= 1000`, "", shortEnv, LastStep{})
	if !simple.Run {
		t.Fatal("want simple_analysis to run for a short result")
	}
	if complex.Run {
		t.Fatal("want complex_analysis skipped for a short result")
	}

	simple = Decide(Conditional, `utils.length(steps.data_check.result) < 1000`, "", longEnv, LastStep{})
	complex = Decide(Conditional, `utils.length(steps.data_check.result) >= 1000`, "", longEnv, LastStep{})
	if simple.Run {
		t.Fatal("want simple_analysis skipped for a long result")
	}
	if !complex.Run {
		t.Fatal("want complex_analysis to run for a long result")
	}
}

func TestDecideSkipIfErrorAndSkipIfSuccess(t *testing.T) {
	failed := LastStep{Success: false}
	ok := LastStep{Success: true}

	if d := Decide(SkipIfError, "", "", Env{}, failed); d.Run {
		t.Fatal("want skip_if_error to skip after a failed step")
	}
	if d := Decide(SkipIfError, "", "", Env{}, ok); !d.Run {
		t.Fatal("want skip_if_error to run after a successful step")
	}
	if d := Decide(SkipIfSuccess, "", "", Env{}, ok); d.Run {
		t.Fatal("want skip_if_success to skip after a successful step")
	}
}

func TestDecideBranchToCarriesTarget(t *testing.T) {
	d := Decide(BranchTo, "", "step_3", Env{}, LastStep{})
	if !d.Run || d.BranchTo != "step_3" {
		t.Fatalf("want branch_to to run and carry target, got %+v", d)
	}
}

func TestDecideEvaluationFailureDowngradesToSkip(t *testing.T) {
	d := Decide(Conditional, `exec("bad")`, "", Env{}, LastStep{})
	if d.Run {
		t.Fatal("want rejected expression to downgrade to skip, not abort")
	}
	if d.Diagnostic == "" {
		t.Fatal("want a diagnostic recorded for the skipped step")
	}
}
