package promptdef

import "testing"

func TestValidatePromptDuplicateArgument(t *testing.T) {
	p := &Prompt{
		ID:        "summarize",
		Template:  "{{.topic}}",
		Arguments: []Argument{{Name: "topic", Type: ArgString}, {Name: "topic", Type: ArgString}},
	}
	errs := ValidatePrompt(p)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestValidatePromptChainStepNumbering(t *testing.T) {
	p := &Prompt{
		ID: "my_chain",
		ChainSteps: []ChainStep{
			{StepNumber: 1, PromptID: "step_one"},
			{StepNumber: 3, PromptID: "step_two"},
		},
	}
	errs := ValidatePrompt(p)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for misnumbered step, got %d: %v", len(errs), errs)
	}
}

func TestValidatePromptSetUnknownReference(t *testing.T) {
	prompts := []Prompt{
		{ID: "my_chain", ChainSteps: []ChainStep{{StepNumber: 1, PromptID: "missing_step"}}},
	}
	errs := ValidatePromptSet(prompts)
	if len(errs) != 1 {
		t.Fatalf("expected 1 resolution error, got %d: %v", len(errs), errs)
	}
}

func TestValidatePromptSetResolves(t *testing.T) {
	prompts := []Prompt{
		{ID: "my_chain", ChainSteps: []ChainStep{{StepNumber: 1, PromptID: "step_one"}}},
		{ID: "step_one"},
	}
	if errs := ValidatePromptSet(prompts); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateMethodologyRequiresPhasesAndGates(t *testing.T) {
	m := &Methodology{ID: "cdw"}
	errs := ValidateMethodology(m)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateGateType(t *testing.T) {
	g := &Gate{ID: "g1", Type: "bogus"}
	errs := ValidateGate(g)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}
