package promptdef

import (
	"fmt"

	"github.com/promptforge/promptforge/pkg/perr"
)

// ValidatePrompt enforces the domain invariants of spec §3 for a single
// prompt in isolation: unique argument names and a dense, 1-based
// chain_steps numbering.
func ValidatePrompt(p *Prompt) []error {
	var errs []error

	seen := make(map[string]bool, len(p.Arguments))
	for _, a := range p.Arguments {
		if seen[a.Name] {
			errs = append(errs, perr.New(perr.Validation, "prompt %q: duplicate argument %q", p.ID, a.Name))
		}
		seen[a.Name] = true
	}

	for i, step := range p.ChainSteps {
		if step.StepNumber != i+1 {
			errs = append(errs, perr.New(perr.Validation,
				"prompt %q: chain_steps[%d].step_number = %d, want %d", p.ID, i, step.StepNumber, i+1))
		}
		if step.ConditionalExecution != nil && step.ConditionalExecution.Type == CondConditional &&
			step.ConditionalExecution.Expression == "" {
			errs = append(errs, perr.New(perr.Validation,
				"prompt %q: step %d conditional_execution.type=conditional requires expression", p.ID, step.StepNumber))
		}
	}
	return errs
}

// ValidatePromptSet additionally checks that every chain step's prompt_id
// resolves against the full discovered set — a check that requires
// knowledge of all prompts, not just one.
func ValidatePromptSet(prompts []Prompt) []error {
	var errs []error
	byID := make(map[string]*Prompt, len(prompts))
	for i := range prompts {
		byID[prompts[i].ID] = &prompts[i]
	}
	for i := range prompts {
		errs = append(errs, ValidatePrompt(&prompts[i])...)
		for _, step := range prompts[i].ChainSteps {
			if _, ok := byID[step.PromptID]; !ok {
				errs = append(errs, perr.New(perr.Resolution,
					"prompt %q: chain step %d references unknown prompt_id %q", prompts[i].ID, step.StepNumber, step.PromptID))
			}
		}
	}
	return errs
}

// ValidateMethodology enforces that phases and methodology_gates are both
// present — their absence fails create per spec §3.
func ValidateMethodology(m *Methodology) []error {
	var errs []error
	if len(m.Phases) == 0 {
		errs = append(errs, perr.New(perr.Validation, "methodology %q: phases is required", m.ID))
	}
	if len(m.MethodologyGates) == 0 {
		errs = append(errs, perr.New(perr.Validation, "methodology %q: methodology_gates is required", m.ID))
	}
	return errs
}

// ValidateGate checks the small set of structural constraints a gate must
// satisfy beyond strict YAML decoding.
func ValidateGate(g *Gate) []error {
	var errs []error
	if g.Type != GateValidation && g.Type != GateGuidance {
		errs = append(errs, perr.New(perr.Validation, "gate %q: type must be validation or guidance, got %q", g.ID, g.Type))
	}
	if g.RetryConfig != nil && g.RetryConfig.MaxAttempts < 1 {
		errs = append(errs, perr.New(perr.Validation, "gate %q: retry_config.max_attempts must be >= 1", g.ID))
	}
	return errs
}

// ArgumentError renders a validation error for a single failed argument,
// matching the shape stage 4/17's user-visible retry hint requires:
// a message naming the argument and constraint, plus a ready retry command.
func ArgumentError(promptID string, a Argument, reason string, exampleValue string) *perr.Error {
	msg := fmt.Sprintf("Argument Validation Failed: %q %s", a.Name, reason)
	retry := fmt.Sprintf(">>%s %s=%q", promptID, a.Name, exampleValue)
	return perr.New(perr.Validation, "%s", msg).WithHint(reason).WithRetry(retry)
}
