package branch

import "github.com/promptforge/promptforge/pkg/perr"

// Decision is the outcome of evaluating a chain step's conditional
// execution descriptor.
type Decision struct {
	Run        bool
	BranchTo   string // set when Type is branch_to/skip_to and Run is true
	Diagnostic string // set when the step was skipped or evaluation failed
}

// ConditionalType mirrors promptdef.ConditionalType without importing that
// package, keeping branch a leaf dependency evaluated purely on strings.
type ConditionalType string

const (
	Always        ConditionalType = "always"
	Conditional   ConditionalType = "conditional"
	SkipIfError   ConditionalType = "skip_if_error"
	SkipIfSuccess ConditionalType = "skip_if_success"
	BranchTo      ConditionalType = "branch_to"
	SkipTo        ConditionalType = "skip_to"
)

// LastStep is the immediately preceding step's outcome, used by
// skip_if_error / skip_if_success.
type LastStep struct {
	Success bool
}

// Decide evaluates one chain step's conditional_execution descriptor.
// Any evaluation failure downgrades to "skip" with a diagnostic attached —
// per spec, sandbox errors never abort the chain.
func Decide(typ ConditionalType, expression, target string, env Env, last LastStep) Decision {
	switch typ {
	case Always, "":
		return Decision{Run: true}

	case Conditional:
		ok, err := Evaluate(expression, env)
		if err != nil {
			return Decision{Run: false, Diagnostic: skipDiagnostic(err)}
		}
		if !ok {
			return Decision{Run: false, Diagnostic: "conditional expression evaluated false"}
		}
		return Decision{Run: true}

	case SkipIfError:
		if !last.Success {
			return Decision{Run: false, Diagnostic: "skipped: previous step errored"}
		}
		return Decision{Run: true}

	case SkipIfSuccess:
		if last.Success {
			return Decision{Run: false, Diagnostic: "skipped: previous step succeeded"}
		}
		return Decision{Run: true}

	case BranchTo, SkipTo:
		return Decision{Run: true, BranchTo: target}

	default:
		return Decision{Run: false, Diagnostic: "unknown conditional_execution type, step skipped"}
	}
}

func skipDiagnostic(err *perr.Error) string {
	return "skipped: " + err.Error()
}
