// Package branch implements the conditional branching engine: sandboxed
// expression evaluation over prior chain-step results, deciding whether a
// step runs.
package branch

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/promptforge/promptforge/pkg/perr"
)

// Timeout is the hard wall-clock bound on a single expression evaluation.
const Timeout = 5 * time.Second

// deniedTokens screens expressions before compilation. Any match rejects
// the expression outright with no attempt to compile or run it.
var deniedTokens = []string{
	"eval", "require", "import", "process", "system", "exec", "open",
	"os.", "net.", "file", "socket",
}

var tokenRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

// Env is the binding set exposed to a conditional expression: prior step
// results keyed by step id, chain variables, and the fixed helper set.
// Expressions reference these as lowercase `steps`, `vars`, and
// `utils.*` (spec §4.5) — expr-lang resolves struct field/method access
// case-sensitively, so Env is converted to a `map[string]interface{}`
// with those exact lowercase keys before compilation/evaluation, mirroring
// the teacher's own `buildEnv`/`evalCondition` map-based idiom
// (`_examples/ormasoftchile-gert/pkg/runtime/engine.go`) rather than
// binding expr directly against this exported Go struct.
type Env struct {
	Steps map[string]StepResult
	Vars  map[string]any
	Utils Utils
}

// toExprEnv lowers Env into the map[string]interface{} shape expr-lang
// compiles and runs against: `steps.<id>.result`, `vars.<name>`, and
// `utils.<helper>(...)` all resolve as dynamic map/key lookups instead of
// case-sensitive Go field/method names.
func (e Env) toExprEnv() map[string]interface{} {
	steps := make(map[string]interface{}, len(e.Steps))
	for id, sr := range e.Steps {
		steps[id] = map[string]interface{}{
			"result":  sr.Result,
			"success": sr.Success,
			"error":   sr.Error,
		}
	}
	vars := make(map[string]interface{}, len(e.Vars))
	for k, v := range e.Vars {
		vars[k] = v
	}
	var u Utils
	return map[string]interface{}{
		"steps": steps,
		"vars":  vars,
		"utils": map[string]interface{}{
			"exists":    u.Exists,
			"contains":  u.Contains,
			"length":    u.Length,
			"to_number": u.ToNumber,
			"to_string": u.ToString,
			"matches":   u.Matches,
		},
	}
}

// StepResult is the result of a prior chain step, as seen from a
// conditional expression.
type StepResult struct {
	Result  string
	Success bool
	Error   string
}

// Utils is the fixed, closed helper set available to expressions as
// `utils.*`.
type Utils struct{}

func (Utils) Exists(v any) bool { return v != nil }

func (Utils) Contains(s, sub string) bool { return strings.Contains(s, sub) }

func (Utils) Length(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return 0
	}
}

func (Utils) ToNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func (Utils) ToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return toStringFallback(t)
	}
}

func (Utils) Matches(s, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func toStringFallback(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Screen applies the denylist and grammar checks before compilation; it
// never executes the expression.
func Screen(expression string) *perr.Error {
	for _, tok := range tokenRe.FindAllString(expression, -1) {
		low := strings.ToLower(tok)
		for _, denied := range deniedTokens {
			if strings.Contains(low, denied) {
				return perr.New(perr.Sandbox, "expression rejected: disallowed identifier %q", tok)
			}
		}
	}
	return nil
}

// Compile screens and compiles expression against the shape of
// Env.toExprEnv, returning a reusable *vm.Program. The env passed to
// expr.Env is a `map[string]interface{}`, so member access type-checks
// dynamically (no `AllowUndefinedVariables` or struct tags needed) and
// resolves the spec's lowercase `steps`/`vars`/`utils.*` names directly.
func Compile(expression string) (*vm.Program, *perr.Error) {
	if err := Screen(expression); err != nil {
		return nil, err
	}
	program, err := expr.Compile(expression, expr.Env(Env{}.toExprEnv()), expr.AsBool())
	if err != nil {
		return nil, perr.Wrap(perr.Sandbox, err, "expression rejected: %v", err)
	}
	return program, nil
}

// Evaluate compiles and runs expression against env with a hard 5-second
// timeout. Any failure (rejection, compile error, runtime error, timeout)
// is returned as a Sandbox-kind error — callers downgrade this to "skip
// step" per spec, never treat it as fatal.
func Evaluate(expression string, env Env) (bool, *perr.Error) {
	program, cerr := Compile(expression)
	if cerr != nil {
		return false, cerr
	}

	type outcome struct {
		val bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := expr.Run(program, env.toExprEnv())
		if err != nil {
			done <- outcome{false, err}
			return
		}
		b, ok := out.(bool)
		if !ok {
			done <- outcome{false, nil}
			return
		}
		done <- outcome{b, nil}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return false, perr.Wrap(perr.Sandbox, o.err, "expression evaluation failed")
		}
		return o.val, nil
	case <-time.After(Timeout):
		return false, perr.New(perr.Sandbox, "expression timed out after %s", Timeout)
	}
}
