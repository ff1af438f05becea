package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/promptforge/promptforge/pkg/perr"
	"github.com/promptforge/promptforge/pkg/promptdef"
)

// validateArguments checks args against a prompt's declared Arguments,
// returning the S1-shaped error ("Argument Validation Failed: ... at
// least N chars ... ready retry block") on the first violation.
func validateArguments(prompt *promptdef.Prompt, args map[string]any) error {
	for _, a := range prompt.Arguments {
		v, present := args[a.Name]
		if a.Required && !present {
			return promptdef.ArgumentError(prompt.ID, a, "is required", "...")
		}
		if !present {
			continue
		}
		s, isString := v.(string)
		if !isString {
			continue
		}
		if a.MinLength != nil && len(s) < *a.MinLength {
			reason := fmt.Sprintf("must be at least %d chars", *a.MinLength)
			return promptdef.ArgumentError(prompt.ID, a, reason, strings.Repeat("x", *a.MinLength))
		}
		if a.MaxLength != nil && len(s) > *a.MaxLength {
			reason := fmt.Sprintf("must be at most %d chars", *a.MaxLength)
			return promptdef.ArgumentError(prompt.ID, a, reason, s[:*a.MaxLength])
		}
		if a.Pattern != "" {
			re, err := regexp.Compile(a.Pattern)
			if err != nil {
				return perr.Wrap(perr.Validation, err, "prompt %q: invalid pattern for argument %q", prompt.ID, a.Name)
			}
			if !re.MatchString(s) {
				reason := fmt.Sprintf("must match pattern %s", a.Pattern)
				return promptdef.ArgumentError(prompt.ID, a, reason, "example-value")
			}
		}
	}
	return nil
}

// renderTemplate interpolates a template string (after reference
// pre-resolution has already run) against the prompt's args plus chain
// context (`{{.input}}`, `{{.previous_step_result}}`), using the same
// text/template + helper-func mechanism as the teacher's eval.Resolve.
func renderTemplate(tmpl string, vars map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New("").Funcs(templateFuncs()).Parse(tmpl)
	if err != nil {
		return "", perr.Wrap(perr.Validation, err, "template parse error")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", perr.Wrap(perr.Validation, err, "template render error")
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || fmt.Sprint(val) == "" {
				return def
			}
			return val
		},
		"eq": func(a, b any) bool { return fmt.Sprint(a) == fmt.Sprint(b) },
	}
}
