// Package resolver implements the Reference Resolver: recursive,
// cycle-safe pre-resolution of {{ref:prompt_id}} and
// {{script:tool_id[.field][ key=value ...]}} tokens inside a template
// string, before the template engine (pkg/kernel/eval-style text/template
// interpolation) runs. This is the "effectful interpolation is resolved
// in pre-passes" design note of spec §9.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/promptforge/promptforge/pkg/perr"
)

// DefaultMaxDepth comfortably exceeds the "≥5 nested levels" floor spec
// §4.4 requires.
const DefaultMaxDepth = 10

// refRe matches both {{ref:id}} and {{script:id[.field][ k=v ...]}}.
// Group 1: "ref" or "script". Group 2: id. Group 3: optional ".field".
// Group 4: optional trailing "key=value ..." argument text.
var refRe = regexp.MustCompile(`\{\{\s*(ref|script):([A-Za-z0-9_\-/]+)(\.[A-Za-z0-9_]+)?((?:\s+[A-Za-z_][A-Za-z0-9_]*=(?:'[^']*'|"[^"]*"|[^\s}]+))*)\s*\}\}`)

var argRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=('[^']*'|"[^"]*"|[^\s}]+)`)

// PromptLookup resolves a prompt id to its raw template text.
type PromptLookup interface {
	Template(id string) (tmpl string, ok bool)
}

// ScriptRunner executes a script tool reference. RequiresConfirmation is
// checked before Run is ever called, per spec §4.4's "tools that require
// user confirmation are not executed during reference resolution".
type ScriptRunner interface {
	RequiresConfirmation(toolID string) bool
	Run(ctx context.Context, toolID string, args map[string]any) (json.RawMessage, error)
}

// Options configures one Resolve call.
type Options struct {
	MaxDepth    int            // 0 means DefaultMaxDepth
	Lenient     bool           // missing {{ref:..}} -> empty string + warning instead of error
	ContextArgs map[string]any // base args available to script references
}

// Diagnostics reports what one Resolve call did, per spec §4.4.
type Diagnostics struct {
	ResolutionTimeMs   int64
	ReferencesResolved int
	ResolvedPromptIDs  []string // ordered, first-seen, deduplicated
	Warnings           []string
}

// Message fragments for resolver errors. The max-depth and circular
// reference errors are reported via perr.Reference with the resolution
// chain attached as a Hint; tests match against these fragments.
const (
	msgMaxDepthExceeded   = "maximum reference depth exceeded"
	msgCircularReference  = "circular reference detected"
	msgInvalidScriptOut   = "script output is not a JSON object"
	msgInvalidFieldAccess = "field not present in script output"
)

// Resolve expands every {{ref:..}} and {{script:..}} token in tmpl,
// recursively, until no more reference tokens remain or MaxDepth is
// reached. It never touches plain {{.var}} template syntax, which the
// downstream template engine still handles.
func Resolve(tmpl string, prompts PromptLookup, scripts ScriptRunner, opts Options) (string, Diagnostics, error) {
	start := time.Now()
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	r := &resolution{
		prompts:     prompts,
		scripts:     scripts,
		opts:        opts,
		maxDepth:    maxDepth,
		scriptCache: make(map[string]json.RawMessage),
		seenPrompts: make(map[string]bool),
	}

	out, err := r.expand(tmpl, nil, 0)
	diag := Diagnostics{
		ResolutionTimeMs:   time.Since(start).Milliseconds(),
		ReferencesResolved: r.resolvedCount,
		ResolvedPromptIDs:  r.promptOrder,
		Warnings:           r.warnings,
	}
	if err != nil {
		return "", diag, err
	}
	return out, diag, nil
}

type resolution struct {
	prompts     PromptLookup
	scripts     ScriptRunner
	opts        Options
	maxDepth    int
	scriptCache map[string]json.RawMessage

	resolvedCount int
	promptOrder   []string
	seenPrompts   map[string]bool
	warnings      []string
}

// expand replaces every reference token in tmpl. chain holds the prompt
// ids visited along the current expansion path, for cycle detection —
// spec §4.4 requires cycles to be rejected rather than expanded.
func (r *resolution) expand(tmpl string, chain []string, depth int) (string, error) {
	if !strings.Contains(tmpl, "{{ref:") && !strings.Contains(tmpl, "{{script:") {
		return tmpl, nil
	}
	if depth > r.maxDepth {
		return "", perr.New(perr.Reference, msgMaxDepthExceeded).
			WithHint(fmt.Sprintf("depth %d exceeds max %d; chain: %s", depth, r.maxDepth, strings.Join(chain, " -> ")))
	}

	var expandErr error
	out := refRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		if expandErr != nil {
			return tok
		}
		m := refRe.FindStringSubmatch(tok)
		kind, id, field, argText := m[1], m[2], strings.TrimPrefix(m[3], "."), m[4]

		switch kind {
		case "ref":
			repl, err := r.expandRef(id, chain, depth)
			if err != nil {
				expandErr = err
				return tok
			}
			return repl
		case "script":
			repl, err := r.expandScript(id, field, argText)
			if err != nil {
				expandErr = err
				return tok
			}
			return repl
		default:
			return tok
		}
	})
	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

func (r *resolution) expandRef(id string, chain []string, depth int) (string, error) {
	for _, c := range chain {
		if c == id {
			return "", perr.New(perr.Reference, msgCircularReference).
				WithHint("chain: " + strings.Join(append(chain, id), " -> "))
		}
	}
	tmpl, ok := r.prompts.Template(id)
	if !ok {
		if r.opts.Lenient {
			r.warnings = append(r.warnings, "missing reference: "+id)
			return "", nil
		}
		return "", perr.New(perr.Reference, "unknown reference prompt_id %q", id)
	}

	nextChain := append(append([]string{}, chain...), id)
	resolved, err := r.expand(tmpl, nextChain, depth+1)
	if err != nil {
		return "", err
	}
	r.resolvedCount++
	if !r.seenPrompts[id] {
		r.seenPrompts[id] = true
		r.promptOrder = append(r.promptOrder, id)
	}
	return resolved, nil
}

func (r *resolution) expandScript(toolID, field, argText string) (string, error) {
	if r.scripts == nil {
		return "", perr.New(perr.Script, "no script runner configured for {{script:%s}}", toolID)
	}
	if r.scripts.RequiresConfirmation(toolID) {
		r.warnings = append(r.warnings, "script tool requires confirmation, not executed during resolution: "+toolID)
		return "", nil
	}

	args := mergeArgs(r.opts.ContextArgs, parseInlineArgs(argText))
	cacheKey := toolID + "|" + canonicalizeArgs(args)

	raw, cached := r.scriptCache[cacheKey]
	if !cached {
		out, err := r.scripts.Run(context.Background(), toolID, args)
		if err != nil {
			return "", perr.Wrap(perr.Script, err, "script tool %q failed", toolID)
		}
		raw = out
		r.scriptCache[cacheKey] = raw
	}
	r.resolvedCount++

	if field == "" {
		return string(raw), nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", perr.New(perr.Script, "%s: tool %q, field %q", msgInvalidScriptOut, toolID, field)
	}
	val, ok := obj[field]
	if !ok {
		return "", perr.New(perr.Script, "%s: tool %q has no field %q", msgInvalidFieldAccess, toolID, field)
	}
	return fmt.Sprint(val), nil
}

// parseInlineArgs parses "key='value' key2=42 key3=true" into a typed map.
func parseInlineArgs(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]any)
	for _, m := range argRe.FindAllStringSubmatch(s, -1) {
		key, raw := m[1], m[2]
		out[key] = parseArgValue(raw)
	}
	return out
}

func parseArgValue(raw string) any {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

// mergeArgs overlays inline args on top of base context args — inline
// args override same-named context args for that one reference only.
func mergeArgs(base, inline map[string]any) map[string]any {
	if len(base) == 0 && len(inline) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(inline))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range inline {
		out[k] = v
	}
	return out
}

// canonicalizeArgs produces a deterministic key for the script-result
// cache, per spec §4.4: "the same reference twice executes once" within
// one request.
func canonicalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, _ := json.Marshal(args)
	return string(b)
}
