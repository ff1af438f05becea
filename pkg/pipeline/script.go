package pipeline

import (
	"strings"

	"github.com/promptforge/promptforge/pkg/promptdef"
)

// Match is one script-tool detection result, per spec §4.8. No subprocess
// is ever invoked here — this package is a contract-only partition of
// candidate tools, mirroring the teacher's executeExtension stub in
// pkg/kernel/engine/engine.go, which records a trace event and takes the
// skip/error path rather than actually dispatching.
type Match struct {
	ToolID               string
	Priority             int
	MatchReason          string
	ExtractedInputs      map[string]any
	RequiresConfirmation bool
	ExplicitRequest      bool
}

// DetectMatches evaluates every declared script tool's trigger against the
// request args, producing a detection match for each that fires.
func DetectMatches(tools []promptdef.ScriptTool, args map[string]any) []Match {
	explicit := explicitToolRequest(args)
	var matches []Match
	for _, t := range tools {
		m, ok := detectOne(t, args, explicit)
		if ok {
			matches = append(matches, m)
		}
	}
	return matches
}

func explicitToolRequest(args map[string]any) string {
	if v, ok := args["tool"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func detectOne(t promptdef.ScriptTool, args map[string]any, explicit string) (Match, bool) {
	isExplicit := explicit == t.ID
	switch t.Trigger {
	case "never":
		if !isExplicit {
			return Match{}, false
		}
	case "always":
		// always fires
	case "explicit":
		if !isExplicit {
			return Match{}, false
		}
	case "schema_match":
		if !isExplicit && !satisfiesSchema(t, args) {
			return Match{}, false
		}
	default:
		return Match{}, false
	}

	reason := "trigger:" + t.Trigger
	if isExplicit {
		reason = "explicit request"
	}
	return Match{
		ToolID:               t.ID,
		Priority:             confidencePriority(t.Confidence),
		MatchReason:          reason,
		ExtractedInputs:      args,
		RequiresConfirmation: t.Confirm,
		ExplicitRequest:      isExplicit,
	}, true
}

// satisfiesSchema checks args against the tool's declared input schema's
// required keys; strict:false treats a partial match (any required key
// present) as satisfying, per spec §4.8.
func satisfiesSchema(t promptdef.ScriptTool, args map[string]any) bool {
	required := requiredKeys(t.InputSchema)
	if len(required) == 0 {
		return false
	}
	present := 0
	for _, k := range required {
		if _, ok := args[k]; ok {
			present++
		}
	}
	if t.Strict {
		return present == len(required)
	}
	return present > 0
}

func requiredKeys(schema map[string]any) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func confidencePriority(confidence float64) int {
	return int(confidence * 100)
}

// Partition splits matches into ready, pending_confirmation, and skipped,
// per spec §4.8's execution-mode service. No auto-approval of a
// previously-seen pending_confirmation is implemented (that requires a
// persisted single-use TTL store this pass does not add); a confirm:true
// match lands in pending unless it was explicitly requested, in which case
// it is ready.
func Partition(matches []Match) (ready, pending, skipped []Match) {
	for _, m := range matches {
		switch {
		case m.RequiresConfirmation && !m.ExplicitRequest:
			pending = append(pending, m)
		case strings.TrimSpace(m.ToolID) == "":
			skipped = append(skipped, m)
		default:
			ready = append(ready, m)
		}
	}
	return ready, pending, skipped
}
