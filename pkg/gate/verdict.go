package gate

import (
	"regexp"
	"strings"

	"github.com/promptforge/promptforge/pkg/perr"
)

// Verdict is a parsed self-review gate_verdict string.
type Verdict struct {
	Pass   bool
	Reason string
}

const canonicalGrammar = `GATE_REVIEW: PASS|FAIL - <reason>`

// verdictRe accepts every flexible form spec §4.3 lists:
//
//	GATE_REVIEW: PASS - reason
//	GATE_REVIEW: FAIL: reason
//	GATE PASS - reason
//	PASS - reason
//
// Group 1 is the prefix (optional "GATE_REVIEW" or "GATE"), group 2 is the
// PASS/FAIL token, group 3 is the reason. A ":" or "-" separator between
// the token and the reason is required and is not captured.
var verdictRe = regexp.MustCompile(`(?i)^\s*(?:(GATE_REVIEW|GATE)\s*:?\s+)?(PASS|FAIL)\s*[:\-]\s*(.*)$`)

// ParseVerdict parses a gate_verdict string per the flexible grammar of
// spec §4.3. Anything that doesn't match returns a Validation/Gate error
// quoting the canonical grammar back to the caller.
func ParseVerdict(s string) (Verdict, error) {
	m := verdictRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Verdict{}, perr.New(perr.Gate, "unrecognized gate verdict %q", s).
			WithHint("expected grammar: " + canonicalGrammar)
	}
	reason := strings.TrimSpace(m[3])
	return Verdict{
		Pass:   strings.EqualFold(m[2], "PASS"),
		Reason: reason,
	}, nil
}
