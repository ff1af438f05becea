package pipeline

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/promptforge/promptforge/pkg/perr"
	"github.com/promptforge/promptforge/pkg/promptdef"
)

// ModifierSet is the set of `%`-prefixed and `@`-prefixed modifiers
// recognized on a command, per spec §4.1 stage 4 and §6.
type ModifierSet struct {
	Clean            bool   // %clean — disables framework injection
	Lean             bool   // %lean — minimizes framework guidance
	ForcedFramework  string // %framework:<id> — forces a methodology
	OperatorFramework string // @<Framework> override
	Judge            bool   // %judge — select evaluation gates
}

// Command is the parsed shape of a prompt_engine `command` string, per
// spec §4.1 stage 4.
type Command struct {
	PromptID      string
	Args          map[string]any
	Modifiers     ModifierSet
	InlineGates   []promptdef.Gate // synthesized from ::"criteria" tokens
	Repetition    int              // from `* N`; 0 or 1 means no repetition
	Confidence    float64
}

var (
	symbolicPrefixRe = regexp.MustCompile(`^(?:>>|/)([A-Za-z0-9_\-/]+)\s*(.*)$`)
	kvArgRe          = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=('[^']*'|"[^"]*"|\S+)`)
	inlineGateRe     = regexp.MustCompile(`::\s*"([^"]*)"`)
	operatorRe       = regexp.MustCompile(`@([A-Za-z0-9_\-]+)`)
	repetitionRe     = regexp.MustCompile(`\*\s*(\d+)\b`)
)

// ParseCommand resolves the raw command string into a Command, per spec
// §4.1 stage 4's three recognized formats: symbolic (`>>id key="val"`),
// a JSON object, or a bare key=value list.
func ParseCommand(raw string) (Command, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Command{}, perr.New(perr.Validation, "empty command")
	}

	if strings.HasPrefix(raw, "{") {
		return parseJSONCommand(raw)
	}
	if m := symbolicPrefixRe.FindStringSubmatch(raw); m != nil {
		return parseSymbolicCommand(raw, m[1], m[2])
	}
	return parseKeyValueCommand(raw)
}

func parseJSONCommand(raw string) (Command, error) {
	var doc struct {
		PromptID string         `json:"prompt_id"`
		Args     map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Command{}, perr.Wrap(perr.Validation, err, "invalid JSON command")
	}
	if doc.PromptID == "" {
		return Command{}, perr.New(perr.Validation, "JSON command missing prompt_id")
	}
	return Command{PromptID: doc.PromptID, Args: doc.Args, Confidence: 1.0}, nil
}

func parseSymbolicCommand(raw, promptID, rest string) (Command, error) {
	cmd := Command{PromptID: promptID, Confidence: 1.0}

	gates, rest := extractInlineGates(rest)
	cmd.InlineGates = gates

	mods, rest, err := extractModifiers(rest)
	if err != nil {
		return Command{}, err
	}
	cmd.Modifiers = mods

	if m := repetitionRe.FindStringSubmatch(rest); m != nil {
		n, _ := strconv.Atoi(m[1])
		cmd.Repetition = n
		rest = repetitionRe.ReplaceAllString(rest, "")
	}

	cmd.Args = extractKVArgs(rest)
	return cmd, nil
}

func parseKeyValueCommand(raw string) (Command, error) {
	gates, rest := extractInlineGates(raw)
	mods, rest, err := extractModifiers(rest)
	if err != nil {
		return Command{}, err
	}
	args := extractKVArgs(rest)
	if len(args) == 0 && len(gates) == 0 {
		return Command{}, perr.New(perr.Validation, "unrecognized command %q", raw).
			WithHint("every step needs a prompt-id prefix (>> or /), a JSON object, or key=value args")
	}
	return Command{Args: args, InlineGates: gates, Modifiers: mods, Confidence: 0.5}, nil
}

// extractInlineGates pulls ::"criteria" tokens out of s, synthesizing a
// gate definition per match with a deterministic id, per spec §4.1
// stage 5 / §3's inline-operator source.
func extractInlineGates(s string) ([]promptdef.Gate, string) {
	matches := inlineGateRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, s
	}
	var gates []promptdef.Gate
	for i, m := range matches {
		gates = append(gates, promptdef.Gate{
			ID:       synthesizedGateID(i, m[1]),
			Name:     "inline criteria",
			Type:     promptdef.GateValidation,
			Criteria: []string{m[1]},
		})
	}
	return gates, inlineGateRe.ReplaceAllString(s, "")
}

func synthesizedGateID(i int, criteria string) string {
	h := 0
	for _, r := range criteria {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return "inline-" + strconv.Itoa(i) + "-" + strconv.Itoa(h%100000)
}

// extractModifiers pulls %clean/%lean/%framework:<id>/%judge and the
// @operator override out of s. %clean together with %framework or
// @operator is a conflict error, as are %framework and @operator naming
// different frameworks (naming the same one is accepted), per spec §4.1
// stage 4: "conflicting modifiers are errors".
func extractModifiers(s string) (ModifierSet, string, error) {
	var mods ModifierSet

	if strings.Contains(s, "%clean") {
		mods.Clean = true
		s = strings.ReplaceAll(s, "%clean", "")
	}
	if strings.Contains(s, "%lean") {
		mods.Lean = true
		s = strings.ReplaceAll(s, "%lean", "")
	}
	if strings.Contains(s, "%judge") {
		mods.Judge = true
		s = strings.ReplaceAll(s, "%judge", "")
	}
	if idx := strings.Index(s, "%framework:"); idx >= 0 {
		rest := s[idx+len("%framework:"):]
		id := firstToken(rest)
		mods.ForcedFramework = id
		s = strings.Replace(s, "%framework:"+id, "", 1)
	}
	if m := operatorRe.FindStringSubmatch(s); m != nil {
		mods.OperatorFramework = m[1]
		s = operatorRe.ReplaceAllString(s, "")
	}

	if mods.Clean && (mods.ForcedFramework != "" || mods.OperatorFramework != "") {
		return ModifierSet{}, "", perr.New(perr.Validation, "conflicting modifiers: %%clean disables the framework but a framework override was also given")
	}
	if mods.ForcedFramework != "" && mods.OperatorFramework != "" && mods.ForcedFramework != mods.OperatorFramework {
		return ModifierSet{}, "", perr.New(perr.Validation, "conflicting modifiers: %%framework:%s vs @%s", mods.ForcedFramework, mods.OperatorFramework)
	}
	return mods, s, nil
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexAny(s, " \t")
	if end < 0 {
		return s
	}
	return s[:end]
}

// extractKVArgs parses `key="val" key2=42 key3=true` into a typed map.
func extractKVArgs(s string) map[string]any {
	matches := kvArgRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	args := make(map[string]any, len(matches))
	for _, m := range matches {
		args[m[1]] = parseArgLiteral(m[2])
	}
	return args
}

func parseArgLiteral(raw string) any {
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
