// Package promptdef defines the resource data model — Prompt, Gate,
// Methodology, Style, and ChainStep — and their structural/semantic/domain
// validation.
package promptdef

// ArgType enumerates the allowed prompt argument types.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
)

// Argument describes one named input a prompt accepts.
type Argument struct {
	Name        string  `yaml:"name"                  json:"name"`
	Type        ArgType `yaml:"type"                  json:"type"`
	Required    bool    `yaml:"required,omitempty"    json:"required,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	MinLength   *int    `yaml:"minLength,omitempty"   json:"minLength,omitempty"`
	MaxLength   *int    `yaml:"maxLength,omitempty"   json:"maxLength,omitempty"`
	Pattern     string  `yaml:"pattern,omitempty"     json:"pattern,omitempty"`
}

// ConditionalType enumerates chain-step execution conditions.
type ConditionalType string

const (
	CondAlways         ConditionalType = "always"
	CondConditional    ConditionalType = "conditional"
	CondSkipIfError    ConditionalType = "skip_if_error"
	CondSkipIfSuccess  ConditionalType = "skip_if_success"
	CondBranchTo       ConditionalType = "branch_to"
	CondSkipTo         ConditionalType = "skip_to"
)

// ConditionalExecution gates whether a chain step runs.
type ConditionalExecution struct {
	Type       ConditionalType `yaml:"type"                 json:"type"`
	Expression string          `yaml:"expression,omitempty" json:"expression,omitempty"`
	Target     string          `yaml:"target,omitempty"     json:"target,omitempty"` // step id for branch_to/skip_to
}

// ChainStep is one step in a chain prompt's ordered sequence.
type ChainStep struct {
	StepNumber           int                   `yaml:"step_number"               json:"step_number"`
	PromptID             string                `yaml:"prompt_id"                 json:"prompt_id"`
	Args                 map[string]any        `yaml:"args,omitempty"            json:"args,omitempty"`
	InlineGateIDs        []string              `yaml:"inline_gate_ids,omitempty" json:"inline_gate_ids,omitempty"`
	ConditionalExecution *ConditionalExecution `yaml:"conditional_execution,omitempty" json:"conditional_execution,omitempty"`
	Dependencies         []string              `yaml:"dependencies,omitempty"    json:"dependencies,omitempty"`
}

// ScriptTool is a per-prompt script tool definition (contract-level only;
// no subprocess execution is implemented here).
type ScriptTool struct {
	ID              string         `yaml:"id"                         json:"id"`
	Trigger         string         `yaml:"trigger"                    json:"trigger"` // explicit, schema_match, always, never
	Confirm         bool           `yaml:"confirm,omitempty"          json:"confirm,omitempty"`
	Strict          bool           `yaml:"strict,omitempty"           json:"strict,omitempty"`
	Confidence      float64        `yaml:"confidence,omitempty"       json:"confidence,omitempty"`
	ConfirmMessage  string         `yaml:"confirm_message,omitempty"  json:"confirm_message,omitempty"`
	InputSchema     map[string]any `yaml:"input_schema,omitempty"     json:"input_schema,omitempty"`
	TimeoutSeconds  int            `yaml:"timeout_seconds,omitempty"  json:"timeout_seconds,omitempty"`
}

// Prompt is the central resource: a reusable prompt template, optionally a
// chain (when ChainSteps is non-empty).
type Prompt struct {
	ID            string       `yaml:"id"                       json:"id"`
	Name          string       `yaml:"name"                     json:"name"`
	Description   string       `yaml:"description,omitempty"    json:"description,omitempty"`
	Category      string       `yaml:"category,omitempty"       json:"category,omitempty"`
	Template      string       `yaml:"template"                 json:"template"`
	SystemMessage string       `yaml:"system_message,omitempty" json:"system_message,omitempty"`
	Arguments     []Argument   `yaml:"arguments,omitempty"      json:"arguments,omitempty"`
	ChainSteps    []ChainStep  `yaml:"chain_steps,omitempty"    json:"chain_steps,omitempty"`
	ScriptTools   []ScriptTool `yaml:"script_tools,omitempty"   json:"script_tools,omitempty"`
}

// IsChain reports whether this prompt is a multi-step chain.
func (p *Prompt) IsChain() bool { return len(p.ChainSteps) > 0 }

// GateType distinguishes gates that block progression from those that only
// inject guidance.
type GateType string

const (
	GateValidation GateType = "validation"
	GateGuidance   GateType = "guidance"
)

// Activation scopes when a gate applies.
type Activation struct {
	PromptCategories []string `yaml:"prompt_categories,omitempty" json:"prompt_categories,omitempty"`
	FrameworkContext []string `yaml:"framework_context,omitempty" json:"framework_context,omitempty"`
	ExplicitRequest  bool     `yaml:"explicit_request,omitempty"  json:"explicit_request,omitempty"`
}

// RetryConfig bounds a gate's self-review retry loop.
type RetryConfig struct {
	MaxAttempts      int  `yaml:"max_attempts"      json:"max_attempts"`
	PreserveContext  bool `yaml:"preserve_context,omitempty" json:"preserve_context,omitempty"`
}

// Gate is a named validation or guidance check.
type Gate struct {
	ID            string       `yaml:"id"                       json:"id"`
	Name          string       `yaml:"name"                     json:"name"`
	Type          GateType     `yaml:"type"                     json:"type"`
	Guidance      string       `yaml:"guidance,omitempty"       json:"guidance,omitempty"`
	Criteria      []string     `yaml:"criteria,omitempty"       json:"criteria,omitempty"`
	PassCriteria  []string     `yaml:"pass_criteria,omitempty"  json:"pass_criteria,omitempty"`
	Activation    *Activation  `yaml:"activation,omitempty"     json:"activation,omitempty"`
	RetryConfig   *RetryConfig `yaml:"retry_config,omitempty"   json:"retry_config,omitempty"`
	ApplyToSteps  []int        `yaml:"apply_to_steps,omitempty" json:"apply_to_steps,omitempty"`
	Severity      string       `yaml:"severity,omitempty"       json:"severity,omitempty"`
}

// GateSource classifies where a resolved gate id came from; higher Priority
// wins deduplication ties.
type GateSource string

const (
	SourceInlineOperator   GateSource = "inline-operator"
	SourceClientSelection  GateSource = "client-selection"
	SourceTemporaryRequest GateSource = "temporary-request"
	SourcePromptConfig     GateSource = "prompt-config"
	SourceChainLevel       GateSource = "chain-level"
	SourceMethodology      GateSource = "methodology"
	SourceRegistryAuto     GateSource = "registry-auto"
)

// Priority returns the fixed priority for a gate source; higher wins.
func (s GateSource) Priority() int {
	switch s {
	case SourceInlineOperator:
		return 100
	case SourceClientSelection:
		return 90
	case SourceTemporaryRequest:
		return 80
	case SourcePromptConfig:
		return 60
	case SourceChainLevel:
		return 50
	case SourceMethodology:
		return 40
	case SourceRegistryAuto:
		return 20
	default:
		return 0
	}
}

// Methodology is a named "house style": phases + guidance + gates.
type Methodology struct {
	ID                   string            `yaml:"id"                               json:"id"`
	Name                 string            `yaml:"name"                             json:"name"`
	SystemPromptGuidance string            `yaml:"system_prompt_guidance,omitempty" json:"system_prompt_guidance,omitempty"`
	Phases               []string          `yaml:"phases"                           json:"phases"`
	MethodologyGates     []string          `yaml:"methodology_gates"                json:"methodology_gates"`
	ToolDescriptions     map[string]string `yaml:"tool_descriptions,omitempty"       json:"tool_descriptions,omitempty"`
	Enabled              bool              `yaml:"enabled"                          json:"enabled"`
}

// Style is a named guidance block injected independent of methodology
// (e.g. tone, formatting conventions).
type Style struct {
	ID       string `yaml:"id"       json:"id"`
	Name     string `yaml:"name"     json:"name"`
	Guidance string `yaml:"guidance" json:"guidance"`
}
