// Package pipeline implements the Execution Pipeline: the ordered,
// 21-stage dispatcher that turns one prompt_engine request into a
// response, carrying a single ephemeral Execution Context through every
// stage. Stage short-circuiting and the diagnostic/gate accumulators
// mirror the teacher's "non-nil *RunResult stops the walk" convention in
// pkg/kernel/engine/engine.go, generalized from a runbook step tree to a
// fixed ordered stage list.
package pipeline

import (
	"time"

	"github.com/promptforge/promptforge/pkg/diagnostic"
	"github.com/promptforge/promptforge/pkg/gate"
	"github.com/promptforge/promptforge/pkg/promptdef"
	"github.com/promptforge/promptforge/pkg/resolver"
	"github.com/promptforge/promptforge/pkg/session"
)

// GateSpec is one element of the prompt_engine `gates` parameter — a
// registered id, a quick gate, or a full inline definition, per spec §6.
type GateSpec struct {
	ID          string
	Name        string
	Description string
	Full        *promptdef.Gate
}

// RawRequest is the prompt_engine tool call's parameters, unmodified.
type RawRequest struct {
	Command      string
	ChainID      string
	UserResponse string
	ForceRestart bool
	GateAction   string
	GateVerdict  string
	Gates        []GateSpec
	Options      map[string]any
}

// PromptLookup resolves prompts by id, and satisfies resolver.PromptLookup
// for reference pre-resolution.
type PromptLookup interface {
	Get(id string) (promptdef.Prompt, bool)
}

// MethodologyLookup resolves methodologies by id.
type MethodologyLookup interface {
	Get(id string) (promptdef.Methodology, bool)
	Snapshot() map[string]promptdef.Methodology
}

// StyleLookup resolves styles by id.
type StyleLookup interface {
	Get(id string) (promptdef.Style, bool)
}

// GateLookup resolves gates by id, satisfying gate.Lookup.
type GateLookup interface {
	Gate(id string) (promptdef.Gate, bool)
}

// Services bundles every injected collaborator the pipeline needs. A
// single Services value is shared read-only across concurrent requests;
// nothing in it is mutated by a stage.
type Services struct {
	Prompts       PromptLookup
	Methodologies MethodologyLookup
	Styles        StyleLookup
	Gates         GateLookup
	Sessions      *session.Manager
	Scripts       resolver.ScriptRunner // nil is valid: no script tools wired
	GlobalActive  bool                  // global "framework system enabled" flag
	ActiveFramework string              // process-wide active framework, if any
}

// Strategy is the execution plan's chosen path.
type Strategy string

const (
	StrategyPrompt   Strategy = "prompt"
	StrategyTemplate Strategy = "template"
	StrategyChain    Strategy = "chain"
)

// Plan is the output of Execution Planning (stage 7).
type Plan struct {
	Strategy        Strategy
	RequiresSession bool
}

// FrameworkDecision is the Framework Decision Authority's immutable
// output for this request.
type FrameworkDecision struct {
	FrameworkID  string
	ShouldApply  bool
	Minimal      bool   // %lean — apply the framework but minimize its guidance
	SourceTag    string // which priority tier decided it, for diagnostics
}

// Response is the final payload the pipeline produces.
type Response struct {
	Text    string
	IsError bool
	Chain   *ChainMeta
}

// ChainMeta is the structured metadata a chain step response carries.
type ChainMeta struct {
	SessionID   string
	CurrentStep int
	TotalSteps  int
	Suspended   bool
}

// Context is the ephemeral, per-request Execution Context. It is created
// at request entry and discarded at response emission — nothing in it
// outlives one prompt_engine call.
type Context struct {
	Raw       RawRequest
	Services  *Services

	ExecutionID string
	StartTime   time.Time

	Parsed          Command
	TemporaryGates  map[string]promptdef.Gate
	Gates           *gate.Accumulator
	Diagnostics     *diagnostic.Accumulator
	ResolvedGates   []gate.ResolvedGate

	Framework FrameworkDecision
	Plan      Plan

	ResolvedPrompt    *promptdef.Prompt
	CurrentStepNumber int
	SessionID         string
	Session           *session.Session
	ChainCtx          session.ChainContext

	RenderedPrompt      string
	PreviousStepOutput  string

	Response *Response
}

// NewContext builds a fresh Execution Context for one request.
func NewContext(raw RawRequest, services *Services) *Context {
	return &Context{
		Raw:            raw,
		Services:       services,
		StartTime:      time.Now().UTC(),
		TemporaryGates: make(map[string]promptdef.Gate),
		Gates:          gate.NewAccumulator(),
		Diagnostics:    diagnostic.New(),
	}
}

// SetResponse short-circuits remaining stages.
func (c *Context) SetResponse(text string, isError bool) {
	c.Response = &Response{Text: text, IsError: isError}
}

// gateLookupAdapter resolves against both the registry and this
// request's temporary (inline/client-supplied) gate store, temporary
// store taking precedence since it always carries the highest-priority
// sources.
type gateLookupAdapter struct {
	registry  GateLookup
	temporary map[string]promptdef.Gate
}

func (a gateLookupAdapter) Gate(id string) (promptdef.Gate, bool) {
	if g, ok := a.temporary[id]; ok {
		return g, true
	}
	if a.registry != nil {
		return a.registry.Gate(id)
	}
	return promptdef.Gate{}, false
}

func (c *Context) gateLookup() gate.Lookup {
	return gateLookupAdapter{registry: c.Services.Gates, temporary: c.TemporaryGates}
}

type promptTemplateLookup struct {
	prompts PromptLookup
}

func (p promptTemplateLookup) Template(id string) (string, bool) {
	prompt, ok := p.prompts.Get(id)
	if !ok {
		return "", false
	}
	return prompt.Template, true
}
