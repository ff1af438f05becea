package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/pkg/branch"
	"github.com/promptforge/promptforge/pkg/diagnostic"
	"github.com/promptforge/promptforge/pkg/gate"
	"github.com/promptforge/promptforge/pkg/perr"
	"github.com/promptforge/promptforge/pkg/promptdef"
	"github.com/promptforge/promptforge/pkg/resolver"
	"github.com/promptforge/promptforge/pkg/session"
)

// Stage is one ordered step in the Execution Pipeline. A stage that calls
// ctx.SetResponse short-circuits every stage after it, mirroring the
// teacher's executeSteps early-return-on-non-nil-result convention.
type Stage interface {
	Name() string
	Execute(ctx *Context)
}

// Pipeline runs the fixed, ordered 21-stage list of spec §4.1 over one
// Execution Context.
type Pipeline struct {
	stages []Stage
}

// New builds the pipeline with its stages in spec order.
func New() *Pipeline {
	return &Pipeline{stages: []Stage{
		requestNormalization{},
		dependencyInjection{},
		executionLifecycle{},
		commandParsing{},
		inlineGateRegistration{},
		operatorValidation{},
		executionPlanning{},
		scriptExecution{},
		scriptAutoExecute{},
		judgeSelection{},
		gateEnhancement{},
		frameworkResolution{},
		sessionManagement{},
		injectionControl{},
		promptGuidance{},
		responseCapture{},
		stepExecution{},
		gateReview{},
		callToAction{},
		responseFormatting{},
		postFormattingCleanup{},
	}}
}

// Run executes every stage in order against ctx, recovering from any stage
// panic into a diagnostic plus a generic failure response — per spec
// §9's "exceptions/panics convert to typed errors at the stage boundary".
func (p *Pipeline) Run(ctx *Context) *Response {
	for _, stage := range p.stages {
		p.runStage(stage, ctx)
		if ctx.Response != nil {
			return ctx.Response
		}
	}
	if ctx.Response == nil {
		ctx.SetResponse("", false)
	}
	return ctx.Response
}

func (p *Pipeline) runStage(stage Stage, ctx *Context) {
	start := time.Now()
	defer func() {
		ctx.Diagnostics.StageTiming(stage.Name(), time.Since(start), 0)
		if r := recover(); r != nil {
			ctx.Diagnostics.Add(diagnostic.Error, stage.Name(), fmt.Sprintf("stage panicked: %v", r), nil)
			ctx.SetResponse("Internal error: the "+stage.Name()+" stage failed unexpectedly. Please retry.", true)
		}
	}()
	stage.Execute(ctx)
}

// --- 1. Request Normalization ---

type requestNormalization struct{}

func (requestNormalization) Name() string { return "request_normalization" }

// Execute consolidates deprecated single-gate parameters (a bare string,
// or name/description pair) into the single Raw.Gates list; GateSpec
// already models every accepted shape so there is nothing further to
// fold here beyond ensuring the slice is non-nil for later stages.
func (requestNormalization) Execute(ctx *Context) {
	if ctx.Raw.Gates == nil {
		ctx.Raw.Gates = []GateSpec{}
	}
}

// --- 2. Dependency Injection ---

type dependencyInjection struct{}

func (dependencyInjection) Name() string { return "dependency_injection" }

func (dependencyInjection) Execute(ctx *Context) {
	if ctx.Services == nil {
		ctx.SetResponse("Internal error: no services configured.", true)
		return
	}
}

// --- 3. Execution Lifecycle ---

type executionLifecycle struct{}

func (executionLifecycle) Name() string { return "execution_lifecycle" }

func (executionLifecycle) Execute(ctx *Context) {
	ctx.ExecutionID = uuid.NewString()
	ctx.StartTime = time.Now().UTC()
}

// --- 4. Command Parsing ---

type commandParsing struct{}

func (commandParsing) Name() string { return "command_parsing" }

func (commandParsing) Execute(ctx *Context) {
	if ctx.Raw.ChainID != "" {
		// Resuming a chain: command is parsed later from session state,
		// not from Raw.Command (spec §6: "command must be omitted").
		if ctx.Raw.Command != "" {
			ctx.SetResponse(perr.New(perr.Conflict, "both chain_id and command were given").
				WithHint("when resuming a chain, omit command and pass only chain_id/user_response").Error(), true)
		}
		return
	}

	cmd, err := ParseCommand(ctx.Raw.Command)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return
	}
	ctx.Parsed = cmd
}

// --- 5. Inline Gate Registration ---

type inlineGateRegistration struct{}

func (inlineGateRegistration) Name() string { return "inline_gate_registration" }

func (inlineGateRegistration) Execute(ctx *Context) {
	for _, g := range ctx.Parsed.InlineGates {
		ctx.TemporaryGates[g.ID] = g
		ctx.Gates.Add(g.ID, promptdef.SourceInlineOperator)
	}
	for _, gs := range ctx.Raw.Gates {
		registerGateSpec(ctx, gs)
	}
}

func registerGateSpec(ctx *Context, gs GateSpec) {
	switch {
	case gs.Full != nil:
		ctx.TemporaryGates[gs.Full.ID] = *gs.Full
		ctx.Gates.Add(gs.Full.ID, promptdef.SourceTemporaryRequest)
	case gs.Name != "":
		id := "quick-" + strings.ToLower(strings.ReplaceAll(gs.Name, " ", "-"))
		ctx.TemporaryGates[id] = promptdef.Gate{
			ID:       id,
			Name:     gs.Name,
			Type:     promptdef.GateValidation,
			Severity: "medium",
			Criteria: []string{gs.Description},
		}
		ctx.Gates.Add(id, promptdef.SourceTemporaryRequest)
	case gs.ID != "":
		ctx.Gates.Add(gs.ID, promptdef.SourceClientSelection)
	}
}

// --- 6. Operator Validation ---

type operatorValidation struct{}

func (operatorValidation) Name() string { return "operator_validation" }

func (operatorValidation) Execute(ctx *Context) {
	id := ctx.Parsed.Modifiers.OperatorFramework
	if id == "" {
		return
	}
	m, ok := ctx.Services.Methodologies.Get(id)
	if !ok || !m.Enabled {
		ctx.SetResponse(perr.New(perr.Resolution, "@%s does not resolve to an enabled methodology", id).
			WithHint("check system_control framework list for enabled methodology ids").Error(), true)
	}
}

// --- 7. Execution Planning ---

type executionPlanning struct{}

func (executionPlanning) Name() string { return "execution_planning" }

func (executionPlanning) Execute(ctx *Context) {
	if ctx.Raw.ChainID != "" {
		ctx.Plan = Plan{Strategy: StrategyChain, RequiresSession: true}
		ctx.SessionID = ctx.Raw.ChainID
		return
	}

	prompt, ok := ctx.Services.Prompts.Get(ctx.Parsed.PromptID)
	if !ok {
		ctx.SetResponse(perr.New(perr.Resolution, "unknown prompt_id %q", ctx.Parsed.PromptID).Error(), true)
		return
	}
	ctx.ResolvedPrompt = &prompt

	if prompt.IsChain() {
		ctx.Plan = Plan{Strategy: StrategyChain, RequiresSession: true}
		ctx.SessionID = "chain-" + prompt.ID
		return
	}
	ctx.Plan = Plan{Strategy: StrategyPrompt}
}

// --- 8. Script Execution (contract-level; see pkg/pipeline/script.go) ---

type scriptExecution struct{}

func (scriptExecution) Name() string { return "script_execution" }

func (scriptExecution) Execute(ctx *Context) {
	if ctx.ResolvedPrompt == nil || len(ctx.ResolvedPrompt.ScriptTools) == 0 {
		return
	}
	matches := DetectMatches(ctx.ResolvedPrompt.ScriptTools, ctx.Parsed.Args)
	ready, pending, skipped := Partition(matches)
	ctx.Diagnostics.Add(diagnostic.Debug, "script_execution", "script tool partition", map[string]any{
		"ready":   len(ready),
		"pending": len(pending),
		"skipped": len(skipped),
	})
	// Actual subprocess dispatch is out of scope (spec §1 non-goal); the
	// partition result is recorded for system_control analytics/tests.
}

// --- 9. Script Auto-Execute ---

type scriptAutoExecute struct{}

func (scriptAutoExecute) Name() string { return "script_auto_execute" }

func (scriptAutoExecute) Execute(ctx *Context) {
	// No script runner produces auto_execute continuations without actual
	// subprocess execution (stage 8's contract-only posture); no-op by
	// construction until a ScriptRunner is wired that returns one.
}

// --- 10. Judge Selection ---

type judgeSelection struct{}

func (judgeSelection) Name() string { return "judge_selection" }

func (judgeSelection) Execute(ctx *Context) {
	if !ctx.Parsed.Modifiers.Judge || ctx.ResolvedPrompt == nil {
		return
	}
	// This stage only records a debug diagnostic; it does not select or
	// add any gates. The %judge flag is read again by Gate Enhancement
	// (stage 11), which treats the client-selected gate ids as explicitly
	// requested.
	if ctx.ResolvedPrompt.Category != "" {
		ctx.Diagnostics.Debugf("judge_selection", "judge mode requested for category "+ctx.ResolvedPrompt.Category)
	}
}

// --- 11. Gate Enhancement ---

type gateEnhancement struct{}

func (gateEnhancement) Name() string { return "gate_enhancement" }

func (gateEnhancement) Execute(ctx *Context) {
	if ctx.ResolvedPrompt != nil {
		for _, id := range promptGateIDs(ctx.ResolvedPrompt) {
			ctx.Gates.Add(id, promptdef.SourcePromptConfig)
		}
	}

	actx := gate.ActivationContext{
		ExplicitRequest: map[string]bool{},
	}
	if ctx.ResolvedPrompt != nil {
		actx.PromptCategory = ctx.ResolvedPrompt.Category
	}
	if ctx.Parsed.Modifiers.Judge {
		for _, c := range ctx.Raw.Gates {
			if c.ID != "" {
				actx.ExplicitRequest[c.ID] = true
			}
		}
	}
	ctx.ResolvedGates = ctx.Gates.Resolve(ctx.gateLookup(), actx, ctx.Diagnostics)
}

func promptGateIDs(p *promptdef.Prompt) []string {
	var ids []string
	for _, step := range p.ChainSteps {
		ids = append(ids, step.InlineGateIDs...)
	}
	return ids
}

// --- 12. Framework Resolution ---

type frameworkResolution struct{}

func (frameworkResolution) Name() string { return "framework_resolution" }

func (frameworkResolution) Execute(ctx *Context) {
	clientOverride := ""
	if v, ok := ctx.Raw.Options["framework"]; ok {
		clientOverride = fmt.Sprint(v)
	}
	ctx.Framework = FrameworkAuthority{}.Decide(
		ctx.Parsed.Modifiers, clientOverride, ctx.Services.GlobalActive, ctx.Services.ActiveFramework)

	if ctx.Framework.ShouldApply {
		actx := gate.ActivationContext{FrameworkID: ctx.Framework.FrameworkID, ExplicitRequest: map[string]bool{}}
		if ctx.ResolvedPrompt != nil {
			actx.PromptCategory = ctx.ResolvedPrompt.Category
		}
		if m, ok := ctx.Services.Methodologies.Get(ctx.Framework.FrameworkID); ok {
			ctx.Gates.AddAll(m.MethodologyGates, promptdef.SourceMethodology)
		}
		ctx.ResolvedGates = ctx.Gates.Resolve(ctx.gateLookup(), actx, ctx.Diagnostics)
	}
}

// --- 13. Session Management ---

type sessionManagement struct{}

func (sessionManagement) Name() string { return "session_management" }

func (sessionManagement) Execute(ctx *Context) {
	if ctx.Plan.Strategy != StrategyChain {
		return
	}

	if ctx.Raw.ForceRestart && ctx.Raw.ChainID != "" {
		ctx.SetResponse(perr.New(perr.Conflict, "force_restart=true given together with chain_id").
			WithHint("force_restart starts a fresh chain; omit chain_id, or resume without force_restart").Error(), true)
		return
	}

	if ctx.Raw.ChainID != "" {
		s, ok := ctx.Services.Sessions.GetSession(ctx.Raw.ChainID)
		if !ok {
			ctx.SetResponse(perr.New(perr.Session, "unknown session %q", ctx.Raw.ChainID).
				WithHint("the session may have expired or never started; omit chain_id to start a new chain").Error(), true)
			return
		}
		ctx.Session = s
		ctx.SessionID = ctx.Raw.ChainID
		return
	}

	totalSteps := len(ctx.ResolvedPrompt.ChainSteps)
	s, err := ctx.Services.Sessions.CreateSession(ctx.SessionID, ctx.ResolvedPrompt.ID, totalSteps, ctx.ResolvedPrompt, ctx.Raw.ForceRestart)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return
	}
	ctx.Session = s
}

// --- 14. Injection Control ---

type injectionControl struct{}

func (injectionControl) Name() string { return "injection_control" }

// injectionFrequency decides whether an injection type fires on the
// current step, per spec §4.1 stage 14's every{n}/first-only/never rule.
type injectionFrequency string

const (
	freqEvery      injectionFrequency = "every"
	freqFirstOnly  injectionFrequency = "first-only"
	freqNever      injectionFrequency = "never"
)

func shouldInject(freq injectionFrequency, everyN, currentStep int) bool {
	switch freq {
	case freqNever:
		return false
	case freqFirstOnly:
		return currentStep <= 1
	case freqEvery:
		if everyN <= 1 {
			return true
		}
		return (currentStep-1)%everyN == 0
	default:
		return true
	}
}

func (injectionControl) Execute(ctx *Context) {
	step := ctx.CurrentStepNumber
	if step == 0 {
		step = 1
	}
	ctx.Diagnostics.Add(diagnostic.Debug, "injection_control", "injection decisions", map[string]any{
		"system_prompt":  shouldInject(freqFirstOnly, 0, step),
		"gate_guidance":  shouldInject(freqEvery, 1, step),
		"style_guidance": shouldInject(freqEvery, 1, step),
	})
}

// --- 15. Prompt Guidance ---

type promptGuidance struct{}

func (promptGuidance) Name() string { return "prompt_guidance" }

func (promptGuidance) Execute(ctx *Context) {
	if styleID, ok := ctx.Raw.Options["style"]; ok && ctx.Services.Styles != nil {
		if style, found := ctx.Services.Styles.Get(fmt.Sprint(styleID)); found {
			ctx.Diagnostics.Add(diagnostic.Info, "prompt_guidance", "style guidance attached", map[string]any{
				"style_id": style.ID,
			})
		}
	}

	if !ctx.Framework.ShouldApply {
		return
	}
	m, ok := ctx.Services.Methodologies.Get(ctx.Framework.FrameworkID)
	if !ok || m.SystemPromptGuidance == "" {
		return
	}

	guidance := m.SystemPromptGuidance
	if ctx.Framework.Minimal {
		guidance = leanGuidance(guidance)
		ctx.Diagnostics.Add(diagnostic.Info, "prompt_guidance", "methodology guidance attached (lean)", map[string]any{
			"framework_id": m.ID,
			"guidance":     guidance,
		})
		return
	}
	ctx.Diagnostics.Add(diagnostic.Info, "prompt_guidance", "methodology guidance attached", map[string]any{
		"framework_id": m.ID,
		"guidance":     guidance,
	})
}

// leanGuidance reduces a methodology's full system_prompt_guidance to its
// first sentence, per %lean's "minimizes framework guidance" (spec §4.2)
// — the framework still applies, it just stops short of injecting the
// full guidance block.
func leanGuidance(guidance string) string {
	if i := strings.IndexByte(guidance, '.'); i >= 0 {
		return strings.TrimSpace(guidance[:i+1])
	}
	return guidance
}

// --- 16. Response Capture ---

type responseCapture struct{}

func (responseCapture) Name() string { return "response_capture" }

func (responseCapture) Execute(ctx *Context) {
	if ctx.Plan.Strategy != StrategyChain || ctx.Session == nil {
		return
	}
	chainCtx, err := ctx.Services.Sessions.GetChainContext(ctx.SessionID)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return
	}
	ctx.ChainCtx = chainCtx
	ctx.PreviousStepOutput = chainCtx.Input
	ctx.CurrentStepNumber = chainCtx.CurrentStep + 1
}

// --- 17. Step Execution ---

type stepExecution struct{}

func (stepExecution) Name() string { return "step_execution" }

func (stepExecution) Execute(ctx *Context) {
	if ctx.Response != nil {
		return
	}
	// A session awaiting a gate verdict has nothing new to render this
	// request — Gate Review (stage 18) owns advancing and re-rendering
	// once the verdict is resolved.
	if ctx.Session != nil && ctx.Session.Suspended() {
		return
	}

	prompt, args, ok := resolveActiveStep(ctx)
	if !ok {
		return
	}
	renderAndSet(ctx, prompt, args)
}

// renderAndSet validates args, pre-resolves references, renders the
// template, and (for chain steps) persists the rendered step's args and
// lifecycle state. It sets ctx.Response on failure.
func renderAndSet(ctx *Context, prompt *promptdef.Prompt, args map[string]any) bool {
	if err := validateArguments(prompt, args); err != nil {
		ctx.SetResponse(formatError(err), true)
		return false
	}

	lookup := promptTemplateLookup{prompts: ctx.Services.Prompts}
	tmpl, _, err := resolver.Resolve(prompt.Template, lookup, ctx.Services.Scripts, resolver.Options{
		ContextArgs: args,
	})
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return false
	}

	vars := make(map[string]any, len(args)+2)
	for k, v := range args {
		vars[k] = v
	}
	vars["input"] = ctx.PreviousStepOutput
	vars["previous_step_result"] = ctx.PreviousStepOutput

	rendered, err := renderTemplate(tmpl, vars)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return false
	}
	ctx.RenderedPrompt = rendered

	if ctx.Plan.Strategy == StrategyChain && ctx.Session != nil {
		_ = ctx.Services.Sessions.SetStepArgs(ctx.SessionID, ctx.CurrentStepNumber, args)
		_ = ctx.Services.Sessions.SetStepState(ctx.SessionID, ctx.CurrentStepNumber, session.StepRendered, false)
	}
	return true
}

// resolveActiveStep picks which prompt+args render this request: the
// chain's current step prompt, or the directly-addressed single prompt.
func resolveActiveStep(ctx *Context) (*promptdef.Prompt, map[string]any, bool) {
	if ctx.Plan.Strategy != StrategyChain {
		return ctx.ResolvedPrompt, ctx.Parsed.Args, ctx.ResolvedPrompt != nil
	}

	chainPrompt, ok := ctx.Services.Prompts.Get(ctx.Session.ChainID)
	if !ok {
		ctx.SetResponse(perr.New(perr.Resolution, "chain prompt %q no longer resolves", ctx.Session.ChainID).Error(), true)
		return nil, nil, false
	}

	step := findStep(chainPrompt.ChainSteps, ctx.CurrentStepNumber)
	if step == nil {
		ctx.SetResponse(perr.New(perr.Resolution, "chain %q has no step %d", ctx.Session.ChainID, ctx.CurrentStepNumber).Error(), true)
		return nil, nil, false
	}

	stepPrompt, ok := ctx.Services.Prompts.Get(step.PromptID)
	if !ok {
		ctx.SetResponse(perr.New(perr.Resolution, "step prompt %q no longer resolves", step.PromptID).Error(), true)
		return nil, nil, false
	}

	if step.ConditionalExecution != nil {
		env := branchEnv(ctx)
		last := branch.LastStep{Success: true}
		decision := branch.Decide(branch.ConditionalType(step.ConditionalExecution.Type), step.ConditionalExecution.Expression, step.ConditionalExecution.Target, env, last)
		if !decision.Run {
			ctx.Diagnostics.Infof("step_execution", decision.Diagnostic)
			_ = ctx.Services.Sessions.CompleteStep(ctx.SessionID, ctx.CurrentStepNumber, "", true)
			ctx.SetResponse("", false)
			return nil, nil, false
		}
	}

	args := make(map[string]any, len(step.Args))
	for k, v := range step.Args {
		args[k] = v
	}
	if _, ok := args["input"]; !ok {
		args["input"] = ctx.PreviousStepOutput
	}
	return &stepPrompt, args, true
}

func findStep(steps []promptdef.ChainStep, n int) *promptdef.ChainStep {
	for i := range steps {
		if steps[i].StepNumber == n {
			return &steps[i]
		}
	}
	return nil
}

func branchEnv(ctx *Context) branch.Env {
	steps := make(map[string]branch.StepResult, len(ctx.ChainCtx.StepResults))
	for n, result := range ctx.ChainCtx.StepResults {
		steps[strconv.Itoa(n)] = branch.StepResult{Result: result, Success: true}
	}
	return branch.Env{Steps: steps, Vars: ctx.ChainCtx.ChainMetadata}
}

// --- 18. Gate Review ---

type gateReview struct{}

func (gateReview) Name() string { return "gate_review" }

// On a PASS verdict, the step to complete is ctx.ChainCtx.CurrentStep —
// the step under review when this request arrived — not
// ctx.CurrentStepNumber, which responseCapture already bumped to the
// step that would render *if nothing were pending* (spec §4.2's
// resumption protocol: set_step_state(current_step, completed, ...) then
// advance, operating on current_step as found, not current_step+1).

func (gateReview) Execute(ctx *Context) {
	if ctx.Response != nil || ctx.Plan.Strategy != StrategyChain || ctx.Session == nil {
		return
	}

	pending, hasPending, err := ctx.Services.Sessions.GetPendingGateReview(ctx.SessionID)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return
	}

	if ctx.Raw.GateVerdict != "" {
		if !hasPending {
			ctx.SetResponse(perr.New(perr.Gate, "gate_verdict given but no gate review is pending for this session").Error(), true)
			return
		}
		v, err := gate.ParseVerdict(ctx.Raw.GateVerdict)
		if err != nil {
			ctx.SetResponse(formatError(err), true)
			return
		}
		next, nextPR := gate.Transition(pending.PendingReview, v)
		switch next {
		case gate.StatePass:
			_ = ctx.Services.Sessions.ClearPendingGateReview(ctx.SessionID)
			_ = ctx.Services.Sessions.CompleteStep(ctx.SessionID, ctx.ChainCtx.CurrentStep, ctx.Raw.UserResponse, false)
			ctx.Diagnostics.Add(diagnostic.Info, "gate_review", "gate passed", map[string]any{"gate_id": pending.GateID, "reason": v.Reason})
			advanceAndRenderNextStep(ctx)
		case gate.StateFailRetry:
			_ = ctx.Services.Sessions.SetPendingGateReview(ctx.SessionID, &session.PendingGateReview{PendingReview: nextPR, Prompt: ctx.RenderedPrompt})
			ctx.Diagnostics.Add(diagnostic.Warn, "gate_review", "gate failed, retrying", map[string]any{"gate_id": pending.GateID, "attempt": nextPR.Attempt})
			ctx.SetResponse(retryHintText(pending.GateID, v.Reason, nextPR.Attempt, nextPR.MaxAttempts), false)
		case gate.StateFailExceeded:
			if ctx.Raw.GateAction == "" {
				ctx.SetResponse(gateExceededText(pending.GateID, nextPR), false)
				return
			}
			resolved, resolvedPR, rerr := gate.Resolve(nextPR, gate.GateAction(ctx.Raw.GateAction))
			if rerr != nil {
				ctx.SetResponse(formatError(rerr), true)
				return
			}
			switch resolved {
			case gate.StatePass:
				_ = ctx.Services.Sessions.ClearPendingGateReview(ctx.SessionID)
				_ = ctx.Services.Sessions.CompleteStep(ctx.SessionID, ctx.ChainCtx.CurrentStep, ctx.Raw.UserResponse, false)
				advanceAndRenderNextStep(ctx)
			case gate.StatePendingReview:
				_ = ctx.Services.Sessions.SetPendingGateReview(ctx.SessionID, &session.PendingGateReview{PendingReview: resolvedPR, Prompt: ctx.RenderedPrompt})
			case gate.StateFailExceeded:
				ctx.Services.Sessions.ClearSession(ctx.SessionID)
				ctx.SetResponse("Chain aborted: gate "+pending.GateID+" exceeded its retry budget.", true)
			}
		}
		return
	}

	if hasPending {
		ctx.SetResponse(pending.Prompt, false)
	}
}

func retryHintText(gateID, reason string, attempt, max int) string {
	return fmt.Sprintf("Gate %s failed (%s). Attempt %d of %d — please retry with the feedback addressed.", gateID, reason, attempt, max)
}

func gateExceededText(gateID string, pr gate.PendingReview) string {
	return fmt.Sprintf("Gate %s has failed %d times and exceeded its retry budget. Pass gate_action=retry|skip|abort to continue.", gateID, pr.Attempt)
}

// advanceAndRenderNextStep re-reads chain context after a gate pass and
// renders whichever step is now current — the caller (gate_review) has
// just completed the previously-pending step, so the response for this
// single request carries the next step's rendered prompt, per S2.
func advanceAndRenderNextStep(ctx *Context) {
	chainCtx, err := ctx.Services.Sessions.GetChainContext(ctx.SessionID)
	if err != nil {
		ctx.SetResponse(formatError(err), true)
		return
	}
	ctx.ChainCtx = chainCtx
	ctx.PreviousStepOutput = chainCtx.Input
	ctx.CurrentStepNumber = chainCtx.CurrentStep + 1

	if ctx.CurrentStepNumber > chainCtx.TotalSteps {
		ctx.RenderedPrompt = "Chain complete."
		return
	}

	prompt, args, ok := resolveActiveStep(ctx)
	if !ok {
		return
	}
	renderAndSet(ctx, prompt, args)
}

// --- 19. Call to Action ---

type callToAction struct{}

func (callToAction) Name() string { return "call_to_action" }

func (callToAction) Execute(ctx *Context) {
	if ctx.Response != nil || ctx.Plan.Strategy != StrategyChain {
		return
	}
	if ctx.CurrentStepNumber > ctx.ChainCtx.TotalSteps {
		return // chain already completed; nothing further to act on
	}
	if ctx.CurrentStepNumber < ctx.ChainCtx.TotalSteps {
		ctx.RenderedPrompt += fmt.Sprintf("\n\n--- Step %d of %d. Reply with user_response to continue. ---", ctx.CurrentStepNumber, ctx.ChainCtx.TotalSteps)
	} else {
		ctx.RenderedPrompt += "\n\n--- Final step. Reply with user_response to complete the chain. ---"
	}
}

// --- 20. Response Formatting ---

type responseFormatting struct{}

func (responseFormatting) Name() string { return "response_formatting" }

func (responseFormatting) Execute(ctx *Context) {
	if ctx.Response != nil {
		return
	}
	resp := &Response{Text: ctx.RenderedPrompt}
	if ctx.Plan.Strategy == StrategyChain {
		resp.Chain = &ChainMeta{
			SessionID:   ctx.SessionID,
			CurrentStep: ctx.CurrentStepNumber,
			TotalSteps:  ctx.ChainCtx.TotalSteps,
			Suspended:   ctx.Session != nil && ctx.Session.Suspended(),
		}
	}
	ctx.Response = resp
}

// --- 21. Post-Formatting Cleanup ---

type postFormattingCleanup struct{}

func (postFormattingCleanup) Name() string { return "post_formatting_cleanup" }

func (postFormattingCleanup) Execute(ctx *Context) {
	ctx.TemporaryGates = nil
}

// formatError renders an error for direct display in a tool response.
// *perr.Error carries its hint in Error() already; RetryCommand is a
// separate ready-to-paste suggestion the teacher's Error() method never
// folds in, so it's appended here for the one place users actually see it.
func formatError(err error) string {
	pe, ok := err.(*perr.Error)
	if !ok {
		return err.Error()
	}
	text := pe.Error()
	if pe.RetryCommand != "" {
		text += "\nRetry: " + pe.RetryCommand
	}
	return text
}
