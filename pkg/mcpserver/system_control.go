package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// HandleSystemControl implements the system_control MCP tool: process-wide
// status, framework, gate, analytics, config, maintenance, guide,
// injection, and session sub-actions, per spec §6.
func (a *App) HandleSystemControl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return a.doSystemControl(req.GetArguments())
}

func (a *App) doSystemControl(args map[string]any) (*mcp.CallToolResult, error) {
	action := str(args["action"])

	// The boolean "enabled" argument is shorthand for operation
	// "enable"/"disable" on the gates and framework actions.
	if (action == "gates" || action == "framework") && str(args["operation"]) == "" {
		if b, ok := args["enabled"].(bool); ok {
			op := "disable"
			if b {
				op = "enable"
			}
			args["operation"] = op
		}
	}

	switch action {
	case "status":
		return a.scStatus()
	case "framework":
		return a.scFramework(args)
	case "gates":
		return a.scGates(args)
	case "analytics":
		return a.scAnalytics()
	case "config":
		return a.scConfig()
	case "maintenance":
		return a.scMaintenance()
	case "guide":
		return a.scGuide()
	case "injection":
		return a.scInjection()
	case "session":
		return a.scSession(args)
	default:
		return errorResult(fmt.Sprintf("unknown system_control action %q", action)), nil
	}
}

func (a *App) scStatus() (*mcp.CallToolResult, error) {
	fw := a.FrameworkSnapshot()
	gs := a.GateSystemSnapshot()
	data, _ := json.MarshalIndent(map[string]any{
		"framework_system_enabled": fw.Enabled,
		"active_framework":         fw.ActiveFramework,
		"gate_system_enabled":      gs.Enabled,
		"prompts_generation":       a.Prompts.Generation(),
		"gates_generation":         a.Gates.Generation(),
		"methodologies_generation": a.Methodologies.Generation(),
		"styles_generation":        a.Styles.Generation(),
	}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) scFramework(args map[string]any) (*mcp.CallToolResult, error) {
	op := str(args["operation"])
	switch op {
	case "switch":
		id := str(args["framework_id"])
		m, ok := a.Methodologies.Get(id)
		if !ok || !m.Enabled {
			return errorResult(fmt.Sprintf("%q is not an enabled methodology", id)), nil
		}
		if err := a.SetActiveFramework(id); err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(fmt.Sprintf("active framework: %s", id)), nil
	case "enable", "disable":
		if err := a.SetFrameworkSystemEnabled(op == "enable"); err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(fmt.Sprintf("framework system %sd", op)), nil
	case "list", "":
		data, _ := json.MarshalIndent(a.Methodologies.Snapshot(), "", "  ")
		return textResult(string(data)), nil
	default:
		return errorResult(fmt.Sprintf("unknown framework operation %q", op)), nil
	}
}

func (a *App) scGates(args map[string]any) (*mcp.CallToolResult, error) {
	op := str(args["operation"])
	switch op {
	case "enable", "disable":
		if err := a.SetGateSystemEnabled(op == "enable"); err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(fmt.Sprintf("gate system %sd", op)), nil
	case "list", "":
		data, _ := json.MarshalIndent(a.Gates.Snapshot(), "", "  ")
		return textResult(string(data)), nil
	default:
		return errorResult(fmt.Sprintf("unknown gates operation %q", op)), nil
	}
}

func (a *App) scAnalytics() (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(map[string]any{
		"prompt_count":      len(a.Prompts.Snapshot()),
		"gate_count":        len(a.Gates.Snapshot()),
		"methodology_count": len(a.Methodologies.Snapshot()),
		"style_count":       len(a.Styles.Snapshot()),
	}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) scConfig() (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(map[string]any{
		"resources_root": a.ResourcesRoot,
		"state_dir":      a.StateDir,
	}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) scMaintenance() (*mcp.CallToolResult, error) {
	expired := a.Sessions.CleanupStaleSessions()
	return textResult(fmt.Sprintf("cleaned up %d stale session(s): %v", len(expired), expired)), nil
}

func (a *App) scGuide() (*mcp.CallToolResult, error) {
	return textResult("prompt_engine runs prompts/chains; resource_manager edits prompts/gates/methodologies; system_control inspects and tunes process-wide state."), nil
}

func (a *App) scInjection() (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(map[string]any{
		"system_prompt":  "every{1}",
		"gate_guidance":  "every{1}",
		"style_guidance": "first-only",
	}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) scSession(args map[string]any) (*mcp.CallToolResult, error) {
	id := str(args["session_id"])
	if id == "" {
		return errorResult("session action requires session_id"), nil
	}
	s, ok := a.Sessions.GetSession(id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown session %q", id)), nil
	}
	data, _ := json.MarshalIndent(s, "", "  ")
	return textResult(string(data)), nil
}
