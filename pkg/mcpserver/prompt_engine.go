package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/promptforge/promptforge/pkg/pipeline"
	"github.com/promptforge/promptforge/pkg/promptdef"
)

// HandlePromptEngine implements the prompt_engine MCP tool: it builds a
// RawRequest from the call's arguments and runs it through the full
// 21-stage Execution Pipeline.
func (a *App) HandlePromptEngine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return a.doPromptEngine(req.GetArguments())
}

func (a *App) doPromptEngine(args map[string]any) (*mcp.CallToolResult, error) {
	if boolArg(args["force_restart"]) && str(args["chain_id"]) != "" {
		return errorResult("conflicting resume parameters: force_restart=true cannot be combined with chain_id"), nil
	}

	raw := pipeline.RawRequest{
		Command:      str(args["command"]),
		ChainID:      str(args["chain_id"]),
		UserResponse: str(args["user_response"]),
		ForceRestart: boolArg(args["force_restart"]),
		GateAction:   str(args["gate_action"]),
		GateVerdict:  str(args["gate_verdict"]),
		Gates:        parseGateSpecs(args["gates"]),
	}
	if opts, ok := args["options"].(map[string]any); ok {
		raw.Options = opts
	}

	pctx := pipeline.NewContext(raw, a.Services())
	resp := a.Pipeline.Run(pctx)

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(resp.Text)},
		IsError: resp.IsError,
	}, nil
}

// parseGateSpecs converts the `gates` array argument into pipeline
// GateSpec values, per spec §6: each element is a registered id (string),
// a quick gate {name, description}, or a full gate definition.
func parseGateSpecs(raw any) []pipeline.GateSpec {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]pipeline.GateSpec, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, pipeline.GateSpec{ID: v})
		case map[string]any:
			if _, hasCriteria := v["criteria"]; hasCriteria {
				out = append(out, pipeline.GateSpec{Full: decodeFullGate(v)})
				continue
			}
			out = append(out, pipeline.GateSpec{
				Name:        str(v["name"]),
				Description: str(v["description"]),
			})
		}
	}
	return out
}

func decodeFullGate(v map[string]any) *promptdef.Gate {
	g := &promptdef.Gate{
		ID:       str(v["id"]),
		Name:     str(v["name"]),
		Type:     promptdef.GateValidation,
		Severity: str(v["severity"]),
		Guidance: str(v["guidance"]),
	}
	g.Criteria = toStringSlice(v["criteria"])
	g.PassCriteria = toStringSlice(v["pass_criteria"])
	g.ApplyToSteps = toIntSlice(v["apply_to_steps"])
	return g
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func toIntSlice(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if n, ok := item.(float64); ok {
			out = append(out, int(n))
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolArg(v any) bool {
	b, _ := v.(bool)
	return b
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}
