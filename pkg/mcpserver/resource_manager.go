package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/promptforge/promptforge/pkg/promptdef"
)

// HandleResourceManager implements the resource_manager MCP tool: CRUD and
// lifecycle operations over prompts, gates, and methodologies, routed by
// resource_type per spec §6.
func (a *App) HandleResourceManager(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return a.doResourceManager(req.GetArguments())
}

func (a *App) doResourceManager(args map[string]any) (*mcp.CallToolResult, error) {
	resourceType := str(args["resource_type"])
	action := str(args["action"])
	resourceID := str(args["resource_id"])

	if err := validateActionPair(action, resourceType); err != "" {
		return errorResult(err), nil
	}

	switch action {
	case "list":
		return a.rmList(resourceType)
	case "inspect":
		return a.rmInspect(resourceType, resourceID)
	case "create":
		return a.rmCreate(resourceType, resourceID, args)
	case "update":
		return a.rmUpdate(resourceType, resourceID, args)
	case "delete":
		return a.rmDelete(resourceType, resourceID, boolArg(args["confirm"]))
	case "reload":
		return a.rmReload(resourceType)
	case "analyze_type":
		return a.rmAnalyzeType(resourceID)
	case "analyze_gates":
		return a.rmAnalyzeGates(resourceID)
	case "guide":
		return a.rmGuide(resourceID)
	case "switch":
		return a.rmSwitch(resourceID)
	case "history":
		return a.rmHistory(resourceType, resourceID, intArg(args["limit"]))
	case "rollback":
		return a.rmRollback(resourceType, resourceID, intArg(args["version"]), boolArg(args["persist"]))
	case "compare":
		return a.rmCompare(resourceType, resourceID, intArg(args["from_version"]), intArg(args["to_version"]))
	default:
		return errorResult(fmt.Sprintf("unknown resource_manager action %q", action)), nil
	}
}

// validateActionPair enforces spec §6's action/resource_type pairing
// rules: switch requires methodology; analyze_type/analyze_gates/guide
// require prompt.
func validateActionPair(action, resourceType string) string {
	switch action {
	case "switch":
		if resourceType != "methodology" && resourceType != "" {
			return "switch requires resource_type=methodology"
		}
	case "analyze_type", "analyze_gates", "guide":
		if resourceType != "prompt" && resourceType != "" {
			return fmt.Sprintf("%s requires resource_type=prompt", action)
		}
	}
	return ""
}

func intArg(v any) int {
	if n, ok := v.(float64); ok {
		return int(n)
	}
	return 0
}

func (a *App) rmList(resourceType string) (*mcp.CallToolResult, error) {
	var ids []string
	switch resourceType {
	case "prompt":
		for id := range a.Prompts.Snapshot() {
			ids = append(ids, id)
		}
	case "gate":
		for id := range a.Gates.Snapshot() {
			ids = append(ids, id)
		}
	case "methodology":
		for id := range a.Methodologies.Snapshot() {
			ids = append(ids, id)
		}
	default:
		return errorResult("list requires resource_type"), nil
	}
	data, _ := json.MarshalIndent(ids, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) rmInspect(resourceType, id string) (*mcp.CallToolResult, error) {
	doc, ok := a.lookup(resourceType, id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown %s %q", resourceType, id)), nil
	}
	data, _ := json.MarshalIndent(doc, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) lookup(resourceType, id string) (any, bool) {
	switch resourceType {
	case "prompt":
		return a.Prompts.Get(id)
	case "gate":
		return a.Gates.Get(id)
	case "methodology":
		return a.Methodologies.Get(id)
	}
	return nil, false
}

func (a *App) resourceDir(resourceType, id string) string {
	switch resourceType {
	case "prompt":
		return filepath.Join(a.ResourcesRoot, "prompts", id)
	case "gate":
		return filepath.Join(a.ResourcesRoot, "gates", id)
	case "methodology":
		return filepath.Join(a.ResourcesRoot, "methodologies", id)
	}
	return ""
}

func (a *App) entryFile(resourceType string) string {
	switch resourceType {
	case "prompt":
		return "prompt.yaml"
	case "gate":
		return "gate.yaml"
	case "methodology":
		return "methodology.yaml"
	}
	return ""
}

func (a *App) rmCreate(resourceType, id string, args map[string]any) (*mcp.CallToolResult, error) {
	if _, exists := a.lookup(resourceType, id); exists {
		return errorResult(fmt.Sprintf("%s %q already exists; use action=update", resourceType, id)), nil
	}
	data, ok := args["data"].(map[string]any)
	if !ok {
		return errorResult("create requires a data object"), nil
	}
	if err := a.validateResourceDoc(resourceType, data); err != "" {
		return errorResult(err), nil
	}
	if err := a.writeResource(resourceType, id, data); err != nil {
		return errorResult(err.Error()), nil
	}
	a.reloadOne(resourceType)
	return textResult(fmt.Sprintf("created %s %q", resourceType, id)), nil
}

func (a *App) rmUpdate(resourceType, id string, args map[string]any) (*mcp.CallToolResult, error) {
	existing, ok := a.lookup(resourceType, id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown %s %q", resourceType, id)), nil
	}
	data, ok := args["data"].(map[string]any)
	if !ok {
		return errorResult("update requires a data object"), nil
	}
	if err := a.validateResourceDoc(resourceType, data); err != "" {
		return errorResult(err), nil
	}
	if !boolArg(args["skip_version"]) {
		if _, err := a.VersionStore(resourceType, id).SaveVersion(resourceType, id, existing, "pre-update snapshot"); err != nil {
			return errorResult(fmt.Sprintf("save version: %s", err)), nil
		}
	}
	if err := a.writeResource(resourceType, id, data); err != nil {
		return errorResult(err.Error()), nil
	}
	a.reloadOne(resourceType)
	return textResult(fmt.Sprintf("updated %s %q", resourceType, id)), nil
}

func (a *App) rmDelete(resourceType, id string, confirm bool) (*mcp.CallToolResult, error) {
	if !confirm {
		return errorResult("delete requires confirm=true"), nil
	}
	if _, ok := a.lookup(resourceType, id); !ok {
		return errorResult(fmt.Sprintf("unknown %s %q", resourceType, id)), nil
	}
	if err := os.RemoveAll(a.resourceDir(resourceType, id)); err != nil {
		return errorResult(err.Error()), nil
	}
	a.reloadOne(resourceType)
	return textResult(fmt.Sprintf("deleted %s %q", resourceType, id)), nil
}

func (a *App) rmReload(resourceType string) (*mcp.CallToolResult, error) {
	gen := a.reloadOne(resourceType)
	return textResult(fmt.Sprintf("reloaded %s registry, generation=%d", resourceType, gen)), nil
}

func (a *App) reloadOne(resourceType string) uint64 {
	switch resourceType {
	case "prompt":
		a.Prompts.Reload()
		return a.Prompts.Generation()
	case "gate":
		a.Gates.Reload()
		return a.Gates.Generation()
	case "methodology":
		a.Methodologies.Reload()
		return a.Methodologies.Generation()
	case "style":
		a.Styles.Reload()
		return a.Styles.Generation()
	}
	return 0
}

func (a *App) validateResourceDoc(resourceType string, data map[string]any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return err.Error()
	}
	switch resourceType {
	case "prompt":
		var p promptdef.Prompt
		if err := json.Unmarshal(raw, &p); err != nil {
			return err.Error()
		}
		for _, e := range promptdef.ValidatePrompt(&p) {
			return e.Error()
		}
	case "gate":
		var g promptdef.Gate
		if err := json.Unmarshal(raw, &g); err != nil {
			return err.Error()
		}
		for _, e := range promptdef.ValidateGate(&g) {
			return e.Error()
		}
	case "methodology":
		var m promptdef.Methodology
		if err := json.Unmarshal(raw, &m); err != nil {
			return err.Error()
		}
		if errs := promptdef.ValidateMethodology(&m); len(errs) > 0 {
			return errs[0].Error()
		}
	}
	return ""
}

func (a *App) writeResource(resourceType, id string, data map[string]any) error {
	dir := a.resourceDir(resourceType, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, a.entryFile(resourceType)), out, 0o644)
}

func (a *App) rmAnalyzeType(id string) (*mcp.CallToolResult, error) {
	p, ok := a.Prompts.Get(id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown prompt %q", id)), nil
	}
	kind := "prompt"
	if p.IsChain() {
		kind = "chain"
	}
	data, _ := json.MarshalIndent(map[string]any{
		"id":           p.ID,
		"type":         kind,
		"step_count":   len(p.ChainSteps),
		"arg_count":    len(p.Arguments),
		"script_tools": len(p.ScriptTools),
	}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) rmAnalyzeGates(id string) (*mcp.CallToolResult, error) {
	p, ok := a.Prompts.Get(id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown prompt %q", id)), nil
	}
	applicable := make([]string, 0)
	for gid, g := range a.Gates.Snapshot() {
		if g.Activation == nil {
			continue
		}
		for _, cat := range g.Activation.PromptCategories {
			if cat == p.Category {
				applicable = append(applicable, gid)
			}
		}
	}
	data, _ := json.MarshalIndent(map[string]any{"prompt_id": id, "applicable_gates": applicable}, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) rmGuide(id string) (*mcp.CallToolResult, error) {
	schema, err := promptdef.GeneratePromptJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(schema)), nil
}

func (a *App) rmSwitch(id string) (*mcp.CallToolResult, error) {
	m, ok := a.Methodologies.Get(id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown methodology %q", id)), nil
	}
	if !m.Enabled {
		return errorResult(fmt.Sprintf("methodology %q is disabled", id)), nil
	}
	if err := a.SetActiveFramework(id); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("active framework switched to %q", id)), nil
}

func (a *App) rmHistory(resourceType, id string, limit int) (*mcp.CallToolResult, error) {
	summaries, err := a.VersionStore(resourceType, id).FormatHistory(resourceType, id, limit)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(summaries, "", "  ")
	return textResult(string(data)), nil
}

func (a *App) rmRollback(resourceType, id string, target int, persist bool) (*mcp.CallToolResult, error) {
	current, ok := a.lookup(resourceType, id)
	if !ok {
		return errorResult(fmt.Sprintf("unknown %s %q", resourceType, id)), nil
	}
	v, err := a.VersionStore(resourceType, id).Rollback(resourceType, id, target, current)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if persist {
		raw, err := json.Marshal(v.Snapshot)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return errorResult(err.Error()), nil
		}
		if err := a.writeResource(resourceType, id, data); err != nil {
			return errorResult(err.Error()), nil
		}
		a.reloadOne(resourceType)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return textResult(string(out)), nil
}

func (a *App) rmCompare(resourceType, id string, from, to int) (*mcp.CallToolResult, error) {
	fv, tv, err := a.VersionStore(resourceType, id).Compare(resourceType, id, from, to)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(map[string]any{"from": fv, "to": tv}, "", "  ")
	return textResult(string(data)), nil
}
