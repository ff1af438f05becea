package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer registers the three MCP tools spec §6 defines against app,
// mirroring the teacher's mcp.NewTool/mcp.WithString registration idiom
// (pkg/ecosystem/mcp/server.go) but with promptforge's own tool surface.
func NewServer(app *App, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"promptforge",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("prompt_engine",
			mcp.WithDescription("Execute prompts, templates, and chains through the prompt execution pipeline"),
			mcp.WithString("command", mcp.Description("Prompt id plus args: symbolic (>>id key=\"val\"), chained (>>a --> >>b), JSON object, or key=value")),
			mcp.WithString("chain_id", mcp.Description("Resume token, e.g. chain-<prompt> or chain-<prompt>#<run>; command must be omitted when set")),
			mcp.WithString("user_response", mcp.Description("Completed output for the previous step, pasted back when resuming")),
			mcp.WithBoolean("force_restart", mcp.Description("Restart the session for this prompt instead of resuming it")),
			mcp.WithString("gate_action", mcp.Description("retry | skip | abort — user choice after a gate's retry limit is exhausted")),
			mcp.WithString("gate_verdict", mcp.Description("GATE_REVIEW: PASS|FAIL - <reason>, or an accepted flexible form")),
			mcp.WithArray("gates", mcp.Description("Registered gate ids, quick gates {name,description}, or full gate definitions")),
			mcp.WithObject("options", mcp.Description("Opaque record forwarded downstream")),
		),
		app.HandlePromptEngine,
	)

	s.AddTool(
		mcp.NewTool("resource_manager",
			mcp.WithDescription("CRUD and lifecycle operations over prompts, gates, and methodologies"),
			mcp.WithString("resource_type", mcp.Required(), mcp.Description("prompt | gate | methodology")),
			mcp.WithString("action", mcp.Required(), mcp.Description("create|update|delete|reload|list|inspect|analyze_type|analyze_gates|guide|switch|history|rollback|compare")),
			mcp.WithString("resource_id", mcp.Description("Target resource id")),
			mcp.WithObject("data", mcp.Description("Resource document for create/update")),
			mcp.WithBoolean("confirm", mcp.Description("Required true to execute delete")),
			mcp.WithNumber("from_version", mcp.Description("compare: source version")),
			mcp.WithNumber("to_version", mcp.Description("compare: target version")),
			mcp.WithNumber("version", mcp.Description("rollback: target version")),
			mcp.WithNumber("limit", mcp.Description("history: max entries, newest-first")),
			mcp.WithBoolean("skip_version", mcp.Description("update: don't snapshot the previous state before applying changes")),
			mcp.WithBoolean("persist", mcp.Description("rollback: persist the restored document to disk")),
		),
		app.HandleResourceManager,
	)

	s.AddTool(
		mcp.NewTool("system_control",
			mcp.WithDescription("Process-wide status, framework, gate, analytics, config, maintenance, and session controls"),
			mcp.WithString("action", mcp.Required(), mcp.Description("status|framework|gates|analytics|config|maintenance|guide|injection|session")),
			mcp.WithString("operation", mcp.Description("Sub-action for the chosen action, e.g. framework:switch, gates:enable")),
			mcp.WithString("framework_id", mcp.Description("framework action: methodology id to switch to")),
			mcp.WithString("session_id", mcp.Description("session action: target session id")),
			mcp.WithBoolean("enabled", mcp.Description("gates/framework action: enable or disable the subsystem")),
		),
		app.HandleSystemControl,
	)

	return s
}
