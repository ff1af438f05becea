package mcpserver

import (
	"strings"
	"testing"
)

func TestDoPromptEngineRunsASimplePrompt(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "prompts", "greet", "prompt.yaml", ""+
			"id: greet\n"+
			"name: Greet\n"+
			"template: \"Hello, {{.name}}\"\n"+
			"arguments:\n"+
			"  - name: name\n"+
			"    type: string\n"+
			"    required: true\n")
	})

	res, err := app.doPromptEngine(map[string]any{
		"command": `>>greet name="World"`,
	})
	if err != nil {
		t.Fatalf("doPromptEngine: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", text(t, res))
	}
	if got := text(t, res); !strings.Contains(got, "Hello, World") {
		t.Fatalf("expected rendered template in response, got %q", got)
	}
}

func TestDoPromptEngineRejectsForceRestartWithChainID(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doPromptEngine(map[string]any{
		"force_restart": true,
		"chain_id":      "chain-demo",
	})
	if err != nil {
		t.Fatalf("doPromptEngine: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result when force_restart and chain_id are both set")
	}
}

func TestDoPromptEngineMissingRequiredArgument(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "prompts", "greet", "prompt.yaml", ""+
			"id: greet\n"+
			"name: Greet\n"+
			"template: \"Hello, {{.name}}\"\n"+
			"arguments:\n"+
			"  - name: name\n"+
			"    type: string\n"+
			"    required: true\n")
	})

	res, err := app.doPromptEngine(map[string]any{"command": ">>greet"})
	if err != nil {
		t.Fatalf("doPromptEngine: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result when a required argument is missing")
	}
}
