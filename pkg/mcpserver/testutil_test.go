package mcpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// writeResourceFile writes a resource's entry file under
// <root>/<kind>/<id>/<file>, creating parent directories as needed.
func writeResourceFile(t *testing.T, root, kind, id, file, body string) {
	t.Helper()
	dir := filepath.Join(root, kind, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newTestApp builds an App rooted at a fresh temp directory, optionally
// seeded by seed before the registries perform their initial scan.
func newTestApp(t *testing.T, seed func(root string)) *App {
	t.Helper()
	resources := t.TempDir()
	state := t.TempDir()
	if seed != nil {
		seed(resources)
	}
	app, err := NewApp(resources, state)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

// text extracts the first content block's text, as produced by
// textResult/errorResult.
func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected mcp.TextContent, got %T", res.Content[0])
	}
	return tc.Text
}
