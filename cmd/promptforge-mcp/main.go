// Package main provides the promptforge-mcp binary: a stdio MCP server
// exposing prompt_engine, resource_manager, and system_control, mirroring
// the teacher's cmd/gert-mcp entry point.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/promptforge/promptforge/pkg/mcpserver"
)

var version = "dev"

func main() {
	app, err := mcpserver.NewApp(os.Getenv("PROMPTFORGE_RESOURCES"), os.Getenv("PROMPTFORGE_STATE_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpserver.NewServer(app, version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
