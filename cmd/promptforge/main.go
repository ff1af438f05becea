// Package main provides the promptforge CLI: validate, schema, serve, and
// sessions subcommands, mirroring the teacher's cmd/gert rootCmd/cobra
// layout.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/promptforge/promptforge/pkg/mcpserver"
	"github.com/promptforge/promptforge/pkg/promptdef"
)

var version = "dev"

func main() {
	// A test-runner worker (e.g. `go test` building this binary as a
	// helper process) sets this indicator; main entry is a no-op then,
	// per spec §6's process environment contract.
	if os.Getenv("PROMPTFORGE_TEST_WORKER") != "" {
		return
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "promptforge",
	Short: "A prompt execution server: commands, chains, methodologies, and quality gates",
	Long:  "promptforge — a prompt-execution server exposing prompt_engine, resource_manager, and system_control over MCP, built around a 21-stage execution pipeline.",
}

var resourcesFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&resourcesFlag, "resources", "", "resource root (default: $PROMPTFORGE_RESOURCES or ./resources)")
	rootCmd.AddCommand(validateCmd, schemaCmd, serveCmd, sessionsCmd)
}

func resourcesRoot() string {
	if resourcesFlag != "" {
		return resourcesFlag
	}
	if v := os.Getenv("PROMPTFORGE_RESOURCES"); v != "" {
		return v
	}
	return "./resources"
}

func stateDir() string {
	if v := os.Getenv("PROMPTFORGE_STATE_DIR"); v != "" {
		return v
	}
	return "./runtime-state"
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every prompt, gate, and methodology under the resource root",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	root := resourcesRoot()

	prompts, err := promptdef.LoadPrompts(filepath.Join(root, "prompts"))
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	var failed bool
	for _, e := range promptdef.ValidatePromptSet(prompts) {
		fmt.Fprintf(os.Stderr, "prompt error: %s\n", e)
		failed = true
	}

	gates, err := promptdef.LoadGates(filepath.Join(root, "gates"))
	if err != nil {
		return fmt.Errorf("load gates: %w", err)
	}
	for i := range gates {
		for _, e := range promptdef.ValidateGate(&gates[i]) {
			fmt.Fprintf(os.Stderr, "gate error: %s\n", e)
			failed = true
		}
	}

	methodologies, err := promptdef.LoadMethodologies(filepath.Join(root, "methodologies"))
	if err != nil {
		return fmt.Errorf("load methodologies: %w", err)
	}
	for i := range methodologies {
		for _, e := range promptdef.ValidateMethodology(&methodologies[i]) {
			fmt.Fprintf(os.Stderr, "methodology error: %s\n", e)
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	fmt.Printf("✓ %d prompts, %d gates, %d methodologies are valid\n", len(prompts), len(gates), len(methodologies))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema [prompt|gate|methodology]",
	Short: "Export the JSON Schema for a resource type",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	switch args[0] {
	case "prompt":
		data, err = promptdef.GeneratePromptJSONSchema()
	case "gate":
		data, err = promptdef.GenerateGateJSONSchema()
	case "methodology":
		data, err = promptdef.GenerateMethodologyJSONSchema()
	default:
		return fmt.Errorf("unknown schema type %q — use prompt, gate, or methodology", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the promptforge-mcp stdio server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := mcpserver.NewApp(resourcesRoot(), stateDir())
	if err != nil {
		return err
	}
	defer app.Close()

	s := mcpserver.NewServer(app, version)
	return server.ServeStdio(s)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chain sessions persisted under the state directory",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	path := filepath.Join(stateDir(), "chain-sessions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no sessions persisted yet")
			return nil
		}
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	pretty, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(pretty))
	return nil
}
