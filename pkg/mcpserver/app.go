// Package mcpserver wires the hot-reload registries, the chain session
// manager, and the Execution Pipeline into the three MCP tools spec §6
// requires (prompt_engine, resource_manager, system_control), grounded in
// the teacher's pkg/ecosystem/mcp server/handler split.
package mcpserver

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/promptforge/promptforge/pkg/pipeline"
	"github.com/promptforge/promptforge/pkg/promptdef"
	"github.com/promptforge/promptforge/pkg/registry"
	"github.com/promptforge/promptforge/pkg/session"
	"github.com/promptforge/promptforge/pkg/version"
)

// debounce is the hot-reload registry's coalescing window, per spec §4.6.
const debounce = 200 * time.Millisecond

// gateRegistry adapts *registry.Registry[promptdef.Gate] to pipeline's
// GateLookup (which uses the domain name Gate, not the generic Get).
type gateRegistry struct{ *registry.Registry[promptdef.Gate] }

func (g gateRegistry) Gate(id string) (promptdef.Gate, bool) { return g.Get(id) }

// App bundles every long-lived collaborator a running promptforge server
// needs: the four hot-reload registries, the chain session manager, and
// the process-wide mutable state spec §5 calls out (active framework,
// gate-system-enabled flag).
type App struct {
	ResourcesRoot string
	StateDir      string

	Prompts       *registry.Registry[promptdef.Prompt]
	Gates         *registry.Registry[promptdef.Gate]
	Methodologies *registry.Registry[promptdef.Methodology]
	Styles        *registry.Registry[promptdef.Style]

	Sessions *session.Manager
	Pipeline *pipeline.Pipeline

	mu             sync.Mutex
	frameworkState FrameworkState
	gateState      GateSystemState
}

// NewApp scans resourcesRoot for prompts/gates/methodologies/styles, starts
// their hot-reload watchers, opens the chain session manager rooted at
// stateDir, and assembles the Execution Pipeline. resourcesRoot and
// stateDir default to "./resources" and "./runtime-state" per spec §6's
// "Process environment contract" when empty.
func NewApp(resourcesRoot, stateDir string) (*App, error) {
	if resourcesRoot == "" {
		resourcesRoot = "./resources"
	}
	if stateDir == "" {
		stateDir = "./runtime-state"
	}

	prompts, err := registry.New(filepath.Join(resourcesRoot, "prompts"), debounce, func() (map[string]promptdef.Prompt, error) {
		list, err := promptdef.LoadPrompts(filepath.Join(resourcesRoot, "prompts"))
		if err != nil {
			return nil, err
		}
		return indexByID(list, func(p promptdef.Prompt) string { return p.ID }), nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("prompts registry: %w", err)
	}

	gates, err := registry.New(filepath.Join(resourcesRoot, "gates"), debounce, func() (map[string]promptdef.Gate, error) {
		list, err := promptdef.LoadGates(filepath.Join(resourcesRoot, "gates"))
		if err != nil {
			return nil, err
		}
		return indexByID(list, func(g promptdef.Gate) string { return g.ID }), nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("gates registry: %w", err)
	}

	methodologies, err := registry.New(filepath.Join(resourcesRoot, "methodologies"), debounce, func() (map[string]promptdef.Methodology, error) {
		list, err := promptdef.LoadMethodologies(filepath.Join(resourcesRoot, "methodologies"))
		if err != nil {
			return nil, err
		}
		return indexByID(list, func(m promptdef.Methodology) string { return m.ID }), nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("methodologies registry: %w", err)
	}

	styles, err := registry.New(filepath.Join(resourcesRoot, "styles"), debounce, func() (map[string]promptdef.Style, error) {
		list, err := promptdef.LoadStyles(filepath.Join(resourcesRoot, "styles"))
		if err != nil {
			return nil, err
		}
		return indexByID(list, func(s promptdef.Style) string { return s.ID }), nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("styles registry: %w", err)
	}

	sessions := session.NewManager(session.Config{
		StatePath: filepath.Join(stateDir, "chain-sessions.json"),
	})

	app := &App{
		ResourcesRoot: resourcesRoot,
		StateDir:      stateDir,
		Prompts:       prompts,
		Gates:         gates,
		Methodologies: methodologies,
		Styles:        styles,
		Sessions:      sessions,
		Pipeline:      pipeline.New(),
	}

	app.frameworkState = loadFrameworkState(filepath.Join(stateDir, "framework-state.json"))
	app.gateState = loadGateSystemState(filepath.Join(stateDir, "gate-system-state.json"))

	return app, nil
}

// Close stops every registry watcher and flushes the session manager.
func (a *App) Close() error {
	a.Prompts.Close()
	a.Gates.Close()
	a.Methodologies.Close()
	a.Styles.Close()
	return a.Sessions.Shutdown()
}

// Services builds the pipeline.Services snapshot current process-wide
// state for one request. The framework/gate state lock is held only long
// enough to copy the two scalars it guards.
func (a *App) Services() *pipeline.Services {
	a.mu.Lock()
	active := a.frameworkState.ActiveFramework
	enabled := a.frameworkState.Enabled
	a.mu.Unlock()

	return &pipeline.Services{
		Prompts:         a.Prompts,
		Methodologies:   a.Methodologies,
		Styles:          a.Styles,
		Gates:           gateRegistry{a.Gates},
		Sessions:        a.Sessions,
		Scripts:         nil,
		GlobalActive:    enabled,
		ActiveFramework: active,
	}
}

func indexByID[T any](list []T, id func(T) string) map[string]T {
	out := make(map[string]T, len(list))
	for _, v := range list {
		out[id(v)] = v
	}
	return out
}

// versionStorePath returns the sidecar path for one resource file, per
// spec §6's "per-resource sidecar `.history.json` next to each resource's
// file" layout.
func (a *App) versionStorePath(kind, id string) string {
	var dir string
	switch kind {
	case "prompt":
		dir = filepath.Join(a.ResourcesRoot, "prompts", id)
	case "gate":
		dir = filepath.Join(a.ResourcesRoot, "gates", id)
	case "methodology":
		dir = filepath.Join(a.ResourcesRoot, "methodologies", id)
	default:
		dir = filepath.Join(a.ResourcesRoot, kind, id)
	}
	return filepath.Join(dir, ".history.json")
}

// VersionStore opens the version.Store sidecar for one resource.
func (a *App) VersionStore(kind, id string) *version.Store {
	return version.NewStore(a.versionStorePath(kind, id), 20)
}
