package mcpserver

import (
	"strings"
	"testing"
)

func TestSystemControlStatusReportsDefaults(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doSystemControl(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	if !strings.Contains(text(t, res), "\"framework_system_enabled\": true") {
		t.Fatalf("expected framework_system_enabled=true by default, got %q", text(t, res))
	}
}

func TestSystemControlFrameworkSwitchRequiresEnabledMethodology(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "methodologies", "tdd", "methodology.yaml", ""+
			"id: tdd\nname: TDD\nphases: [red, green, refactor]\nmethodology_gates: []\nenabled: true\n")
	})

	res, err := app.doSystemControl(map[string]any{
		"action":       "framework",
		"operation":    "switch",
		"framework_id": "tdd",
	})
	if err != nil {
		t.Fatalf("framework switch: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error switching to an enabled methodology: %s", text(t, res))
	}
	if app.FrameworkSnapshot().ActiveFramework != "tdd" {
		t.Fatalf("expected active framework to be tdd, got %q", app.FrameworkSnapshot().ActiveFramework)
	}

	res, err = app.doSystemControl(map[string]any{
		"action":       "framework",
		"operation":    "switch",
		"framework_id": "does-not-exist",
	})
	if err != nil {
		t.Fatalf("framework switch: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected switching to an unknown methodology to fail")
	}
}

func TestSystemControlGatesEnableDisablePersists(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doSystemControl(map[string]any{"action": "gates", "operation": "disable"})
	if err != nil {
		t.Fatalf("gates disable: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	if app.GateSystemSnapshot().Enabled {
		t.Fatal("expected gate system to be disabled")
	}
}

func TestSystemControlMaintenanceCleansUpStaleSessions(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doSystemControl(map[string]any{"action": "maintenance"})
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
}

func TestSystemControlSessionRequiresSessionID(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doSystemControl(map[string]any{"action": "session"})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected session action without session_id to fail")
	}
}
