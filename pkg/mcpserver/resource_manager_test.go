package mcpserver

import (
	"strings"
	"testing"
)

func TestResourceManagerCreateListInspect(t *testing.T) {
	app := newTestApp(t, nil)

	createRes, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "create",
		"resource_id":   "no-secrets",
		"data": map[string]any{
			"id":   "no-secrets",
			"name": "No Secrets",
			"type": "validation",
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if createRes.IsError {
		t.Fatalf("unexpected create error: %s", text(t, createRes))
	}

	listRes, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "list",
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(text(t, listRes), "no-secrets") {
		t.Fatalf("expected created gate in list output, got %q", text(t, listRes))
	}

	inspectRes, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "inspect",
		"resource_id":   "no-secrets",
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(text(t, inspectRes), "No Secrets") {
		t.Fatalf("expected inspected gate name in output, got %q", text(t, inspectRes))
	}
}

func TestResourceManagerDeleteRequiresConfirm(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "gates", "temp", "gate.yaml", "id: temp\nname: Temp\ntype: guidance\n")
	})

	res, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "delete",
		"resource_id":   "temp",
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected delete without confirm=true to fail")
	}

	res, err = app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "delete",
		"resource_id":   "temp",
		"confirm":       true,
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected delete error: %s", text(t, res))
	}
	if _, ok := app.Gates.Get("temp"); ok {
		t.Fatal("expected gate to be gone from the registry after confirmed delete")
	}
}

func TestResourceManagerUpdateSnapshotsPreviousVersion(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "gates", "g1", "gate.yaml", "id: g1\nname: G1\ntype: validation\n")
	})

	res, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "update",
		"resource_id":   "g1",
		"data": map[string]any{
			"id":   "g1",
			"name": "G1 renamed",
			"type": "validation",
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected update error: %s", text(t, res))
	}

	g, ok := app.Gates.Get("g1")
	if !ok || g.Name != "G1 renamed" {
		t.Fatalf("expected reloaded gate to reflect the update, got %+v ok=%v", g, ok)
	}

	histRes, err := app.doResourceManager(map[string]any{
		"resource_type": "gate",
		"action":        "history",
		"resource_id":   "g1",
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(text(t, histRes), "\"version\"") {
		t.Fatalf("expected a version entry in history output, got %q", text(t, histRes))
	}
}

func TestResourceManagerSwitchRequiresMethodologyType(t *testing.T) {
	app := newTestApp(t, nil)

	res, err := app.doResourceManager(map[string]any{
		"resource_type": "prompt",
		"action":        "switch",
		"resource_id":   "anything",
	})
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected switch with resource_type=prompt to be rejected")
	}
}
