package mcpserver

import "testing"

func TestNewAppScansResourcesOnStartup(t *testing.T) {
	app := newTestApp(t, func(root string) {
		writeResourceFile(t, root, "prompts", "greet", "prompt.yaml", ""+
			"id: greet\n"+
			"name: Greet\n"+
			"template: \"Hello, {{.name}}\"\n")
	})

	p, ok := app.Prompts.Get("greet")
	if !ok {
		t.Fatal("expected prompt \"greet\" to be loaded from the initial scan")
	}
	if p.Name != "Greet" {
		t.Fatalf("unexpected prompt name %q", p.Name)
	}
}

func TestServicesDefaultsToFrameworkSystemEnabled(t *testing.T) {
	app := newTestApp(t, nil)
	svc := app.Services()
	if !svc.GlobalActive {
		t.Fatal("a fresh App should default framework_system_enabled to true")
	}
	if svc.ActiveFramework != "" {
		t.Fatalf("expected no active framework by default, got %q", svc.ActiveFramework)
	}
}

func TestVersionStoreRoundTrip(t *testing.T) {
	app := newTestApp(t, nil)

	store := app.VersionStore("gate", "g1")
	h, err := store.SaveVersion("gate", "g1", map[string]any{"id": "g1", "name": "G1"}, "initial")
	if err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if h.CurrentVersion != 1 {
		t.Fatalf("expected first saved version to be 1, got %d", h.CurrentVersion)
	}

	summaries, err := store.FormatHistory("gate", "g1", 0)
	if err != nil {
		t.Fatalf("FormatHistory: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Version != 1 {
		t.Fatalf("expected one history entry at version 1, got %+v", summaries)
	}

	h2, err := store.SaveVersion("gate", "g1", map[string]any{"id": "g1", "name": "G1 renamed"}, "rename")
	if err != nil {
		t.Fatalf("second SaveVersion: %v", err)
	}
	if h2.CurrentVersion != 2 {
		t.Fatalf("expected second saved version to be 2, got %d", h2.CurrentVersion)
	}

	from, to, err := store.Compare("gate", "g1", 1, 2)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if from.VersionNumber != 1 || to.VersionNumber != 2 {
		t.Fatalf("Compare returned wrong versions: from=%d to=%d", from.VersionNumber, to.VersionNumber)
	}
}
