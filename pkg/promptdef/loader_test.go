package promptdef

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPromptsSkipsHiddenAndUnderscoreDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "summarize", "prompt.yaml"), "id: summarize\nname: Summarize\ntemplate: \"{{.topic}}\"\n")
	writeFile(t, filepath.Join(root, ".hidden", "prompt.yaml"), "id: hidden\nname: Hidden\ntemplate: x\n")
	writeFile(t, filepath.Join(root, "_draft", "prompt.yaml"), "id: draft\nname: Draft\ntemplate: x\n")

	prompts, err := LoadPrompts(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d: %+v", len(prompts), prompts)
	}
	if prompts[0].ID != "summarize" {
		t.Fatalf("unexpected id %q", prompts[0].ID)
	}
}

func TestLoadPromptsNestedChainPrefixesIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "my_chain", "prompt.yaml"), "name: Chain\ntemplate: x\n")
	writeFile(t, filepath.Join(root, "my_chain", "step_one", "prompt.yaml"), "name: Step One\ntemplate: x\n")
	writeFile(t, filepath.Join(root, "my_chain", "step_one", "step_two", "prompt.yaml"), "name: Step Two\ntemplate: x\n")

	prompts, err := LoadPrompts(root)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, p := range prompts {
		ids[p.ID] = true
	}
	for _, want := range []string{"my_chain", "my_chain/step_one", "my_chain/step_one/step_two"} {
		if !ids[want] {
			t.Errorf("missing expected id %q, got %v", want, ids)
		}
	}
}

func TestLoadGatesReadsSidecarGuidance(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "no-secrets", "gate.yaml"), "name: No Secrets\ntype: validation\ncriteria:\n  - no leaked keys\n")
	writeFile(t, filepath.Join(root, "no-secrets", "guidance.md"), "Never print API keys.")

	gates, err := LoadGates(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(gates) != 1 {
		t.Fatalf("expected 1 gate, got %d", len(gates))
	}
	if gates[0].ID != "no-secrets" {
		t.Errorf("expected id derived from dir name, got %q", gates[0].ID)
	}
	if gates[0].Guidance != "Never print API keys." {
		t.Errorf("expected guidance sidecar loaded, got %q", gates[0].Guidance)
	}
}

func TestLoadPromptsStrictRejectsUnknownFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad", "prompt.yaml"), "id: bad\nname: Bad\ntemplate: x\nbogus_field: true\n")
	if _, err := LoadPrompts(root); err == nil {
		t.Fatal("expected structural decode error for unknown field")
	}
}
