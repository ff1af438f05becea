package resolver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

type mapLookup map[string]string

func (m mapLookup) Template(id string) (string, bool) {
	t, ok := m[id]
	return t, ok
}

type stubScripts struct {
	confirm map[string]bool
	outputs map[string]string
	calls   int
}

func (s *stubScripts) RequiresConfirmation(toolID string) bool { return s.confirm[toolID] }

func (s *stubScripts) Run(_ context.Context, toolID string, _ map[string]any) (json.RawMessage, error) {
	s.calls++
	return json.RawMessage(s.outputs[toolID]), nil
}

func TestResolveNoReferencesUnchanged(t *testing.T) {
	out, diag, err := Resolve("plain text, no refs here", mapLookup{}, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "plain text, no refs here" {
		t.Fatalf("want unchanged template, got %q", out)
	}
	if diag.ReferencesResolved != 0 {
		t.Fatalf("want 0 references resolved, got %d", diag.ReferencesResolved)
	}
}

func TestResolveNestedRef(t *testing.T) {
	lookup := mapLookup{
		"a": "top {{ref:b}} end",
		"b": "middle",
	}
	out, diag, err := Resolve("{{ref:a}}", lookup, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "top middle end" {
		t.Fatalf("want resolved nested ref, got %q", out)
	}
	if diag.ReferencesResolved != 2 {
		t.Fatalf("want 2 references resolved, got %d", diag.ReferencesResolved)
	}
}

func TestResolveCircularReferenceFails(t *testing.T) {
	lookup := mapLookup{
		"a": "{{ref:b}}",
		"b": "{{ref:a}} tail",
	}
	_, _, err := Resolve("{{ref:a}}", lookup, nil, Options{})
	if err == nil {
		t.Fatal("want circular reference error")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Fatalf("want circular reference error, got %v", err)
	}
}

func TestResolveMissingRefStrictFails(t *testing.T) {
	_, _, err := Resolve("{{ref:ghost}}", mapLookup{}, nil, Options{})
	if err == nil {
		t.Fatal("want error for missing reference in strict mode")
	}
}

func TestResolveMissingRefLenient(t *testing.T) {
	out, diag, err := Resolve("before {{ref:ghost}} after", mapLookup{}, nil, Options{Lenient: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "before  after" {
		t.Fatalf("want empty substitution, got %q", out)
	}
	if len(diag.Warnings) != 1 {
		t.Fatalf("want one warning, got %d", len(diag.Warnings))
	}
}

func TestResolveScriptFieldAccess(t *testing.T) {
	scripts := &stubScripts{outputs: map[string]string{"weather": `{"temp":72,"unit":"F"}`}}
	out, _, err := Resolve("it is {{script:weather.temp}} degrees", mapLookup{}, scripts, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "it is 72 degrees" {
		t.Fatalf("want field projected, got %q", out)
	}
}

func TestResolveScriptCachesWithinRequest(t *testing.T) {
	scripts := &stubScripts{outputs: map[string]string{"weather": `{"temp":72}`}}
	_, _, err := Resolve("{{script:weather.temp}} and {{script:weather.temp}}", mapLookup{}, scripts, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scripts.calls != 1 {
		t.Fatalf("want script executed once across duplicate refs, got %d calls", scripts.calls)
	}
}

func TestResolveScriptRequiringConfirmationSkipped(t *testing.T) {
	scripts := &stubScripts{confirm: map[string]bool{"deploy": true}}
	out, diag, err := Resolve("run: {{script:deploy}}", mapLookup{}, scripts, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "run: " {
		t.Fatalf("want empty substitution for confirm-required tool, got %q", out)
	}
	if len(diag.Warnings) != 1 {
		t.Fatalf("want one warning for skipped confirmation tool, got %d", len(diag.Warnings))
	}
}

func TestResolveInvalidFieldAccess(t *testing.T) {
	scripts := &stubScripts{outputs: map[string]string{"weather": `{"temp":72}`}}
	_, _, err := Resolve("{{script:weather.humidity}}", mapLookup{}, scripts, Options{})
	if err == nil {
		t.Fatal("want InvalidFieldAccess error for missing field")
	}
}

func TestResolveMaxDepthExceeded(t *testing.T) {
	lookup := mapLookup{}
	for i := 0; i < 20; i++ {
		lookup[strconv.Itoa(i)] = "{{ref:" + strconv.Itoa(i+1) + "}}"
	}
	lookup[strconv.Itoa(20)] = "bottom"
	_, _, err := Resolve("{{ref:0}}", lookup, nil, Options{MaxDepth: 5})
	if err == nil {
		t.Fatal("want max-depth-exceeded error")
	}
}
