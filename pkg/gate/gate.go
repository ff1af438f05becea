// Package gate implements the Gate System: candidate collection with
// priority-based deduplication, activation-predicate filtering, verdict
// parsing, and the retry state machine. It does not render gate guidance
// text. Resolution mirrors the teacher's
// kernel/governance.Evaluate "most restrictive wins" shape and
// kernel/contract.Merge's priority-based field combination, generalized
// from a single governance decision to a set of independently-sourced
// gate ids.
package gate

import (
	"sort"

	"github.com/promptforge/promptforge/pkg/diagnostic"
	"github.com/promptforge/promptforge/pkg/promptdef"
)

// candidate is one (id, source) pair collected by the accumulator before
// resolution. Multiple candidates may share an id; Resolve keeps the one
// with the highest source priority.
type candidate struct {
	id     string
	source promptdef.GateSource
	order  int // insertion order, for stable output among equal priority
}

// Accumulator collects candidate gate ids from every source listed in
// spec §3 over the lifetime of one Execution Context, then resolves them
// to a deduplicated, activation-filtered set.
type Accumulator struct {
	candidates []candidate
}

// NewAccumulator returns an empty gate accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add records one candidate gate id from source.
func (a *Accumulator) Add(id string, source promptdef.GateSource) {
	a.candidates = append(a.candidates, candidate{id: id, source: source, order: len(a.candidates)})
}

// AddAll records every id in ids from source.
func (a *Accumulator) AddAll(ids []string, source promptdef.GateSource) {
	for _, id := range ids {
		a.Add(id, source)
	}
}

// SourceCounts reports how many candidates were recorded per source,
// before deduplication — useful for diagnostics and tests.
func (a *Accumulator) SourceCounts() map[promptdef.GateSource]int {
	counts := make(map[promptdef.GateSource]int)
	for _, c := range a.candidates {
		counts[c.source]++
	}
	return counts
}

// Lookup resolves a gate id to its definition. The pipeline's
// implementation checks the per-request temporary store first and falls
// back to the registry (inline and client-supplied full gate definitions
// never touch the hot-reloadable registry).
type Lookup interface {
	Gate(id string) (promptdef.Gate, bool)
}

// ActivationContext is the predicate input against which each candidate
// gate's Activation block is evaluated.
type ActivationContext struct {
	PromptCategory  string
	FrameworkID     string
	ExplicitRequest map[string]bool // ids the caller explicitly asked for
}

// ResolvedGate is one gate surviving dedup + activation filtering, tagged
// with the source that won it.
type ResolvedGate struct {
	Gate   promptdef.Gate
	Source promptdef.GateSource
}

// Resolve runs the full algorithm of spec §4.3: load definitions, drop
// unresolvable ids (recording a diagnostic), drop inactive gates unless
// explicitly requested, dedup by highest priority, then partition inline
// gates first and framework gates filtered to the single active
// framework (strict: with no active framework, zero framework gates are
// emitted, for any framework).
func (a *Accumulator) Resolve(lookup Lookup, actx ActivationContext, diag *diagnostic.Accumulator) []ResolvedGate {
	winners := make(map[string]candidate, len(a.candidates))
	defs := make(map[string]promptdef.Gate, len(a.candidates))

	for _, c := range a.candidates {
		def, ok := lookup.Gate(c.id)
		if !ok {
			if diag != nil {
				diag.Warnf("gate", "unknown gate: "+c.id)
			}
			continue
		}
		if cur, exists := winners[c.id]; exists {
			if c.source.Priority() <= cur.source.Priority() {
				continue
			}
		}
		winners[c.id] = c
		defs[c.id] = def
	}

	var out []ResolvedGate
	ids := make([]string, 0, len(winners))
	for id := range winners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		wi, wj := winners[ids[i]], winners[ids[j]]
		if wi.source.Priority() != wj.source.Priority() {
			return wi.source.Priority() > wj.source.Priority()
		}
		return wi.order < wj.order
	})

	for _, id := range ids {
		c := winners[id]
		def := defs[id]
		if !active(def, actx) {
			continue
		}
		out = append(out, ResolvedGate{Gate: def, Source: c.source})
	}
	return partitionFrameworkGates(out, actx)
}

// active evaluates a gate's Activation predicate; an absent Activation
// means the gate is always active.
func active(g promptdef.Gate, actx ActivationContext) bool {
	if actx.ExplicitRequest[g.ID] {
		return true
	}
	if g.Activation == nil {
		return true
	}
	if g.Activation.ExplicitRequest {
		return false // requires explicit request and none was given
	}
	if len(g.Activation.PromptCategories) > 0 && !contains(g.Activation.PromptCategories, actx.PromptCategory) {
		return false
	}
	if len(g.Activation.FrameworkContext) > 0 && !contains(g.Activation.FrameworkContext, actx.FrameworkID) {
		return false
	}
	return true
}

// partitionFrameworkGates orders inline-operator gates first (they carry
// the highest priority and are meant to appear first in guidance text)
// and, when no framework is active, drops every methodology-sourced gate.
// With an active framework it keeps all methodology-sourced gates; it does
// not check which framework a gate belongs to (the pipeline adds only the
// active methodology's gates under that source).
func partitionFrameworkGates(in []ResolvedGate, actx ActivationContext) []ResolvedGate {
	var inline, rest []ResolvedGate
	for _, rg := range in {
		if rg.Source == promptdef.SourceMethodology {
			if actx.FrameworkID == "" {
				continue
			}
		}
		if rg.Source == promptdef.SourceInlineOperator {
			inline = append(inline, rg)
		} else {
			rest = append(rest, rg)
		}
	}
	return append(inline, rest...)
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
