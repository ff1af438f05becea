package pipeline

// FrameworkAuthority decides which methodology (if any) applies to one
// request, per spec §4.1's priority cascade: modifiers (%clean disables,
// %lean minimizes, %framework forces) > @operator override > client
// override > global. It is a pure function over an immutable decision
// value, mirroring the priority-cascade style of the teacher's
// governance.Evaluate rule-matching loop, generalized from a single
// governance rule list to four fixed priority tiers.
type FrameworkAuthority struct{}

// Decide applies the priority cascade. clientOverride is the framework id
// the client supplied with this request (options "framework"), if any; globalActive
// is the process-wide "framework system enabled" flag and globalFramework
// its currently active framework.
func (FrameworkAuthority) Decide(mods ModifierSet, clientOverride string, globalActive bool, globalFramework string) FrameworkDecision {
	if mods.Clean {
		return FrameworkDecision{ShouldApply: false, SourceTag: "modifier:%clean"}
	}
	if mods.ForcedFramework != "" {
		return FrameworkDecision{FrameworkID: mods.ForcedFramework, ShouldApply: true, Minimal: mods.Lean, SourceTag: "modifier:%framework"}
	}
	if mods.OperatorFramework != "" {
		return FrameworkDecision{FrameworkID: mods.OperatorFramework, ShouldApply: true, Minimal: mods.Lean, SourceTag: "operator:@framework"}
	}
	if clientOverride != "" {
		return FrameworkDecision{FrameworkID: clientOverride, ShouldApply: true, Minimal: mods.Lean, SourceTag: "client-override"}
	}
	if globalActive && globalFramework != "" {
		return FrameworkDecision{FrameworkID: globalFramework, ShouldApply: true, Minimal: mods.Lean, SourceTag: "global"}
	}
	return FrameworkDecision{ShouldApply: false, SourceTag: "none"}
}
