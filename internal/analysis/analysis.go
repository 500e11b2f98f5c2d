// Package analysis walks a built call graph to find every reachable
// execution path that terminates in a panic primitive, classifies each
// path, and applies whitelists.
package analysis

import (
	"panicscan/internal/callgraph"
)

// Options selects what counts as an entry point and which panics are
// accepted.
type Options struct {
	// Crates to analyze. Empty means the crate of the binary's main
	// function.
	Crates []string

	// FullCrateAnalysis marks every function of the target crates as an
	// entry point instead of entry functions only.
	FullCrateAnalysis bool

	// WhitelistedFunctions are demangled function names whose panic traces
	// are accepted and filtered from the report.
	WhitelistedFunctions []string
}

// TraceStep is one procedure on a panic trace. Via is the invocation that
// led here from the previous step; nil on the first step.
type TraceStep struct {
	Node callgraph.NodeID
	Proc *callgraph.Procedure
	Via  *callgraph.Invocation
}

// PanicTrace is one path from an entry point to a panic primitive.
type PanicTrace struct {
	Pattern PanicPattern

	// Dynamic is set when the trace depends on an indirect invocation or
	// crosses a procedure with unresolved dynamic call sites, so it may be
	// a false positive.
	Dynamic bool

	Steps []TraceStep
}

// Origin returns the first panic-marked step, the place the abort enters
// the panic machinery.
func (t *PanicTrace) Origin() *TraceStep {
	for i := range t.Steps {
		if t.Steps[i].Proc.Attributes.IsPanic {
			return &t.Steps[i]
		}
	}
	return nil
}

// Result is the full analysis outcome.
type Result struct {
	Graph  *callgraph.Graph
	Traces []PanicTrace

	// Whitelisted counts traces accepted via whitelist and dropped from
	// Traces.
	Whitelisted int

	// TargetCrates are the crates whose functions were treated as entry
	// points.
	TargetCrates []string
}

// FindPanics runs the downstream pass over a built graph. It mutates
// procedure and invocation attributes in place through graph identities but
// never adds or removes nodes or edges.
func FindPanics(g *callgraph.Graph, info callgraph.CompilationInfo, opts Options) *Result {
	markPanics(g, info.RustVersion)
	targets := targetCrates(g, opts.Crates)
	markEntryPoints(g, targets, opts.FullCrateAnalysis)
	applyWhitelist(g, opts.WhitelistedFunctions)

	parents := markReachable(g)
	traces := collectTraces(g, parents)

	res := &Result{Graph: g, TargetCrates: targets}
	for _, t := range traces {
		if traceWhitelisted(t) {
			res.Whitelisted++
			continue
		}
		res.Traces = append(res.Traces, t)
	}
	return res
}

// targetCrates resolves the analysis targets: the explicit list, or the
// crate defining main.
func targetCrates(g *callgraph.Graph, crates []string) []string {
	if len(crates) > 0 {
		return crates
	}
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		p := g.Proc(id)
		if isMain(p) && p.Crate.Name != "" {
			return []string{p.Crate.Name}
		}
	}
	return nil
}

// markEntryPoints sets the EntryPoint attribute. By default only the main
// function and functions nothing in the target crates calls are entries;
// full crate analysis takes every function of the target crates.
func markEntryPoints(g *callgraph.Graph, targets []string, full bool) {
	inTarget := make(map[string]bool, len(targets))
	for _, c := range targets {
		inTarget[c] = true
	}
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		p := g.Proc(id)
		if p.Placeholder || !inTarget[p.Crate.Name] {
			continue
		}
		switch {
		case full:
			p.Attributes.EntryPoint = true
		case isMain(p):
			p.Attributes.EntryPoint = true
		case len(g.InEdges(id)) == 0:
			p.Attributes.EntryPoint = true
		}
	}
}

// applyWhitelist marks whitelisted procedures and their outgoing
// invocations.
func applyWhitelist(g *callgraph.Graph, names []string) {
	if len(names) == 0 {
		return
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		p := g.Proc(id)
		if !set[p.DisplayName()] && !set[p.Name] {
			continue
		}
		p.Attributes.Whitelisted = true
		for _, eid := range g.OutEdges(id) {
			inv, _, _ := g.Edge(eid)
			inv.Attributes.Whitelisted = true
		}
	}
}

// traceWhitelisted accepts a trace when any step before the panic machinery
// is whitelisted.
func traceWhitelisted(t PanicTrace) bool {
	for _, s := range t.Steps {
		if s.Proc.Attributes.IsPanic {
			break
		}
		if s.Proc.Attributes.Whitelisted {
			return true
		}
	}
	return false
}

func isMain(p *callgraph.Procedure) bool {
	if p.Name == "main" {
		return true
	}
	d := p.LinkageNameDemangled
	return d == "main" || len(d) > 6 && d[len(d)-6:] == "::main"
}
