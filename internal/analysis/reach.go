package analysis

import (
	"sort"

	"panicscan/internal/callgraph"
)

// markReachable runs a forward breadth-first search from all entry points,
// setting ReachableFromEntryPoint and recording, per node, the edge that
// first reached it. The parent edges form a forest rooted at the entries,
// giving one representative path back from any reachable node.
func markReachable(g *callgraph.Graph) map[callgraph.NodeID]callgraph.EdgeID {
	parents := make(map[callgraph.NodeID]callgraph.EdgeID)
	var queue []callgraph.NodeID

	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		p := g.Proc(id)
		if p.Attributes.EntryPoint {
			p.Attributes.ReachableFromEntryPoint = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, eid := range g.OutEdges(cur) {
			_, _, to := g.Edge(eid)
			tp := g.Proc(to)
			if tp.Attributes.ReachableFromEntryPoint {
				continue
			}
			tp.Attributes.ReachableFromEntryPoint = true
			parents[to] = eid
			queue = append(queue, to)
		}
	}
	return parents
}

// collectTraces builds one trace per (caller, panic primitive) edge where
// the caller is reachable and not itself part of the panic machinery.
func collectTraces(g *callgraph.Graph, parents map[callgraph.NodeID]callgraph.EdgeID) []PanicTrace {
	var traces []PanicTrace
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		pp := g.Proc(id)
		if !pp.Attributes.IsPanic {
			continue
		}
		for _, eid := range g.InEdges(id) {
			inv, from, _ := g.Edge(eid)
			up := g.Proc(from)
			if up.Attributes.IsPanic || !up.Attributes.ReachableFromEntryPoint {
				continue
			}
			pp.Attributes.IsPanicOrigin = true

			steps := backPath(g, parents, from)
			steps = append(steps, TraceStep{Node: id, Proc: pp, Via: inv})
			steps = append(steps, panicChain(g, id)...)

			t := PanicTrace{Steps: steps}
			t.Dynamic = traceDynamic(g, t)
			t.Pattern = classify(t)
			traces = append(traces, t)
		}
	}

	// Stable report order: by the call site entering the panic machinery.
	sort.SliceStable(traces, func(i, j int) bool {
		return originSite(traces[i]) < originSite(traces[j])
	})
	return traces
}

func originSite(t PanicTrace) uint64 {
	if o := t.Origin(); o != nil && o.Via != nil {
		return o.Via.SiteAddress
	}
	return 0
}

// backPath reconstructs the representative path from an entry point down to
// the given node, following parent edges upward. Parent edges form a
// forest, so the walk terminates.
func backPath(g *callgraph.Graph, parents map[callgraph.NodeID]callgraph.EdgeID, node callgraph.NodeID) []TraceStep {
	var rev []TraceStep
	cur := node
	for {
		eid, ok := parents[cur]
		if !ok {
			rev = append(rev, TraceStep{Node: cur, Proc: g.Proc(cur)})
			break
		}
		inv, from, _ := g.Edge(eid)
		rev = append(rev, TraceStep{Node: cur, Proc: g.Proc(cur), Via: inv})
		cur = from
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// panicChain extends a trace through the panic machinery itself, following
// panic-marked successors until the chain bottoms out.
func panicChain(g *callgraph.Graph, from callgraph.NodeID) []TraceStep {
	const maxChain = 16
	var out []TraceStep
	seen := map[callgraph.NodeID]bool{from: true}
	cur := from
	for len(out) < maxChain {
		var next callgraph.NodeID = -1
		var via *callgraph.Invocation
		for _, eid := range g.OutEdges(cur) {
			inv, _, to := g.Edge(eid)
			if !seen[to] && g.Proc(to).Attributes.IsPanic {
				next, via = to, inv
				break
			}
		}
		if next < 0 {
			break
		}
		seen[next] = true
		out = append(out, TraceStep{Node: next, Proc: g.Proc(next), Via: via})
		cur = next
	}
	return out
}

// traceDynamic reports whether the trace depends on indirect dispatch.
func traceDynamic(g *callgraph.Graph, t PanicTrace) bool {
	for _, s := range t.Steps {
		if s.Via != nil &&
			(s.Via.Type == callgraph.VTable || s.Via.Type == callgraph.ProcedureReference) {
			return true
		}
		if g.HasUnresolvedSite(s.Node) {
			return true
		}
	}
	return false
}
