package output

import (
	"fmt"
	"os"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"panicscan/internal/analysis"
	"panicscan/internal/callgraph"
)

// CallGraphFileName builds the conventional output name for a DOT call
// graph, typ being "full" or "filtered".
func CallGraphFileName(project, typ string) string {
	return fmt.Sprintf("panicscan-callgraph-%s-%s.dot", project, typ)
}

// WriteDOT renders the call graph to a DOT file. When keep is non-nil only
// nodes in the set (and edges between them) are emitted.
func WriteDOT(path string, g *callgraph.Graph, keep map[callgraph.NodeID]bool, name string) error {
	lg := &lattice.Graph{}
	for id := callgraph.NodeID(0); int(id) < g.NumNodes(); id++ {
		if keep != nil && !keep[id] {
			continue
		}
		lg.Nodes = append(lg.Nodes, g.Proc(id).DisplayName())
		for _, eid := range g.OutEdges(id) {
			_, _, to := g.Edge(eid)
			if keep != nil && !keep[to] {
				continue
			}
			lg.Edges = append(lg.Edges, lattice.Edge{
				Caller: g.Proc(id).DisplayName(),
				Callee: g.Proc(to).DisplayName(),
			})
		}
	}
	lg.Dedup()
	dot := render.DOT(lg, name)
	if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// TraceNodes collects the node set appearing on any reported trace, for the
// filtered call-graph output.
func TraceNodes(res *analysis.Result) map[callgraph.NodeID]bool {
	keep := make(map[callgraph.NodeID]bool)
	for _, t := range res.Traces {
		for _, s := range t.Steps {
			keep[s.Node] = true
		}
	}
	return keep
}
