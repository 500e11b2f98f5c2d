package callgraph

import "sort"

// NodeID identifies a procedure node. IDs stay valid for the lifetime of the
// graph as more nodes are added; external passes hold NodeIDs, never their
// own copies of Procedure records.
type NodeID int

// EdgeID identifies an invocation edge, with the same stability guarantee.
type EdgeID int

type edge struct {
	from, to NodeID
	inv      *Invocation
}

// Graph is the call graph: an append-only directed multigraph of procedures
// plus the two address indices.
//
// ProcIndex maps procedure start addresses to node identity and is injective
// over defined procedures. CallIndex maps call/jump instruction addresses to
// the node of the *enclosing* procedure, so finders can resolve which
// procedure contains a call site without re-scanning disassembly.
type Graph struct {
	nodes []*Procedure
	edges []edge
	out   [][]EdgeID
	in    [][]EdgeID

	ProcIndex map[uint64]NodeID
	CallIndex map[uint64]NodeID

	// siteEdges claims one outgoing edge per instruction address. This makes
	// the cross-finder de-duplication discipline structural instead of a
	// convention on finder ordering.
	siteEdges map[uint64]EdgeID

	// unresolved records call sites whose dynamic target could not be
	// determined, keyed by site address with the enclosing node.
	unresolved map[uint64]NodeID
}

// NewGraph returns an empty call graph.
func NewGraph() *Graph {
	return &Graph{
		ProcIndex:  make(map[uint64]NodeID),
		CallIndex:  make(map[uint64]NodeID),
		siteEdges:  make(map[uint64]EdgeID),
		unresolved: make(map[uint64]NodeID),
	}
}

// AddProc adds a procedure node and indexes its start address. If a node
// with the same start address already exists, its identity is returned
// unchanged: ProcIndex stays injective.
func (g *Graph) AddProc(p *Procedure) NodeID {
	if id, ok := g.ProcIndex[p.StartAddress]; ok {
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, p)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.ProcIndex[p.StartAddress] = id
	return id
}

// AddPlaceholder adds (or reuses) a placeholder node for a callee defined
// outside the analyzed binary.
func (g *Graph) AddPlaceholder(addr uint64, name string) NodeID {
	if id, ok := g.ProcIndex[addr]; ok {
		return id
	}
	return g.AddProc(&Procedure{
		StartAddress: addr,
		Name:         name,
		Placeholder:  true,
	})
}

// AddInvocation adds an edge from one node to another. At most one outgoing
// edge may originate from any instruction address: a second attempt for the
// same site returns the already-claimed edge and false.
func (g *Graph) AddInvocation(from, to NodeID, inv *Invocation) (EdgeID, bool) {
	if prev, ok := g.siteEdges[inv.SiteAddress]; ok {
		return prev, false
	}
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, edge{from: from, to: to, inv: inv})
	g.out[from] = append(g.out[from], id)
	g.in[to] = append(g.in[to], id)
	g.siteEdges[inv.SiteAddress] = id
	delete(g.unresolved, inv.SiteAddress)
	return id, true
}

// Resolved reports whether the call site already has an outgoing edge.
func (g *Graph) Resolved(site uint64) bool {
	_, ok := g.siteEdges[site]
	return ok
}

// EdgeAt returns the edge claimed by the given call site, if any.
func (g *Graph) EdgeAt(site uint64) (EdgeID, bool) {
	id, ok := g.siteEdges[site]
	return id, ok
}

// MarkUnresolved records a call site as an unresolved dynamic invocation.
// Sites that later gain an edge are no longer unresolved.
func (g *Graph) MarkUnresolved(site uint64) {
	if g.Resolved(site) {
		return
	}
	node, ok := g.CallIndex[site]
	if !ok {
		node = -1
	}
	g.unresolved[site] = node
}

// UnresolvedSites returns all unresolved dynamic call sites, sorted.
func (g *Graph) UnresolvedSites() []uint64 {
	sites := make([]uint64, 0, len(g.unresolved))
	for s := range g.unresolved {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// HasUnresolvedSite reports whether the node contains an unresolved dynamic
// call site.
func (g *Graph) HasUnresolvedSite(id NodeID) bool {
	for _, n := range g.unresolved {
		if n == id {
			return true
		}
	}
	return false
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int { return len(g.edges) }

// Proc returns the procedure record at a node. The graph keeps ownership;
// callers mutate attributes in place but must not re-home the record.
func (g *Graph) Proc(id NodeID) *Procedure { return g.nodes[id] }

// OutEdges returns the identities of edges leaving the node.
func (g *Graph) OutEdges(id NodeID) []EdgeID { return g.out[id] }

// InEdges returns the identities of edges entering the node.
func (g *Graph) InEdges(id NodeID) []EdgeID { return g.in[id] }

// Edge returns an edge's payload and endpoints.
func (g *Graph) Edge(id EdgeID) (inv *Invocation, from, to NodeID) {
	e := g.edges[id]
	return e.inv, e.from, e.to
}

// EnclosingProc returns the node containing the given call/jump instruction.
func (g *Graph) EnclosingProc(site uint64) (NodeID, bool) {
	id, ok := g.CallIndex[site]
	return id, ok
}
