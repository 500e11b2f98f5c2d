package callgraph

import (
	"fmt"

	"panicscan/internal/disasm"
)

// DefaultFinders returns the canonical finder order. Direct calls resolve
// first so later finders see their sites claimed; the reference finder runs
// last because it never competes for call-class sites.
func DefaultFinders() []Finder {
	return []Finder{
		DirectCallFinder{},
		JumpFinder{},
		VTableFinder{},
		ProcRefFinder{},
	}
}

// ensureTarget resolves a target address to a node, creating a named
// placeholder when the address is outside the indexed procedure set.
func ensureTarget(g *Graph, ctx *Context, target uint64) NodeID {
	if id, ok := g.ProcIndex[target]; ok {
		return id
	}
	name, ok := ctx.ResolveSymbol(target)
	if !ok {
		name = fmt.Sprintf("sub_%x", target)
	}
	return g.AddPlaceholder(target, name)
}

// enclosing resolves the node containing a call site through CallIndex,
// falling back to the node being scanned.
func enclosing(g *Graph, site uint64, fallback NodeID) NodeID {
	if id, ok := g.EnclosingProc(site); ok {
		return id
	}
	return fallback
}

// DirectCallFinder matches call-class instructions whose target address is
// statically encoded in the instruction.
type DirectCallFinder struct{}

func (DirectCallFinder) FindInvocations(g *Graph, ctx *Context, info CompilationInfo) {
	for id := NodeID(0); int(id) < g.NumNodes(); id++ {
		for _, inst := range g.Proc(id).Disassembly {
			if !ctx.Classifier.IsCall(inst) {
				continue
			}
			site := inst.Addr
			if g.Resolved(site) {
				continue
			}
			target, ok := disasm.CallTarget(inst)
			if !ok {
				continue // indirect: another finder's mechanism
			}
			to := ensureTarget(g, ctx, target)
			g.AddInvocation(enclosing(g, site, id), to, &Invocation{
				Type:        Direct,
				SiteAddress: site,
				Frames:      ctx.FramesAt(site),
			})
		}
	}
}

// JumpFinder matches jump-class instructions used for tail calls. A jump
// whose target falls inside the enclosing procedure's address range is an
// ordinary branch and produces no edge.
type JumpFinder struct{}

func (JumpFinder) FindInvocations(g *Graph, ctx *Context, info CompilationInfo) {
	for id := NodeID(0); int(id) < g.NumNodes(); id++ {
		proc := g.Proc(id)
		for _, inst := range proc.Disassembly {
			if !ctx.Classifier.IsJump(inst) {
				continue
			}
			site := inst.Addr
			if g.Resolved(site) {
				continue
			}
			target, ok := disasm.JumpTarget(inst)
			if !ok {
				// Register- or memory-indirect jump: dynamic target.
				if disasm.IsUnconditionalJump(inst) {
					g.MarkUnresolved(site)
				}
				continue
			}
			if proc.Contains(target) {
				continue
			}
			to := ensureTarget(g, ctx, target)
			g.AddInvocation(enclosing(g, site, id), to, &Invocation{
				Type:        Jump,
				SiteAddress: site,
				Frames:      ctx.FramesAt(site),
			})
		}
	}
}

// VTableFinder matches indirect call-class instructions whose target is
// loaded from a dispatch-table pointer slot. A site whose slot cannot be
// chased to a defined procedure is recorded as unresolved, never matched to
// an arbitrary node.
type VTableFinder struct{}

func (VTableFinder) FindInvocations(g *Graph, ctx *Context, info CompilationInfo) {
	for id := NodeID(0); int(id) < g.NumNodes(); id++ {
		for _, inst := range g.Proc(id).Disassembly {
			if !ctx.Classifier.IsCall(inst) {
				continue
			}
			site := inst.Addr
			if g.Resolved(site) {
				continue
			}
			if _, direct := disasm.CallTarget(inst); direct {
				continue
			}
			slot, ok := disasm.MemSlot(inst)
			if !ok || ctx.Code == nil {
				g.MarkUnresolved(site)
				continue
			}
			ptr, ok := ctx.Code.ReadPointer(slot)
			if !ok || ptr == 0 {
				g.MarkUnresolved(site)
				continue
			}
			to, ok := g.ProcIndex[ptr]
			if !ok {
				g.MarkUnresolved(site)
				continue
			}
			g.AddInvocation(enclosing(g, site, id), to, &Invocation{
				Type:        VTable,
				SiteAddress: site,
				Frames:      ctx.FramesAt(site),
			})
		}
	}
}

// ProcRefFinder matches idioms where a procedure's address is taken and
// stored: RIP-relative LEA and 64-bit immediate materialization. The
// resulting edges mean "could be invoked indirectly through this reference"
// and serve conservative reachability, not guaranteed control flow.
type ProcRefFinder struct{}

func (ProcRefFinder) FindInvocations(g *Graph, ctx *Context, info CompilationInfo) {
	for id := NodeID(0); int(id) < g.NumNodes(); id++ {
		for _, inst := range g.Proc(id).Disassembly {
			if ctx.Classifier.IsCall(inst) || ctx.Classifier.IsJump(inst) {
				continue
			}
			for _, ref := range disasm.StaticRefs(inst) {
				to, ok := g.ProcIndex[ref]
				if !ok {
					// Addresses outside the procedure set are
					// indistinguishable from data; no placeholder.
					continue
				}
				g.AddInvocation(id, to, &Invocation{
					Type:        ProcedureReference,
					SiteAddress: inst.Addr,
					Frames:      ctx.FramesAt(inst.Addr),
				})
			}
		}
	}
}
