package callgraph

import "panicscan/internal/disasm"

// CompilationUnit is one debug-info translation unit with its procedures in
// debug-info order. Ordering need not be address-sorted, only stable.
type CompilationUnit struct {
	Name       string
	Dir        string
	Producer   string
	Procedures []*Procedure
}

// CodeReader reads pointer slots out of the binary image. The vtable finder
// uses it to chase dispatch-table entries.
type CodeReader interface {
	ReadPointer(va uint64) (uint64, bool)
}

// Context is the fully decoded input to graph construction: binary, debug
// info and disassembly are already loaded. The builder and finders only
// read it.
type Context struct {
	Units      []CompilationUnit
	Classifier disasm.Classifier
	Code       CodeReader

	// SymbolName names out-of-binary call targets for placeholder nodes.
	SymbolName disasm.SymbolLookup

	// InlineFrames resolves the inlining chain covering an instruction
	// address. May be nil.
	InlineFrames func(site uint64) []Frame

	// ToolchainVersion is the detected compiler version, best-effort.
	ToolchainVersion string
}

// CompilationDirs returns the distinct compilation-unit source directories
// in unit order.
func (ctx *Context) CompilationDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, u := range ctx.Units {
		if u.Dir == "" || seen[u.Dir] {
			continue
		}
		seen[u.Dir] = true
		dirs = append(dirs, u.Dir)
	}
	return dirs
}

// FramesAt resolves inline frames for a call site, nil-safe.
func (ctx *Context) FramesAt(site uint64) []Frame {
	if ctx.InlineFrames == nil {
		return nil
	}
	return ctx.InlineFrames(site)
}

// ResolveSymbol names an address, nil-safe.
func (ctx *Context) ResolveSymbol(addr uint64) (string, bool) {
	if ctx.SymbolName == nil {
		return "", false
	}
	return ctx.SymbolName(addr)
}

// CompilationInfo is the read-only bag handed to every finder: source
// directories for resolving relative paths in frames, and the toolchain
// version, which decides which instruction idioms count as panic-producing
// or crate-boundary patterns.
type CompilationInfo struct {
	SourceDirs  []string
	RustVersion string
}

// Finder detects invocations of one specific calling mechanism and mutates
// the graph, adding edges and placeholder nodes. A finder must skip call
// sites already resolved by finders earlier in the run.
type Finder interface {
	FindInvocations(g *Graph, ctx *Context, info CompilationInfo)
}

// Builder drives two-phase graph construction with a fixed, ordered finder
// list. Order is significant: an earlier finder resolving a site removes
// ambiguity for later ones.
type Builder struct {
	Finders []Finder
}

// NewBuilder returns a builder with the given finders, or the canonical
// default order when none are given.
func NewBuilder(finders ...Finder) *Builder {
	if len(finders) == 0 {
		finders = DefaultFinders()
	}
	return &Builder{Finders: finders}
}

// Build produces one call graph from the context. Construction is
// single-threaded; finders run strictly sequentially over the shared graph.
// Unresolvable call sites are not errors: they end up with no outgoing edge
// or an explicit unresolved mark.
func (b *Builder) Build(ctx *Context) *Graph {
	g := NewGraph()
	info := CompilationInfo{
		SourceDirs:  ctx.CompilationDirs(),
		RustVersion: ctx.ToolchainVersion,
	}

	// Node-population pass: every procedure becomes a node, every call/jump
	// instruction address maps to its enclosing node.
	for _, unit := range ctx.Units {
		for _, proc := range unit.Procedures {
			id := g.AddProc(proc)
			for _, inst := range proc.Disassembly {
				if ctx.Classifier.IsCall(inst) || ctx.Classifier.IsJump(inst) {
					g.CallIndex[inst.Addr] = id
				}
			}
		}
	}

	// Edge-population pass.
	for _, f := range b.Finders {
		f.FindInvocations(g, ctx, info)
	}
	return g
}
