package callgraph

import (
	"testing"

	"panicscan/internal/disasm"
)

type fakeCode map[uint64]uint64

func (f fakeCode) ReadPointer(va uint64) (uint64, bool) {
	v, ok := f[va]
	return v, ok
}

func codeProc(name string, addr uint64, code []byte) *Procedure {
	return &Procedure{
		StartAddress: addr,
		Name:         name,
		Crate:        Crate{Name: "app"},
		Disassembly:  disasm.Decode(code, addr),
	}
}

// testContext assembles a small binary by hand:
//
//	f 0x1000: call 0x1010; ret
//	g 0x1010: ret
//	p 0x2000: je 0x2002; jmp 0x2010         (je stays inside p, jmp leaves)
//	q 0x2010: ret
//	h 0x3000: call [rip->0x4000]; call [rip->0x5000]; ret
//	r 0x6000: lea rax, [rip->0x1010]; ret
//	x 0x7000: call 0x9000; ret              (0x9000 has no definition)
//	v 0x8000: call [rip->0x4000]; ret       (negative displacement)
//
// Pointer slot 0x4000 holds g's address; slot 0x5000 is unmapped.
func testContext() *Context {
	return &Context{
		Units: []CompilationUnit{{
			Name: "app/src/main.rs",
			Dir:  "/src/app",
			Procedures: []*Procedure{
				codeProc("f", 0x1000, []byte{0xE8, 0x0B, 0x00, 0x00, 0x00, 0xC3}),
				codeProc("g", 0x1010, []byte{0xC3}),
				codeProc("p", 0x2000, []byte{0x74, 0x00, 0xE9, 0x09, 0x00, 0x00, 0x00}),
				codeProc("q", 0x2010, []byte{0xC3}),
				codeProc("h", 0x3000, []byte{
					0xFF, 0x15, 0xFA, 0x0F, 0x00, 0x00,
					0xFF, 0x15, 0xF4, 0x1F, 0x00, 0x00,
					0xC3,
				}),
				codeProc("r", 0x6000, []byte{0x48, 0x8D, 0x05, 0x09, 0xB0, 0xFF, 0xFF, 0xC3}),
				codeProc("x", 0x7000, []byte{0xE8, 0xFB, 0x1F, 0x00, 0x00, 0xC3}),
				codeProc("v", 0x8000, []byte{0xFF, 0x15, 0xFA, 0xBF, 0xFF, 0xFF, 0xC3}),
			},
		}},
		Classifier: disasm.X86Classifier{},
		Code:       fakeCode{0x4000: 0x1010},
		SymbolName: func(addr uint64) (string, bool) {
			if addr == 0x9000 {
				return "ext_fn", true
			}
			return "", false
		},
	}
}

// edgeAt finds the edge claimed by a site and returns its payload with
// endpoint names.
func edgeAt(t *testing.T, g *Graph, site uint64) (*Invocation, string, string) {
	t.Helper()
	id, ok := g.EdgeAt(site)
	if !ok {
		t.Fatalf("no edge at site 0x%x", site)
	}
	inv, from, to := g.Edge(id)
	return inv, g.Proc(from).Name, g.Proc(to).Name
}

func TestBuildDirectCall(t *testing.T) {
	g := NewBuilder().Build(testContext())

	inv, from, to := edgeAt(t, g, 0x1000)
	if inv.Type != Direct || from != "f" || to != "g" {
		t.Errorf("site 0x1000: %v %s->%s, want direct f->g", inv.Type, from, to)
	}
}

func TestBuildTailJump(t *testing.T) {
	g := NewBuilder().Build(testContext())

	// The conditional jump at 0x2000 targets 0x2002, inside p: no edge.
	if _, ok := g.EdgeAt(0x2000); ok {
		t.Error("intra-procedure branch produced an edge")
	}
	inv, from, to := edgeAt(t, g, 0x2002)
	if inv.Type != Jump || from != "p" || to != "q" {
		t.Errorf("site 0x2002: %v %s->%s, want jump p->q", inv.Type, from, to)
	}
}

func TestBuildVTableCall(t *testing.T) {
	g := NewBuilder().Build(testContext())

	inv, from, to := edgeAt(t, g, 0x3000)
	if inv.Type != VTable || from != "h" || to != "g" {
		t.Errorf("site 0x3000: %v %s->%s, want vtable h->g", inv.Type, from, to)
	}

	// The slot sits below the call site, so the displacement is negative.
	inv, from, to = edgeAt(t, g, 0x8000)
	if inv.Type != VTable || from != "v" || to != "g" {
		t.Errorf("site 0x8000: %v %s->%s, want vtable v->g", inv.Type, from, to)
	}
}

func TestBuildUnresolvedDynamicSite(t *testing.T) {
	g := NewBuilder().Build(testContext())

	// The second indirect call chases an unmapped slot: no edge, explicit
	// unresolved mark on the site, never a guess.
	if _, ok := g.EdgeAt(0x3006); ok {
		t.Fatal("unchaseable indirect call produced an edge")
	}
	sites := g.UnresolvedSites()
	if len(sites) != 1 || sites[0] != 0x3006 {
		t.Fatalf("UnresolvedSites = %#x, want [0x3006]", sites)
	}
	h := g.ProcIndex[0x3000]
	if !g.HasUnresolvedSite(h) {
		t.Error("enclosing procedure not flagged for the unresolved site")
	}
}

func TestBuildProcReference(t *testing.T) {
	g := NewBuilder().Build(testContext())

	inv, from, to := edgeAt(t, g, 0x6000)
	if inv.Type != ProcedureReference || from != "r" || to != "g" {
		t.Errorf("site 0x6000: %v %s->%s, want procedure-reference r->g", inv.Type, from, to)
	}
}

func TestBuildPlaceholderForExternalTarget(t *testing.T) {
	g := NewBuilder().Build(testContext())

	inv, from, to := edgeAt(t, g, 0x7000)
	if inv.Type != Direct || from != "x" || to != "ext_fn" {
		t.Errorf("site 0x7000: %v %s->%s, want direct x->ext_fn", inv.Type, from, to)
	}
	id := g.ProcIndex[0x9000]
	if !g.Proc(id).Placeholder {
		t.Error("external target not marked as placeholder")
	}

	// Placeholder minimality: exactly one placeholder, for the one external
	// target, and no placeholder for unchaseable dynamic sites.
	placeholders := 0
	for n := NodeID(0); int(n) < g.NumNodes(); n++ {
		if g.Proc(n).Placeholder {
			placeholders++
		}
	}
	if placeholders != 1 {
		t.Errorf("placeholder count = %d, want 1", placeholders)
	}
}

func TestBuildCounts(t *testing.T) {
	g := NewBuilder().Build(testContext())

	if got := g.NumNodes(); got != 9 {
		t.Errorf("NumNodes = %d, want 9 (8 defined + 1 placeholder)", got)
	}
	if got := g.NumEdges(); got != 6 {
		t.Errorf("NumEdges = %d, want 6", got)
	}
}

func TestBuildCallIndexContainment(t *testing.T) {
	g := NewBuilder().Build(testContext())

	for site, id := range g.CallIndex {
		proc := g.Proc(id)
		if !proc.Contains(site) {
			t.Errorf("CallIndex site 0x%x maps to %s, which does not contain it", site, proc.Name)
		}
	}
}

func TestBuildAtMostOneEdgePerSite(t *testing.T) {
	g := NewBuilder().Build(testContext())

	seen := make(map[uint64]EdgeID)
	for e := EdgeID(0); int(e) < g.NumEdges(); e++ {
		inv, _, _ := g.Edge(e)
		if prev, dup := seen[inv.SiteAddress]; dup {
			t.Errorf("site 0x%x claimed by edges %d and %d", inv.SiteAddress, prev, e)
		}
		seen[inv.SiteAddress] = e
	}
}

// Finder order must not change which edges exist, only which finder claims
// an overlapping site first. With disjoint mechanisms the graphs come out
// identical.
func TestBuildFinderOrderIndependentForDisjointMechanisms(t *testing.T) {
	forward := NewBuilder().Build(testContext())
	reversed := NewBuilder(
		ProcRefFinder{}, VTableFinder{}, JumpFinder{}, DirectCallFinder{},
	).Build(testContext())

	if forward.NumNodes() != reversed.NumNodes() {
		t.Errorf("node counts differ: %d vs %d", forward.NumNodes(), reversed.NumNodes())
	}
	if forward.NumEdges() != reversed.NumEdges() {
		t.Errorf("edge counts differ: %d vs %d", forward.NumEdges(), reversed.NumEdges())
	}
	for e := EdgeID(0); int(e) < forward.NumEdges(); e++ {
		inv, _, _ := forward.Edge(e)
		id, ok := reversed.EdgeAt(inv.SiteAddress)
		if !ok {
			t.Errorf("site 0x%x has no edge under reversed order", inv.SiteAddress)
			continue
		}
		rinv, _, _ := reversed.Edge(id)
		if rinv.Type != inv.Type {
			t.Errorf("site 0x%x: type %v vs %v", inv.SiteAddress, inv.Type, rinv.Type)
		}
	}
}

func TestBuildIdempotent(t *testing.T) {
	ctx := testContext()
	g1 := NewBuilder().Build(ctx)
	g2 := NewBuilder().Build(ctx)

	if g1.NumNodes() != g2.NumNodes() || g1.NumEdges() != g2.NumEdges() {
		t.Fatalf("rebuild differs: %d/%d nodes, %d/%d edges",
			g1.NumNodes(), g2.NumNodes(), g1.NumEdges(), g2.NumEdges())
	}
	for addr, id := range g1.ProcIndex {
		id2, ok := g2.ProcIndex[addr]
		if !ok {
			t.Errorf("0x%x missing from rebuilt ProcIndex", addr)
			continue
		}
		if g1.Proc(id).Name != g2.Proc(id2).Name {
			t.Errorf("0x%x: %q vs %q", addr, g1.Proc(id).Name, g2.Proc(id2).Name)
		}
	}
}

func TestBuildInlineFrames(t *testing.T) {
	ctx := testContext()
	ctx.InlineFrames = func(site uint64) []Frame {
		if site == 0x1000 {
			return []Frame{{Function: "inlined_helper", Location: Location{File: "lib.rs", Line: 7}}}
		}
		return nil
	}
	g := NewBuilder().Build(ctx)

	inv, _, _ := edgeAt(t, g, 0x1000)
	if len(inv.Frames) != 1 || inv.Frames[0].Function != "inlined_helper" {
		t.Fatalf("frames = %+v, want one inlined_helper frame", inv.Frames)
	}
	inv, _, _ = edgeAt(t, g, 0x2002)
	if len(inv.Frames) != 0 {
		t.Errorf("jump site picked up frames: %+v", inv.Frames)
	}
}
