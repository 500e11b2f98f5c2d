// Package callgraph builds a directed call graph from a disassembled binary
// and its debug information. Nodes are procedures, edges are detected
// invocations; two address-keyed indices tie binary addresses to graph
// identity. Edges are populated by an ordered list of invocation finders,
// one per calling mechanism.
package callgraph

import (
	"fmt"

	"panicscan/internal/disasm"
)

// InvocationType is the calling mechanism behind an edge. Fixed at edge
// creation, never reclassified.
type InvocationType int

const (
	// Direct is a call whose target address is encoded in the instruction.
	Direct InvocationType = iota
	// ProcedureReference marks an address-taken procedure: it could be
	// invoked indirectly through the stored reference.
	ProcedureReference
	// VTable is an indirect call through a dispatch-table pointer slot.
	VTable
	// Jump is a tail call: control transfer without a saved return address.
	Jump
)

func (t InvocationType) String() string {
	switch t {
	case Direct:
		return "direct"
	case ProcedureReference:
		return "procedure-reference"
	case VTable:
		return "vtable"
	case Jump:
		return "jump"
	}
	return fmt.Sprintf("InvocationType(%d)", int(t))
}

// Crate identifies the compilation unit a procedure came from.
type Crate struct {
	Name    string
	Version string // empty if unknown
}

func (c Crate) String() string {
	if c.Version == "" {
		return c.Name
	}
	return c.Name + "@" + c.Version
}

// Location is a source file position.
type Location struct {
	File string
	Line int
}

// Frame is one inlined call between a call site and the physical instruction.
type Frame struct {
	Function string
	Location Location
	Crate    Crate
}

// ProcAttributes are mutated by analysis passes after construction,
// never at build time.
type ProcAttributes struct {
	EntryPoint              bool
	ReachableFromEntryPoint bool
	IsPanic                 bool
	IsPanicOrigin           bool
	Whitelisted             bool
}

// InvocationAttributes are mutated by analysis passes after construction.
type InvocationAttributes struct {
	Whitelisted bool
}

// Procedure is one defined function in the binary. StartAddress is the
// unique key within one graph.
type Procedure struct {
	StartAddress         uint64
	Name                 string
	LinkageName          string
	LinkageNameDemangled string
	Crate                Crate
	Location             *Location
	Disassembly          []disasm.Inst
	Attributes           ProcAttributes

	// Placeholder marks a callee with no procedure definition in the
	// analyzed binary (external or runtime function).
	Placeholder bool

	// Metadata is an opaque slot for downstream passes.
	Metadata any
}

// EndAddress returns the address one past the procedure's last instruction.
func (p *Procedure) EndAddress() uint64 {
	if len(p.Disassembly) == 0 {
		return p.StartAddress
	}
	return p.Disassembly[len(p.Disassembly)-1].End()
}

// Contains reports whether addr falls within the procedure's instruction
// address range. Placeholders contain nothing.
func (p *Procedure) Contains(addr uint64) bool {
	return addr >= p.StartAddress && addr < p.EndAddress()
}

// DisplayName returns the most readable identity available.
func (p *Procedure) DisplayName() string {
	switch {
	case p.LinkageNameDemangled != "":
		return p.LinkageNameDemangled
	case p.Name != "":
		return p.Name
	}
	return fmt.Sprintf("sub_%x", p.StartAddress)
}

// Invocation is one detected call/jump edge. It always connects exactly one
// source node to exactly one target node.
type Invocation struct {
	Type        InvocationType
	SiteAddress uint64 // address of the call/jump instruction

	// Frames is the inlining chain between the source-level call and the
	// physical instruction, outermost first. Empty if no inlining occurred.
	Frames []Frame

	Attributes InvocationAttributes

	// Metadata is an opaque slot for downstream passes.
	Metadata any
}
