// Package disasm provides x86-64 disassembly for Rust binary code regions.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Inst is a decoded x86-64 instruction with address and length.
type Inst struct {
	Addr uint64
	Len  int
	X86  x86asm.Inst // zero Op for undecodable bytes
	Text string      // full disassembly line
}

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Decode linearly decodes instructions from a byte region.
// baseAddr is the virtual address of the first byte in code.
// Undecodable bytes are kept as single-byte filler records so that the
// address space of the region stays fully covered.
func Decode(code []byte, baseAddr uint64) []Inst {
	var result []Inst
	off := 0
	for off < len(code) {
		addr := baseAddr + uint64(off)
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			result = append(result, Inst{
				Addr: addr,
				Len:  1,
				Text: fmt.Sprintf(".byte 0x%02x", code[off]),
			})
			off++
			continue
		}
		result = append(result, Inst{
			Addr: addr,
			Len:  inst.Len,
			X86:  inst,
			Text: inst.String(),
		})
		off += inst.Len
	}
	return result
}

// End returns the address one past the last byte of the instruction.
func (i Inst) End() uint64 {
	return i.Addr + uint64(i.Len)
}

// target computes the destination of a PC-relative operand.
func (i Inst) target(rel x86asm.Rel) uint64 {
	return uint64(int64(i.Addr) + int64(i.Len) + int64(rel))
}

// CallTarget returns the statically encoded destination of a direct call.
// Returns false for indirect calls and non-call instructions.
func CallTarget(i Inst) (uint64, bool) {
	if i.X86.Op != x86asm.CALL {
		return 0, false
	}
	if rel, ok := i.X86.Args[0].(x86asm.Rel); ok {
		return i.target(rel), true
	}
	return 0, false
}

// JumpTarget returns the statically encoded destination of a direct jump,
// conditional or not. Returns false for indirect jumps and non-jumps.
func JumpTarget(i Inst) (uint64, bool) {
	if !isJumpOp(i.X86.Op) {
		return 0, false
	}
	if rel, ok := i.X86.Args[0].(x86asm.Rel); ok {
		return i.target(rel), true
	}
	return 0, false
}

// disp32 sign-extends a decoded 32-bit displacement. x/arch stores it
// zero-extended in Mem.Disp, so negative displacements arrive as values
// just under 2^32.
func disp32(d int64) int64 {
	return int64(int32(d))
}

// MemSlot resolves a memory operand of an indirect call/jump to the absolute
// address of the pointer slot it loads from. Only absolute-displacement and
// RIP-relative operands resolve; register-based operands return false.
func MemSlot(i Inst) (uint64, bool) {
	mem, ok := i.X86.Args[0].(x86asm.Mem)
	if !ok {
		return 0, false
	}
	switch {
	case mem.Base == x86asm.RIP && mem.Index == 0:
		return uint64(int64(i.Addr) + int64(i.Len) + disp32(mem.Disp)), true
	case mem.Base == 0 && mem.Index == 0:
		return uint64(mem.Disp), true
	}
	return 0, false
}

// StaticRefs returns code addresses materialized by the instruction without
// transferring control to them: RIP-relative LEA and 64-bit immediate moves.
// These are how a procedure's address is taken for indirect invocation.
func StaticRefs(i Inst) []uint64 {
	var refs []uint64
	switch i.X86.Op {
	case x86asm.LEA:
		if mem, ok := i.X86.Args[1].(x86asm.Mem); ok && mem.Base == x86asm.RIP && mem.Index == 0 {
			refs = append(refs, uint64(int64(i.Addr)+int64(i.Len)+disp32(mem.Disp)))
		}
	case x86asm.MOV, x86asm.PUSH:
		for _, arg := range i.X86.Args {
			if imm, ok := arg.(x86asm.Imm); ok && imm > 0 {
				refs = append(refs, uint64(imm))
			}
		}
	}
	return refs
}
