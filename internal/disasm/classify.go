package disasm

import "golang.org/x/arch/x86/x86asm"

// Classifier reports the semantic class of an instruction. The call-graph
// core never inspects engine-specific opcode identifiers directly; it asks
// this interface instead, so the disassembly engine can be swapped out.
type Classifier interface {
	IsCall(i Inst) bool
	IsJump(i Inst) bool
}

// X86Classifier classifies x86-64 instructions decoded by x/arch.
type X86Classifier struct{}

func (X86Classifier) IsCall(i Inst) bool {
	return i.X86.Op == x86asm.CALL || i.X86.Op == x86asm.LCALL
}

func (X86Classifier) IsJump(i Inst) bool {
	return isJumpOp(i.X86.Op)
}

// isJumpOp covers unconditional, conditional and far jumps. Calls are not
// jumps: they return to the next instruction.
func isJumpOp(op x86asm.Op) bool {
	switch op {
	case x86asm.JMP, x86asm.LJMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE,
		x86asm.JE, x86asm.JNE, x86asm.JG, x86asm.JGE,
		x86asm.JL, x86asm.JLE, x86asm.JO, x86asm.JNO,
		x86asm.JP, x86asm.JNP, x86asm.JS, x86asm.JNS,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		return true
	}
	return false
}

// IsUnconditionalJump reports whether the instruction always transfers
// control away. Tail calls use these; conditional branches have fallthrough.
func IsUnconditionalJump(i Inst) bool {
	return i.X86.Op == x86asm.JMP || i.X86.Op == x86asm.LJMP
}
