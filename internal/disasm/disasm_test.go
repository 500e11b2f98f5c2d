package disasm

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeCallRel32(t *testing.T) {
	// CALL rel32 (+0x0B) at 0x1000, then RET.
	code := []byte{0xE8, 0x0B, 0x00, 0x00, 0x00, 0xC3}
	insts := Decode(code, 0x1000)
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(insts))
	}
	if insts[0].X86.Op != x86asm.CALL {
		t.Fatalf("op = %v, want CALL", insts[0].X86.Op)
	}
	target, ok := CallTarget(insts[0])
	if !ok {
		t.Fatal("CallTarget failed on direct call")
	}
	if want := uint64(0x1010); target != want {
		t.Errorf("target = 0x%x, want 0x%x", target, want)
	}
	if insts[1].X86.Op != x86asm.RET {
		t.Errorf("op = %v, want RET", insts[1].X86.Op)
	}
}

func TestDecodeNegativeRel(t *testing.T) {
	// JMP rel32 (-0x10) at 0x2000: target = 0x2005 - 0x10.
	code := []byte{0xE9, 0xF0, 0xFF, 0xFF, 0xFF}
	insts := Decode(code, 0x2000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	target, ok := JumpTarget(insts[0])
	if !ok {
		t.Fatal("JumpTarget failed")
	}
	if want := uint64(0x1FF5); target != want {
		t.Errorf("target = 0x%x, want 0x%x", target, want)
	}
}

func TestCallTargetIndirect(t *testing.T) {
	// CALL RAX: indirect, no static target.
	code := []byte{0xFF, 0xD0}
	insts := Decode(code, 0x1000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	if !(X86Classifier{}).IsCall(insts[0]) {
		t.Fatal("indirect call not classified as call")
	}
	if _, ok := CallTarget(insts[0]); ok {
		t.Error("CallTarget resolved an indirect call")
	}
	if _, ok := MemSlot(insts[0]); ok {
		t.Error("MemSlot resolved a register-indirect call")
	}
}

func TestMemSlotRIPRelative(t *testing.T) {
	// CALL qword ptr [rip+0x0FFA] at 0x3000, len 6: slot = 0x4000.
	code := []byte{0xFF, 0x15, 0xFA, 0x0F, 0x00, 0x00}
	insts := Decode(code, 0x3000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	slot, ok := MemSlot(insts[0])
	if !ok {
		t.Fatal("MemSlot failed on RIP-relative call")
	}
	if want := uint64(0x4000); slot != want {
		t.Errorf("slot = 0x%x, want 0x%x", slot, want)
	}
}

func TestMemSlotRIPRelativeBackward(t *testing.T) {
	// CALL qword ptr [rip-0x4FF7] at 0x6000, len 6: the displacement is
	// negative, slot = 0x6006 - 0x4FF7 = 0x100F.
	code := []byte{0xFF, 0x15, 0x09, 0xB0, 0xFF, 0xFF}
	insts := Decode(code, 0x6000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	slot, ok := MemSlot(insts[0])
	if !ok {
		t.Fatal("MemSlot failed on a backward RIP-relative call")
	}
	if want := uint64(0x100F); slot != want {
		t.Errorf("slot = 0x%x, want 0x%x", slot, want)
	}
}

func TestStaticRefsLEA(t *testing.T) {
	// LEA RAX, [rip-0x4FF7] at 0x6000, len 7: ref = 0x1010.
	code := []byte{0x48, 0x8D, 0x05, 0x09, 0xB0, 0xFF, 0xFF}
	insts := Decode(code, 0x6000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	refs := StaticRefs(insts[0])
	if len(refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(refs))
	}
	if want := uint64(0x1010); refs[0] != want {
		t.Errorf("ref = 0x%x, want 0x%x", refs[0], want)
	}
}

func TestStaticRefsMovImm64(t *testing.T) {
	// MOV RAX, 0x1010 (imm64).
	code := []byte{0x48, 0xB8, 0x10, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	insts := Decode(code, 0x7000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	refs := StaticRefs(insts[0])
	if len(refs) != 1 || refs[0] != 0x1010 {
		t.Fatalf("refs = %#x, want [0x1010]", refs)
	}
}

func TestClassifier(t *testing.T) {
	cl := X86Classifier{}
	cases := []struct {
		name string
		code []byte
		call bool
		jump bool
	}{
		{"call rel32", []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, true, false},
		{"jmp rel32", []byte{0xE9, 0x00, 0x00, 0x00, 0x00}, false, true},
		{"je rel8", []byte{0x74, 0x00}, false, true},
		{"ret", []byte{0xC3}, false, false},
		{"nop", []byte{0x90}, false, false},
	}
	for _, tc := range cases {
		insts := Decode(tc.code, 0x1000)
		if len(insts) == 0 {
			t.Fatalf("%s: no instructions decoded", tc.name)
		}
		if got := cl.IsCall(insts[0]); got != tc.call {
			t.Errorf("%s: IsCall = %v, want %v", tc.name, got, tc.call)
		}
		if got := cl.IsJump(insts[0]); got != tc.jump {
			t.Errorf("%s: IsJump = %v, want %v", tc.name, got, tc.jump)
		}
	}
}

func TestDecodeUndecodableByte(t *testing.T) {
	// A lone 0xFF is an incomplete instruction; coverage must not stall.
	insts := Decode([]byte{0xFF}, 0x1000)
	if len(insts) != 1 {
		t.Fatalf("got %d instructions, want 1", len(insts))
	}
	if insts[0].Len != 1 {
		t.Errorf("filler length = %d, want 1", insts[0].Len)
	}
	if insts[0].End() != 0x1001 {
		t.Errorf("filler end = 0x%x, want 0x1001", insts[0].End())
	}
}
