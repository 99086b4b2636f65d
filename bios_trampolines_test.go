// bios_trampolines_test.go - BIOS stub assembly tests

package main

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func biosWord(bios []byte, addr uint32) uint32 {
	return binary.LittleEndian.Uint32(bios[addr-BIOS_ADDRESS_BASE:])
}

func TestTrampolinesAreDeterministic(t *testing.T) {
	first := make([]byte, EE_BIOS_SIZE)
	second := make([]byte, EE_BIOS_SIZE)

	assembleBiosTrampolines(first)
	assembleBiosTrampolines(second)

	if !bytes.Equal(first, second) {
		t.Fatal("two assemblies of the BIOS stubs differ")
	}
}

func TestThreadEpilogEncoding(t *testing.T) {
	bios := make([]byte, EE_BIOS_SIZE)
	assembleBiosTrampolines(bios)

	// addiu v1, zero, 0x23 ; syscall
	if got := biosWord(bios, BIOS_ADDRESS_THREADEPILOG); got != 0x24030023 {
		t.Fatalf("epilog word 0 = 0x%08X, want 0x24030023", got)
	}
	if got := biosWord(bios, BIOS_ADDRESS_THREADEPILOG+4); got != 0x0000000C {
		t.Fatalf("epilog word 1 = 0x%08X, want 0x0000000C", got)
	}
}

func TestWaitThreadProcEncoding(t *testing.T) {
	bios := make([]byte, EE_BIOS_SIZE)
	assembleBiosTrampolines(bios)

	want := []uint32{
		0x24030666, // addiu v1, zero, 0x666
		0x0000000C, // syscall
		0x1000FFFD, // beq zero, zero, -3
		0x00000000, // nop
	}
	for i, w := range want {
		if got := biosWord(bios, BIOS_ADDRESS_WAITTHREADPROC+uint32(i)*4); got != w {
			t.Fatalf("wait proc word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}
}

func TestCustomSyscallGateEncoding(t *testing.T) {
	bios := make([]byte, EE_BIOS_SIZE)
	assembleBiosTrampolines(bios)

	want := []uint32{
		0x27BDFFF0, // addiu sp, sp, -0x10
		0xFFBF0000, // sd ra, 0(sp)
	}
	for i, w := range want {
		if got := biosWord(bios, BIOS_ADDRESS_CUSTOMSYSCALL+uint32(i)*4); got != w {
			t.Fatalf("gate word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}

	// The gate masks the handler address with 0x1FFFFFFF before jumping:
	// lui t1, 0x1FFF ; ori t1, t1, 0xFFFF
	if got := biosWord(bios, BIOS_ADDRESS_CUSTOMSYSCALL+6*4); got != 0x3C091FFF {
		t.Fatalf("gate mask lui = 0x%08X, want 0x3C091FFF", got)
	}
	if got := biosWord(bios, BIOS_ADDRESS_CUSTOMSYSCALL+7*4); got != 0x3529FFFF {
		t.Fatalf("gate mask ori = 0x%08X, want 0x3529FFFF", got)
	}
}

func TestInterruptHandlerSavesFullContext(t *testing.T) {
	bios := make([]byte, EE_BIOS_SIZE)
	assembleBiosTrampolines(bios)

	// First instruction allocates the 0x210-byte frame off K0
	if got := biosWord(bios, BIOS_ADDRESS_INTERRUPTHANDLER); got != 0x275AFDF0 {
		t.Fatalf("frame allocation = 0x%08X, want 0x275AFDF0", got)
	}

	// Followed by 32 sq instructions, one per GPR, at i*0x10 offsets
	for i := uint32(0); i < 32; i++ {
		got := biosWord(bios, BIOS_ADDRESS_INTERRUPTHANDLER+4+i*4)
		want := uint32(0x1F)<<26 | K0<<21 | i<<16 | (i * 0x10)
		if got != want {
			t.Fatalf("sq %d = 0x%08X, want 0x%08X", i, got, want)
		}
	}
}

func TestIntcHandlerLoopBranches(t *testing.T) {
	bios := make([]byte, EE_BIOS_SIZE)
	assembleBiosTrampolines(bios)

	// The loop-back bne to the handler check must carry a negative offset
	// and the validity beq a positive one; locate them by opcode pattern.
	sawBack := false
	sawForward := false
	for i := uint32(0); i < 0x40; i++ {
		word := biosWord(bios, BIOS_ADDRESS_INTCHANDLER+i*4)
		op := word >> 26
		offset := int16(word & 0xFFFF)
		if op == 0x05 && offset < 0 {
			sawBack = true
		}
		if op == 0x04 && offset > 0 {
			sawForward = true
		}
	}
	if !sawBack {
		t.Fatal("no backward bne found in INTC handler loop")
	}
	if !sawForward {
		t.Fatal("no forward beq found in INTC handler loop")
	}
}

func TestAssemblerBranchLabels(t *testing.T) {
	buf := make([]byte, 0x100)
	asm := NewMipsAssembler(buf)

	loop := asm.CreateLabel()
	exit := asm.CreateLabel()

	asm.MarkLabel(loop)
	asm.BEQLabel(S0, R0, exit) // forward reference
	asm.NOP()
	asm.BNELabel(S0, R0, loop) // backward reference
	asm.NOP()
	asm.MarkLabel(exit)
	asm.JR(RA)

	// beq at index 0 targets index 4: offset 3
	if got := binary.LittleEndian.Uint32(buf[0:]); got&0xFFFF != 3 {
		t.Fatalf("forward branch offset = %d, want 3", int16(got&0xFFFF))
	}
	// bne at index 2 targets index 0: offset -3
	if got := binary.LittleEndian.Uint32(buf[8:]); int16(got&0xFFFF) != -3 {
		t.Fatalf("backward branch offset = %d, want -3", int16(got&0xFFFF))
	}
}
