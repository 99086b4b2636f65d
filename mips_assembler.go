// mips_assembler.go - Minimal MIPS instruction emitter for the BIOS stubs

package main

import "encoding/binary"

// MipsAssembler emits MIPS machine code into a caller-provided buffer.
// It covers exactly the instructions the BIOS trampolines need; branches
// take either a raw 16-bit word offset or a label.
type MipsAssembler struct {
	buf    []byte
	index  uint32
	labels map[AsmLabel]uint32
	fixups []asmFixup
	next   AsmLabel
}

type AsmLabel uint32

type asmFixup struct {
	label AsmLabel
	index uint32
}

func NewMipsAssembler(buf []byte) *MipsAssembler {
	return &MipsAssembler{
		buf:    buf,
		labels: make(map[AsmLabel]uint32),
	}
}

// Count returns the number of instructions emitted so far.
func (a *MipsAssembler) Count() uint32 {
	return a.index
}

func (a *MipsAssembler) emit(word uint32) {
	binary.LittleEndian.PutUint32(a.buf[a.index*4:], word)
	a.index++
}

func (a *MipsAssembler) CreateLabel() AsmLabel {
	a.next++
	return a.next
}

// MarkLabel binds a label to the current position and patches any branches
// already emitted against it.
func (a *MipsAssembler) MarkLabel(label AsmLabel) {
	a.labels[label] = a.index
	remaining := a.fixups[:0]
	for _, fixup := range a.fixups {
		if fixup.label != label {
			remaining = append(remaining, fixup)
			continue
		}
		a.patchBranch(fixup.index, a.index)
	}
	a.fixups = remaining
}

func (a *MipsAssembler) patchBranch(branchIndex, targetIndex uint32) {
	offset := int32(targetIndex) - int32(branchIndex) - 1
	word := binary.LittleEndian.Uint32(a.buf[branchIndex*4:])
	word = (word & 0xFFFF0000) | (uint32(offset) & 0xFFFF)
	binary.LittleEndian.PutUint32(a.buf[branchIndex*4:], word)
}

func (a *MipsAssembler) branchOffset(label AsmLabel) uint16 {
	if target, bound := a.labels[label]; bound {
		return uint16(int32(target) - int32(a.index) - 1)
	}
	a.fixups = append(a.fixups, asmFixup{label: label, index: a.index})
	return 0
}

func encodeRType(fn, rs, rt, rd, sa uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | sa<<6 | fn
}

func encodeIType(op, rs, rt uint32, imm uint16) uint32 {
	return op<<26 | rs<<21 | rt<<16 | uint32(imm)
}

func (a *MipsAssembler) ADDIU(rt, rs uint32, imm uint16) {
	a.emit(encodeIType(0x09, rs, rt, imm))
}

func (a *MipsAssembler) ADDU(rd, rs, rt uint32) {
	a.emit(encodeRType(0x21, rs, rt, rd, 0))
}

func (a *MipsAssembler) AND(rd, rs, rt uint32) {
	a.emit(encodeRType(0x24, rs, rt, rd, 0))
}

func (a *MipsAssembler) ANDI(rt, rs uint32, imm uint16) {
	a.emit(encodeIType(0x0C, rs, rt, imm))
}

func (a *MipsAssembler) BEQ(rs, rt uint32, offset uint16) {
	a.emit(encodeIType(0x04, rs, rt, offset))
}

func (a *MipsAssembler) BEQLabel(rs, rt uint32, label AsmLabel) {
	a.emit(encodeIType(0x04, rs, rt, a.branchOffset(label)))
}

func (a *MipsAssembler) BGEZ(rs uint32, offset uint16) {
	a.emit(encodeIType(0x01, rs, 0x01, offset))
}

func (a *MipsAssembler) BNE(rs, rt uint32, offset uint16) {
	a.emit(encodeIType(0x05, rs, rt, offset))
}

func (a *MipsAssembler) BNELabel(rs, rt uint32, label AsmLabel) {
	a.emit(encodeIType(0x05, rs, rt, a.branchOffset(label)))
}

func (a *MipsAssembler) ERET() {
	a.emit(0x42000018)
}

func (a *MipsAssembler) JALR(rs uint32) {
	a.emit(encodeRType(0x09, rs, 0, RA, 0))
}

func (a *MipsAssembler) JR(rs uint32) {
	a.emit(encodeRType(0x08, rs, 0, 0, 0))
}

func (a *MipsAssembler) LD(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x37, base, rt, offset))
}

func (a *MipsAssembler) LQ(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x1E, base, rt, offset))
}

func (a *MipsAssembler) LUI(rt uint32, imm uint16) {
	a.emit(encodeIType(0x0F, 0, rt, imm))
}

func (a *MipsAssembler) LW(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x23, base, rt, offset))
}

func (a *MipsAssembler) MFC0(rt, rd uint32) {
	a.emit(encodeRType(0, 0x00, rt, rd, 0) | 0x10<<26)
}

func (a *MipsAssembler) MFLO(rd uint32) {
	a.emit(encodeRType(0x12, 0, 0, rd, 0))
}

func (a *MipsAssembler) MTC0(rt, rd uint32) {
	a.emit(encodeRType(0, 0x04, rt, rd, 0) | 0x10<<26)
}

// MULTU is the three-operand R5900 form: LO also lands in rd.
func (a *MipsAssembler) MULTU(rd, rs, rt uint32) {
	a.emit(encodeRType(0x19, rs, rt, rd, 0))
}

func (a *MipsAssembler) NOP() {
	a.emit(0)
}

func (a *MipsAssembler) OR(rd, rs, rt uint32) {
	a.emit(encodeRType(0x25, rs, rt, rd, 0))
}

func (a *MipsAssembler) ORI(rt, rs uint32, imm uint16) {
	a.emit(encodeIType(0x0D, rs, rt, imm))
}

func (a *MipsAssembler) SD(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x3F, base, rt, offset))
}

func (a *MipsAssembler) SLL(rd, rt, sa uint32) {
	a.emit(encodeRType(0x00, 0, rt, rd, sa))
}

func (a *MipsAssembler) SLLV(rd, rt, rs uint32) {
	a.emit(encodeRType(0x04, rs, rt, rd, 0))
}

func (a *MipsAssembler) SQ(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x1F, base, rt, offset))
}

func (a *MipsAssembler) SRL(rd, rt, sa uint32) {
	a.emit(encodeRType(0x02, 0, rt, rd, sa))
}

func (a *MipsAssembler) SW(rt uint32, offset uint16, base uint32) {
	a.emit(encodeIType(0x2B, base, rt, offset))
}

func (a *MipsAssembler) SYSCALL() {
	a.emit(0x0000000C)
}
