// sif.go - Subsystem interface register file

package main

// SIF carries the EE<->IOP mailbox registers exposed through SifSetReg and
// SifGetReg. Register ids above the array are user registers keyed as-is;
// the kernel only ever stores and loads, interpretation is up to the RPC
// layers on both sides.
type SIF struct {
	regs     [32]uint32
	userRegs map[uint32]uint32
}

func NewSIF() *SIF {
	return &SIF{userRegs: make(map[uint32]uint32)}
}

func (s *SIF) GetRegister(id uint32) uint32 {
	if id < uint32(len(s.regs)) {
		return s.regs[id]
	}
	return s.userRegs[id]
}

func (s *SIF) SetRegister(id uint32, value uint32) {
	if id < uint32(len(s.regs)) {
		s.regs[id] = value
		return
	}
	s.userRegs[id] = value
}
