// gs_stub.go - Graphics Synthesizer collaborator interface

package main

// GSHandler is the slice of the Graphics Synthesizer the kernel talks to:
// CRT mode setup from GsSetCrt and the privileged register window used by
// GsGetIMR/GsPutIMR and SetVSyncFlag.
type GSHandler interface {
	SetCrt(interlaced bool, mode uint32, frameMode bool)
	ReadPrivRegister(addr uint32) uint32
	WritePrivRegister(addr uint32, value uint32)
}

// StubGS is the default GS attached to a machine built without a renderer.
// It keeps the privileged registers in a plain map so kernel paths that
// round-trip through IMR and CSR still behave.
type StubGS struct {
	regs       map[uint32]uint32
	interlaced bool
	mode       uint32
	frameMode  bool
}

func NewStubGS() *StubGS {
	return &StubGS{regs: make(map[uint32]uint32)}
}

func (gs *StubGS) SetCrt(interlaced bool, mode uint32, frameMode bool) {
	gs.interlaced = interlaced
	gs.mode = mode
	gs.frameMode = frameMode
}

func (gs *StubGS) ReadPrivRegister(addr uint32) uint32 {
	return gs.regs[addr]
}

func (gs *StubGS) WritePrivRegister(addr uint32, value uint32) {
	gs.regs[addr] = value
}
