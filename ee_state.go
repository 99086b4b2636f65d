// ee_state.go - Emotion Engine CPU state shared with the kernel

package main

// General purpose register indices for the R5900. The kernel addresses
// registers by these names when decoding syscall arguments and when
// saving/restoring thread contexts.
const (
	R0 = iota
	AT
	V0
	V1
	A0
	A1
	A2
	A3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	T8
	T9
	K0
	K1
	GP
	SP
	FP
	RA
)

// Syscall calling convention: arguments in A0..A3 then T0, result in V0,
// syscall number in V1.
const (
	SC_RETURN = V0
	SC_PARAM0 = A0
	SC_PARAM1 = A1
	SC_PARAM2 = A2
	SC_PARAM3 = A3
	SC_PARAM4 = T0
)

// COP0 register indices and STATUS bits used by the scheduler gate.
const (
	COP0_STATUS = 12
	COP0_EPC    = 14

	STATUS_IE  = 0x00000001
	STATUS_EXL = 0x00000002
)

// Register is one EE general purpose register: a 128-bit quadword exposed
// as four 32-bit lanes. Lane 0 holds the architectural 32-bit value; lane 1
// is the upper half of the 64-bit view (sign extension for most kernel
// values).
type Register [4]uint32

// EEState is the slice of R5900 state the kernel reads and writes. The
// interpreter/JIT owns instruction execution; the kernel only manipulates
// the register file, the COP0 status window and the pending-vector plumbing
// used to re-enter guest code at a BIOS trampoline.
type EEState struct {
	GPR  [32]Register
	PC   uint32
	COP0 [32]uint32

	// Set by the CPU when a syscall exception is taken; cleared by the
	// kernel once the call has been serviced.
	HasException bool

	// Memory mapped device registers (INTC, DMAC channel 6).
	Hardware *HardwareBus

	// Instruction fetch used to validate that EPC really points at a
	// SYSCALL opcode. Wired by the machine builder; nil in bare tests.
	FetchInstruction func(addr uint32) uint32

	// Vector addresses the kernel asked the CPU to transfer to. The host
	// execution loop consumes these; tests inspect them.
	LastExceptionVector uint32
	LastInterruptVector uint32
}

func NewEEState(hardware *HardwareBus) *EEState {
	return &EEState{Hardware: hardware}
}

// GenerateException transfers control to a BIOS handler without touching
// EPC: the faulting address was already latched when the original syscall
// exception was taken. Used to forward custom syscalls to the gate at
// 0x1FC00100.
func (s *EEState) GenerateException(addr uint32) {
	s.LastExceptionVector = addr
	s.PC = addr
}

// GenerateInterrupt enters exception mode at the given vector, saving the
// interrupted PC in EPC. Used to run the general interrupt handler at
// 0x1FC00200.
func (s *EEState) GenerateInterrupt(addr uint32) {
	s.LastInterruptVector = addr
	s.COP0[COP0_EPC] = s.PC
	s.COP0[COP0_STATUS] |= STATUS_EXL
	s.PC = addr
}
