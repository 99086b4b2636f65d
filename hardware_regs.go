// hardware_regs.go - EE hardware register map and interrupt causes

package main

// EE memory sizes. Guest pointers into main RAM are masked with
// EE_RAM_SIZE-1 on the paths that dereference them.
const (
	EE_RAM_SIZE  = 0x02000000
	EE_BIOS_BASE = 0x1FC00000
	EE_BIOS_SIZE = 0x00004000
)

// INTC registers. Writing a bit to INTC_STAT clears the pending line;
// writing a bit to INTC_MASK toggles the enable (hardware XOR semantics,
// which EnableIntc/DisableIntc rely on).
const (
	INTC_STAT = 0x1000F000
	INTC_MASK = 0x1000F010
)

// INTC cause lines.
const (
	INTC_LINE_GS           = 0
	INTC_LINE_DMAC         = 1
	INTC_LINE_VBLANK_START = 2
	INTC_LINE_VBLANK_END   = 3
	INTC_LINE_TIMER0       = 9
	INTC_LINE_TIMER1       = 10
	INTC_LINE_TIMER2       = 11
)

// DMAC registers. D_STAT keeps per-channel pending bits in the low half
// (write-1-to-clear) and per-channel mask bits in the high half
// (write-1-to-toggle). Channel 6 is the SIF0 channel programmed by
// SifSetDma.
const (
	D_STAT = 0x1000E010

	D6_CHCR = 0x1000C400
	D6_MADR = 0x1000C410
	D6_QWC  = 0x1000C420
	D6_TADR = 0x1000C430
)

const DMAC_CHANNEL_MAX = 10

// GS privileged registers, accessed through the GS handler collaborator.
const (
	GS_PRIV_CSR = 0x12001000
	GS_PRIV_IMR = 0x12001010
)
