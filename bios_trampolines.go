// bios_trampolines.go - MIPS stubs assembled into the BIOS region at reset

/*
bios_trampolines.go - BIOS Trampolines

The kernel runs host-side, but interrupt and custom-syscall dispatch has to
happen in guest code so that handlers registered by the game execute with a
real guest stack and GP. At reset six small routines are assembled into the
BIOS region at fixed offsets:

	0x0100  Custom syscall gate: calls through the table at 0x80010000
	0x0200  General interrupt handler: saves context, demuxes INTC lines
	0x1000  DMAC handler dispatch: walks the DMACHANDLER table per channel
	0x2000  INTC handler dispatch: walks the INTCHANDLER table for a cause
	0x3000  Thread epilog: ExitThread syscall, planted in RA of new threads
	0x3100  Wait thread: reschedule syscall in a tight loop (idle thread)

The dispatch loops read the handler records straight out of guest RAM, so
the record layout in kernel_records.go is load-bearing here.
*/

package main

const (
	BIOS_ADDRESS_BASE             = 0x1FC00000
	BIOS_ADDRESS_CUSTOMSYSCALL    = 0x1FC00100
	BIOS_ADDRESS_INTERRUPTHANDLER = 0x1FC00200
	BIOS_ADDRESS_DMACHANDLER      = 0x1FC01000
	BIOS_ADDRESS_INTCHANDLER      = 0x1FC02000
	BIOS_ADDRESS_THREADEPILOG     = 0x1FC03000
	BIOS_ADDRESS_WAITTHREADPROC   = 0x1FC03100
)

const interruptStackFrameSize = 0x210

func assembleCustomSyscallHandler(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_CUSTOMSYSCALL-BIOS_ADDRESS_BASE:])

	// Epilogue
	asm.ADDIU(SP, SP, 0xFFF0)
	asm.SD(RA, 0x0000, SP)

	// Load the function address off the table at 0x80010000
	asm.SLL(T0, V1, 2)
	asm.LUI(T1, 0x8001)
	asm.ADDU(T0, T0, T1)
	asm.LW(T0, 0x0000, T0)

	// And the address with 0x1FFFFFFF
	asm.LUI(T1, 0x1FFF)
	asm.ORI(T1, T1, 0xFFFF)
	asm.AND(T0, T0, T1)

	// Jump to the system call address
	asm.JALR(T0)
	asm.NOP()

	// Prologue
	asm.LD(RA, 0x0000, SP)
	asm.ADDIU(SP, SP, 0x0010)
	asm.ERET()
}

func assembleInterruptHandler(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_INTERRUPTHANDLER-BIOS_ADDRESS_BASE:])

	// Epilogue (allocate the stack frame on the kernel stack through K0)
	asm.ADDIU(K0, K0, 0x10000-interruptStackFrameSize)

	// Save context
	for i := uint32(0); i < 32; i++ {
		asm.SQ(i, uint16(i*0x10), K0)
	}

	// Save EPC
	asm.MFC0(T0, COP0_EPC)
	asm.SW(T0, 0x0200, K0)

	// Set SP
	asm.ADDU(SP, K0, R0)

	// Get INTC status
	asm.LUI(T0, 0x1000)
	asm.ORI(T0, T0, 0xF000)
	asm.LW(S0, 0x0000, T0)

	// Get INTC mask
	asm.LUI(T1, 0x1000)
	asm.ORI(T1, T1, 0xF010)
	asm.LW(S1, 0x0000, T1)

	// Get cause
	asm.AND(S0, S0, S1)

	asm.NOP()

	// Check if INT1 (DMAC)
	asm.ANDI(T0, S0, 0x0002)
	asm.BEQ(R0, T0, 0x0005)
	asm.NOP()

	// Go to DMAC interrupt handler
	asm.LUI(T0, 0x1FC0)
	asm.ORI(T0, T0, 0x1000)
	asm.JALR(T0)
	asm.NOP()

	// Check if INT2 (Vblank Start)
	asm.ANDI(T0, S0, 0x0004)
	asm.BEQ(R0, T0, 0x0006)
	asm.NOP()

	// Process handlers
	asm.LUI(T0, 0x1FC0)
	asm.ORI(T0, T0, 0x2000)
	asm.ADDIU(A0, R0, 0x0002)
	asm.JALR(T0)
	asm.NOP()

	// Check if INT3 (Vblank End)
	asm.ANDI(T0, S0, 0x0008)
	asm.BEQ(R0, T0, 0x0006)
	asm.NOP()

	// Process handlers
	asm.LUI(T0, 0x1FC0)
	asm.ORI(T0, T0, 0x2000)
	asm.ADDIU(A0, R0, 0x0003)
	asm.JALR(T0)
	asm.NOP()

	// Check if INT10 (Timer1)
	asm.ANDI(T0, S0, 0x0400)
	asm.BEQ(R0, T0, 0x0006)
	asm.NOP()

	// Process handlers
	asm.LUI(T0, 0x1FC0)
	asm.ORI(T0, T0, 0x2000)
	asm.ADDIU(A0, R0, 0x000A)
	asm.JALR(T0)
	asm.NOP()

	// Check if INT11 (Timer2)
	asm.ANDI(T0, S0, 0x0800)
	asm.BEQ(R0, T0, 0x0006)
	asm.NOP()

	// Process handlers
	asm.LUI(T0, 0x1FC0)
	asm.ORI(T0, T0, 0x2000)
	asm.ADDIU(A0, R0, 0x000B)
	asm.JALR(T0)
	asm.NOP()

	// Restore EPC
	asm.LW(T0, 0x0200, K0)
	asm.MTC0(T0, COP0_EPC)

	// Restore context
	for i := uint32(0); i < 32; i++ {
		asm.LQ(i, uint16(i*0x10), K0)
	}

	// Prologue
	asm.ADDIU(K0, K0, interruptStackFrameSize)
	asm.ERET()
}

func assembleDmacHandler(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_DMACHANDLER-BIOS_ADDRESS_BASE:])

	// Prologue
	// S0 -> Channel Counter
	// S1 -> DMA Interrupt Status
	// S2 -> Handler Counter

	asm.ADDIU(SP, SP, 0xFFE0)
	asm.SD(RA, 0x0000, SP)
	asm.SD(S0, 0x0008, SP)
	asm.SD(S1, 0x0010, SP)
	asm.SD(S2, 0x0018, SP)

	// Clear INTC cause
	asm.LUI(T1, 0x1000)
	asm.ORI(T1, T1, 0xF000)
	asm.ADDIU(T0, R0, 0x0002)
	asm.SW(T0, 0x0000, T1)

	// Load the DMA interrupt status
	asm.LUI(T0, 0x1000)
	asm.ORI(T0, T0, 0xE010)
	asm.LW(T0, 0x0000, T0)

	asm.SRL(T1, T0, 16)
	asm.AND(S1, T0, T1)

	// Initialize channel counter
	asm.ADDIU(S0, R0, 0x0009)

	// Check if that specific DMA channel interrupt is the cause
	asm.ORI(T0, R0, 0x0001)
	asm.SLLV(T0, T0, S0)
	asm.AND(T0, T0, S1)
	asm.BEQ(T0, R0, 0x001A)
	asm.NOP()

	// Clear interrupt
	asm.LUI(T1, 0x1000)
	asm.ORI(T1, T1, 0xE010)
	asm.SW(T0, 0x0000, T1)

	// Initialize DMAC handler loop
	asm.ADDU(S2, R0, R0)

	// Get the address to the current DMACHANDLER structure
	asm.ADDIU(T0, R0, DMACHANDLER_RECORD_SIZE)
	asm.MULTU(T0, S2, T0)
	asm.LUI(T1, 0x8000)
	asm.ORI(T1, T1, 0xC000)
	asm.ADDU(T0, T0, T1)

	// Check validity
	asm.LW(T1, 0x0000, T0)
	asm.BEQ(T1, R0, 0x000A)
	asm.NOP()

	// Check if the channel is good one
	asm.LW(T1, 0x0004, T0)
	asm.BNE(S0, T1, 0x0007)
	asm.NOP()

	// Load the necessary stuff
	asm.LW(T1, 0x0008, T0)
	asm.ADDU(A0, S0, R0)
	asm.LW(A1, 0x000C, T0)
	asm.LW(GP, 0x0010, T0)

	// Jump
	asm.JALR(T1)
	asm.NOP()

	// Increment handler counter and test
	asm.ADDIU(S2, S2, 0x0001)
	asm.ADDIU(T0, R0, MAX_DMACHANDLER-1)
	asm.BNE(S2, T0, 0xFFEC)
	asm.NOP()

	// Decrement channel counter and test
	asm.ADDIU(S0, S0, 0xFFFF)
	asm.BGEZ(S0, 0xFFE0)
	asm.NOP()

	// Epilogue
	asm.LD(RA, 0x0000, SP)
	asm.LD(S0, 0x0008, SP)
	asm.LD(S1, 0x0010, SP)
	asm.LD(S2, 0x0018, SP)
	asm.ADDIU(SP, SP, 0x20)
	asm.JR(RA)
	asm.NOP()
}

func assembleIntcHandler(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_INTCHANDLER-BIOS_ADDRESS_BASE:])

	checkHandlerLabel := asm.CreateLabel()
	moveToNextHandler := asm.CreateLabel()

	// Prologue
	// S0 -> Handler Counter

	asm.ADDIU(SP, SP, 0xFFE0)
	asm.SD(RA, 0x0000, SP)
	asm.SD(S0, 0x0008, SP)
	asm.SD(S1, 0x0010, SP)

	// Clear INTC cause
	asm.LUI(T1, 0x1000)
	asm.ORI(T1, T1, 0xF000)
	asm.ADDIU(T0, R0, 0x0001)
	asm.SLLV(T0, T0, A0)
	asm.SW(T0, 0x0000, T1)

	// Initialize INTC handler loop
	asm.ADDU(S0, R0, R0)
	asm.ADDU(S1, A0, R0)

	asm.MarkLabel(checkHandlerLabel)

	// Get the address to the current INTCHANDLER structure
	asm.ADDIU(T0, R0, INTCHANDLER_RECORD_SIZE)
	asm.MULTU(T0, S0, T0)
	asm.LUI(T1, 0x8000)
	asm.ORI(T1, T1, 0xA000)
	asm.ADDU(T0, T0, T1)

	// Check validity
	asm.LW(T1, 0x0000, T0)
	asm.BEQLabel(T1, R0, moveToNextHandler)
	asm.NOP()

	// Check if the cause is good one
	asm.LW(T1, 0x0004, T0)
	asm.BNELabel(S1, T1, moveToNextHandler)
	asm.NOP()

	// Load the necessary stuff
	asm.LW(T1, 0x0008, T0)
	asm.ADDU(A0, S1, R0)
	asm.LW(A1, 0x000C, T0)
	asm.LW(GP, 0x0010, T0)

	// Jump
	asm.JALR(T1)
	asm.NOP()

	asm.MarkLabel(moveToNextHandler)

	// Increment handler counter and test
	asm.ADDIU(S0, S0, 0x0001)
	asm.ADDIU(T0, R0, MAX_INTCHANDLER-1)
	asm.BNELabel(S0, T0, checkHandlerLabel)
	asm.NOP()

	// Epilogue
	asm.LD(RA, 0x0000, SP)
	asm.LD(S0, 0x0008, SP)
	asm.LD(S1, 0x0010, SP)
	asm.ADDIU(SP, SP, 0x20)
	asm.JR(RA)
	asm.NOP()
}

func assembleThreadEpilog(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_THREADEPILOG-BIOS_ADDRESS_BASE:])

	asm.ADDIU(V1, R0, 0x23)
	asm.SYSCALL()
}

func assembleWaitThreadProc(bios []byte) {
	asm := NewMipsAssembler(bios[BIOS_ADDRESS_WAITTHREADPROC-BIOS_ADDRESS_BASE:])

	asm.ADDIU(V1, R0, 0x666)
	asm.SYSCALL()

	asm.BEQ(R0, R0, 0xFFFD)
	asm.NOP()
}

// assembleBiosTrampolines installs the full set into a zeroed BIOS image.
func assembleBiosTrampolines(bios []byte) {
	assembleCustomSyscallHandler(bios)
	assembleInterruptHandler(bios)
	assembleDmacHandler(bios)
	assembleIntcHandler(bios)
	assembleThreadEpilog(bios)
	assembleWaitThreadProc(bios)
}
