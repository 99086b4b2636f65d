// machine.go - Wires the CPU state, memories, devices and kernel together

package main

// Machine owns the emulated EE's memories and the kernel, plus the default
// device set. The instruction interpreter is external; it drives the
// machine by executing guest code and calling back into the kernel when a
// SYSCALL traps or an interrupt line is asserted.
type Machine struct {
	RAM      []byte
	BIOS     []byte
	Bus      *HardwareBus
	Hardware *EEHardware
	EE       *EEState
	GS       GSHandler
	SIF      *SIF
	Ioman    *Ioman
	OS       *PS2OS
}

// NewMachine assembles a machine whose cdrom0 device is rooted at
// cdromBaseDir. Guest console output goes to the host terminal.
func NewMachine(cdromBaseDir string) *Machine {
	machine := &Machine{
		RAM:  make([]byte, EE_RAM_SIZE),
		BIOS: make([]byte, EE_BIOS_SIZE),
		Bus:  NewHardwareBus(),
	}

	machine.Hardware = NewEEHardware()
	machine.Hardware.Attach(machine.Bus)

	machine.EE = NewEEState(machine.Bus)
	machine.EE.FetchInstruction = machine.FetchInstruction

	machine.GS = NewStubGS()
	machine.SIF = NewSIF()
	machine.Ioman = NewIoman(cdromBaseDir, NewConsoleOutput())

	machine.OS = NewPS2OS(machine.EE, machine.RAM, machine.BIOS, machine.GS, machine.SIF, machine.Ioman)

	return machine
}

// FetchInstruction reads an instruction word from RAM or the BIOS region.
func (m *Machine) FetchInstruction(addr uint32) uint32 {
	physical := m.OS.TranslateAddress(addr)
	if physical >= EE_BIOS_BASE && physical < EE_BIOS_BASE+EE_BIOS_SIZE {
		return ramRead32(m.BIOS, physical-EE_BIOS_BASE)
	}
	if physical+4 <= uint32(len(m.RAM)) {
		return ramRead32(m.RAM, physical)
	}
	return 0
}
