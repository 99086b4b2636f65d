// hardware_bus.go - Memory mapped device register bus for the EE

/*
hardware_bus.go - Hardware Register Bus

This module carries the device-register side of the EE memory map: the
word-addressed INTC, DMAC and timer registers that both the kernel (through
GetWord/SetWord) and the emitted BIOS trampolines (through guest loads and
stores) manipulate. It keeps the same page-keyed I/O region table as the
main machine bus so that a device registers once for a register block and
receives every access that falls inside it.

Unlike main RAM, reads and writes here always go through the owning device:
INTC_STAT is write-1-to-clear, INTC_MASK is write-1-to-toggle, and D_STAT
mixes write-1-to-clear pending bits with write-1-to-toggle mask bits.
Backing storage for unmapped addresses is a plain word map so that unit
tests can poke arbitrary registers without wiring a device.
*/

package main

const (
	HW_PAGE_SIZE = 0x100
	HW_PAGE_MASK = 0xFFFFFF00
)

type HardwareRegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

type HardwareBus struct {
	mapping map[uint32][]HardwareRegion
	words   map[uint32]uint32
}

func NewHardwareBus() *HardwareBus {
	return &HardwareBus{
		mapping: make(map[uint32][]HardwareRegion),
		words:   make(map[uint32]uint32),
	}
}

// MapIO registers a device register block. The region spans [start, end]
// inclusive and is keyed by every page it touches.
func (bus *HardwareBus) MapIO(start, end uint32, onRead func(addr uint32) uint32, onWrite func(addr uint32, value uint32)) {
	region := HardwareRegion{
		start:   start,
		end:     end,
		onRead:  onRead,
		onWrite: onWrite,
	}
	firstPage := start & HW_PAGE_MASK
	lastPage := end & HW_PAGE_MASK
	for page := firstPage; page <= lastPage; page += HW_PAGE_SIZE {
		bus.mapping[page] = append(bus.mapping[page], region)
	}
}

func (bus *HardwareBus) GetWord(addr uint32) uint32 {
	if regions, exists := bus.mapping[addr&HW_PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				return region.onRead(addr)
			}
		}
	}
	return bus.words[addr]
}

func (bus *HardwareBus) SetWord(addr uint32, value uint32) {
	if regions, exists := bus.mapping[addr&HW_PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				return
			}
		}
	}
	bus.words[addr] = value
}

// EEHardware models the INTC and DMAC register files with the write
// semantics the kernel depends on. It is the default device mapped on a
// fresh machine; an embedder with its own INTC/DMAC models maps those
// instead.
type EEHardware struct {
	intcStat uint32
	intcMask uint32
	dmacStat uint32

	d6Chcr uint32
	d6Madr uint32
	d6Qwc  uint32
	d6Tadr uint32
}

func NewEEHardware() *EEHardware {
	return &EEHardware{}
}

// Attach maps the INTC/DMAC register blocks onto the bus.
func (hw *EEHardware) Attach(bus *HardwareBus) {
	bus.MapIO(INTC_STAT, INTC_MASK, hw.HandleRead, hw.HandleWrite)
	bus.MapIO(D_STAT, D_STAT, hw.HandleRead, hw.HandleWrite)
	bus.MapIO(D6_CHCR, D6_TADR, hw.HandleRead, hw.HandleWrite)
}

func (hw *EEHardware) HandleRead(addr uint32) uint32 {
	switch addr {
	case INTC_STAT:
		return hw.intcStat
	case INTC_MASK:
		return hw.intcMask
	case D_STAT:
		return hw.dmacStat
	case D6_CHCR:
		return hw.d6Chcr
	case D6_MADR:
		return hw.d6Madr
	case D6_QWC:
		return hw.d6Qwc
	case D6_TADR:
		return hw.d6Tadr
	}
	return 0
}

func (hw *EEHardware) HandleWrite(addr uint32, value uint32) {
	switch addr {
	case INTC_STAT:
		// Write-1-to-clear pending lines
		hw.intcStat &^= value
	case INTC_MASK:
		// Write-1-to-toggle enables
		hw.intcMask ^= value
	case D_STAT:
		// Low half: write-1-to-clear channel pending bits.
		// High half: write-1-to-toggle channel mask bits.
		hw.dmacStat &^= value & 0x0000FFFF
		hw.dmacStat ^= value & 0xFFFF0000
	case D6_CHCR:
		hw.d6Chcr = value
	case D6_MADR:
		hw.d6Madr = value
	case D6_QWC:
		hw.d6Qwc = value
	case D6_TADR:
		hw.d6Tadr = value
	}
}

// AssertIntcLine raises an INTC cause line, as the GS or timers would.
func (hw *EEHardware) AssertIntcLine(line uint32) {
	hw.intcStat |= 1 << line
}

// AssertDmacChannel raises a DMAC channel completion bit.
func (hw *EEHardware) AssertDmacChannel(channel uint32) {
	hw.dmacStat |= 1 << channel
}
