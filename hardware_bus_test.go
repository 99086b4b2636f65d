// hardware_bus_test.go - Device register bus and INTC/DMAC semantics tests

package main

import "testing"

func newTestHardware() (*HardwareBus, *EEHardware) {
	bus := NewHardwareBus()
	hw := NewEEHardware()
	hw.Attach(bus)
	return bus, hw
}

func TestIntcStatIsWriteOneToClear(t *testing.T) {
	bus, hw := newTestHardware()

	hw.AssertIntcLine(INTC_LINE_VBLANK_START)
	hw.AssertIntcLine(INTC_LINE_TIMER0)

	if got := bus.GetWord(INTC_STAT); got != (1<<INTC_LINE_VBLANK_START)|(1<<INTC_LINE_TIMER0) {
		t.Fatalf("INTC_STAT = 0x%08X", got)
	}

	bus.SetWord(INTC_STAT, 1<<INTC_LINE_VBLANK_START)
	if got := bus.GetWord(INTC_STAT); got != 1<<INTC_LINE_TIMER0 {
		t.Fatalf("INTC_STAT = 0x%08X after clear, want only the timer line", got)
	}

	// Writing zero clears nothing
	bus.SetWord(INTC_STAT, 0)
	if got := bus.GetWord(INTC_STAT); got != 1<<INTC_LINE_TIMER0 {
		t.Fatalf("INTC_STAT = 0x%08X after zero write", got)
	}
}

func TestIntcMaskIsWriteOneToToggle(t *testing.T) {
	bus, _ := newTestHardware()

	bus.SetWord(INTC_MASK, 0x04)
	if got := bus.GetWord(INTC_MASK); got != 0x04 {
		t.Fatalf("INTC_MASK = 0x%08X after first toggle", got)
	}

	bus.SetWord(INTC_MASK, 0x04)
	if got := bus.GetWord(INTC_MASK); got != 0 {
		t.Fatalf("INTC_MASK = 0x%08X after second toggle, want 0", got)
	}

	bus.SetWord(INTC_MASK, 0x0C)
	bus.SetWord(INTC_MASK, 0x04)
	if got := bus.GetWord(INTC_MASK); got != 0x08 {
		t.Fatalf("INTC_MASK = 0x%08X, want 0x08", got)
	}
}

func TestDmacStatMixedSemantics(t *testing.T) {
	bus, hw := newTestHardware()

	hw.AssertDmacChannel(6)
	bus.SetWord(D_STAT, 0x10000<<6)

	// Pending bit untouched, mask bit toggled on
	if got := bus.GetWord(D_STAT); got != (1<<6)|(0x10000<<6) {
		t.Fatalf("D_STAT = 0x%08X", got)
	}

	// Low half write clears the pending bit, high half write toggles the
	// mask bit off
	bus.SetWord(D_STAT, (1<<6)|(0x10000<<6))
	if got := bus.GetWord(D_STAT); got != 0 {
		t.Fatalf("D_STAT = 0x%08X, want 0", got)
	}
}

func TestDmacChannel6Registers(t *testing.T) {
	bus, _ := newTestHardware()

	bus.SetWord(D6_MADR, 0x00110000)
	bus.SetWord(D6_TADR, 0x00220000)
	bus.SetWord(D6_QWC, 0x40)
	bus.SetWord(D6_CHCR, 0x100)

	if got := bus.GetWord(D6_MADR); got != 0x00110000 {
		t.Fatalf("D6_MADR = 0x%08X", got)
	}
	if got := bus.GetWord(D6_TADR); got != 0x00220000 {
		t.Fatalf("D6_TADR = 0x%08X", got)
	}
	if got := bus.GetWord(D6_QWC); got != 0x40 {
		t.Fatalf("D6_QWC = 0x%08X", got)
	}
	if got := bus.GetWord(D6_CHCR); got != 0x100 {
		t.Fatalf("D6_CHCR = 0x%08X", got)
	}
}

func TestBusDispatchesByRegion(t *testing.T) {
	bus := NewHardwareBus()

	var lastWrite uint32
	bus.MapIO(0x10000500, 0x1000050F,
		func(addr uint32) uint32 { return 0xAB000000 | addr&0xFF },
		func(addr uint32, value uint32) { lastWrite = value })

	if got := bus.GetWord(0x10000504); got != 0xAB000004 {
		t.Fatalf("mapped read = 0x%08X", got)
	}
	bus.SetWord(0x10000508, 0x1234)
	if lastWrite != 0x1234 {
		t.Fatalf("mapped write = 0x%08X", lastWrite)
	}

	// Outside the region, words land in plain backing storage
	bus.SetWord(0x10000510, 0x5678)
	if got := bus.GetWord(0x10000510); got != 0x5678 {
		t.Fatalf("unmapped word = 0x%08X", got)
	}
	if lastWrite != 0x1234 {
		t.Fatal("unmapped write leaked into the device")
	}
}

func TestBusRegionSpanningPages(t *testing.T) {
	bus := NewHardwareBus()

	reads := 0
	bus.MapIO(0x100000F0, 0x10000110,
		func(addr uint32) uint32 { reads++; return 0 },
		nil)

	bus.GetWord(0x100000F0)
	bus.GetWord(0x10000100)
	bus.GetWord(0x10000110)

	if reads != 3 {
		t.Fatalf("mapped reads = %d, want 3 across both pages", reads)
	}
}
