// kernel_records.go - Kernel data structures living at fixed guest RAM offsets

/*
kernel_records.go - Kernel Memory Map

The kernel keeps all of its bookkeeping inside guest RAM at fixed physical
offsets, so the layout below is a public contract: games never touch these
records through syscalls alone - the emitted DMAC/INTC trampolines read the
handler tables directly, debuggers walk the thread table, and save-states
capture everything for free.

	0x00000000  Current thread id (1 word)
	0x00008000  DECI2 handlers
	0x0000A000  INTC handlers
	0x0000C000  DMAC handlers
	0x0000E000  Semaphores
	0x00010000  Custom syscall addresses (0x200 entries)
	0x00011000  Threads
	0x00020000  Kernel stack
	0x00030000  Thread schedule (round ribbon)

Semaphore and handler ids are 1-based (id 0 is reserved as the invalid id);
thread ids are 0-based with id 0 being the permanent idle thread.
*/

package main

import "encoding/binary"

const (
	KERNEL_CURRENT_THREAD  = 0x00000000
	KERNEL_DECI2HANDLERS   = 0x00008000
	KERNEL_INTCHANDLERS    = 0x0000A000
	KERNEL_DMACHANDLERS    = 0x0000C000
	KERNEL_SEMAPHORES      = 0x0000E000
	KERNEL_SYSCALL_TABLE   = 0x00010000
	KERNEL_THREADS         = 0x00011000
	KERNEL_STACK           = 0x00020000
	KERNEL_THREAD_SCHEDULE = 0x00030000

	KERNEL_THREAD_SCHEDULE_SIZE = 0x2000
)

const (
	MAX_THREAD       = 256
	MAX_SEMAPHORE    = 128
	MAX_INTCHANDLER  = 128
	MAX_DMACHANDLER  = 128
	MAX_DECI2HANDLER = 32
)

// Thread status values. The debugger reads the raw field, so the numeric
// values are contractual.
const (
	THREAD_RUNNING            = 0x01
	THREAD_SLEEPING           = 0x02
	THREAD_WAITING            = 0x03
	THREAD_SUSPENDED          = 0x04
	THREAD_SUSPENDED_SLEEPING = 0x05
	THREAD_SUSPENDED_WAITING  = 0x06
	THREAD_ZOMBIE             = 0x07
)

// Guest-visible thread status codes reported by ReferThreadStatus.
const (
	THS_RUN     = 0x01
	THS_READY   = 0x02
	THS_WAIT    = 0x04
	THS_SUSPEND = 0x08
	THS_DORMANT = 0x10
)

const THREAD_INIT_QUOTA = 15

// Saved register file at the top of a thread's stack: 32 quadword GPRs.
const STACKRES = 0x200

// THREAD record, 0x40 bytes.
const THREAD_RECORD_SIZE = 0x40

type Thread struct {
	Valid       uint32
	Status      uint32
	ContextPtr  uint32
	StackBase   uint32
	StackSize   uint32
	EPC         uint32
	Priority    uint32
	SemaWait    uint32
	WakeupCount uint32
	ScheduleID  uint32
	Quota       uint32
	HeapBase    uint32
}

// SEMAPHORE record, 0x10 bytes.
const SEMAPHORE_RECORD_SIZE = 0x10

type Semaphore struct {
	Valid     uint32
	Count     uint32
	MaxCount  uint32
	WaitCount uint32
}

// INTCHANDLER / DMACHANDLER record, 0x14 bytes. The field offsets are
// baked into the BIOS trampolines: valid +0x00, cause/channel +0x04,
// address +0x08, arg +0x0C, gp +0x10.
const INTCHANDLER_RECORD_SIZE = 0x14
const DMACHANDLER_RECORD_SIZE = 0x14

type IntcHandler struct {
	Valid   uint32
	Cause   uint32
	Address uint32
	Arg     uint32
	GP      uint32
}

type DmacHandler struct {
	Valid   uint32
	Channel uint32
	Address uint32
	Arg     uint32
	GP      uint32
}

// DECI2HANDLER record, 0x10 bytes.
const DECI2HANDLER_RECORD_SIZE = 0x10

type Deci2Handler struct {
	Valid      uint32
	Device     uint32
	BufferAddr uint32
}

// THREADPARAM guest structure passed to CreateThread / filled by
// ReferThreadStatus (ee_thread_t layout).
const (
	THREADPARAM_STATUS     = 0x00
	THREADPARAM_ENTRY      = 0x04
	THREADPARAM_STACK      = 0x08
	THREADPARAM_STACK_SIZE = 0x0C
	THREADPARAM_GP         = 0x10
	THREADPARAM_PRIORITY   = 0x14
	THREADPARAM_CURR_PRIO  = 0x18
)

// SEMAPHOREPARAM guest structure passed to CreateSema / filled by
// ReferSemaStatus (ee_sema_t layout).
const (
	SEMAPHOREPARAM_COUNT        = 0x00
	SEMAPHOREPARAM_MAX_COUNT    = 0x04
	SEMAPHOREPARAM_INIT_COUNT   = 0x08
	SEMAPHOREPARAM_WAIT_THREADS = 0x0C
)

func ramRead32(ram []byte, addr uint32) uint32 {
	return binary.LittleEndian.Uint32(ram[addr : addr+4])
}

func ramWrite32(ram []byte, addr uint32, value uint32) {
	binary.LittleEndian.PutUint32(ram[addr:addr+4], value)
}

// readCString reads a NUL-terminated string from guest RAM.
func readCString(ram []byte, addr uint32) string {
	end := addr
	for end < uint32(len(ram)) && ram[end] != 0 {
		end++
	}
	return string(ram[addr:end])
}

func (os *PS2OS) getThread(id uint32) Thread {
	base := uint32(KERNEL_THREADS) + id*THREAD_RECORD_SIZE
	return Thread{
		Valid:       ramRead32(os.ram, base+0x00),
		Status:      ramRead32(os.ram, base+0x04),
		ContextPtr:  ramRead32(os.ram, base+0x08),
		StackBase:   ramRead32(os.ram, base+0x0C),
		StackSize:   ramRead32(os.ram, base+0x10),
		EPC:         ramRead32(os.ram, base+0x14),
		Priority:    ramRead32(os.ram, base+0x18),
		SemaWait:    ramRead32(os.ram, base+0x1C),
		WakeupCount: ramRead32(os.ram, base+0x20),
		ScheduleID:  ramRead32(os.ram, base+0x24),
		Quota:       ramRead32(os.ram, base+0x28),
		HeapBase:    ramRead32(os.ram, base+0x2C),
	}
}

func (os *PS2OS) putThread(id uint32, t Thread) {
	base := uint32(KERNEL_THREADS) + id*THREAD_RECORD_SIZE
	ramWrite32(os.ram, base+0x00, t.Valid)
	ramWrite32(os.ram, base+0x04, t.Status)
	ramWrite32(os.ram, base+0x08, t.ContextPtr)
	ramWrite32(os.ram, base+0x0C, t.StackBase)
	ramWrite32(os.ram, base+0x10, t.StackSize)
	ramWrite32(os.ram, base+0x14, t.EPC)
	ramWrite32(os.ram, base+0x18, t.Priority)
	ramWrite32(os.ram, base+0x1C, t.SemaWait)
	ramWrite32(os.ram, base+0x20, t.WakeupCount)
	ramWrite32(os.ram, base+0x24, t.ScheduleID)
	ramWrite32(os.ram, base+0x28, t.Quota)
	ramWrite32(os.ram, base+0x2C, t.HeapBase)
}

// getSemaphore returns false for the reserved id 0 and out-of-range ids.
func (os *PS2OS) getSemaphore(id uint32) (Semaphore, bool) {
	if id == 0 || id > MAX_SEMAPHORE {
		return Semaphore{}, false
	}
	base := uint32(KERNEL_SEMAPHORES) + (id-1)*SEMAPHORE_RECORD_SIZE
	return Semaphore{
		Valid:     ramRead32(os.ram, base+0x00),
		Count:     ramRead32(os.ram, base+0x04),
		MaxCount:  ramRead32(os.ram, base+0x08),
		WaitCount: ramRead32(os.ram, base+0x0C),
	}, true
}

func (os *PS2OS) putSemaphore(id uint32, s Semaphore) {
	base := uint32(KERNEL_SEMAPHORES) + (id-1)*SEMAPHORE_RECORD_SIZE
	ramWrite32(os.ram, base+0x00, s.Valid)
	ramWrite32(os.ram, base+0x04, s.Count)
	ramWrite32(os.ram, base+0x08, s.MaxCount)
	ramWrite32(os.ram, base+0x0C, s.WaitCount)
}

func (os *PS2OS) getIntcHandler(id uint32) IntcHandler {
	base := uint32(KERNEL_INTCHANDLERS) + (id-1)*INTCHANDLER_RECORD_SIZE
	return IntcHandler{
		Valid:   ramRead32(os.ram, base+0x00),
		Cause:   ramRead32(os.ram, base+0x04),
		Address: ramRead32(os.ram, base+0x08),
		Arg:     ramRead32(os.ram, base+0x0C),
		GP:      ramRead32(os.ram, base+0x10),
	}
}

func (os *PS2OS) putIntcHandler(id uint32, h IntcHandler) {
	base := uint32(KERNEL_INTCHANDLERS) + (id-1)*INTCHANDLER_RECORD_SIZE
	ramWrite32(os.ram, base+0x00, h.Valid)
	ramWrite32(os.ram, base+0x04, h.Cause)
	ramWrite32(os.ram, base+0x08, h.Address)
	ramWrite32(os.ram, base+0x0C, h.Arg)
	ramWrite32(os.ram, base+0x10, h.GP)
}

func (os *PS2OS) getDmacHandler(id uint32) DmacHandler {
	base := uint32(KERNEL_DMACHANDLERS) + (id-1)*DMACHANDLER_RECORD_SIZE
	return DmacHandler{
		Valid:   ramRead32(os.ram, base+0x00),
		Channel: ramRead32(os.ram, base+0x04),
		Address: ramRead32(os.ram, base+0x08),
		Arg:     ramRead32(os.ram, base+0x0C),
		GP:      ramRead32(os.ram, base+0x10),
	}
}

func (os *PS2OS) putDmacHandler(id uint32, h DmacHandler) {
	base := uint32(KERNEL_DMACHANDLERS) + (id-1)*DMACHANDLER_RECORD_SIZE
	ramWrite32(os.ram, base+0x00, h.Valid)
	ramWrite32(os.ram, base+0x04, h.Channel)
	ramWrite32(os.ram, base+0x08, h.Address)
	ramWrite32(os.ram, base+0x0C, h.Arg)
	ramWrite32(os.ram, base+0x10, h.GP)
}

func (os *PS2OS) getDeci2Handler(id uint32) Deci2Handler {
	base := uint32(KERNEL_DECI2HANDLERS) + (id-1)*DECI2HANDLER_RECORD_SIZE
	return Deci2Handler{
		Valid:      ramRead32(os.ram, base+0x00),
		Device:     ramRead32(os.ram, base+0x04),
		BufferAddr: ramRead32(os.ram, base+0x08),
	}
}

func (os *PS2OS) putDeci2Handler(id uint32, h Deci2Handler) {
	base := uint32(KERNEL_DECI2HANDLERS) + (id-1)*DECI2HANDLER_RECORD_SIZE
	ramWrite32(os.ram, base+0x00, h.Valid)
	ramWrite32(os.ram, base+0x04, h.Device)
	ramWrite32(os.ram, base+0x08, h.BufferAddr)
}

func (os *PS2OS) getCurrentThreadId() uint32 {
	return ramRead32(os.ram, KERNEL_CURRENT_THREAD)
}

func (os *PS2OS) setCurrentThreadId(id uint32) {
	ramWrite32(os.ram, KERNEL_CURRENT_THREAD, id)
}

func (os *PS2OS) getCustomSyscall(number uint32) uint32 {
	return ramRead32(os.ram, KERNEL_SYSCALL_TABLE+number*4)
}

func (os *PS2OS) setCustomSyscall(number uint32, address uint32) {
	ramWrite32(os.ram, KERNEL_SYSCALL_TABLE+number*4, address)
}

func (os *PS2OS) getNextAvailableThreadId() uint32 {
	for i := uint32(0); i < MAX_THREAD; i++ {
		if os.getThread(i).Valid != 1 {
			return i
		}
	}
	return 0xFFFFFFFF
}

func (os *PS2OS) getNextAvailableSemaphoreId() uint32 {
	for i := uint32(1); i < MAX_SEMAPHORE; i++ {
		if s, _ := os.getSemaphore(i); s.Valid != 1 {
			return i
		}
	}
	return 0xFFFFFFFF
}

func (os *PS2OS) getNextAvailableIntcHandlerId() uint32 {
	for i := uint32(1); i < MAX_INTCHANDLER; i++ {
		if os.getIntcHandler(i).Valid != 1 {
			return i
		}
	}
	return 0xFFFFFFFF
}

func (os *PS2OS) getNextAvailableDmacHandlerId() uint32 {
	for i := uint32(1); i < MAX_DMACHANDLER; i++ {
		if os.getDmacHandler(i).Valid != 1 {
			return i
		}
	}
	return 0xFFFFFFFF
}

func (os *PS2OS) getNextAvailableDeci2HandlerId() uint32 {
	for i := uint32(1); i < MAX_DECI2HANDLER; i++ {
		if os.getDeci2Handler(i).Valid != 1 {
			return i
		}
	}
	return 0xFFFFFFFF
}
