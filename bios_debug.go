// bios_debug.go - Kernel introspection for debuggers and the CLI

package main

import "fmt"

type BiosModuleInfo struct {
	Name  string
	Begin uint32
	End   uint32
}

type BiosThreadInfo struct {
	Id               uint32
	Priority         uint32
	PC               uint32
	RA               uint32
	SP               uint32
	StateDescription string
}

// ModuleInfos lists the loaded executable as a module, matching the shape
// debuggers expect from richer kernels.
func (os *PS2OS) ModuleInfos() []BiosModuleInfo {
	if os.elf == nil {
		return nil
	}
	begin, end := os.elf.ExecutableRange()
	return []BiosModuleInfo{{
		Name:  os.executableName,
		Begin: begin,
		End:   end,
	}}
}

// ThreadInfos walks the schedule queue and reports every queued thread.
// The current thread's registers come from the live CPU state; everyone
// else's come from their saved context.
func (os *PS2OS) ThreadInfos() []BiosThreadInfo {
	var infos []BiosThreadInfo

	for it := os.schedule.Begin(); !it.IsEnd(); it.Next() {
		id := it.Value()
		thread := os.getThread(id)

		info := BiosThreadInfo{
			Id:       id,
			Priority: thread.Priority,
		}

		if os.getCurrentThreadId() == id {
			info.PC = os.ee.PC
			info.RA = os.ee.GPR[RA][0]
			info.SP = os.ee.GPR[SP][0]
		} else {
			info.PC = thread.EPC
			info.RA = ramRead32(os.ram, thread.ContextPtr+RA*0x10)
			info.SP = ramRead32(os.ram, thread.ContextPtr+SP*0x10)
		}

		switch thread.Status {
		case THREAD_RUNNING:
			info.StateDescription = "Running"
		case THREAD_SLEEPING:
			info.StateDescription = "Sleeping"
		case THREAD_WAITING:
			info.StateDescription = fmt.Sprintf("Waiting (Semaphore: %d)", thread.SemaWait)
		case THREAD_SUSPENDED:
			info.StateDescription = "Suspended"
		case THREAD_SUSPENDED_SLEEPING:
			info.StateDescription = "Suspended+Sleeping"
		case THREAD_SUSPENDED_WAITING:
			info.StateDescription = fmt.Sprintf("Suspended+Waiting (Semaphore: %d)", thread.SemaWait)
		case THREAD_ZOMBIE:
			info.StateDescription = "Zombie"
		default:
			info.StateDescription = "Unknown"
		}

		infos = append(infos, info)
	}

	return infos
}

// DumpIntcHandlers logs the registered INTC handlers.
func (os *PS2OS) DumpIntcHandlers() {
	for i := uint32(1); i < MAX_INTCHANDLER; i++ {
		handler := os.getIntcHandler(i)
		if handler.Valid == 0 {
			continue
		}
		os.log.Infof("INTC handler %02d: line %d, address 0x%08X", i, handler.Cause, handler.Address)
	}
}

// DumpDmacHandlers logs the registered DMAC handlers.
func (os *PS2OS) DumpDmacHandlers() {
	for i := uint32(1); i < MAX_DMACHANDLER; i++ {
		handler := os.getDmacHandler(i)
		if handler.Valid == 0 {
			continue
		}
		os.log.Infof("DMAC handler %02d: channel %d, address 0x%08X", i, handler.Channel, handler.Address)
	}
}
