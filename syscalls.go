// syscalls.go - EE kernel system call handlers

/*
syscalls.go - System Calls

The dispatcher runs when the CPU traps a SYSCALL instruction. The call
number travels in V1, arguments in A0..A3 then T0, the result in V0 as a
sign-extended 64-bit value. Number 0x666 is not a real kernel call: the
wait thread trampoline issues it to ask for a reschedule.

A game can hook any number through SetSyscall; hooked numbers bypass the
host handlers entirely and re-enter guest code through the custom syscall
gate. Unknown numbers are logged and skipped so a title probing for newer
kernel calls keeps running.
*/

package main

// Syscall handlers indexed by call number. Nil entries fall through to
// scUnhandled.
var sysCallTable = [0x80]func(*PS2OS){
	0x02: (*PS2OS).scGsSetCrt,
	0x06: (*PS2OS).scLoadExecPS2,
	0x10: (*PS2OS).scAddIntcHandler,
	0x11: (*PS2OS).scRemoveIntcHandler,
	0x12: (*PS2OS).scAddDmacHandler,
	0x13: (*PS2OS).scRemoveDmacHandler,
	0x14: (*PS2OS).scEnableIntc,
	0x15: (*PS2OS).scDisableIntc,
	0x16: (*PS2OS).scEnableDmac,
	0x17: (*PS2OS).scDisableDmac,
	0x20: (*PS2OS).scCreateThread,
	0x21: (*PS2OS).scDeleteThread,
	0x22: (*PS2OS).scStartThread,
	0x23: (*PS2OS).scExitThread,
	0x25: (*PS2OS).scTerminateThread,
	0x29: (*PS2OS).scChangeThreadPriority,
	0x2A: (*PS2OS).scChangeThreadPriority,
	0x2B: (*PS2OS).scRotateThreadReadyQueue,
	0x2F: (*PS2OS).scGetThreadId,
	0x30: (*PS2OS).scReferThreadStatus,
	0x31: (*PS2OS).scReferThreadStatus,
	0x32: (*PS2OS).scSleepThread,
	0x33: (*PS2OS).scWakeupThread,
	0x34: (*PS2OS).scWakeupThread,
	0x37: (*PS2OS).scSuspendThread,
	0x39: (*PS2OS).scResumeThread,
	0x3C: (*PS2OS).scSetupThread,
	0x3D: (*PS2OS).scSetupHeap,
	0x3E: (*PS2OS).scEndOfHeap,
	0x40: (*PS2OS).scCreateSema,
	0x41: (*PS2OS).scDeleteSema,
	0x42: (*PS2OS).scSignalSema,
	0x43: (*PS2OS).scSignalSema,
	0x44: (*PS2OS).scWaitSema,
	0x45: (*PS2OS).scPollSema,
	0x46: (*PS2OS).scPollSema,
	0x47: (*PS2OS).scReferSemaStatus,
	0x48: (*PS2OS).scReferSemaStatus,
	0x64: (*PS2OS).scFlushCache,
	0x68: (*PS2OS).scFlushCache,
	0x70: (*PS2OS).scGsGetIMR,
	0x71: (*PS2OS).scGsPutIMR,
	0x73: (*PS2OS).scSetVSyncFlag,
	0x74: (*PS2OS).scSetSyscall,
	0x76: (*PS2OS).scSifDmaStat,
	0x77: (*PS2OS).scSifSetDma,
	0x78: (*PS2OS).scSifSetDChain,
	0x79: (*PS2OS).scSifSetReg,
	0x7A: (*PS2OS).scSifGetReg,
	0x7C: (*PS2OS).scDeci2Call,
	0x7F: (*PS2OS).scGetMemorySize,
}

func (os *PS2OS) param(index uint32) uint32 {
	return os.ee.GPR[SC_PARAM0+index][0]
}

func (os *PS2OS) setReturn(value uint32) {
	os.ee.GPR[SC_RETURN][0] = value
	os.ee.GPR[SC_RETURN][1] = 0
}

func (os *PS2OS) setReturnError() {
	os.ee.GPR[SC_RETURN][0] = 0xFFFFFFFF
	os.ee.GPR[SC_RETURN][1] = 0xFFFFFFFF
}

func (os *PS2OS) setReturnSigned(value uint32) {
	os.ee.GPR[SC_RETURN][0] = value
	if value&0x80000000 != 0 {
		os.ee.GPR[SC_RETURN][1] = 0xFFFFFFFF
	} else {
		os.ee.GPR[SC_RETURN][1] = 0
	}
}

// SysCallHandler services a trapped SYSCALL instruction.
func (os *PS2OS) SysCallHandler() {
	if os.ee.FetchInstruction != nil {
		searchAddress := os.ee.COP0[COP0_EPC]
		if callInstruction := os.ee.FetchInstruction(searchAddress); callInstruction != 0x0000000C {
			os.log.WithFields(map[string]interface{}{
				"epc":    searchAddress,
				"opcode": callInstruction,
			}).Error("Trapped instruction is not a SYSCALL")
			os.ee.HasException = false
			return
		}
	}

	number := os.ee.GPR[V1][0]

	if number == 0x666 {
		// Reschedule request from the wait thread
		os.ThreadShakeAndBake()
	} else {
		// Negative numbers alias their positive counterpart
		if number&0x80000000 != 0 {
			number = -number
		}
		// Keep the folded number visible for a custom handler
		os.ee.GPR[V1][0] = number

		custom := uint32(0)
		if number < 0x200 {
			custom = os.getCustomSyscall(number)
		}

		if custom != 0 {
			os.ee.GenerateException(BIOS_ADDRESS_CUSTOMSYSCALL)
		} else if number < 0x80 {
			os.traceSysCall(number)
			if handler := sysCallTable[number]; handler != nil {
				handler(os)
			} else {
				os.scUnhandled()
			}
		} else {
			os.scUnhandled()
		}
	}

	os.ee.HasException = false
}

func (os *PS2OS) scUnhandled() {
	os.log.WithFields(map[string]interface{}{
		"number": os.ee.GPR[V1][0],
		"pc":     os.ee.PC,
	}).Warn("Unknown system call")
}

// 02
func (os *PS2OS) scGsSetCrt() {
	interlaced := os.param(0) != 0
	mode := os.param(1)
	frameMode := os.param(2) != 0

	if os.gs != nil {
		os.gs.SetCrt(interlaced, mode, frameMode)
	}
}

// 06
func (os *PS2OS) scLoadExecPS2() {
	fileNamePtr := os.param(0) & (EE_RAM_SIZE - 1)
	argCount := os.param(1)
	argValuesPtr := os.param(2) & (EE_RAM_SIZE - 1)

	arguments := make([]string, 0, argCount)
	for i := uint32(0); i < argCount; i++ {
		argValuePtr := ramRead32(os.ram, argValuesPtr+i*4) & (EE_RAM_SIZE - 1)
		arguments = append(arguments, readCString(os.ram, argValuePtr))
	}

	fileName := readCString(os.ram, fileNamePtr)
	if os.OnRequestLoadExecutable != nil {
		os.OnRequestLoadExecutable(fileName, arguments)
	}
}

// 10
func (os *PS2OS) scAddIntcHandler() {
	cause := os.param(0)
	address := os.param(1)
	arg := os.param(3)

	id := os.getNextAvailableIntcHandlerId()
	if id == 0xFFFFFFFF {
		os.setReturnError()
		return
	}

	os.putIntcHandler(id, IntcHandler{
		Valid:   1,
		Cause:   cause,
		Address: address,
		Arg:     arg,
		GP:      os.ee.GPR[GP][0],
	})

	os.setReturn(id)
}

// 11
func (os *PS2OS) scRemoveIntcHandler() {
	id := os.param(1)

	if id == 0 || id >= MAX_INTCHANDLER {
		os.setReturnError()
		return
	}
	handler := os.getIntcHandler(id)
	if handler.Valid != 1 {
		os.setReturnError()
		return
	}

	handler.Valid = 0
	os.putIntcHandler(id, handler)

	os.setReturn(0)
}

// 12
func (os *PS2OS) scAddDmacHandler() {
	channel := os.param(0)
	address := os.param(1)
	next := os.param(2)
	arg := os.param(3)

	// Next selects the insertion point in the handler chain; only
	// appending at the start is supported.
	if next != 0 {
		os.log.WithField("next", next).Error("Unsupported DMAC handler insertion point")
	}

	id := os.getNextAvailableDmacHandlerId()
	if id == 0xFFFFFFFF {
		os.setReturnError()
		return
	}

	os.putDmacHandler(id, DmacHandler{
		Valid:   1,
		Channel: channel,
		Address: address,
		Arg:     arg,
		GP:      os.ee.GPR[GP][0],
	})

	os.setReturn(id)
}

// 13
func (os *PS2OS) scRemoveDmacHandler() {
	id := os.param(1)

	if id == 0 || id >= MAX_DMACHANDLER {
		os.setReturnError()
		return
	}
	handler := os.getDmacHandler(id)
	handler.Valid = 0
	os.putDmacHandler(id, handler)

	os.setReturn(0)
}

// 14
func (os *PS2OS) scEnableIntc() {
	cause := os.param(0)
	mask := uint32(1) << cause

	if os.ee.Hardware.GetWord(INTC_MASK)&mask == 0 {
		os.ee.Hardware.SetWord(INTC_MASK, mask)
	}

	os.setReturn(1)
}

// 15
func (os *PS2OS) scDisableIntc() {
	cause := os.param(0)
	mask := uint32(1) << cause

	if os.ee.Hardware.GetWord(INTC_MASK)&mask != 0 {
		os.ee.Hardware.SetWord(INTC_MASK, mask)
	}

	os.setReturn(1)
}

// 16
func (os *PS2OS) scEnableDmac() {
	channel := os.param(0)
	register := uint32(0x10000) << channel

	if os.ee.Hardware.GetWord(D_STAT)&register == 0 {
		os.ee.Hardware.SetWord(D_STAT, register)
	}

	// Enable INT1
	if os.ee.Hardware.GetWord(INTC_MASK)&0x02 == 0 {
		os.ee.Hardware.SetWord(INTC_MASK, 0x02)
	}

	os.setReturn(1)
}

// 17
func (os *PS2OS) scDisableDmac() {
	channel := os.param(0)
	register := uint32(0x10000) << channel

	if os.ee.Hardware.GetWord(D_STAT)&register != 0 {
		os.ee.Hardware.SetWord(D_STAT, register)
		os.setReturn(1)
	} else {
		os.setReturn(0)
	}
}

// 20
func (os *PS2OS) scCreateThread() {
	paramPtr := os.param(0) & (EE_RAM_SIZE - 1)

	id := os.getNextAvailableThreadId()
	if id == 0xFFFFFFFF {
		os.setReturn(id)
		return
	}

	heapBase := os.getThread(os.getCurrentThreadId()).HeapBase

	entry := ramRead32(os.ram, paramPtr+THREADPARAM_ENTRY)
	stackBase := ramRead32(os.ram, paramPtr+THREADPARAM_STACK)
	stackSize := ramRead32(os.ram, paramPtr+THREADPARAM_STACK_SIZE)
	gp := ramRead32(os.ram, paramPtr+THREADPARAM_GP)
	priority := ramRead32(os.ram, paramPtr+THREADPARAM_PRIORITY)

	stackAddr := stackBase + stackSize - STACKRES

	os.putThread(id, Thread{
		Valid:       1,
		Status:      THREAD_ZOMBIE,
		ContextPtr:  stackAddr,
		StackBase:   stackBase,
		StackSize:   stackSize,
		EPC:         entry,
		Priority:    priority,
		HeapBase:    heapBase,
		Quota:       THREAD_INIT_QUOTA,
		ScheduleID:  os.schedule.Insert(id, priority),
		WakeupCount: 0,
	})

	// Fresh context: empty registers except the stack, GP and a return
	// address parked on the exit trampoline
	for i := uint32(0); i < STACKRES; i++ {
		os.ram[stackAddr+i] = 0
	}
	ramWrite32(os.ram, stackAddr+SP*0x10, stackAddr)
	ramWrite32(os.ram, stackAddr+FP*0x10, stackAddr)
	ramWrite32(os.ram, stackAddr+GP*0x10, gp)
	ramWrite32(os.ram, stackAddr+RA*0x10, BIOS_ADDRESS_THREADEPILOG)

	os.setReturn(id)
}

// 21
func (os *PS2OS) scDeleteThread() {
	id := os.param(0)

	if id >= MAX_THREAD {
		os.setReturnError()
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		os.setReturnError()
		return
	}

	os.schedule.Remove(thread.ScheduleID)
	thread.Valid = 0
	os.putThread(id, thread)

	os.setReturn(0)
}

// 22
func (os *PS2OS) scStartThread() {
	id := os.param(0)
	arg := os.param(1)

	if id >= MAX_THREAD {
		os.setReturnError()
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		os.setReturnError()
		return
	}

	if thread.Status != THREAD_ZOMBIE {
		os.log.WithField("thread", id).Warn("Starting a thread that isn't dormant")
	}
	thread.Status = THREAD_RUNNING
	os.putThread(id, thread)

	ramWrite32(os.ram, thread.ContextPtr+A0*0x10, arg)

	os.setReturn(id)
}

// 23
func (os *PS2OS) scExitThread() {
	id := os.getCurrentThreadId()
	thread := os.getThread(id)
	thread.Status = THREAD_ZOMBIE
	os.putThread(id, thread)

	os.ThreadShakeAndBake()
}

// 25
func (os *PS2OS) scTerminateThread() {
	id := os.param(0)

	if id >= MAX_THREAD {
		os.setReturnError()
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		os.setReturnError()
		return
	}

	thread.Status = THREAD_ZOMBIE
	os.putThread(id, thread)

	os.setReturn(0)
}

// 29/2A
func (os *PS2OS) scChangeThreadPriority() {
	isInterrupt := os.ee.GPR[V1][0] == 0x2A
	id := os.param(0)
	priority := os.param(1)

	if id >= MAX_THREAD {
		os.setReturnError()
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		os.setReturnError()
		return
	}

	previousPriority := thread.Priority
	thread.Priority = priority

	os.setReturn(previousPriority)

	os.schedule.Remove(thread.ScheduleID)
	thread.ScheduleID = os.schedule.Insert(id, priority)
	os.putThread(id, thread)

	if !isInterrupt {
		os.ThreadShakeAndBake()
	}
}

// 2B
func (os *PS2OS) scRotateThreadReadyQueue() {
	priority := os.param(0)

	// Rotate the band only when its head is another thread; the current
	// thread's band already rotates through the remove-and-reinsert on the
	// next election.
	found := false
	for it := os.schedule.Begin(); !it.IsEnd(); it.Next() {
		if it.Weight() != priority {
			continue
		}
		found = true
		id := it.Value()
		if id != os.getCurrentThreadId() {
			thread := os.getThread(id)
			os.schedule.Remove(it.Index())
			thread.ScheduleID = os.schedule.Insert(id, priority)
			os.putThread(id, thread)
		}
		break
	}

	os.setReturn(priority)

	if found {
		os.ThreadShakeAndBake()
	}
}

// 2F
func (os *PS2OS) scGetThreadId() {
	os.setReturn(os.getCurrentThreadId())
}

// 30/31
func (os *PS2OS) scReferThreadStatus() {
	id := os.param(0)
	statusPtr := os.param(1) & (EE_RAM_SIZE - 1)

	if id >= MAX_THREAD {
		os.setReturnError()
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		os.setReturnError()
		return
	}

	result := uint32(0)
	switch thread.Status {
	case THREAD_RUNNING:
		result = THS_RUN
	case THREAD_WAITING, THREAD_SLEEPING:
		result = THS_WAIT
	case THREAD_SUSPENDED:
		result = THS_SUSPEND
	case THREAD_SUSPENDED_WAITING, THREAD_SUSPENDED_SLEEPING:
		result = THS_WAIT | THS_SUSPEND
	case THREAD_ZOMBIE:
		result = THS_DORMANT
	}

	if statusPtr != 0 {
		ramWrite32(os.ram, statusPtr+THREADPARAM_STATUS, result)
		ramWrite32(os.ram, statusPtr+THREADPARAM_STACK, thread.StackBase)
		ramWrite32(os.ram, statusPtr+THREADPARAM_STACK_SIZE, thread.StackSize)
		ramWrite32(os.ram, statusPtr+THREADPARAM_PRIORITY, thread.Priority)
		ramWrite32(os.ram, statusPtr+THREADPARAM_CURR_PRIO, thread.Priority)
	}

	os.setReturn(result)
}

// 32
func (os *PS2OS) scSleepThread() {
	id := os.getCurrentThreadId()
	thread := os.getThread(id)
	if thread.WakeupCount == 0 {
		thread.Status = THREAD_SLEEPING
		os.putThread(id, thread)
		os.ThreadShakeAndBake()
		return
	}

	thread.WakeupCount--
	os.putThread(id, thread)
}

// 33/34
func (os *PS2OS) scWakeupThread() {
	id := os.param(0)

	if id >= MAX_THREAD {
		return
	}
	thread := os.getThread(id)

	switch thread.Status {
	case THREAD_SLEEPING:
		thread.Status = THREAD_RUNNING
		os.putThread(id, thread)
		os.ThreadShakeAndBake()
	case THREAD_SUSPENDED_SLEEPING:
		thread.Status = THREAD_SUSPENDED
		os.putThread(id, thread)
		os.ThreadShakeAndBake()
	default:
		thread.WakeupCount++
		os.putThread(id, thread)
	}
}

// 37
func (os *PS2OS) scSuspendThread() {
	id := os.param(0)

	if id >= MAX_THREAD {
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		return
	}

	switch thread.Status {
	case THREAD_RUNNING:
		thread.Status = THREAD_SUSPENDED
	case THREAD_WAITING:
		thread.Status = THREAD_SUSPENDED_WAITING
	case THREAD_SLEEPING:
		thread.Status = THREAD_SUSPENDED_SLEEPING
	default:
		os.log.WithField("thread", id).Warn("Suspending a thread that isn't runnable")
	}
	os.putThread(id, thread)

	os.ThreadShakeAndBake()
}

// 39
func (os *PS2OS) scResumeThread() {
	id := os.param(0)

	if id >= MAX_THREAD {
		return
	}
	thread := os.getThread(id)
	if thread.Valid != 1 {
		return
	}

	switch thread.Status {
	case THREAD_SUSPENDED:
		thread.Status = THREAD_RUNNING
	case THREAD_SUSPENDED_WAITING:
		thread.Status = THREAD_WAITING
	case THREAD_SUSPENDED_SLEEPING:
		thread.Status = THREAD_SLEEPING
	default:
		os.log.WithField("thread", id).Warn("Resuming a thread that isn't suspended")
	}
	os.putThread(id, thread)

	os.ThreadShakeAndBake()
}

// 3C
func (os *PS2OS) scSetupThread() {
	stackBase := os.param(1)
	stackSize := os.param(2)

	var stackAddr uint32
	if stackBase == 0xFFFFFFFF {
		stackAddr = 0x02000000
	} else {
		stackAddr = stackBase + stackSize
	}

	// Build the argument block: count word, pointer table, then the
	// packed strings. The executable name is always argument zero.
	argsBase := os.param(3) & (EE_RAM_SIZE - 1)
	{
		argList := append([]string{os.executableName}, os.currentArgs...)
		argsCount := uint32(len(argList))

		ramWrite32(os.ram, argsBase, argsCount)
		argsPtrs := argsBase + 4
		argsPayload := argsPtrs + argsCount*4
		for i, arg := range argList {
			ramWrite32(os.ram, argsPtrs+uint32(i)*4, argsPayload)
			copy(os.ram[argsPayload:], arg)
			os.ram[argsPayload+uint32(len(arg))] = 0
			argsPayload += uint32(len(arg)) + 1
		}
	}

	// Set up the main thread
	thread := os.getThread(1)
	thread.Valid = 1
	thread.Status = THREAD_RUNNING
	thread.StackBase = stackAddr - stackSize
	thread.StackSize = stackSize
	thread.Priority = 0
	thread.Quota = THREAD_INIT_QUOTA
	thread.ScheduleID = os.schedule.Insert(1, thread.Priority)

	stackAddr -= STACKRES
	thread.ContextPtr = stackAddr
	os.putThread(1, thread)

	os.setCurrentThreadId(1)

	os.setReturn(stackAddr)
}

// 3D
func (os *PS2OS) scSetupHeap() {
	id := os.getCurrentThreadId()
	thread := os.getThread(id)

	heapBase := os.param(0)
	heapSize := os.param(1)

	if heapSize == 0xFFFFFFFF {
		thread.HeapBase = thread.StackBase
	} else {
		thread.HeapBase = heapBase + heapSize
	}
	os.putThread(id, thread)

	os.setReturn(thread.HeapBase)
}

// 3E
func (os *PS2OS) scEndOfHeap() {
	thread := os.getThread(os.getCurrentThreadId())
	os.setReturn(thread.HeapBase)
}

// 40
func (os *PS2OS) scCreateSema() {
	paramPtr := os.param(0) & (EE_RAM_SIZE - 1)

	id := os.getNextAvailableSemaphoreId()
	if id == 0xFFFFFFFF {
		os.setReturnError()
		return
	}

	initCount := ramRead32(os.ram, paramPtr+SEMAPHOREPARAM_INIT_COUNT)
	maxCount := ramRead32(os.ram, paramPtr+SEMAPHOREPARAM_MAX_COUNT)

	if initCount > maxCount {
		os.log.WithFields(map[string]interface{}{
			"init": initCount,
			"max":  maxCount,
		}).Warn("Semaphore created with initial count above maximum")
	}

	os.putSemaphore(id, Semaphore{
		Valid:     1,
		Count:     initCount,
		MaxCount:  maxCount,
		WaitCount: 0,
	})

	os.setReturn(id)
}

// 41
func (os *PS2OS) scDeleteSema() {
	id := os.param(0)

	sema, ok := os.getSemaphore(id)
	if !ok || sema.Valid != 1 {
		os.setReturnError()
		return
	}

	if sema.WaitCount != 0 {
		os.log.WithFields(map[string]interface{}{
			"semaphore": id,
			"waiters":   sema.WaitCount,
		}).Error("Deleting a semaphore with waiting threads")
	}

	sema.Valid = 0
	os.putSemaphore(id, sema)

	os.setReturn(id)
}

// 42/43
func (os *PS2OS) scSignalSema() {
	isInterrupt := os.ee.GPR[V1][0] == 0x43
	id := os.param(0)

	sema, ok := os.getSemaphore(id)
	if !ok || sema.Valid != 1 {
		os.setReturnError()
		return
	}

	if sema.WaitCount != 0 {
		// One signal releases one waiter; scan order is thread id order
		for i := uint32(0); i < MAX_THREAD; i++ {
			thread := os.getThread(i)
			if thread.Valid != 1 {
				continue
			}
			if thread.Status != THREAD_WAITING && thread.Status != THREAD_SUSPENDED_WAITING {
				continue
			}
			if thread.SemaWait != id {
				continue
			}

			switch thread.Status {
			case THREAD_WAITING:
				thread.Status = THREAD_RUNNING
			case THREAD_SUSPENDED_WAITING:
				thread.Status = THREAD_SUSPENDED
			}
			thread.Quota = THREAD_INIT_QUOTA
			os.putThread(i, thread)

			sema.WaitCount--
			break
		}
		os.putSemaphore(id, sema)

		// The second write below lands in the elected thread's registers;
		// this one is saved into the signaler's context by the switch.
		os.setReturn(id)

		if !isInterrupt {
			os.ThreadShakeAndBake()
		}
	} else {
		sema.Count++
		os.putSemaphore(id, sema)
	}

	os.setReturn(id)
}

// 44
func (os *PS2OS) scWaitSema() {
	id := os.param(0)

	sema, ok := os.getSemaphore(id)
	if !ok || sema.Valid != 1 {
		os.setReturnError()
		return
	}

	// Idle loop detection: the same caller waiting on the same semaphore
	// over and over marks the current thread as the idle thread
	if os.semaWaitId == id && os.semaWaitCaller == os.ee.GPR[RA][0] {
		os.semaWaitCount++
		if os.semaWaitCount > 100 {
			os.semaWaitThreadId = os.getCurrentThreadId()
		}
	} else {
		os.semaWaitId = id
		os.semaWaitCaller = os.ee.GPR[RA][0]
		os.semaWaitCount = 0
	}

	if sema.Count == 0 {
		// Block and reschedule
		sema.WaitCount++
		os.putSemaphore(id, sema)

		threadId := os.getCurrentThreadId()
		thread := os.getThread(threadId)
		thread.Status = THREAD_WAITING
		thread.SemaWait = id
		os.putThread(threadId, thread)

		os.ThreadShakeAndBake()
		return
	}

	sema.Count--
	os.putSemaphore(id, sema)

	os.setReturn(id)
}

// 45/46
func (os *PS2OS) scPollSema() {
	id := os.param(0)

	sema, ok := os.getSemaphore(id)
	if !ok || sema.Valid != 1 {
		os.setReturnError()
		return
	}

	if sema.Count == 0 {
		os.setReturnError()
		return
	}

	sema.Count--
	os.putSemaphore(id, sema)

	os.setReturn(id)
}

// 47/48
func (os *PS2OS) scReferSemaStatus() {
	id := os.param(0)
	paramPtr := os.param(1) & 0x1FFFFFFF

	sema, ok := os.getSemaphore(id)
	if !ok || sema.Valid != 1 {
		os.setReturnError()
		return
	}

	ramWrite32(os.ram, paramPtr+SEMAPHOREPARAM_COUNT, sema.Count)
	ramWrite32(os.ram, paramPtr+SEMAPHOREPARAM_MAX_COUNT, sema.MaxCount)
	ramWrite32(os.ram, paramPtr+SEMAPHOREPARAM_WAIT_THREADS, sema.WaitCount)

	os.setReturn(id)
}

// 64/68
func (os *PS2OS) scFlushCache() {
	operationType := os.param(0)
	if operationType == 2 {
		// Flush instruction cache
		if os.OnRequestInstructionCacheFlush != nil {
			os.OnRequestInstructionCacheFlush()
		}
	}
}

// 70
func (os *PS2OS) scGsGetIMR() {
	result := uint32(0)
	if os.gs != nil {
		result = os.gs.ReadPrivRegister(GS_PRIV_IMR)
	}
	os.setReturnSigned(result)
}

// 71
func (os *PS2OS) scGsPutIMR() {
	imr := os.param(0)
	if os.gs != nil {
		os.gs.WritePrivRegister(GS_PRIV_IMR, imr)
	}
}

// 73
func (os *PS2OS) scSetVSyncFlag() {
	ptr1 := os.param(0) & (EE_RAM_SIZE - 1)
	ptr2 := os.param(1) & (EE_RAM_SIZE - 1)

	ramWrite32(os.ram, ptr1, 0x01)

	if os.gs != nil {
		// Reflect the VSYNC interrupt bit out of CSR
		ramWrite32(os.ram, ptr2, os.gs.ReadPrivRegister(GS_PRIV_CSR)&0x2000)
	} else {
		ramWrite32(os.ram, ptr2, 0)
	}

	os.setReturn(0)
}

// 74
func (os *PS2OS) scSetSyscall() {
	number := os.param(0) & 0xFF
	address := os.param(1)

	os.setCustomSyscall(number, address)

	os.setReturn(0)
}

// 76
func (os *PS2OS) scSifDmaStat() {
	os.setReturnError()
}

// 77
func (os *PS2OS) scSifSetDma() {
	xferAddress := os.param(0) & (EE_RAM_SIZE - 1)
	count := os.param(1)

	// Returns count; the transfer completion may raise an interrupt later
	os.setReturnSigned(count)

	for i := uint32(0); i < count; i++ {
		recordAddr := xferAddress + i*0x10
		srcAddr := ramRead32(os.ram, recordAddr+0x00)
		dstAddr := ramRead32(os.ram, recordAddr+0x04)
		size := ramRead32(os.ram, recordAddr+0x08)

		qwc := (size + 0x0F) / 0x10

		os.ee.Hardware.SetWord(D6_MADR, srcAddr)
		os.ee.Hardware.SetWord(D6_TADR, dstAddr)
		os.ee.Hardware.SetWord(D6_QWC, qwc)
		os.ee.Hardware.SetWord(D6_CHCR, 0x00000100)
	}
}

// 78
func (os *PS2OS) scSifSetDChain() {
	// SIF0 stays in destination chain mode permanently, nothing to do
}

// 79
func (os *PS2OS) scSifSetReg() {
	register := os.param(0)
	value := os.param(1)

	os.sif.SetRegister(register, value)

	os.setReturn(0)
}

// 7A
func (os *PS2OS) scSifGetReg() {
	register := os.param(0)
	os.setReturnSigned(os.sif.GetRegister(register))
}

// 7C
func (os *PS2OS) scDeci2Call() {
	function := os.param(0)
	paramAddr := os.param(1) & (EE_RAM_SIZE - 1)

	switch function {
	case 0x01:
		// Deci2Open
		id := os.getNextAvailableDeci2HandlerId()
		if id == 0xFFFFFFFF {
			os.setReturnError()
			return
		}

		os.putDeci2Handler(id, Deci2Handler{
			Valid:      1,
			Device:     ramRead32(os.ram, paramAddr+0x00),
			BufferAddr: ramRead32(os.ram, paramAddr+0x04),
		})

		os.setReturn(id)

	case 0x03:
		// Deci2Send
		id := ramRead32(os.ram, paramAddr+0x00)

		if id != 0 && id < MAX_DECI2HANDLER {
			handler := os.getDeci2Handler(id)
			if handler.Valid != 0 {
				stringAddr := ramRead32(os.ram, handler.BufferAddr+0x10) & (EE_RAM_SIZE - 1)
				// The size byte counts the 0x0C-byte header; anything
				// shorter carries no payload.
				recordSize := uint32(os.ram[stringAddr])
				begin := stringAddr + 0x0C
				end := stringAddr + recordSize
				if end > uint32(len(os.ram)) {
					end = uint32(len(os.ram))
				}
				if recordSize > 0x0C && begin < end {
					os.ioman.Write(IOMAN_FD_STDOUT, os.ram[begin:end])
				}
			}
		}

		os.setReturn(1)

	case 0x04:
		// Deci2Poll
		id := ramRead32(os.ram, paramAddr+0x00)

		if id != 0 && id < MAX_DECI2HANDLER {
			handler := os.getDeci2Handler(id)
			if handler.Valid != 0 {
				ramWrite32(os.ram, handler.BufferAddr+0x0C, 0)
			}
		}

		os.setReturn(1)

	case 0x10:
		// kPuts
		stringAddr := ramRead32(os.ram, paramAddr) & (EE_RAM_SIZE - 1)
		text := readCString(os.ram, stringAddr)
		os.ioman.Write(IOMAN_FD_STDOUT, []byte(text))

	default:
		os.log.WithFields(map[string]interface{}{
			"function": function,
			"pc":       os.ee.PC,
		}).Warn("Unknown Deci2Call function")
	}
}

// 7F
func (os *PS2OS) scGetMemorySize() {
	os.setReturn(EE_RAM_SIZE)
}
