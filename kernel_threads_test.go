// kernel_threads_test.go - Scheduler and thread syscall tests

package main

import "testing"

// newTestKernel builds a machine ready for direct syscall invocation.
// Instruction fetch verification is disabled since tests trap calls without
// executing guest code.
func newTestKernel(t *testing.T) *Machine {
	t.Helper()
	machine := NewMachine(t.TempDir())
	machine.EE.FetchInstruction = nil
	machine.EE.COP0[COP0_STATUS] |= STATUS_IE
	machine.OS.createWaitThread()
	return machine
}

func doSyscall(m *Machine, number uint32, params ...uint32) {
	m.EE.GPR[V1][0] = number
	for i, p := range params {
		m.EE.GPR[SC_PARAM0+uint32(i)][0] = p
	}
	m.OS.SysCallHandler()
}

func returnValue(m *Machine) uint32 {
	return m.EE.GPR[SC_RETURN][0]
}

// addRunnableThread installs a thread record directly, bypassing
// CreateThread, for scheduler-focused tests.
func addRunnableThread(m *Machine, id, priority, contextPtr, epc uint32) {
	thread := Thread{
		Valid:      1,
		Status:     THREAD_RUNNING,
		ContextPtr: contextPtr,
		EPC:        epc,
		Priority:   priority,
		Quota:      THREAD_INIT_QUOTA,
	}
	thread.ScheduleID = m.OS.schedule.Insert(id, priority)
	m.OS.putThread(id, thread)
}

func TestSetupThreadInitializesMainThread(t *testing.T) {
	m := newTestKernel(t)
	m.OS.executableName = "GAME.ELF"

	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)

	if got := m.OS.getCurrentThreadId(); got != 1 {
		t.Fatalf("current thread = %d, want 1", got)
	}
	if got := returnValue(m); got != 0x00401000-STACKRES {
		t.Fatalf("returned stack pointer = 0x%08X, want 0x%08X", got, 0x00401000-STACKRES)
	}

	thread := m.OS.getThread(1)
	if thread.Valid != 1 || thread.Status != THREAD_RUNNING {
		t.Fatalf("main thread = %+v", thread)
	}
	if thread.Priority != 0 {
		t.Fatalf("main thread priority = %d, want 0", thread.Priority)
	}
	if thread.StackBase != 0x00400000 {
		t.Fatalf("main thread stack base = 0x%08X", thread.StackBase)
	}
}

func TestSetupThreadDefaultStack(t *testing.T) {
	m := newTestKernel(t)

	doSyscall(m, 0x3C, 0, 0xFFFFFFFF, 0x1000, 0x00080000)

	if got := returnValue(m); got != 0x02000000-STACKRES {
		t.Fatalf("returned stack pointer = 0x%08X, want 0x%08X", got, 0x02000000-STACKRES)
	}
}

func TestSetupThreadArgumentBlock(t *testing.T) {
	m := newTestKernel(t)
	m.OS.executableName = "GAME.ELF"
	m.OS.currentArgs = []string{"a", "bc"}

	argsBase := uint32(0x00080000)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, argsBase)

	if got := ramRead32(m.RAM, argsBase); got != 3 {
		t.Fatalf("argc = %d, want 3", got)
	}
	want := []string{"GAME.ELF", "a", "bc"}
	for i, w := range want {
		ptr := ramRead32(m.RAM, argsBase+4+uint32(i)*4)
		if got := readCString(m.RAM, ptr); got != w {
			t.Fatalf("argv[%d] = %q, want %q", i, got, w)
		}
	}
}

func TestCreateThreadInitializesContext(t *testing.T) {
	m := newTestKernel(t)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)

	paramPtr := uint32(0x00090000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_ENTRY, 0x00100000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK, 0x00500000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK_SIZE, 0x1000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_GP, 0x00345678)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_PRIORITY, 20)

	doSyscall(m, 0x20, paramPtr)
	id := returnValue(m)
	if id != 2 {
		t.Fatalf("new thread id = %d, want 2", id)
	}

	thread := m.OS.getThread(id)
	if thread.Status != THREAD_ZOMBIE {
		t.Fatalf("new thread status = %d, want dormant", thread.Status)
	}
	if thread.Quota != THREAD_INIT_QUOTA {
		t.Fatalf("new thread quota = %d, want %d", thread.Quota, THREAD_INIT_QUOTA)
	}

	contextPtr := uint32(0x00501000 - STACKRES)
	if thread.ContextPtr != contextPtr {
		t.Fatalf("context pointer = 0x%08X, want 0x%08X", thread.ContextPtr, contextPtr)
	}
	if got := ramRead32(m.RAM, contextPtr+SP*0x10); got != contextPtr {
		t.Fatalf("saved SP = 0x%08X, want 0x%08X", got, contextPtr)
	}
	if got := ramRead32(m.RAM, contextPtr+GP*0x10); got != 0x00345678 {
		t.Fatalf("saved GP = 0x%08X", got)
	}
	if got := ramRead32(m.RAM, contextPtr+RA*0x10); got != BIOS_ADDRESS_THREADEPILOG {
		t.Fatalf("saved RA = 0x%08X, want the exit trampoline", got)
	}
}

func TestStartThreadSetsArgument(t *testing.T) {
	m := newTestKernel(t)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)

	paramPtr := uint32(0x00090000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_ENTRY, 0x00100000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK, 0x00500000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK_SIZE, 0x1000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_PRIORITY, 0)
	doSyscall(m, 0x20, paramPtr)
	id := returnValue(m)

	doSyscall(m, 0x22, id, 0xCAFE0000)

	thread := m.OS.getThread(id)
	if thread.Status != THREAD_RUNNING {
		t.Fatalf("started thread status = %d", thread.Status)
	}
	if got := ramRead32(m.RAM, thread.ContextPtr+A0*0x10); got != 0xCAFE0000 {
		t.Fatalf("saved A0 = 0x%08X, want 0xCAFE0000", got)
	}
}

func TestSchedulerPrefersLowerPriorityValue(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 5, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 20, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(2)
	m.EE.PC = 0x2222

	m.OS.ThreadShakeAndBake()

	if got := m.OS.getCurrentThreadId(); got != 1 {
		t.Fatalf("elected thread = %d, want 1", got)
	}
	if m.EE.PC != 0x1000 {
		t.Fatalf("PC = 0x%08X, want 0x1000", m.EE.PC)
	}
}

func TestSchedulerRoundRobinWithinBand(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 10, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	// First election re-picks the band head (thread 1) and rotates it to
	// the tail, so the next two elections alternate.
	m.OS.ThreadShakeAndBake()
	if got := m.OS.getCurrentThreadId(); got != 1 {
		t.Fatalf("after first election: thread %d, want 1", got)
	}

	m.OS.ThreadShakeAndBake()
	if got := m.OS.getCurrentThreadId(); got != 2 {
		t.Fatalf("after second election: thread %d, want 2", got)
	}

	m.OS.ThreadShakeAndBake()
	if got := m.OS.getCurrentThreadId(); got != 1 {
		t.Fatalf("after third election: thread %d, want 1", got)
	}
}

func TestSchedulerIdleFallback(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	m.OS.setCurrentThreadId(1)

	thread := m.OS.getThread(1)
	thread.Status = THREAD_SLEEPING
	m.OS.putThread(1, thread)

	m.OS.ThreadShakeAndBake()

	if got := m.OS.getCurrentThreadId(); got != 0 {
		t.Fatalf("elected thread = %d, want the idle thread", got)
	}
	if m.EE.PC != BIOS_ADDRESS_WAITTHREADPROC {
		t.Fatalf("PC = 0x%08X, want the wait thread trampoline", m.EE.PC)
	}
}

func TestSchedulerQuotaReplenishment(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	m.OS.setCurrentThreadId(1)

	thread := m.OS.getThread(1)
	thread.Quota = 1
	m.OS.putThread(1, thread)

	m.OS.ThreadShakeAndBake()

	// The last quota was consumed, so everyone scheduled gets a fresh one
	if got := m.OS.getThread(1).Quota; got != THREAD_INIT_QUOTA {
		t.Fatalf("quota = %d, want %d", got, THREAD_INIT_QUOTA)
	}
}

func TestSchedulerGatedByExceptionMode(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	m.OS.setCurrentThreadId(1)

	m.EE.COP0[COP0_STATUS] |= STATUS_EXL
	m.OS.ThreadShakeAndBake()
	if got := m.OS.getThread(1).Quota; got != THREAD_INIT_QUOTA {
		t.Fatalf("quota consumed in exception mode: %d", got)
	}

	m.EE.COP0[COP0_STATUS] &^= STATUS_EXL | STATUS_IE
	m.OS.ThreadShakeAndBake()
	if got := m.OS.getThread(1).Quota; got != THREAD_INIT_QUOTA {
		t.Fatalf("quota consumed with interrupts disabled: %d", got)
	}
}

func TestContextSwitchPreservesRegisters(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 5, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 1, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1234
	m.EE.GPR[S0] = Register{0x11111111, 0x22222222, 0x33333333, 0x44444444}
	m.EE.GPR[K0] = Register{0x80030000, 0xFFFFFFFF, 0, 0}

	m.OS.ThreadShakeAndBake()

	if got := m.OS.getCurrentThreadId(); got != 2 {
		t.Fatalf("elected thread = %d, want 2", got)
	}

	// Thread 1's full quadword S0 must be in its saved context
	for lane := uint32(0); lane < 4; lane++ {
		want := uint32(0x11111111 * (lane + 1))
		if got := ramRead32(m.RAM, 0x00400E00+S0*0x10+lane*4); got != want {
			t.Fatalf("saved S0 lane %d = 0x%08X, want 0x%08X", lane, got, want)
		}
	}
	if got := m.OS.getThread(1).EPC; got != 0x1234 {
		t.Fatalf("saved EPC = 0x%08X, want 0x1234", got)
	}

	// K0 is a kernel register and never comes from a thread context
	if m.EE.GPR[K0][0] != 0x80030000 || m.EE.GPR[K0][1] != 0xFFFFFFFF {
		t.Fatalf("K0 = %v, must survive the switch", m.EE.GPR[K0])
	}
}

func TestExitThreadElectsSuccessor(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 10, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	doSyscall(m, 0x23)

	if got := m.OS.getThread(1).Status; got != THREAD_ZOMBIE {
		t.Fatalf("exited thread status = %d, want dormant", got)
	}
	if got := m.OS.getCurrentThreadId(); got != 2 {
		t.Fatalf("current thread = %d, want 2", got)
	}
}

func TestThreadTableExhaustionAndReuse(t *testing.T) {
	m := newTestKernel(t)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)

	paramPtr := uint32(0x00090000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_ENTRY, 0x00100000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK, 0x00500000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK_SIZE, 0x1000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_PRIORITY, 20)

	// Ids 0 and 1 belong to the idle and main threads
	for want := uint32(2); want < MAX_THREAD; want++ {
		doSyscall(m, 0x20, paramPtr)
		if got := returnValue(m); got != want {
			t.Fatalf("created thread %d, want %d", got, want)
		}
	}

	doSyscall(m, 0x20, paramPtr)
	if got := returnValue(m); got != 0xFFFFFFFF {
		t.Fatalf("created thread 0x%08X from a full table, want -1", got)
	}

	doSyscall(m, 0x21, 100)
	if got := returnValue(m); got != 0 {
		t.Fatalf("DeleteThread returned 0x%08X, want 0", got)
	}
	doSyscall(m, 0x20, paramPtr)
	if got := returnValue(m); got != 100 {
		t.Fatalf("recreated thread id = %d, want the freed slot", got)
	}
}

func TestSleepThreadBlocksUntilWakeup(t *testing.T) {
	m := newTestKernel(t)
	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 10, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	doSyscall(m, 0x32)

	if got := m.OS.getThread(1).Status; got != THREAD_SLEEPING {
		t.Fatalf("status after sleep = %d, want sleeping", got)
	}
	if got := m.OS.getCurrentThreadId(); got != 2 {
		t.Fatalf("current thread = %d, want 2", got)
	}

	doSyscall(m, 0x33, 1)
	if got := m.OS.getThread(1).Status; got != THREAD_RUNNING {
		t.Fatalf("status after wakeup = %d, want running", got)
	}
}

func TestWakeupBeforeSleepDoesNotBlock(t *testing.T) {
	m := newTestKernel(t)
	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	m.OS.setCurrentThreadId(1)

	// Waking a thread that isn't sleeping banks the wakeup
	doSyscall(m, 0x33, 1)
	if got := m.OS.getThread(1).WakeupCount; got != 1 {
		t.Fatalf("wakeup count = %d, want 1", got)
	}

	doSyscall(m, 0x32)
	thread := m.OS.getThread(1)
	if thread.Status != THREAD_RUNNING {
		t.Fatalf("status = %d, want running", thread.Status)
	}
	if thread.WakeupCount != 0 {
		t.Fatalf("wakeup count = %d, want 0", thread.WakeupCount)
	}
}

func TestSuspendResumeTransitions(t *testing.T) {
	cases := []struct {
		initial   uint32
		suspended uint32
	}{
		{THREAD_RUNNING, THREAD_SUSPENDED},
		{THREAD_SLEEPING, THREAD_SUSPENDED_SLEEPING},
		{THREAD_WAITING, THREAD_SUSPENDED_WAITING},
	}
	for _, c := range cases {
		m := newTestKernel(t)
		addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
		addRunnableThread(m, 2, 10, 0x00500E00, 0x2000)
		m.OS.setCurrentThreadId(2)
		m.EE.PC = 0x2000

		thread := m.OS.getThread(1)
		thread.Status = c.initial
		m.OS.putThread(1, thread)

		doSyscall(m, 0x37, 1)
		if got := m.OS.getThread(1).Status; got != c.suspended {
			t.Fatalf("status after suspending a %d thread = %d, want %d", c.initial, got, c.suspended)
		}

		doSyscall(m, 0x39, 1)
		if got := m.OS.getThread(1).Status; got != c.initial {
			t.Fatalf("status after resume = %d, want %d", got, c.initial)
		}
	}
}

func TestTerminateThenDeleteThread(t *testing.T) {
	m := newTestKernel(t)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)

	paramPtr := uint32(0x00090000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_ENTRY, 0x00100000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK, 0x00500000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_STACK_SIZE, 0x1000)
	ramWrite32(m.RAM, paramPtr+THREADPARAM_PRIORITY, 20)
	doSyscall(m, 0x20, paramPtr)
	id := returnValue(m)

	doSyscall(m, 0x22, id, 0)

	doSyscall(m, 0x25, id)
	if got := returnValue(m); got != 0 {
		t.Fatalf("TerminateThread returned 0x%08X, want 0", got)
	}
	if got := m.OS.getThread(id).Status; got != THREAD_ZOMBIE {
		t.Fatalf("status after terminate = %d, want dormant", got)
	}

	doSyscall(m, 0x21, id)
	if got := returnValue(m); got != 0 {
		t.Fatalf("DeleteThread returned 0x%08X, want 0", got)
	}
	if got := m.OS.getThread(id).Valid; got != 0 {
		t.Fatal("thread record still valid after delete")
	}

	doSyscall(m, 0x21, id)
	if got := returnValue(m); got != 0xFFFFFFFF {
		t.Fatalf("deleting a dead thread returned 0x%08X, want -1", got)
	}
}

func TestRotateThreadReadyQueueMovesHeadToTail(t *testing.T) {
	m := newTestKernel(t)
	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 20, 0x00500E00, 0x2000)
	addRunnableThread(m, 3, 20, 0x00600E00, 0x3000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	doSyscall(m, 0x2B, 20)

	if got := returnValue(m); got != 20 {
		t.Fatalf("RotateThreadReadyQueue returned %d, want the priority", got)
	}
	got := collectRibbon(m.OS.schedule)
	want := []uint32{1, 3, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue after rotation = %v, want %v", got, want)
		}
	}

	// A priority with no band is still acknowledged
	doSyscall(m, 0x2B, 55)
	if got := returnValue(m); got != 55 {
		t.Fatalf("RotateThreadReadyQueue returned %d, want 55", got)
	}
}

func TestRotateThreadReadyQueueSkipsCurrentHead(t *testing.T) {
	m := newTestKernel(t)
	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	addRunnableThread(m, 2, 10, 0x00500E00, 0x2000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	doSyscall(m, 0x2B, 10)

	// The band head is the caller itself, so only the election moves the
	// band along and the caller keeps running
	if got := m.OS.getCurrentThreadId(); got != 1 {
		t.Fatalf("current thread = %d, want 1", got)
	}
}

func TestSchedulerDrainsBandsInPriorityOrder(t *testing.T) {
	m := newTestKernel(t)
	doSyscall(m, 0x3C, 0, 0x00400000, 0x1000, 0x00080000)
	m.EE.PC = 0x1000

	addRunnableThread(m, 2, 3, 0x00500E00, 0x2000)
	addRunnableThread(m, 3, 5, 0x00600E00, 0x3000)
	addRunnableThread(m, 4, 5, 0x00700E00, 0x4000)

	var chosen []uint32
	for i := 0; i < 32; i++ {
		m.OS.ThreadShakeAndBake()
		chosen = append(chosen, m.OS.getCurrentThreadId())
	}

	// The main thread runs until its quota drains, then the band 3 thread,
	// and band 5 round-robins only after the higher bands are spent
	for i := 0; i < 14; i++ {
		if chosen[i] != 1 {
			t.Fatalf("election %d picked thread %d, want 1", i, chosen[i])
		}
	}
	for i := 14; i < 29; i++ {
		if chosen[i] != 2 {
			t.Fatalf("election %d picked thread %d, want 2", i, chosen[i])
		}
	}
	if chosen[29] != 3 || chosen[30] != 4 || chosen[31] != 3 {
		t.Fatalf("band 5 elections = %v, want alternation", chosen[29:])
	}
}

func TestExceptionHandlerEntersInterruptVector(t *testing.T) {
	m := newTestKernel(t)

	addRunnableThread(m, 1, 10, 0x00400E00, 0x1000)
	m.OS.setCurrentThreadId(1)
	m.EE.PC = 0x1000

	m.OS.ExceptionHandler()

	if m.EE.PC != BIOS_ADDRESS_INTERRUPTHANDLER {
		t.Fatalf("PC = 0x%08X, want the interrupt handler", m.EE.PC)
	}
	if m.EE.COP0[COP0_STATUS]&STATUS_EXL == 0 {
		t.Fatal("EXL not set on interrupt entry")
	}
	if m.EE.COP0[COP0_EPC] != 0x1000 {
		t.Fatalf("EPC = 0x%08X, want the interrupted PC", m.EE.COP0[COP0_EPC])
	}
}
