// kernel_threads.go - Cooperative thread scheduler

package main

/*
Thread scheduling works on the records in guest RAM plus the ready queue in
the round ribbon. A thread's saved register file (32 quadword GPRs, STACKRES
bytes) lives at the top of its own stack; switching threads copies it
through the live CPU state, skipping R0 and the kernel registers.

Each thread gets THREAD_INIT_QUOTA turns; once spent it stands aside and
lower bands get a chance, until every runnable thread has drained and the
whole ready queue is replenished. That keeps a high-priority spinner from
starving everyone else forever while staying strictly cooperative: the
scheduler only ever runs inside a syscall or at interrupt delivery.
*/

// ThreadShakeAndBake picks the next thread to run and switches to it. No-op
// while in exception mode or with interrupts disabled.
func (os *PS2OS) ThreadShakeAndBake() {
	if os.ee.COP0[COP0_STATUS]&STATUS_EXL != 0 {
		return
	}
	if os.ee.COP0[COP0_STATUS]&STATUS_IE == 0 {
		return
	}

	// Revoke the current thread's right to execute itself
	if id := os.getCurrentThreadId(); id != 0 {
		thread := os.getThread(id)
		thread.Quota--
		os.putThread(id, thread)
	}

	// If every runnable thread is out of quota, regive one to everyone
	if os.threadHasAllQuotasExpired() {
		for it := os.schedule.Begin(); !it.IsEnd(); it.Next() {
			id := it.Value()
			thread := os.getThread(id)
			thread.Quota = THREAD_INIT_QUOTA
			os.putThread(id, thread)
		}
	}

	// Elect the first running thread in priority order that still holds
	// quota; none means idle. The replenishment above guarantees at least
	// one candidate whenever any thread is runnable.
	nextId := uint32(0)
	found := false
	for it := os.schedule.Begin(); !it.IsEnd(); it.Next() {
		id := it.Value()
		thread := os.getThread(id)
		if thread.Status != THREAD_RUNNING {
			continue
		}
		if thread.Quota == 0 {
			continue
		}
		nextId = id
		found = true
		break
	}

	if found {
		// Remove and readd the thread so its band rotates
		thread := os.getThread(nextId)
		os.schedule.Remove(thread.ScheduleID)
		thread.ScheduleID = os.schedule.Insert(nextId, thread.Priority)
		os.putThread(nextId, thread)
	}

	os.threadSwitchContext(nextId)
}

func (os *PS2OS) threadHasAllQuotasExpired() bool {
	for it := os.schedule.Begin(); !it.IsEnd(); it.Next() {
		thread := os.getThread(it.Value())
		if thread.Status != THREAD_RUNNING {
			continue
		}
		if thread.Quota == 0 {
			continue
		}
		return false
	}
	return true
}

func (os *PS2OS) threadSwitchContext(id uint32) {
	if id == os.getCurrentThreadId() {
		return
	}

	// Save the context of the current thread
	{
		thread := os.getThread(os.getCurrentThreadId())
		contextPtr := thread.ContextPtr
		for i := uint32(0); i < 0x20; i++ {
			if i == R0 || i == K0 || i == K1 {
				continue
			}
			for lane := uint32(0); lane < 4; lane++ {
				ramWrite32(os.ram, contextPtr+i*0x10+lane*4, os.ee.GPR[i][lane])
			}
		}
		thread.EPC = os.ee.PC
		os.putThread(os.getCurrentThreadId(), thread)
	}

	os.setCurrentThreadId(id)

	// Load the new context
	{
		thread := os.getThread(id)
		contextPtr := thread.ContextPtr
		os.ee.PC = thread.EPC
		for i := uint32(0); i < 0x20; i++ {
			if i == R0 || i == K0 || i == K1 {
				continue
			}
			for lane := uint32(0); lane < 4; lane++ {
				os.ee.GPR[i][lane] = ramRead32(os.ram, contextPtr+i*0x10+lane*4)
			}
		}
	}

	os.log.WithField("thread", id).Debug("New thread elected")
}

// createWaitThread installs thread 0, the idle thread parked on the
// reschedule loop in the BIOS. It stays ZOMBIE so the scheduler only falls
// back to it when nothing else is runnable.
func (os *PS2OS) createWaitThread() {
	thread := os.getThread(0)
	thread.Valid = 1
	thread.EPC = BIOS_ADDRESS_WAITTHREADPROC
	thread.Status = THREAD_ZOMBIE
	os.putThread(0, thread)
}

// ExceptionHandler runs at interrupt delivery: gives the scheduler a chance
// to elect a new thread, then re-enters guest code through the general
// interrupt handler trampoline.
func (os *PS2OS) ExceptionHandler() {
	os.semaWaitCount = 0
	os.ThreadShakeAndBake()
	os.ee.GenerateInterrupt(BIOS_ADDRESS_INTERRUPTHANDLER)
}
