// syscall_names.go - Human readable names for kernel call tracing

package main

var sysCallNames = map[uint32]string{
	0x02: "GsSetCrt",
	0x06: "LoadExecPS2",
	0x10: "AddIntcHandler",
	0x11: "RemoveIntcHandler",
	0x12: "AddDmacHandler",
	0x13: "RemoveDmacHandler",
	0x14: "EnableIntc",
	0x15: "DisableIntc",
	0x16: "EnableDmac",
	0x17: "DisableDmac",
	0x20: "CreateThread",
	0x21: "DeleteThread",
	0x22: "StartThread",
	0x23: "ExitThread",
	0x25: "TerminateThread",
	0x29: "ChangeThreadPriority",
	0x2A: "iChangeThreadPriority",
	0x2B: "RotateThreadReadyQueue",
	0x2F: "GetThreadId",
	0x30: "ReferThreadStatus",
	0x31: "iReferThreadStatus",
	0x32: "SleepThread",
	0x33: "WakeupThread",
	0x34: "iWakeupThread",
	0x37: "SuspendThread",
	0x39: "ResumeThread",
	0x3C: "SetupThread",
	0x3D: "SetupHeap",
	0x3E: "EndOfHeap",
	0x40: "CreateSema",
	0x41: "DeleteSema",
	0x42: "SignalSema",
	0x43: "iSignalSema",
	0x44: "WaitSema",
	0x45: "PollSema",
	0x46: "iPollSema",
	0x47: "ReferSemaStatus",
	0x48: "iReferSemaStatus",
	0x64: "FlushCache",
	0x68: "FlushCache",
	0x70: "GsGetIMR",
	0x71: "GsPutIMR",
	0x73: "SetVSyncFlag",
	0x74: "SetSyscall",
	0x76: "SifDmaStat",
	0x77: "SifSetDma",
	0x78: "SifSetDChain",
	0x79: "SifSetReg",
	0x7A: "SifGetReg",
	0x7C: "Deci2Call",
	0x7F: "GetMemorySize",
}

// SysCallName returns the name for a kernel call number, or an empty string
// for numbers with no handler.
func SysCallName(number uint32) string {
	return sysCallNames[number]
}

func (os *PS2OS) traceSysCall(number uint32) {
	name := SysCallName(number)
	if name == "" {
		return
	}
	os.log.WithFields(map[string]interface{}{
		"thread": os.getCurrentThreadId(),
		"call":   name,
	}).Debug("System call")
}
