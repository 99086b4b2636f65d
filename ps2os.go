// ps2os.go - Guest-side EE kernel: executable lifecycle and address windows

/*
ps2os.go - PS2OS

High-level emulation of the Emotion Engine kernel. Instead of running a real
BIOS image, syscalls and exceptions trap into host code which maintains the
kernel records in guest RAM (kernel_records.go) and re-enters guest code
through the assembled BIOS trampolines (bios_trampolines.go).

This file owns the kernel's lifecycle: reset, booting an executable from a
host file or the cdrom0 device, ELF loading, per-title patches and the
introspection surface. Thread scheduling is in kernel_threads.go and the
syscall handlers are in syscalls.go.
*/

package main

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

type PS2OS struct {
	ee    *EEState
	ram   []byte
	bios  []byte
	gs    GSHandler
	sif   *SIF
	ioman *Ioman

	elf            *ElfExecutable
	executableName string
	currentArgs    []string

	schedule *RoundRibbon

	semaWaitId       uint32
	semaWaitCaller   uint32
	semaWaitCount    uint32
	semaWaitThreadId uint32

	patchesPath string

	log *logrus.Entry

	// Notifications for the embedding machine. All optional.
	OnExecutableChange             func()
	OnExecutableUnloading          func()
	OnRequestInstructionCacheFlush func()
	OnRequestLoadExecutable        func(path string, args []string)
}

// NewPS2OS builds a kernel over the given CPU state and memory images and
// performs the reset-time initialization.
func NewPS2OS(ee *EEState, ram, bios []byte, gs GSHandler, sif *SIF, ioman *Ioman) *PS2OS {
	os := &PS2OS{
		ee:    ee,
		ram:   ram,
		bios:  bios,
		gs:    gs,
		sif:   sif,
		ioman: ioman,
		log:   logrus.WithField("component", "ps2os"),
	}
	os.initialize()
	return os
}

func (os *PS2OS) initialize() {
	os.elf = nil

	// K0 points at the kernel stack, sign extended
	os.ee.GPR[K0][0] = 0x80030000
	os.ee.GPR[K0][1] = 0xFFFFFFFF

	os.schedule = NewRoundRibbon(os.ram[KERNEL_THREAD_SCHEDULE : KERNEL_THREAD_SCHEDULE+KERNEL_THREAD_SCHEDULE_SIZE])

	os.resetIdleDetector()
}

// SetPatchesPath points ApplyPatches at a patch definition file. Empty
// disables patching.
func (os *PS2OS) SetPatchesPath(path string) {
	os.patchesPath = path
}

// BootFromFile loads an ELF executable from the host filesystem.
func (os *PS2OS) BootFromFile(path string) error {
	data, err := readFile(path)
	if err != nil {
		return fmt.Errorf("reading executable: %w", err)
	}
	return os.LoadELF(data, filepath.Base(path), nil)
}

// BootFromCDROM locates the boot executable through SYSTEM.CNF on the
// cdrom0 device and loads it.
func (os *PS2OS) BootFromCDROM(arguments []string) error {
	executablePath, err := os.findBootExecutablePath()
	if err != nil {
		return err
	}

	handle := os.ioman.Open(IOMAN_OPEN_FLAG_RDONLY, executablePath)
	if handle == IOMAN_INVALID_HANDLE {
		return fmt.Errorf("couldn't open executable %q specified in SYSTEM.CNF", executablePath)
	}
	defer os.ioman.Close(handle)

	data, err := os.ioman.ReadAll(handle)
	if err != nil {
		return fmt.Errorf("reading boot executable: %w", err)
	}

	// Executable name is the path after the device, without a leading
	// separator but with the ISO version suffix kept.
	executableName := executablePath
	if colon := strings.IndexByte(executablePath, ':'); colon >= 0 {
		executableName = executablePath[colon+1:]
	}
	if len(executableName) > 0 && (executableName[0] == '/' || executableName[0] == '\\') {
		executableName = executableName[1:]
	}

	return os.LoadELF(data, executableName, arguments)
}

// findBootExecutablePath parses SYSTEM.CNF for its BOOT2 value.
func (os *PS2OS) findBootExecutablePath() (string, error) {
	handle := os.ioman.Open(IOMAN_OPEN_FLAG_RDONLY, "cdrom0:SYSTEM.CNF")
	if handle == IOMAN_INVALID_HANDLE {
		return "", fmt.Errorf("no 'SYSTEM.CNF' file found on the cdrom0 device")
	}
	defer os.ioman.Close(handle)

	stream, err := os.ioman.GetFileStream(handle)
	if err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "BOOT2") {
			continue
		}
		equals := strings.IndexByte(line, '=')
		if equals < 0 {
			continue
		}
		value := line[equals+1:]
		value = strings.TrimPrefix(value, " ")
		if value != "" {
			return value, nil
		}
	}

	return "", fmt.Errorf("error parsing 'SYSTEM.CNF' for a BOOT2 value")
}

// LoadELF validates and installs an executable image, replacing any
// currently loaded one.
func (os *PS2OS) LoadELF(data []byte, execName string, arguments []string) error {
	executable, err := LoadElfExecutable(data)
	if err != nil {
		return err
	}

	os.UnloadExecutable()

	os.elf = executable
	os.executableName = execName
	os.currentArgs = arguments

	os.loadExecutableInternal()
	os.ApplyPatches()

	if os.OnExecutableChange != nil {
		os.OnExecutableChange()
	}

	os.log.WithField("executable", execName).Info("Loaded executable file")
	return nil
}

// loadExecutableInternal copies the program into RAM and rebuilds the
// BIOS-resident state the executable expects to find.
func (os *PS2OS) loadExecutableInternal() {
	os.elf.CopyToRAM(os.ram)
	os.ee.PC = os.elf.EntryPoint()

	// Games check this word to identify the kernel version
	ramWrite32(os.bios, 0x0004, 0x0000001D)
	assembleBiosTrampolines(os.bios)
	os.createWaitThread()
}

// UnloadExecutable drops the current executable, if any.
func (os *PS2OS) UnloadExecutable() {
	if os.elf == nil {
		return
	}
	if os.OnExecutableUnloading != nil {
		os.OnExecutableUnloading()
	}
	os.elf = nil
}

// LoadExecutable loads all sections of an ELF from the given device path
// into RAM and returns its entry point, without making it the current
// executable. Backs the LoadExecPS2 replacement path.
func (os *PS2OS) LoadExecutable(path, section string) uint32 {
	handle := os.ioman.Open(IOMAN_OPEN_FLAG_RDONLY, path)
	if handle == IOMAN_INVALID_HANDLE {
		return 0xFFFFFFFF
	}
	defer os.ioman.Close(handle)

	// Only loading every section is supported
	if section != "all" {
		os.log.WithField("section", section).Warn("Unsupported section selector")
		return 0xFFFFFFFF
	}

	data, err := os.ioman.ReadAll(handle)
	if err != nil {
		os.log.WithError(err).Error("Failed to read executable")
		return 0xFFFFFFFF
	}

	executable, err := LoadElfExecutable(data)
	if err != nil {
		os.log.WithError(err).Error("Failed to parse executable")
		return 0xFFFFFFFF
	}

	executable.CopyToRAM(os.ram)

	if os.OnRequestInstructionCacheFlush != nil {
		os.OnRequestInstructionCacheFlush()
	}

	return executable.EntryPoint()
}

type patchEntry struct {
	Address string `xml:"Address,attr"`
	Value   string `xml:"Value,attr"`
}

type patchExecutable struct {
	Name    string       `xml:"Name,attr"`
	Patches []patchEntry `xml:"Patch"`
}

type patchDocument struct {
	XMLName     xml.Name          `xml:"Patches"`
	Executables []patchExecutable `xml:"Executable"`
}

// ApplyPatches overwrites RAM words from the patch definition file matching
// the current executable name. Runs right after the program image is
// copied, so patches land on fresh code.
func (os *PS2OS) ApplyPatches() {
	if os.patchesPath == "" {
		return
	}

	data, err := readFile(os.patchesPath)
	if err != nil {
		os.log.WithError(err).Debug("Failed to open patch definition file")
		return
	}

	var document patchDocument
	if err := xml.Unmarshal(data, &document); err != nil {
		os.log.WithError(err).Warn("Failed to parse patch definition file")
		return
	}

	for _, executable := range document.Executables {
		if executable.Name != os.executableName {
			continue
		}

		patchCount := 0
		for _, patch := range executable.Patches {
			address, err := parseHex32(patch.Address)
			if err != nil {
				continue
			}
			value, err := parseHex32(patch.Value)
			if err != nil {
				continue
			}
			if address > uint32(len(os.ram))-4 {
				continue
			}
			ramWrite32(os.ram, address, value)
			patchCount++
		}

		os.log.WithField("count", patchCount).Info("Applied patches")
		break
	}
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	value, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(value), nil
}

// TranslateAddress maps a guest virtual address onto the physical RAM
// offset the kernel records use. Scratchpad and the extended window get
// dedicated translations; everything else just loses its segment bits.
func (os *PS2OS) TranslateAddress(vaddr uint32) uint32 {
	if vaddr >= 0x70000000 && vaddr <= 0x70003FFF {
		return vaddr - 0x6E000000
	}
	if vaddr >= 0x30100000 && vaddr <= 0x31FFFFFF {
		return vaddr - 0x30000000
	}
	return vaddr & 0x1FFFFFFF
}

func (os *PS2OS) resetIdleDetector() {
	os.semaWaitId = 0xFFFFFFFF
	os.semaWaitCaller = 0
	os.semaWaitCount = 0
	os.semaWaitThreadId = 0xFFFFFFFF
}

// IsIdle reports whether the current thread has been spinning on the same
// semaphore wait long enough to be considered the idle loop. The host can
// fast-forward time when this holds.
func (os *PS2OS) IsIdle() bool {
	return os.getCurrentThreadId() == os.semaWaitThreadId
}

func (os *PS2OS) GetExecutableName() string {
	return os.executableName
}

// GetExecutableRange returns the RAM window covered by the loaded
// executable, or (0, 0) when nothing is loaded.
func (os *PS2OS) GetExecutableRange() (uint32, uint32) {
	if os.elf == nil {
		return 0, 0
	}
	return os.elf.ExecutableRange()
}

// readFile exists because methods on PS2OS shadow the os package with
// their receiver.
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
