// main.go - Command line front end for the EE kernel emulator

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		elfPath     string
		cdromDir    string
		patchesPath string
		verbose     bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&elfPath, "elf", "", "Boot an ELF executable from the host filesystem")
	flagSet.StringVar(&cdromDir, "cdrom", "", "Directory backing the cdrom0 device; boots through SYSTEM.CNF")
	flagSet.StringVar(&patchesPath, "patches", "", "Patch definition XML file")
	flagSet.BoolVar(&verbose, "verbose", false, "Enable debug logging")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./ps2os -elf file.elf | -cdrom dir [-patches patches.xml] [-verbose] [arg ...]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if (elfPath == "") == (cdromDir == "") {
		fmt.Println("Error: select exactly one boot source: -elf or -cdrom")
		flagSet.Usage()
		os.Exit(1)
	}

	machine := NewMachine(cdromDir)
	machine.OS.SetPatchesPath(patchesPath)

	var err error
	if elfPath != "" {
		err = machine.OS.BootFromFile(elfPath)
	} else {
		err = machine.OS.BootFromCDROM(flagSet.Args())
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	begin, end := machine.OS.GetExecutableRange()
	fmt.Printf("Loaded %s (0x%08X - 0x%08X), entry point 0x%08X\n",
		machine.OS.GetExecutableName(), begin, end, machine.EE.PC)

	for _, module := range machine.OS.ModuleInfos() {
		fmt.Printf("Module: %s\n", module.Name)
	}
	for _, thread := range machine.OS.ThreadInfos() {
		fmt.Printf("Thread %d: priority %d, pc 0x%08X, %s\n",
			thread.Id, thread.Priority, thread.PC, thread.StateDescription)
	}
}
