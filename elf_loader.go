// elf_loader.go - ELF executable image loading into guest RAM

package main

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// ElfExecutable wraps a parsed ELF image kept in memory. The raw bytes stay
// around because program data is copied straight from the file image rather
// than through section readers.
type ElfExecutable struct {
	data []byte
	file *elf.File
}

// LoadElfExecutable parses an ELF image and validates that it is a MIPS
// executable.
func LoadElfExecutable(data []byte) (*ElfExecutable, error) {
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing ELF image: %w", err)
	}
	if file.Machine != elf.EM_MIPS {
		return nil, fmt.Errorf("invalid target CPU %v, must be MIPS", file.Machine)
	}
	if file.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("not an executable ELF file (type %v)", file.Type)
	}
	for _, prog := range file.Progs {
		if prog.Off > uint64(len(data)) || prog.Filesz > uint64(len(data))-prog.Off {
			return nil, fmt.Errorf("program header data outside image (offset 0x%X, size 0x%X)", prog.Off, prog.Filesz)
		}
	}
	return &ElfExecutable{data: data, file: file}, nil
}

func (e *ElfExecutable) EntryPoint() uint32 {
	return uint32(e.file.Entry)
}

// CopyToRAM copies every program header's file image to its virtual
// address. Headers that fall outside guest RAM are skipped.
func (e *ElfExecutable) CopyToRAM(ram []byte) {
	for _, prog := range e.file.Progs {
		if prog.Filesz == 0 {
			continue
		}
		vaddr := uint32(prog.Vaddr)
		size := uint32(prog.Filesz)
		if uint64(vaddr)+uint64(size) > uint64(len(ram)) {
			continue
		}
		copy(ram[vaddr:vaddr+size], e.data[prog.Off:prog.Off+prog.Filesz])
	}
}

// ExecutableRange returns the [min, max) address window covered by the
// image's program headers, ignoring headers that end outside guest RAM.
func (e *ElfExecutable) ExecutableRange() (uint32, uint32) {
	minAddr := uint32(0xFFFFFFF0)
	maxAddr := uint32(0x00000000)
	for _, prog := range e.file.Progs {
		vaddr := uint32(prog.Vaddr)
		end := vaddr + uint32(prog.Filesz)
		if end >= EE_RAM_SIZE {
			continue
		}
		if vaddr < minAddr {
			minAddr = vaddr
		}
		if end > maxAddr {
			maxAddr = end
		}
	}
	return minAddr, maxAddr
}
