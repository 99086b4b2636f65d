// iop_ioman.go - IOP file manager backed by a host directory

/*
iop_ioman.go - Ioman

Stand-in for the IOP's file manager. The cdrom0 device maps onto a host
directory, which is enough for the two kernel paths that need it: reading
SYSTEM.CNF plus the boot executable, and LoadExecPS2/Deci2 traffic from the
game. File descriptors 0 to 2 are reserved; descriptor 1 is the console.
*/

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	IOMAN_OPEN_FLAG_RDONLY = 0x0001

	IOMAN_FD_STDOUT = 1

	IOMAN_INVALID_HANDLE = 0xFFFFFFFF
)

type Ioman struct {
	baseDir string
	console io.Writer
	files   map[uint32]*os.File
	nextFd  uint32
	log     *logrus.Entry
}

// NewIoman creates a file manager whose cdrom0 device is rooted at baseDir.
// Console writes land on consoleOut.
func NewIoman(baseDir string, consoleOut io.Writer) *Ioman {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		absBase = baseDir
	}
	return &Ioman{
		baseDir: absBase,
		console: consoleOut,
		files:   make(map[uint32]*os.File),
		nextFd:  3,
		log:     logrus.WithField("component", "ioman"),
	}
}

// resolvePath maps a device path like "cdrom0:\SLUS_012.34;1" onto the host
// filesystem. ISO9660 version suffixes are dropped since host directories
// do not carry them.
func (m *Ioman) resolvePath(path string) (string, error) {
	colon := strings.IndexByte(path, ':')
	if colon < 0 {
		return "", fmt.Errorf("path %q has no device prefix", path)
	}
	device := path[:colon]
	if device != "cdrom0" && device != "host" && device != "host0" {
		return "", fmt.Errorf("unknown device %q", device)
	}

	name := path[colon+1:]
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	if semi := strings.IndexByte(name, ';'); semi >= 0 {
		name = name[:semi]
	}
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid path %q", path)
	}

	fullPath := filepath.Join(m.baseDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(m.baseDir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes device root", path)
	}
	return fullPath, nil
}

// Open returns a handle for the given device path, or IOMAN_INVALID_HANDLE.
func (m *Ioman) Open(flags uint32, path string) uint32 {
	if flags != IOMAN_OPEN_FLAG_RDONLY {
		m.log.WithField("flags", flags).Warn("Unsupported open flags")
		return IOMAN_INVALID_HANDLE
	}
	hostPath, err := m.resolvePath(path)
	if err != nil {
		m.log.WithError(err).WithField("path", path).Debug("Open failed")
		return IOMAN_INVALID_HANDLE
	}
	file, err := os.Open(hostPath)
	if err != nil {
		m.log.WithError(err).WithField("path", path).Debug("Open failed")
		return IOMAN_INVALID_HANDLE
	}
	fd := m.nextFd
	m.nextFd++
	m.files[fd] = file
	return fd
}

// GetFileStream returns the stream behind an open handle.
func (m *Ioman) GetFileStream(handle uint32) (io.ReadSeeker, error) {
	file, open := m.files[handle]
	if !open {
		return nil, fmt.Errorf("handle %d is not open", handle)
	}
	return file, nil
}

// ReadAll reads the full contents of an open handle from the start.
func (m *Ioman) ReadAll(handle uint32) ([]byte, error) {
	stream, err := m.GetFileStream(handle)
	if err != nil {
		return nil, err
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(stream)
}

func (m *Ioman) Close(handle uint32) {
	if file, open := m.files[handle]; open {
		file.Close()
		delete(m.files, handle)
	}
}

// Write sends data to an open descriptor. Descriptor 1 is the console.
func (m *Ioman) Write(fd uint32, data []byte) uint32 {
	if fd == IOMAN_FD_STDOUT {
		if m.console != nil {
			m.console.Write(data)
		}
		return uint32(len(data))
	}
	m.log.WithField("fd", fd).Warn("Write to unsupported descriptor")
	return 0
}
