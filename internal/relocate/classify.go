package relocate

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// elfMagic is the first four bytes of every ELF object.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Class is the relocation classification of one file.
type Class int

const (
	ClassNotELF Class = iota
	ClassSymlink
	ClassCandidate
)

func (c Class) String() string {
	switch c {
	case ClassCandidate:
		return "candidate"
	case ClassSymlink:
		return "symlink"
	default:
		return "not-elf"
	}
}

// ProbeError reports a file whose leading bytes could not be read. It never
// stops a walk: the file is simply not a candidate.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe %s: %v", e.Path, e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// Classify decides whether path is a relocation candidate: not a symbolic
// link, a regular file, and starting with the ELF magic. Permission bits are
// irrelevant. A non-nil error is always a *ProbeError and comes with
// ClassNotELF.
func Classify(path string) (Class, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return ClassNotELF, &ProbeError{Path: path, Err: err}
	}
	return classifyMode(path, fi.Mode())
}

func classifyMode(path string, mode fs.FileMode) (Class, error) {
	if mode&fs.ModeSymlink != 0 {
		return ClassSymlink, nil
	}
	// FIFOs, sockets and devices are never opened
	if !mode.IsRegular() {
		return ClassNotELF, nil
	}
	ok, err := hasELFMagic(path)
	if err != nil {
		return ClassNotELF, &ProbeError{Path: path, Err: err}
	}
	if ok {
		return ClassCandidate, nil
	}
	return ClassNotELF, nil
}

// hasELFMagic reads exactly four bytes. O_NOFOLLOW keeps a file swapped for
// a symlink after the Lstat from being followed; O_NONBLOCK keeps one
// swapped for a FIFO from blocking the read.
func hasELFMagic(path string) (bool, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, err
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return false, nil
	}

	head := make([]byte, len(elfMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, err
	}
	return bytes.Equal(head, elfMagic), nil
}
