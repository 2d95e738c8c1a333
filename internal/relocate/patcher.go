package relocate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"kiln/internal/executor"
)

// Patcher overwrites the runtime search path record of one ELF file.
type Patcher interface {
	SetRPath(ctx context.Context, file, rpath string) error
}

// PatchError reports a file the relocation tool refused or failed to patch.
type PatchError struct {
	File   string
	Output string
	Err    error
}

func (e *PatchError) Error() string {
	msg := fmt.Sprintf("patch %s: %v", e.File, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *PatchError) Unwrap() error { return e.Err }

// Patchelf drives the patchelf utility. The existing record is replaced
// outright (--force-rpath --set-rpath), never merged.
type Patchelf struct {
	Program string // defaults to "patchelf"
	Exec    *executor.Executor
}

func (p *Patchelf) program() string {
	if p.Program == "" {
		return "patchelf"
	}
	return p.Program
}

// Args returns the command line used to patch file.
func (p *Patchelf) Args(file, rpath string) []string {
	return []string{p.program(), "--force-rpath", "--set-rpath", rpath, file}
}

// SetRPath patches file. A file without owner write permission is made
// writable for the call and restored afterwards.
func (p *Patchelf) SetRPath(ctx context.Context, file, rpath string) error {
	if restore, err := ensureWritable(file); err == nil {
		defer restore()
	}
	args := p.Args(file, rpath)
	ex := p.Exec
	if ex == nil {
		ex = &executor.Executor{}
	}
	run := *ex
	run.Context = ctx

	out, err := run.Output(exec.Command(args[0], args[1:]...))
	if err != nil {
		return &PatchError{File: file, Output: string(out), Err: err}
	}
	return nil
}

func ensureWritable(file string) (func(), error) {
	fi, err := os.Lstat(file)
	if err != nil {
		return nil, err
	}
	mode := fi.Mode().Perm()
	if mode&0o200 != 0 {
		return func() {}, nil
	}
	if err := os.Chmod(file, mode|0o200); err != nil {
		return nil, err
	}
	return func() { _ = os.Chmod(file, mode) }, nil
}

// LookPatchelf checks that the configured program can be found.
func LookPatchelf(program string) (string, error) {
	if program == "" {
		program = "patchelf"
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("relocation tool not found: %w", err)
	}
	return path, nil
}
