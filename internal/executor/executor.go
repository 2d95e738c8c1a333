// Package executor runs external tools (patchelf, cmake) on behalf of the
// install lifecycle.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Executor provides a consistent way to run commands, optionally elevated
// through sudo, with the child isolated in its own process group so that a
// cancelled context kills everything it spawned.
type Executor struct {
	Context context.Context
	AsRoot  bool // wrap commands in "sudo -E" when not already root
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// New returns an executor bound to ctx writing to the process's stdout/stderr.
func New(ctx context.Context) *Executor {
	return &Executor{Context: ctx, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e *Executor) ctx() context.Context {
	if e.Context == nil {
		return context.Background()
	}
	return e.Context
}

// Run executes cmd. Stdio left unset on cmd falls back to the executor's
// writers; an empty cmd.Env inherits the current environment.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Err != nil {
		return cmd.Err
	}
	if cmd.Stdin == nil {
		cmd.Stdin = e.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = e.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = e.Stderr
	}

	ctx := e.ctx()
	path := cmd.Path
	args := cmd.Args[1:]

	var final *exec.Cmd
	if e.AsRoot && os.Geteuid() != 0 {
		final = exec.CommandContext(ctx, "sudo", append([]string{"-E", path}, args...)...)
	} else {
		final = exec.CommandContext(ctx, path, args...)
	}
	final.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		final.Env = cmd.Env
	} else {
		final.Env = os.Environ()
	}
	final.Stdin = cmd.Stdin
	final.Stdout = cmd.Stdout
	final.Stderr = cmd.Stderr
	final.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := final.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", path, err)
	}

	pgid := final.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if err := final.Wait(); err != nil {
		if ctx.Err() != nil {
			// give the killed group a moment to release the terminal
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return err
	}
	return nil
}

// Output runs cmd and returns its combined stdout and stderr.
func (e *Executor) Output(cmd *exec.Cmd) ([]byte, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := e.Run(cmd)
	return buf.Bytes(), err
}
