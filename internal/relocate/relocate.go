// Package relocate rewrites the runtime library search path of every ELF
// file under an install prefix so the installed artifacts find their
// dependencies without the build machine's layout.
//
// The pass is a single sequential walk. Files that are not ELF, symbolic
// links and files the patch tool rejects are recorded and skipped; one bad
// file never stops the walk.
package relocate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Outcome is what happened to one file.
type Outcome int

const (
	OutcomePatched Outcome = iota
	OutcomeSkippedSymlink
	OutcomeSkippedNotELF
	OutcomePatchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePatched:
		return "patched"
	case OutcomeSkippedSymlink:
		return "skipped-symlink"
	case OutcomeSkippedNotELF:
		return "skipped-not-elf"
	case OutcomePatchFailed:
		return "patch-failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ScanResult records one visited file.
type ScanResult struct {
	Path      string
	Candidate bool
	Outcome   Outcome
	Err       error // *ProbeError or *PatchError, when there was one
	Changed   bool  // contents differ after patching
}

// Summary counts outcomes.
type Summary struct {
	Patched        int
	SkippedSymlink int
	SkippedNotELF  int
	Failed         int
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomePatched:
		s.Patched++
	case OutcomeSkippedSymlink:
		s.SkippedSymlink++
	case OutcomeSkippedNotELF:
		s.SkippedNotELF++
	case OutcomePatchFailed:
		s.Failed++
	}
}

// Total returns the number of files visited.
func (s Summary) Total() int {
	return s.Patched + s.SkippedSymlink + s.SkippedNotELF + s.Failed
}

func (s Summary) String() string {
	return fmt.Sprintf("%d patched, %d skipped-symlink, %d skipped-not-elf, %d failed",
		s.Patched, s.SkippedSymlink, s.SkippedNotELF, s.Failed)
}

// Report is the result of one relocation pass.
type Report struct {
	Root    string
	RPath   string
	Results []ScanResult
	Summary Summary
}

// Failures returns the results that could not be patched.
func (r *Report) Failures() []ScanResult {
	var out []ScanResult
	for _, res := range r.Results {
		if res.Outcome == OutcomePatchFailed {
			out = append(out, res)
		}
	}
	return out
}

// ErrLocked is returned when another relocation pass holds the prefix.
var ErrLocked = errors.New("install prefix is locked by another relocation pass")

// Relocator walks install prefixes and patches their ELF files.
type Relocator struct {
	Patcher  Patcher
	Logger   *log.Logger
	Observer func(ScanResult) // called after each file, in walk order
}

func (r *Relocator) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

// Relocate sets the search path of every candidate under root to rpaths.
// Errors are returned only when root cannot be walked at all, when the
// prefix is locked or when ctx is cancelled; in the last case the partial
// report is returned too.
func (r *Relocator) Relocate(ctx context.Context, root string, rpaths RPathSet) (*Report, error) {
	if r.Patcher == nil {
		return nil, errors.New("relocate: no patcher configured")
	}
	// The prefix itself may be a link into a store; only links below it
	// are skipped.
	dir, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("relocate: %w", err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("relocate: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("relocate: %s is not a directory", root)
	}

	unlock, err := lockDir(dir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lg := r.logger()
	rpath := rpaths.String()
	report := &Report{Root: root, RPath: rpath}
	buf := make([]byte, 256*1024)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return err
			}
			// unreadable subtree: note it and keep going
			lg.Warn("skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(dir, path); err == nil {
			path = filepath.Join(root, rel)
		}

		res := r.visit(ctx, path, d.Type(), rpath, buf)
		report.Results = append(report.Results, res)
		report.Summary.add(res.Outcome)
		if r.Observer != nil {
			r.Observer(res)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return report, walkErr
		}
		return nil, fmt.Errorf("relocate %s: %w", root, walkErr)
	}

	lg.Debug("relocation pass finished", "root", root, "summary", report.Summary.String())
	return report, nil
}

func (r *Relocator) visit(ctx context.Context, path string, typ fs.FileMode, rpath string, buf []byte) ScanResult {
	lg := r.logger()
	res := ScanResult{Path: path}

	class, err := classifyMode(path, typ)
	switch class {
	case ClassSymlink:
		res.Outcome = OutcomeSkippedSymlink
		lg.Debug("skip symlink", "path", path)
		return res
	case ClassNotELF:
		res.Outcome = OutcomeSkippedNotELF
		res.Err = err
		if err != nil {
			lg.Debug("probe failed", "path", path, "err", err)
		}
		return res
	}

	res.Candidate = true
	before, _ := digestFile(path, buf)
	if err := r.Patcher.SetRPath(ctx, path, rpath); err != nil {
		res.Outcome = OutcomePatchFailed
		res.Err = err
		lg.Warn("could not patch", "path", path, "err", err)
		return res
	}
	res.Outcome = OutcomePatched
	after, _ := digestFile(path, buf)
	res.Changed = before != after
	lg.Debug("patched", "path", path, "changed", res.Changed)
	return res
}

// lockDir takes a non-blocking exclusive flock on the directory itself, so
// no lock file is created inside the prefix.
func lockDir(dir string) (func(), error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("relocate: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("relocate: lock %s: %w", dir, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
