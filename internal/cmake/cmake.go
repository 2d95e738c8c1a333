// Package cmake drives an out-of-tree CMake configure, build and install.
// This is where a derived environment plan becomes a real process
// environment.
package cmake

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"kiln/internal/derive"
	"kiln/internal/executor"
)

// Steps of one build.
const (
	StepConfigure = "configure"
	StepBuild     = "build"
	StepInstall   = "install"
)

// StepError reports a failed step with the tool's output.
type StepError struct {
	Step   string
	Output string
	Err    error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("cmake %s failed: %v", e.Step, e.Err)
	if tail := lastLines(e.Output, 20); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Runner holds the tool settings shared by every build.
type Runner struct {
	Exec      *executor.Executor
	Program   string // defaults to "cmake"
	Generator string // passed as -G when set
	Jobs      int    // --parallel N when > 0
	BuildType string // defaults to Release
	Logger    *log.Logger
}

// Job is one package build.
type Job struct {
	SourceDir string
	BuildDir  string
	Prefix    string
	Args      []string
	Env       *derive.Plan // applied over the current environment
}

func (r *Runner) program() string {
	if r.Program == "" {
		return "cmake"
	}
	return r.Program
}

// ConfigureArgs returns the configure command line, without the program.
func (r *Runner) ConfigureArgs(j Job) []string {
	bt := r.BuildType
	if bt == "" {
		bt = "Release"
	}
	args := []string{
		"-S", j.SourceDir,
		"-B", j.BuildDir,
		"-DCMAKE_INSTALL_PREFIX=" + j.Prefix,
		"-DCMAKE_BUILD_TYPE=" + bt,
	}
	if r.Generator != "" {
		args = append(args, "-G", r.Generator)
	}
	return append(args, j.Args...)
}

// BuildArgs returns the build command line.
func (r *Runner) BuildArgs(j Job) []string {
	args := []string{"--build", j.BuildDir}
	if r.Jobs > 0 {
		args = append(args, "--parallel", strconv.Itoa(r.Jobs))
	}
	return args
}

// InstallArgs returns the install command line.
func (r *Runner) InstallArgs(j Job) []string {
	return []string{"--install", j.BuildDir}
}

// Run configures, builds and installs j, stopping at the first failing step.
func (r *Runner) Run(ctx context.Context, j Job) error {
	if j.SourceDir == "" || j.BuildDir == "" || j.Prefix == "" {
		return fmt.Errorf("cmake: source dir, build dir and prefix are required")
	}
	if err := os.MkdirAll(j.BuildDir, 0o755); err != nil {
		return fmt.Errorf("cmake: %w", err)
	}

	env := os.Environ()
	if j.Env != nil {
		env = j.Env.Apply(env)
	}

	steps := []struct {
		name string
		args []string
	}{
		{StepConfigure, r.ConfigureArgs(j)},
		{StepBuild, r.BuildArgs(j)},
		{StepInstall, r.InstallArgs(j)},
	}
	for _, s := range steps {
		if err := r.step(ctx, s.name, s.args, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, name string, args, env []string) error {
	lg := r.Logger
	if lg == nil {
		lg = log.Default()
	}
	lg.Debug("cmake step", "step", name, "args", strings.Join(args, " "))

	ex := r.Exec
	if ex == nil {
		ex = &executor.Executor{}
	}
	run := *ex
	run.Context = ctx

	cmd := exec.Command(r.program(), args...)
	cmd.Env = env
	out, err := run.Output(cmd)
	if err != nil {
		return &StepError{Step: name, Output: string(out), Err: err}
	}
	return nil
}
