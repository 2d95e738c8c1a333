// Package install runs one package through its lifecycle: validate the
// variant selection, derive the build configuration, build or copy the
// artifacts into the prefix and relocate them.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"kiln/internal/cmake"
	"kiln/internal/depctx"
	"kiln/internal/derive"
	"kiln/internal/recipe"
	"kiln/internal/relocate"
	"kiln/internal/variant"
)

// ErrRelocationIncomplete is returned in strict mode when any file could not
// be patched.
var ErrRelocationIncomplete = errors.New("relocation incomplete")

// Stage names passed to Pipeline.OnStage.
const (
	StageValidate = "validate"
	StageDerive   = "derive"
	StageBuild    = "build"
	StageRelocate = "relocate"
)

// Request is one install.
type Request struct {
	Recipe     *recipe.Recipe
	Selection  variant.Selection
	Deps       *depctx.Context
	Prefix     string
	SourceDir  string
	BuildDir   string // cmake only; a temporary directory when empty
	NoRelocate bool
}

// Result is everything the install produced.
type Result struct {
	Selection  *variant.Realized
	Plan       *derive.Plan
	Args       []string
	RunEnv     *derive.Plan
	Relocation *relocate.Report // nil when the pass did not run
}

// Pipeline holds the tools shared by installs.
type Pipeline struct {
	CMake     *cmake.Runner
	Relocator *relocate.Relocator
	RPaths    relocate.RPathSet
	Strict    bool
	Logger    *log.Logger
	OnStage   func(stage string)
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

func (p *Pipeline) stage(s string) {
	if p.OnStage != nil {
		p.OnStage(s)
	}
}

// Prepare validates and derives without touching the filesystem.
func Prepare(rec *recipe.Recipe, sel variant.Selection, deps *depctx.Context, prefix string) (*Result, error) {
	return prepare(rec, sel, deps, prefix, func(string) {})
}

func prepare(rec *recipe.Recipe, sel variant.Selection, deps *depctx.Context, prefix string, stage func(string)) (*Result, error) {
	stage(StageValidate)
	model, d, err := rec.Compile()
	if err != nil {
		return nil, err
	}
	realized, err := model.Validate(sel)
	if err != nil {
		return nil, err
	}
	stage(StageDerive)
	plan, err := d.Derive(realized, deps, derive.Target{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	args, err := d.BuildArgs(realized)
	if err != nil {
		return nil, err
	}
	return &Result{Selection: realized, Plan: plan, Args: args, RunEnv: d.RunEnv()}, nil
}

// Run installs req. Validation and derivation failures abort before
// anything is written. Per-file relocation failures are reported in
// Result.Relocation and only fail the install in strict mode.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Recipe == nil {
		return nil, errors.New("install: no recipe")
	}
	if req.Prefix == "" {
		return nil, errors.New("install: no prefix")
	}
	prefix, err := filepath.Abs(req.Prefix)
	if err != nil {
		return nil, err
	}
	lg := p.logger().With("recipe", req.Recipe.Name)

	res, err := prepare(req.Recipe, req.Selection, req.Deps, prefix, p.stage)
	if err != nil {
		return nil, err
	}
	lg.Info("configuration derived", "variants", res.Selection.String(), "env", res.Plan.Len(), "args", len(res.Args))

	p.stage(StageBuild)
	if err := p.build(ctx, req, prefix, res, lg); err != nil {
		return res, err
	}

	if !req.Recipe.Relocate.Enabled || req.NoRelocate {
		return res, nil
	}
	p.stage(StageRelocate)
	if p.Relocator == nil {
		return res, errors.New("install: relocation enabled but no relocator configured")
	}
	if p.RPaths.Len() == 0 {
		lg.Warn("relocation search path is empty, records will be cleared")
	}
	report, err := p.Relocator.Relocate(ctx, prefix, p.RPaths)
	res.Relocation = report
	if err != nil {
		return res, err
	}
	lg.Info("relocated", "summary", report.Summary.String())
	if p.Strict && report.Summary.Failed > 0 {
		return res, fmt.Errorf("%w: %d of %d candidates could not be patched",
			ErrRelocationIncomplete, report.Summary.Failed, report.Summary.Failed+report.Summary.Patched)
	}
	return res, nil
}

func (p *Pipeline) build(ctx context.Context, req Request, prefix string, res *Result, lg *log.Logger) error {
	if req.SourceDir == "" {
		return errors.New("install: no source directory")
	}
	switch req.Recipe.Build.System {
	case recipe.SystemCopy:
		if err := os.MkdirAll(prefix, 0o755); err != nil {
			return err
		}
		return copyTrees(req.SourceDir, prefix, req.Recipe.Build.Trees, lg)
	case recipe.SystemCMake:
		if p.CMake == nil {
			return errors.New("install: cmake build but no runner configured")
		}
		buildDir := req.BuildDir
		if buildDir == "" {
			tmp, err := os.MkdirTemp("", "kiln-build-"+req.Recipe.Name+"-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)
			buildDir = tmp
		}
		return p.CMake.Run(ctx, cmake.Job{
			SourceDir: req.SourceDir,
			BuildDir:  buildDir,
			Prefix:    prefix,
			Args:      res.Args,
			Env:       res.Plan,
		})
	default:
		return fmt.Errorf("install: unknown build system %q", req.Recipe.Build.System)
	}
}
