package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kiln/internal/install"
	"kiln/internal/relocate"
)

func (a *app) rpaths(extra []string) relocate.RPathSet {
	return relocate.FromEnv(os.Getenv, a.cfg.RPathVars...).With(extra...)
}

func (a *app) patchelf(cmd *cobra.Command) (*relocate.Patchelf, error) {
	prog, err := relocate.LookPatchelf(a.cfg.Patchelf)
	if err != nil {
		return nil, err
	}
	return &relocate.Patchelf{Program: prog, Exec: a.executor(cmd.Context())}, nil
}

func (a *app) relocateCommand() *cobra.Command {
	var (
		extra  []string
		strict bool
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "relocate <prefix>",
		Short: "Rewrite the runtime search path of every ELF file under a prefix",
		Long: `Rewrite the runtime search path of every ELF file under a prefix.

The search path is assembled from the build environment variables named by
KILN_RPATH_VARS followed by any --rpath directories. Symbolic links and files
that are not ELF are skipped; files the patch tool rejects are reported and
the walk continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.patchelf(cmd)
			if err != nil {
				return err
			}
			rp := a.rpaths(extra)
			if rp.Len() == 0 {
				a.warn("warning: search path is empty, existing records will be cleared")
			}

			spin := a.newSpinner("relocating")
			r := &relocate.Relocator{
				Patcher:  p,
				Logger:   a.log,
				Observer: func(relocate.ScanResult) { spin.step() },
			}
			a.banner("Relocating %s", args[0])
			report, err := r.Relocate(cmd.Context(), args[0], rp)
			spin.done()
			if err != nil {
				return err
			}

			if list {
				if err := a.page(reportListing(report)); err != nil {
					return err
				}
			}
			a.summarize(report)
			if (strict || a.cfg.Strict) && report.Summary.Failed > 0 {
				return fmt.Errorf("%w: %d files could not be patched", install.ErrRelocationIncomplete, report.Summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&extra, "rpath", nil, "extra directory appended to the search path (repeatable)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any ELF file could not be patched")
	cmd.Flags().BoolVar(&list, "list", false, "list the outcome of every file")
	return cmd
}

func reportListing(r *relocate.Report) *listing {
	l := &listing{
		title:  "relocation of " + r.Root,
		status: r.Summary.String(),
		lines:  make([]string, 0, len(r.Results)),
	}
	for i, res := range r.Results {
		line := fmt.Sprintf("%-16s %s", res.Outcome, res.Path)
		if res.Err != nil {
			line += "  (" + res.Err.Error() + ")"
		}
		if res.Outcome == relocate.OutcomePatchFailed {
			l.marks = append(l.marks, i)
		}
		l.lines = append(l.lines, line)
	}
	return l
}

func (a *app) summarize(r *relocate.Report) {
	a.note("search path: %s", r.RPath)
	a.banner("%s", r.Summary.String())
	for _, f := range r.Failures() {
		a.warn("could not patch %s: %v", f.Path, f.Err)
	}
}
