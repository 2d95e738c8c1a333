package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/cmake"
	"kiln/internal/install"
	"kiln/internal/relocate"
)

func (a *app) installCommand() *cobra.Command {
	var (
		flags      selectionFlags
		source     string
		buildDir   string
		noRelocate bool
		strict     bool
		extra      []string
	)
	cmd := &cobra.Command{
		Use:   "install <recipe> [variants...]",
		Short: "Validate, derive, build and relocate one package",
		Example: `  kiln install nvshmem +gdrcopy --deps deps.yaml --source ./nvshmem_src --prefix /opt/nvshmem
  kiln install cufftmp --deps deps.yaml --source ./cufftmp-11.2.6 --prefix /opt/cufftmp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.prefix == "" || source == "" {
				return fmt.Errorf("--prefix and --source are required")
			}
			r, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			sel, err := flags.selection(args[1:])
			if err != nil {
				return err
			}
			deps, err := flags.dependencies()
			if err != nil {
				return err
			}

			ex := a.executor(cmd.Context())
			spin := &spinner{}
			p := &install.Pipeline{
				CMake: &cmake.Runner{
					Exec:      ex,
					Program:   a.cfg.CMake,
					Generator: a.cfg.CMakeGenerator,
					Jobs:      a.cfg.Jobs,
					Logger:    a.log,
				},
				RPaths: a.rpaths(extra),
				Strict: strict || a.cfg.Strict,
				Logger: a.log,
				OnStage: func(stage string) {
					if stage == install.StageRelocate {
						spin = a.newSpinner("relocating")
					}
					a.banner("%s %s", stage, r.Name)
				},
			}
			if r.Relocate.Enabled && !noRelocate {
				pe, err := a.patchelf(cmd)
				if err != nil {
					return err
				}
				p.Relocator = &relocate.Relocator{
					Patcher:  pe,
					Logger:   a.log,
					Observer: func(relocate.ScanResult) { spin.step() },
				}
			}

			res, err := p.Run(cmd.Context(), install.Request{
				Recipe:     r,
				Selection:  sel,
				Deps:       deps,
				Prefix:     flags.prefix,
				SourceDir:  source,
				BuildDir:   buildDir,
				NoRelocate: noRelocate,
			})
			spin.done()
			if res != nil && res.Relocation != nil {
				a.summarize(res.Relocation)
			}
			if err != nil {
				return err
			}

			a.banner("Installed %s %s into %s", r.Name, res.Selection, flags.prefix)
			if res.RunEnv.Len() > 0 {
				a.note("run environment:")
				for _, kv := range res.RunEnv.Environ() {
					a.note("  %s", kv)
				}
			}
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&source, "source", "", "unpacked source (or binary) tree")
	cmd.Flags().StringVar(&buildDir, "build-dir", "", "cmake build directory (default: a temporary directory)")
	cmd.Flags().BoolVar(&noRelocate, "no-relocate", false, "skip the relocation pass")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any ELF file could not be patched")
	cmd.Flags().StringSliceVar(&extra, "rpath", nil, "extra directory appended to the search path (repeatable)")
	return cmd
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "kiln version %s\n", Version)
		},
	}
}
