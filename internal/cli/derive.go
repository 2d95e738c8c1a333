package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"kiln/internal/derive"
	"kiln/internal/install"
	"kiln/internal/recipe"
)

func (a *app) lookup(name string) (*recipe.Recipe, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	return reg.Get(name)
}

func (a *app) validateCommand() *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:   "validate <recipe> [variants...]",
		Short: "Check a variant selection and print it with defaults applied",
		Example: `  kiln validate nvshmem +ucx ~nccl
  kiln validate nvshmem --options-file build.options`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			sel, err := flags.selection(args[1:])
			if err != nil {
				return err
			}
			model, _, err := r.Compile()
			if err != nil {
				return err
			}
			realized, err := model.Validate(sel)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s\n", r.Name, realized)
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) deriveCommand() *cobra.Command {
	var (
		flags  selectionFlags
		format string
		show   []string
	)
	cmd := &cobra.Command{
		Use:   "derive <recipe> [variants...]",
		Short: "Print the build environment and build-tool arguments for a selection",
		Long: `Print the build environment and build-tool arguments for a selection.

With --format sh the output can be sourced: the environment is exported and
the arguments are set as the positional parameters.`,
		Example: `  kiln derive nvshmem --deps deps.yaml --prefix /opt/nvshmem
  kiln derive nvshmem +gdrcopy --deps deps.yaml --prefix /opt/nvshmem --format sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "env" && format != "sh" {
				return fmt.Errorf("unknown format %q (want env or sh)", format)
			}
			for _, s := range show {
				if !slices.Contains([]string{"env", "args", "run"}, s) {
					return fmt.Errorf("unknown section %q (want env, args or run)", s)
				}
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
			res, err := install.Prepare(r, sel, deps, flags.prefix)
			if err != nil {
				return err
			}
			a.log.Debug("derived", "recipe", r.Name, "variants", res.Selection.String())

			for _, s := range show {
				switch s {
				case "env":
					fmt.Fprintln(a.stdout, "# build environment")
					if err := a.printPlan(res.Plan, format); err != nil {
						return err
					}
				case "args":
					fmt.Fprintln(a.stdout, "# build arguments")
					if err := a.printArgs(res.Args, format); err != nil {
						return err
					}
				case "run":
					fmt.Fprintln(a.stdout, "# run environment")
					if err := a.printPlan(res.RunEnv, format); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&format, "format", "env", "output format: env or sh")
	cmd.Flags().StringSliceVar(&show, "show", []string{"env", "args"}, "sections to print: env, args, run")
	return cmd
}

func (a *app) printPlan(p *derive.Plan, format string) error {
	if format == "sh" {
		s, err := p.Shell()
		if err != nil {
			return err
		}
		fmt.Fprint(a.stdout, s)
		return nil
	}
	for _, kv := range p.Environ() {
		fmt.Fprintln(a.stdout, kv)
	}
	return nil
}

func (a *app) printArgs(args []string, format string) error {
	if format != "sh" {
		for _, arg := range args {
			fmt.Fprintln(a.stdout, arg)
		}
		return nil
	}
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			return err
		}
		quoted = append(quoted, q)
	}
	fmt.Fprintf(a.stdout, "set -- %s\n", strings.Join(quoted, " "))
	return nil
}
