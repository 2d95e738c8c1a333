// Package cli implements the kiln command line.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/depctx"
	"kiln/internal/executor"
	"kiln/internal/recipe"
	"kiln/internal/variant"
)

// Version is set at link time.
var Version = "dev"

type app struct {
	cfgFile string
	debug   bool

	cfg    *config.Config
	log    *log.Logger
	stdout io.Writer
	stderr io.Writer
	tty    bool
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printErrors(stderr, err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kiln",
		Short: "Configure, build and relocate packages from declarative recipes",
		Long: `kiln turns a package recipe, a variant selection and a resolved dependency
context into a build environment and build-tool arguments, drives the build,
and rewrites the runtime search path of the installed ELF files.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default "+config.DefaultPath+")")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.recipesCommand(),
		a.validateCommand(),
		a.deriveCommand(),
		a.relocateCommand(),
		a.installCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	a.cfg = cfg
	a.tty = isTerminal(a.stdout)
	if !a.tty {
		color.Enable = false
	}
	a.log = newLogger(a.stderr, cfg.Debug)
	if cfg.TmpDir != "" {
		_ = os.Setenv("TMPDIR", cfg.TmpDir)
	}
	if cfg.File != "" {
		a.log.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

func (a *app) registry() (*recipe.Registry, error) {
	return recipe.NewRegistry(a.cfg.RecipePath...)
}

func (a *app) executor(ctx context.Context) *executor.Executor {
	ex := executor.New(ctx)
	ex.AsRoot = a.cfg.AsRoot
	return ex
}

// selectionFlags are shared by the commands that take a variant selection.
type selectionFlags struct {
	optionsFile string
	deps        string
	prefix      string
}

func (f *selectionFlags) register(cmd *cobra.Command, withDeps bool) {
	cmd.Flags().StringVar(&f.optionsFile, "options-file", "", "file of variant tokens applied before the command line")
	if withDeps {
		cmd.Flags().StringVar(&f.deps, "deps", "", "YAML dependency context produced by the resolver")
		cmd.Flags().StringVar(&f.prefix, "prefix", "", "install prefix of the package")
	}
}

// selection merges the options file with tokens; tokens win.
func (f *selectionFlags) selection(tokens []string) (variant.Selection, error) {
	base := variant.Selection{}
	if f.optionsFile != "" {
		s, err := variant.LoadOptionsFile(f.optionsFile)
		if err != nil {
			return nil, err
		}
		base = s
	}
	sel, err := variant.ParseSelection(tokens)
	if err != nil {
		return nil, err
	}
	return base.Merge(sel), nil
}

func (f *selectionFlags) dependencies() (*depctx.Context, error) {
	if f.deps == "" {
		return depctx.New(), nil
	}
	return depctx.Load(f.deps)
}
