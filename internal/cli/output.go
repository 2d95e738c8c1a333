package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// banner prints a "-> message" status line.
func (a *app) banner(format string, args ...any) {
	fmt.Fprint(a.stdout, colArrow.Sprint("-> "))
	fmt.Fprintln(a.stdout, colSuccess.Sprintf(format, args...))
}

func (a *app) note(format string, args ...any) {
	fmt.Fprintln(a.stdout, colNote.Sprintf(format, args...))
}

func (a *app) warn(format string, args ...any) {
	fmt.Fprintln(a.stderr, colWarn.Sprintf(format, args...))
}

func newLogger(w io.Writer, debug bool) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{Prefix: "kiln"})
	if debug {
		lg.SetLevel(log.DebugLevel)
	}
	return lg
}

// problems flattens joined errors so each one can go on its own line. Only
// the error itself is split, never a cause under a wrapping message.
func problems(err error) []error {
	multi, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range multi.Unwrap() {
		out = append(out, problems(e)...)
	}
	return out
}

func printErrors(w io.Writer, err error) {
	list := problems(err)
	if len(list) > 1 {
		fmt.Fprintln(w, colError.Sprintf("error: %d problems", len(list)))
		for _, e := range list {
			fmt.Fprintf(w, "%s%v\n", colError.Sprint("  - "), e)
		}
		return
	}
	fmt.Fprintf(w, "%s%v\n", colError.Sprint("error: "), err)
}

// spinner shows activity on a terminal; off a terminal it is silent.
type spinner struct {
	bar *progressbar.ProgressBar
}

func (a *app) newSpinner(desc string) *spinner {
	if !a.tty {
		return &spinner{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(a.stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &spinner{bar: bar}
}

func (s *spinner) step() {
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

func (s *spinner) done() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}
