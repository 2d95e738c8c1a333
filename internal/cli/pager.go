package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// listing is a per-file relocation report ready for display. Marks are the
// indexes of lines the patch tool rejected.
type listing struct {
	title  string
	status string
	lines  []string
	marks  []int
}

func (l *listing) marked(i int) bool {
	for _, m := range l.marks {
		if m == i {
			return true
		}
	}
	return false
}

// nextMark returns the first mark after row, wrapping to the first one.
func (l *listing) nextMark(row int) (int, bool) {
	if len(l.marks) == 0 {
		return 0, false
	}
	for _, m := range l.marks {
		if m > row {
			return m, true
		}
	}
	return l.marks[0], true
}

func (a *app) printListing(l *listing) {
	for i, line := range l.lines {
		if l.marked(i) {
			line = colError.Sprint(line)
		}
		fmt.Fprintln(a.stdout, line)
	}
}

// page prints the listing, switching to a scrollable view when stdout is a
// terminal and the lines do not fit on it.
func (a *app) page(l *listing) error {
	if !isTerminal(a.stdout) {
		a.printListing(l)
		return nil
	}
	fd := int(a.stdout.(*os.File).Fd())
	// border
	if _, height, err := term.GetSize(fd); err == nil && len(l.lines) <= height-2 {
		a.printListing(l)
		return nil
	}

	var b strings.Builder
	for i, line := range l.lines {
		line = tview.Escape(line)
		if l.marked(i) {
			line = "[red]" + line + "[-]"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	pager := tview.NewApplication()
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false).
		SetText(b.String())
	view.SetBorder(true).SetTitle(" " + l.title + " ")

	keys := "↑/↓ PgUp/PgDn scroll, q quit"
	if len(l.marks) > 0 {
		keys = "↑/↓ PgUp/PgDn scroll, f next failure, q quit"
	}
	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText(fmt.Sprintf("[gray]%s  |  %s[-]", tview.Escape(l.status), keys))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(view, 0, 1, true).
		AddItem(footer, 1, 0, false)

	pager.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			pager.Stop()
			return nil
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				pager.Stop()
				return nil
			case 'f':
				row, _ := view.GetScrollOffset()
				if m, ok := l.nextMark(row); ok {
					view.ScrollTo(m, 0)
				}
				return nil
			}
		}
		return ev
	})

	if err := pager.SetRoot(flex, true).SetFocus(view).Run(); err != nil {
		return fmt.Errorf("pager: %w", err)
	}
	return nil
}
