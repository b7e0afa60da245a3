// Package cli renders a run as plain lines for non-interactive use. On a
// terminal it adds colors and a sticky status footer.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/git"
	"github.com/ticketloop/programmator/internal/loop"
	"github.com/ticketloop/programmator/internal/safety"
)

// Palette, 256-color.
const (
	colorOrange  = "208" // prog prefix
	colorYellow  = "214" // warnings
	colorGreen   = "42"  // complete
	colorDim     = "241" // labels, separators
	colorWhite   = "255" // values
	colorMagenta = "205" // ticket id
	colorPink    = "212" // current phase
)

type styles struct {
	prog, warn, sep, label, value, id, phase, done, iter lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	fg := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }
	return styles{
		prog:  fg(colorOrange).Bold(true),
		warn:  fg(colorYellow).Bold(true),
		sep:   fg(colorDim),
		label: fg(colorDim),
		value: fg(colorWhite),
		id:    fg(colorMagenta).Bold(true),
		phase: fg(colorPink).Bold(true),
		done:  fg(colorGreen),
		iter:  r.NewStyle().Bold(true),
	}
}

// Writer prints loop events and redraws a footer from status snapshots.
// In non-TTY mode it prints plain text without escapes or footer.
type Writer struct {
	out         io.Writer
	isTTY       bool
	width       int
	cfg         safety.Config
	mu          sync.Mutex
	st          styles
	renderer    *glamour.TermRenderer
	footerLines int
	lastFooter  []string
	pid         int
	git         *git.Info
}

// NewWriter creates a Writer. If width is <= 0, defaults to 80.
func NewWriter(out io.Writer, isTTY bool, width int, cfg safety.Config) *Writer {
	if width <= 0 {
		width = 80
	}

	r := lipgloss.NewRenderer(out)
	if isTTY {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	w := &Writer{
		out:   out,
		isTTY: isTTY,
		width: width,
		cfg:   cfg,
		st:    newStyles(r),
	}

	if isTTY {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(width-6, 40)),
		)
		if err == nil {
			w.renderer = tr
		}
	}

	return w
}

// WriteEvent prints a single event. It satisfies event.Handler.
func (w *Writer) WriteEvent(ev event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.eraseFooter()

	var line string
	switch ev.Kind {
	case event.KindProg:
		line = w.st.prog.Render("▶ programmator: ") + ev.Text
		if !w.isTTY {
			line = "programmator: " + ev.Text
		}
	case event.KindWarning:
		line = w.st.warn.Render("! warning: ") + ev.Text
	case event.KindOutput:
		line = strings.TrimRight(ev.Text, "\n")
	case event.KindMarkdown:
		line = w.formatMarkdown(ev.Text)
	case event.KindIterationSeparator:
		line = "\n" + w.st.iter.Render("=== "+ev.Text+" ===")
	default:
		line = ev.Text
	}

	fmt.Fprintln(w.out, line)
	w.redrawFooter()
}

// UpdateState redraws the footer from a snapshot. It satisfies loop.StateHandler.
func (w *Writer) UpdateState(s loop.Snapshot) {
	if !w.isTTY {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.eraseFooter()
	w.lastFooter = w.buildFooter(s)
	w.redrawFooter()
}

// ClearFooter erases the sticky footer from the terminal.
func (w *Writer) ClearFooter() {
	if !w.isTTY {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.eraseFooter()
	w.lastFooter = nil
}

// SetPID records the agent process shown in the footer; 0 hides it.
func (w *Writer) SetPID(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pid = pid
}

// SetGitInfo records the branch shown in the footer.
func (w *Writer) SetGitInfo(info git.Info) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.git = &info
}

// eraseFooter moves the cursor up and clears the footer. Must be called with mu held.
func (w *Writer) eraseFooter() {
	if w.footerLines == 0 || !w.isTTY {
		return
	}
	for range w.footerLines {
		fmt.Fprint(w.out, "\033[A\033[2K")
	}
	w.footerLines = 0
}

// redrawFooter prints the last footer again. Must be called with mu held.
func (w *Writer) redrawFooter() {
	if len(w.lastFooter) == 0 || !w.isTTY {
		return
	}
	for _, line := range w.lastFooter {
		fmt.Fprintln(w.out, line)
	}
	w.footerLines = len(w.lastFooter)
}

func (w *Writer) buildFooter(s loop.Snapshot) []string {
	lines := []string{w.st.sep.Render(strings.Repeat("─", min(w.width, 80)))}

	var parts []string
	if s.Ticket != nil {
		parts = append(parts, w.st.id.Render(s.Ticket.ID))
	}
	if s.State != nil {
		parts = append(parts,
			w.st.label.Render("iter ")+w.st.value.Render(fmt.Sprintf("%d/%d", s.State.Iteration, w.cfg.MaxIterations)),
			w.st.label.Render("stag ")+w.st.value.Render(fmt.Sprintf("%d/%d", s.State.ConsecutiveNoChanges, w.cfg.StagnationLimit)),
		)
	}
	parts = append(parts, w.st.label.Render("files ")+w.st.value.Render(fmt.Sprintf("%d", len(s.FilesChanged))))
	if w.git != nil {
		parts = append(parts, w.st.label.Render("git ")+w.st.value.Render(w.git.String()))
	}
	lines = append(lines, strings.Join(parts, w.st.sep.Render(" | ")))

	if s.Ticket != nil {
		if phase := s.Ticket.CurrentPhase(); phase != nil {
			lines = append(lines, w.st.phase.Render("-> "+phase.Name)+
				w.st.label.Render(fmt.Sprintf(" (%d/%d done)", s.Ticket.CompletedCount(), len(s.Ticket.Phases))))
		} else {
			lines = append(lines, w.st.done.Render("all phases complete"))
		}
	}

	if w.pid > 0 {
		lines = append(lines, w.st.label.Render(fmt.Sprintf("claude pid %d", w.pid)))
	}

	return lines
}

func (w *Writer) formatMarkdown(text string) string {
	if w.renderer != nil {
		if rendered, err := w.renderer.Render(text); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return strings.TrimRight(text, "\n")
}
