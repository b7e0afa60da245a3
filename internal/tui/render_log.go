package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ticketloop/programmator/internal/event"
)

// renderEvents renders the output pane. Consecutive markdown blocks are
// rendered together so lists and code fences spanning blocks survive.
func (m Model) renderEvents() string {
	var processed []string
	var markdownBuffer []string

	flushMarkdown := func() {
		if len(markdownBuffer) == 0 {
			return
		}
		md := strings.Join(markdownBuffer, "\n")
		markdownBuffer = nil
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(md); err == nil {
				processed = append(processed, strings.TrimSpace(rendered))
				return
			}
		}
		processed = append(processed, md)
	}

	for _, ev := range m.events {
		switch ev.Kind {
		case event.KindProg:
			flushMarkdown()
			processed = append(processed, m.renderPrefixed(progPrefixStyle.Render("▶ programmator:")+" ", ev.Text))
		case event.KindWarning:
			flushMarkdown()
			processed = append(processed, m.renderPrefixed(warnStyle.Render("! warning:")+" ", ev.Text))
		case event.KindOutput:
			flushMarkdown()
			processed = append(processed, outputStyle.Render(strings.TrimRight(ev.Text, "\n")))
		case event.KindIterationSeparator:
			flushMarkdown()
			processed = append(processed, "", separatorStyle.Render("━━ "+ev.Text+" ━━"))
		case event.KindMarkdown:
			markdownBuffer = append(markdownBuffer, ev.Text)
		}
	}
	flushMarkdown()

	return strings.Join(processed, "\n")
}

// renderPrefixed wraps msg under a styled prefix, indenting continuation lines.
func (m Model) renderPrefixed(prefix, msg string) string {
	prefixLen := lipgloss.Width(prefix)
	if m.logViewport.Width-prefixLen <= 20 {
		return prefix + msg
	}
	indent := strings.Repeat(" ", prefixLen)
	wrapped := wrapText(msg, m.logViewport.Width-prefixLen, indent, 0)
	return prefix + wrapped
}
