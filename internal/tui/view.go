package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ticketloop/programmator/internal/safety"
)

func sidebarWidth(total int) int {
	return max(40, min(56, total*40/100))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sw := sidebarWidth(m.width)
	mainWidth := m.width - sw - 4
	contentHeight := m.height - 3

	sidebar := m.renderSidebar(sw-4, contentHeight-2)
	sidebarBox := statusBoxStyle.Width(sw).Height(contentHeight).Render(sidebar)

	logHeader := "Output"
	if m.logViewport.TotalLineCount() > 0 {
		logHeader = fmt.Sprintf("Output (%d lines, %d%%)", m.logViewport.TotalLineCount(), int(m.logViewport.ScrollPercent()*100))
	}
	logsContent := labelStyle.Render(logHeader) + "\n" + m.logViewport.View()
	logsBox := logBoxStyle.Width(mainWidth).Height(contentHeight).Render(logsContent)

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarBox, logsBox)
	return main + "\n" + m.renderHelp()
}

// renderSidebar composes all sidebar sections.
func (m Model) renderSidebar(width int, height int) string {
	var b strings.Builder

	header := m.renderSidebarHeader(width)
	ticket := m.renderSidebarTicket(width)
	environment := m.renderSidebarEnvironment(width)
	progress := m.renderSidebarProgress(width)
	footer := m.renderSidebarFooter(width)

	b.WriteString(header)
	b.WriteString(ticket)
	b.WriteString(environment)
	b.WriteString(progress)

	// lipgloss.Height("") is 1, so empty sections are counted by heightOf.
	used := heightOf(header) + heightOf(ticket) + heightOf(environment) + heightOf(progress) + heightOf(footer)
	b.WriteString(m.renderSidebarPhases(width, height-used))
	b.WriteString(footer)

	return b.String()
}

func (m Model) renderSidebarHeader(width int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("⚡ PROGRAMMATOR"))
	b.WriteString("\n")

	if strings.Contains(m.claudeFlags, "--dangerously-skip-permissions") {
		b.WriteString(dangerStyle.Render("⚠ SKIP PERMISSIONS"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	indicator := m.stateIndicator()
	elapsed := formatDuration(time.Since(m.startedAt))
	padding := max(2, width-lipgloss.Width(indicator)-len(elapsed))
	b.WriteString(indicator)
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(valueStyle.Render(elapsed))
	b.WriteString("\n")

	if m.claudePID > 0 && !m.finished() {
		b.WriteString(labelStyle.Render(fmt.Sprintf("    claude pid %d", m.claudePID)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) stateIndicator() string {
	switch m.runState {
	case stateRunning:
		return runningStyle.Render(m.spinner.View() + " Running")
	case statePaused:
		return pausedStyle.Render("⏸ PAUSED")
	case stateStopping:
		return pausedStyle.Render(m.spinner.View() + " Stopping after this iteration")
	case stateStopped:
		return stoppedStyle.Render("⏹ STOPPED")
	case stateComplete:
		if m.result != nil && m.result.ExitReason != safety.ExitReasonComplete {
			return stoppedStyle.Render("■ EXITED")
		}
		return runningStyle.Render("✓ COMPLETE")
	default:
		return ""
	}
}

func (m Model) renderSidebarTicket(width int) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(sectionHeader("Ticket", width))
	b.WriteString("\n")
	if m.ticket == nil {
		b.WriteString(valueStyle.Render("-"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(valueStyle.Render(m.ticket.ID))
	if m.ticket.Status != "" {
		b.WriteString(labelStyle.Render(" [" + m.ticket.Status + "]"))
	}
	b.WriteString("\n")
	if m.ticket.Title != "" {
		b.WriteString(labelStyle.Render(wrapText(m.ticket.Title, width, "", 2)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderSidebarEnvironment(width int) string {
	if m.workingDir == "" && m.git == nil && m.logPath == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Environment", width))
	b.WriteString("\n")

	if m.workingDir != "" {
		b.WriteString(labelStyle.Render("Dir: "))
		b.WriteString(valueStyle.Render(abbreviatePath(m.workingDir)))
		b.WriteString("\n")
	}
	if m.git != nil {
		b.WriteString(labelStyle.Render("Git: "))
		b.WriteString(valueStyle.Render(m.git.String()))
		b.WriteString("\n")
	}
	if m.logPath != "" {
		b.WriteString(labelStyle.Render("Log: "))
		b.WriteString(valueStyle.Render(abbreviatePath(m.logPath)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderSidebarProgress(width int) string {
	if m.state == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Progress", width))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Iteration: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d", m.state.Iteration, m.config.MaxIterations)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Stagnation: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d", m.state.ConsecutiveNoChanges, m.config.StagnationLimit)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Files: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d changed", len(m.filesChanged))))
	b.WriteString("\n")
	if m.state.ConsecutiveErrors > 0 {
		b.WriteString(labelStyle.Render("Last error: "))
		b.WriteString(warnStyle.Render(fmt.Sprintf("%s (x%d)", m.state.LastError, m.state.ConsecutiveErrors)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderSidebarPhases(width int, available int) string {
	if m.ticket == nil || len(m.ticket.Phases) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader(fmt.Sprintf("Phases %d/%d", m.ticket.CompletedCount(), len(m.ticket.Phases)), width))
	b.WriteString("\n")

	phases := m.ticket.Phases
	current := m.ticket.CurrentPhaseIndex()

	// Header takes two lines; overflow markers take one each.
	space := max(1, available-2)
	from, to := 0, len(phases)-1
	if len(phases) > space {
		space = max(1, space-2)
		anchor := current
		if anchor < 0 {
			anchor = len(phases) - 1
		}
		from = max(0, anchor-space/2)
		to = min(len(phases)-1, from+space-1)
		from = max(0, to-space+1)
	}

	if from > 0 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  ↑ %d more", from)))
		b.WriteString("\n")
	}

	phaseWidth := width - 4
	for i := from; i <= to; i++ {
		name := wrapText(phases[i].Name, phaseWidth, "    ", 2)
		switch {
		case phases[i].Completed:
			b.WriteString(runningStyle.Render("  ✓ "))
			b.WriteString(labelStyle.Render(name))
		case i == current:
			b.WriteString(phaseStyle.Render("  → " + name))
		default:
			b.WriteString(labelStyle.Render("  ○ " + name))
		}
		b.WriteString("\n")
	}

	if to < len(phases)-1 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  ↓ %d more", len(phases)-1-to)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderSidebarFooter(width int) string {
	var b strings.Builder

	if m.result != nil && m.finished() {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Exit: "))
		b.WriteString(valueStyle.Render(string(m.result.ExitReason)))
		if m.result.ExitMessage != "" {
			b.WriteString("\n")
			b.WriteString(labelStyle.Render("Reason: "))
			b.WriteString(valueStyle.Render(wrapText(m.result.ExitMessage, width-8, "        ", 3)))
		}
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press q to quit"))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(stoppedStyle.Render(wrapText(fmt.Sprintf("Error: %v", m.err), width, "", 3)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderHelp() string {
	var parts []string

	switch m.runState {
	case stateRunning:
		parts = append(parts, "p: pause", "s: stop")
	case statePaused:
		parts = append(parts, "p: resume", "s: stop")
	}

	parts = append(parts, "↑/↓: scroll", "q: quit")

	return helpStyle.Render(strings.Join(parts, " • "))
}

// heightOf returns the rendered height of a string, treating empty strings as 0 lines.
func heightOf(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}
