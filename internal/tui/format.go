package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// wrapText wraps text to fit within width, with optional indent for continuation lines.
// maxLines limits output; 0 means unlimited. Truncates with "..." if exceeded.
func wrapText(text string, width int, indent string, maxLines int) string {
	if width <= 0 {
		return text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	truncate := func() string {
		last := lines[len(lines)-1]
		if len(last) > 3 {
			lines[len(lines)-1] = last[:len(last)-3] + "..."
		}
		return strings.Join(lines, "\n")
	}

	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) <= width {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		if maxLines > 0 && len(lines) >= maxLines {
			return truncate()
		}
		current = indent + word
	}
	lines = append(lines, current)

	return strings.Join(lines, "\n")
}

func sectionHeader(title string, width int) string {
	padding := max(1, (width-len(title)-2)/2)
	line := strings.Repeat("─", padding)
	return labelStyle.Render(line+" ") + valueStyle.Render(title) + labelStyle.Render(" "+line)
}

func abbreviatePath(path string) string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(path, home) {
		path = "~" + path[len(home):]
	}
	parts := strings.Split(path, string(filepath.Separator))
	if len(parts) > 3 {
		return filepath.Join(parts[len(parts)-3:]...)
	}
	return path
}

// formatDuration renders d as a clock: "04:05" or "1:02:03".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
