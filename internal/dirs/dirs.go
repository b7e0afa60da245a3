// Package dirs resolves the directories programmator reads and writes,
// following the XDG base directory layout.
package dirs

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the global configuration directory.
// Resolution order: XDG_CONFIG_HOME/programmator > ~/.config/programmator.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "programmator")
	}
	return homeJoin(".config", "programmator")
}

// LocalConfigDir returns the project-level configuration directory inside workDir.
func LocalConfigDir(workDir string) string {
	return filepath.Join(workDir, ".programmator")
}

// StateDir returns the state directory used for the session file and logs.
// Resolution order: PROGRAMMATOR_STATE_DIR > XDG_STATE_HOME/programmator > ~/.local/state/programmator.
func StateDir() string {
	if dir := os.Getenv("PROGRAMMATOR_STATE_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "programmator")
	}
	return homeJoin(".local", "state", "programmator")
}

// LogsDir returns the progress log directory (StateDir/logs).
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// SessionFile returns the path of the active session file.
func SessionFile() string {
	return filepath.Join(StateDir(), "session.json")
}

// TicketsDir returns the directory holding ticket markdown files.
// Resolution order: TICKETS_DIR > ~/.tickets.
func TicketsDir() string {
	if dir := os.Getenv("TICKETS_DIR"); dir != "" {
		return dir
	}
	return homeJoin(".tickets")
}

func homeJoin(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append([]string{home}, elem...)...)
}
