// Package progress writes a persistent timestamped log for every run.
// Each run gets its own file under the logs directory with entries for
// iterations, phases, status reports, errors and the exit summary.
package progress

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ticketloop/programmator/internal/dirs"
)

const (
	timestampFormat = "2006-01-02 15:04:05"
	// fileTimeFormat prefixes every log file name.
	fileTimeFormat = "20060102-150405"
)

// ErrLocked is returned when another run already holds the log file.
var ErrLocked = errors.New("log file is locked by another run")

// Logger writes timestamped progress to a log file. The file stays locked
// until Close so other processes can tell the run is still active.
type Logger struct {
	file      *os.File
	lock      *flock.Flock
	startTime time.Time
	ticketID  string
	runID     string
	logPath   string
}

// Config holds logger configuration.
type Config struct {
	LogsDir  string // default: dirs.LogsDir()
	TicketID string
	WorkDir  string
	// Now is used for the file name and header; defaults to time.Now.
	Now func() time.Time
}

// NewLogger creates <LogsDir>/<YYYYMMDD-HHMMSS>-<ticket>.log and locks it.
func NewLogger(cfg Config) (*Logger, error) {
	logsDir := cfg.LogsDir
	if logsDir == "" {
		logsDir = dirs.LogsDir()
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	started := now()
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", started.Format(fileTimeFormat), sanitizeFilename(cfg.TicketID)))

	lock := flock.New(logPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", logPath, ErrLocked)
	}

	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_TRUNC|os.O_CREATE, 0o644) //nolint:gosec // path built from sanitized id
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create log file: %w", err)
	}

	l := &Logger{
		file:      f,
		lock:      lock,
		startTime: started,
		ticketID:  cfg.TicketID,
		runID:     uuid.NewString(),
		logPath:   logPath,
	}

	l.writef("# Programmator Progress Log\n")
	l.writef("Run: %s\n", l.runID)
	l.writef("Ticket: %s\n", cfg.TicketID)
	l.writef("Working dir: %s\n", cfg.WorkDir)
	l.writef("Started: %s\n", started.Format(timestampFormat))
	l.writef("%s\n\n", strings.Repeat("-", 60))

	return l, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.logPath
}

// TicketID returns the ticket the run works on.
func (l *Logger) TicketID() string {
	return l.ticketID
}

// RunID returns the unique id written to the log header.
func (l *Logger) RunID() string {
	return l.runID
}

// Printf writes a timestamped message to the log.
func (l *Logger) Printf(format string, args ...any) {
	l.writef("[%s] %s\n", time.Now().Format(timestampFormat), fmt.Sprintf(format, args...))
}

// Section writes a section header to the log.
func (l *Logger) Section(title string) {
	l.writef("\n--- %s ---\n", title)
}

// Iteration logs the start of a new iteration.
func (l *Logger) Iteration(n, maxIter int, phase string) {
	l.Section(fmt.Sprintf("Iteration %d/%d", n, maxIter))
	if phase != "" {
		l.Printf("Phase: %s", phase)
	}
}

// Status logs a parsed status report.
func (l *Logger) Status(status, summary string, filesChanged []string) {
	l.Printf("Status: %s", status)
	l.Printf("Summary: %s", summary)
	if len(filesChanged) > 0 {
		l.Printf("Files changed: %s", strings.Join(filesChanged, ", "))
	}
}

// PhaseComplete logs phase completion.
func (l *Logger) PhaseComplete(phase string) {
	l.Printf("Phase completed: %s", phase)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.writef("[%s] ERROR: %s\n", time.Now().Format(timestampFormat), fmt.Sprintf(format, args...))
}

// Exit logs the exit reason and duration.
func (l *Logger) Exit(reason, message string, iterations int, filesChanged []string) {
	l.writef("\n%s\n", strings.Repeat("-", 60))
	l.writef("Exit reason: %s\n", reason)
	if message != "" {
		l.writef("Exit message: %s\n", message)
	}
	l.writef("Iterations: %d\n", iterations)
	if len(filesChanged) > 0 {
		l.writef("Files changed (%d): %s\n", len(filesChanged), strings.Join(filesChanged, ", "))
	}
	l.writef("Duration: %s\n", FormatDuration(time.Since(l.startTime)))
	l.writef("Completed: %s\n", time.Now().Format(timestampFormat))
}

// Close releases the file lock and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	if unlockErr := l.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

func (l *Logger) writef(format string, args ...any) {
	if l.file != nil {
		fmt.Fprintf(l.file, format, args...)
	}
}

// FormatDuration renders d as 1h2m3s, 2m3s or 3s.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// sanitizeFilename converts a ticket id to a safe filename component.
func sanitizeFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-").Replace(s)

	var clean strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			clean.WriteRune(r)
		}
	}
	result := clean.String()

	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	result = strings.Trim(result, "-")

	if len(result) > 100 {
		result = strings.TrimRight(result[:100], "-")
	}

	if result == "" {
		return "unnamed"
	}
	return result
}
