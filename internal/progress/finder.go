package progress

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/ticketloop/programmator/internal/dirs"
)

// LogFile represents a progress log file.
type LogFile struct {
	Path      string
	TicketID  string
	Timestamp time.Time
	IsActive  bool // locked by a running session
}

// FindLogs finds log files in logsDir, optionally filtered by a
// case-insensitive ticket id substring. Newest first.
func FindLogs(logsDir, ticketID string) ([]LogFile, error) {
	if logsDir == "" {
		logsDir = dirs.LogsDir()
	}

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var logs []LogFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}

		lf := parseLogFilename(logsDir, entry.Name())
		if lf == nil {
			continue
		}
		if ticketID != "" && !strings.Contains(strings.ToLower(lf.TicketID), strings.ToLower(ticketID)) {
			continue
		}

		lf.IsActive = IsLocked(lf.Path)
		logs = append(logs, *lf)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})

	return logs, nil
}

// FindLatestLog finds the most recent log file for a ticket, or nil.
func FindLatestLog(logsDir, ticketID string) (*LogFile, error) {
	logs, err := FindLogs(logsDir, ticketID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// FindActiveLog finds a log file still held by a running session, or nil.
func FindActiveLog(logsDir, ticketID string) (*LogFile, error) {
	logs, err := FindLogs(logsDir, ticketID)
	if err != nil {
		return nil, err
	}
	for i := range logs {
		if logs[i].IsActive {
			return &logs[i], nil
		}
	}
	return nil, nil
}

// parseLogFilename parses YYYYMMDD-HHMMSS-<ticket>.log.
func parseLogFilename(dir, name string) *LogFile {
	base := strings.TrimSuffix(name, ".log")
	if len(base) < len(fileTimeFormat)+1 {
		return nil
	}

	t, err := time.ParseInLocation(fileTimeFormat, base[:len(fileTimeFormat)], time.Local)
	if err != nil {
		return nil
	}

	return &LogFile{
		Path:      filepath.Join(dir, name),
		TicketID:  base[len(fileTimeFormat)+1:],
		Timestamp: t,
	}
}

// IsLocked reports whether another handle holds the lock on path.
func IsLocked(path string) bool {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
