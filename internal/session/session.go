// Package session manages the active-session file that lets `programmator
// status` find a running loop.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ticketloop/programmator/internal/debug"
)

// ErrNoSession is returned by Active when no live session is recorded.
var ErrNoSession = errors.New("no active session")

// Info describes a running loop.
type Info struct {
	TicketID   string
	WorkingDir string
	StartedAt  time.Time
	PID        int
	LogPath    string
}

// Write records info at path, replacing any previous session.
func Write(path string, info Info) error {
	doc, err := info.JSON()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Read decodes the session file at path.
func Read(path string) (*Info, error) {
	data, err := os.ReadFile(path) //nolint:gosec // state file path
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("corrupted session file %s", path)
	}

	doc := gjson.ParseBytes(data)
	info := &Info{
		TicketID:   doc.Get("ticket_id").String(),
		WorkingDir: doc.Get("working_dir").String(),
		PID:        int(doc.Get("pid").Int()),
		LogPath:    doc.Get("log_path").String(),
	}
	if ts := doc.Get("started_at").String(); ts != "" {
		info.StartedAt, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("corrupted session file %s: %w", path, err)
		}
	}
	if info.TicketID == "" || info.PID <= 0 {
		return nil, fmt.Errorf("corrupted session file %s: missing ticket_id or pid", path)
	}
	return info, nil
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// RemoveIfOwned deletes the session file only when it belongs to pid, so a
// finishing run never clears a newer run's record.
func RemoveIfOwned(path string, pid int) error {
	info, err := Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return Remove(path)
	}
	if info.PID != pid {
		return nil
	}
	return Remove(path)
}

// Active returns the live session recorded at path. Corrupted files and
// sessions whose process is gone are removed and reported as ErrNoSession.
func Active(path string) (*Info, error) {
	info, err := Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSession
		}
		debug.Logf("session: dropping unreadable %s: %v", path, err)
		_ = Remove(path)
		return nil, ErrNoSession
	}

	if !IsProcessRunning(info.PID) {
		debug.Logf("session: dropping stale %s (pid %d)", path, info.PID)
		_ = Remove(path)
		return nil, ErrNoSession
	}
	return info, nil
}

// JSON renders info in the session file format.
func (i Info) JSON() ([]byte, error) {
	doc := "{}"
	var err error
	set := func(key string, value any) {
		if err == nil {
			doc, err = sjson.Set(doc, key, value)
		}
	}
	set("ticket_id", i.TicketID)
	set("working_dir", i.WorkingDir)
	set("started_at", i.StartedAt.Format(time.RFC3339))
	set("pid", i.PID)
	set("log_path", i.LogPath)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}
