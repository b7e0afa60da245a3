package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// lockPollInterval is how often Follow checks whether the run has ended.
const lockPollInterval = time.Second

// Follow copies path to w and keeps copying appended data until ctx is done,
// the file is removed, or the run holding its lock ends.
func Follow(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watching the directory also reports removal of the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	target := filepath.Clean(path)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	drain := func() error {
		_, err := io.Copy(w, f)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return drain()

		case ev, ok := <-watcher.Events:
			if !ok {
				return drain()
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return drain()
			}
			if ev.Op&fsnotify.Write != 0 {
				if err := drain(); err != nil {
					return fmt.Errorf("read log: %w", err)
				}
			}

		case <-ticker.C:
			if !IsLocked(path) {
				return drain()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return drain()
			}
			return fmt.Errorf("watch log: %w", err)
		}
	}
}
