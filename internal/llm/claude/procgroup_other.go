//go:build windows

package claude

import (
	"os/exec"
	"sync"
)

// processGroup kills the agent process when cancelCh fires. Windows has no
// Unix process groups, so only the direct child is killed.
type processGroup struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

func setupProcessGroup(_ *exec.Cmd) {}

func watchProcessGroup(cmd *exec.Cmd, cancelCh <-chan struct{}) *processGroup {
	pg := &processGroup{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go pg.watch(cancelCh)
	return pg
}

func (pg *processGroup) watch(cancelCh <-chan struct{}) {
	select {
	case <-cancelCh:
		if pg.cmd.Process != nil {
			_ = pg.cmd.Process.Kill()
		}
	case <-pg.done:
	}
}

func (pg *processGroup) Wait() error {
	pg.once.Do(func() {
		pg.err = pg.cmd.Wait()
		close(pg.done)
	})
	return pg.err
}
