//go:build !windows

package claude

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ticketloop/programmator/internal/debug"
)

// gracefulShutdownDelay is the time between SIGTERM and SIGKILL.
const gracefulShutdownDelay = 100 * time.Millisecond

// processGroup kills the agent and everything it spawned when cancelCh fires.
type processGroup struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

// setupProcessGroup makes cmd the leader of a new process group.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// watchProcessGroup must be called after cmd has started.
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
		pg.kill()
	case <-pg.done:
	}
}

func (pg *processGroup) kill() {
	process := pg.cmd.Process
	if process == nil || process.Pid <= 0 {
		return
	}

	pgid := -process.Pid

	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		debug.Logf("claude: SIGTERM failed for pgid %d: %v", pgid, err)
	}

	time.Sleep(gracefulShutdownDelay)

	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		debug.Logf("claude: SIGKILL failed for pgid %d: %v", pgid, err)
	}
}

// Wait waits for the command and stops the watcher.
func (pg *processGroup) Wait() error {
	pg.once.Do(func() {
		pg.err = pg.cmd.Wait()
		close(pg.done)
	})
	return pg.err
}
