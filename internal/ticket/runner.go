package ticket

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes an external command and returns its standard output.
// A non-zero exit is reported as an error.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// CommandCall is one recorded FakeRunner invocation.
type CommandCall struct {
	Name string
	Args []string
}

// FakeRunner replays scripted outputs and records every call.
type FakeRunner struct {
	mu    sync.Mutex
	calls []CommandCall
	stubs map[string]fakeResult
}

type fakeResult struct {
	output []byte
	err    error
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{stubs: make(map[string]fakeResult)}
}

// Script registers the output returned for an exact command line.
func (f *FakeRunner) Script(name string, args []string, output []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[stubKey(name, args)] = fakeResult{output: output}
}

// Fail registers an error returned for an exact command line.
func (f *FakeRunner) Fail(name string, args []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[stubKey(name, args)] = fakeResult{err: err}
}

func (f *FakeRunner) Run(name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, CommandCall{Name: name, Args: append([]string(nil), args...)})
	res, ok := f.stubs[stubKey(name, args)]
	if !ok {
		return nil, fmt.Errorf("missing stub for command %s %s", name, strings.Join(args, " "))
	}
	return res.output, res.err
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []CommandCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CommandCall(nil), f.calls...)
}

func stubKey(name string, args []string) string {
	return fmt.Sprintf("%s\x00%s", name, strings.Join(args, "\x00"))
}
