// Package safety implements the exit conditions checked before every loop iteration.
package safety

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DefaultMaxIterations   = 50
	DefaultStagnationLimit = 3
	DefaultTimeout         = 900 // seconds
	DefaultClaudeFlags     = "--dangerously-skip-permissions"

	// MaxConsecutiveErrors is the length of an identical-error streak that blocks the run.
	MaxConsecutiveErrors = 3
)

type ExitReason string

const (
	ExitReasonComplete      ExitReason = "complete"
	ExitReasonMaxIterations ExitReason = "max_iterations"
	ExitReasonStagnation    ExitReason = "stagnation"
	ExitReasonBlocked       ExitReason = "blocked"
	ExitReasonUserInterrupt ExitReason = "user_interrupt"
	// ExitReasonError marks a run aborted by a ticket store or agent start failure.
	ExitReasonError ExitReason = "error"
)

func (r ExitReason) String() string { return string(r) }

// Config is the immutable policy for one run.
type Config struct {
	MaxIterations   int
	StagnationLimit int
	Timeout         int // seconds per agent invocation
	ClaudeFlags     string
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   DefaultMaxIterations,
		StagnationLimit: DefaultStagnationLimit,
		Timeout:         DefaultTimeout,
		ClaudeFlags:     DefaultClaudeFlags,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by PROGRAMMATOR_* variables.
// Values that do not parse as integers are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if n, ok := envInt("PROGRAMMATOR_MAX_ITERATIONS"); ok {
		cfg.MaxIterations = n
	}
	if n, ok := envInt("PROGRAMMATOR_STAGNATION_LIMIT"); ok {
		cfg.StagnationLimit = n
	}
	if n, ok := envInt("PROGRAMMATOR_TIMEOUT"); ok {
		cfg.Timeout = n
	}
	if v := os.Getenv("PROGRAMMATOR_CLAUDE_FLAGS"); v != "" {
		cfg.ClaudeFlags = v
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// State holds the run-scoped counters. It is owned by a single loop.
type State struct {
	Iteration            int
	ConsecutiveNoChanges int
	LastError            string
	ConsecutiveErrors    int
	FilesChangedHistory  [][]string
}

func NewState() *State {
	return &State{
		FilesChangedHistory: make([][]string, 0),
	}
}

// RecordIteration folds one finished cycle into the counters. An empty err
// means the iteration reported no error.
func (s *State) RecordIteration(filesChanged []string, err string) {
	s.Iteration++
	s.FilesChangedHistory = append(s.FilesChangedHistory, append([]string{}, filesChanged...))

	if len(filesChanged) > 0 {
		s.ConsecutiveNoChanges = 0
	} else {
		s.ConsecutiveNoChanges++
	}

	if err != "" {
		if err == s.LastError {
			s.ConsecutiveErrors++
		} else {
			s.ConsecutiveErrors = 1
		}
		s.LastError = err
	} else {
		s.ConsecutiveErrors = 0
		s.LastError = ""
	}
}

// Clone returns a deep copy suitable for handing to another goroutine.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.FilesChangedHistory = make([][]string, len(s.FilesChangedHistory))
	for i, files := range s.FilesChangedHistory {
		c.FilesChangedHistory[i] = append([]string{}, files...)
	}
	return &c
}

type CheckResult struct {
	ShouldExit bool
	Reason     ExitReason
	Message    string
}

// Check decides whether another iteration may run. When several limits trip
// at once, max iterations wins, then stagnation, then the error streak.
func Check(cfg Config, state *State) CheckResult {
	if state.Iteration >= cfg.MaxIterations {
		return CheckResult{
			ShouldExit: true,
			Reason:     ExitReasonMaxIterations,
			Message:    fmt.Sprintf("Max iterations (%d) reached", cfg.MaxIterations),
		}
	}

	if state.ConsecutiveNoChanges >= cfg.StagnationLimit {
		return CheckResult{
			ShouldExit: true,
			Reason:     ExitReasonStagnation,
			Message:    fmt.Sprintf("No files changed in %d consecutive iterations", state.ConsecutiveNoChanges),
		}
	}

	if state.ConsecutiveErrors >= MaxConsecutiveErrors {
		return CheckResult{
			ShouldExit: true,
			Reason:     ExitReasonBlocked,
			Message:    fmt.Sprintf("Same error repeated %d times: %s", state.ConsecutiveErrors, state.LastError),
		}
	}

	return CheckResult{ShouldExit: false}
}
