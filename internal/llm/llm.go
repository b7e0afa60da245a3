// Package llm defines the boundary to the coding agent process: the Invoker
// interface, its options, and the output decoders shared by implementations.
package llm

import (
	"context"
	"time"
)

// Invoker runs the agent once for a prompt and returns its captured output.
type Invoker interface {
	// Invoke sends the prompt to the agent and blocks until it exits or the
	// timeout in opts expires. A timeout is not an error: the result carries
	// a synthetic BLOCKED status block instead.
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*InvokeResult, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string, opts InvokeOptions) (*InvokeResult, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*InvokeResult, error) {
	return f(ctx, prompt, opts)
}

// InvokeOptions configures a single agent invocation.
type InvokeOptions struct {
	// WorkingDir for the agent subprocess.
	WorkingDir string

	// Streaming enables the stream-json event protocol.
	Streaming bool

	// ExtraFlags are appended to the agent command line.
	ExtraFlags []string

	// Timeout bounds the invocation. Zero means no limit beyond ctx.
	Timeout time.Duration

	// OnOutput is called with text as it arrives: one line at a time in text
	// mode, one text block at a time in streaming mode.
	OnOutput func(text string)

	// OnProcessStart is called with the PID once the process has started.
	// OnProcessEnd is called after it exits.
	OnProcessStart func(pid int)
	OnProcessEnd   func()
}

// InvokeResult holds the output of a completed invocation.
type InvokeResult struct {
	// Text is the captured output handed to the status parser.
	Text string
	// TimedOut is set when the process was killed by the timeout.
	TimedOut bool
	// ExitCode is the process exit status; -1 if it was killed.
	ExitCode int
	// Stderr holds diagnostic output that is not part of Text.
	Stderr string
}
