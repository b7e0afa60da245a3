// Package event defines the typed events the loop emits on its output sink.
// The TUI, the plain writer and the progress log all consume them.
package event

// Kind identifies the type of event.
type Kind int

const (
	// KindProg is a progress message from the loop itself.
	KindProg Kind = iota
	// KindWarning is a recoverable problem, such as a missing status block.
	KindWarning
	// KindOutput is a raw line of agent output in plain text mode.
	KindOutput
	// KindMarkdown is a text block from the agent's event stream.
	KindMarkdown
	// KindIterationSeparator is the header between loop iterations.
	KindIterationSeparator
)

func (k Kind) String() string {
	switch k {
	case KindProg:
		return "prog"
	case KindWarning:
		return "warning"
	case KindOutput:
		return "output"
	case KindMarkdown:
		return "markdown"
	case KindIterationSeparator:
		return "iteration"
	default:
		return "unknown"
	}
}

// Event is a single typed event.
type Event struct {
	Kind Kind
	Text string
}

// IsAgentOutput reports whether the event carries text produced by the agent.
func (e Event) IsAgentOutput() bool {
	return e.Kind == KindOutput || e.Kind == KindMarkdown
}

// Handler is a callback that receives typed events.
type Handler func(Event)

func Prog(text string) Event { return Event{Kind: KindProg, Text: text} }

func Warning(text string) Event { return Event{Kind: KindWarning, Text: text} }

func Output(text string) Event { return Event{Kind: KindOutput, Text: text} }

func Markdown(text string) Event { return Event{Kind: KindMarkdown, Text: text} }

func IterationSeparator(text string) Event { return Event{Kind: KindIterationSeparator, Text: text} }
