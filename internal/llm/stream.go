package llm

import (
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ticketloop/programmator/internal/debug"
)

// Event types of the agent's stream-json protocol that carry text.
const (
	streamTypeAssistant = "assistant"
	streamTypeResult    = "result"
)

// ProcessStreamOutput decodes one JSON event per line from r. Text blocks of
// assistant events are passed to opts.OnOutput and accumulated in order. The
// result event's text is used only when no assistant text was seen.
// Blank, malformed and unknown lines are skipped.
func ProcessStreamOutput(r io.Reader, opts InvokeOptions) string {
	var text strings.Builder
	var fallback string

	err := eachLine(r, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if !gjson.Valid(line) {
			debug.Logf("stream: skipping malformed line: %.100s", line)
			return
		}

		event := gjson.Parse(line)
		switch event.Get("type").String() {
		case streamTypeAssistant:
			event.Get("message.content").ForEach(func(_, block gjson.Result) bool {
				if block.Get("type").String() != "text" {
					return true
				}
				if s := block.Get("text").String(); s != "" {
					text.WriteString(s)
					if opts.OnOutput != nil {
						opts.OnOutput(s)
					}
				}
				return true
			})
		case streamTypeResult:
			if s := event.Get("result").String(); s != "" && fallback == "" {
				fallback = s
			}
		default:
			debug.Logf("stream: ignoring event type=%q", event.Get("type").String())
		}
	})
	if err != nil {
		debug.Logf("stream: read error: %v", err)
	}

	if text.Len() == 0 {
		return fallback
	}
	return text.String()
}
