package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/ticketloop/programmator/internal/debug"
)

// eachLine calls fn for every line of r without its line ending. Lines
// have no length cap. On a read error the rest of r is discarded so the writer
// never blocks on a full pipe.
func eachLine(r io.Reader, fn func(line string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			fn(strings.TrimSuffix(line, "\r"))
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		_, _ = io.Copy(io.Discard, br)
		return err
	}
}

// ProcessTextOutput reads plain-text lines from r, calls opts.OnOutput for
// each line, and returns the accumulated output.
func ProcessTextOutput(r io.Reader, opts InvokeOptions) string {
	var output strings.Builder

	err := eachLine(r, func(line string) {
		line += "\n"
		output.WriteString(line)
		if opts.OnOutput != nil {
			opts.OnOutput(line)
		}
	})
	if err != nil {
		debug.Logf("text: read error: %v", err)
	}

	return output.String()
}
