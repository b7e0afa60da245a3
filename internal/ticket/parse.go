package ticket

import (
	"regexp"
	"strings"

	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/protocol"
)

const frontmatterMarker = "---"

var phaseRe = regexp.MustCompile(`^- \[([ x])\] (.+)`)

// Parse builds a Ticket from the text printed by `ticket show`.
//
// The first "---" line opens the frontmatter and the second closes it; only
// its status: line is read. The first "# " heading is the title. Every other
// line goes to the body, and body lines shaped like "- [ ] name" or
// "- [x] name" become phases in order of appearance.
func Parse(id, content string) *domain.Ticket {
	t := &domain.Ticket{
		ID:     id,
		Status: protocol.TicketOpen,
	}

	var body []string
	markers := 0
	inFrontmatter := false
	haveTitle := false

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if strings.TrimSpace(line) == frontmatterMarker {
			markers++
			inFrontmatter = markers == 1
			continue
		}

		if inFrontmatter {
			if v, ok := strings.CutPrefix(line, "status:"); ok {
				t.Status = strings.TrimSpace(v)
			}
			continue
		}

		if !haveTitle && strings.HasPrefix(line, "# ") {
			t.Title = strings.TrimSpace(line[2:])
			haveTitle = true
			continue
		}

		body = append(body, line)

		if m := phaseRe.FindStringSubmatch(line); m != nil {
			t.Phases = append(t.Phases, domain.Phase{
				Name:      strings.TrimSpace(m[2]),
				Completed: m[1] == "x",
			})
		}
	}

	t.Body = strings.Join(body, "\n")
	return t
}
