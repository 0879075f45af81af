// Package console is a terminal decision channel used by one-shot triage
// runs. It prints the request and reads the verdict from an input stream.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/lucasnoah/triagegate/internal/decision"
)

// Channel implements decision.Publisher on a reader/writer pair.
type Channel struct {
	in  *bufio.Scanner
	out io.Writer

	mu       sync.Mutex
	resolver decision.Resolver
	reading  bool
}

var _ decision.Publisher = (*Channel)(nil)

// New creates a terminal channel.
func New(in io.Reader, out io.Writer) *Channel {
	return &Channel{in: bufio.NewScanner(in), out: out}
}

// Bind attaches the resolver that typed verdicts are sent to.
func (c *Channel) Bind(r decision.Resolver) {
	c.mu.Lock()
	c.resolver = r
	c.mu.Unlock()
}

// Publish prints the request and starts reading the verdict on its own
// goroutine. End of input leaves the decision unresolved.
func (c *Channel) Publish(_ context.Context, req decision.Request) error {
	c.mu.Lock()
	r := c.resolver
	busy := c.reading
	if r != nil && !busy {
		c.reading = true
	}
	c.mu.Unlock()
	if r == nil {
		return fmt.Errorf("console channel has no resolver bound")
	}
	if busy {
		return fmt.Errorf("console channel is already waiting for a decision")
	}

	c.render(req)
	go func() {
		defer func() {
			c.mu.Lock()
			c.reading = false
			c.mu.Unlock()
		}()
		rec, ok := c.read(req)
		if !ok {
			fmt.Fprintln(c.out, "No input; waiting for the decision to time out.")
			return
		}
		if !r.ResolveRequest(req.Issue, req.ID, rec) {
			fmt.Fprintf(c.out, "Issue #%d is no longer pending a decision.\n", req.Issue)
		}
	}()
	return nil
}

func (c *Channel) render(req decision.Request) {
	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(c.out, "\n%s #%d: %s\n", bold("Triage required for issue"), req.Issue, req.Title)
	fmt.Fprintf(c.out, "  Severity: %s\n", yellow(req.Severity))
	if req.IsDuplicate {
		fmt.Fprintf(c.out, "  Possible duplicate of #%d (Similarity: %.1f%%)\n", req.DuplicateOf, req.SimilarityScore*100)
		if req.ProposedComment != "" {
			fmt.Fprintf(c.out, "  Proposed comment:\n%s\n", indent(req.ProposedComment))
		}
	} else {
		fmt.Fprintf(c.out, "  Summary: %s\n", req.Summary)
	}
	if !req.Deadline.IsZero() {
		fmt.Fprintf(c.out, "  Decide before %s\n", req.Deadline.Local().Format("15:04:05"))
	}
}

// read loops until a recognised verdict or end of input.
func (c *Channel) read(req decision.Request) (decision.Record, bool) {
	for {
		fmt.Fprint(c.out, "[a]pprove, [r]eject or [m]odify? ")
		line, ok := c.line()
		if !ok {
			return decision.Record{}, false
		}
		switch strings.ToLower(line) {
		case "a", "approve", "y", "yes":
			return decision.Approve("console", nil), true
		case "r", "reject", "n", "no":
			return decision.Reject("console"), true
		case "m", "modify":
			return c.readOverride(req)
		}
		fmt.Fprintf(c.out, "Unrecognised answer %q.\n", line)
	}
}

func (c *Channel) readOverride(req decision.Request) (decision.Record, bool) {
	o := &decision.Override{Modified: true}

	fmt.Fprintf(c.out, "Severity [%s]: ", req.Severity)
	sev, ok := c.line()
	if !ok {
		return decision.Record{}, false
	}
	o.Severity = sev

	if req.IsDuplicate {
		fmt.Fprint(c.out, "Comment (blank keeps the proposed one): ")
	} else {
		fmt.Fprint(c.out, "Summary (blank keeps the AI summary): ")
	}
	text, ok := c.line()
	if !ok {
		return decision.Record{}, false
	}
	if req.IsDuplicate {
		o.Comment = text
	} else {
		o.Summary = text
	}
	return decision.Approve("console", o), true
}

func (c *Channel) line() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
