package consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	Padding(0, 2).
	Bold(true)

// CLIPrompter asks for consent on a terminal. A single goroutine owns the
// reader, so a line typed after a prompt timed out goes to the next prompt.
type CLIPrompter struct {
	reader *bufio.Reader
	writer io.Writer

	start sync.Once
	lines chan lineResult
}

// NewCLIPrompter creates a prompter reading answers from reader
func NewCLIPrompter(reader io.Reader, writer io.Writer) *CLIPrompter {
	return &CLIPrompter{
		reader: bufio.NewReader(reader),
		writer: writer,
		lines:  make(chan lineResult),
	}
}

type lineResult struct {
	line string
	err  error
}

// readLines feeds lines until the reader fails, then closes the channel
func (c *CLIPrompter) readLines() {
	defer close(c.lines)
	for {
		line, err := c.reader.ReadString('\n')
		c.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Prompt displays the request and loops until a valid choice is entered.
// EOF and context expiry deny.
func (c *CLIPrompter) Prompt(ctx context.Context, req Request) (Decision, error) {
	c.start.Do(func() { go c.readLines() })
	c.displayRequest(req)

	for {
		fmt.Fprint(c.writer, "Your choice [a/d/A/D/s/?]: ")

		var res lineResult
		select {
		case r, ok := <-c.lines:
			if !ok {
				r = lineResult{err: io.EOF}
			}
			res = r
		case <-ctx.Done():
			fmt.Fprintln(c.writer, "\n  Consent request TIMED OUT")
			return Deny, ctx.Err()
		}

		choice := strings.TrimSpace(res.line)
		if res.err != nil && choice == "" {
			if res.err == io.EOF {
				fmt.Fprintln(c.writer, "\n  Operation DENIED (no input)")
				return Deny, nil
			}
			return Deny, fmt.Errorf("failed to read input: %w", res.err)
		}

		switch choice {
		case "a":
			fmt.Fprintln(c.writer, "  Operation APPROVED")
			return Allow, nil
		case "d":
			fmt.Fprintln(c.writer, "  Operation DENIED")
			return Deny, nil
		case "A":
			fmt.Fprintln(c.writer, "  ALL operations APPROVED for this session")
			return AllowAllSession, nil
		case "D":
			fmt.Fprintln(c.writer, "  ALL operations DENIED for this session")
			return DenyAllSession, nil
		case "s":
			fmt.Fprintf(c.writer, "  '%s' on %s APPROVED for this session\n", req.Operation, req.Target)
			return AllowOperationForSession, nil
		case "?":
			c.displayDetails(req)
		default:
			log.Debug().Str("input", choice).Msg("Invalid consent choice")
			fmt.Fprintln(c.writer, "  Invalid choice. Please enter a, d, A, D, s, or ?")
		}
	}
}

func (c *CLIPrompter) displayRequest(req Request) {
	fmt.Fprintln(c.writer)
	fmt.Fprintln(c.writer, bannerStyle.Render("AGENT CONSENT REQUEST"))
	fmt.Fprintf(c.writer, "  Operation:  %s\n", req.Operation)
	fmt.Fprintf(c.writer, "  Target:     %s\n", req.Target)
	fmt.Fprintf(c.writer, "  Risk Level: %s\n", strings.ToUpper(string(req.Risk)))
	fmt.Fprintln(c.writer)
	fmt.Fprintln(c.writer, "  [a] Allow this operation")
	fmt.Fprintln(c.writer, "  [d] Deny this operation")
	fmt.Fprintln(c.writer, "  [A] Allow ALL operations (session)")
	fmt.Fprintln(c.writer, "  [D] Deny ALL operations (session)")
	fmt.Fprintln(c.writer, "  [s] Allow this operation on this target for the session")
	fmt.Fprintln(c.writer, "  [?] Show more details")
	fmt.Fprintln(c.writer)
}

func (c *CLIPrompter) displayDetails(req Request) {
	fmt.Fprintln(c.writer, "  ----------------------------------------")
	fmt.Fprintln(c.writer, "  DETAILED INFORMATION")

	switch {
	case strings.HasPrefix(req.Operation, "file."):
		fmt.Fprintf(c.writer, "  Target Path: %s\n", req.subject())
		if info, err := os.Stat(req.subject()); err == nil {
			fmt.Fprintf(c.writer, "  File Exists: Yes (%d bytes)\n", info.Size())
		} else {
			fmt.Fprintln(c.writer, "  File Exists: No")
		}
	case req.Operation == "shell.exec" || req.Operation == "code.exec":
		fmt.Fprintln(c.writer, "  WARNING: this operation can modify your system")
	}

	if args, ok := req.Details["args"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := fmt.Sprint(args[k])
			if len(value) > 200 {
				value = value[:200] + "..."
			}
			fmt.Fprintf(c.writer, "  %s: %s\n", k, value)
		}
	}
	fmt.Fprintln(c.writer, "  ----------------------------------------")
}

// StaticPrompter answers every prompt with queued decisions, then denies.
// Useful for non-interactive front ends and tests.
type StaticPrompter struct {
	decisions []Decision
	calls     int
}

// NewStaticPrompter creates a prompter replaying decisions in order
func NewStaticPrompter(decisions ...Decision) *StaticPrompter {
	return &StaticPrompter{decisions: decisions}
}

// Prompt returns the next queued decision
func (s *StaticPrompter) Prompt(ctx context.Context, req Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Deny, err
	}
	defer func() { s.calls++ }()
	if s.calls < len(s.decisions) {
		return s.decisions[s.calls], nil
	}
	return Deny, nil
}

// Calls returns how many prompts were answered
func (s *StaticPrompter) Calls() int {
	return s.calls
}
