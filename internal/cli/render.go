package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
)

const boxWidth = 76

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	thinkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	deniedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	resultBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("10")).Padding(0, 1).Width(boxWidth)
	warningBox = resultBox.BorderForeground(lipgloss.Color("11"))
	failureBox = resultBox.BorderForeground(lipgloss.Color("9"))
)

// renderResult draws the final answer in a box colored by status
func renderResult(r *agent.RunResult) string {
	box := resultBox
	switch r.Status {
	case agent.StatusMaxSteps:
		box = warningBox
	case agent.StatusBlocked, agent.StatusRejected:
		box = failureBox
	}

	title := titleStyle.Render("Result")
	meta := dimStyle.Render(fmt.Sprintf("status: %s  steps: %d  duration: %s  trace: %s",
		r.Status, r.Iterations, r.Duration.Round(time.Millisecond), r.TraceID))
	return box.Render(strings.Join([]string{title, "", r.Result, "", meta}, "\n"))
}

// printRecord writes one line of live progress for a history entry
func printRecord(w io.Writer, rec agent.StepRecord, showThinking bool) {
	prefix := dimStyle.Render(fmt.Sprintf("[%d]", rec.Iteration))

	switch rec.Kind {
	case agent.RecordAction:
		if t, ok := rec.Action.(action.Tool); ok {
			fmt.Fprintf(w, "%s %s\n", prefix, toolStyle.Render(action.Describe(t)))
		}
	case agent.RecordThought:
		if showThinking {
			fmt.Fprintf(w, "%s %s\n", prefix, thinkStyle.Render("thinking: "+rec.Thought))
		}
	case agent.RecordObservation:
		fmt.Fprintf(w, "%s %s\n", prefix, dimStyle.Render(observationLine(rec.Observation)))
	case agent.RecordError:
		fmt.Fprintf(w, "%s %s\n", prefix, errorStyle.Render(rec.Error))
	case agent.RecordConsentDenied:
		fmt.Fprintf(w, "%s %s\n", prefix, deniedStyle.Render("denied: "+rec.Operation))
	}
}

func observationLine(obs map[string]interface{}) string {
	if msg, ok := obs["error"]; ok {
		return fmt.Sprintf("error: %v", msg)
	}
	line := fmt.Sprintf("%v", obs)
	if r := []rune(line); len(r) > 120 {
		line = string(r[:120]) + "..."
	}
	return "-> " + line
}
