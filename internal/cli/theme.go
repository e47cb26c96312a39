package cli

import "github.com/fatih/color"

// Status symbols.
const (
	symbolSuccess = "✓"
	symbolError   = "✗"
	symbolWarning = "⚠"
)

// Color helpers. fatih/color disables them itself when stdout is not a
// terminal or NO_COLOR is set.
var (
	successText = color.New(color.FgGreen).SprintFunc()
	errorText   = color.New(color.FgRed).SprintFunc()
	warnText    = color.New(color.FgYellow).SprintFunc()
	labelText   = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText     = color.New(color.FgHiBlack).SprintFunc()
)

// statusText colors a task status for line output.
func statusText(status string) string {
	switch status {
	case "done":
		return successText(status)
	case "agent_done":
		return labelText(status)
	case "blocked":
		return errorText(status)
	case "in_progress":
		return warnText(status)
	case "pending", "deferred":
		return dimText(status)
	default:
		return errorText(status + " (invalid)")
	}
}
