package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/pkg/models"
)

var (
	statusPlan string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a plan's tasks with status, provenance and alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}
		slug, path, err := Plans.Resolve(statusPlan)
		if err != nil {
			return err
		}
		plan, err := Plans.Load(slug)
		if err != nil {
			return err
		}

		var alerts []observability.Alert
		if AlertEngine != nil {
			alerts = AlertEngine.Evaluate(slug, plan, time.Now())
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			data, err := json.MarshalIndent(map[string]any{
				"plan":     slug,
				"path":     path,
				"revision": plan.Revision,
				"counts":   plan.StatusCounts(),
				"alerts":   alerts,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "%s %s (revision %d)\n", labelText("Plan:"), slug, plan.Revision)
		if plan.Goal != "" {
			fmt.Fprintf(out, "%s %s\n", labelText("Goal:"), plan.Goal)
		}
		fmt.Fprintf(out, "%s %s\n\n", labelText("Counts:"), formatCounts(plan))
		fmt.Fprintln(out, renderTaskTable(plan))
		printAlerts(out, alerts)
		return nil
	},
}

// formatCounts renders counts in lifecycle order, then any invalid statuses.
func formatCounts(plan *models.Plan) string {
	counts := plan.StatusCounts()
	var parts []string
	for _, s := range models.AllowedStatuses() {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
			delete(counts, s)
		}
	}
	invalid := make([]string, 0, len(counts))
	for s := range counts {
		invalid = append(invalid, string(s))
	}
	sort.Strings(invalid)
	for _, s := range invalid {
		parts = append(parts, fmt.Sprintf("%s=%d (invalid)", s, counts[models.TaskStatus(s)]))
	}
	if len(parts) == 0 {
		return "no tasks"
	}
	return strings.Join(parts, " ")
}

// taskActivity returns the most relevant provenance stamp for a task.
func taskActivity(t *models.Task) string {
	switch t.Status {
	case models.StatusDone, models.StatusDeferred:
		if t.VerifiedAt != "" {
			return "verified " + t.VerifiedAt
		}
	case models.StatusBlocked:
		if t.BlockedAt != "" {
			return fmt.Sprintf("blocked %s (%s)", t.BlockedAt, t.BlockedReason)
		}
	case models.StatusAgentDone:
		if t.AgentDoneAt != "" {
			return "agent done " + t.AgentDoneAt
		}
	}
	if t.DelegatedAt != "" {
		return "delegated " + t.DelegatedAt
	}
	return ""
}

func renderTaskTable(plan *models.Plan) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(plan.Tasks))
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		rows = append(rows, []string{t.ID, string(t.Status), t.Title, t.LastRunID, taskActivity(t)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATUS", "TITLE", "LAST RUN", "ACTIVITY").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return cellStyle.Foreground(statusColor(models.TaskStatus(rows[row][1])))
			}
			return cellStyle
		}).
		String()
}

func statusColor(s models.TaskStatus) lipgloss.Color {
	switch s {
	case models.StatusDone:
		return lipgloss.Color("46")
	case models.StatusAgentDone:
		return lipgloss.Color("141")
	case models.StatusBlocked:
		return lipgloss.Color("196")
	case models.StatusInProgress:
		return lipgloss.Color("226")
	case models.StatusPending, models.StatusDeferred:
		return lipgloss.Color("245")
	default:
		return lipgloss.Color("208")
	}
}

func printAlerts(w io.Writer, alerts []observability.Alert) {
	if len(alerts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", labelText("Alerts:"))
	for _, a := range alerts {
		marker := warnText(symbolWarning)
		if a.Severity == observability.SeverityHigh {
			marker = errorText(symbolError)
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", marker, strings.ToUpper(string(a.Severity)), a.Message)
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusPlan, "plan", "", "plan name (required)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print counts and alerts as JSON")
	_ = statusCmd.MarkFlagRequired("plan")
	registerPlanCompletions(statusCmd)
	rootCmd.AddCommand(statusCmd)
}
