package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/pkg/models"
)

var (
	syncPlan    string
	syncRunRoot string
	syncDryRun  bool
	syncStrict  bool
	syncVerbose bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update task statuses from agent run results",
	Long: `Read every run under <runs.root>/<plan> and fold the latest result per
task into the plan.

Successful results move pending and in_progress tasks to agent_done.
Results reporting partial, timeout, failed or error move the task to
blocked. Done and deferred tasks are never changed. Tasks with a status
outside the allowed set are quarantined as blocked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if syncStrict {
			violations, err := Plans.Validate(syncPlan)
			if err != nil {
				return err
			}
			if len(violations) > 0 {
				return &models.ValidationError{Violations: violations}
			}
		}

		report, err := Plans.Sync(core.SyncRequest{Plan: syncPlan, RunsRoot: syncRunRoot, DryRun: syncDryRun})
		if err != nil {
			return err
		}

		if !report.RunsFound {
			fmt.Fprintf(out, "No runs found at: %s (nothing to sync)\n", report.RunsRoot)
			return nil
		}

		changed := report.Result.Changed
		if syncVerbose || syncDryRun {
			for _, tr := range report.Result.Transitions {
				fmt.Fprintf(out, "  %s: %s -> %s %s\n", tr.TaskID, statusText(string(tr.From)), statusText(string(tr.To)), dimText(tr.Reason))
			}
		}

		switch {
		case report.DryRun:
			fmt.Fprintf(out, "Would update: %s (changed_tasks=%d)\n", report.PlanPath, changed)
		case report.Written:
			fmt.Fprintf(out, "%s Updated %s (changed_tasks=%d)\n", successText(symbolSuccess), report.PlanPath, changed)
			notify(cmd, newlyBlockedAlerts(report, time.Now().UTC()))
		default:
			fmt.Fprintln(out, "No changes needed.")
		}
		return nil
	},
}

// newlyBlockedAlerts raises one alert per task the sync moved to blocked.
func newlyBlockedAlerts(report *core.SyncReport, now time.Time) []observability.Alert {
	var alerts []observability.Alert
	for _, tr := range report.Result.Transitions {
		if tr.To != models.StatusBlocked {
			continue
		}
		severity := observability.SeverityMedium
		msg := fmt.Sprintf("task %s moved from %s to blocked (%s)", tr.TaskID, tr.From, tr.Reason)
		if strings.HasPrefix(tr.Reason, core.InvalidStatusReasonPrefix) {
			severity = observability.SeverityHigh
			msg = fmt.Sprintf("task %s was quarantined: %s", tr.TaskID, tr.Reason)
		}
		alerts = append(alerts, observability.Alert{
			ID:          "newly-blocked-" + tr.TaskID,
			Plan:        report.Plan,
			TaskID:      tr.TaskID,
			Condition:   observability.ConditionNewlyBlocked,
			Severity:    severity,
			Message:     msg,
			TriggeredAt: now,
		})
	}
	return alerts
}

func init() {
	syncCmd.Flags().StringVar(&syncPlan, "plan", "", "plan name (required)")
	syncCmd.Flags().StringVar(&syncRunRoot, "run-root", "", "runs root override; the plan name is appended")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report changes without writing the plan")
	syncCmd.Flags().BoolVar(&syncStrict, "strict", false, "refuse to sync a plan that fails validation")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "print every status transition")
	_ = syncCmd.MarkFlagRequired("plan")
	registerPlanCompletions(syncCmd)
	rootCmd.AddCommand(syncCmd)
}
