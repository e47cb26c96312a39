package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	alertsPlan   string
	alertsNotify bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show plan health alerts",
	Long: `Evaluate a plan's tasks and display any triggered alerts.

Alerts fire for tasks blocked longer than alerts.blocked_hours, tasks
awaiting verification longer than alerts.review_days, tasks in progress
longer than alerts.stale_days, and tasks with an invalid or quarantined
status. With --notify the alerts are also posted to notify.slack_webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}
		if alertsNotify && Notifier == nil {
			return fmt.Errorf("--notify requires notify.slack_webhook to be configured")
		}

		slug, _, err := Plans.Resolve(alertsPlan)
		if err != nil {
			return err
		}
		plan, err := Plans.Load(slug)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		alerts := AlertEngine.Evaluate(slug, plan, time.Now())
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Message)
			fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}

		if alertsNotify {
			if err := Notifier.Notify(commandContext(cmd), alerts); err != nil {
				return fmt.Errorf("sending notifications: %w", err)
			}
			fmt.Fprintf(out, "%s Sent %d alert(s) to Slack.\n", successText(symbolSuccess), len(alerts))
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().StringVar(&alertsPlan, "plan", "", "plan name (required)")
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "post the alerts to the configured Slack webhook")
	_ = alertsCmd.MarkFlagRequired("plan")
	registerPlanCompletions(alertsCmd)
	rootCmd.AddCommand(alertsCmd)
}
