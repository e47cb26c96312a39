package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/pkg/models"
)

var (
	verifyPlan   string
	verifyTask   string
	verifyStatus string
	verifyNote   string
	verifyDryRun bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Record a manual verification outcome for a task",
	Long: `Set a task's status after checking its work by hand, stamp
verified_at and verified_by, and append an entry to the plan's MASTER.md.

The status defaults to done and is applied regardless of the current
status.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		report, err := Plans.Verify(core.VerifyRequest{
			Plan:   verifyPlan,
			TaskID: verifyTask,
			Status: models.TaskStatus(strings.TrimSpace(verifyStatus)),
			Note:   verifyNote,
			DryRun: verifyDryRun,
		})
		if err != nil {
			return err
		}

		if report.DryRun {
			fmt.Fprintf(out, "Would update: %s\n", report.PlanPath)
			fmt.Fprintf(out, "Would append: %s\n", report.AuditPath)
			fmt.Fprintln(out, strings.TrimRight(report.Entry, "\n"))
			return nil
		}
		fmt.Fprintf(out, "%s Updated %s and appended verification to %s\n", successText(symbolSuccess), report.PlanPath, report.AuditPath)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPlan, "plan", "", "plan name (required)")
	verifyCmd.Flags().StringVar(&verifyTask, "task", "", "task id (required)")
	verifyCmd.Flags().StringVar(&verifyStatus, "status", string(models.StatusDone), "status to set")
	verifyCmd.Flags().StringVar(&verifyNote, "note", "", "verification note")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "print the change without writing")
	_ = verifyCmd.MarkFlagRequired("plan")
	_ = verifyCmd.MarkFlagRequired("task")
	registerPlanCompletions(verifyCmd)
	rootCmd.AddCommand(verifyCmd)
}
