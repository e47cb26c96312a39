package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/pkg/models"
)

var validatePlan string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a plan file for schema and status problems",
	Long: `Load a plan and report every problem at once: missing tasks, missing
or duplicate ids, statuses outside the allowed set and missing verify
lists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}

		violations, err := Plans.Validate(validatePlan)
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return &models.ValidationError{Violations: violations}
		}

		_, path, _ := Plans.Resolve(validatePlan)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", successText(symbolSuccess), path)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validatePlan, "plan", "", "plan name (required)")
	_ = validateCmd.MarkFlagRequired("plan")
	registerPlanCompletions(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
