package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// RepoInit is the RepoInitializer used by the init command.
// Set by main; init runs without loading configuration.
var RepoInit core.RepoInitializer

var (
	initPlansDir string
	initFormat   string
	initRunsRoot string
	initPlan     string
	initGoal     string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Prepare a repository for plansync",
	Long: `Write a .plansync.yaml with default settings and create the plans
directory. With --plan, also scaffold an empty plan file.

Safe to run on existing repositories: files that already exist are
skipped and not overwritten.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipInit: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if RepoInit == nil {
			return fmt.Errorf("%w: repo initializer unavailable", errNotInitialized)
		}

		root := repoFlag
		if len(args) > 0 {
			root = args[0]
		}
		if root == "" {
			root = "."
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		result, err := RepoInit.Init(core.InitConfig{
			RepoRoot:   absRoot,
			PlansDir:   initPlansDir,
			PlanFormat: models.PlanFormat(initFormat),
			RunsRoot:   initRunsRoot,
			Plan:       initPlan,
			Goal:       initGoal,
		})
		if err != nil {
			return fmt.Errorf("initializing repo: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(result.Created) > 0 {
			fmt.Fprintln(out, "Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absRoot, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintln(out, "Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absRoot, p)
				fmt.Fprintf(out, "  %s\n", dimText(rel))
			}
		}
		fmt.Fprintf(out, "\n%s plansync initialized at %s\n", successText(symbolSuccess), absRoot)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPlansDir, "plans-dir", core.DefaultPlansDir, "plans directory relative to the repo root")
	initCmd.Flags().StringVar(&initFormat, "format", string(models.PlanFormatJSON), "plan file format (json or yaml)")
	initCmd.Flags().StringVar(&initRunsRoot, "runs-root", "", "runs root to record in the config (default: $CODEX_RUN_ROOT or ~/.codex/runs)")
	initCmd.Flags().StringVar(&initPlan, "plan", "", "scaffold an empty plan with this name")
	initCmd.Flags().StringVar(&initGoal, "goal", "", "goal for the scaffolded plan")
	rootCmd.AddCommand(initCmd)
}
