package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// completionServices initializes services for shell completion, which runs
// without the root PersistentPreRunE.
func completionServices() bool {
	if Plans != nil && Config != nil {
		return true
	}
	if Initializer == nil {
		return false
	}
	repo := repoFlag
	if repo == "" {
		repo = ResolveRepoRoot()
	}
	return Initializer(repo, configFlag) == nil && Plans != nil && Config != nil
}

// completePlanNames lists plan directories that hold a plan file.
func completePlanNames(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !completionServices() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	entries, err := os.ReadDir(filepath.Join(Config.RepoRoot, Config.PlansDir))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), toComplete) {
			continue
		}
		if _, err := os.Stat(Config.PlanPath(entry.Name())); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeTaskIDs lists the task IDs of the plan named by --plan, with each
// task's status and title as the description.
func completeTaskIDs(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	plan, _ := cmd.Flags().GetString("plan")
	if plan == "" || !completionServices() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	p, err := Plans.Load(plan)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, task := range p.Tasks {
		if strings.HasPrefix(task.ID, toComplete) {
			ids = append(ids, task.ID+"\t"+string(task.Status)+": "+task.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeStatuses returns the allowed task statuses.
func completeStatuses(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	descriptions := map[models.TaskStatus]string{
		models.StatusPending:    "Not started",
		models.StatusInProgress: "Delegated to an agent",
		models.StatusAgentDone:  "Agent finished, awaiting verification",
		models.StatusBlocked:    "Failed or needs attention",
		models.StatusDone:       "Verified complete",
		models.StatusDeferred:   "Postponed",
	}
	var out []string
	for _, s := range models.AllowedStatuses() {
		out = append(out, string(s)+"\t"+descriptions[s])
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerPlanCompletions registers --plan and, when present, --task
// completion on cmd.
func registerPlanCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("plan", completePlanNames)
	if cmd.Flags().Lookup("task") != nil {
		_ = cmd.RegisterFlagCompletionFunc("task", completeTaskIDs)
	}
	if cmd.Flags().Lookup("status") != nil {
		_ = cmd.RegisterFlagCompletionFunc("status", completeStatuses)
	}
}
