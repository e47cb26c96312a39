package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	repoFlag    string
	configFlag  string
	noColorFlag bool
)

// skipInit marks commands that run without loading configuration.
const skipInit = "plansync/skip-init"

var rootCmd = &cobra.Command{
	Use:   "plansync",
	Short: "Reconcile delegated task plans with agent run results",
	Long: `plansync keeps a per-change plan file in step with the artifacts written
by out-of-process coding agent runs.

It synchronizes task statuses from run results, records manual
verification in the plan's MASTER.md audit log, and diagnoses or
terminates stuck agent runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColorFlag {
			color.NoColor = true
		}
		if cmd.Annotations[skipInit] == "true" || Initializer == nil {
			return nil
		}
		repo := repoFlag
		if repo == "" {
			repo = ResolveRepoRoot()
		}
		return Initializer(repo, configFlag)
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipInit: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "plansync %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

// ResolveRepoRoot returns $PLANSYNC_REPO, else the nearest directory at or
// above the working directory holding .plansync.yaml, .plans or .git, else
// the working directory.
func ResolveRepoRoot() string {
	if repo := os.Getenv("PLANSYNC_REPO"); repo != "" {
		return repo
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		for _, marker := range []string{".plansync.yaml", ".plans", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository root (default: nearest directory with .plansync.yaml, .plans or .git)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: <repo>/.plansync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
