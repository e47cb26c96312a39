package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var completionInstall bool

// shellCompletion describes how one shell loads plansync completions.
type shellCompletion struct {
	generate func(w io.Writer) error
	// load is the one-liner that sources the script in a running session.
	load string
	// target returns the install path under home; nil means --install is
	// not supported.
	target func(home string) string
	// afterInstall prints shell-specific setup notes.
	afterInstall func(w io.Writer, target string)
}

var completionShells = map[string]shellCompletion{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		load:     `eval "$(plansync completion bash)"`,
		// Picked up by bash-completion >= 2.0.
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "plansync")
		},
		afterInstall: func(w io.Writer, target string) {
			fmt.Fprintf(w, "Restart your shell or run: source %s\n", target)
		},
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		load:     `eval "$(plansync completion zsh)"`,
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_plansync")
		},
		afterInstall: func(w io.Writer, target string) {
			fmt.Fprintln(w, "\nMake sure the directory is on your fpath (in ~/.zshrc):")
			fmt.Fprintf(w, "  fpath=(%s $fpath)\n", filepath.Dir(target))
			fmt.Fprintln(w, "  autoload -Uz compinit && compinit")
		},
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		load:     "plansync completion fish | source",
		target: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "plansync.fish")
		},
		afterInstall: func(w io.Writer, _ string) {
			fmt.Fprintln(w, "New fish sessions load it automatically.")
		},
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		load:     "plansync completion powershell | Out-String | Invoke-Expression",
	},
}

func supportedShells() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Print or install shell completions",
	Long: `Generate tab-completion for plansync commands and flags. Completion
also offers plan names for --plan, the plan's task ids for --task and task
statuses for --status.

Quick install:

  plansync completion bash --install
  plansync completion zsh --install
  plansync completion fish --install

Without --install the script is written to stdout and loading hints to
stderr, so it can be piped or eval'd. PowerShell users add the output of
'plansync completion powershell' to their profile.`,
	ValidArgs:   supportedShells(),
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipInit: "true"},
	RunE:        runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Write the script to the shell's per-user completion directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell, ok := completionShells[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: %s)", args[0], strings.Join(supportedShells(), ", "))
	}

	if completionInstall {
		return installCompletion(cmd.OutOrStdout(), args[0], shell)
	}

	hints := cmd.ErrOrStderr()
	fmt.Fprintf(hints, "# Load in the current session:\n#   %s\n", shell.load)
	if shell.target != nil {
		fmt.Fprintf(hints, "# Install permanently:\n#   plansync completion %s --install\n", args[0])
	}
	return shell.generate(cmd.OutOrStdout())
}

func installCompletion(out io.Writer, name string, shell shellCompletion) error {
	if shell.target == nil {
		return fmt.Errorf("--install is not supported for %s; add the output of 'plansync completion %s' to your profile", name, name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}

	target := shell.target(home)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	if err := writeCompletionFile(target, shell.generate); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s completions installed to %s\n", symbolSuccess, name, target)
	shell.afterInstall(out, target)
	return nil
}

// writeCompletionFile writes the generated script to target. A close error
// is reported when generation itself succeeded.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	f, err := os.Create(target) //nolint:gosec // G304: path under the user's home
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	if err := generate(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing completion file %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing completion file %s: %w", target, err)
	}
	return nil
}
