package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
)

var (
	doctorPlan       string
	doctorRunDir     string
	doctorRunRoot    string
	doctorTask       string
	doctorKill       bool
	doctorGrace      float64
	doctorPrintRerun bool
	doctorDryRun     bool
	doctorJSON       bool
)

// ExitCodeError asks main to exit with Code without printing anything more;
// the command has already reported the problem.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }
func (e *ExitCodeError) Unwrap() error { return e.Err }

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose a stuck agent run and optionally kill it",
	Long: `Inspect the latest (or a given) run of a plan: the agent process, the
task's result file, the agent log tail and the agent session id.

With --kill the agent's process group is sent SIGTERM, then SIGKILL once
the grace period passes. With --print-rerun the commands to rerun or
resume the task are printed; they are never executed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Doctor == nil {
			return fmt.Errorf("%w: run doctor unavailable", errNotInitialized)
		}
		out := cmd.OutOrStdout()

		runDir := doctorRunDir
		if runDir != "" {
			abs, err := filepath.Abs(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			runDir = abs
		}

		diag, err := Doctor.Diagnose(commandContext(cmd), core.DiagnoseRequest{
			Plan:     doctorPlan,
			RunDir:   runDir,
			RunsRoot: doctorRunRoot,
			TaskID:   doctorTask,
			Kill:     doctorKill,
			Grace:    time.Duration(doctorGrace * float64(time.Second)),
			DryRun:   doctorDryRun,
		})
		if diag == nil {
			return err
		}

		if doctorJSON {
			data, jerr := json.MarshalIndent(diag, "", "  ")
			if jerr != nil {
				return fmt.Errorf("formatting diagnosis as JSON: %w", jerr)
			}
			fmt.Fprintln(out, string(data))
		} else {
			printDiagnosis(out, diag)
		}

		if errors.Is(err, core.ErrNoPID) {
			if !doctorJSON {
				fmt.Fprintln(out, "No PID available to kill.")
			}
			return &ExitCodeError{Code: 2, Err: err}
		}
		if err != nil {
			return err
		}

		if !doctorJSON {
			printKill(out, diag.Kill)
			if doctorPrintRerun {
				printRerun(out, diag.Rerun)
			}
		}
		return nil
	},
}

func printDiagnosis(w io.Writer, d *core.Diagnosis) {
	fmt.Fprintf(w, "run_dir: %s\n", d.RunDir)
	fmt.Fprintf(w, "meta.status: %s\n", orMissing(d.MetaStatus))
	fmt.Fprintf(w, "meta.updated_at: %s\n", orMissing(d.MetaUpdatedAt))
	if d.TaskID != "" {
		fmt.Fprintf(w, "task: %s\n", d.TaskID)
	}

	if d.HasPID {
		state := errorText("not running")
		if d.Alive {
			state = successText("alive")
		}
		fmt.Fprintf(w, "agent_pid: %d (%s)\n", d.PID, state)
		if d.ProcessInfo != "" {
			fmt.Fprintln(w, d.ProcessInfo)
		}
	} else {
		fmt.Fprintln(w, "agent_pid: (not found)")
	}

	if d.ResultsPresent {
		fmt.Fprintf(w, "results: %s\n", d.ResultsPath)
	} else {
		fmt.Fprintln(w, "results: (missing)")
	}

	if d.LogPresent {
		fmt.Fprintf(w, "log: %s\n", d.LogPath)
		fmt.Fprintln(w, "--- log tail ---")
		fmt.Fprintln(w, strings.TrimRight(d.LogTail, "\n"))
		fmt.Fprintln(w, "--- /log tail ---")
	} else {
		fmt.Fprintln(w, "log: (missing)")
	}

	if d.SessionID != "" {
		fmt.Fprintf(w, "thread_id: %s\n", d.SessionID)
	} else {
		fmt.Fprintln(w, "thread_id: (missing)")
	}

	for _, note := range d.Notes {
		fmt.Fprintf(w, "%s %s\n", warnText(symbolWarning), note)
	}
}

func printKill(w io.Writer, k *core.KillOutcome) {
	if k == nil {
		return
	}
	if k.DryRun {
		fmt.Fprintf(w, "Would kill PID %d (process group) with a %s grace period.\n", k.PID, k.Grace)
		return
	}
	fmt.Fprintf(w, "Killing PID %d (process group) at %s ...\n", k.PID, k.StartedAt)
	if k.Report != nil {
		for _, e := range k.Report.Errors {
			fmt.Fprintf(w, "%s %s\n", warnText(symbolWarning), e)
		}
		if k.Report.Forced {
			fmt.Fprintln(w, dimText("SIGKILL sent after the grace period."))
		}
		if !k.Report.Exited {
			fmt.Fprintf(w, "%s PID %d is still running.\n", errorText(symbolError), k.PID)
		}
	}
	fmt.Fprintln(w, "Done.")
}

func printRerun(w io.Writer, r *core.RerunAdvice) {
	if r == nil {
		return
	}
	fmt.Fprintln(w, "\nrerun_command:")
	fmt.Fprintln(w, r.Command)
	if r.ResumeCommand == "" {
		return
	}
	fmt.Fprintln(w, "\nresume_command:")
	fmt.Fprintln(w, r.ResumeCommand)
	fmt.Fprintln(w, "resume_prompt:")
	for _, line := range r.ResumePrompt {
		fmt.Fprintln(w, line)
	}
}

func orMissing(s string) string {
	if s == "" {
		return "(missing)"
	}
	return s
}

func init() {
	doctorCmd.Flags().StringVar(&doctorPlan, "plan", "", "plan name (required)")
	doctorCmd.Flags().StringVar(&doctorRunDir, "run-dir", "", "run directory (default: latest run of the plan)")
	doctorCmd.Flags().StringVar(&doctorRunRoot, "run-root", "", "runs root to search (default: runs.root); the plan name is appended")
	doctorCmd.Flags().StringVar(&doctorTask, "task", "", "task id (default: the run's current task)")
	doctorCmd.Flags().BoolVar(&doctorKill, "kill", false, "terminate the agent's process group")
	doctorCmd.Flags().Float64Var(&doctorGrace, "grace-seconds", 0, "seconds between SIGTERM and SIGKILL (default: doctor.grace_seconds)")
	doctorCmd.Flags().BoolVar(&doctorPrintRerun, "print-rerun", false, "print rerun and resume commands")
	doctorCmd.Flags().BoolVar(&doctorDryRun, "dry-run", false, "with --kill, report the kill without sending signals")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the diagnosis as JSON")
	_ = doctorCmd.MarkFlagRequired("plan")
	registerPlanCompletions(doctorCmd)
	rootCmd.AddCommand(doctorCmd)
}
