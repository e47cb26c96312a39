package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/observability"
)

var (
	metricsJSON  bool
	metricsSince string
	metricsPlan  string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display sync, verification and kill metrics",
	Long: `Display aggregated metrics derived from the event log: syncs and the
tasks they changed, transitions by target status, blocked reasons,
manual verifications, run diagnoses and kills.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log unavailable)")
		}

		sinceTime, err := observability.ParseSince(metricsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		plan := ""
		if metricsPlan != "" && Plans != nil {
			if plan, _, err = Plans.Resolve(metricsPlan); err != nil {
				return err
			}
		}

		metrics, err := MetricsCalc.Calculate(sinceTime, plan)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Syncs:", metrics.Syncs)
		fmt.Fprintf(out, "  %-24s %d\n", "Plans written:", metrics.PlansWritten)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks changed:", metrics.ChangedTasks)
		fmt.Fprintf(out, "  %-24s %d\n", "Manual verifications:", metrics.Verifications)
		fmt.Fprintf(out, "  %-24s %d\n", "Run diagnoses:", metrics.Diagnoses)
		fmt.Fprintf(out, "  %-24s %d (%d forced)\n", "Kills:", metrics.Kills, metrics.ForcedKills)

		printCounts(out, "Transitions by status:", metrics.Transitions)
		printCounts(out, "Blocked reasons:", metrics.BlockedReasons)

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}
		return nil
	},
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n  %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-20s %d\n", k+":", counts[k])
	}
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	metricsCmd.Flags().StringVar(&metricsPlan, "plan", "", "Restrict metrics to one plan")
	registerPlanCompletions(metricsCmd)
	rootCmd.AddCommand(metricsCmd)
}
