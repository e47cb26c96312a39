package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/observability"
)

var (
	eventsPlan  string
	eventsTask  string
	eventsType  string
	eventsLevel string
	eventsSince string
	eventsLimit int
	eventsJSON  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent entries from the event log",
	Long: `Show the newest event log entries, oldest first. Filters combine:
--plan and --task match the event data, --type and --level match exactly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log unavailable")
		}

		filter := observability.EventFilter{
			Task:  eventsTask,
			Type:  eventsType,
			Level: strings.ToUpper(eventsLevel),
			Limit: eventsLimit,
		}
		if eventsSince != "" {
			since, err := observability.ParseSince(eventsSince, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}
		if eventsPlan != "" {
			if err := requirePlans(); err != nil {
				return err
			}
			slug, _, err := Plans.Resolve(eventsPlan)
			if err != nil {
				return err
			}
			filter.Plan = slug
		}

		events, err := EventLog.Read(filter)
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			if events == nil {
				events = []observability.Event{}
			}
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting events as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(out, "No events.")
			return nil
		}
		for _, e := range events {
			printEvent(out, e)
		}
		return nil
	},
}

func printEvent(w io.Writer, e observability.Event) {
	level := e.Level
	switch level {
	case "WARN":
		level = warnText(level)
	case "ERROR":
		level = errorText(level)
	default:
		level = dimText(level)
	}
	fmt.Fprintf(w, "%s %-5s %-20s %s", e.Time.UTC().Format(time.RFC3339), level, e.Type, e.Message)
	if details := eventDetails(e.Data); details != "" {
		fmt.Fprintf(w, " %s", dimText(details))
	}
	fmt.Fprintln(w)
}

// eventDetails renders data as sorted key=value pairs.
func eventDetails(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	eventsCmd.Flags().StringVar(&eventsPlan, "plan", "", "Only events for this plan")
	eventsCmd.Flags().StringVar(&eventsTask, "task", "", "Only events for this task id")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Only events of this type (e.g. task.status_changed)")
	eventsCmd.Flags().StringVar(&eventsLevel, "level", "", "Only events at this level (INFO, WARN, ERROR)")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events newer than this (e.g. 24h, 7d)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Show at most this many events (0 for all)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output events as JSON")
	registerPlanCompletions(eventsCmd)
	rootCmd.AddCommand(eventsCmd)
}
