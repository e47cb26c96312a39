package observability

import (
	"fmt"
	"strconv"
	"time"
)

// Metrics holds counts derived from the event log.
type Metrics struct {
	Syncs          int            `json:"syncs"`
	PlansWritten   int            `json:"plans_written"`
	ChangedTasks   int            `json:"changed_tasks"`
	Transitions    map[string]int `json:"transitions_by_status"`
	BlockedReasons map[string]int `json:"blocked_reasons"`
	Verifications  int            `json:"verifications"`
	Diagnoses      int            `json:"diagnoses"`
	Kills          int            `json:"kills"`
	ForcedKills    int            `json:"forced_kills"`
	EventCount     int            `json:"event_count"`
	OldestEvent    *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	// Calculate aggregates events since the given time. A non-empty plan
	// restricts the aggregation to that plan's events.
	Calculate(since time.Time, plan string) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

func (mc *metricsCalculator) Calculate(since time.Time, plan string) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since, Plan: plan})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		Transitions:    make(map[string]int),
		BlockedReasons: make(map[string]int),
		EventCount:     len(events),
	}

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "plan.synced":
			m.Syncs++
			m.ChangedTasks += intValue(event.Data["changed"])
			if written, _ := event.Data["written"].(bool); written {
				m.PlansWritten++
			}
		case "task.status_changed":
			to, _ := event.Data["to"].(string)
			if to != "" {
				m.Transitions[to]++
			}
			if reason, _ := event.Data["reason"].(string); to == "blocked" && reason != "" {
				m.BlockedReasons[reason]++
			}
		case "task.verified":
			m.Verifications++
		case "run.diagnosed":
			m.Diagnoses++
		case "run.killed":
			m.Kills++
			if forced, _ := event.Data["forced"].(bool); forced {
				m.ForcedKills++
			}
		}
	}

	return m, nil
}

// intValue reads a JSON-decoded number.
func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// ParseSince turns a window such as "7d" or "24h" into the instant that
// far before now.
func ParseSince(window string, now time.Time) (time.Time, error) {
	if len(window) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", window)
	}

	suffix := window[len(window)-1]
	n, err := strconv.Atoi(window[:len(window)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q", window)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
