package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBlockedTooLong = "task_blocked_too_long"
	ConditionQuarantined    = "task_quarantined"
	ConditionInvalidStatus  = "task_invalid_status"
	ConditionAwaitingReview = "task_awaiting_verification"
	ConditionStale          = "task_stale"
	// ConditionNewlyBlocked is raised by sync for tasks it just blocked.
	ConditionNewlyBlocked = "task_newly_blocked"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Plan        string        `json:"plan"`
	TaskID      string        `json:"task_id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. A zero threshold disables the
// corresponding age check.
type AlertThresholds struct {
	BlockedHours int `json:"blocked_hours"`
	ReviewDays   int `json:"review_days"`
	StaleDays    int `json:"stale_days"`
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours: 24,
		ReviewDays:   3,
		StaleDays:    5,
	}
}

// ThresholdsFromConfig converts the alerts section of the configuration.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	return AlertThresholds{
		BlockedHours: cfg.BlockedHours,
		ReviewDays:   cfg.ReviewDays,
		StaleDays:    cfg.StaleDays,
	}
}

// AlertEngine evaluates alert conditions against a plan's task provenance.
type AlertEngine interface {
	// Evaluate returns the alerts for the named plan in task order.
	Evaluate(planName string, plan *models.Plan, now time.Time) []Alert
}

type alertEngine struct {
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given thresholds.
func NewAlertEngine(thresholds AlertThresholds) AlertEngine {
	return &alertEngine{thresholds: thresholds}
}

func (ae *alertEngine) Evaluate(planName string, plan *models.Plan, now time.Time) []Alert {
	if plan == nil {
		return nil
	}
	now = now.UTC()
	var alerts []Alert
	for i := range plan.Tasks {
		if a, ok := ae.check(&plan.Tasks[i], now); ok {
			a.Plan = planName
			a.TriggeredAt = now
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// check returns at most one alert per task; a task is in exactly one status.
func (ae *alertEngine) check(task *models.Task, now time.Time) (Alert, bool) {
	switch {
	case !task.Status.IsValid():
		return Alert{
			ID:        "invalid-" + task.ID,
			TaskID:    task.ID,
			Condition: ConditionInvalidStatus,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("task %s has unknown status %q and will be quarantined on the next sync", task.ID, task.Status),
		}, true

	case task.Status == models.StatusBlocked && strings.HasPrefix(task.BlockedReason, models.InvalidStatusReasonPrefix):
		return Alert{
			ID:        "quarantined-" + task.ID,
			TaskID:    task.ID,
			Condition: ConditionQuarantined,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("task %s was quarantined (%s) and needs manual repair", task.ID, task.BlockedReason),
		}, true

	case task.Status == models.StatusBlocked:
		age, ok := since(task.BlockedAt, now)
		limit := time.Duration(ae.thresholds.BlockedHours) * time.Hour
		if !ok || limit <= 0 || age <= limit {
			return Alert{}, false
		}
		return Alert{
			ID:        "blocked-" + task.ID,
			TaskID:    task.ID,
			Condition: ConditionBlockedTooLong,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("task %s has been blocked (%s) for more than %d hours", task.ID, task.BlockedReason, ae.thresholds.BlockedHours),
		}, true

	case task.Status == models.StatusAgentDone:
		age, ok := since(task.AgentDoneAt, now)
		limit := days(ae.thresholds.ReviewDays)
		if !ok || limit <= 0 || age <= limit {
			return Alert{}, false
		}
		return Alert{
			ID:        "review-" + task.ID,
			TaskID:    task.ID,
			Condition: ConditionAwaitingReview,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("task %s has been awaiting verification for more than %d days", task.ID, ae.thresholds.ReviewDays),
		}, true

	case task.Status == models.StatusInProgress:
		age, ok := since(task.DelegatedAt, now)
		limit := days(ae.thresholds.StaleDays)
		if !ok || limit <= 0 || age <= limit {
			return Alert{}, false
		}
		return Alert{
			ID:        "stale-" + task.ID,
			TaskID:    task.ID,
			Condition: ConditionStale,
			Severity:  SeverityLow,
			Message:   fmt.Sprintf("task %s has been in progress for more than %d days", task.ID, ae.thresholds.StaleDays),
		}, true
	}
	return Alert{}, false
}

// since parses an RFC3339 provenance stamp and returns its age.
func since(stamp string, now time.Time) (time.Duration, bool) {
	if stamp == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
