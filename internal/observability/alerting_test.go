package observability

import (
	"testing"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

var alertNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func stampAgo(d time.Duration) string {
	return alertNow.Add(-d).Format(time.RFC3339)
}

func TestAlertEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		task      models.Task
		condition string
		severity  AlertSeverity
	}{
		{
			name:      "blocked past threshold",
			task:      models.Task{ID: "task_001", Status: models.StatusBlocked, BlockedReason: "timeout", BlockedAt: stampAgo(30 * time.Hour)},
			condition: ConditionBlockedTooLong,
			severity:  SeverityHigh,
		},
		{
			name: "blocked within threshold",
			task: models.Task{ID: "task_002", Status: models.StatusBlocked, BlockedReason: "failed", BlockedAt: stampAgo(2 * time.Hour)},
		},
		{
			name:      "quarantined regardless of age",
			task:      models.Task{ID: "task_003", Status: models.StatusBlocked, BlockedReason: "invalid_status:review", BlockedAt: stampAgo(time.Minute)},
			condition: ConditionQuarantined,
			severity:  SeverityHigh,
		},
		{
			name:      "unknown status",
			task:      models.Task{ID: "task_004", Status: "review"},
			condition: ConditionInvalidStatus,
			severity:  SeverityMedium,
		},
		{
			name:      "agent done awaiting verification",
			task:      models.Task{ID: "task_005", Status: models.StatusAgentDone, AgentDoneAt: stampAgo(4 * 24 * time.Hour)},
			condition: ConditionAwaitingReview,
			severity:  SeverityMedium,
		},
		{
			name: "agent done recently",
			task: models.Task{ID: "task_006", Status: models.StatusAgentDone, AgentDoneAt: stampAgo(time.Hour)},
		},
		{
			name:      "in progress for too long",
			task:      models.Task{ID: "task_007", Status: models.StatusInProgress, DelegatedAt: stampAgo(6 * 24 * time.Hour)},
			condition: ConditionStale,
			severity:  SeverityLow,
		},
		{
			name: "unparseable stamp",
			task: models.Task{ID: "task_008", Status: models.StatusBlocked, BlockedAt: "yesterday"},
		},
		{
			name: "done never alerts",
			task: models.Task{ID: "task_009", Status: models.StatusDone, AgentDoneAt: stampAgo(100 * 24 * time.Hour)},
		},
	}

	engine := NewAlertEngine(DefaultAlertThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &models.Plan{Tasks: []models.Task{tt.task}}
			alerts := engine.Evaluate("demo", plan, alertNow)

			if tt.condition == "" {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("expected 1 alert, got %d: %+v", len(alerts), alerts)
			}
			a := alerts[0]
			if a.Condition != tt.condition || a.Severity != tt.severity {
				t.Errorf("alert = %s/%s, want %s/%s", a.Condition, a.Severity, tt.condition, tt.severity)
			}
			if a.Plan != "demo" || a.TaskID != tt.task.ID || !a.TriggeredAt.Equal(alertNow) {
				t.Errorf("alert metadata = %+v", a)
			}
		})
	}
}

func TestAlertEngine_ZeroThresholdDisables(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{
		{ID: "task_001", Status: models.StatusBlocked, BlockedAt: stampAgo(1000 * time.Hour)},
		{ID: "task_002", Status: models.StatusAgentDone, AgentDoneAt: stampAgo(1000 * time.Hour)},
	}}
	alerts := NewAlertEngine(AlertThresholds{}).Evaluate("p", plan, alertNow)
	if len(alerts) != 0 {
		t.Errorf("expected no alerts with zero thresholds, got %+v", alerts)
	}
}

func TestAlertEngine_PreservesTaskOrder(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{
		{ID: "task_b", Status: "bogus"},
		{ID: "task_a", Status: "other"},
	}}
	alerts := NewAlertEngine(DefaultAlertThresholds()).Evaluate("p", plan, alertNow)
	if len(alerts) != 2 || alerts[0].TaskID != "task_b" || alerts[1].TaskID != "task_a" {
		t.Errorf("alerts out of task order: %+v", alerts)
	}
	if NewAlertEngine(DefaultAlertThresholds()).Evaluate("p", nil, alertNow) != nil {
		t.Error("expected nil alerts for nil plan")
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	got := ThresholdsFromConfig(models.AlertConfig{BlockedHours: 1, ReviewDays: 2, StaleDays: 3})
	if got != (AlertThresholds{BlockedHours: 1, ReviewDays: 2, StaleDays: 3}) {
		t.Errorf("ThresholdsFromConfig = %+v", got)
	}
}
