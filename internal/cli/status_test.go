package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

func stampHoursAgo(h int) string {
	return time.Now().UTC().Add(-time.Duration(h) * time.Hour).Format(time.RFC3339)
}

func TestStatusCmd_Table(t *testing.T) {
	env := newCLIEnv(t)
	blocked := planTask("task_002", models.StatusBlocked)
	blocked.BlockedAt = stampHoursAgo(48)
	blocked.BlockedReason = "timeout"
	env.savePlan(t, "add-auth",
		planTask("task_001", models.StatusDone),
		blocked,
		planTask("task_003", "wip"),
	)
	statusPlan = "add-auth"

	out, _, err := run(t, statusCmd)
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	for _, want := range []string{
		"Plan: add-auth (revision 0)",
		"Goal: ship auth",
		"Counts: blocked=1 done=1 wip=1 (invalid)",
		"STATUS",
		"task_002",
		"(timeout)",
		"Alerts:",
		"[HIGH]",
		"[MEDIUM]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCmd_JSON(t *testing.T) {
	env := newCLIEnv(t)
	env.savePlan(t, "add-auth", planTask("task_001", models.StatusPending), planTask("task_002", models.StatusPending))
	statusPlan, statusJSON = "add-auth", true

	out, _, err := run(t, statusCmd)
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	var got struct {
		Plan   string         `json:"plan"`
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("bad JSON: %v\n%s", err, out)
	}
	if got.Plan != "add-auth" || got.Counts["pending"] != 2 {
		t.Errorf("status = %+v", got)
	}
}

func TestFormatCounts(t *testing.T) {
	tests := []struct {
		name  string
		tasks []models.Task
		want  string
	}{
		{"empty", nil, "no tasks"},
		{"lifecycle order", []models.Task{
			planTask("a", models.StatusDone),
			planTask("b", models.StatusPending),
			planTask("c", models.StatusPending),
		}, "pending=2 done=1"},
		{"invalid sorted last", []models.Task{
			planTask("a", "zeta"),
			planTask("b", "alpha"),
			planTask("c", models.StatusBlocked),
		}, "blocked=1 alpha=1 (invalid) zeta=1 (invalid)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCounts(&models.Plan{Tasks: tt.tasks}); got != tt.want {
				t.Errorf("formatCounts() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskActivity(t *testing.T) {
	tests := []struct {
		name string
		task models.Task
		want string
	}{
		{"verified", models.Task{Status: models.StatusDone, VerifiedAt: "2026-04-01T00:00:00Z"}, "verified 2026-04-01T00:00:00Z"},
		{"blocked", models.Task{Status: models.StatusBlocked, BlockedAt: "2026-04-01T00:00:00Z", BlockedReason: "failed"}, "blocked 2026-04-01T00:00:00Z (failed)"},
		{"agent done", models.Task{Status: models.StatusAgentDone, AgentDoneAt: "2026-04-01T00:00:00Z"}, "agent done 2026-04-01T00:00:00Z"},
		{"delegated fallback", models.Task{Status: models.StatusInProgress, DelegatedAt: "2026-03-31T00:00:00Z"}, "delegated 2026-03-31T00:00:00Z"},
		{"nothing", models.Task{Status: models.StatusPending}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := taskActivity(&tt.task); got != tt.want {
				t.Errorf("taskActivity() = %q, want %q", got, tt.want)
			}
		})
	}
}
