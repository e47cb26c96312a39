package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
	"pgregory.net/rapid"
)

var propertyHints = []string{"done", "agent_done", "success", "partial", "timeout", "failed", "error", ""}

// invalidStatuses are statuses a hand-edited plan may carry.
var invalidStatuses = []models.TaskStatus{"weird", "review", "DONE", "in-progress"}

// genStatus draws mostly allowed statuses, with invalid ones mixed in.
func genStatus(t *rapid.T, label string) models.TaskStatus {
	statuses := append(models.AllowedStatuses(), invalidStatuses...)
	return rapid.SampledFrom(statuses).Draw(t, label)
}

func genSyncPlan(t *rapid.T) *models.Plan {
	n := rapid.IntRange(1, 6).Draw(t, "nTasks")
	plan := &models.Plan{Goal: "g"}
	for i := 0; i < n; i++ {
		task := models.Task{
			ID:     fmt.Sprintf("task_%03d", i+1),
			Status: genStatus(t, "status"),
			Verify: []string{},
		}
		if task.Status == models.StatusBlocked {
			task.BlockedReason = "failed"
			task.BlockedAt = "2026-01-01T00:00:00Z"
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	return plan
}

func genObservations(t *rapid.T, nTasks int) []models.RunObservation {
	n := rapid.IntRange(0, 12).Draw(t, "nObs")
	obs := make([]models.RunObservation, 0, n)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	minute := 0
	for i := 0; i < n; i++ {
		minute += rapid.IntRange(0, 3).Draw(t, "gap")
		taskNum := rapid.IntRange(1, nTasks+1).Draw(t, "taskNum")
		obs = append(obs, models.RunObservation{
			TaskID:     fmt.Sprintf("task_%03d", taskNum),
			StatusHint: rapid.SampledFrom(propertyHints).Draw(t, "hint"),
			RunDir:     fmt.Sprintf("/runs/p/run-%02d", i),
			RunID:      fmt.Sprintf("r%02d", i),
			ObservedAt: base.Add(time.Duration(minute) * time.Minute),
		})
	}
	return obs
}

// Property: a second sync against the same artifacts changes nothing, including
// for tasks the first pass quarantined.
func TestProperty_SyncIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plan := genSyncPlan(rt)
		obs := genObservations(rt, len(plan.Tasks))

		ApplyObservations(plan, obs, fixedNow)
		afterFirst := plan.Clone()

		second := ApplyObservations(plan, obs, fixedNow.Add(time.Hour))
		if second.Changed != 0 {
			rt.Fatalf("second pass changed %d tasks: %+v", second.Changed, second.Transitions)
		}
		for i := range plan.Tasks {
			if fmt.Sprintf("%+v", plan.Tasks[i]) != fmt.Sprintf("%+v", afterFirst.Tasks[i]) {
				rt.Fatalf("task %s changed on second pass:\n%+v\n%+v", plan.Tasks[i].ID, afterFirst.Tasks[i], plan.Tasks[i])
			}
		}
	})
}

// Property: done and deferred tasks come out of sync exactly as they went in.
func TestProperty_SyncNeverClobbersTerminal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plan := genSyncPlan(rt)
		before := plan.Clone()
		obs := genObservations(rt, len(plan.Tasks))

		ApplyObservations(plan, obs, fixedNow)

		for i := range plan.Tasks {
			if !before.Tasks[i].Status.IsTerminal() {
				continue
			}
			if fmt.Sprintf("%+v", plan.Tasks[i]) != fmt.Sprintf("%+v", before.Tasks[i]) {
				rt.Fatalf("terminal task %s modified:\n%+v\n%+v", plan.Tasks[i].ID, before.Tasks[i], plan.Tasks[i])
			}
		}
	})
}

// Property: every status after sync is allowed, and only the transitions
// pending/in_progress -> agent_done and resumable -> blocked occur.
func TestProperty_SyncTransitionsAreLegal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plan := genSyncPlan(rt)
		obs := genObservations(rt, len(plan.Tasks))

		result := ApplyObservations(plan, obs, fixedNow)

		for _, task := range plan.Tasks {
			if !task.Status.IsValid() {
				rt.Fatalf("task %s left with invalid status %q", task.ID, task.Status)
			}
		}
		for _, tr := range result.Transitions {
			switch tr.To {
			case models.StatusAgentDone:
				if tr.From != models.StatusPending && tr.From != models.StatusInProgress {
					rt.Fatalf("illegal transition %+v", tr)
				}
				if ClassifyStatusHint(tr.Reason) != HintSuccess {
					rt.Fatalf("agent_done from failure hint: %+v", tr)
				}
			case models.StatusBlocked:
				if !tr.From.IsValid() {
					if tr.Reason != InvalidStatusReasonPrefix+string(tr.From) {
						rt.Fatalf("quarantine without invalid_status reason: %+v", tr)
					}
					continue
				}
				if tr.From == models.StatusBlocked || tr.From.IsTerminal() {
					rt.Fatalf("illegal transition %+v", tr)
				}
				if ClassifyStatusHint(tr.Reason) != HintFailure {
					rt.Fatalf("blocked from success hint: %+v", tr)
				}
			default:
				rt.Fatalf("unexpected transition target %+v", tr)
			}
		}
		if result.Changed != len(result.Transitions) {
			rt.Fatalf("Changed %d != %d transitions", result.Changed, len(result.Transitions))
		}
	})
}

// Property: the final run provenance of a resumable task comes from its
// latest observation.
func TestProperty_SyncLatestObservationWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plan := genSyncPlan(rt)
		obs := genObservations(rt, len(plan.Tasks))
		before := plan.Clone()

		ApplyObservations(plan, obs, fixedNow)

		latest := map[string]models.RunObservation{}
		for _, o := range obs {
			latest[o.TaskID] = o
		}
		for i, task := range plan.Tasks {
			o, ok := latest[task.ID]
			if !ok || before.Tasks[i].Status.IsTerminal() {
				continue
			}
			if task.LastRunID != o.RunID || task.RunDir != o.RunDir {
				rt.Fatalf("task %s provenance %q/%q, want latest %q/%q", task.ID, task.RunDir, task.LastRunID, o.RunDir, o.RunID)
			}
		}
	})
}

// Property: only the documented failure tokens classify as failures.
func TestProperty_ClassifyStatusHint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		hint := rapid.StringMatching(`[a-z_]{0,12}`).Draw(rt, "hint")
		want := HintSuccess
		switch hint {
		case "partial", "timeout", "failed", "error":
			want = HintFailure
		}
		if got := ClassifyStatusHint(hint); got != want {
			rt.Fatalf("ClassifyStatusHint(%q) = %v, want %v", hint, got, want)
		}
	})
}
