package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// HintClass groups run status hints by the transition they cause.
type HintClass int

const (
	// HintSuccess covers every hint that is not a known failure token.
	HintSuccess HintClass = iota
	// HintFailure moves a resumable task to blocked.
	HintFailure
)

func (c HintClass) String() string {
	if c == HintFailure {
		return "failure"
	}
	return "success"
}

var failureHints = map[string]bool{
	"partial": true,
	"timeout": true,
	"failed":  true,
	"error":   true,
}

// ClassifyStatusHint maps a run status hint to its HintClass. Matching is
// case-insensitive and ignores surrounding whitespace.
func ClassifyStatusHint(hint string) HintClass {
	if failureHints[strings.ToLower(strings.TrimSpace(hint))] {
		return HintFailure
	}
	return HintSuccess
}

// InvalidStatusReasonPrefix prefixes the blocked reason of a quarantined task.
const InvalidStatusReasonPrefix = models.InvalidStatusReasonPrefix

// Transition is one task status change made by a sync pass.
type Transition struct {
	TaskID string            `json:"task_id"`
	From   models.TaskStatus `json:"from"`
	To     models.TaskStatus `json:"to"`
	Reason string            `json:"reason,omitempty"`
}

// SyncResult summarizes a sync pass.
type SyncResult struct {
	// Changed counts tasks whose status changed.
	Changed      int          `json:"changed"`
	Transitions  []Transition `json:"transitions"`
	Observations int          `json:"observations"`
}

// PlanSynchronizer reconciles a plan with its agents' run results.
type PlanSynchronizer interface {
	// Sync collects observations under runsRoot and applies them to plan in
	// place.
	Sync(plan *models.Plan, runsRoot string) (*SyncResult, error)
}

type planSynchronizer struct {
	collector RunCollector
	now       func() time.Time
}

// NewPlanSynchronizer creates a PlanSynchronizer. now supplies the stamp for
// agent_done_at and blocked_at; nil means time.Now.
func NewPlanSynchronizer(collector RunCollector, now func() time.Time) PlanSynchronizer {
	if now == nil {
		now = time.Now
	}
	return &planSynchronizer{collector: collector, now: now}
}

func (s *planSynchronizer) Sync(plan *models.Plan, runsRoot string) (*SyncResult, error) {
	observations, err := s.collector.Collect(runsRoot)
	if err != nil {
		return nil, fmt.Errorf("collecting run results: %w", err)
	}
	return ApplyObservations(plan, observations, s.now()), nil
}

// ApplyObservations folds observations (ordered by ObservedAt ascending) into
// plan. Only the latest observation per task counts. Observations for tasks
// the plan does not have are ignored, and done or deferred tasks are never
// touched.
func ApplyObservations(plan *models.Plan, observations []models.RunObservation, now time.Time) *SyncResult {
	result := &SyncResult{Observations: len(observations), Transitions: []Transition{}}

	latest := make(map[string]models.RunObservation, len(observations))
	for _, obs := range observations {
		prev, seen := latest[obs.TaskID]
		if !seen || !obs.ObservedAt.Before(prev.ObservedAt) {
			latest[obs.TaskID] = obs
		}
	}

	stamp := formatStamp(now)
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		obs, ok := latest[task.ID]
		if !ok {
			continue
		}

		if task.Status.IsTerminal() {
			continue
		}

		// Provenance is recorded on the quarantine pass too, so a later pass
		// over the same runs leaves the task byte-identical.
		task.RunDir = obs.RunDir
		task.LastRunID = obs.RunID
		if task.DelegatedAt == "" {
			task.DelegatedAt = formatStamp(obs.ObservedAt)
		}

		if !task.Status.IsValid() {
			from := task.Status
			task.Status = models.StatusBlocked
			task.BlockedReason = InvalidStatusReasonPrefix + string(from)
			task.BlockedAt = stamp
			result.record(task.ID, from, task.Status, task.BlockedReason)
			continue
		}

		from := task.Status
		switch ClassifyStatusHint(obs.StatusHint) {
		case HintFailure:
			if task.Status != models.StatusBlocked {
				task.Status = models.StatusBlocked
				task.BlockedReason = obs.StatusHint
				task.BlockedAt = stamp
				result.record(task.ID, from, task.Status, obs.StatusHint)
			}
		case HintSuccess:
			if task.Status == models.StatusPending || task.Status == models.StatusInProgress {
				task.Status = models.StatusAgentDone
				task.AgentDoneAt = stamp
				result.record(task.ID, from, task.Status, obs.StatusHint)
			}
		}
	}
	return result
}

func (r *SyncResult) record(taskID string, from, to models.TaskStatus, reason string) {
	r.Changed++
	r.Transitions = append(r.Transitions, Transition{TaskID: taskID, From: from, To: to, Reason: reason})
}

// formatStamp renders provenance timestamps: UTC, second precision.
func formatStamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
