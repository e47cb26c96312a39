package models

import "time"

// RunObservation is one (task, status hint, run) fact read from a run's
// result artifacts. Only the latest observation per task is authoritative
// within a synchronization pass.
type RunObservation struct {
	TaskID     string
	StatusHint string
	RunDir     string
	RunID      string
	ObservedAt time.Time
}

// RunMeta is the subset of a run's meta.json that plansync reads.
// Missing keys are left at their zero values.
type RunMeta struct {
	CreatedAt     string
	RunID         string
	Status        string
	UpdatedAt     string
	CurrentTaskID string
	AgentPID      int
	HasAgentPID   bool
	AgentLogPath  string
	ThreadID      string
}

// TaskResult is a per-task terminal result record from results/<task_id>.json.
type TaskResult struct {
	TaskID string
	Status string
	Note   string
}

// TerminationReport records what a kill attempt did. Signal failures are
// collected in Errors rather than returned.
type TerminationReport struct {
	PID            int      `json:"pid"`
	GroupSignalled bool     `json:"group_signalled"`
	Signalled      bool     `json:"signalled"`
	Forced         bool     `json:"forced"`
	Exited         bool     `json:"exited"`
	Errors         []string `json:"errors,omitempty"`
}
