package models

// TaskStatus represents the current lifecycle state of a delegated task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusAgentDone  TaskStatus = "agent_done"
	StatusDone       TaskStatus = "done"
	StatusDeferred   TaskStatus = "deferred"
	StatusBlocked    TaskStatus = "blocked"
)

// AllowedStatuses returns the six task statuses in lifecycle order.
func AllowedStatuses() []TaskStatus {
	return []TaskStatus{
		StatusPending,
		StatusInProgress,
		StatusAgentDone,
		StatusBlocked,
		StatusDone,
		StatusDeferred,
	}
}

// IsValid reports whether s is one of the allowed statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusAgentDone, StatusDone, StatusDeferred, StatusBlocked:
		return true
	}
	return false
}

// IsTerminal reports whether s is a terminal status. Terminal tasks are never
// touched by synchronization.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusDeferred
}

// InvalidStatusReasonPrefix prefixes the blocked reason of a task whose
// stored status was outside the allowed set.
const InvalidStatusReasonPrefix = "invalid_status:"

// VerifiedByManual is the verified_by value stamped by manual verification.
const VerifiedByManual = "manual"

// Task is one delegable, independently verifiable unit of work in a Plan.
//
// Provenance fields hold RFC3339 timestamps as strings so that values written
// by the planner or other tools survive a load/save cycle untouched.
type Task struct {
	ID            string
	Title         string
	Description   string
	ExpectedFiles []string
	// Verify is nil when the record has no verify key at all.
	Verify       []string
	DoneCriteria []string
	DependsOn    []string
	Status       TaskStatus

	RunDir        string
	LastRunID     string
	DelegatedAt   string
	AgentDoneAt   string
	BlockedAt     string
	BlockedReason string
	VerifiedAt    string
	VerifiedBy    string
	VerifiedNote  string

	// Extra holds keys outside the known task schema. They are written back
	// unchanged and never interpreted.
	Extra map[string]any

	// IDKey is the record key the id was read from ("id" or "task_id").
	IDKey string
}
