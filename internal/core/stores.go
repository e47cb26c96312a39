package core

import (
	"context"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// PlanRepository is the subset of storage.PlanStore that core services need.
// Defining it here keeps core independent of the storage package.
type PlanRepository interface {
	Load(path string) (*models.Plan, error)
	Update(path string, fn func(*models.Plan) error) (*models.Plan, error)
	Commit(path string, plan *models.Plan) error
}

// AuditAppender appends entries to a plan's human-readable audit log.
type AuditAppender interface {
	Append(path, title, entry string) error
}

// RunCollector yields observations from a plan's run artifacts.
// This interface is defined locally in core to avoid importing integration.
type RunCollector interface {
	Collect(runsRoot string) ([]models.RunObservation, error)
}

// RunInspector reads a single run's artifacts for diagnosis.
type RunInspector interface {
	LatestRunDir(runsRoot string) (string, error)
	ReadMeta(runDir string) models.RunMeta
	ReadAgentPIDs(runDir string) (tasks []string, pids map[string]int)
	Tail(path string, maxLines int, maxBytes int64) (string, error)
	FindSessionID(logPath string) (string, error)
}

// ProcessController probes and terminates agent processes.
type ProcessController interface {
	Alive(pid int) bool
	Describe(ctx context.Context, pid int) (string, error)
	Terminate(ctx context.Context, pid int, grace time.Duration) models.TerminationReport
}
