package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

var (
	// ErrNoPID is returned when a kill is requested but no agent pid can be
	// resolved for the run.
	ErrNoPID = errors.New("no PID available to kill")
	// ErrRunNotFound is returned when a plan has no run directories.
	ErrRunNotFound = errors.New("no run dirs found")
)

// DiagnoseRequest selects the run to diagnose and the actions to take.
type DiagnoseRequest struct {
	Plan     string
	RunDir   string
	// RunsRoot overrides the configured runs root; the plan slug is still
	// appended.
	RunsRoot string
	TaskID   string
	Kill     bool
	// Grace overrides the configured grace period when positive.
	Grace    time.Duration
	DryRun   bool
}

// KillOutcome describes a requested termination.
type KillOutcome struct {
	PID       int                       `json:"pid"`
	Grace     time.Duration             `json:"grace"`
	StartedAt string                    `json:"started_at"`
	DryRun    bool                      `json:"dry_run"`
	Report    *models.TerminationReport `json:"report,omitempty"`
}

// RerunAdvice holds suggested recovery commands. It is advisory only.
type RerunAdvice struct {
	Command       string   `json:"command"`
	ResumeCommand string   `json:"resume_command,omitempty"`
	ResumePrompt  []string `json:"resume_prompt,omitempty"`
}

// Diagnosis is everything the doctor learned about a run.
type Diagnosis struct {
	Plan           string       `json:"plan"`
	RunDir         string       `json:"run_dir"`
	MetaStatus     string       `json:"meta_status,omitempty"`
	MetaUpdatedAt  string       `json:"meta_updated_at,omitempty"`
	TaskID         string       `json:"task_id,omitempty"`
	PID            int          `json:"pid,omitempty"`
	HasPID         bool         `json:"has_pid"`
	Alive          bool         `json:"alive"`
	ProcessInfo    string       `json:"process_info,omitempty"`
	ResultsPath    string       `json:"results_path,omitempty"`
	ResultsPresent bool         `json:"results_present"`
	LogPath        string       `json:"log_path,omitempty"`
	LogPresent     bool         `json:"log_present"`
	LogTail        string       `json:"log_tail,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
	Kill           *KillOutcome `json:"kill,omitempty"`
	Rerun          *RerunAdvice `json:"rerun,omitempty"`
	// Notes collects non-fatal problems hit while inspecting.
	Notes []string `json:"notes,omitempty"`
}

// RunDoctor diagnoses stuck agent runs.
type RunDoctor interface {
	Diagnose(ctx context.Context, req DiagnoseRequest) (*Diagnosis, error)
}

type runDoctor struct {
	inspector RunInspector
	processes ProcessController
	cfg       models.Config
	events    EventLogger
	now       func() time.Time
}

// NewRunDoctor creates a RunDoctor. events may be nil.
func NewRunDoctor(inspector RunInspector, processes ProcessController, cfg models.Config, events EventLogger, now func() time.Time) RunDoctor {
	if now == nil {
		now = time.Now
	}
	return &runDoctor{
		inspector: inspector,
		processes: processes,
		cfg:       cfg,
		events:    events,
		now:       now,
	}
}

func (d *runDoctor) Diagnose(ctx context.Context, req DiagnoseRequest) (*Diagnosis, error) {
	slug, err := NormalizeSlug(req.Plan)
	if err != nil {
		return nil, fmt.Errorf("diagnosing run: %w", err)
	}

	baseRoot := d.cfg.RunsRoot
	if req.RunsRoot != "" {
		baseRoot = req.RunsRoot
	}

	runDir := req.RunDir
	if runDir == "" {
		runsRoot := models.Config{RunsRoot: baseRoot}.PlanRunsRoot(slug)
		runDir, err = d.inspector.LatestRunDir(runsRoot)
		if err != nil {
			return nil, fmt.Errorf("diagnosing run: %w", err)
		}
		if runDir == "" {
			return nil, fmt.Errorf("%w under: %s", ErrRunNotFound, runsRoot)
		}
	}

	meta := d.inspector.ReadMeta(runDir)
	taskKeys, pids := d.inspector.ReadAgentPIDs(runDir)

	diag := &Diagnosis{
		Plan:          slug,
		RunDir:        runDir,
		MetaStatus:    meta.Status,
		MetaUpdatedAt: meta.UpdatedAt,
		TaskID:        resolveTaskID(req.TaskID, meta, taskKeys),
	}

	if pid, ok := pids[diag.TaskID]; ok && diag.TaskID != "" {
		diag.PID, diag.HasPID = pid, true
	} else if meta.HasAgentPID {
		diag.PID, diag.HasPID = meta.AgentPID, true
	}

	if diag.HasPID {
		diag.Alive = d.processes.Alive(diag.PID)
		info, err := d.processes.Describe(ctx, diag.PID)
		if err != nil {
			diag.Notes = append(diag.Notes, err.Error())
		}
		diag.ProcessInfo = info
	}

	if diag.TaskID != "" {
		diag.ResultsPath = filepath.Join(runDir, "results", diag.TaskID+".json")
		diag.ResultsPresent = fileExists(diag.ResultsPath)
	}

	d.inspectLog(diag, meta)

	if req.Kill {
		if !diag.HasPID {
			return diag, ErrNoPID
		}
		diag.Kill = d.kill(ctx, diag.PID, req)
	}

	if diag.TaskID != "" {
		diag.Rerun = d.rerunAdvice(slug, baseRoot, runDir, diag.TaskID, diag.SessionID)
	}

	d.logEvent(EventRunDiagnosed, map[string]any{
		"plan":    slug,
		"run_dir": runDir,
		"task_id": diag.TaskID,
		"pid":     diag.PID,
		"alive":   diag.Alive,
	})
	return diag, nil
}

// resolveTaskID picks the explicit id, then the task the run was working on,
// then the last task with a recorded pid.
func resolveTaskID(explicit string, meta models.RunMeta, pidTasks []string) string {
	if explicit != "" {
		return explicit
	}
	if meta.CurrentTaskID != "" {
		return meta.CurrentTaskID
	}
	if len(pidTasks) > 0 {
		return pidTasks[len(pidTasks)-1]
	}
	return ""
}

func (d *runDoctor) inspectLog(diag *Diagnosis, meta models.RunMeta) {
	switch {
	case meta.AgentLogPath != "":
		diag.LogPath = meta.AgentLogPath
		if !filepath.IsAbs(diag.LogPath) {
			diag.LogPath = filepath.Join(diag.RunDir, diag.LogPath)
		}
	case diag.TaskID != "":
		diag.LogPath = filepath.Join(diag.RunDir, "agent_"+diag.TaskID+".log")
	}

	if diag.LogPath != "" && fileExists(diag.LogPath) {
		diag.LogPresent = true
		tail, err := d.inspector.Tail(diag.LogPath, d.cfg.Doctor.TailLines, d.cfg.Doctor.TailBytes)
		if err != nil {
			diag.Notes = append(diag.Notes, err.Error())
		}
		diag.LogTail = tail
	}

	if meta.ThreadID != "" {
		diag.SessionID = meta.ThreadID
		return
	}
	if diag.LogPresent {
		id, err := d.inspector.FindSessionID(diag.LogPath)
		if err != nil {
			diag.Notes = append(diag.Notes, err.Error())
		}
		diag.SessionID = id
	}
}

func (d *runDoctor) kill(ctx context.Context, pid int, req DiagnoseRequest) *KillOutcome {
	grace := d.cfg.Doctor.Grace()
	if req.Grace > 0 {
		grace = req.Grace
	}
	outcome := &KillOutcome{
		PID:       pid,
		Grace:     grace,
		StartedAt: formatStamp(d.now()),
		DryRun:    req.DryRun,
	}
	if req.DryRun {
		return outcome
	}

	report := d.processes.Terminate(ctx, pid, grace)
	outcome.Report = &report
	d.logEvent(EventRunKilled, map[string]any{
		"pid":     pid,
		"forced":  report.Forced,
		"exited":  report.Exited,
		"errors":  len(report.Errors),
		"task_id": req.TaskID,
	})
	return outcome
}

func (d *runDoctor) rerunAdvice(slug, runsRoot, runDir, taskID, sessionID string) *RerunAdvice {
	advice := &RerunAdvice{
		Command: fmt.Sprintf(
			"%s --plan-dir %s --code-dir %s --run-root %s --handshake results-json --compact-run --no-reuse-run --max-tasks 1 --task-id %s",
			d.cfg.Doctor.Orchestrator, d.cfg.PlanDir(slug), d.cfg.RepoRoot, runsRoot, taskID,
		),
	}
	if sessionID != "" {
		advice.ResumeCommand = fmt.Sprintf("codex exec resume %s -", sessionID)
		advice.ResumePrompt = []string{
			"- Read: " + filepath.Join(runDir, "tasks", taskID+".md"),
			"- Then ensure you write: " + filepath.Join(runDir, "results", taskID+".json") +
				" (include task_id + run_id if required by the task brief)",
		}
	}
	return advice
}

func (d *runDoctor) logEvent(eventType string, data map[string]any) {
	if d.events != nil {
		_ = d.events.LogEvent(eventType, data)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
