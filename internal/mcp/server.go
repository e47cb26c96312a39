// Package mcp provides an MCP (Model Context Protocol) server that exposes
// plan operations as tools for coding agents.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/internal/storage"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// Server wraps plansync services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	plans       core.PlanService
	doctor      core.RunDoctor
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// when the event log is unavailable.
func NewServer(plans core.PlanService, doctor core.RunDoctor, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		plans:       plans,
		doctor:      doctor,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "plansync", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves on stdio, blocking until the client disconnects or the context
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type planInput struct {
	Plan string `json:"plan" jsonschema:"the plan name; normalized to its slug"`
}

type taskOutput struct {
	ID            string   `json:"id"`
	Title         string   `json:"title,omitempty"`
	Status        string   `json:"status"`
	DependsOn     []string `json:"depends_on,omitempty"`
	ExpectedFiles []string `json:"expected_files,omitempty"`
	Verify        []string `json:"verify,omitempty"`
	DoneCriteria  []string `json:"done_criteria,omitempty"`
	RunDir        string   `json:"run_dir,omitempty"`
	LastRunID     string   `json:"last_run_id,omitempty"`
	DelegatedAt   string   `json:"delegated_at,omitempty"`
	AgentDoneAt   string   `json:"agent_done_at,omitempty"`
	BlockedAt     string   `json:"blocked_at,omitempty"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
	VerifiedAt    string   `json:"verified_at,omitempty"`
	VerifiedBy    string   `json:"verified_by,omitempty"`
	VerifiedNote  string   `json:"verified_note,omitempty"`
}

type getPlanOutput struct {
	Plan     string         `json:"plan"`
	Path     string         `json:"path"`
	Goal     string         `json:"goal,omitempty"`
	Revision int            `json:"revision"`
	Counts   map[string]int `json:"counts"`
	Tasks    []taskOutput   `json:"tasks"`
}

type validatePlanOutput struct {
	Plan       string   `json:"plan"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

type syncPlanInput struct {
	Plan   string `json:"plan" jsonschema:"the plan name"`
	DryRun bool   `json:"dry_run,omitempty" jsonschema:"compute changes without writing the plan"`
}

type transitionOutput struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type syncPlanOutput struct {
	Plan         string             `json:"plan"`
	PlanPath     string             `json:"plan_path"`
	RunsRoot     string             `json:"runs_root"`
	RunsFound    bool               `json:"runs_found"`
	Changed      int                `json:"changed"`
	Observations int                `json:"observations"`
	Transitions  []transitionOutput `json:"transitions"`
	Written      bool               `json:"written"`
	Revision     int                `json:"revision"`
	DryRun       bool               `json:"dry_run"`
}

type markVerifiedInput struct {
	Plan   string `json:"plan" jsonschema:"the plan name"`
	TaskID string `json:"task_id" jsonschema:"the task to mark"`
	Status string `json:"status,omitempty" jsonschema:"the status to set (pending, in_progress, agent_done, blocked, done, deferred). Defaults to done."`
	Note   string `json:"note,omitempty" jsonschema:"free-form verification note recorded on the task and in MASTER.md"`
	// Revision guards against overwriting changes made since the caller read
	// the plan.
	Revision *int `json:"revision,omitempty" jsonschema:"the plan revision returned by get_plan; the write is rejected if the plan has changed since"`
	DryRun   bool `json:"dry_run,omitempty" jsonschema:"report the change without writing"`
}

type markVerifiedOutput struct {
	Plan      string `json:"plan"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	AuditPath string `json:"audit_path"`
	Entry     string `json:"entry"`
	DryRun    bool   `json:"dry_run"`
}

type diagnoseRunInput struct {
	Plan   string `json:"plan" jsonschema:"the plan name"`
	RunDir string `json:"run_dir,omitempty" jsonschema:"the run directory; defaults to the latest run of the plan"`
	TaskID string `json:"task_id,omitempty" jsonschema:"the task to inspect; defaults to the run's current task"`
}

type diagnoseRunOutput struct {
	RunDir         string   `json:"run_dir"`
	MetaStatus     string   `json:"meta_status,omitempty"`
	MetaUpdatedAt  string   `json:"meta_updated_at,omitempty"`
	TaskID         string   `json:"task_id,omitempty"`
	PID            int      `json:"pid,omitempty"`
	Alive          bool     `json:"alive"`
	ProcessInfo    string   `json:"process_info,omitempty"`
	ResultsPath    string   `json:"results_path,omitempty"`
	ResultsPresent bool     `json:"results_present"`
	LogPath        string   `json:"log_path,omitempty"`
	LogTail        string   `json:"log_tail,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	RerunCommand   string   `json:"rerun_command,omitempty"`
	ResumeCommand  string   `json:"resume_command,omitempty"`
	ResumePrompt   []string `json:"resume_prompt,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window (e.g. 7d or 24h). Defaults to 7d."`
	Plan  string `json:"plan,omitempty" jsonschema:"restrict metrics to one plan"`
}

type metricsOutput struct {
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
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Plan   string        `json:"plan"`
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_plan",
		Description: "Get a plan with its revision, per-status counts and every task including provenance fields.",
	}, s.handleGetPlan)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "validate_plan",
		Description: "Validate a plan and return every violation found.",
	}, s.handleValidatePlan)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "sync_plan",
		Description: "Reconcile task statuses with the results written by agent runs. Done and deferred tasks are never changed.",
	}, s.handleSyncPlan)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_verified",
		Description: "Record a manual verification: set a task's status, stamp verification provenance and append an entry to the plan's MASTER.md.",
	}, s.handleMarkVerified)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "diagnose_run",
		Description: "Inspect an agent run: process status, results presence, log tail, session id and rerun advice. Never kills anything.",
	}, s.handleDiagnoseRun)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Aggregate the event log: syncs, changed tasks, transitions by status, verifications, diagnoses and kills.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate plan health alerts: long-blocked, quarantined, awaiting verification and stale tasks.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetPlan(_ context.Context, _ *gomcp.CallToolRequest, input planInput) (*gomcp.CallToolResult, getPlanOutput, error) {
	if input.Plan == "" {
		return errorResult("plan is required"), getPlanOutput{}, nil
	}

	slug, path, err := s.plans.Resolve(input.Plan)
	if err != nil {
		return errorResult(fmt.Sprintf("resolving plan: %s", err)), getPlanOutput{}, nil
	}
	plan, err := s.plans.Load(slug)
	if err != nil {
		return errorResult(err.Error()), getPlanOutput{}, nil
	}

	out := getPlanOutput{
		Plan:     slug,
		Path:     path,
		Goal:     plan.Goal,
		Revision: plan.Revision,
		Counts:   make(map[string]int),
		Tasks:    make([]taskOutput, len(plan.Tasks)),
	}
	for status, n := range plan.StatusCounts() {
		out.Counts[string(status)] = n
	}
	for i := range plan.Tasks {
		out.Tasks[i] = taskToOutput(&plan.Tasks[i])
	}
	return nil, out, nil
}

func (s *Server) handleValidatePlan(_ context.Context, _ *gomcp.CallToolRequest, input planInput) (*gomcp.CallToolResult, validatePlanOutput, error) {
	if input.Plan == "" {
		return errorResult("plan is required"), validatePlanOutput{}, nil
	}

	violations, err := s.plans.Validate(input.Plan)
	if err != nil {
		return errorResult(err.Error()), validatePlanOutput{}, nil
	}
	slug, _, _ := s.plans.Resolve(input.Plan)
	if violations == nil {
		violations = []string{}
	}
	return nil, validatePlanOutput{Plan: slug, Valid: len(violations) == 0, Violations: violations}, nil
}

func (s *Server) handleSyncPlan(_ context.Context, _ *gomcp.CallToolRequest, input syncPlanInput) (*gomcp.CallToolResult, syncPlanOutput, error) {
	if input.Plan == "" {
		return errorResult("plan is required"), syncPlanOutput{}, nil
	}

	report, err := s.plans.Sync(core.SyncRequest{Plan: input.Plan, DryRun: input.DryRun})
	if err != nil {
		return errorResult(err.Error()), syncPlanOutput{}, nil
	}

	out := syncPlanOutput{
		Plan:        report.Plan,
		PlanPath:    report.PlanPath,
		RunsRoot:    report.RunsRoot,
		RunsFound:   report.RunsFound,
		Transitions: []transitionOutput{},
		Written:     report.Written,
		Revision:    report.Revision,
		DryRun:      report.DryRun,
	}
	if r := report.Result; r != nil {
		out.Changed = r.Changed
		out.Observations = r.Observations
		for _, tr := range r.Transitions {
			out.Transitions = append(out.Transitions, transitionOutput{
				TaskID: tr.TaskID,
				From:   string(tr.From),
				To:     string(tr.To),
				Reason: tr.Reason,
			})
		}
	}
	return nil, out, nil
}

func (s *Server) handleMarkVerified(_ context.Context, _ *gomcp.CallToolRequest, input markVerifiedInput) (*gomcp.CallToolResult, markVerifiedOutput, error) {
	if input.Plan == "" {
		return errorResult("plan is required"), markVerifiedOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), markVerifiedOutput{}, nil
	}

	report, err := s.plans.Verify(core.VerifyRequest{
		Plan:     input.Plan,
		TaskID:   input.TaskID,
		Status:   models.TaskStatus(input.Status),
		Note:     input.Note,
		DryRun:   input.DryRun,
		Revision: input.Revision,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStaleWrite) && input.Revision != nil {
			return errorResult(fmt.Sprintf("plan changed since revision %d; call get_plan and retry: %s", *input.Revision, err)), markVerifiedOutput{}, nil
		}
		return errorResult(err.Error()), markVerifiedOutput{}, nil
	}

	return nil, markVerifiedOutput{
		Plan:      report.Plan,
		TaskID:    report.TaskID,
		Status:    string(report.Status),
		AuditPath: report.AuditPath,
		Entry:     report.Entry,
		DryRun:    report.DryRun,
	}, nil
}

func (s *Server) handleDiagnoseRun(ctx context.Context, _ *gomcp.CallToolRequest, input diagnoseRunInput) (*gomcp.CallToolResult, diagnoseRunOutput, error) {
	if input.Plan == "" {
		return errorResult("plan is required"), diagnoseRunOutput{}, nil
	}

	diag, err := s.doctor.Diagnose(ctx, core.DiagnoseRequest{Plan: input.Plan, RunDir: input.RunDir, TaskID: input.TaskID})
	if err != nil {
		return errorResult(err.Error()), diagnoseRunOutput{}, nil
	}

	out := diagnoseRunOutput{
		RunDir:         diag.RunDir,
		MetaStatus:     diag.MetaStatus,
		MetaUpdatedAt:  diag.MetaUpdatedAt,
		TaskID:         diag.TaskID,
		PID:            diag.PID,
		Alive:          diag.Alive,
		ProcessInfo:    diag.ProcessInfo,
		ResultsPath:    diag.ResultsPath,
		ResultsPresent: diag.ResultsPresent,
		LogPath:        diag.LogPath,
		LogTail:        diag.LogTail,
		SessionID:      diag.SessionID,
		Notes:          diag.Notes,
	}
	if diag.Rerun != nil {
		out.RerunCommand = diag.Rerun.Command
		out.ResumeCommand = diag.Rerun.ResumeCommand
		out.ResumePrompt = diag.Rerun.ResumePrompt
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log could not be opened)"), emptyMetricsOutput(), nil
	}

	window := input.Since
	if window == "" {
		window = "7d"
	}
	since, err := observability.ParseSince(window, s.now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	plan := ""
	if input.Plan != "" {
		if plan, _, err = s.plans.Resolve(input.Plan); err != nil {
			return errorResult(err.Error()), emptyMetricsOutput(), nil
		}
	}

	metrics, err := s.metricsCalc.Calculate(since, plan)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Syncs:          metrics.Syncs,
		PlansWritten:   metrics.PlansWritten,
		ChangedTasks:   metrics.ChangedTasks,
		Transitions:    metrics.Transitions,
		BlockedReasons: metrics.BlockedReasons,
		Verifications:  metrics.Verifications,
		Diagnoses:      metrics.Diagnoses,
		Kills:          metrics.Kills,
		ForcedKills:    metrics.ForcedKills,
		EventCount:     metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, input planInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available"), getAlertsOutput{}, nil
	}
	if input.Plan == "" {
		return errorResult("plan is required"), getAlertsOutput{}, nil
	}

	slug, _, err := s.plans.Resolve(input.Plan)
	if err != nil {
		return errorResult(err.Error()), getAlertsOutput{}, nil
	}
	plan, err := s.plans.Load(slug)
	if err != nil {
		return errorResult(err.Error()), getAlertsOutput{}, nil
	}

	alerts := s.alertEngine.Evaluate(slug, plan, s.now())
	out := getAlertsOutput{
		Plan:   slug,
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			TaskID:      a.TaskID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	return taskOutput{
		ID:            t.ID,
		Title:         t.Title,
		Status:        string(t.Status),
		DependsOn:     t.DependsOn,
		ExpectedFiles: t.ExpectedFiles,
		Verify:        t.Verify,
		DoneCriteria:  t.DoneCriteria,
		RunDir:        t.RunDir,
		LastRunID:     t.LastRunID,
		DelegatedAt:   t.DelegatedAt,
		AgentDoneAt:   t.AgentDoneAt,
		BlockedAt:     t.BlockedAt,
		BlockedReason: t.BlockedReason,
		VerifiedAt:    t.VerifiedAt,
		VerifiedBy:    t.VerifiedBy,
		VerifiedNote:  t.VerifiedNote,
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		Transitions:    make(map[string]int),
		BlockedReasons: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
