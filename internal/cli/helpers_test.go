package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/integration"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/internal/storage"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// cliEnv wires real services over temp dirs into the package variables.
type cliEnv struct {
	cfg    models.Config
	store  storage.PlanStore
	events observability.EventLog
}

type eventAdapter struct {
	log observability.EventLog
}

func (a eventAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{Time: time.Now().UTC(), Level: "INFO", Type: eventType, Data: data})
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	cfg := models.Config{
		RepoRoot:   t.TempDir(),
		PlansDir:   ".plans",
		PlanFormat: models.PlanFormatJSON,
		RunsRoot:   filepath.Join(t.TempDir(), "runs"),
		Doctor: models.DoctorConfig{
			GraceSeconds: 1,
			TailLines:    10,
			TailBytes:    4096,
			Orchestrator: "/opt/codex-orchestrate",
		},
		Alerts: models.AlertConfig{BlockedHours: 24, ReviewDays: 3, StaleDays: 5},
	}

	events, err := observability.NewJSONLEventLog(cfg.EventLogPath(), "cli-test")
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}

	store := storage.NewPlanStore()
	logger := eventAdapter{log: events}

	saved := struct {
		cfg      *models.Config
		plans    core.PlanService
		doctor   core.RunDoctor
		log      observability.EventLog
		engine   observability.AlertEngine
		metrics  observability.MetricsCalculator
		notifier observability.Notifier
	}{Config, Plans, Doctor, EventLog, AlertEngine, MetricsCalc, Notifier}
	t.Cleanup(func() {
		_ = events.Close()
		Config, Plans, Doctor = saved.cfg, saved.plans, saved.doctor
		EventLog, AlertEngine, MetricsCalc, Notifier = saved.log, saved.engine, saved.metrics, saved.notifier
		resetFlags()
	})
	resetFlags()

	Config = &cfg
	Plans = core.NewPlanService(cfg, store, storage.NewAuditLog(),
		core.NewPlanSynchronizer(integration.NewRunCollector(), nil), core.NewVerifier(nil), logger)
	Doctor = core.NewRunDoctor(integration.NewRunInspector(), integration.NewProcessController(), cfg, logger, nil)
	EventLog = events
	AlertEngine = observability.NewAlertEngine(observability.ThresholdsFromConfig(cfg.Alerts))
	MetricsCalc = observability.NewMetricsCalculator(events)
	Notifier = nil

	return &cliEnv{cfg: cfg, store: store, events: events}
}

// resetFlags restores every command flag variable to its default.
func resetFlags() {
	syncPlan, syncRunRoot, syncDryRun, syncStrict, syncVerbose = "", "", false, false, false
	verifyPlan, verifyTask, verifyStatus, verifyNote, verifyDryRun = "", "", string(models.StatusDone), "", false
	validatePlan = ""
	doctorPlan, doctorRunDir, doctorRunRoot, doctorTask = "", "", "", ""
	doctorKill, doctorGrace, doctorPrintRerun, doctorDryRun, doctorJSON = false, 0, false, false, false
	statusPlan, statusJSON = "", false
	alertsPlan, alertsNotify = "", false
	metricsJSON, metricsSince, metricsPlan = false, "7d", ""
	initPlansDir, initFormat, initRunsRoot, initPlan, initGoal = core.DefaultPlansDir, string(models.PlanFormatJSON), "", "", ""
	dashboardPlan = ""
	eventsPlan, eventsTask, eventsType, eventsLevel, eventsSince, eventsLimit, eventsJSON = "", "", "", "", "", 50, false
}

// run invokes cmd.RunE directly and returns its stdout and stderr.
func run(t *testing.T, cmd *cobra.Command) (string, string, error) {
	t.Helper()
	return runWithArgs(t, cmd)
}

// runWithArgs is run with positional arguments.
func runWithArgs(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})
	err := cmd.RunE(cmd, args)
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) savePlan(t *testing.T, slug string, tasks ...models.Task) {
	t.Helper()
	if err := e.store.Save(e.cfg.PlanPath(slug), &models.Plan{Goal: "ship auth", Tasks: tasks}); err != nil {
		t.Fatalf("saving plan: %v", err)
	}
}

func (e *cliEnv) loadPlan(t *testing.T, slug string) *models.Plan {
	t.Helper()
	p, err := e.store.Load(e.cfg.PlanPath(slug))
	if err != nil {
		t.Fatalf("loading plan: %v", err)
	}
	return p
}

// writeRun writes a run dir with meta.json and one result per task status.
func (e *cliEnv) writeRun(t *testing.T, slug, name string, meta map[string]any, results map[string]string) string {
	t.Helper()
	runDir := filepath.Join(e.cfg.PlanRunsRoot(slug), name)
	writeJSONFile(t, filepath.Join(runDir, "meta.json"), meta)
	for id, status := range results {
		writeJSONFile(t, filepath.Join(runDir, "results", id+".json"), map[string]any{"task_id": id, "status": status})
	}
	return runDir
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeTextFile(t, path, string(data))
}

func writeTextFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func planTask(id string, status models.TaskStatus) models.Task {
	return models.Task{ID: id, Title: "task " + id, Status: status, Verify: []string{"go test ./..."}}
}
