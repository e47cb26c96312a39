// Package internal provides the App struct that wires all components of
// plansync together and initializes the CLI layer.
package internal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/plansync/internal/cli"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/integration"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/internal/storage"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// App holds all service dependencies for plansync.
type App struct {
	Config *models.Config

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	PlanStore storage.PlanStore
	AuditLog  storage.AuditLog

	// Integration services
	Collector integration.RunCollector
	Inspector integration.RunInspector
	Processes integration.ProcessController

	// Core services
	Synchronizer core.PlanSynchronizer
	Verifier     core.Verifier
	Plans        core.PlanService
	Doctor       core.RunDoctor

	// Observability
	InvocationID string
	EventLog     observability.EventLog
	AlertEngine  observability.AlertEngine
	MetricsCalc  observability.MetricsCalculator
	Notifier     observability.Notifier
}

// NewApp loads configuration for repoRoot and wires every component.
// configFile overrides the default <repo>/.plansync.yaml.
func NewApp(repoRoot, configFile string) (*App, error) {
	app := &App{InvocationID: uuid.NewString()}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(nil)
	cfg, err := app.ConfigMgr.Load(repoRoot, configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Observability ---
	// Non-fatal: the app runs without an event log if it cannot be opened.
	var evtAdapter core.EventLogger
	if eventLog, err := observability.NewJSONLEventLog(cfg.EventLogPath(), app.InvocationID); err == nil {
		app.EventLog = eventLog
		app.MetricsCalc = observability.NewMetricsCalculator(eventLog)
		evtAdapter = &eventLogAdapter{log: eventLog}
	}
	app.AlertEngine = observability.NewAlertEngine(observability.ThresholdsFromConfig(cfg.Alerts))
	if cfg.Notify.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notify.SlackWebhook)
	}

	// --- Storage layer ---
	app.PlanStore = storage.NewPlanStore()
	app.AuditLog = storage.NewAuditLog()

	// --- Integration services ---
	app.Collector = integration.NewRunCollector()
	app.Inspector = integration.NewRunInspector()
	app.Processes = integration.NewProcessController()

	// --- Core services ---
	app.Synchronizer = core.NewPlanSynchronizer(app.Collector, nil)
	app.Verifier = core.NewVerifier(nil)
	app.Plans = core.NewPlanService(*cfg, app.PlanStore, app.AuditLog, app.Synchronizer, app.Verifier, evtAdapter)
	app.Doctor = core.NewRunDoctor(app.Inspector, app.Processes, *cfg, evtAdapter, nil)

	// --- Wire CLI package-level variables ---
	cli.Config = cfg
	cli.Plans = app.Plans
	cli.Doctor = app.Doctor

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   eventLevel(eventType, data),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// eventLevel raises kills and transitions to blocked to WARN.
func eventLevel(eventType string, data map[string]any) string {
	switch {
	case eventType == core.EventRunKilled:
		return "WARN"
	case eventType == core.EventTaskStatusChanged && data["to"] == string(models.StatusBlocked):
		return "WARN"
	default:
		return "INFO"
	}
}
