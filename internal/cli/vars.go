package cli

import (
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Config *models.Config
	Plans  core.PlanService
	Doctor core.RunDoctor
)

// Observability service instances. Any of them may be nil when the event log
// could not be opened or notifications are not configured.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// Initializer builds the services above for a repo root and optional
// config file. It is installed by main and run before every command that
// needs the services.
var Initializer func(repoRoot, configFile string) error
