package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// InitConfig holds the parameters for preparing a repository for plansync.
type InitConfig struct {
	RepoRoot   string
	PlansDir   string
	PlanFormat models.PlanFormat
	// RunsRoot is written to the config file when set; otherwise the
	// CODEX_RUN_ROOT fallback stays in effect.
	RunsRoot string
	// Plan, when set, scaffolds an empty plan with that name.
	Plan string
	Goal string
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// PlanSaver writes a plan file.
type PlanSaver interface {
	Save(path string, plan *models.Plan) error
}

// RepoInitializer writes the plansync config file and plan directories.
type RepoInitializer interface {
	Init(config InitConfig) (*InitResult, error)
}

type repoInitializer struct {
	plans PlanSaver
}

// NewRepoInitializer creates a RepoInitializer that scaffolds plans through
// plans.
func NewRepoInitializer(plans PlanSaver) RepoInitializer {
	return &repoInitializer{plans: plans}
}

var configTemplate = template.Must(template.New("plansync.yaml").Parse(`# plansync configuration. PLANSYNC_* environment variables override these.
plans:
  dir: {{.PlansDir}}
  format: {{.PlanFormat}}
{{- if .RunsRoot}}
runs:
  root: {{.RunsRoot}}
{{- end}}
doctor:
  grace_seconds: {{.GraceSeconds}}
  tail_lines: {{.TailLines}}
  tail_bytes: {{.TailBytes}}
alerts:
  blocked_hours: {{.BlockedHours}}
  review_days: {{.ReviewDays}}
  stale_days: {{.StaleDays}}
`))

// Init creates the config file, the plans directory and optionally a plan
// skeleton. Existing files are skipped and never overwritten.
func (ri *repoInitializer) Init(config InitConfig) (*InitResult, error) {
	if config.PlansDir == "" {
		config.PlansDir = DefaultPlansDir
	}
	if config.PlanFormat == "" {
		config.PlanFormat = models.PlanFormatJSON
	}
	if config.PlanFormat != models.PlanFormatJSON && config.PlanFormat != models.PlanFormatYAML {
		return nil, fmt.Errorf("%w: plan format %q must be json or yaml", ErrInvalidInput, config.PlanFormat)
	}
	if filepath.IsAbs(config.PlansDir) {
		return nil, fmt.Errorf("%w: plans dir %q must be relative", ErrInvalidInput, config.PlansDir)
	}

	result := &InitResult{}
	plansDir := filepath.Join(config.RepoRoot, config.PlansDir)
	created, err := ensureDir(plansDir)
	if err != nil {
		return nil, fmt.Errorf("initializing repo: creating %s: %w", plansDir, err)
	}
	result.record(plansDir, created)

	configPath := filepath.Join(config.RepoRoot, ConfigFileName+".yaml")
	if err := writeFileIfNotExists(configPath, func() ([]byte, error) {
		return renderConfig(config)
	}, result); err != nil {
		return nil, err
	}

	if config.Plan == "" {
		return result, nil
	}
	slug, err := NormalizeSlug(config.Plan)
	if err != nil {
		return nil, err
	}
	cfg := models.Config{RepoRoot: config.RepoRoot, PlansDir: config.PlansDir, PlanFormat: config.PlanFormat}
	planPath := cfg.PlanPath(slug)
	if _, err := os.Stat(planPath); err == nil {
		result.Skipped = append(result.Skipped, planPath)
		return result, nil
	}
	if err := ri.plans.Save(planPath, &models.Plan{Goal: config.Goal, Tasks: []models.Task{}}); err != nil {
		return nil, fmt.Errorf("initializing repo: %w", err)
	}
	result.Created = append(result.Created, planPath)
	return result, nil
}

func renderConfig(config InitConfig) ([]byte, error) {
	data := map[string]any{
		"PlansDir":     config.PlansDir,
		"PlanFormat":   config.PlanFormat,
		"RunsRoot":     config.RunsRoot,
		"GraceSeconds": DefaultGraceSeconds,
		"TailLines":    DefaultTailLines,
		"TailBytes":    DefaultTailBytes,
		"BlockedHours": DefaultBlockedHours,
		"ReviewDays":   DefaultReviewDays,
		"StaleDays":    DefaultStaleDays,
	}
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *InitResult) record(path string, created bool) {
	if created {
		r.Created = append(r.Created, path)
	} else {
		r.Skipped = append(r.Skipped, path)
	}
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not exist.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing repo: generating %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil { //nolint:gosec // config is meant to be committed
		return fmt.Errorf("initializing repo: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}
