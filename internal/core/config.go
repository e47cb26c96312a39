// Package core contains the business logic for plansync: slug
// normalization, plan synchronization, manual verification, run diagnosis
// and configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/plansync/pkg/models"
)

// ConfigFileName is the optional per-repo configuration file (without
// extension; viper resolves .yaml).
const ConfigFileName = ".plansync"

// Defaults for settings that have no environment fallback.
const (
	DefaultPlansDir     = ".plans"
	DefaultGraceSeconds = 4.0
	DefaultTailLines    = 80
	DefaultTailBytes    = 64000

	DefaultBlockedHours = 24
	DefaultReviewDays   = 3
	DefaultStaleDays    = 5
)

// ConfigurationManager loads and validates plansync configuration.
type ConfigurationManager interface {
	// Load resolves configuration for repoRoot. configFile overrides the
	// default .plansync.yaml lookup; an explicit file that is missing is an
	// error, a missing default file is not.
	Load(repoRoot, configFile string) (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

type viperConfigManager struct {
	getenv func(string) string
}

// NewConfigurationManager creates a ConfigurationManager. getenv supplies the
// CODEX_* fallbacks; nil means os.Getenv. PLANSYNC_* overrides are read by
// viper from the process environment.
func NewConfigurationManager(getenv func(string) string) ConfigurationManager {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &viperConfigManager{getenv: getenv}
}

func (cm *viperConfigManager) Load(repoRoot, configFile string) (*models.Config, error) {
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving repo root: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(root)
	}
	v.SetEnvPrefix("PLANSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("plans.dir", DefaultPlansDir)
	v.SetDefault("plans.format", string(models.PlanFormatJSON))
	v.SetDefault("doctor.grace_seconds", DefaultGraceSeconds)
	v.SetDefault("doctor.tail_lines", DefaultTailLines)
	v.SetDefault("doctor.tail_bytes", DefaultTailBytes)
	v.SetDefault("alerts.blocked_hours", DefaultBlockedHours)
	v.SetDefault("alerts.review_days", DefaultReviewDays)
	v.SetDefault("alerts.stale_days", DefaultStaleDays)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	codexHome := v.GetString("codex.home")
	if codexHome == "" {
		codexHome = cm.getenv("CODEX_HOME")
	}
	if codexHome == "" {
		codexHome = "~/.codex"
	}
	if codexHome, err = expandHome(codexHome); err != nil {
		return nil, err
	}

	runsRoot := v.GetString("runs.root")
	if runsRoot == "" {
		runsRoot = cm.getenv("CODEX_RUN_ROOT")
	}
	if runsRoot == "" {
		runsRoot = filepath.Join(codexHome, "runs")
	}
	if runsRoot, err = expandHome(runsRoot); err != nil {
		return nil, err
	}
	if runsRoot, err = filepath.Abs(runsRoot); err != nil {
		return nil, fmt.Errorf("resolving runs root: %w", err)
	}

	cfg := &models.Config{
		RepoRoot:   root,
		PlansDir:   v.GetString("plans.dir"),
		PlanFormat: models.PlanFormat(strings.ToLower(v.GetString("plans.format"))),
		RunsRoot:   runsRoot,
		CodexHome:  codexHome,
		Doctor: models.DoctorConfig{
			GraceSeconds: v.GetFloat64("doctor.grace_seconds"),
			TailLines:    v.GetInt("doctor.tail_lines"),
			TailBytes:    v.GetInt64("doctor.tail_bytes"),
			Orchestrator: v.GetString("doctor.orchestrator"),
		},
		Alerts: models.AlertConfig{
			BlockedHours: v.GetInt("alerts.blocked_hours"),
			ReviewDays:   v.GetInt("alerts.review_days"),
			StaleDays:    v.GetInt("alerts.stale_days"),
		},
		Notify: models.NotifyConfig{
			SlackWebhook: v.GetString("notify.slack_webhook"),
		},
	}
	if cfg.Doctor.Orchestrator == "" {
		cfg.Doctor.Orchestrator = defaultOrchestrator(root, codexHome)
	}
	return cfg, nil
}

// defaultOrchestrator prefers a repo-local orchestrator script over the one
// installed under the codex home.
func defaultOrchestrator(repoRoot, codexHome string) string {
	local := filepath.Join(repoRoot, ".plan-code-scripts", "codex-orchestrate")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	return filepath.Join(codexHome, "bin", "codex-orchestrate")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ValidateConfig reports every invalid setting at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if strings.TrimSpace(cfg.PlansDir) == "" {
		errs = append(errs, "plans.dir must not be empty")
	} else if filepath.IsAbs(cfg.PlansDir) {
		errs = append(errs, fmt.Sprintf("plans.dir %q must be relative to the repo root", cfg.PlansDir))
	}

	if cfg.PlanFormat != models.PlanFormatJSON && cfg.PlanFormat != models.PlanFormatYAML {
		errs = append(errs, fmt.Sprintf("plans.format %q is invalid, must be one of: json, yaml", cfg.PlanFormat))
	}

	if cfg.RunsRoot == "" {
		errs = append(errs, "runs.root must not be empty")
	}

	if cfg.Doctor.GraceSeconds < 0 {
		errs = append(errs, fmt.Sprintf("doctor.grace_seconds must be non-negative, got %g", cfg.Doctor.GraceSeconds))
	}
	if cfg.Doctor.TailLines <= 0 {
		errs = append(errs, fmt.Sprintf("doctor.tail_lines must be positive, got %d", cfg.Doctor.TailLines))
	}
	if cfg.Doctor.TailBytes <= 0 {
		errs = append(errs, fmt.Sprintf("doctor.tail_bytes must be positive, got %d", cfg.Doctor.TailBytes))
	}

	thresholds := []struct {
		key string
		n   int
	}{
		{"alerts.blocked_hours", cfg.Alerts.BlockedHours},
		{"alerts.review_days", cfg.Alerts.ReviewDays},
		{"alerts.stale_days", cfg.Alerts.StaleDays},
	}
	for _, th := range thresholds {
		if th.n < 0 {
			errs = append(errs, fmt.Sprintf("%s must be non-negative, got %d", th.key, th.n))
		}
	}

	if w := cfg.Notify.SlackWebhook; w != "" && !strings.HasPrefix(w, "https://") && !strings.HasPrefix(w, "http://") {
		errs = append(errs, fmt.Sprintf("notify.slack_webhook %q must be an http(s) URL", w))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
