package models

import (
	"path/filepath"
	"time"
)

// PlanFormat selects the on-disk codec for plan files.
type PlanFormat string

const (
	PlanFormatJSON PlanFormat = "json"
	PlanFormatYAML PlanFormat = "yaml"
)

// DoctorConfig holds Run Doctor tunables.
type DoctorConfig struct {
	GraceSeconds float64 `yaml:"grace_seconds" mapstructure:"grace_seconds"`
	TailLines    int     `yaml:"tail_lines" mapstructure:"tail_lines"`
	TailBytes    int64   `yaml:"tail_bytes" mapstructure:"tail_bytes"`
	Orchestrator string  `yaml:"orchestrator,omitempty" mapstructure:"orchestrator"`
}

// Grace returns the grace period as a duration.
func (d DoctorConfig) Grace() time.Duration {
	return time.Duration(d.GraceSeconds * float64(time.Second))
}

// AlertConfig holds the thresholds used by plan status alerts.
type AlertConfig struct {
	BlockedHours int `yaml:"blocked_hours" mapstructure:"blocked_hours"`
	ReviewDays   int `yaml:"review_days" mapstructure:"review_days"`
	StaleDays    int `yaml:"stale_days" mapstructure:"stale_days"`
}

// NotifyConfig holds outbound notification settings. An empty webhook
// disables notifications.
type NotifyConfig struct {
	SlackWebhook string `yaml:"slack_webhook,omitempty" mapstructure:"slack_webhook"`
}

// Config holds every setting plansync needs, resolved once at startup from
// .plansync.yaml, PLANSYNC_* environment variables and the CODEX_* defaults.
type Config struct {
	RepoRoot   string       `yaml:"-" mapstructure:"-"`
	PlansDir   string       `yaml:"plans_dir" mapstructure:"plans_dir"`
	PlanFormat PlanFormat   `yaml:"plan_format" mapstructure:"plan_format"`
	RunsRoot   string       `yaml:"runs_root" mapstructure:"runs_root"`
	CodexHome  string       `yaml:"codex_home" mapstructure:"codex_home"`
	Doctor     DoctorConfig `yaml:"doctor" mapstructure:"doctor"`
	Alerts     AlertConfig  `yaml:"alerts" mapstructure:"alerts"`
	Notify     NotifyConfig `yaml:"notify" mapstructure:"notify"`
}

// PlanFileName returns the plan file name for the configured format.
func (c Config) PlanFileName() string {
	if c.PlanFormat == PlanFormatYAML {
		return "plan.yaml"
	}
	return "plan.json"
}

// PlanDir returns <repo>/<plans_dir>/<slug>.
func (c Config) PlanDir(slug string) string {
	return filepath.Join(c.RepoRoot, c.PlansDir, slug)
}

// PlanPath returns the plan file for slug.
func (c Config) PlanPath(slug string) string {
	return filepath.Join(c.PlanDir(slug), c.PlanFileName())
}

// AuditPath returns the MASTER.md audit log for slug.
func (c Config) AuditPath(slug string) string {
	return filepath.Join(c.PlanDir(slug), "MASTER.md")
}

// PlanRunsRoot returns the run artifact root for slug.
func (c Config) PlanRunsRoot(slug string) string {
	return filepath.Join(c.RunsRoot, slug)
}

// EventLogPath returns the JSONL event log location.
func (c Config) EventLogPath() string {
	return filepath.Join(c.RepoRoot, c.PlansDir, ".plansync_events.jsonl")
}
