package core

import (
	"fmt"
	"os"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// SyncRequest selects the plan to synchronize.
type SyncRequest struct {
	Plan string
	// RunsRoot overrides the configured runs root; the plan slug is still
	// appended.
	RunsRoot string
	DryRun   bool
}

// SyncReport is the outcome of PlanService.Sync.
type SyncReport struct {
	Plan     string `json:"plan"`
	PlanPath string `json:"plan_path"`
	RunsRoot string `json:"runs_root"`
	// RunsFound is false when the plan's runs root does not exist.
	RunsFound bool        `json:"runs_found"`
	Result    *SyncResult `json:"result,omitempty"`
	// Written is true when the plan file was rewritten.
	Written  bool `json:"written"`
	Revision int  `json:"revision"`
	DryRun   bool `json:"dry_run"`
}

// VerifyRequest describes a manual verification.
type VerifyRequest struct {
	Plan   string
	TaskID string
	Status models.TaskStatus
	Note   string
	DryRun bool
	// Revision, when set, is the plan revision the caller last read. The
	// write is rejected if the plan has moved on since.
	Revision *int
}

// VerifyReport is the outcome of PlanService.Verify.
type VerifyReport struct {
	Plan      string            `json:"plan"`
	PlanPath  string            `json:"plan_path"`
	AuditPath string            `json:"audit_path"`
	TaskID    string            `json:"task_id"`
	Status    models.TaskStatus `json:"status"`
	Entry     string            `json:"entry"`
	DryRun    bool              `json:"dry_run"`
}

// PlanService runs plan operations against the configured repository layout.
type PlanService interface {
	// Resolve normalizes a plan name and returns its slug and plan path.
	Resolve(plan string) (slug, path string, err error)
	Load(plan string) (*models.Plan, error)
	// Validate returns every violation in the plan.
	Validate(plan string) ([]string, error)
	Sync(req SyncRequest) (*SyncReport, error)
	Verify(req VerifyRequest) (*VerifyReport, error)
}

type planService struct {
	cfg    models.Config
	store  PlanRepository
	audit  AuditAppender
	syncer PlanSynchronizer
	verify Verifier
	events EventLogger
}

// NewPlanService creates a PlanService. events may be nil.
func NewPlanService(cfg models.Config, store PlanRepository, audit AuditAppender, syncer PlanSynchronizer, verify Verifier, events EventLogger) PlanService {
	return &planService{
		cfg:    cfg,
		store:  store,
		audit:  audit,
		syncer: syncer,
		verify: verify,
		events: events,
	}
}

func (s *planService) Resolve(plan string) (string, string, error) {
	slug, err := NormalizeSlug(plan)
	if err != nil {
		return "", "", err
	}
	return slug, s.cfg.PlanPath(slug), nil
}

func (s *planService) Load(plan string) (*models.Plan, error) {
	_, path, err := s.Resolve(plan)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w", err)
	}
	return p, nil
}

func (s *planService) Validate(plan string) ([]string, error) {
	p, err := s.Load(plan)
	if err != nil {
		return nil, err
	}
	return p.Validate(), nil
}

func (s *planService) Sync(req SyncRequest) (*SyncReport, error) {
	slug, path, err := s.Resolve(req.Plan)
	if err != nil {
		return nil, fmt.Errorf("syncing plan: %w", err)
	}

	runsRoot := s.cfg.PlanRunsRoot(slug)
	if req.RunsRoot != "" {
		runsRoot = models.Config{RunsRoot: req.RunsRoot}.PlanRunsRoot(slug)
	}
	report := &SyncReport{Plan: slug, PlanPath: path, RunsRoot: runsRoot, DryRun: req.DryRun}

	// A missing or unreadable plan is fatal even when there are no runs yet.
	p, err := s.store.Load(path)
	if err != nil {
		return nil, fmt.Errorf("syncing plan: %w", err)
	}
	report.Revision = p.Revision

	if info, err := os.Stat(runsRoot); err != nil || !info.IsDir() {
		return report, nil
	}
	report.RunsFound = true

	if req.DryRun {
		result, err := s.syncer.Sync(p, runsRoot)
		if err != nil {
			return nil, fmt.Errorf("syncing plan: %w", err)
		}
		report.Result = result
		report.Revision = p.Revision
		return report, nil
	}

	var before int
	updated, err := s.store.Update(path, func(p *models.Plan) error {
		before = p.Revision
		result, err := s.syncer.Sync(p, runsRoot)
		if err != nil {
			return err
		}
		report.Result = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncing plan: %w", err)
	}
	report.Revision = updated.Revision
	report.Written = updated.Revision != before

	s.logEvent(EventPlanSynced, map[string]any{
		"plan":         slug,
		"changed":      report.Result.Changed,
		"observations": report.Result.Observations,
		"written":      report.Written,
	})
	for _, tr := range report.Result.Transitions {
		s.logEvent(EventTaskStatusChanged, map[string]any{
			"plan":    slug,
			"task_id": tr.TaskID,
			"from":    string(tr.From),
			"to":      string(tr.To),
			"reason":  tr.Reason,
		})
	}
	return report, nil
}

func (s *planService) Verify(req VerifyRequest) (*VerifyReport, error) {
	slug, path, err := s.Resolve(req.Plan)
	if err != nil {
		return nil, fmt.Errorf("verifying task: %w", err)
	}
	report := &VerifyReport{
		Plan:      slug,
		PlanPath:  path,
		AuditPath: s.cfg.AuditPath(slug),
		TaskID:    req.TaskID,
		DryRun:    req.DryRun,
	}

	mark := func(p *models.Plan) error {
		entry, err := s.verify.MarkVerified(p, req.TaskID, req.Status, req.Note)
		if err != nil {
			return err
		}
		report.Entry = entry
		report.Status = p.FindTask(req.TaskID).Status
		return nil
	}

	if req.DryRun {
		p, err := s.store.Load(path)
		if err != nil {
			return nil, fmt.Errorf("verifying task: %w", err)
		}
		if err := mark(p); err != nil {
			return nil, fmt.Errorf("verifying task: %w", err)
		}
		return report, nil
	}

	if err := s.commit(path, req.Revision, mark); err != nil {
		return nil, fmt.Errorf("verifying task: %w", err)
	}
	// Audit entries are appended only after the plan write lands.
	if err := s.audit.Append(report.AuditPath, slug, report.Entry); err != nil {
		return nil, fmt.Errorf("appending audit entry: %w", err)
	}

	s.logEvent(EventTaskVerified, map[string]any{
		"plan":    slug,
		"task_id": req.TaskID,
		"status":  string(report.Status),
		"note":    req.Note != "",
	})
	return report, nil
}

// commit applies fn under the store lock, or against a caller-held revision
// when one is given.
func (s *planService) commit(path string, revision *int, fn func(*models.Plan) error) error {
	if revision == nil {
		_, err := s.store.Update(path, fn)
		return err
	}
	p, err := s.store.Load(path)
	if err != nil {
		return err
	}
	p.Revision = *revision
	if err := fn(p); err != nil {
		return err
	}
	return s.store.Commit(path, p)
}

func (s *planService) logEvent(eventType string, data map[string]any) {
	if s.events != nil {
		_ = s.events.LogEvent(eventType, data)
	}
}
