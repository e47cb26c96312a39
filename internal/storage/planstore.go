package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/plansync/pkg/models"
)

var (
	// ErrPlanNotFound is returned when the plan file does not exist.
	ErrPlanNotFound = errors.New("plan file not found")
	// ErrStaleWrite is returned by Commit when the plan on disk has moved
	// past the revision the caller loaded.
	ErrStaleWrite = errors.New("plan was modified since it was loaded")
)

// PlanStore loads and persists plan files.
type PlanStore interface {
	// Load reads and decodes the plan at path.
	Load(path string) (*models.Plan, error)
	// Save writes the plan deterministically. No locking, no revision bump.
	Save(path string, plan *models.Plan) error
	// Update performs a locked read-modify-write. The plan is saved, with its
	// revision bumped, only when fn changed its serialized form.
	Update(path string, fn func(plan *models.Plan) error) (*models.Plan, error)
	// Commit saves a plan that was loaded earlier, rejecting the write with
	// ErrStaleWrite when the file's revision no longer matches.
	Commit(path string, plan *models.Plan) error
}

type filePlanStore struct{}

// NewPlanStore creates a PlanStore backed by JSON or YAML plan files; the
// codec is chosen from each path's extension.
func NewPlanStore() PlanStore {
	return &filePlanStore{}
}

func (s *filePlanStore) Load(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from repo config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
		}
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	raw, err := codecFor(path).unmarshal(data)
	if err != nil {
		return nil, &SchemaError{Path: path, Reason: fmt.Sprintf("parsing: %v", err)}
	}
	return decodePlan(path, raw)
}

func (s *filePlanStore) Save(path string, plan *models.Plan) error {
	data, err := marshalPlan(path, plan)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("saving plan: creating directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil { //nolint:gosec // plan files are meant to be committed
		return fmt.Errorf("saving plan: writing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("saving plan: renaming temp file: %w", err)
	}
	return nil
}

func (s *filePlanStore) Update(path string, fn func(plan *models.Plan) error) (*models.Plan, error) {
	// Checked before locking so a mistyped plan leaves no lock file behind.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
	}
	unlock, err := lockPlan(path)
	if err != nil {
		return nil, fmt.Errorf("updating plan: %w", err)
	}
	defer func() { _ = unlock() }()

	plan, err := s.Load(path)
	if err != nil {
		return nil, err
	}

	before, err := marshalPlan(path, plan)
	if err != nil {
		return nil, err
	}

	if err := fn(plan); err != nil {
		return nil, err
	}

	after, err := marshalPlan(path, plan)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(before, after) {
		return plan, nil
	}

	plan.Revision++
	if err := s.Save(path, plan); err != nil {
		plan.Revision--
		return nil, err
	}
	return plan, nil
}

func (s *filePlanStore) Commit(path string, plan *models.Plan) error {
	unlock, err := lockPlan(path)
	if err != nil {
		return fmt.Errorf("committing plan: %w", err)
	}
	defer func() { _ = unlock() }()

	onDisk := 0
	current, err := s.Load(path)
	switch {
	case err == nil:
		onDisk = current.Revision
	case errors.Is(err, ErrPlanNotFound):
	default:
		return err
	}

	if onDisk != plan.Revision {
		return fmt.Errorf("%w: %s is at revision %d, write was based on %d", ErrStaleWrite, path, onDisk, plan.Revision)
	}

	plan.Revision++
	if err := s.Save(path, plan); err != nil {
		plan.Revision--
		return err
	}
	return nil
}

// MarshalPlan serializes a plan with the codec implied by path. Exposed so
// callers can show dry-run output identical to what Save would write.
func MarshalPlan(path string, plan *models.Plan) ([]byte, error) {
	return marshalPlan(path, plan)
}

func marshalPlan(path string, plan *models.Plan) ([]byte, error) {
	data, err := codecFor(path).marshal(encodePlan(plan))
	if err != nil {
		return nil, fmt.Errorf("marshaling plan: %w", err)
	}
	return data, nil
}
