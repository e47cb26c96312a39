package models

import (
	"fmt"
	"strings"
)

// ValidationError carries every violation found in a plan.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed:\n  - %s", strings.Join(e.Violations, "\n  - "))
}

// Validate checks the plan and returns all violations found. It never stops
// at the first problem.
func (p *Plan) Validate() []string {
	var errs []string

	if len(p.Tasks) == 0 {
		errs = append(errs, "plan has no tasks")
	}

	seen := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		idx := i + 1
		id := strings.TrimSpace(t.ID)
		if id == "" {
			errs = append(errs, fmt.Sprintf("task at index %d missing id/task_id", idx))
		} else if first, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("task at index %d duplicates id %q (first at index %d)", idx, id, first))
		} else {
			seen[id] = idx
		}

		label := id
		if label == "" {
			label = fmt.Sprintf("#%d", idx)
		}
		if !t.Status.IsValid() {
			errs = append(errs, fmt.Sprintf("task %s has invalid status %q (allowed: %s)", label, t.Status, allowedList()))
		}
		if t.Verify == nil {
			errs = append(errs, fmt.Sprintf("task %s verify must be a list", label))
		}
	}

	return errs
}

// Check returns a *ValidationError when the plan has violations.
func (p *Plan) Check() error {
	if v := p.Validate(); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func allowedList() string {
	statuses := AllowedStatuses()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
