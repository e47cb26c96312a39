package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// ErrTaskNotFound is returned when a plan has no task with the requested id.
var ErrTaskNotFound = errors.New("task not found")

// Verifier records manual verification outcomes on plan tasks.
type Verifier interface {
	// MarkVerified sets the task's status unconditionally, stamps the
	// verification fields and returns the audit entry describing the change.
	// An empty status means done.
	MarkVerified(plan *models.Plan, taskID string, status models.TaskStatus, note string) (string, error)
}

type verifier struct {
	now func() time.Time
}

// NewVerifier creates a Verifier. now supplies verified_at; nil means
// time.Now.
func NewVerifier(now func() time.Time) Verifier {
	if now == nil {
		now = time.Now
	}
	return &verifier{now: now}
}

func (v *verifier) MarkVerified(plan *models.Plan, taskID string, status models.TaskStatus, note string) (string, error) {
	if status == "" {
		status = models.StatusDone
	}
	if !status.IsValid() {
		return "", fmt.Errorf("%w: status %q is not one of %s", ErrInvalidInput, status, joinStatuses())
	}

	task := plan.FindTask(taskID)
	if task == nil {
		return "", fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	stamp := formatStamp(v.now())
	task.Status = status
	task.VerifiedAt = stamp
	task.VerifiedBy = models.VerifiedByManual
	note = strings.TrimSpace(note)
	if note != "" {
		task.VerifiedNote = note
	}

	return FormatVerificationEntry(stamp, taskID, status, note), nil
}

// FormatVerificationEntry renders the audit log entry for a manual
// verification.
func FormatVerificationEntry(stamp, taskID string, status models.TaskStatus, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s (%s manual verification)\n", stamp, taskID)
	fmt.Fprintf(&b, "- Result: set status `%s`.\n", status)
	if note != "" {
		fmt.Fprintf(&b, "- Note: %s\n", note)
	}
	b.WriteString("\n")
	return b.String()
}

func joinStatuses() string {
	statuses := models.AllowedStatuses()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
