package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AuditLog is the append-only, human-readable log kept next to a plan
// (MASTER.md). The planner appends to it too.
type AuditLog interface {
	// Append writes entry at the end of the log at path, creating the file
	// with a title header first if it does not exist.
	Append(path, title, entry string) error
}

type markdownAuditLog struct{}

// NewAuditLog creates an AuditLog writing markdown files.
func NewAuditLog() AuditLog {
	return &markdownAuditLog{}
}

// AuditHeader returns the first line written to a new audit log.
func AuditHeader(title string) string {
	return fmt.Sprintf("# %s - Planner Log\n\n", title)
}

func (l *markdownAuditLog) Append(path, title, entry string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("creating audit log directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(AuditHeader(title)), 0o644); err != nil { //nolint:gosec // committed alongside the plan
			return fmt.Errorf("creating audit log: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // G304: path built from repo config
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("appending to audit log: %w", err)
	}
	return nil
}
