package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockPlan acquires an exclusive advisory lock (LOCK_EX) on the companion
// lock file of a plan, blocking until it is available. The returned unlock
// function must be called to release it. The lock only coordinates processes
// that go through the PlanStore; editors and other tools are not blocked.
func lockPlan(planPath string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(planPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating plan directory: %w", err)
	}

	f, err := os.OpenFile(planPath+".lock", os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
