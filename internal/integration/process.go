package integration

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// pollInterval is how often Terminate re-checks liveness during the grace
// period.
const pollInterval = 100 * time.Millisecond

// ProcessController probes and terminates agent processes.
type ProcessController interface {
	// Alive reports whether pid exists. A process owned by another user
	// counts as alive.
	Alive(pid int) bool
	// Describe returns the ps table row for pid, or "" when ps knows nothing.
	Describe(ctx context.Context, pid int) (string, error)
	// Terminate sends SIGTERM to the process group of pid (falling back to
	// pid itself), waits up to grace for it to exit, then sends SIGKILL.
	Terminate(ctx context.Context, pid int, grace time.Duration) models.TerminationReport
}

type unixProcessController struct{}

// NewProcessController creates a ProcessController using POSIX signals and ps.
func NewProcessController() ProcessController {
	return &unixProcessController{}
}

func (p *unixProcessController) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (p *unixProcessController) Describe(ctx context.Context, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	cmd := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "pid,ppid,stat,etime,command") //nolint:gosec // G204: fixed argv, pid is numeric
	out, err := cmd.Output()
	if err != nil {
		// ps exits 1 when the pid is unknown; the header alone is not useful.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil
		}
		return "", fmt.Errorf("running ps: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func (p *unixProcessController) Terminate(ctx context.Context, pid int, grace time.Duration) models.TerminationReport {
	report := models.TerminationReport{PID: pid}
	// Signalling 0, 1 or a negative pid would hit far more than one agent.
	if pid <= 1 {
		report.Errors = append(report.Errors, fmt.Sprintf("refusing to signal pid %d", pid))
		return report
	}

	report.GroupSignalled, report.Signalled = p.signal(pid, syscall.SIGTERM, &report)

	if p.waitExit(ctx, pid, grace) {
		report.Exited = true
		return report
	}

	group, single := p.signal(pid, syscall.SIGKILL, &report)
	report.Forced = group || single
	report.Exited = p.waitExit(ctx, pid, pollInterval*5)
	return report
}

// signal delivers sig to the process group led by pid, falling back to pid.
func (p *unixProcessController) signal(pid int, sig syscall.Signal, report *models.TerminationReport) (group, single bool) {
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return true, false
	}
	// ESRCH means pid leads no group; the single-pid signal below decides.
	if !errors.Is(err, syscall.ESRCH) {
		report.Errors = append(report.Errors, fmt.Sprintf("%s to group %d: %v", sig, pid, err))
	}

	if err := syscall.Kill(pid, sig); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			report.Errors = append(report.Errors, fmt.Sprintf("%s to pid %d: %v", sig, pid, err))
		}
		return false, false
	}
	return false, true
}

// waitExit polls until pid is gone, the timeout passes or ctx is cancelled.
func (p *unixProcessController) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !p.Alive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !p.Alive(pid)
		case <-ticker.C:
		}
	}
}
