package cli

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/pkg/models"
)

func sampleDashboardData() dataLoadedMsg {
	blocked := planTask("task_002", models.StatusBlocked)
	blocked.BlockedReason = "timeout"
	return dataLoadedMsg{
		plan: &models.Plan{Revision: 4, Tasks: []models.Task{planTask("task_001", models.StatusDone), blocked}},
		alerts: []observability.Alert{
			{Severity: observability.SeverityHigh, Message: "task task_002 blocked for 30h"},
		},
		metrics: &observability.Metrics{EventCount: 7, Syncs: 2},
	}
}

func newTestDashboard(sync func() tea.Msg) dashboardModel {
	m := newDashboardModel("add-auth", func() tea.Msg { return sampleDashboardData() }, sync)
	updated, _ := m.Update(sampleDashboardData())
	updated, _ = updated.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(dashboardModel)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDashboard_InitialState(t *testing.T) {
	m := newDashboardModel("add-auth", func() tea.Msg { return nil }, nil)
	if !m.loading || m.activePanel != panelTasks {
		t.Errorf("initial model = %+v", m)
	}
	if m.Init() == nil {
		t.Error("Init should return the load command")
	}
	if got := m.View(); got != "Loading..." {
		t.Errorf("View before size = %q", got)
	}
}

func TestDashboard_LoadedView(t *testing.T) {
	m := newTestDashboard(nil)
	if m.loading || m.revision != 4 || len(m.tasks) != 2 {
		t.Fatalf("model after load = %+v", m)
	}
	view := m.View()
	for _, want := range []string{"plansync: add-auth (rev 4)", "task_001", "task_002", "[HIGH]", "events (7d): 7"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDashboard_Navigation(t *testing.T) {
	m := newTestDashboard(nil)

	next, _ := m.Update(key("j"))
	m = next.(dashboardModel)
	if m.cursor != 1 {
		t.Errorf("cursor after j = %d, want 1", m.cursor)
	}
	next, _ = m.Update(key("j"))
	m = next.(dashboardModel)
	if m.cursor != 1 {
		t.Errorf("cursor must stop at the last task, got %d", m.cursor)
	}
	if !strings.Contains(m.View(), "timeout") {
		t.Error("detail panel should show the selected task's blocked reason")
	}
	next, _ = m.Update(key("k"))
	m = next.(dashboardModel)
	if m.cursor != 0 {
		t.Errorf("cursor after k = %d, want 0", m.cursor)
	}

	next, _ = m.Update(key("tab"))
	m = next.(dashboardModel)
	if m.activePanel != panelDetail {
		t.Errorf("panel after tab = %d", m.activePanel)
	}
	next, _ = m.Update(key("shift+tab"))
	next, _ = next.Update(key("shift+tab"))
	m = next.(dashboardModel)
	if m.activePanel != panelAlerts {
		t.Errorf("panel after shift+tab wrap = %d", m.activePanel)
	}
}

func TestDashboard_Quit(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		_, cmd := newTestDashboard(nil).Update(key(k))
		if cmd == nil {
			t.Fatalf("%s: expected a command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected tea.QuitMsg", k)
		}
	}
}

func TestDashboard_Sync(t *testing.T) {
	report := &core.SyncReport{RunsFound: true, Written: true, Revision: 5, Result: &core.SyncResult{Changed: 2}}
	m := newTestDashboard(func() tea.Msg { return syncDoneMsg{report: report} })

	next, cmd := m.Update(key("s"))
	m = next.(dashboardModel)
	if !m.loading || m.status != "syncing..." || cmd == nil {
		t.Fatalf("after s: loading=%v status=%q", m.loading, m.status)
	}

	next, cmd = m.Update(cmd())
	m = next.(dashboardModel)
	if m.status != "synced: 2 task(s) changed, revision 5" {
		t.Errorf("status = %q", m.status)
	}
	if cmd == nil {
		t.Fatal("a finished sync should reload the data")
	}
	next, _ = m.Update(cmd())
	if next.(dashboardModel).loading {
		t.Error("reload should clear loading")
	}
}

func TestDashboard_Errors(t *testing.T) {
	m := newTestDashboard(nil)

	next, _ := m.Update(syncDoneMsg{err: errors.New("lock busy")})
	m = next.(dashboardModel)
	if m.status != "sync failed: lock busy" {
		t.Errorf("status = %q", m.status)
	}

	next, _ = m.Update(dataLoadedMsg{err: errors.New("plan file not found")})
	m = next.(dashboardModel)
	if !strings.Contains(m.View(), "Error: plan file not found") {
		t.Errorf("view should show the load error:\n%s", m.View())
	}
}

func TestSyncSummary(t *testing.T) {
	tests := []struct {
		name   string
		report *core.SyncReport
		want   string
	}{
		{"no runs", &core.SyncReport{RunsRoot: "/runs/x"}, "no runs found at /runs/x"},
		{"written", &core.SyncReport{RunsFound: true, Written: true, Revision: 3, Result: &core.SyncResult{Changed: 1}}, "synced: 1 task(s) changed, revision 3"},
		{"unchanged", &core.SyncReport{RunsFound: true, Result: &core.SyncResult{}}, "synced: no changes needed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := syncSummary(tt.report); got != tt.want {
				t.Errorf("syncSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadDashboardData(t *testing.T) {
	env := newCLIEnv(t)
	env.savePlan(t, "add-auth", planTask("task_001", "wip"))

	msg := loadDashboardData("add-auth")().(dataLoadedMsg)
	if msg.err != nil {
		t.Fatalf("load error: %v", msg.err)
	}
	if len(msg.plan.Tasks) != 1 || len(msg.alerts) != 1 || msg.metrics == nil {
		t.Errorf("loaded = %+v", msg)
	}

	missing := loadDashboardData("absent")().(dataLoadedMsg)
	if missing.err == nil {
		t.Error("expected an error for a missing plan")
	}
}
