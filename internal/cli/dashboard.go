package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/observability"
	"github.com/valter-silva-au/plansync/pkg/models"
	"golang.org/x/term"
)

// Dashboard panel indices.
const (
	panelTasks = iota
	panelDetail
	panelAlerts
	panelCount
)

var dashboardPlan string

type dashboardModel struct {
	plan        string
	activePanel int
	cursor      int
	width       int
	height      int

	tasks    []models.Task
	revision int
	alerts   []observability.Alert
	metrics  *observability.Metrics
	status   string

	load func() tea.Msg
	sync func() tea.Msg

	loading bool
	err     error
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	plan    *models.Plan
	alerts  []observability.Alert
	metrics *observability.Metrics
	err     error
}

// syncDoneMsg reports a sync started from the dashboard.
type syncDoneMsg struct {
	report *core.SyncReport
	err    error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(plan string, load, sync func() tea.Msg) dashboardModel {
	return dashboardModel{
		plan:        plan,
		activePanel: panelTasks,
		load:        load,
		sync:        sync,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return m.load
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}
		case "r":
			m.loading = true
			return m, m.load
		case "s":
			if m.sync != nil {
				m.loading = true
				m.status = "syncing..."
				return m, m.sync
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.tasks = msg.plan.Tasks
		m.revision = msg.plan.Revision
		m.alerts = msg.alerts
		m.metrics = msg.metrics
		m.err = nil
		if m.cursor >= len(m.tasks) {
			m.cursor = max(len(m.tasks)-1, 0)
		}
		return m, nil

	case syncDoneMsg:
		if msg.err != nil {
			m.loading = false
			m.status = "sync failed: " + msg.err.Error()
			return m, nil
		}
		m.status = syncSummary(msg.report)
		return m, m.load
	}

	return m, nil
}

func syncSummary(r *core.SyncReport) string {
	switch {
	case !r.RunsFound:
		return "no runs found at " + r.RunsRoot
	case r.Written:
		return fmt.Sprintf("synced: %d task(s) changed, revision %d", r.Result.Changed, r.Revision)
	default:
		return "synced: no changes needed"
	}
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(fmt.Sprintf(" plansync: %s (rev %d) ", m.plan, m.revision))
	help := helpStyle.Render("tab: switch panel | j/k: select | s: sync | r: refresh | q: quit")
	if m.status != "" {
		help = helpStyle.Render(m.status) + "\n" + help
	}

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	tasksPanel := m.renderTasksPanel()
	detailPanel := m.renderDetailPanel()
	alertsPanel := m.renderAlertsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.applyPanelStyle(panelTasks, tasksPanel, colWidth-4),
			m.applyPanelStyle(panelDetail, detailPanel, colWidth-4),
			m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4),
		)
	} else {
		panelWidth := max(availableWidth-4, 20)
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.applyPanelStyle(panelTasks, tasksPanel, panelWidth),
			m.applyPanelStyle(panelDetail, detailPanel, panelWidth),
			m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth),
		)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderTasksPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString("\n")

	if len(m.tasks) == 0 {
		b.WriteString("  No tasks found.")
		return b.String()
	}

	for i, t := range m.tasks {
		status := lipgloss.NewStyle().Foreground(statusColor(t.Status)).Render(fmt.Sprintf("%-11s", t.Status))
		line := fmt.Sprintf("%s %s", t.ID, status)
		if i == m.cursor {
			line = selectedStyle.Render(t.ID) + " " + status
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func (m dashboardModel) renderDetailPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Task"))
	b.WriteString("\n")

	if len(m.tasks) == 0 {
		b.WriteString("  Nothing selected.")
		return b.String()
	}

	t := m.tasks[m.cursor]
	fields := []struct{ label, value string }{
		{"id", t.ID},
		{"title", t.Title},
		{"status", string(t.Status)},
		{"depends_on", strings.Join(t.DependsOn, ", ")},
		{"run_dir", t.RunDir},
		{"last_run_id", t.LastRunID},
		{"delegated_at", t.DelegatedAt},
		{"agent_done_at", t.AgentDoneAt},
		{"blocked_at", t.BlockedAt},
		{"blocked_reason", t.BlockedReason},
		{"verified_at", t.VerifiedAt},
		{"verified_note", t.VerifiedNote},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("  %-15s %s\n", f.label, f.value))
	}
	for _, v := range t.Verify {
		b.WriteString(fmt.Sprintf("  %-15s %s\n", "verify", v))
	}

	if md := m.metrics; md != nil {
		b.WriteString(fmt.Sprintf("\n  events (7d): %d  syncs: %d  verifications: %d  kills: %d", md.EventCount, md.Syncs, md.Verifications, md.Kills))
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.Message))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForSeverity(severity observability.AlertSeverity) lipgloss.Style {
	switch severity {
	case observability.SeverityHigh:
		return severityHigh
	case observability.SeverityMedium:
		return severityMedium
	case observability.SeverityLow:
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// loadDashboardData reads the plan, its alerts and recent metrics.
func loadDashboardData(plan string) func() tea.Msg {
	return func() tea.Msg {
		p, err := Plans.Load(plan)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		result := dataLoadedMsg{plan: p}
		if AlertEngine != nil {
			result.alerts = AlertEngine.Evaluate(plan, p, time.Now())
		}
		if MetricsCalc != nil {
			// Metrics are optional on the dashboard.
			result.metrics, _ = MetricsCalc.Calculate(time.Now().UTC().AddDate(0, 0, -7), plan)
		}
		return result
	}
}

func syncFromDashboard(plan string) func() tea.Msg {
	return func() tea.Msg {
		report, err := Plans.Sync(core.SyncRequest{Plan: plan})
		return syncDoneMsg{report: report, err: err}
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open an interactive view of a plan",
	Long: `Open a terminal dashboard with the plan's tasks, the selected task's
provenance and the plan's alerts. Press s to sync from run results.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePlans(); err != nil {
			return err
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("dashboard needs an interactive terminal; use 'plansync status' instead")
		}
		slug, _, err := Plans.Resolve(dashboardPlan)
		if err != nil {
			return err
		}

		m := newDashboardModel(slug, loadDashboardData(slug), syncFromDashboard(slug))
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardPlan, "plan", "", "plan name (required)")
	_ = dashboardCmd.MarkFlagRequired("plan")
	registerPlanCompletions(dashboardCmd)
	rootCmd.AddCommand(dashboardCmd)
}
