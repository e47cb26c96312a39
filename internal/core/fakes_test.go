package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

var fixedNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeCollector returns canned observations, optionally per runs root.
type fakeCollector struct {
	observations []models.RunObservation
	err          error
	roots        []string
}

func (c *fakeCollector) Collect(runsRoot string) ([]models.RunObservation, error) {
	c.roots = append(c.roots, runsRoot)
	return c.observations, c.err
}

var errStale = errors.New("stale write")

// memoryPlanStore keeps plans in memory, keyed by path.
type memoryPlanStore struct {
	mu      sync.Mutex
	plans   map[string]*models.Plan
	updates int
	commits int
}

func newMemoryPlanStore() *memoryPlanStore {
	return &memoryPlanStore{plans: make(map[string]*models.Plan)}
}

func (s *memoryPlanStore) put(path string, plan *models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[path] = plan.Clone()
}

func (s *memoryPlanStore) get(path string) *models.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans[path]
}

func (s *memoryPlanStore) Load(path string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[path]
	if !ok {
		return nil, errors.New("plan not found: " + path)
	}
	return p.Clone(), nil
}

func (s *memoryPlanStore) Update(path string, fn func(*models.Plan) error) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[path]
	if !ok {
		return nil, errors.New("plan not found: " + path)
	}
	work := p.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	s.updates++
	work.Revision++
	s.plans[path] = work.Clone()
	return work, nil
}

func (s *memoryPlanStore) Commit(path string, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.plans[path]
	if ok && current.Revision != plan.Revision {
		return errStale
	}
	s.commits++
	next := plan.Clone()
	next.Revision++
	s.plans[path] = next
	return nil
}

type auditCall struct {
	path, title, entry string
}

type fakeAudit struct {
	calls []auditCall
	err   error
}

func (a *fakeAudit) Append(path, title, entry string) error {
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, auditCall{path, title, entry})
	return nil
}

type loggedEvent struct {
	eventType string
	data      map[string]any
}

type fakeEventLogger struct {
	events []loggedEvent
}

func (l *fakeEventLogger) LogEvent(eventType string, data map[string]any) error {
	l.events = append(l.events, loggedEvent{eventType, data})
	return nil
}

func (l *fakeEventLogger) count(eventType string) int {
	n := 0
	for _, e := range l.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

type fakeInspector struct {
	latest     string
	meta       models.RunMeta
	pidTasks   []string
	pids       map[string]int
	tail       string
	sessionID  string
	tailCalled bool
	// latestRoot records the root LatestRunDir was asked about.
	latestRoot string
}

func (i *fakeInspector) LatestRunDir(root string) (string, error) {
	i.latestRoot = root
	return i.latest, nil
}
func (i *fakeInspector) ReadMeta(string) models.RunMeta     { return i.meta }
func (i *fakeInspector) ReadAgentPIDs(string) ([]string, map[string]int) {
	return i.pidTasks, i.pids
}

func (i *fakeInspector) Tail(string, int, int64) (string, error) {
	i.tailCalled = true
	return i.tail, nil
}

func (i *fakeInspector) FindSessionID(string) (string, error) { return i.sessionID, nil }

type fakeProcesses struct {
	alive      bool
	info       string
	terminated []int
	grace      time.Duration
}

func (p *fakeProcesses) Alive(int) bool { return p.alive }

func (p *fakeProcesses) Describe(context.Context, int) (string, error) { return p.info, nil }

func (p *fakeProcesses) Terminate(_ context.Context, pid int, grace time.Duration) models.TerminationReport {
	p.terminated = append(p.terminated, pid)
	p.grace = grace
	return models.TerminationReport{PID: pid, GroupSignalled: true, Exited: true}
}
