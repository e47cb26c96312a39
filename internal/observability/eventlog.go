package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line of the plansync event log.
type Event struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // INFO, WARN, ERROR
	Type    string    `json:"type"`  // e.g. "plan.synced", "task.verified"
	Message string    `json:"msg"`
	// Invocation ties together every event written by one CLI or MCP
	// session.
	Invocation string         `json:"invocation,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Plan returns the "plan" data key, or "".
func (e Event) Plan() string { return e.dataString("plan") }

// TaskID returns the "task_id" data key, or "".
func (e Event) TaskID() string { return e.dataString("task_id") }

func (e Event) dataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
	Plan  string
	Task  string
	// Limit keeps only the newest Limit matches when positive.
	Limit int
}

// Match reports whether e satisfies every set criterion.
func (f EventFilter) Match(e Event) bool {
	switch {
	case f.Since != nil && e.Time.Before(*f.Since):
		return false
	case f.Until != nil && e.Time.After(*f.Until):
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.Level != "" && e.Level != f.Level:
		return false
	case f.Plan != "" && e.Plan() != f.Plan:
		return false
	case f.Task != "" && e.TaskID() != f.Task:
		return false
	}
	return true
}

// EventLog is an append-only event store.
type EventLog interface {
	Write(event Event) error
	// Read returns matching events in file order.
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// maxEventLine bounds a single log line; longer lines are skipped.
const maxEventLine = 1 << 20

type jsonlEventLog struct {
	mu         sync.Mutex
	path       string
	invocation string
	out        *os.File
}

// NewJSONLEventLog opens (creating if needed) the JSON-lines log at path.
// Events written without an Invocation are stamped with invocation.
func NewJSONLEventLog(path, invocation string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating event log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path from config
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, invocation: invocation, out: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	if event.Invocation == "" {
		event.Invocation = l.invocation
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.Type, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A record is always a single write.
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	events, err := scanEvents(f, filter)
	if err != nil {
		return nil, fmt.Errorf("reading event log %s: %w", l.path, err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// scanEvents decodes JSON lines from r. Blank, malformed and oversized lines
// are skipped.
func scanEvents(r io.Reader, filter EventFilter) ([]Event, error) {
	br := bufio.NewReader(r)
	var events []Event
	for {
		line, err := readLine(br)
		if len(line) > 0 {
			var e Event
			if json.Unmarshal(line, &e) == nil && filter.Match(e) {
				events = append(events, e)
				if filter.Limit > 0 && len(events) > filter.Limit {
					events = events[1:]
				}
			}
		}
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// readLine returns the next line without its newline, or nil when the line
// exceeds maxEventLine.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(line)+len(chunk) <= maxEventLine {
			line = append(line, chunk...)
		} else {
			for isPrefix && err == nil {
				_, isPrefix, err = br.ReadLine()
			}
			return nil, err
		}
		if !isPrefix || err != nil {
			return line, err
		}
	}
}
