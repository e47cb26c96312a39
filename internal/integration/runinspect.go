package integration

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// SessionStartType marks the structured log line that carries the agent's
// session identifier.
const SessionStartType = "thread.started"

// RunInspector reads the artifacts of a single run for diagnosis.
type RunInspector interface {
	// LatestRunDir returns the last run directory under runsRoot by name, or
	// "" when there is none.
	LatestRunDir(runsRoot string) (string, error)
	// ReadMeta reads meta.json, returning a zero RunMeta when it is missing
	// or malformed.
	ReadMeta(runDir string) models.RunMeta
	// ReadAgentPIDs reads control/agent_pids.json. tasks lists every task id
	// in the map in sorted order; pids holds the entries with a usable pid.
	ReadAgentPIDs(runDir string) (tasks []string, pids map[string]int)
	// Tail returns at most maxLines lines from the last maxBytes of a file.
	Tail(path string, maxLines int, maxBytes int64) (string, error)
	// FindSessionID scans a log for the first session-start line.
	FindSessionID(logPath string) (string, error)
}

type fileRunInspector struct{}

// NewRunInspector creates a RunInspector over the on-disk run layout.
func NewRunInspector() RunInspector {
	return &fileRunInspector{}
}

func (i *fileRunInspector) LatestRunDir(runsRoot string) (string, error) {
	dirs, err := listRunDirs(runsRoot)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", nil
	}
	return dirs[len(dirs)-1], nil
}

func (i *fileRunInspector) ReadMeta(runDir string) models.RunMeta {
	meta, _ := ReadRunMeta(runDir)
	return meta
}

func (i *fileRunInspector) ReadAgentPIDs(runDir string) ([]string, map[string]int) {
	record, err := readJSONObject(filepath.Join(runDir, "control", "agent_pids.json"))
	if err != nil {
		return nil, nil
	}

	tasks := make([]string, 0, len(record))
	pids := make(map[string]int, len(record))
	for taskID, v := range record {
		tasks = append(tasks, taskID)
		var raw string
		switch pv := v.(type) {
		case json.Number:
			raw = pv.String()
		case string:
			raw = strings.TrimSpace(pv)
		default:
			continue
		}
		if pid, err := strconv.Atoi(raw); err == nil {
			pids[taskID] = pid
		}
	}
	sort.Strings(tasks)
	return tasks, pids
}

func (i *fileRunInspector) Tail(path string, maxLines int, maxBytes int64) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: log path resolved from run meta
	if err != nil {
		return "", fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("reading log info: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		if _, err := f.Seek(info.Size()-maxBytes, io.SeekStart); err != nil {
			return "", fmt.Errorf("seeking log: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	text := strings.ToValidUTF8(string(data), "�")

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return text, nil
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n"), nil
}

type sessionLine struct {
	Type     string `json:"type"`
	ThreadID any    `json:"thread_id"`
}

func (i *fileRunInspector) FindSessionID(logPath string) (string, error) {
	f, err := os.Open(logPath) //nolint:gosec // G304: log path resolved from run meta
	if err != nil {
		return "", fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	// Agent logs can carry very long tool-output lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var entry sessionLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != SessionStartType {
			continue
		}
		if id, ok := entry.ThreadID.(string); ok {
			return id, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning log: %w", err)
	}
	return "", nil
}
