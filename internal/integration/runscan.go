package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/plansync/pkg/models"
)

// DefaultStatusHint is used when a result record carries no status at all.
const DefaultStatusHint = "agent_done"

// RunCollector scans run artifact directories for per-task results.
type RunCollector interface {
	// Collect returns every observation found under runsRoot, ordered by
	// ObservedAt ascending. Malformed records are skipped; a missing root
	// yields no observations and no error.
	Collect(runsRoot string) ([]models.RunObservation, error)
}

type fileRunCollector struct{}

// NewRunCollector creates a RunCollector reading <root>/<run>/meta.json and
// <root>/<run>/results/*.json.
func NewRunCollector() RunCollector {
	return &fileRunCollector{}
}

func (c *fileRunCollector) Collect(runsRoot string) ([]models.RunObservation, error) {
	runDirs, err := listRunDirs(runsRoot)
	if err != nil {
		return nil, err
	}

	var observations []models.RunObservation
	for _, runDir := range runDirs {
		meta, _ := ReadRunMeta(runDir)

		observedAt, ok := ParseTimestamp(meta.CreatedAt)
		if !ok {
			info, err := os.Stat(runDir)
			if err != nil {
				continue
			}
			observedAt = info.ModTime().UTC()
		}

		resultFiles, err := filepath.Glob(filepath.Join(runDir, "results", "*.json"))
		if err != nil || len(resultFiles) == 0 {
			continue
		}
		sort.Strings(resultFiles)

		for _, resultFile := range resultFiles {
			result, err := readTaskResult(resultFile)
			if err != nil || result.TaskID == "" {
				continue
			}
			observations = append(observations, models.RunObservation{
				TaskID:     result.TaskID,
				StatusHint: result.Status,
				RunDir:     runDir,
				RunID:      meta.RunID,
				ObservedAt: observedAt,
			})
		}
	}

	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].ObservedAt.Before(observations[j].ObservedAt)
	})
	return observations, nil
}

// listRunDirs returns the immediate subdirectories of runsRoot, sorted by name.
func listRunDirs(runsRoot string) ([]string, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs root %s: %w", runsRoot, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(runsRoot, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadRunMeta reads <runDir>/meta.json. A missing or malformed file yields a
// zero RunMeta together with the error; callers usually ignore the error.
func ReadRunMeta(runDir string) (models.RunMeta, error) {
	record, err := readJSONObject(filepath.Join(runDir, "meta.json"))
	if err != nil {
		return models.RunMeta{}, err
	}

	meta := models.RunMeta{
		CreatedAt:     stringField(record, "created_at"),
		RunID:         firstString(record, "invocation_run_id", "run_id"),
		Status:        stringField(record, "status"),
		UpdatedAt:     stringField(record, "updated_at"),
		CurrentTaskID: strings.TrimSpace(stringField(record, "current_task_id")),
		AgentLogPath:  stringField(record, "agent_log_path"),
		ThreadID:      stringField(record, "thread_id"),
	}
	if n, ok := record["agent_pid"].(json.Number); ok {
		if pid, err := strconv.Atoi(n.String()); err == nil {
			meta.AgentPID = pid
			meta.HasAgentPID = true
		}
	}
	return meta, nil
}

func readTaskResult(path string) (models.TaskResult, error) {
	record, err := readJSONObject(path)
	if err != nil {
		return models.TaskResult{}, err
	}

	status := strings.ToLower(strings.TrimSpace(firstString(record, "status", "state")))
	if status == "" {
		status = DefaultStatusHint
	}
	return models.TaskResult{
		TaskID: strings.TrimSpace(firstString(record, "task_id", "task", "id")),
		Status: status,
		Note:   stringField(record, "note"),
	}, nil
}

func readJSONObject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: artifact paths come from the runs root
	if err != nil {
		return nil, err
	}

	var record map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if record == nil {
		return nil, fmt.Errorf("parsing %s: not an object", path)
	}
	return record, nil
}

// stringField returns a string value; numbers are rendered, everything else
// is treated as absent.
func stringField(record map[string]any, key string) string {
	switch v := record[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func firstString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(record, key); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses RFC3339 and offset-less ISO 8601 timestamps. Values
// without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
