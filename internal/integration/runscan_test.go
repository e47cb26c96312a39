package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeArtifact(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCollect_MissingRootYieldsNothing(t *testing.T) {
	obs, err := NewRunCollector().Collect(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("expected no observations, got %d", len(obs))
	}
}

func TestCollect_ReadsResultsInTimeOrder(t *testing.T) {
	root := t.TempDir()
	// Directory names sort opposite to their creation times.
	writeArtifact(t, filepath.Join(root, "a-run", "meta.json"),
		`{"created_at": "2026-01-02T00:00:00Z", "invocation_run_id": "inv-2", "run_id": "r2"}`)
	writeArtifact(t, filepath.Join(root, "a-run", "results", "task_001.json"),
		`{"task_id": "task_001", "status": "timeout"}`)
	writeArtifact(t, filepath.Join(root, "b-run", "meta.json"),
		`{"created_at": "2026-01-01T00:00:00", "run_id": "r1"}`)
	writeArtifact(t, filepath.Join(root, "b-run", "results", "task_001.json"),
		`{"task": "task_001", "state": " DONE "}`)

	obs, err := NewRunCollector().Collect(root)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d: %+v", len(obs), obs)
	}

	if obs[0].RunID != "r1" || obs[0].StatusHint != "done" {
		t.Errorf("first observation = %+v, want run r1 with hint done", obs[0])
	}
	if obs[1].RunID != "inv-2" || obs[1].StatusHint != "timeout" {
		t.Errorf("second observation = %+v, want run inv-2 with hint timeout", obs[1])
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !obs[0].ObservedAt.Equal(want) {
		t.Errorf("offset-less timestamp parsed as %v, want %v", obs[0].ObservedAt, want)
	}
	if obs[1].RunDir != filepath.Join(root, "a-run") {
		t.Errorf("RunDir = %q", obs[1].RunDir)
	}
}

func TestCollect_SkipsMalformedRecords(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "run-1")
	writeArtifact(t, filepath.Join(run, "meta.json"), `{not json`)
	writeArtifact(t, filepath.Join(run, "results", "a.json"), `{"status": "done"}`)
	writeArtifact(t, filepath.Join(run, "results", "b.json"), `[1, 2, 3]`)
	writeArtifact(t, filepath.Join(run, "results", "c.json"), `{"id": "task_003"}`)
	writeArtifact(t, filepath.Join(run, "results", "notes.txt"), `task_004`)

	obs, err := NewRunCollector().Collect(root)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %+v", obs)
	}
	if obs[0].TaskID != "task_003" || obs[0].StatusHint != DefaultStatusHint {
		t.Errorf("observation = %+v, want task_003 with default hint", obs[0])
	}
	if obs[0].RunID != "" {
		t.Errorf("RunID = %q, want empty for malformed meta", obs[0].RunID)
	}
	if obs[0].ObservedAt.IsZero() {
		t.Error("expected directory mtime fallback for ObservedAt")
	}
}

func TestCollect_IgnoresRunsWithoutResults(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, filepath.Join(root, "run-1", "meta.json"), `{"run_id": "r1"}`)
	writeArtifact(t, filepath.Join(root, "stray.json"), `{"task_id": "task_001"}`)

	obs, err := NewRunCollector().Collect(root)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("expected no observations, got %+v", obs)
	}
}

func TestReadRunMeta_AgentPID(t *testing.T) {
	run := t.TempDir()
	writeArtifact(t, filepath.Join(run, "meta.json"),
		`{"agent_pid": 4242, "current_task_id": " task_002 ", "thread_id": "th-1"}`)

	meta, err := ReadRunMeta(run)
	if err != nil {
		t.Fatalf("ReadRunMeta: %v", err)
	}
	if !meta.HasAgentPID || meta.AgentPID != 4242 {
		t.Errorf("agent pid = %d (has=%v), want 4242", meta.AgentPID, meta.HasAgentPID)
	}
	if meta.CurrentTaskID != "task_002" {
		t.Errorf("CurrentTaskID = %q", meta.CurrentTaskID)
	}
	if meta.ThreadID != "th-1" {
		t.Errorf("ThreadID = %q", meta.ThreadID)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2026-03-04T05:06:07Z", true, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"2026-03-04T07:06:07+02:00", true, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"2026-03-04T05:06:07.5", true, time.Date(2026, 3, 4, 5, 6, 7, 500000000, time.UTC)},
		{"2026-03-04 05:06:07", true, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
