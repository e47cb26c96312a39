package integration

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestLatestRunDir(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, filepath.Join(root, "20260101-a", "meta.json"), `{}`)
	writeArtifact(t, filepath.Join(root, "20260103-c", "meta.json"), `{}`)
	writeArtifact(t, filepath.Join(root, "20260102-b", "meta.json"), `{}`)

	got, err := NewRunInspector().LatestRunDir(root)
	if err != nil {
		t.Fatalf("LatestRunDir: %v", err)
	}
	if got != filepath.Join(root, "20260103-c") {
		t.Errorf("got %q", got)
	}

	empty, err := NewRunInspector().LatestRunDir(filepath.Join(root, "missing"))
	if err != nil || empty != "" {
		t.Errorf("missing root: got %q, %v", empty, err)
	}
}

func TestReadAgentPIDs(t *testing.T) {
	run := t.TempDir()
	writeArtifact(t, filepath.Join(run, "control", "agent_pids.json"),
		`{"task_002": "321", "task_001": 123, "task_003": null, "task_004": "abc"}`)

	tasks, pids := NewRunInspector().ReadAgentPIDs(run)
	wantTasks := []string{"task_001", "task_002", "task_003", "task_004"}
	if strings.Join(tasks, ",") != strings.Join(wantTasks, ",") {
		t.Errorf("tasks = %v, want %v", tasks, wantTasks)
	}
	if pids["task_001"] != 123 || pids["task_002"] != 321 {
		t.Errorf("pids = %v", pids)
	}
	if _, ok := pids["task_003"]; ok {
		t.Error("null pid should be absent")
	}
	if _, ok := pids["task_004"]; ok {
		t.Error("non-numeric pid should be absent")
	}
}

func TestReadAgentPIDs_Missing(t *testing.T) {
	tasks, pids := NewRunInspector().ReadAgentPIDs(t.TempDir())
	if len(tasks) != 0 || len(pids) != 0 {
		t.Errorf("expected nothing, got %v %v", tasks, pids)
	}
}

func TestTail_BoundsLinesAndBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	var b strings.Builder
	for i := 1; i <= 200; i++ {
		fmt.Fprintf(&b, "line %03d\n", i)
	}
	writeArtifact(t, path, b.String())
	inspector := NewRunInspector()

	got, err := inspector.Tail(path, 3, 64000)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got != "line 198\nline 199\nline 200" {
		t.Errorf("line-bounded tail = %q", got)
	}

	got, err = inspector.Tail(path, 80, 18)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got != "line 199\nline 200\n" {
		t.Errorf("byte-bounded tail = %q", got)
	}
}

func TestTail_ReplacesInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	writeArtifact(t, path, "ok \xff\xfe end\n")

	got, err := NewRunInspector().Tail(path, 80, 64000)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !strings.Contains(got, "ok ") || !strings.Contains(got, " end") || strings.Contains(got, "\xff") {
		t.Errorf("tail = %q", got)
	}
}

func TestTail_MissingFile(t *testing.T) {
	if _, err := NewRunInspector().Tail(filepath.Join(t.TempDir(), "none.log"), 80, 64000); err == nil {
		t.Error("expected error for missing log")
	}
}

func TestFindSessionID(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want string
	}{
		{
			name: "first start line wins",
			log: "starting agent\n" +
				`{"type": "turn.started"}` + "\n" +
				`{"type": "thread.started", "thread_id": "th-abc"}` + "\n" +
				`{"type": "thread.started", "thread_id": "th-later"}` + "\n",
			want: "th-abc",
		},
		{
			name: "non-string id skipped",
			log: `{"type": "thread.started", "thread_id": 7}` + "\n" +
				`{"type": "thread.started", "thread_id": "th-2"}` + "\n",
			want: "th-2",
		},
		{
			name: "malformed json skipped",
			log:  "{broken\n" + `  {"type": "thread.started", "thread_id": "indented"}` + "\n",
			want: "",
		},
		{
			name: "no start line",
			log:  "plain text only\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agent.log")
			writeArtifact(t, path, tt.log)

			got, err := NewRunInspector().FindSessionID(path)
			if err != nil {
				t.Fatalf("FindSessionID: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
