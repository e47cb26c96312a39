package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/valter-silva-au/plansync/pkg/models"
	"gopkg.in/yaml.v3"
)

// SchemaError reports a structurally invalid plan file.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid plan schema: %s", e.Reason)
	}
	return fmt.Sprintf("invalid plan schema (%s): %s", e.Path, e.Reason)
}

// codec converts between plan file bytes and generic records. Both codecs
// emit mapping keys in sorted order so output is stable across saves.
type codec interface {
	unmarshal(data []byte) (any, error)
	marshal(record map[string]any) ([]byte, error)
}

type jsonCodec struct{}

func (jsonCodec) unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (jsonCodec) marshal(record map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type yamlCodec struct{}

func (yamlCodec) unmarshal(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (yamlCodec) marshal(record map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// codecFor picks the codec from the file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec{}
	default:
		return jsonCodec{}
	}
}

// Known record keys. Anything else lands in Extra.
const (
	keyGoal      = "goal"
	keyCreatedAt = "created_at"
	keyRevision  = "revision"
	keyOpenSpec  = "openspec"
	keyTasks     = "tasks"
)

var taskStringKeys = []string{
	"title", "description", "status",
	"run_dir", "last_run_id", "delegated_at", "agent_done_at",
	"blocked_at", "blocked_reason", "verified_at", "verified_by", "verified_note",
}

var taskListKeys = []string{"expected_files", "verify", "done_criteria", "depends_on"}

func decodePlan(path string, raw any) (*models.Plan, error) {
	record, ok := raw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: path, Reason: "top level must be a mapping"}
	}

	rawTasks, ok := record[keyTasks].([]any)
	if !ok {
		return nil, &SchemaError{Path: path, Reason: "missing tasks list"}
	}

	plan := &models.Plan{
		Goal:      asString(record[keyGoal]),
		CreatedAt: asString(record[keyCreatedAt]),
		Revision:  asInt(record[keyRevision]),
		Tasks:     make([]models.Task, 0, len(rawTasks)),
	}

	extra := make(map[string]any)
	for k, v := range record {
		switch k {
		case keyGoal, keyCreatedAt, keyRevision, keyTasks:
			continue
		case keyOpenSpec:
			if ref, ok := decodeDocRef(v); ok {
				plan.Source = ref
				continue
			}
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		plan.Extra = extra
	}

	for i, rt := range rawTasks {
		task, err := decodeTask(rt)
		if err != nil {
			return nil, &SchemaError{Path: path, Reason: fmt.Sprintf("task at index %d: %s", i+1, err)}
		}
		plan.Tasks = append(plan.Tasks, task)
	}

	return plan, nil
}

func decodeTask(raw any) (models.Task, error) {
	record, ok := raw.(map[string]any)
	if !ok {
		return models.Task{}, fmt.Errorf("expected object")
	}

	var t models.Task
	switch {
	case strings.TrimSpace(asString(record["id"])) != "":
		t.IDKey = "id"
	case strings.TrimSpace(asString(record["task_id"])) != "":
		t.IDKey = "task_id"
	default:
		return models.Task{}, fmt.Errorf("missing id/task_id")
	}
	t.ID = strings.TrimSpace(asString(record[t.IDKey]))

	if v, present := record["verify"]; present {
		list, ok := asStringList(v)
		if !ok {
			return models.Task{}, fmt.Errorf("task %s verify must be a list of strings", t.ID)
		}
		t.Verify = list
	}

	t.Title = asString(record["title"])
	t.Description = asString(record["description"])
	t.Status = models.TaskStatus(asString(record["status"]))
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	t.RunDir = asString(record["run_dir"])
	t.LastRunID = asString(record["last_run_id"])
	t.DelegatedAt = asString(record["delegated_at"])
	t.AgentDoneAt = asString(record["agent_done_at"])
	t.BlockedAt = asString(record["blocked_at"])
	t.BlockedReason = asString(record["blocked_reason"])
	t.VerifiedAt = asString(record["verified_at"])
	t.VerifiedBy = asString(record["verified_by"])
	t.VerifiedNote = asString(record["verified_note"])

	extra := make(map[string]any)
	for k, v := range record {
		if k == t.IDKey || k == "verify" || containsKey(taskStringKeys, k) {
			continue
		}
		if containsKey(taskListKeys, k) {
			if list, ok := asStringList(v); ok {
				switch k {
				case "expected_files":
					t.ExpectedFiles = list
				case "done_criteria":
					t.DoneCriteria = list
				case "depends_on":
					t.DependsOn = list
				}
				continue
			}
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		t.Extra = extra
	}

	return t, nil
}

func encodePlan(plan *models.Plan) map[string]any {
	record := make(map[string]any, len(plan.Extra)+5)
	for k, v := range plan.Extra {
		record[k] = v
	}

	record[keyGoal] = plan.Goal
	if plan.CreatedAt != "" {
		record[keyCreatedAt] = plan.CreatedAt
	}
	if plan.Revision > 0 {
		record[keyRevision] = plan.Revision
	}
	if plan.Source != nil {
		record[keyOpenSpec] = encodeDocRef(plan.Source)
	}

	tasks := make([]any, len(plan.Tasks))
	for i := range plan.Tasks {
		tasks[i] = encodeTask(&plan.Tasks[i])
	}
	record[keyTasks] = tasks

	return record
}

func encodeTask(t *models.Task) map[string]any {
	record := make(map[string]any, len(t.Extra)+12)
	for k, v := range t.Extra {
		record[k] = v
	}

	idKey := t.IDKey
	if idKey == "" {
		idKey = "id"
	}
	record[idKey] = t.ID
	record["title"] = t.Title
	record["description"] = t.Description
	record["status"] = string(t.Status)

	putList(record, "expected_files", t.ExpectedFiles)
	putList(record, "verify", t.Verify)
	putList(record, "done_criteria", t.DoneCriteria)
	putList(record, "depends_on", t.DependsOn)

	putString(record, "run_dir", t.RunDir)
	putString(record, "last_run_id", t.LastRunID)
	putString(record, "delegated_at", t.DelegatedAt)
	putString(record, "agent_done_at", t.AgentDoneAt)
	putString(record, "blocked_at", t.BlockedAt)
	putString(record, "blocked_reason", t.BlockedReason)
	putString(record, "verified_at", t.VerifiedAt)
	putString(record, "verified_by", t.VerifiedBy)
	putString(record, "verified_note", t.VerifiedNote)

	return record
}

func decodeDocRef(v any) (*models.DocRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for k := range m {
		switch k {
		case "change", "proposal", "tasks", "spec_deltas_dir":
		default:
			// Unknown reference keys: keep the whole record as an extra.
			return nil, false
		}
	}
	return &models.DocRef{
		Change:        asString(m["change"]),
		Proposal:      asString(m["proposal"]),
		Tasks:         asString(m["tasks"]),
		SpecDeltasDir: asString(m["spec_deltas_dir"]),
	}, true
}

func encodeDocRef(ref *models.DocRef) map[string]any {
	m := make(map[string]any, 4)
	putString(m, "change", ref.Change)
	putString(m, "proposal", ref.Proposal)
	putString(m, "tasks", ref.Tasks)
	putString(m, "spec_deltas_dir", ref.SpecDeltasDir)
	return m
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func putList(m map[string]any, key string, list []string) {
	if list != nil {
		m[key] = list
	}
}

func containsKey(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0
		}
		return i
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func asStringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
