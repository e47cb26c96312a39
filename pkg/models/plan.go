package models

// DocRef cross-references the document set a plan was generated from.
type DocRef struct {
	Change        string `json:"change,omitempty" yaml:"change,omitempty"`
	Proposal      string `json:"proposal,omitempty" yaml:"proposal,omitempty"`
	Tasks         string `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	SpecDeltasDir string `json:"spec_deltas_dir,omitempty" yaml:"spec_deltas_dir,omitempty"`
}

// Plan is the durable record of one named unit of delegated work.
// Task order is execution and display order.
type Plan struct {
	Goal      string
	CreatedAt string
	// Revision increases by one on every committed mutation. Plans written
	// by tools that do not know about it load with Revision 0.
	Revision int
	Source   *DocRef
	Tasks    []Task

	// Extra holds unknown top-level keys, preserved verbatim.
	Extra map[string]any
}

// FindTask returns a pointer to the task with the given id, or nil.
func (p *Plan) FindTask(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// StatusCounts returns the number of tasks per status value, including
// invalid values found on disk.
func (p *Plan) StatusCounts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, t := range p.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Clone returns a deep copy of the plan so callers can compute changes
// without touching the original (dry runs).
func (p *Plan) Clone() *Plan {
	out := *p
	if p.Source != nil {
		src := *p.Source
		out.Source = &src
	}
	out.Extra = cloneMap(p.Extra)
	out.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		t.ExpectedFiles = cloneStrings(t.ExpectedFiles)
		t.Verify = cloneStrings(t.Verify)
		t.DoneCriteria = cloneStrings(t.DoneCriteria)
		t.DependsOn = cloneStrings(t.DependsOn)
		t.Extra = cloneMap(t.Extra)
		out.Tasks[i] = t
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// cloneMap copies the top level only; values in Extra are never mutated.
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
