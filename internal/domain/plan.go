package domain

import "strings"

// Plan is an ordered sequence of steps built for one goal and one API set.
type Plan struct {
	ID    string   `json:"id"`
	Goal  string   `json:"goal,omitempty"`
	APIs  []string `json:"apis"`
	Steps []Step   `json:"steps"`
}

// Step is one unit of a plan. Inputs map parameter names to references of
// the form "stepID.outputKey"; referenced steps become implicit
// dependencies alongside the explicit DependsOn list.
type Step struct {
	ID        string            `json:"id"`
	API       string            `json:"api"`
	Operation string            `json:"operation"`
	Critical  bool              `json:"critical"`
	DependsOn []string          `json:"dependsOn,omitempty"`
	Inputs    map[string]string `json:"inputs,omitempty"`

	// Compensation names the inverse operation that semantically undoes
	// this step's side effect (e.g. "refund" for "charge"). Empty means
	// the step does not participate in rollback.
	Compensation string `json:"compensation,omitempty"`
}

// InputRef is a parsed "stepID.outputKey" input reference.
type InputRef struct {
	StepID string
	Output string
}

// ParseInputRef splits an input reference into its step and output parts.
// References without a dot are literals, not bindings; ok is false for those.
func ParseInputRef(ref string) (InputRef, bool) {
	i := strings.IndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return InputRef{}, false
	}
	return InputRef{StepID: ref[:i], Output: ref[i+1:]}, true
}

// Dependencies returns the union of explicit and input-implied dependency
// step ids, de-duplicated, in declaration order.
func (s *Step) Dependencies() []string {
	seen := make(map[string]bool, len(s.DependsOn)+len(s.Inputs))
	var deps []string
	add := func(id string) {
		if id != "" && id != s.ID && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, id := range s.DependsOn {
		add(id)
	}
	for _, ref := range s.Inputs {
		if r, ok := ParseInputRef(ref); ok {
			add(r.StepID)
		}
	}
	return deps
}

// StepIndex returns the declaration index of a step id, or -1.
func (p *Plan) StepIndex(id string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i
		}
	}
	return -1
}
