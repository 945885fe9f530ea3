package planner

import (
	"fmt"
	"strings"

	"github.com/hookbench/hookbench/internal/domain"
)

// Validate checks a plan against the structural invariants: unique step
// ids, resolvable dependencies, and an acyclic dependency graph. A plan
// that fails validation is rejected, never silently repaired.
func Validate(p *domain.Plan) error {
	if len(p.Steps) == 0 {
		return &domain.PlanError{Message: "plan has no steps"}
	}

	byID := make(map[string]*domain.Step, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.ID == "" {
			return &domain.PlanError{Message: fmt.Sprintf("step %d has empty id", i)}
		}
		if _, dup := byID[s.ID]; dup {
			return &domain.PlanError{Message: "duplicate step id: " + s.ID}
		}
		if s.API == "" || s.Operation == "" {
			return &domain.PlanError{Message: "step " + s.ID + " missing api or operation"}
		}
		byID[s.ID] = s
	}

	for i := range p.Steps {
		for _, dep := range p.Steps[i].Dependencies() {
			if _, ok := byID[dep]; !ok {
				return &domain.PlanError{
					Message: fmt.Sprintf("step %s depends on unknown step %s", p.Steps[i].ID, dep),
				}
			}
		}
	}

	if cycle := findCycle(p); len(cycle) > 0 {
		return &domain.PlanError{
			Message: "circular dependency: " + strings.Join(cycle, " -> "),
		}
	}

	return nil
}

// findCycle runs depth-first search over the dependency graph and returns
// the cycle path if one exists.
func findCycle(p *domain.Plan) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Steps))
	deps := make(map[string][]string, len(p.Steps))
	for i := range p.Steps {
		deps[p.Steps[i].ID] = p.Steps[i].Dependencies()
	}

	var path []string
	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				// Trim the path down to the cycle itself.
				for i, seen := range path {
					if seen == dep {
						return append(path[i:], dep)
					}
				}
				return append(path, dep)
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	for i := range p.Steps {
		if color[p.Steps[i].ID] == white {
			if cycle := visit(p.Steps[i].ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ExecutionOrder returns step ids in a topological order consistent with
// declaration order: among steps whose dependencies are satisfied, the one
// declared first runs first (stable tie-break by declaration index).
// The plan must already be validated.
func ExecutionOrder(p *domain.Plan) []string {
	indegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string, len(p.Steps))
	for i := range p.Steps {
		id := p.Steps[i].ID
		deps := p.Steps[i].Dependencies()
		indegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	order := make([]string, 0, len(p.Steps))
	done := make(map[string]bool, len(p.Steps))
	for len(order) < len(p.Steps) {
		// Pick the earliest-declared ready step.
		picked := ""
		for i := range p.Steps {
			id := p.Steps[i].ID
			if !done[id] && indegree[id] == 0 {
				picked = id
				break
			}
		}
		if picked == "" {
			// Unreachable for validated (acyclic) plans.
			break
		}
		done[picked] = true
		order = append(order, picked)
		for _, dep := range dependents[picked] {
			indegree[dep]--
		}
	}
	return order
}
