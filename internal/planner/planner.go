// Package planner turns a goal and a set of API identifiers into an
// ordered, criticality-annotated step plan with compensation actions.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hookbench/hookbench/internal/ai"
	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/logging"
)

// CriticalityOverride lets a caller flip a step's default criticality.
type CriticalityOverride struct {
	StepID   string `json:"stepId"`
	Critical bool   `json:"critical"`
}

// Planner builds plans from the canonical template library, delegating
// unknown API sets to the AI capability.
type Planner struct {
	ai      ai.Client // nil disables synthesis
	timeout time.Duration
	log     *logging.Logger
}

// New creates a planner. aiClient may be nil; then unknown identifiers
// are rejected instead of synthesized.
func New(aiClient ai.Client, timeout time.Duration, log *logging.Logger) *Planner {
	return &Planner{ai: aiClient, timeout: timeout, log: log.Sub("planner")}
}

// Plan produces a validated plan for the API set and goal. Known
// identifiers expand deterministically from the template library; unknown
// identifiers or free-text-only goals are resolved via the AI capability
// and then validated like any other plan.
func (pl *Planner) Plan(ctx context.Context, apis []string, goal string, overrides []CriticalityOverride) (*domain.Plan, error) {
	if len(apis) == 0 && goal == "" {
		return nil, &domain.PlanError{Message: "no apis and no goal"}
	}

	allKnown := len(apis) > 0
	for _, api := range apis {
		if !KnownAPI(api) {
			allKnown = false
			break
		}
	}

	var steps []domain.Step
	if allKnown {
		for _, api := range apis {
			steps = append(steps, expandTemplate(api)...)
		}
	} else {
		synthesized, err := pl.synthesize(ctx, apis, goal)
		if err != nil {
			return nil, err
		}
		steps = synthesized
	}

	plan := &domain.Plan{
		ID:    uuid.New().String(),
		Goal:  goal,
		APIs:  apis,
		Steps: steps,
	}

	ApplyOverrides(plan, overrides)

	if err := Validate(plan); err != nil {
		return nil, err
	}

	pl.log.Debug().
		Str("plan", plan.ID).
		Int("steps", len(plan.Steps)).
		Bool("synthesized", !allKnown).
		Msg("plan built")
	return plan, nil
}

// ApplyOverrides flips step criticality in place. Unknown step ids are
// ignored; validation catches structurally broken plans separately.
func ApplyOverrides(p *domain.Plan, overrides []CriticalityOverride) {
	for _, o := range overrides {
		if i := p.StepIndex(o.StepID); i >= 0 {
			p.Steps[i].Critical = o.Critical
		}
	}
}

// synthStep is the JSON shape the AI capability must return per step.
// Criticality is a required annotation; a plan missing it is invalid.
type synthStep struct {
	ID           string            `json:"id"`
	API          string            `json:"api"`
	Operation    string            `json:"operation"`
	Critical     *bool             `json:"critical"`
	DependsOn    []string          `json:"dependsOn,omitempty"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	Compensation string            `json:"compensation,omitempty"`
}

func (pl *Planner) synthesize(ctx context.Context, apis []string, goal string) ([]domain.Step, error) {
	if pl.ai == nil {
		return nil, fmt.Errorf("%w: no ai provider for unknown api set %v", domain.ErrPlannerUnavailable, apis)
	}

	ctx, cancel := context.WithTimeout(ctx, pl.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Produce an ordered integration step plan as a JSON array. Each element: "+
			`{"id","api","operation","critical","dependsOn","inputs","compensation"}. `+
			"critical is mandatory. inputs values reference earlier outputs as \"stepId.key\". "+
			"APIs: %s. Goal: %s",
		strings.Join(apis, ", "), goal,
	)
	resp, err := pl.ai.Generate(ctx, ai.Request{Prompt: prompt})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: synthesis deadline exceeded", domain.ErrPlannerUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPlannerUnavailable, err)
	}

	var raw []synthStep
	if err := json.Unmarshal([]byte(resp.Text), &raw); err != nil {
		return nil, &domain.PlanError{Message: "synthesized plan is not valid JSON: " + err.Error()}
	}

	steps := make([]domain.Step, 0, len(raw))
	for i, s := range raw {
		if s.Critical == nil {
			return nil, &domain.PlanError{
				Message: fmt.Sprintf("synthesized step %d (%s) missing criticality annotation", i, s.ID),
			}
		}
		steps = append(steps, domain.Step{
			ID:           s.ID,
			API:          s.API,
			Operation:    s.Operation,
			Critical:     *s.Critical,
			DependsOn:    s.DependsOn,
			Inputs:       s.Inputs,
			Compensation: s.Compensation,
		})
	}
	return steps, nil
}
