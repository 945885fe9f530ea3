package planner

import "github.com/hookbench/hookbench/internal/domain"

// stepTemplate is one canonical step for a known API identifier.
type stepTemplate struct {
	Suffix       string // step id becomes "<api>-<suffix>"
	Operation    string
	Critical     bool
	Compensation string
	// InputsFrom maps an input name to the suffix of an earlier step in
	// the same template chain whose output it consumes.
	InputsFrom map[string]templateRef
}

type templateRef struct {
	Suffix string
	Output string
}

// templates is the library of canonical step chains for known API
// identifiers. Criticality defaults follow the irreversibility rule:
// payment captures and storage writes are critical, notifications are not.
var templates = map[string][]stepTemplate{
	"payment": {
		{
			Suffix:       "create-intent",
			Operation:    "create-intent",
			Critical:     true,
			Compensation: "cancel-intent",
		},
		{
			Suffix:       "confirm",
			Operation:    "confirm",
			Critical:     true,
			Compensation: "refund",
			InputsFrom: map[string]templateRef{
				"intentId": {Suffix: "create-intent", Output: "intentId"},
			},
		},
	},
	"object-storage": {
		{
			Suffix:       "upload",
			Operation:    "upload",
			Critical:     true,
			Compensation: "delete-object",
		},
	},
	"crm": {
		{
			Suffix:       "upsert-contact",
			Operation:    "upsert-contact",
			Critical:     true,
			Compensation: "delete-contact",
		},
	},
	"email": {
		{Suffix: "send", Operation: "send"},
	},
	"sms": {
		{Suffix: "send", Operation: "send-message"},
	},
}

// KnownAPI reports whether an identifier has a canonical template chain.
func KnownAPI(api string) bool {
	_, ok := templates[api]
	return ok
}

// expandTemplate instantiates the template chain for one API. Steps in a
// chain depend on their predecessor so the chain executes in order.
func expandTemplate(api string) []domain.Step {
	chain := templates[api]
	steps := make([]domain.Step, 0, len(chain))
	for i, t := range chain {
		step := domain.Step{
			ID:           api + "-" + t.Suffix,
			API:          api,
			Operation:    t.Operation,
			Critical:     t.Critical,
			Compensation: t.Compensation,
		}
		if len(t.InputsFrom) > 0 {
			step.Inputs = make(map[string]string, len(t.InputsFrom))
			for name, ref := range t.InputsFrom {
				step.Inputs[name] = api + "-" + ref.Suffix + "." + ref.Output
			}
		}
		if i > 0 {
			step.DependsOn = []string{api + "-" + chain[i-1].Suffix}
		}
		steps = append(steps, step)
	}
	return steps
}
