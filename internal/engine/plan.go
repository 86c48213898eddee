package engine

import (
	"time"

	"github.com/rhale/cascade/internal/graph"
)

// DefaultStepTimeout is the advisory per-step timeout attached to derived
// execution plans. Nothing in the engine enforces it; an implementation
// adding enforcement should treat an overrun as a unit execution failure.
const DefaultStepTimeout = 30 * time.Second

// PlanStep is one entry of a derived execution plan: a flattened, advisory
// view of a unit suitable for handing to an external dispatcher.
type PlanStep struct {
	// UnitID identifies the underlying unit.
	UnitID string `json:"unit_id"`

	// Action is the unit's work description.
	Action string `json:"action"`

	// Parameters carries the result record of the step's first declared
	// dependency that produced one, or an empty record. This is how later
	// steps consume prior outputs.
	Parameters graph.Result `json:"parameters"`

	// Timeout is advisory metadata only; the engine does not enforce it.
	Timeout time.Duration `json:"timeout"`
}

// BuildExecutionPlan flattens a graph's units into plan steps in
// declaration order.
//
// Parameters for each step come from the result attached to its first
// declared dependency carrying one; units without dependency results get
// an empty (non-nil) record. The graph snapshot is read-only here, so the
// view can be derived before, during, or after execution.
func BuildExecutionPlan(g graph.Graph) []PlanStep {
	byID := make(map[string]graph.Unit, len(g.Units))
	for _, u := range g.Units {
		byID[u.ID] = u
	}

	steps := make([]PlanStep, len(g.Units))
	for i, u := range g.Units {
		params := graph.Result{}
		for _, dep := range u.Dependencies {
			depUnit, ok := byID[dep]
			if !ok || depUnit.Result == nil {
				continue
			}
			params = depUnit.Result.Clone()
			break
		}
		steps[i] = PlanStep{
			UnitID:     u.ID,
			Action:     u.Action,
			Parameters: params,
			Timeout:    DefaultStepTimeout,
		}
	}
	return steps
}
