package graph

import "time"

// UnitStatus describes the lifecycle state of a single unit.
type UnitStatus string

const (
	// UnitPending means the unit has not started executing.
	UnitPending UnitStatus = "pending"
	// UnitRunning means the unit's executor is in flight.
	UnitRunning UnitStatus = "running"
	// UnitCompleted means the unit's executor returned successfully.
	UnitCompleted UnitStatus = "completed"
	// UnitFailed means the unit's executor returned an error.
	UnitFailed UnitStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s UnitStatus) Terminal() bool {
	return s == UnitCompleted || s == UnitFailed
}

// rank orders unit statuses along the lifecycle. Used to reject regressions:
// a status may only ever advance, never move backwards.
func (s UnitStatus) rank() int {
	switch s {
	case UnitPending:
		return 0
	case UnitRunning:
		return 1
	case UnitCompleted, UnitFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a legal transition.
// Same-status writes are allowed (idempotent); regressions are not.
func (s UnitStatus) CanAdvanceTo(next UnitStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.Terminal() && next != s {
		return false
	}
	return next.rank() >= s.rank()
}

// GraphStatus describes the lifecycle state of a whole graph.
type GraphStatus string

const (
	// GraphIdle means the graph has been created but not submitted.
	GraphIdle GraphStatus = "idle"
	// GraphRunning means an execution is in flight.
	GraphRunning GraphStatus = "running"
	// GraphCompleted means every unit completed.
	GraphCompleted GraphStatus = "completed"
	// GraphFailed means at least one unit failed and execution stopped.
	GraphFailed GraphStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s GraphStatus) Terminal() bool {
	return s == GraphCompleted || s == GraphFailed
}

// Result is an opaque record attached to a unit after execution.
//
// The engine never inspects result contents; it only clones and forwards
// them. Plan-mode executors use results to pass outputs to later steps.
type Result map[string]any

// Clone returns a copy of the result. Nested maps and slices are copied
// one level deep, which covers the JSON-shaped records produced by
// executors; deeper aliasing is the caller's responsibility.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	out := make(Result, len(r))
	for k, v := range r {
		switch tv := v.(type) {
		case map[string]any:
			m := make(map[string]any, len(tv))
			for mk, mv := range tv {
				m[mk] = mv
			}
			out[k] = m
		case []any:
			s := make([]any, len(tv))
			copy(s, tv)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

// Unit is one node of a dependency graph: a pipeline stage or a plan step.
type Unit struct {
	// ID uniquely identifies the unit within its graph. Derived from the
	// graph id and the unit's declaration position; never caller-supplied.
	ID string `json:"id"`

	// Action is the opaque work description handed to the executor.
	Action string `json:"action"`

	// Dependencies lists ids of units in the same graph that must complete
	// before this unit becomes ready.
	Dependencies []string `json:"dependencies,omitempty"`

	// Parallel marks the unit as eligible for concurrent execution within
	// its readiness batch.
	Parallel bool `json:"parallel"`

	// Status is the unit's lifecycle state.
	Status UnitStatus `json:"status"`

	// Result is the opaque record attached on completion (plan mode only).
	Result Result `json:"result,omitempty"`
}

// Clone returns a deep copy of the unit.
func (u Unit) Clone() Unit {
	out := u
	if u.Dependencies != nil {
		out.Dependencies = make([]string, len(u.Dependencies))
		copy(out.Dependencies, u.Dependencies)
	}
	out.Result = u.Result.Clone()
	return out
}

// Graph is an ordered collection of units plus overall status: a pipeline
// or an execution plan.
type Graph struct {
	// ID uniquely identifies the graph. Assigned by the registry.
	ID string `json:"id"`

	// Name is the caller-supplied goal or pipeline name.
	Name string `json:"name"`

	// Units holds the graph's units in declaration order.
	Units []Unit `json:"units"`

	// Status is the graph's lifecycle state.
	Status GraphStatus `json:"status"`

	// CreatedAt records when the registry created the graph.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the graph. Registry reads and writes go
// through Clone so callers never observe a torn update.
func (g Graph) Clone() Graph {
	out := g
	if g.Units != nil {
		out.Units = make([]Unit, len(g.Units))
		for i, u := range g.Units {
			out.Units[i] = u.Clone()
		}
	}
	return out
}

// Unit returns the unit with the given id, if present.
func (g Graph) Unit(id string) (Unit, bool) {
	for _, u := range g.Units {
		if u.ID == id {
			return u.Clone(), true
		}
	}
	return Unit{}, false
}
