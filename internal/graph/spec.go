package graph

import "fmt"

// UnitSpec is the creation input for one unit. Ids and statuses are
// assigned by the registry, never caller-supplied.
type UnitSpec struct {
	// Name is the caller's handle for declaring dependencies between units
	// in the same spec. Optional; defaults to the action string.
	Name string `json:"name,omitempty"`

	// Action is the opaque work description handed to the executor.
	Action string `json:"action"`

	// Dependencies lists names of units in the same spec that must complete
	// first. Names that resolve to no unit are passed through unresolved:
	// the resolver reports them as a deadlock at execution time, the same
	// as a cycle.
	Dependencies []string `json:"dependencies,omitempty"`

	// Parallel marks the unit as eligible for concurrent execution within
	// its readiness batch.
	Parallel bool `json:"parallel"`
}

// EffectiveName returns the unit's dependency handle.
func (u UnitSpec) EffectiveName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Action
}

// Spec is the creation input for a graph.
type Spec struct {
	Name  string     `json:"name"`
	Units []UnitSpec `json:"units"`
}

// Validate checks structural soundness of the spec.
//
// Dangling dependency references are deliberately NOT rejected here: the
// resolver cannot distinguish them from cycles at execution time, and both
// surface identically as a deadlock. Validate only rejects specs that are
// malformed on their face.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("graph spec: name is required")
	}
	names := make(map[string]bool, len(s.Units))
	for i, u := range s.Units {
		if u.Action == "" {
			return fmt.Errorf("graph spec: unit %d: action is required", i)
		}
		name := u.EffectiveName()
		if names[name] {
			return fmt.Errorf("graph spec: unit %d: duplicate unit name %q", i, name)
		}
		names[name] = true

		seen := make(map[string]bool, len(u.Dependencies))
		for _, dep := range u.Dependencies {
			if dep == "" {
				return fmt.Errorf("graph spec: unit %d: empty dependency name", i)
			}
			if dep == name {
				return fmt.Errorf("graph spec: unit %d: unit %q depends on itself", i, name)
			}
			if seen[dep] {
				return fmt.Errorf("graph spec: unit %d: duplicate dependency %q", i, dep)
			}
			seen[dep] = true
		}
	}
	return nil
}
