package engine

import "github.com/rhale/cascade/internal/graph"

// ReadyUnits computes the set of units whose dependencies are all
// satisfied and which have not yet run.
//
// A unit is ready iff its id is not in executed and every one of its
// dependency ids is a member of executed. Declaration order is preserved.
//
// This function is pure: it does not mutate units or executed. A dependency
// id that matches no unit in the graph can never enter executed, so the
// referencing unit is permanently non-ready; the coordinator reports that
// as a deadlock, exactly like a cycle.
func ReadyUnits(units []graph.Unit, executed map[string]bool) []graph.Unit {
	ready := make([]graph.Unit, 0, len(units))
	for _, u := range units {
		if executed[u.ID] {
			continue
		}
		depsOK := true
		for _, dep := range u.Dependencies {
			if !executed[dep] {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, u)
		}
	}
	return ready
}

// partitionBatch splits ready units into the parallel and sequential
// sub-batches, preserving declaration order within each.
func partitionBatch(ready []graph.Unit) (parallel, sequential []graph.Unit) {
	for _, u := range ready {
		if u.Parallel {
			parallel = append(parallel, u)
		} else {
			sequential = append(sequential, u)
		}
	}
	return parallel, sequential
}
