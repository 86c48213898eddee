// Package registry owns the collection of graphs and their units.
//
// The registry is an explicitly constructed instance passed to the engine;
// there is no package-level singleton. This enables multiple independent
// engines per process and deterministic test isolation.
//
// Concurrency model: a single RWMutex guards the graph map. Every read
// returns a deep clone and every write replaces the stored graph value
// wholesale, so callers never observe a torn update.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rhale/cascade/internal/graph"
)

// Registry stores graphs keyed by id with copy-on-write update semantics.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*graph.Graph

	gen IDGenerator
	now func() time.Time
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithIDGenerator overrides the graph id generator.
// Default: UUIDv7Generator. Tests use FixedGenerator for stable ids.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.gen = gen
	}
}

// WithNowFunc overrides the clock used to stamp CreatedAt.
func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		graphs: make(map[string]*graph.Graph),
		gen:    UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates the spec, assigns a fresh graph id and per-unit ids,
// and stores the graph with all units pending.
//
// Unit ids are derived deterministically from the graph id and the unit's
// 1-based declaration position: "<graphID>-u<n>". Dependencies declared by
// unit name are resolved to derived ids; names that resolve to no unit in
// the spec are passed through unresolved, which the resolver later reports
// as a deadlock, the same as a cycle.
func (r *Registry) Create(spec graph.Spec) (graph.Graph, error) {
	if err := spec.Validate(); err != nil {
		return graph.Graph{}, err
	}

	id := r.gen.Generate()

	// Map unit names to derived ids for dependency resolution.
	idByName := make(map[string]string, len(spec.Units))
	for i, u := range spec.Units {
		idByName[u.EffectiveName()] = unitID(id, i)
	}

	units := make([]graph.Unit, len(spec.Units))
	for i, u := range spec.Units {
		var deps []string
		if len(u.Dependencies) > 0 {
			deps = make([]string, len(u.Dependencies))
			for j, dep := range u.Dependencies {
				if resolved, ok := idByName[dep]; ok {
					deps[j] = resolved
				} else {
					deps[j] = dep // dangling; surfaces as deadlock at run time
				}
			}
		}
		units[i] = graph.Unit{
			ID:           unitID(id, i),
			Action:       u.Action,
			Dependencies: deps,
			Parallel:     u.Parallel,
			Status:       graph.UnitPending,
		}
	}

	g := graph.Graph{
		ID:        id,
		Name:      spec.Name,
		Units:     units,
		Status:    graph.GraphIdle,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := g.Clone()
	r.graphs[id] = &stored

	return g, nil
}

// Get returns a snapshot of the graph with the given id.
func (r *Registry) Get(id string) (graph.Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.graphs[id]
	if !ok {
		return graph.Graph{}, false
	}
	return g.Clone(), true
}

// List returns snapshots of all graphs ordered by creation time, then id.
func (r *Registry) List() []graph.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]graph.Graph, 0, len(r.graphs))
	for _, g := range r.graphs {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove deletes the graph with the given id.
// Returns false if no such graph exists.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.graphs[id]; !ok {
		return false
	}
	delete(r.graphs, id)
	return true
}

// SetUnitStatus advances a unit's status and optionally attaches a result.
//
// Returns false if the graph or unit is absent, or if the transition would
// regress the unit's lifecycle (statuses only ever advance). The stored
// graph value is replaced wholesale.
func (r *Registry) SetUnitStatus(graphID, unitID string, status graph.UnitStatus, result graph.Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.graphs[graphID]
	if !ok {
		return false
	}

	next := stored.Clone()
	for i := range next.Units {
		if next.Units[i].ID != unitID {
			continue
		}
		if !next.Units[i].Status.CanAdvanceTo(status) {
			return false
		}
		next.Units[i].Status = status
		if result != nil {
			next.Units[i].Result = result.Clone()
		}
		r.graphs[graphID] = &next
		return true
	}
	return false
}

// SetGraphStatus replaces the graph's overall status.
// Returns false if no such graph exists.
func (r *Registry) SetGraphStatus(graphID string, status graph.GraphStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.graphs[graphID]
	if !ok {
		return false
	}

	next := stored.Clone()
	next.Status = status
	r.graphs[graphID] = &next
	return true
}

// Stats summarizes registry contents by status. Read-only observability
// surface for dashboards and tests.
type Stats struct {
	Graphs       int                       `json:"graphs"`
	GraphsByStat map[graph.GraphStatus]int `json:"graphs_by_status"`
	Units        int                       `json:"units"`
	UnitsByStat  map[graph.UnitStatus]int  `json:"units_by_status"`
}

// Stats returns counts of graphs and units grouped by status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		GraphsByStat: make(map[graph.GraphStatus]int),
		UnitsByStat:  make(map[graph.UnitStatus]int),
	}
	for _, g := range r.graphs {
		s.Graphs++
		s.GraphsByStat[g.Status]++
		for _, u := range g.Units {
			s.Units++
			s.UnitsByStat[u.Status]++
		}
	}
	return s
}

// unitID derives a deterministic unit id from the graph id and the unit's
// declaration position (1-based).
func unitID(graphID string, position int) string {
	return fmt.Sprintf("%s-u%d", graphID, position+1)
}
