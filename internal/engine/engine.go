// Package engine drives dependency-ordered execution of graphs held in a
// registry.
//
// The engine repeatedly asks the readiness resolver for the set of units
// whose dependencies are satisfied, executes the ready batch (parallel
// subset concurrently, sequential subset in declared order), updates unit
// and graph status through the registry, detects deadlock, and propagates
// the first failure to the caller.
//
// Concurrency model: "parallel" units run on their own goroutines, but the
// batch as a whole is a synchronization barrier - the next readiness
// computation never starts until the entire current batch has resolved.
// Sibling goroutines are NOT cancelled when one member fails; they are
// allowed to finish and their outcomes are recorded, but the run stops at
// the end of the batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhale/cascade/internal/graph"
	"github.com/rhale/cascade/internal/registry"
)

// UnitExecutor executes one unit of pipeline work. It signals failure by
// returning an error; the engine never inspects the work itself.
type UnitExecutor func(ctx context.Context, u graph.Unit) error

// StepExecutor executes one plan step and returns an opaque result record,
// which the engine attaches to the unit before marking it completed.
type StepExecutor func(ctx context.Context, u graph.Unit) (graph.Result, error)

// Transition is one recorded status change, stamped with a logical seq so
// trace readers can reconstruct order.
type Transition struct {
	GraphID string    `json:"graph_id"`
	UnitID  string    `json:"unit_id,omitempty"` // empty for graph-level transitions
	Status  string    `json:"status"`
	Detail  string    `json:"detail,omitempty"`
	Seq     int64     `json:"seq"`
	At      time.Time `json:"at"`
}

// Recorder receives status transitions as they happen. Implementations
// must tolerate concurrent calls (parallel batches record concurrently).
// Recording is best-effort: a recorder error is logged, never propagated.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Engine is the execution coordinator. It owns no graphs itself; all graph
// state lives in the injected registry.
type Engine struct {
	reg   *registry.Registry
	rec   Recorder
	clock *Clock
	now   func() time.Time

	// runLocks guarantees at most one in-flight execution per graph id.
	// Registry writes are whole-value replacements, which is only safe when
	// a single execution mutates a given graph at a time.
	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRecorder attaches a transition recorder (e.g. a trace store).
func WithRecorder(rec Recorder) Option {
	return func(e *Engine) {
		e.rec = rec
	}
}

// WithNowFunc overrides the wall clock used to stamp transitions.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine bound to the given registry.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		clock:    NewClock(),
		now:      time.Now,
		runLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the graph in pipeline mode until every unit is completed,
// a unit fails, or no progress is possible.
//
// Returns nil when all units completed. Otherwise returns an *ExecError:
// deadlock, wrapped unit failure, unknown graph, or non-idle graph. On any
// failure the graph is marked failed; partial progress stays visible in
// the registry for inspection, but the graph is terminal and must be
// resubmitted as a new graph to retry.
func (e *Engine) Execute(ctx context.Context, graphID string, exec UnitExecutor) error {
	if exec == nil {
		return fmt.Errorf("execute graph %s: nil executor", graphID)
	}
	step := func(ctx context.Context, u graph.Unit) (graph.Result, error) {
		return nil, exec(ctx, u)
	}
	return e.run(ctx, graphID, step, false)
}

// ExecutePlan runs the graph in plan mode: before each unit executes,
// every declared dependency must have completed status in the registry,
// and the executor's result record is attached to the unit on completion
// so later steps can consume prior outputs.
func (e *Engine) ExecutePlan(ctx context.Context, graphID string, exec StepExecutor) error {
	if exec == nil {
		return fmt.Errorf("execute plan %s: nil executor", graphID)
	}
	return e.run(ctx, graphID, exec, true)
}

func (e *Engine) run(ctx context.Context, graphID string, exec StepExecutor, planMode bool) error {
	lock := e.runLock(graphID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := e.reg.Get(graphID)
	if !ok {
		return NewGraphNotFoundError(graphID)
	}
	if g.Status != graph.GraphIdle {
		return NewGraphNotIdleError(graphID, string(g.Status))
	}

	if len(g.Units) == 0 {
		e.setGraphStatus(ctx, graphID, graph.GraphCompleted)
		return nil
	}

	slog.Info("execution starting",
		"graph_id", graphID,
		"units", len(g.Units),
		"plan_mode", planMode,
	)
	e.setGraphStatus(ctx, graphID, graph.GraphRunning)

	executed := make(map[string]bool, len(g.Units))
	for len(executed) < len(g.Units) {
		if err := ctx.Err(); err != nil {
			e.setGraphStatus(ctx, graphID, graph.GraphFailed)
			return fmt.Errorf("execute graph %s: %w", graphID, err)
		}

		ready := ReadyUnits(g.Units, executed)
		if len(ready) == 0 {
			remaining := len(g.Units) - len(executed)
			slog.Error("deadlock detected",
				"graph_id", graphID,
				"executed", len(executed),
				"remaining", remaining,
			)
			e.setGraphStatus(ctx, graphID, graph.GraphFailed)
			return NewDeadlockError(graphID, remaining)
		}

		if planMode {
			if err := e.checkBatchDependencies(graphID, ready); err != nil {
				e.setGraphStatus(ctx, graphID, graph.GraphFailed)
				return err
			}
		}

		// The whole ready batch transitions to running before any executor
		// is invoked: every member of the batch is observably running while
		// the batch is in flight.
		for _, u := range ready {
			e.setUnitStatus(ctx, graphID, u.ID, graph.UnitRunning, nil, "")
		}

		parallel, sequential := partitionBatch(ready)

		if err := e.runParallelBatch(ctx, graphID, parallel, exec, executed); err != nil {
			e.setGraphStatus(ctx, graphID, graph.GraphFailed)
			return err
		}
		if err := e.runSequentialBatch(ctx, graphID, sequential, exec, executed); err != nil {
			e.setGraphStatus(ctx, graphID, graph.GraphFailed)
			return err
		}
	}

	e.setGraphStatus(ctx, graphID, graph.GraphCompleted)
	slog.Info("execution completed", "graph_id", graphID, "units", len(g.Units))
	return nil
}

// runParallelBatch executes ready parallel units concurrently and joins
// the batch as a whole. On failure the first failing unit in declaration
// order determines the returned error; members that succeeded are still
// marked completed in the registry but none of the batch is added to
// executed, so the run stops here.
func (e *Engine) runParallelBatch(
	ctx context.Context,
	graphID string,
	batch []graph.Unit,
	exec StepExecutor,
	executed map[string]bool,
) error {
	if len(batch) == 0 {
		return nil
	}

	results := make([]graph.Result, len(batch))
	errs := make([]error, len(batch))

	var wg sync.WaitGroup
	for i, u := range batch {
		wg.Add(1)
		go func(i int, u graph.Unit) {
			defer wg.Done()
			results[i], errs[i] = exec(ctx, u)
		}(i, u)
	}
	// Barrier: siblings of a failed unit are not cancelled, they finish.
	wg.Wait()

	firstFailed := -1
	for i, u := range batch {
		if errs[i] != nil {
			if firstFailed < 0 {
				firstFailed = i
			}
			e.setUnitStatus(ctx, graphID, u.ID, graph.UnitFailed, nil, errs[i].Error())
			continue
		}
		e.setUnitStatus(ctx, graphID, u.ID, graph.UnitCompleted, results[i], "")
	}

	if firstFailed >= 0 {
		u := batch[firstFailed]
		slog.Error("parallel unit failed",
			"graph_id", graphID,
			"unit_id", u.ID,
			"action", u.Action,
			"error", errs[firstFailed],
		)
		return NewUnitFailedError(graphID, u.ID, errs[firstFailed])
	}

	for _, u := range batch {
		executed[u.ID] = true
	}
	return nil
}

// runSequentialBatch executes ready sequential units strictly in declared
// order, one at a time, failing fast without running later units.
func (e *Engine) runSequentialBatch(
	ctx context.Context,
	graphID string,
	batch []graph.Unit,
	exec StepExecutor,
	executed map[string]bool,
) error {
	for _, u := range batch {
		result, err := exec(ctx, u)
		if err != nil {
			slog.Error("sequential unit failed",
				"graph_id", graphID,
				"unit_id", u.ID,
				"action", u.Action,
				"error", err,
			)
			e.setUnitStatus(ctx, graphID, u.ID, graph.UnitFailed, nil, err.Error())
			return NewUnitFailedError(graphID, u.ID, err)
		}
		e.setUnitStatus(ctx, graphID, u.ID, graph.UnitCompleted, result, "")
		executed[u.ID] = true
	}
	return nil
}

// checkBatchDependencies verifies, per unit, that every declared
// dependency of a plan step holds completed status in the registry before
// the batch starts. This is a per-unit check against live registry state,
// distinct from the global deadlock check: the readiness set is computed
// from the engine's own bookkeeping, and plan mode additionally refuses to
// execute a step whose dependency results were invalidated externally.
func (e *Engine) checkBatchDependencies(graphID string, batch []graph.Unit) error {
	g, ok := e.reg.Get(graphID)
	if !ok {
		return NewGraphNotFoundError(graphID)
	}
	for _, u := range batch {
		for _, dep := range u.Dependencies {
			depUnit, ok := g.Unit(dep)
			if !ok || depUnit.Status != graph.UnitCompleted {
				return NewDependencyNotCompletedError(graphID, u.ID, dep)
			}
		}
	}
	return nil
}

// setUnitStatus mirrors a unit transition into the registry and the
// recorder. Registry rejections (absent unit, regression) are logged and
// otherwise ignored; the engine's local bookkeeping is authoritative for
// loop control.
func (e *Engine) setUnitStatus(ctx context.Context, graphID, unitID string, status graph.UnitStatus, result graph.Result, detail string) {
	if !e.reg.SetUnitStatus(graphID, unitID, status, result) {
		slog.Warn("unit status update rejected",
			"graph_id", graphID,
			"unit_id", unitID,
			"status", status,
		)
	}
	e.record(ctx, Transition{
		GraphID: graphID,
		UnitID:  unitID,
		Status:  string(status),
		Detail:  detail,
	})
}

func (e *Engine) setGraphStatus(ctx context.Context, graphID string, status graph.GraphStatus) {
	if !e.reg.SetGraphStatus(graphID, status) {
		slog.Warn("graph status update rejected", "graph_id", graphID, "status", status)
	}
	e.record(ctx, Transition{GraphID: graphID, Status: string(status)})
}

// record stamps and forwards a transition. Recorder failures are logged
// and swallowed: tracing is observability, never control flow.
func (e *Engine) record(ctx context.Context, t Transition) {
	if e.rec == nil {
		return
	}
	t.Seq = e.clock.Next()
	t.At = e.now()
	if err := e.rec.RecordTransition(ctx, t); err != nil {
		slog.Warn("transition record failed",
			"graph_id", t.GraphID,
			"unit_id", t.UnitID,
			"status", t.Status,
			"error", err,
		)
	}
}

// runLock returns the per-graph exclusive lock, creating it on first use.
func (e *Engine) runLock(graphID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.runLocks[graphID]
	if !ok {
		lock = &sync.Mutex{}
		e.runLocks[graphID] = lock
	}
	return lock
}
