package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhale/cascade/internal/engine"
	"github.com/rhale/cascade/internal/graph"
	"github.com/rhale/cascade/internal/registry"
	"github.com/rhale/cascade/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Plan    bool
	TraceDB string

	// IDGenerator overrides the graph id generator (for testing).
	// Defaults to UUIDv7.
	IDGenerator registry.IDGenerator

	// Now overrides the wall clock used for unit durations (for testing).
	Now func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <spec.yaml>",
		Short: "Execute a graph spec",
		Long: `Execute a graph spec in dependency order.

Each unit's action is run with "sh -c". Units whose dependencies have all
completed run together as a batch: members marked parallel run
concurrently, the rest run one at a time in declaration order. A failing
unit stops the run after its batch finishes; there is no retry.

With --plan, each action's trailing stdout line is parsed as JSON and
attached to the unit as its result, which downstream plan steps receive
as parameters.

Example:
  cascade run deploy.yaml
  cascade run deploy.yaml --plan --trace-db ./trace.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "plan mode: attach trailing stdout JSON as unit results")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "path to SQLite trace database (optional)")

	return cmd
}

// UnitReport is one row of the run report, in declaration order.
type UnitReport struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Status     string       `json:"status"`
	DurationMS int64        `json:"duration_ms"`
	Result     graph.Result `json:"result,omitempty"`
}

// RunReport summarizes one graph execution.
type RunReport struct {
	GraphID string       `json:"graph_id"`
	Name    string       `json:"name"`
	Status  string       `json:"status"`
	Error   string       `json:"error,omitempty"`
	Units   []UnitReport `json:"units"`
}

func runGraph(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	spec, err := LoadSpec(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			if loadErr.Code == ErrCodeNotFound {
				return NewExitError(ExitCommandError, loadErr.Message)
			}
			return NewExitError(ExitFailure, loadErr.Message)
		}
		return WrapExitError(ExitCommandError, "load spec", err)
	}

	gen := opts.IDGenerator
	if gen == nil {
		gen = registry.UUIDv7Generator{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	reg := registry.New(registry.WithIDGenerator(gen))
	g, err := reg.Create(spec)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidSpec, err.Error(), nil)
		return WrapExitError(ExitFailure, "create graph", err)
	}
	formatter.VerboseLog("Created graph %s with %d unit(s)", g.ID, len(g.Units))

	engineOpts := []engine.Option{engine.WithNowFunc(now)}
	if opts.TraceDB != "" {
		store, err := trace.Open(opts.TraceDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "open trace database", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				slog.Error("closing trace database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithRecorder(store))
	}
	eng := engine.New(reg, engineOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	durations := newDurationTracker(now)

	var runErr error
	if opts.Plan {
		runErr = eng.ExecutePlan(ctx, g.ID, func(ctx context.Context, u graph.Unit) (graph.Result, error) {
			defer durations.measure(u.ID)()
			return runShellStep(ctx, u)
		})
	} else {
		runErr = eng.Execute(ctx, g.ID, func(ctx context.Context, u graph.Unit) error {
			defer durations.measure(u.ID)()
			return runShellAction(ctx, u)
		})
	}

	report := buildReport(reg, g.ID, spec.Name, durations, runErr)
	if err := outputReport(formatter, report); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "execution failed", runErr)
	}
	return nil
}

// runShellAction executes a unit's action with "sh -c".
func runShellAction(ctx context.Context, u graph.Unit) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", u.Action)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("action %q: %w", u.Action, err)
	}
	return nil
}

// runShellStep executes a unit's action with "sh -c" and parses the
// trailing stdout line as the step's JSON result. Actions that print no
// JSON yield an empty result; this is not an error, since many steps are
// side-effect only.
func runShellStep(ctx context.Context, u graph.Unit) (graph.Result, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", u.Action)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("action %q: %w", u.Action, err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, "{") {
		return graph.Result{}, nil
	}

	var result graph.Result
	if err := json.Unmarshal([]byte(last), &result); err != nil {
		return graph.Result{}, nil
	}
	return result, nil
}

// durationTracker records wall-clock execution time per unit. Parallel
// units measure concurrently, so access is mutex-guarded.
type durationTracker struct {
	mu   sync.Mutex
	now  func() time.Time
	byID map[string]time.Duration
}

func newDurationTracker(now func() time.Time) *durationTracker {
	return &durationTracker{now: now, byID: make(map[string]time.Duration)}
}

func (d *durationTracker) measure(unitID string) func() {
	d.mu.Lock()
	start := d.now()
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.byID[unitID] = d.now().Sub(start)
		d.mu.Unlock()
	}
}

func (d *durationTracker) get(unitID string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID[unitID]
}

func buildReport(reg *registry.Registry, graphID, name string, durations *durationTracker, runErr error) RunReport {
	report := RunReport{GraphID: graphID, Name: name}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	g, ok := reg.Get(graphID)
	if !ok {
		report.Status = "unknown"
		return report
	}
	report.Status = string(g.Status)
	for _, u := range g.Units {
		report.Units = append(report.Units, UnitReport{
			ID:         u.ID,
			Action:     u.Action,
			Status:     string(u.Status),
			DurationMS: durations.get(u.ID).Milliseconds(),
			Result:     u.Result,
		})
	}
	return report
}

func outputReport(f *OutputFormatter, report RunReport) error {
	if f.Format == "json" {
		return f.JSON(report)
	}

	fmt.Fprintf(f.Writer, "Graph %s (%s): %s\n", report.GraphID, report.Name, report.Status)
	for _, u := range report.Units {
		fmt.Fprintf(f.Writer, "  %-12s %-10s %6dms  %s\n", u.ID, u.Status, u.DurationMS, u.Action)
	}
	if report.Error != "" {
		fmt.Fprintf(f.Writer, "Error: %s\n", report.Error)
	}
	return nil
}
