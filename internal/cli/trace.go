package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhale/cascade/internal/engine"
	"github.com/rhale/cascade/internal/trace"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <trace.db> [graph-id]",
		Short: "Inspect a recorded execution trace",
		Long: `Inspect the transition log written by "run --trace-db".

With only a database path, lists the recorded graph ids, most recent
first. With a graph id, prints that graph's status transitions in
execution order.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			graphID := ""
			if len(args) == 2 {
				graphID = args[1]
			}
			return runTrace(rootOpts, args[0], graphID, cmd)
		},
	}

	return cmd
}

func runTrace(opts *RootOptions, path, graphID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		msg := fmt.Sprintf("trace database not found: %s", path)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	store, err := trace.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open trace database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if graphID == "" {
		ids, err := store.Graphs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "read trace database", err)
		}
		return outputTraceGraphs(formatter, ids)
	}

	transitions, err := store.ReadGraph(ctx, graphID)
	if err != nil {
		return WrapExitError(ExitCommandError, "read trace database", err)
	}
	if len(transitions) == 0 {
		msg := fmt.Sprintf("no transitions recorded for graph %s", graphID)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	return outputTraceTransitions(formatter, transitions)
}

func outputTraceGraphs(f *OutputFormatter, ids []string) error {
	if f.Format == "json" {
		return f.JSON(map[string]any{"graphs": ids})
	}

	if len(ids) == 0 {
		fmt.Fprintln(f.Writer, "No graphs recorded.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(f.Writer, id)
	}
	return nil
}

func outputTraceTransitions(f *OutputFormatter, transitions []engine.Transition) error {
	if f.Format == "json" {
		return f.JSON(map[string]any{"transitions": transitions})
	}

	for _, t := range transitions {
		subject := t.GraphID
		if t.UnitID != "" {
			subject = t.UnitID
		}
		fmt.Fprintf(f.Writer, "%4d  %s  %-12s %s", t.Seq, t.At.UTC().Format(time.RFC3339), subject, t.Status)
		if t.Detail != "" {
			fmt.Fprintf(f.Writer, "  (%s)", t.Detail)
		}
		fmt.Fprintln(f.Writer)
	}
	return nil
}
