package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhale/cascade/internal/engine"
	"github.com/rhale/cascade/internal/graph"
)

// ValidationIssue is one problem found in a spec.
type ValidationIssue struct {
	Unit    string `json:"unit,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds the outcome of validating a spec file.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Name   string            `json:"name,omitempty"`
	Units  int               `json:"units"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.yaml>",
		Short: "Validate a graph spec without executing it",
		Long: `Validate a graph spec file without executing it.

Checks the structural rules (non-empty actions, unique unit names, no
self or duplicate dependencies) and additionally runs a static readiness
simulation to detect dependency cycles before anything runs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
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
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	formatter.VerboseLog("Loaded %d unit(s) from %s", len(spec.Units), path)

	result := ValidationResult{
		Valid: true,
		Name:  spec.Name,
		Units: len(spec.Units),
	}
	for _, issue := range findStuckUnits(spec) {
		result.Valid = false
		result.Issues = append(result.Issues, issue)
	}

	if !result.Valid {
		if err := outputValidation(formatter, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "spec is invalid")
	}

	return outputValidation(formatter, result)
}

// findStuckUnits statically simulates readiness over the spec's declared
// names. Units left over when the simulation stalls are members of a
// dependency cycle or depend (possibly transitively) on a dangling name;
// executing the spec would deadlock.
func findStuckUnits(spec graph.Spec) []ValidationIssue {
	units := make([]graph.Unit, len(spec.Units))
	for i, u := range spec.Units {
		units[i] = graph.Unit{ID: u.EffectiveName(), Dependencies: u.Dependencies}
	}

	executed := make(map[string]bool, len(units))
	for len(executed) < len(units) {
		ready := engine.ReadyUnits(units, executed)
		if len(ready) == 0 {
			break
		}
		for _, u := range ready {
			executed[u.ID] = true
		}
	}

	var issues []ValidationIssue
	for _, u := range units {
		if !executed[u.ID] {
			issues = append(issues, ValidationIssue{
				Unit:    u.ID,
				Message: "can never become ready (dependency cycle or dangling reference)",
			})
		}
	}
	return issues
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	if f.Format == "json" {
		return f.JSON(result)
	}

	if result.Valid {
		fmt.Fprintf(f.Writer, "Spec %q is valid: %d unit(s)\n", result.Name, result.Units)
		return nil
	}

	fmt.Fprintf(f.Writer, "Spec %q is invalid:\n", result.Name)
	for _, issue := range result.Issues {
		fmt.Fprintf(f.Writer, "  - %s: %s\n", issue.Unit, issue.Message)
	}
	return nil
}
