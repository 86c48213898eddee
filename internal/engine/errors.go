package engine

import (
	"errors"
	"fmt"
)

// ExecError represents an error detected during graph execution.
//
// Execution errors include:
//   - Deadlock: no unit is ready but the graph is incomplete (cycle or
//     dangling dependency reference; the resolver cannot tell them apart)
//   - Unit failure: the executor callback returned an error
//   - Dependency not completed: plan mode found a dependency step that is
//     not completed at execution time
//
// ExecError includes structured fields for diagnostics.
type ExecError struct {
	// Code identifies the error category.
	Code ExecErrorCode

	// Message is a human-readable description.
	Message string

	// GraphID identifies the affected graph.
	GraphID string

	// UnitID identifies the failing unit, when one exists.
	UnitID string

	// Cause is the underlying executor error, for unit failures.
	Cause error
}

// ExecErrorCode categorizes execution errors.
type ExecErrorCode string

const (
	// ErrCodeGraphNotFound indicates the graph id is unknown to the registry.
	ErrCodeGraphNotFound ExecErrorCode = "GRAPH_NOT_FOUND"

	// ErrCodeGraphNotIdle indicates the graph was already submitted.
	// Terminal graphs must be resubmitted as new graphs; there is no
	// resume-from-failure path.
	ErrCodeGraphNotIdle ExecErrorCode = "GRAPH_NOT_IDLE"

	// ErrCodeDeadlockDetected indicates no unit is ready but not all units
	// are executed. Covers both true cycles and dangling dependency
	// references, which are indistinguishable to the resolver and are
	// therefore reported identically.
	ErrCodeDeadlockDetected ExecErrorCode = "DEADLOCK_DETECTED"

	// ErrCodeUnitExecutionFailed wraps an executor callback failure.
	ErrCodeUnitExecutionFailed ExecErrorCode = "UNIT_EXECUTION_FAILED"

	// ErrCodeDependencyNotCompleted indicates a plan-mode dependency step
	// lacks completed status at execution time. Distinct from a deadlock
	// because it is checked per unit rather than globally.
	ErrCodeDependencyNotCompleted ExecErrorCode = "DEPENDENCY_NOT_COMPLETED"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	switch {
	case e.UnitID != "":
		return fmt.Sprintf("%s: %s (graph=%s, unit=%s)", e.Code, e.Message, e.GraphID, e.UnitID)
	case e.GraphID != "":
		return fmt.Sprintf("%s: %s (graph=%s)", e.Code, e.Message, e.GraphID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying executor error for errors.Is/As chains.
func (e *ExecError) Unwrap() error {
	return e.Cause
}

// IsDeadlock returns true if the error is a deadlock detection error.
// Uses errors.As to handle wrapped errors.
func IsDeadlock(err error) bool {
	return hasCode(err, ErrCodeDeadlockDetected)
}

// IsUnitFailure returns true if the error wraps an executor failure.
func IsUnitFailure(err error) bool {
	return hasCode(err, ErrCodeUnitExecutionFailed)
}

// IsDependencyNotCompleted returns true for plan-mode dependency errors.
func IsDependencyNotCompleted(err error) bool {
	return hasCode(err, ErrCodeDependencyNotCompleted)
}

// IsGraphNotFound returns true if the error names an unknown graph id.
func IsGraphNotFound(err error) bool {
	return hasCode(err, ErrCodeGraphNotFound)
}

func hasCode(err error, code ExecErrorCode) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// NewDeadlockError creates an ExecError for a stalled graph.
func NewDeadlockError(graphID string, remaining int) *ExecError {
	return &ExecError{
		Code:    ErrCodeDeadlockDetected,
		Message: fmt.Sprintf("no ready units but %d remain (cycle or dangling dependency)", remaining),
		GraphID: graphID,
	}
}

// NewUnitFailedError wraps an executor failure for a specific unit.
func NewUnitFailedError(graphID, unitID string, cause error) *ExecError {
	return &ExecError{
		Code:    ErrCodeUnitExecutionFailed,
		Message: "unit executor failed",
		GraphID: graphID,
		UnitID:  unitID,
		Cause:   cause,
	}
}

// NewDependencyNotCompletedError reports an unsatisfied plan-mode dependency.
func NewDependencyNotCompletedError(graphID, unitID, depID string) *ExecError {
	return &ExecError{
		Code:    ErrCodeDependencyNotCompleted,
		Message: fmt.Sprintf("dependency %s is not completed", depID),
		GraphID: graphID,
		UnitID:  unitID,
	}
}

// NewGraphNotFoundError reports an unknown graph id.
func NewGraphNotFoundError(graphID string) *ExecError {
	return &ExecError{
		Code:    ErrCodeGraphNotFound,
		Message: "graph not found",
		GraphID: graphID,
	}
}

// NewGraphNotIdleError reports a graph that was already submitted.
func NewGraphNotIdleError(graphID string, status string) *ExecError {
	return &ExecError{
		Code:    ErrCodeGraphNotIdle,
		Message: fmt.Sprintf("graph is %s; resubmit as a new graph to retry", status),
		GraphID: graphID,
	}
}
