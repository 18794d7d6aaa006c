package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the scheduler boundary, grounded on the
// teacher's errors.go / checkpoint.go sentinel style (plain errors.New,
// compared with errors.Is).
var (
	// ErrConvergence is returned when the iteration cap is reached while
	// messages remain pending.
	ErrConvergence = errors.New("workflow: iteration cap exceeded with pending messages")

	// ErrNoRoute is returned when a switch/case group has no matching case
	// and no default target.
	ErrNoRoute = errors.New("workflow: no matching route for message")

	// ErrNoHandler is returned when an executor has no handler whose input
	// type matches an incoming payload.
	ErrNoHandler = errors.New("workflow: no handler for message type")

	// ErrRunActive is returned when a second run is attempted while one is
	// already in progress on the same Workflow.
	ErrRunActive = errors.New("workflow: a run is already active")

	// ErrTopologyChanged is returned by resume when the checkpoint's graph
	// signature no longer matches the current workflow's signature.
	ErrTopologyChanged = errors.New("workflow: checkpoint topology does not match current graph")

	// ErrNoFinalStatus is returned by RunResult.GetFinalState when no status
	// event was ever emitted.
	ErrNoFinalStatus = errors.New("workflow: no status event was emitted")
)

// WorkflowValidationError is the base type for build-time validation
// failures. The concrete Code distinguishes the specific failure mode
// described in spec §6 (EdgeDuplicationError, ExecutorDuplicationError,
// TypeCompatibilityError, GraphConnectivityError, InterceptorConflictError).
type WorkflowValidationError struct {
	Code    string
	Message string
}

func (e *WorkflowValidationError) Error() string {
	return fmt.Sprintf("workflow validation (%s): %s", e.Code, e.Message)
}

const (
	CodeEdgeDuplication      = "EDGE_DUPLICATION"
	CodeExecutorDuplication  = "EXECUTOR_DUPLICATION"
	CodeTypeCompatibility    = "TYPE_COMPATIBILITY"
	CodeGraphConnectivity    = "GRAPH_CONNECTIVITY"
	CodeInterceptorConflict  = "INTERCEPTOR_CONFLICT"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
)

func newValidationError(code, format string, args ...any) *WorkflowValidationError {
	return &WorkflowValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WorkflowConvergenceError reports that the iteration cap was exceeded.
type WorkflowConvergenceError struct {
	Iterations int
}

func (e *WorkflowConvergenceError) Error() string {
	return fmt.Sprintf("workflow: exceeded %d iterations with pending messages", e.Iterations)
}

func (e *WorkflowConvergenceError) Unwrap() error { return ErrConvergence }

// WorkflowCheckpointError wraps a save/load/validation failure from a
// checkpoint store.
type WorkflowCheckpointError struct {
	Op      string // "save", "load", "validate"
	Cause   error
}

func (e *WorkflowCheckpointError) Error() string {
	return fmt.Sprintf("workflow: checkpoint %s failed: %v", e.Op, e.Cause)
}

func (e *WorkflowCheckpointError) Unwrap() error { return e.Cause }

// WorkflowRunnerError is the catch-all for scheduler faults: routing
// failures, missing nodes, internal invariant violations.
type WorkflowRunnerError struct {
	Code    string
	Message string
	Cause   error
}

func (e *WorkflowRunnerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workflow runner (%s): %s", e.Code, e.Message)
	}
	return "workflow runner: " + e.Message
}

func (e *WorkflowRunnerError) Unwrap() error { return e.Cause }

func newRunnerError(code, message string, cause error) *WorkflowRunnerError {
	return &WorkflowRunnerError{Code: code, Message: message, Cause: cause}
}

// AgentExecutionError wraps an error raised inside an executor's handler so
// it can travel from the handler, through the ExecutorFailed event, to the
// scheduler, and finally out of the run as the terminal error.
type AgentExecutionError struct {
	ExecutorID string
	ErrorType  string
	Message    string
	Cause      error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("executor %s failed: %s", e.ExecutorID, e.Message)
}

func (e *AgentExecutionError) Unwrap() error { return e.Cause }

// NoHandlerError is returned by Executor.Execute when no registered handler
// matches the incoming payload's type.
type NoHandlerError struct {
	ExecutorID string
	PayloadType string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("executor %s: no handler for payload type %s", e.ExecutorID, e.PayloadType)
}

func (e *NoHandlerError) Unwrap() error { return ErrNoHandler }

// NoRouteError is returned by an edge runner when a switch/case group has no
// matching case and no default.
type NoRouteError struct {
	GroupID string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("edge group %s: no matching route and no default", e.GroupID)
}

func (e *NoRouteError) Unwrap() error { return ErrNoRoute }

// ErrorDetails is the structured record attached to ExecutorFailed events,
// per spec §4.1's failure semantics.
type ErrorDetails struct {
	ErrorType  string
	Message    string
	Traceback  string
	ExecutorID string
}

func newErrorDetails(executorID string, err error) ErrorDetails {
	return ErrorDetails{
		ErrorType:  fmt.Sprintf("%T", err),
		Message:    err.Error(),
		ExecutorID: executorID,
	}
}
