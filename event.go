package workflow

import "time"

// EventOrigin tags who produced a WorkflowEvent: the scheduler itself, or an
// executor's handler. Lifecycle events (Started/Status/Failed) created with
// an Executor origin are rejected by the runner context and replaced with a
// Warning event — see runner_context.go.
type EventOrigin int

const (
	OriginFramework EventOrigin = iota
	OriginExecutor
)

// EventKind discriminates the WorkflowEvent variant. Exactly one of the
// corresponding fields on WorkflowEvent is meaningful for a given Kind.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStatus
	EventFailed
	EventOutput
	EventData
	EventRequestInfo
	EventWarning
	EventError
	EventSuperstepStarted
	EventSuperstepCompleted
	EventExecutorInvoked
	EventExecutorCompleted
	EventExecutorFailed
	EventCustom
)

func (k EventKind) isLifecycle() bool {
	switch k {
	case EventStarted, EventStatus, EventFailed:
		return true
	default:
		return false
	}
}

// RunState is the workflow-level lifecycle surfaced via EventStatus events.
type RunState int

const (
	RunStateStarted RunState = iota
	RunStateInProgress
	RunStateInProgressPendingRequests
	RunStateIdle
	RunStateIdleWithPendingRequests
	RunStateFailed
	RunStateCancelled
)

func (s RunState) String() string {
	switch s {
	case RunStateStarted:
		return "STARTED"
	case RunStateInProgress:
		return "IN_PROGRESS"
	case RunStateInProgressPendingRequests:
		return "IN_PROGRESS_PENDING_REQUESTS"
	case RunStateIdle:
		return "IDLE"
	case RunStateIdleWithPendingRequests:
		return "IDLE_WITH_PENDING_REQUESTS"
	case RunStateFailed:
		return "FAILED"
	case RunStateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// WorkflowEvent is the single event type flowing through the runner
// context's event stream. It is a tagged union: callers should switch on
// Kind and read only the fields documented for that Kind.
type WorkflowEvent struct {
	Kind   EventKind
	Origin EventOrigin
	Time   time.Time

	// EventStatus
	State RunState

	// EventFailed, EventExecutorFailed
	Details *ErrorDetails

	// EventOutput, EventData, EventExecutorInvoked, EventExecutorCompleted
	ExecutorID string
	Data       any

	// EventRequestInfo
	RequestID        string
	SourceExecutorID string
	RequestType      string
	ResponseType     string

	// EventWarning
	Text string

	// EventError
	Err error

	// EventSuperstepStarted, EventSuperstepCompleted
	Superstep int

	// EventCustom: orchestration-specific events opaque to the core.
	CustomKind string
	Custom     any
}

func lifecycleEvent(kind EventKind) WorkflowEvent {
	return WorkflowEvent{Kind: kind, Origin: OriginFramework, Time: timeNow()}
}

// StartedEvent is the first event of every run.
func StartedEvent() WorkflowEvent { return lifecycleEvent(EventStarted) }

// StatusEvent reports a RunState transition.
func StatusEvent(state RunState) WorkflowEvent {
	e := lifecycleEvent(EventStatus)
	e.State = state
	return e
}

// FailedEvent reports that the run terminated with an error.
func FailedEvent(details ErrorDetails) WorkflowEvent {
	e := lifecycleEvent(EventFailed)
	e.Details = &details
	return e
}

// OutputEvent reports a user-observable workflow output from yield_output.
func OutputEvent(executorID string, data any) WorkflowEvent {
	return WorkflowEvent{Kind: EventOutput, Origin: OriginExecutor, Time: timeNow(), ExecutorID: executorID, Data: data}
}

// DataEvent reports an intermediate data emission.
func DataEvent(executorID string, data any) WorkflowEvent {
	return WorkflowEvent{Kind: EventData, Origin: OriginExecutor, Time: timeNow(), ExecutorID: executorID, Data: data}
}

// RequestInfoEvent surfaces a pending external request.
func RequestInfoEvent(requestID, sourceExecutorID, requestType, responseType string, data any) WorkflowEvent {
	return WorkflowEvent{
		Kind: EventRequestInfo, Origin: OriginFramework, Time: timeNow(),
		RequestID: requestID, SourceExecutorID: sourceExecutorID,
		RequestType: requestType, ResponseType: responseType, Data: data,
	}
}

// WarningEvent surfaces a non-fatal diagnostic.
func WarningEvent(text string) WorkflowEvent {
	return WorkflowEvent{Kind: EventWarning, Origin: OriginFramework, Time: timeNow(), Text: text}
}

// ErrorEvent surfaces a caught exception as a diagnostic (non-terminal).
func ErrorEvent(err error) WorkflowEvent {
	return WorkflowEvent{Kind: EventError, Origin: OriginFramework, Time: timeNow(), Err: err}
}

// SuperstepStartedEvent marks the beginning of superstep n.
func SuperstepStartedEvent(n int) WorkflowEvent {
	return WorkflowEvent{Kind: EventSuperstepStarted, Origin: OriginFramework, Time: timeNow(), Superstep: n}
}

// SuperstepCompletedEvent marks the end of superstep n.
func SuperstepCompletedEvent(n int) WorkflowEvent {
	return WorkflowEvent{Kind: EventSuperstepCompleted, Origin: OriginFramework, Time: timeNow(), Superstep: n}
}

// ExecutorInvokedEvent marks the start of a handler invocation.
func ExecutorInvokedEvent(executorID string) WorkflowEvent {
	return WorkflowEvent{Kind: EventExecutorInvoked, Origin: OriginFramework, Time: timeNow(), ExecutorID: executorID}
}

// ExecutorCompletedEvent marks the successful end of a handler invocation.
func ExecutorCompletedEvent(executorID string) WorkflowEvent {
	return WorkflowEvent{Kind: EventExecutorCompleted, Origin: OriginFramework, Time: timeNow(), ExecutorID: executorID}
}

// ExecutorFailedEvent marks a handler invocation that raised an error.
func ExecutorFailedEvent(executorID string, details ErrorDetails) WorkflowEvent {
	return WorkflowEvent{Kind: EventExecutorFailed, Origin: OriginFramework, Time: timeNow(), ExecutorID: executorID, Details: &details}
}

// CustomEvent wraps an orchestration-specific event opaque to the core.
func CustomEvent(kind string, data any) WorkflowEvent {
	return WorkflowEvent{Kind: EventCustom, Origin: OriginExecutor, Time: timeNow(), CustomKind: kind, Custom: data}
}

var timeNow = time.Now
