package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ExecutionContext identifies one invocation of a child workflow wrapped
// by a SubWorkflowExecutor. A parent executor may trigger many concurrent,
// isolated child runs (one per incoming message); ExecutionID is what lets
// responses and outputs be routed back to the correct one (spec §4.5).
type ExecutionContext struct {
	ExecutionID string
}

// SubWorkflowExecutor wraps a child Workflow so it can be embedded as a
// single executor inside a parent workflow's graph. Every message it
// receives spawns (or resumes) an isolated child execution, keyed by a
// freshly generated ExecutionID; the child's requests for external input
// are lifted into the parent's own request/response flow, with a routing
// table tracking which child execution a given lifted request id belongs
// to so the eventual response can be delivered to the right child.
type SubWorkflowExecutor struct {
	id    string
	child *Workflow

	mu             sync.Mutex
	requestRouting map[string]string // lifted request id -> child execution id

	outputTypes []TypeID
}

// NewSubWorkflowExecutor wraps child as an executor named id. outputTypes
// declares what the child's workflow outputs look like, for the parent
// validator's type-compatibility pass.
func NewSubWorkflowExecutor(id string, child *Workflow, outputTypes ...TypeID) *SubWorkflowExecutor {
	return &SubWorkflowExecutor{
		id:             id,
		child:          child,
		requestRouting: make(map[string]string),
		outputTypes:    outputTypes,
	}
}

func (s *SubWorkflowExecutor) ID() string { return s.id }

// CanHandle always reports true: the child workflow's own start executor
// is responsible for rejecting payload types it cannot handle, the same
// way it would if invoked directly rather than through this wrapper.
func (s *SubWorkflowExecutor) CanHandle(TypeID) bool { return true }

func (s *SubWorkflowExecutor) InputTypes() []TypeID { return []TypeID{Any()} }

func (s *SubWorkflowExecutor) OutputTypes() []TypeID { return s.outputTypes }

func (s *SubWorkflowExecutor) WorkflowOutputTypes() []TypeID { return nil }

func (s *SubWorkflowExecutor) Snapshot() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	routing := make(map[string]string, len(s.requestRouting))
	for k, v := range s.requestRouting {
		routing[k] = v
	}
	return routing, nil
}

func (s *SubWorkflowExecutor) Restore(snapshot any) error {
	if snapshot == nil {
		return nil
	}
	routing, ok := snapshot.(map[string]string)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestRouting = routing
	return nil
}

// Execute starts a fresh, isolated child run for payload and forwards
// every child workflow output onward via hc.SendMessage. Requests the
// child issues via its own Request-Info Executor are lifted: this executor
// records the (lifted id -> execution id) mapping and re-issues the
// request through the parent's HandlerContext so it surfaces to whoever
// is driving the parent run.
func (s *SubWorkflowExecutor) Execute(ctx context.Context, hc *HandlerContext, payload any) error {
	execCtx := ExecutionContext{ExecutionID: uuid.NewString()}

	result, err := s.child.runIsolated(ctx, execCtx, payload, func(childRequestID, requestType, responseType string, data any) (string, error) {
		liftedID, rerr := hc.RequestInfo(ctx, data, NamedTypeID(requestType), NamedTypeID(responseType))
		if rerr != nil {
			return "", rerr
		}
		s.mu.Lock()
		s.requestRouting[liftedID] = execCtx.ExecutionID
		s.mu.Unlock()
		return liftedID, nil
	})
	if err != nil {
		return &AgentExecutionError{ExecutorID: s.id, ErrorType: "sub_workflow_error", Message: err.Error(), Cause: err}
	}

	for _, out := range result.Outputs {
		hc.SendMessage(out)
	}
	return nil
}

// HandleResponse delivers an external response to the child execution that
// issued the matching lifted request, identified via the routing table
// built up in Execute, and forwards whatever the resumed child run yields
// onward through hc — same as a fresh invocation would via Execute.
func (s *SubWorkflowExecutor) HandleResponse(ctx context.Context, hc *HandlerContext, liftedRequestID string, response any) error {
	s.mu.Lock()
	execID, ok := s.requestRouting[liftedRequestID]
	if ok {
		delete(s.requestRouting, liftedRequestID)
	}
	s.mu.Unlock()
	if !ok {
		return &NoRouteError{GroupID: s.id}
	}
	result, err := s.child.resumeExecution(ctx, execID, liftedRequestID, response, func(childRequestID, requestType, responseType string, data any) (string, error) {
		liftedID, rerr := hc.RequestInfo(ctx, data, NamedTypeID(requestType), NamedTypeID(responseType))
		if rerr != nil {
			return "", rerr
		}
		s.mu.Lock()
		s.requestRouting[liftedID] = execID
		s.mu.Unlock()
		return liftedID, nil
	})
	if err != nil {
		return err
	}
	for _, out := range result.Outputs {
		hc.SendMessage(out)
	}
	return nil
}
