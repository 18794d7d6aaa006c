package workflow

import (
	"context"
	"fmt"
)

// Executor is the unit of computation in a workflow graph. Implementations
// are invoked by the scheduler with exactly one input message per call;
// CanHandle lets the scheduler and validator reason about an executor's
// accepted input types without invoking it.
type Executor interface {
	ID() string

	// CanHandle reports whether the executor has a registered handler whose
	// input type is compatible with payloadType.
	CanHandle(payloadType TypeID) bool

	// InputTypes returns every input TypeID this executor has a handler for,
	// used by the validator to check edge type compatibility (spec §4.7).
	InputTypes() []TypeID

	// OutputTypes returns the declared set of types this executor may send
	// onward via HandlerContext.SendMessage, used for the same validation pass.
	OutputTypes() []TypeID

	// WorkflowOutputTypes returns the declared set of types this executor
	// may yield as a terminal workflow output via HandlerContext.YieldOutput.
	WorkflowOutputTypes() []TypeID

	// Execute dispatches payload to the matching handler. Returns
	// NoHandlerError if none matches.
	Execute(ctx context.Context, hc *HandlerContext, payload any) error

	// Snapshot and Restore persist and rehydrate any executor-local state
	// across checkpoint/resume, stored under the reserved executor-state
	// shared-state key. Executors with no local state return nil/no-op.
	Snapshot() (any, error)
	Restore(snapshot any) error
}

// handlerEntry pairs a type-erased handler function with the declared input
// type it accepts.
type handlerEntry struct {
	inputType TypeID
	fn        func(ctx context.Context, hc *HandlerContext, payload any) error
}

// responseEntry pairs a type-erased response handler with the
// (request type, response type) pair it was registered for.
type responseEntry struct {
	requestType  TypeID
	responseType TypeID
	fn           func(ctx context.Context, hc *HandlerContext, request, response any) error
}

// FuncExecutor is the default Executor implementation: a bag of typed
// handlers and response handlers registered via the package-level
// AddHandler / AddResponseHandler functions (Go forbids generic methods, so
// registration cannot live on the type itself — this mirrors the teacher's
// functional-options style of building up behavior through free functions
// rather than a fluent builder type).
type FuncExecutor struct {
	id                  string
	handlers            []handlerEntry
	responseHandlers    []responseEntry
	outputTypes         []TypeID
	workflowOutputTypes []TypeID

	snapshotFn func() (any, error)
	restoreFn  func(any) error
}

// NewFuncExecutor creates an empty FuncExecutor with the given id. Use
// AddHandler and AddResponseHandler to register behavior, and
// DeclareOutputTypes / DeclareWorkflowOutputTypes to advertise what it may
// send, for the validator's type-compatibility pass.
func NewFuncExecutor(id string) *FuncExecutor {
	return &FuncExecutor{id: id}
}

func (e *FuncExecutor) ID() string { return e.id }

func (e *FuncExecutor) CanHandle(payloadType TypeID) bool {
	for _, h := range e.handlers {
		if TypesCompatible(payloadType, h.inputType) {
			return true
		}
	}
	return false
}

func (e *FuncExecutor) InputTypes() []TypeID {
	out := make([]TypeID, len(e.handlers))
	for i, h := range e.handlers {
		out[i] = h.inputType
	}
	return out
}

func (e *FuncExecutor) OutputTypes() []TypeID { return e.outputTypes }

func (e *FuncExecutor) WorkflowOutputTypes() []TypeID { return e.workflowOutputTypes }

// DeclareOutputTypes records the types this executor may emit via
// HandlerContext.SendMessage, for validator use.
func (e *FuncExecutor) DeclareOutputTypes(types ...TypeID) { e.outputTypes = append(e.outputTypes, types...) }

// DeclareWorkflowOutputTypes records the types this executor may emit via
// HandlerContext.YieldOutput, for validator use.
func (e *FuncExecutor) DeclareWorkflowOutputTypes(types ...TypeID) {
	e.workflowOutputTypes = append(e.workflowOutputTypes, types...)
}

// SetSnapshotHooks installs the functions Executor.Snapshot/Restore
// delegate to. Executors with no local state may leave these unset.
func (e *FuncExecutor) SetSnapshotHooks(snapshot func() (any, error), restore func(any) error) {
	e.snapshotFn = snapshot
	e.restoreFn = restore
}

func (e *FuncExecutor) Snapshot() (any, error) {
	if e.snapshotFn == nil {
		return nil, nil
	}
	return e.snapshotFn()
}

func (e *FuncExecutor) Restore(snapshot any) error {
	if e.restoreFn == nil || snapshot == nil {
		return nil
	}
	return e.restoreFn(snapshot)
}

func (e *FuncExecutor) Execute(ctx context.Context, hc *HandlerContext, payload any) error {
	payloadType := TypeID{Kind: KindConcrete, RType: dynamicType(payload)}
	for _, h := range e.handlers {
		if TypesCompatible(payloadType, h.inputType) {
			return h.fn(ctx, hc, payload)
		}
	}
	return &NoHandlerError{ExecutorID: e.id, PayloadType: describeValue(payload)}
}

// findResponseHandler locates the response handler registered for the given
// request/response type pair, used by the Request-Info Executor's
// handle_response path and by sub-workflow response lifting.
func (e *FuncExecutor) findResponseHandler(requestType, responseType TypeID) (responseEntry, bool) {
	for _, r := range e.responseHandlers {
		if TypesCompatible(requestType, r.requestType) && TypesCompatible(responseType, r.responseType) {
			return r, true
		}
	}
	return responseEntry{}, false
}

// HandleResponse dispatches a correlated response to its registered
// handler. Returns an error wrapping fmt if no handler matches.
func (e *FuncExecutor) HandleResponse(ctx context.Context, hc *HandlerContext, request, response any) error {
	reqType := TypeID{Kind: KindConcrete, RType: dynamicType(request)}
	respType := TypeID{Kind: KindConcrete, RType: dynamicType(response)}
	entry, ok := e.findResponseHandler(reqType, respType)
	if !ok {
		return fmt.Errorf("executor %s: no response handler for request=%s response=%s", e.id, describeValue(request), describeValue(response))
	}
	return entry.fn(ctx, hc, request, response)
}

// AddHandler registers a typed message handler on executor. Input type T is
// captured via TypeOf[T]() at registration time, which is the only place
// generics are needed — Go cannot express a generic method on FuncExecutor
// itself, so registration is a free function instead.
func AddHandler[T any](executor *FuncExecutor, fn func(ctx context.Context, hc *HandlerContext, payload T) error) {
	executor.handlers = append(executor.handlers, handlerEntry{
		inputType: TypeOf[T](),
		fn: func(ctx context.Context, hc *HandlerContext, payload any) error {
			typed, ok := payload.(T)
			if !ok {
				return &NoHandlerError{ExecutorID: executor.id, PayloadType: describeValue(payload)}
			}
			return fn(ctx, hc, typed)
		},
	})
}

// AddResponseHandler registers a typed response handler keyed by the
// (request type Req, response type Resp) pair, for use by the Request-Info
// Executor and sub-workflow response correlation.
func AddResponseHandler[Req any, Resp any](executor *FuncExecutor, fn func(ctx context.Context, hc *HandlerContext, request Req, response Resp) error) {
	executor.responseHandlers = append(executor.responseHandlers, responseEntry{
		requestType:  TypeOf[Req](),
		responseType: TypeOf[Resp](),
		fn: func(ctx context.Context, hc *HandlerContext, request, response any) error {
			typedReq, ok := request.(Req)
			if !ok {
				return fmt.Errorf("executor %s: request type mismatch", executor.id)
			}
			typedResp, ok := response.(Resp)
			if !ok {
				return fmt.Errorf("executor %s: response type mismatch", executor.id)
			}
			return fn(ctx, hc, typedReq, typedResp)
		},
	})
}
