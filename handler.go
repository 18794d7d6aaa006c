package workflow

import (
	"context"
	"math/rand"
)

// requestInfoFunc is the hook a HandlerContext calls for RequestInfo; it is
// wired up by the scheduler to the workflow's built-in Request-Info
// Executor (see requestinfo.go), keeping HandlerContext itself free of any
// direct dependency on that executor's internals.
type requestInfoFunc func(ctx context.Context, sourceExecutorID string, data any, requestType, responseType TypeID) (string, error)

// HandlerContext is the single entry point a handler uses to interact with
// the rest of the running workflow: sending messages onward, yielding
// terminal outputs, emitting diagnostic events, requesting external input,
// and reading or mutating shared state. One HandlerContext is constructed
// per handler invocation by the scheduler.
type HandlerContext struct {
	executorID string
	runner     *RunnerContext
	shared     *SharedState
	rng        *rand.Rand
	streaming  bool

	requestInfo requestInfoFunc
}

// newHandlerContext is called by the scheduler immediately before invoking
// an executor's handler for one message.
func newHandlerContext(executorID string, runner *RunnerContext, shared *SharedState, rng *rand.Rand, requestInfo requestInfoFunc) *HandlerContext {
	return &HandlerContext{
		executorID:  executorID,
		runner:      runner,
		shared:      shared,
		rng:         rng,
		streaming:   runner.IsStreaming(),
		requestInfo: requestInfo,
	}
}

// ExecutorID returns the id of the executor this context was created for.
func (hc *HandlerContext) ExecutorID() string { return hc.executorID }

// SendMessage buffers payload for delivery to whichever edge groups
// originate from this executor, at the next superstep boundary.
func (hc *HandlerContext) SendMessage(payload any) {
	hc.runner.send(hc.executorID, NewMessage(payload, hc.executorID, ""))
}

// YieldOutput surfaces payload as a terminal workflow output, delivered to
// callers via RunResult.Outputs / the OutputEvent stream.
func (hc *HandlerContext) YieldOutput(payload any) {
	hc.runner.emit(context.Background(), OutputEvent(hc.executorID, payload))
}

// AddEvent emits an orchestration-specific event, opaque to the core
// scheduler, under kind.
func (hc *HandlerContext) AddEvent(kind string, data any) {
	hc.runner.emit(context.Background(), CustomEvent(kind, data))
}

// RequestInfo asks the workflow's Request-Info Executor to surface data to
// the caller as a pending external request, returning the assigned request
// id. The run's status transitions to a pending-requests state until a
// matching response arrives (spec §4.4).
func (hc *HandlerContext) RequestInfo(ctx context.Context, data any, requestType, responseType TypeID) (string, error) {
	return hc.requestInfo(ctx, hc.executorID, data, requestType, responseType)
}

// SharedState returns the run's shared-state store.
func (hc *HandlerContext) SharedState() *SharedState { return hc.shared }

// Rand returns a deterministic random source derived from the run's seed
// (a hash of the run id, grounded on the teacher's initRNG). Inside a
// superstep each invocation gets its own source, keyed by superstep,
// executor id and delivery index, so replays produce the same sequence.
func (hc *HandlerContext) Rand() *rand.Rand { return hc.rng }

// IsStreaming reports whether the current run was started via a streaming
// entry point.
func (hc *HandlerContext) IsStreaming() bool { return hc.streaming }
