package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	wstore "github.com/flowkit/workflow/store"
	"github.com/flowkit/workflow/telemetry"
)

// Workflow is the immutable, validated graph produced by WorkflowBuilder.
// A single Workflow value may be run multiple times, but not
// concurrently — ErrRunActive guards against a caller starting a second
// run while one is active (spec §4.8).
type Workflow struct {
	id         string
	startID    string
	executors  map[string]Executor
	edgeGroups []EdgeGroup
	signature  GraphSignature

	policies map[string]*ExecutorPolicy

	queueDepth          int
	backpressureTimeout time.Duration
	defaultTimeout      time.Duration
	maxIterations       int
	wallClockBudget     time.Duration
	maxConcurrency      int

	checkpointStore wstore.CheckpointStore
	sinks           []telemetry.Sink
	metrics         *Metrics

	mu     sync.Mutex
	active bool
}

// RunResult is returned by every run entry point: the set of terminal
// workflow outputs observed, the full event history, and the final
// lifecycle status (spec §4.8).
type RunResult struct {
	RunID      string
	Outputs    []any
	Events     []WorkflowEvent
	FinalState RunState
	hasFinal   bool
}

// GetOutputs returns every value yielded via HandlerContext.YieldOutput
// during the run.
func (r *RunResult) GetOutputs() []any { return r.Outputs }

// GetRequestInfoEvents returns every RequestInfo event raised during the
// run — the set of external inputs a caller must answer via SendResponses
// to make further progress.
func (r *RunResult) GetRequestInfoEvents() []WorkflowEvent {
	var out []WorkflowEvent
	for _, e := range r.Events {
		if e.Kind == EventRequestInfo {
			out = append(out, e)
		}
	}
	return out
}

// GetFinalState returns the last observed RunState, or ErrNoFinalStatus if
// no status event was ever emitted.
func (r *RunResult) GetFinalState() (RunState, error) {
	if !r.hasFinal {
		return 0, ErrNoFinalStatus
	}
	return r.FinalState, nil
}

// StatusTimeline returns every RunState transition observed during the
// run, in order.
func (r *RunResult) StatusTimeline() []RunState {
	var out []RunState
	for _, e := range r.Events {
		if e.Kind == EventStatus {
			out = append(out, e.State)
		}
	}
	return out
}

func (w *Workflow) buildResult(rs *runState) *RunResult {
	return &RunResult{
		RunID:      rs.runID,
		Outputs:    rs.outputs,
		Events:     rs.events,
		FinalState: rs.status,
		hasFinal:   rs.statusSet,
	}
}

// acquire enforces the single-active-run guard.
func (w *Workflow) acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return ErrRunActive
	}
	w.active = true
	return nil
}

func (w *Workflow) release() {
	w.mu.Lock()
	w.active = false
	w.mu.Unlock()
}

// newRunState builds a fresh runState for runID, wiring the
// RequestInfoExecutor's delivery callback to directly invoke the target
// executor's registered response handler.
func (w *Workflow) newRunState(runID string) *runState {
	shared := NewSharedState()
	runner := NewRunnerContext(runID, w.queueDepth, w.backpressureTimeout, w.checkpointStore)
	rng, seed := initRNG(runID)

	rs := &runState{runID: runID, shared: shared, runner: runner, rng: rng, rngSeed: seed}
	rs.requestInfo = NewRequestInfoExecutor(shared, runner, func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error {
		return w.deliverResponse(ctx, rs, requestID, sourceExecutorID, request, response)
	})
	return rs
}

// idResponseHandler is implemented by executors (SubWorkflowExecutor) that
// correlate a response to its originating call by request id rather than by
// re-dispatching through a registered FuncExecutor response handler. hc is
// the same HandlerContext a normal invocation would receive, so these
// executors can still forward messages or yield outputs as a result of
// handling the response.
type idResponseHandler interface {
	HandleResponse(ctx context.Context, hc *HandlerContext, requestID string, response any) error
}

func (w *Workflow) deliverResponse(ctx context.Context, rs *runState, requestID, sourceExecutorID string, request, response any) error {
	executor, ok := w.executors[sourceExecutorID]
	if !ok {
		return fmt.Errorf("workflow: response target executor %q not found", sourceExecutorID)
	}
	hc := newHandlerContext(sourceExecutorID, rs.runner, rs.shared, rs.rng, w.requestInfoFunc(rs))
	if idr, ok := executor.(idResponseHandler); ok {
		return idr.HandleResponse(ctx, hc, requestID, response)
	}
	fe, ok := executor.(*FuncExecutor)
	if !ok {
		return fmt.Errorf("workflow: executor %q does not support response handlers", sourceExecutorID)
	}
	return fe.HandleResponse(ctx, hc, request, response)
}

// Run executes the workflow to completion (or to the first point further
// progress requires external input), starting from input delivered to the
// start executor.
func (w *Workflow) Run(ctx context.Context, input any) (*RunResult, error) {
	return w.run(ctx, input, nil)
}

// RunStream behaves like Run but also returns a channel of WorkflowEvents
// emitted live as the run progresses; the channel is closed when the run
// finishes.
func (w *Workflow) RunStream(ctx context.Context, input any) (<-chan WorkflowEvent, func() (*RunResult, error)) {
	events := make(chan WorkflowEvent, w.queueDepth)
	var result *RunResult
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)
		result, runErr = w.run(ctx, input, events)
	}()

	wait := func() (*RunResult, error) {
		<-done
		return result, runErr
	}
	return events, wait
}

func (w *Workflow) run(ctx context.Context, input any, liveEvents chan<- WorkflowEvent) (*RunResult, error) {
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	rs := w.newRunState(uuid.NewString())
	rs.runner.SetStreaming(liveEvents != nil)

	startEv := StartedEvent()
	rs.events = append(rs.events, startEv)
	if liveEvents != nil {
		liveEvents <- startEv
	}
	statusEv := StatusEvent(RunStateStarted)
	rs.events = append(rs.events, statusEv)
	rs.status = RunStateStarted
	rs.statusSet = true
	if liveEvents != nil {
		liveEvents <- statusEv
	}

	rs.runner.send(reservedEntrySourceID, NewMessage(input, "", w.startID))
	return w.runCore(ctx, rs, liveEvents)
}

// RunFromCheckpoint resumes a previously checkpointed run, rejecting the
// resume with ErrTopologyChanged if the workflow's current graph signature
// no longer matches the one the checkpoint was taken against.
func (w *Workflow) RunFromCheckpoint(ctx context.Context, runID, checkpointID string) (*RunResult, error) {
	return w.runFromCheckpoint(ctx, runID, checkpointID, nil)
}

// RunStreamFromCheckpoint is the streaming counterpart of
// RunFromCheckpoint.
func (w *Workflow) RunStreamFromCheckpoint(ctx context.Context, runID, checkpointID string) (<-chan WorkflowEvent, func() (*RunResult, error)) {
	events := make(chan WorkflowEvent, w.queueDepth)
	var result *RunResult
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)
		result, runErr = w.runFromCheckpoint(ctx, runID, checkpointID, events)
	}()

	wait := func() (*RunResult, error) {
		<-done
		return result, runErr
	}
	return events, wait
}

func (w *Workflow) runFromCheckpoint(ctx context.Context, runID, checkpointID string, liveEvents chan<- WorkflowEvent) (*RunResult, error) {
	if w.checkpointStore == nil {
		return nil, &WorkflowCheckpointError{Op: "load", Cause: fmt.Errorf("workflow: no checkpoint store configured")}
	}
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	cp, err := loadCheckpoint(ctx, w.checkpointStore, runID, checkpointID, w.signature, w.sinks)
	if err != nil {
		return nil, err
	}

	rs := w.newRunState(cp.RunID)
	rs.runner.SetStreaming(liveEvents != nil)
	rs.superstep = cp.Superstep
	rs.rng = rngFromSeed(cp.RNGSeed)
	rs.rngSeed = cp.RNGSeed
	restoreSharedState(cp, rs.shared)
	rs.runner.restoreOutbound(restorePending(cp))
	rs.requestInfo.restoreFromSharedState()

	for id, executor := range w.executors {
		if raw, ok := rs.shared.Get(reservedExecutorStateKey); ok {
			if perExec, ok := raw.(map[string]any); ok {
				if snap, ok := perExec[id]; ok {
					_ = executor.Restore(snap)
				}
			}
		}
	}

	return w.runCore(ctx, rs, liveEvents)
}

// SendResponses delivers external answers to pending requests, resuming
// the latest checkpoint of runID and continuing the superstep loop.
// Callers discover pending request ids via RunResult.GetRequestInfoEvents.
func (w *Workflow) SendResponses(ctx context.Context, runID string, responses map[string]any) (*RunResult, error) {
	return w.sendResponses(ctx, runID, responses, nil)
}

// SendResponsesStreaming is the streaming counterpart of SendResponses.
func (w *Workflow) SendResponsesStreaming(ctx context.Context, runID string, responses map[string]any) (<-chan WorkflowEvent, func() (*RunResult, error)) {
	events := make(chan WorkflowEvent, w.queueDepth)
	var result *RunResult
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)
		result, runErr = w.sendResponses(ctx, runID, responses, events)
	}()

	wait := func() (*RunResult, error) {
		<-done
		return result, runErr
	}
	return events, wait
}

func (w *Workflow) sendResponses(ctx context.Context, runID string, responses map[string]any, liveEvents chan<- WorkflowEvent) (*RunResult, error) {
	if w.checkpointStore == nil {
		return nil, &WorkflowCheckpointError{Op: "load", Cause: fmt.Errorf("workflow: no checkpoint store configured")}
	}
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	cp, err := loadCheckpoint(ctx, w.checkpointStore, runID, "", w.signature, w.sinks)
	if err != nil {
		return nil, err
	}

	rs := w.newRunState(cp.RunID)
	rs.runner.SetStreaming(liveEvents != nil)
	rs.superstep = cp.Superstep
	rs.rng = rngFromSeed(cp.RNGSeed)
	rs.rngSeed = cp.RNGSeed
	restoreSharedState(cp, rs.shared)
	rs.runner.restoreOutbound(restorePending(cp))
	rs.requestInfo.restoreFromSharedState()
	w.installEmitter(ctx, rs, liveEvents)

	pendingIDs := map[string]bool{}
	for _, id := range rs.requestInfo.PendingRequestIDs() {
		pendingIDs[id] = true
	}
	for reqID, resp := range responses {
		if !pendingIDs[reqID] {
			warnSinks(w.sinks, runID, rs.superstep, fmt.Sprintf("no pending request with id %q; response dropped", reqID))
			continue
		}
		if err := rs.requestInfo.HandleResponse(ctx, reqID, resp); err != nil {
			return nil, err
		}
	}

	return w.runCore(ctx, rs, liveEvents)
}

// runIsolated is used by SubWorkflowExecutor to drive this workflow as a
// child of a parent run, in complete isolation from any other concurrent
// invocation: a fresh run id and shared state, independent of any run of
// this same Workflow value started via Run. onRequest is invoked whenever
// the child raises a RequestInfo event, giving the caller a chance to lift
// the request into its own scope.
func (w *Workflow) runIsolated(ctx context.Context, execCtx ExecutionContext, input any, onRequest func(childRequestID, requestType, responseType string, data any) (string, error)) (*RunResult, error) {
	rs := w.newRunState(execCtx.ExecutionID)
	rs.runner.send(reservedEntrySourceID, NewMessage(input, "", w.startID))

	result, err := w.runCore(ctx, rs, nil)
	if err != nil {
		return nil, err
	}
	for _, ev := range result.Events {
		if ev.Kind == EventRequestInfo && onRequest != nil {
			if _, err := onRequest(ev.RequestID, ev.RequestType, ev.ResponseType, ev.Data); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// resumeExecution delivers a response to a specific isolated child execution
// previously started by runIsolated, identified by execution id (which
// doubles as that execution's run id for checkpoint lookups). Like
// runIsolated, any further RequestInfo event the resumed run raises is
// handed to onRequest so it can be lifted again.
func (w *Workflow) resumeExecution(ctx context.Context, executionID, requestID string, response any, onRequest func(childRequestID, requestType, responseType string, data any) (string, error)) (*RunResult, error) {
	result, err := w.sendResponses(ctx, executionID, map[string]any{requestID: response}, nil)
	if err != nil {
		return nil, err
	}
	for _, ev := range result.Events {
		if ev.Kind == EventRequestInfo && onRequest != nil {
			if _, err := onRequest(ev.RequestID, ev.RequestType, ev.ResponseType, ev.Data); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}
