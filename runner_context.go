package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/flowkit/workflow/store"
)

// RunnerContext is the scheduler-facing mailbox: it buffers outbound
// messages per source executor and carries a live event stream, an optional
// checkpoint store, the workflow id, and the streaming-mode flag (spec §3).
//
// It is reset at the start of a fresh run and preserved across resume.
type RunnerContext struct {
	mu sync.Mutex

	workflowID string
	streaming  bool

	// outbound buffers messages emitted during the current superstep,
	// keyed by the emitting executor's id, preserving emission order.
	outbound map[string][]Message

	// emitFn is the run's single event sink, installed by the scheduler at
	// the start of runCore. Routing every event (both scheduler-originated
	// and executor-originated, via HandlerContext) through one callback
	// keeps the lifecycle stream and the handler-visible stream from
	// diverging into two independent event histories.
	emitFn func(WorkflowEvent)

	checkpointStore store.CheckpointStore

	queueDepth          int
	backpressureTimeout time.Duration
}

// NewRunnerContext creates a RunnerContext for workflowID. queueDepth
// (1024 when not positive) is recorded on the context; it does not bound
// the per-source outbound buffer, which grows without limit. The streaming
// event channel's capacity comes from the workflow's queue depth (see
// Workflow.RunStream).
func NewRunnerContext(workflowID string, queueDepth int, backpressureTimeout time.Duration, cpStore store.CheckpointStore) *RunnerContext {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	return &RunnerContext{
		workflowID:          workflowID,
		outbound:            make(map[string][]Message),
		checkpointStore:     cpStore,
		queueDepth:          queueDepth,
		backpressureTimeout: backpressureTimeout,
	}
}

// setEmitFn installs the run's event sink.
func (rc *RunnerContext) setEmitFn(fn func(WorkflowEvent)) { rc.emitFn = fn }

// SetStreaming toggles the IsStreaming flag visible to handlers.
func (rc *RunnerContext) SetStreaming(v bool) { rc.streaming = v }

// IsStreaming reports whether the current run is operating in streaming
// mode (run_stream* vs run*).
func (rc *RunnerContext) IsStreaming() bool { return rc.streaming }

// WorkflowID returns the owning workflow's id.
func (rc *RunnerContext) WorkflowID() string { return rc.workflowID }

// send appends a message to sourceID's outbound buffer. Called only by the
// HandlerContext on behalf of an executing handler.
func (rc *RunnerContext) send(sourceID string, msg Message) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.outbound[sourceID] = append(rc.outbound[sourceID], msg)
}

// drain empties the outbound buffer and returns its contents keyed by
// source id, for the scheduler to dispatch at the next superstep boundary.
func (rc *RunnerContext) drain() map[string][]Message {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := rc.outbound
	rc.outbound = make(map[string][]Message)
	return out
}

// snapshotOutbound returns a copy of the current outbound buffer without
// clearing it, for checkpointing messages that are queued for the next
// superstep but not yet dispatched.
func (rc *RunnerContext) snapshotOutbound() map[string][]Message {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string][]Message, len(rc.outbound))
	for k, v := range rc.outbound {
		cp := make([]Message, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// restoreOutbound replaces the outbound buffer wholesale, used when
// resuming from a checkpoint.
func (rc *RunnerContext) restoreOutbound(buf map[string][]Message) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.outbound = buf
}

// hasPending reports whether any source has buffered messages.
func (rc *RunnerContext) hasPending() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, msgs := range rc.outbound {
		if len(msgs) > 0 {
			return true
		}
	}
	return false
}

// emit routes an event to the run's emit sink, rejecting lifecycle events
// that claim an Executor origin (spec §3: "Events of the lifecycle set
// created with an EXECUTOR origin MUST be rejected and replaced by a
// warning"). A nil sink (no run in progress) silently drops the event.
func (rc *RunnerContext) emit(ctx context.Context, ev WorkflowEvent) {
	if ev.Kind.isLifecycle() && ev.Origin == OriginExecutor {
		ev = WarningEvent("rejected executor-origin lifecycle event")
	}
	if rc.emitFn != nil {
		rc.emitFn(ev)
	}
}

// checkpoints returns the attached checkpoint store, or nil if none.
func (rc *RunnerContext) checkpoints() store.CheckpointStore { return rc.checkpointStore }
