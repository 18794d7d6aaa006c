package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// pendingRequest is the in-memory record of one outstanding external
// request, mirrored into shared state under reservedPendingRequestsKey so
// it survives checkpoint/resume.
type pendingRequest struct {
	RequestID        string
	SourceExecutorID string
	RequestType      TypeID
	ResponseType     TypeID
	Data             any
}

// RequestInfoExecutor is the built-in executor that surfaces external
// human-in-the-loop requests (spec §4.4). Any executor calls
// HandlerContext.RequestInfo, which routes here; this executor assigns a
// request id, emits a RequestInfoEvent, and records the pending request
// both in memory and in shared state so Workflow.SendResponses can
// correlate an external answer back to the right executor even after a
// process restart.
type RequestInfoExecutor struct {
	id string

	mu      sync.Mutex
	pending map[string]pendingRequest

	shared *SharedState
	runner *RunnerContext

	// deliver routes a correlated response back to the originating
	// executor's response handler; wired by the scheduler. requestID is
	// carried through for executors (sub-workflow wrappers) that correlate
	// on the request id itself rather than on the request payload.
	deliver func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error
}

// requestInfoExecutorID is the fixed, reserved id of the built-in
// Request-Info Executor within every workflow (spec §4.4: exactly one
// instance per workflow).
const requestInfoExecutorID = "_request_info"

// NewRequestInfoExecutor creates the built-in Request-Info Executor backed
// by shared and runner. deliver is invoked when a response is matched to a
// pending request.
func NewRequestInfoExecutor(shared *SharedState, runner *RunnerContext, deliver func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error) *RequestInfoExecutor {
	return &RequestInfoExecutor{
		id:      requestInfoExecutorID,
		pending: make(map[string]pendingRequest),
		shared:  shared,
		runner:  runner,
		deliver: deliver,
	}
}

func (r *RequestInfoExecutor) ID() string { return r.id }

// Request records a new pending request and returns its assigned id. It is
// the implementation behind HandlerContext.RequestInfo.
func (r *RequestInfoExecutor) Request(ctx context.Context, sourceExecutorID string, data any, requestType, responseType TypeID) (string, error) {
	requestID := uuid.NewString()

	r.mu.Lock()
	r.pending[requestID] = pendingRequest{
		RequestID:        requestID,
		SourceExecutorID: sourceExecutorID,
		RequestType:      requestType,
		ResponseType:     responseType,
		Data:             data,
	}
	r.mirrorToSharedState()
	r.mu.Unlock()

	r.runner.emit(ctx, RequestInfoEvent(requestID, sourceExecutorID, requestType.Name(), responseType.Name(), data))
	return requestID, nil
}

// HandleResponse correlates an external response to its pending request by
// id, delivers it to the originating executor, and clears the pending
// entry. Returns an error if requestID is unknown (already answered, or
// never issued).
func (r *RequestInfoExecutor) HandleResponse(ctx context.Context, requestID string, response any) error {
	r.mu.Lock()
	pr, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
		r.mirrorToSharedState()
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("workflow: no pending request with id %q", requestID)
	}
	return r.deliver(ctx, requestID, pr.SourceExecutorID, pr.Data, response)
}

// HasPendingRequest reports whether any request is outstanding, consulting
// both the in-memory table and, if empty, the shared-state mirror — the
// latter matters immediately after a resume, before any new request has
// touched the in-memory map.
func (r *RequestInfoExecutor) HasPendingRequest() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		return true
	}
	raw, ok := r.shared.Get(reservedPendingRequestsKey)
	if !ok {
		return false
	}
	switch mirrored := raw.(type) {
	case map[string]pendingRequest:
		return len(mirrored) > 0
	case map[string]any:
		return len(mirrored) > 0
	}
	return false
}

// PendingRequestIDs returns the ids of all currently outstanding requests.
func (r *RequestInfoExecutor) PendingRequestIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	return ids
}

// mirrorToSharedState writes the current pending table into shared state.
// Caller must hold r.mu.
func (r *RequestInfoExecutor) mirrorToSharedState() {
	mirror := make(map[string]pendingRequest, len(r.pending))
	for id, pr := range r.pending {
		mirror[id] = pr
	}
	r.shared.Set(reservedPendingRequestsKey, mirror)
}

// restoreFromSharedState rehydrates the in-memory pending table after a
// resume, from whatever mirrorToSharedState last persisted.
func (r *RequestInfoExecutor) restoreFromSharedState() {
	raw, ok := r.shared.Get(reservedPendingRequestsKey)
	if !ok {
		return
	}
	mirror, ok := raw.(map[string]pendingRequest)
	if !ok {
		// After a checkpoint round trip the mirror is a decoded generic map.
		decoded, isMap := raw.(map[string]any)
		if !isMap {
			return
		}
		mirror = make(map[string]pendingRequest, len(decoded))
		for id, v := range decoded {
			fields, _ := v.(map[string]any)
			source, _ := fields["SourceExecutorID"].(string)
			mirror[id] = pendingRequest{RequestID: id, SourceExecutorID: source, Data: fields["Data"]}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[string]pendingRequest, len(mirror))
	for id, pr := range mirror {
		r.pending[id] = pr
	}
}
