package workflow

import (
	"context"
	"testing"
)

func TestRequestInfoExecutorRequestAndHandleResponse(t *testing.T) {
	shared := NewSharedState()
	runner := NewRunnerContext("run1", 16, 0, nil)
	var delivered []any
	ri := NewRequestInfoExecutor(shared, runner, func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error {
		delivered = append(delivered, requestID, sourceExecutorID, request, response)
		return nil
	})

	reqID, err := ri.Request(context.Background(), "reviewer", "draft", TypeOf[string](), TypeOf[bool]())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ri.HasPendingRequest() {
		t.Fatalf("expected a pending request after Request")
	}
	ids := ri.PendingRequestIDs()
	if len(ids) != 1 || ids[0] != reqID {
		t.Fatalf("expected pending ids to contain %s, got %v", reqID, ids)
	}

	if err := ri.HandleResponse(context.Background(), reqID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ri.HasPendingRequest() {
		t.Fatalf("expected no pending request after HandleResponse")
	}
	if len(delivered) != 4 || delivered[0] != reqID || delivered[1] != "reviewer" || delivered[2] != "draft" || delivered[3] != true {
		t.Fatalf("unexpected delivered payload: %v", delivered)
	}
}

func TestRequestInfoExecutorHandleResponseUnknownID(t *testing.T) {
	shared := NewSharedState()
	runner := NewRunnerContext("run1", 16, 0, nil)
	ri := NewRequestInfoExecutor(shared, runner, func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error {
		return nil
	})
	if err := ri.HandleResponse(context.Background(), "nonexistent", true); err == nil {
		t.Fatalf("expected an error for an unknown request id")
	}
}

func TestRequestInfoExecutorMirrorsToSharedStateAndRestores(t *testing.T) {
	shared := NewSharedState()
	runner := NewRunnerContext("run1", 16, 0, nil)
	ri := NewRequestInfoExecutor(shared, runner, func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error {
		return nil
	})

	reqID, err := ri.Request(context.Background(), "reviewer", "draft", TypeOf[string](), TypeOf[bool]())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := NewRequestInfoExecutor(shared, runner, func(ctx context.Context, requestID, sourceExecutorID string, request, response any) error {
		return nil
	})
	fresh.restoreFromSharedState()
	if !fresh.HasPendingRequest() {
		t.Fatalf("expected restored executor to see the mirrored pending request")
	}
	ids := fresh.PendingRequestIDs()
	if len(ids) != 1 || ids[0] != reqID {
		t.Fatalf("expected restored pending ids to contain %s, got %v", reqID, ids)
	}
}
