package workflow

import (
	"context"
	"testing"

	wstore "github.com/flowkit/workflow/store"
)

func buildChildWorkflow(t *testing.T) *Workflow {
	t.Helper()
	child := NewFuncExecutor("child_start")
	AddHandler(child, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput("child:" + payload)
		return nil
	})
	b := NewWorkflowBuilder("child").WithStartExecutor("child_start").AddExecutor(child)
	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected child build error: %v (validation: %+v)", err, result.Errors)
	}
	return wf
}

func TestSubWorkflowExecutorForwardsChildOutputs(t *testing.T) {
	childWF := buildChildWorkflow(t)
	sub := NewSubWorkflowExecutor("sub", childWF, TypeOf[string]())

	parentStart := NewFuncExecutor("parent_start")
	AddHandler(parentStart, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.SendMessage(payload)
		return nil
	})
	parentStart.DeclareOutputTypes(TypeOf[string]())

	collector := NewFuncExecutor("collector")
	AddHandler(collector, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	b := NewWorkflowBuilder("parent").
		WithStartExecutor("parent_start").
		AddExecutor(parentStart).
		AddExecutor(sub).
		AddExecutor(collector).
		AddEdgeGroup(NewSingleEdgeGroup("g1", "parent_start", "sub")).
		AddEdgeGroup(NewSingleEdgeGroup("g2", "sub", "collector"))

	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}

	runResult, err := wf.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	outputs := runResult.GetOutputs()
	if len(outputs) != 1 || outputs[0] != "child:hello" {
		t.Fatalf("expected the child's output forwarded through the parent, got %v", outputs)
	}
}

func TestSubWorkflowExecutorSnapshotRestoreRoutingTable(t *testing.T) {
	childWF := buildChildWorkflow(t)
	sub := NewSubWorkflowExecutor("sub", childWF, TypeOf[string]())

	sub.requestRouting["lifted-1"] = "exec-1"
	snap, err := sub.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := NewSubWorkflowExecutor("sub", childWF, TypeOf[string]())
	if err := fresh.Restore(snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.requestRouting["lifted-1"] != "exec-1" {
		t.Fatalf("expected routing table to survive snapshot/restore, got %v", fresh.requestRouting)
	}
}

func TestSubWorkflowExecutorLiftsChildRequestInfo(t *testing.T) {
	childReviewer := NewFuncExecutor("child_reviewer")
	AddHandler(childReviewer, func(ctx context.Context, hc *HandlerContext, payload string) error {
		_, err := hc.RequestInfo(ctx, payload, TypeOf[string](), TypeOf[bool]())
		return err
	})
	AddResponseHandler(childReviewer, func(ctx context.Context, hc *HandlerContext, request string, approved bool) error {
		if approved {
			hc.YieldOutput("child-approved:" + request)
		}
		return nil
	})
	childBuilder := NewWorkflowBuilder("child_review").
		WithStartExecutor("child_reviewer").
		AddExecutor(childReviewer).
		WithCheckpointStore(wstore.NewMemoryStore())
	childWF, cres, err := childBuilder.Build()
	if err != nil {
		t.Fatalf("unexpected child build error: %v (validation: %+v)", err, cres.Errors)
	}

	sub := NewSubWorkflowExecutor("sub", childWF, TypeOf[string]())
	b := NewWorkflowBuilder("parent_review").
		WithStartExecutor("sub").
		AddExecutor(sub).
		WithCheckpointStore(wstore.NewMemoryStore())
	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}

	runResult, err := wf.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	reqEvents := runResult.GetRequestInfoEvents()
	if len(reqEvents) != 1 {
		t.Fatalf("expected the child's request_info to surface through the parent, got %d events", len(reqEvents))
	}
	if reqEvents[0].RequestType != "string" || reqEvents[0].ResponseType != "bool" {
		t.Fatalf("expected the lifted event to carry the child's real request/response types, got RequestType=%q ResponseType=%q", reqEvents[0].RequestType, reqEvents[0].ResponseType)
	}

	resumed, err := wf.SendResponses(context.Background(), runResult.RunID, map[string]any{
		reqEvents[0].RequestID: true,
	})
	if err != nil {
		t.Fatalf("unexpected SendResponses error: %v", err)
	}
	outputs := resumed.GetOutputs()
	if len(outputs) != 1 || outputs[0] != "child-approved:go" {
		t.Fatalf("expected the lifted response to flow back to the child and surface its output, got %v", outputs)
	}
}
