package workflow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	wstore "github.com/flowkit/workflow/store"
	"github.com/flowkit/workflow/telemetry"
)

func TestBuilderInvalidRetryPolicySurfacesAsValidationError(t *testing.T) {
	start := NewFuncExecutor("start")
	AddHandler(start, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	b := NewWorkflowBuilder("wf").
		WithStartExecutor("start").
		AddExecutor(start).
		WithExecutorPolicy("start", ExecutorPolicy{Retry: &RetryPolicy{MaxAttempts: 0}})

	_, result, err := b.Build()
	if err == nil {
		t.Fatalf("expected a validation error for MaxAttempts < 1")
	}
	found := false
	for _, e := range result.Errors {
		var ve *WorkflowValidationError
		if errors.As(e, &ve) && ve.Code == CodeInvalidConfiguration {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CodeInvalidConfiguration error, got %+v", result.Errors)
	}
}

func TestBuilderValidRetryPolicyBuildsSuccessfully(t *testing.T) {
	start := NewFuncExecutor("start")
	AddHandler(start, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	b := NewWorkflowBuilder("wf").
		WithStartExecutor("start").
		AddExecutor(start).
		WithExecutorPolicy("start", ExecutorPolicy{
			Retry: &RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second},
		})

	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}
	if wf == nil {
		t.Fatalf("expected a non-nil workflow")
	}
}

func TestBuilderWiresQueueDepthAndMaxIterations(t *testing.T) {
	start := NewFuncExecutor("start")
	AddHandler(start, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	wf, result, err := NewWorkflowBuilder("wf").
		WithStartExecutor("start").
		AddExecutor(start).
		WithQueueDepth(4).
		WithMaxIterations(7).
		WithDefaultExecutorTimeout(5 * time.Second).
		WithRunWallClockBudget(time.Minute).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}
	if wf.queueDepth != 4 {
		t.Fatalf("expected queueDepth 4, got %d", wf.queueDepth)
	}
	if wf.maxIterations != 7 {
		t.Fatalf("expected maxIterations 7, got %d", wf.maxIterations)
	}
	if wf.defaultTimeout != 5*time.Second {
		t.Fatalf("expected defaultTimeout 5s, got %s", wf.defaultTimeout)
	}
	if wf.wallClockBudget != time.Minute {
		t.Fatalf("expected wallClockBudget 1m, got %s", wf.wallClockBudget)
	}
}

func TestBuilderAttachesCheckpointStoreAndTelemetrySinks(t *testing.T) {
	start := NewFuncExecutor("start")
	AddHandler(start, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	store := wstore.NewMemoryStore()
	sink := telemetry.NewLogSink(io.Discard, false)

	wf, result, err := NewWorkflowBuilder("wf").
		WithStartExecutor("start").
		AddExecutor(start).
		WithCheckpointStore(store).
		WithTelemetrySink(sink).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}
	if wf.checkpointStore != store {
		t.Fatalf("expected the checkpoint store to be attached to the built workflow")
	}
	if len(wf.sinks) != 1 || wf.sinks[0] != sink {
		t.Fatalf("expected exactly the one attached telemetry sink, got %v", wf.sinks)
	}
}

func TestBuilderMissingStartExecutorFailsValidation(t *testing.T) {
	start := NewFuncExecutor("start")
	AddHandler(start, func(ctx context.Context, hc *HandlerContext, payload string) error {
		hc.YieldOutput(payload)
		return nil
	})

	_, result, err := NewWorkflowBuilder("wf").AddExecutor(start).Build()
	if err == nil {
		t.Fatalf("expected a validation error when no start executor is designated")
	}
	if result.OK() {
		t.Fatalf("expected validation result to report errors")
	}
}
