package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogSinkEmitTextFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, false)
	sink.Emit(Record{RunID: "run1", Superstep: 2, ExecutorID: "reviewer", Kind: "executor_completed", Message: "ok"})

	line := buf.String()
	if !strings.Contains(line, "run=run1") || !strings.Contains(line, "step=2") || !strings.Contains(line, "executor=reviewer") {
		t.Fatalf("unexpected text line: %q", line)
	}
}

func TestLogSinkEmitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, true)
	sink.Emit(Record{RunID: "run1", Superstep: 1, ExecutorID: "start", Kind: "executor_invoked"})

	var decoded Record
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v (line: %q)", err, buf.String())
	}
	if decoded.RunID != "run1" || decoded.ExecutorID != "start" {
		t.Fatalf("unexpected decoded record: %+v", decoded)
	}
}

func TestLogSinkEmitBatchStopsOnContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.EmitBatch(ctx, []Record{{RunID: "run1"}, {RunID: "run2"}})
	if err == nil {
		t.Fatalf("expected EmitBatch to report the cancelled context")
	}
}

func TestLogSinkFlushIsNoop(t *testing.T) {
	sink := NewLogSink(&bytes.Buffer{}, false)
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
