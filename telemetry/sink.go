// Package telemetry provides best-effort, secondary observability sinks
// for workflow runs. It is distinct from the primary WorkflowEvent stream
// a caller consumes to drive a run: a Sink failure or a disabled Sink must
// never affect run correctness, only what an operator can see after the
// fact (grounded on the teacher's graph/emit package).
package telemetry

import "context"

// Record is the telemetry-facing projection of a workflow event: enough to
// build a log line or a trace span, without coupling this package to the
// root workflow package's WorkflowEvent type.
type Record struct {
	RunID      string
	Superstep  int
	ExecutorID string
	Kind       string
	Message    string
	Meta       map[string]any
}

// Sink receives telemetry records. Grounded on the teacher's emit.Emitter
// interface (Emit / EmitBatch / Flush).
type Sink interface {
	Emit(r Record)
	EmitBatch(ctx context.Context, rs []Record) error
	Flush(ctx context.Context) error
}
