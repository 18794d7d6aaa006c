package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// LogSink writes records as either single-line JSON or a compact text
// form, grounded on the teacher's emit/log.go LogEmitter.
type LogSink struct {
	w       io.Writer
	jsonFmt bool
}

// NewLogSink returns a LogSink writing to w. When jsonFmt is true, each
// record is written as one JSON object per line.
func NewLogSink(w io.Writer, jsonFmt bool) *LogSink {
	return &LogSink{w: w, jsonFmt: jsonFmt}
}

func (s *LogSink) Emit(r Record) {
	if s.jsonFmt {
		s.emitJSON(r)
		return
	}
	s.emitText(r)
}

func (s *LogSink) emitJSON(r Record) {
	encoded, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(s.w, `{"error":"encode failed: %s"}`+"\n", err)
		return
	}
	s.w.Write(encoded)
	s.w.Write([]byte("\n"))
}

func (s *LogSink) emitText(r Record) {
	fmt.Fprintf(s.w, "[%s] run=%s step=%d executor=%s %s\n", r.Kind, r.RunID, r.Superstep, r.ExecutorID, r.Message)
}

func (s *LogSink) EmitBatch(ctx context.Context, rs []Record) error {
	for _, r := range rs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.Emit(r)
	}
	return nil
}

// Flush is a no-op: writes are unbuffered.
func (s *LogSink) Flush(ctx context.Context) error { return nil }
