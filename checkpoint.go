package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	wstore "github.com/flowkit/workflow/store"
	"github.com/flowkit/workflow/telemetry"
)

// maxEncodeDepth bounds the recursive value encoder, guarding against
// runaway recursion on deeply nested or self-referential structures.
const maxEncodeDepth = 64

// WorkflowCheckpoint is the full persisted state of one superstep
// boundary: the shared state snapshot, any outbound messages not yet
// dispatched, the graph signature the checkpoint was taken against, and
// the deterministic RNG seed so a resumed run reproduces the same random
// sequence (spec §6).
type WorkflowCheckpoint struct {
	RunID       string
	CheckpointID string
	Superstep   int
	Signature   GraphSignature
	SharedState map[string]encodedValue
	Pending     map[string][]encodedValue
	RNGSeed     int64
	Label       string
	Timestamp   time.Time
}

// encodedValue is the wire form produced by encodeValue: a small tagged
// union distinguishing structs ("dataclass" in the originating Python
// runtime's terms), maps, sequences, primitives, and a fallback for
// anything the encoder can't safely walk (channels, funcs).
type encodedValue struct {
	Kind    string                  `json:"kind"` // "dataclass" | "map" | "sequence" | "primitive" | "unknown"
	Type    string                  `json:"type,omitempty"`
	Fields  map[string]encodedValue `json:"fields,omitempty"`
	Entries []encodedEntry          `json:"entries,omitempty"`
	Items   []encodedValue          `json:"items,omitempty"`
	Value   any                     `json:"value,omitempty"`
}

type encodedEntry struct {
	Key   encodedValue `json:"key"`
	Value encodedValue `json:"value"`
}

// encodeValue walks v and produces its encodedValue wire form, matching
// spec §6's required handling of dataclass/model, mapping, sequence,
// primitive, and unknown values, with cycle and depth guards so a
// self-referential structure fails safely instead of recursing forever.
func encodeValue(v any, seen map[uintptr]bool, depth int) (encodedValue, error) {
	if depth > maxEncodeDepth {
		return encodedValue{Kind: "unknown", Value: fmt.Sprintf("<max depth %d exceeded>", maxEncodeDepth)}, nil
	}
	if v == nil {
		return encodedValue{Kind: "primitive", Value: nil}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return encodedValue{Kind: "primitive", Value: nil}, nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return encodedValue{Kind: "unknown", Value: "<cycle>"}, nil
		}
		seen = cloneSeenSet(seen)
		seen[ptr] = true
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return encodeValue(rv.Elem().Interface(), seen, depth+1)

	case reflect.Struct:
		t := rv.Type()
		fields := make(map[string]encodedValue, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			encoded, err := encodeValue(rv.Field(i).Interface(), seen, depth+1)
			if err != nil {
				return encodedValue{}, err
			}
			fields[sf.Name] = encoded
		}
		return encodedValue{Kind: "dataclass", Type: t.String(), Fields: fields}, nil

	case reflect.Map:
		entries := make([]encodedEntry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := encodeValue(iter.Key().Interface(), seen, depth+1)
			if err != nil {
				return encodedValue{}, err
			}
			val, err := encodeValue(iter.Value().Interface(), seen, depth+1)
			if err != nil {
				return encodedValue{}, err
			}
			entries = append(entries, encodedEntry{Key: k, Value: val})
		}
		return encodedValue{Kind: "map", Entries: entries}, nil

	case reflect.Slice, reflect.Array:
		items := make([]encodedValue, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := encodeValue(rv.Index(i).Interface(), seen, depth+1)
			if err != nil {
				return encodedValue{}, err
			}
			items = append(items, item)
		}
		return encodedValue{Kind: "sequence", Items: items}, nil

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return encodedValue{Kind: "primitive", Value: v}, nil

	default:
		return encodedValue{Kind: "unknown", Value: fmt.Sprintf("<unencodable %s>", rv.Kind())}, nil
	}
}

func cloneSeenSet(seen map[uintptr]bool) map[uintptr]bool {
	out := make(map[uintptr]bool, len(seen)+1)
	for k, v := range seen {
		out[k] = v
	}
	return out
}

// decodeValue reverses encodeValue into plain Go values built from
// map[string]any / []any / primitives — the generic shape any executor's
// Restore hook can type-assert against after resume. Struct identity is
// not reconstructed (the runtime has no type registry for user payload
// types), matching the "best effort, generic shape" contract the
// Request-Info Executor and shared-state restoration rely on.
func decodeValue(ev encodedValue) any {
	switch ev.Kind {
	case "dataclass":
		out := make(map[string]any, len(ev.Fields))
		for k, nested := range ev.Fields {
			out[k] = decodeValue(nested)
		}
		return out
	case "map":
		out := make(map[string]any, len(ev.Entries))
		for _, e := range ev.Entries {
			keyStr := fmt.Sprintf("%v", decodeValue(e.Key))
			out[keyStr] = decodeValue(e.Value)
		}
		return out
	case "sequence":
		out := make([]any, len(ev.Items))
		for i, item := range ev.Items {
			out[i] = decodeValue(item)
		}
		return out
	case "primitive":
		return ev.Value
	default:
		return ev.Value
	}
}

// newCheckpoint snapshots the current run state into a WorkflowCheckpoint.
func newCheckpoint(runID string, superstep int, sig GraphSignature, shared *SharedState, pending map[string][]Message, rngSeed int64, label string) (*WorkflowCheckpoint, error) {
	cp := &WorkflowCheckpoint{
		RunID:        runID,
		CheckpointID: uuid.NewString(),
		Superstep:    superstep,
		Signature:    sig,
		SharedState:  make(map[string]encodedValue),
		Pending:      make(map[string][]encodedValue),
		RNGSeed:      rngSeed,
		Label:        label,
		Timestamp:    time.Now(),
	}
	for k, v := range shared.snapshot() {
		enc, err := encodeValue(v, nil, 0)
		if err != nil {
			return nil, &WorkflowCheckpointError{Op: "save", Cause: err}
		}
		cp.SharedState[k] = enc
	}
	for src, msgs := range pending {
		encoded := make([]encodedValue, 0, len(msgs))
		for _, m := range msgs {
			enc, err := encodeValue(m.Payload, nil, 0)
			if err != nil {
				return nil, &WorkflowCheckpointError{Op: "save", Cause: err}
			}
			encoded = append(encoded, enc)
		}
		cp.Pending[src] = encoded
	}
	return cp, nil
}

// saveCheckpoint serializes cp and writes it to s.
func saveCheckpoint(ctx context.Context, s wstore.CheckpointStore, cp *WorkflowCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return &WorkflowCheckpointError{Op: "save", Cause: err}
	}
	rec := wstore.Record{
		RunID:        cp.RunID,
		CheckpointID: cp.CheckpointID,
		Label:        cp.Label,
		Signature:    string(cp.Signature),
		Timestamp:    cp.Timestamp,
		Data:         data,
	}
	if err := s.Save(ctx, rec); err != nil {
		return &WorkflowCheckpointError{Op: "save", Cause: err}
	}
	return nil
}

// loadCheckpoint reads and validates a checkpoint's topology signature
// against currentSig, refusing to return one whose graph has changed shape
// since it was taken (spec §6: topology-change rejection). A checkpoint
// with no recorded signature at all (cp.Signature == "") cannot be
// compared, so rather than refuse it unconditionally, this warns through
// sinks and proceeds — newCheckpoint always stamps a signature for
// checkpoints this package writes itself, so the case only arises for a
// checkpoint record produced by another source.
func loadCheckpoint(ctx context.Context, s wstore.CheckpointStore, runID, checkpointID string, currentSig GraphSignature, sinks []telemetry.Sink) (*WorkflowCheckpoint, error) {
	var rec wstore.Record
	var err error
	if checkpointID == "" {
		rec, err = s.GetLatest(ctx, runID)
	} else {
		rec, err = s.Load(ctx, runID, checkpointID)
	}
	if err != nil {
		return nil, &WorkflowCheckpointError{Op: "load", Cause: err}
	}

	var cp WorkflowCheckpoint
	if err := json.Unmarshal(rec.Data, &cp); err != nil {
		return nil, &WorkflowCheckpointError{Op: "load", Cause: err}
	}
	if cp.Signature == "" {
		warnSinks(sinks, runID, cp.Superstep, "checkpoint has no recorded graph signature; proceeding without a topology check")
	} else if cp.Signature != currentSig {
		return nil, &WorkflowCheckpointError{Op: "validate", Cause: ErrTopologyChanged}
	}
	return &cp, nil
}

// warnSinks is a best-effort fan-out of a single warning record to every
// attached telemetry sink; a sink failure here never affects run
// correctness (see the telemetry package doc comment).
func warnSinks(sinks []telemetry.Sink, runID string, superstep int, message string) {
	for _, sink := range sinks {
		sink.Emit(telemetry.Record{RunID: runID, Superstep: superstep, Kind: "warning", Message: message})
	}
}

// restoreSharedState decodes cp's shared-state snapshot back into shared.
func restoreSharedState(cp *WorkflowCheckpoint, shared *SharedState) {
	restored := make(map[string]any, len(cp.SharedState))
	for k, ev := range cp.SharedState {
		restored[k] = decodeValue(ev)
	}
	shared.restore(restored)
}

// restorePending decodes cp's pending outbound buffer back into plain
// Messages, keyed by source executor id.
func restorePending(cp *WorkflowCheckpoint) map[string][]Message {
	out := make(map[string][]Message, len(cp.Pending))
	for src, values := range cp.Pending {
		msgs := make([]Message, 0, len(values))
		for _, ev := range values {
			msgs = append(msgs, NewMessage(decodeValue(ev), src, ""))
		}
		out[src] = msgs
	}
	return out
}
