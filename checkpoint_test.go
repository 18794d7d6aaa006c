package workflow

import "testing"

type encodeSample struct {
	Name    string
	Count   int
	Tags    []string
	Details map[string]int
}

func TestEncodeDecodeRoundTripPrimitive(t *testing.T) {
	ev, err := encodeValue(42, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != "primitive" {
		t.Fatalf("expected primitive kind, got %s", ev.Kind)
	}
	if decodeValue(ev) != float64(42) && decodeValue(ev) != 42 {
		t.Fatalf("expected round-tripped value to equal 42, got %v", decodeValue(ev))
	}
}

func TestEncodeDecodeRoundTripStruct(t *testing.T) {
	sample := encodeSample{
		Name:  "a",
		Count: 3,
		Tags:  []string{"x", "y"},
		Details: map[string]int{
			"k": 1,
		},
	}
	ev, err := encodeValue(sample, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != "dataclass" {
		t.Fatalf("expected dataclass kind, got %s", ev.Kind)
	}

	decoded, ok := decodeValue(ev).(map[string]any)
	if !ok {
		t.Fatalf("expected decoded struct to be a map[string]any, got %T", decodeValue(ev))
	}
	if decoded["Name"] != "a" {
		t.Fatalf("expected Name field to round-trip, got %v", decoded["Name"])
	}
	tags, ok := decoded["Tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("expected Tags to decode to a 2-element slice, got %#v", decoded["Tags"])
	}
}

func TestEncodeValueCycleDetection(t *testing.T) {
	type node struct {
		Next *node
	}
	a := &node{}
	a.Next = a

	ev, err := encodeValue(a, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields, ok := ev.Fields["Next"]
	if !ok {
		t.Fatalf("expected Next field to be present")
	}
	if fields.Kind != "unknown" {
		t.Fatalf("expected self-referential field to be flagged unknown, got %s", fields.Kind)
	}
}

func TestEncodeValueMaxDepthGuard(t *testing.T) {
	type node struct {
		Next *node
	}
	head := &node{}
	cur := head
	for i := 0; i < maxEncodeDepth+10; i++ {
		cur.Next = &node{}
		cur = cur.Next
	}
	ev, err := encodeValue(head, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != "dataclass" {
		t.Fatalf("expected the outermost node to still encode as dataclass, got %s", ev.Kind)
	}
}

func TestDecodeValueNilPrimitive(t *testing.T) {
	ev, err := encodeValue(nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decodeValue(ev) != nil {
		t.Fatalf("expected nil to round-trip as nil")
	}
}
