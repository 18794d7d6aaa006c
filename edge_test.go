package workflow

import "testing"

func msgsFrom(source string, payloads ...any) map[string][]Message {
	msgs := make([]Message, len(payloads))
	for i, p := range payloads {
		msgs[i] = NewMessage(p, source, "")
	}
	return map[string][]Message{source: msgs}
}

func TestRunSingleEdgeGroup(t *testing.T) {
	g := NewSingleEdgeGroup("g1", "a", "b")
	out, err := runEdgeGroup(g, msgsFrom("a", 1, 2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].targetID != "b" || out[1].targetID != "b" {
		t.Fatalf("expected both messages routed to b, got %+v", out)
	}
}

func TestRunFanOutBroadcast(t *testing.T) {
	g := NewFanOutEdgeGroup("g1", "a", []string{"b", "c"}, nil, "")
	out, err := runEdgeGroup(g, msgsFrom("a", "hi"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected broadcast to both targets, got %d deliveries", len(out))
	}
}

func TestRunFanOutWithSelection(t *testing.T) {
	g := NewFanOutEdgeGroup("g1", "a", []string{"b", "c"}, func(payload any, targets []string) []string {
		return []string{"c"}
	}, "only_c")
	out, err := runEdgeGroup(g, msgsFrom("a", "hi"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].targetID != "c" {
		t.Fatalf("expected selection to restrict delivery to c, got %+v", out)
	}
}

func TestRunSwitchCaseFallsBackToDefault(t *testing.T) {
	g := NewSwitchCaseEdgeGroup("g1", "a", []SwitchCase{
		{ToID: "b", When: func(payload any) bool { return payload == "match" }},
	}, "fallback")
	out, err := runEdgeGroup(g, msgsFrom("a", "nomatch"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].targetID != "fallback" {
		t.Fatalf("expected default route, got %+v", out)
	}
}

func TestRunSwitchCaseNoRouteError(t *testing.T) {
	g := NewSwitchCaseEdgeGroup("g1", "a", []SwitchCase{
		{ToID: "b", When: func(payload any) bool { return false }},
	}, "")
	_, err := runEdgeGroup(g, msgsFrom("a", "x"), nil)
	if err == nil {
		t.Fatalf("expected NoRouteError when no case matches and no default set")
	}
	if _, ok := err.(*NoRouteError); !ok {
		t.Fatalf("expected *NoRouteError, got %T", err)
	}
}

func TestRunSwitchCasePanickingPredicateTreatedAsNonMatch(t *testing.T) {
	g := NewSwitchCaseEdgeGroup("g1", "a", []SwitchCase{
		{ToID: "b", When: func(payload any) bool { panic("boom") }},
	}, "fallback")
	out, err := runEdgeGroup(g, msgsFrom("a", "x"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].targetID != "fallback" {
		t.Fatalf("expected panicking predicate to fall back to default, got %+v", out)
	}
}

func TestRunMultiSelectRequiresSelectionFunc(t *testing.T) {
	g := NewMultiSelectEdgeGroup("g1", "a", []string{"b", "c"}, nil, "")
	if _, err := runEdgeGroup(g, msgsFrom("a", "x"), nil); err == nil {
		t.Fatalf("expected error when multi-select group has no selection function")
	}
}

func TestRunMultiSelectFansOutToChosenTargets(t *testing.T) {
	g := NewMultiSelectEdgeGroup("g1", "a", []string{"b", "c", "d"}, func(payload any, targets []string) []string {
		return []string{"b", "d"}
	}, "pick_b_and_d")
	out, err := runEdgeGroup(g, msgsFrom("a", "x"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(out))
	}
}

func TestEdgeGroupSourceAndTargetIDs(t *testing.T) {
	g := NewFanInEdgeGroup("g1", []string{"a", "b", "c"}, "d")
	srcs := g.SourceIDs()
	if len(srcs) != 3 || srcs[0] != "a" || srcs[2] != "c" {
		t.Fatalf("expected source ids in declared order, got %v", srcs)
	}
	targets := g.TargetIDs()
	if len(targets) != 1 || targets[0] != "d" {
		t.Fatalf("expected single target id d, got %v", targets)
	}
}
