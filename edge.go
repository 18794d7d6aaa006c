package workflow

// Predicate decides whether a message may traverse an edge. Evaluated
// against the message payload only; a predicate that panics is treated as
// "does not match" by the edge runner. The panic is recovered silently: no
// warning event or log record is written for it.
type Predicate func(payload any) bool

// SelectionFunc picks which of a fan-out or multi-select group's targets a
// message should be routed to, returning the chosen target ids. It is
// consulted once per message; an empty or nil return routes to nothing.
type SelectionFunc func(payload any, targets []string) []string

// Edge is a single directed connection between two executors, optionally
// gated by a Predicate. It never appears in a workflow on its own — it is
// always wrapped by exactly one EdgeGroup, even a Single group (spec §3).
type Edge struct {
	FromID string
	ToID   string
	When   Predicate

	// WhenName identifies the predicate by name for the graph signature
	// (signature.go) and diagnostics; empty for unconditional edges. A Go
	// func value carries no name of its own, so callers that care about
	// detecting a changed predicate across a checkpoint/resume boundary
	// must supply one via NewConditionalEdge.
	WhenName string
}

// NewEdge creates an unconditional edge from fromID to toID.
func NewEdge(fromID, toID string) Edge { return Edge{FromID: fromID, ToID: toID} }

// NewConditionalEdge creates an edge gated by when, identified by name for
// the graph signature and diagnostics (spec §3/§6: a changed predicate
// must be detectable as a topology change across checkpoint/resume).
func NewConditionalEdge(fromID, toID, name string, when Predicate) Edge {
	return Edge{FromID: fromID, ToID: toID, When: when, WhenName: name}
}

// matches reports whether the edge accepts payload, tolerating a panicking
// predicate by treating it as non-matching.
func (e Edge) matches(payload any) (ok bool) {
	if e.When == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return e.When(payload)
}

// EdgeGroupKind discriminates the five routing shapes of spec §3.
type EdgeGroupKind int

const (
	// EdgeGroupSingle: exactly one source, one target, no predicate.
	EdgeGroupSingle EdgeGroupKind = iota
	// EdgeGroupFanOut: one source, many targets; every edge whose predicate
	// matches (or which is unconditional) receives the message, unless a
	// SelectionFunc is present, in which case only its chosen targets do.
	EdgeGroupFanOut
	// EdgeGroupFanIn: many sources, one target; the target is invoked once
	// per superstep with the ordered list of values received from each
	// declared source, waiting across supersteps for stragglers.
	EdgeGroupFanIn
	// EdgeGroupSwitchCase: one source, ordered predicates, exactly one
	// default; the first matching predicate wins, falling back to default.
	EdgeGroupSwitchCase
	// EdgeGroupMultiSelect: one source, many targets, a SelectionFunc is
	// mandatory.
	EdgeGroupMultiSelect
)

func (k EdgeGroupKind) String() string {
	switch k {
	case EdgeGroupSingle:
		return "single"
	case EdgeGroupFanOut:
		return "fan_out"
	case EdgeGroupFanIn:
		return "fan_in"
	case EdgeGroupSwitchCase:
		return "switch_case"
	case EdgeGroupMultiSelect:
		return "multi_select"
	default:
		return "unknown"
	}
}

// EdgeGroup is the unit of routing the scheduler dispatches per superstep.
// Every edge in a workflow belongs to exactly one EdgeGroup.
type EdgeGroup struct {
	ID    string
	Kind  EdgeGroupKind
	Edges []Edge

	// Select is mandatory for EdgeGroupMultiSelect, optional for
	// EdgeGroupFanOut (nil means "broadcast to all matching edges").
	Select SelectionFunc

	// SelectName identifies Select by name for the graph signature and
	// diagnostics, for the same reason Edge.WhenName exists; empty when
	// Select is nil.
	SelectName string

	// DefaultToID is mandatory for EdgeGroupSwitchCase: the target used when
	// no case predicate matches.
	DefaultToID string
}

// SourceIDs returns the distinct source executor ids referenced by the
// group's edges, in first-seen order. For all kinds but fan-in this is a
// single id.
func (g EdgeGroup) SourceIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		if !seen[e.FromID] {
			seen[e.FromID] = true
			out = append(out, e.FromID)
		}
	}
	return out
}

// TargetIDs returns the distinct target executor ids referenced by the
// group's edges, in first-seen order.
func (g EdgeGroup) TargetIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		if !seen[e.ToID] {
			seen[e.ToID] = true
			out = append(out, e.ToID)
		}
	}
	if g.Kind == EdgeGroupSwitchCase && g.DefaultToID != "" && !seen[g.DefaultToID] {
		out = append(out, g.DefaultToID)
	}
	return out
}

// NewSingleEdgeGroup wraps a single unconditional edge.
func NewSingleEdgeGroup(id, fromID, toID string) EdgeGroup {
	return EdgeGroup{ID: id, Kind: EdgeGroupSingle, Edges: []Edge{NewEdge(fromID, toID)}}
}

// NewFanOutEdgeGroup creates a fan-out group from fromID to each of toIDs.
// selectFn may be nil, meaning broadcast to every target whose edge
// matches; selectName identifies it for the graph signature when non-nil.
func NewFanOutEdgeGroup(id, fromID string, toIDs []string, selectFn SelectionFunc, selectName string) EdgeGroup {
	edges := make([]Edge, len(toIDs))
	for i, to := range toIDs {
		edges[i] = NewEdge(fromID, to)
	}
	return EdgeGroup{ID: id, Kind: EdgeGroupFanOut, Edges: edges, Select: selectFn, SelectName: selectName}
}

// NewFanInEdgeGroup creates a fan-in group from each of fromIDs into toID.
// The declared order of fromIDs is the order fan-in aggregates values in.
func NewFanInEdgeGroup(id string, fromIDs []string, toID string) EdgeGroup {
	edges := make([]Edge, len(fromIDs))
	for i, from := range fromIDs {
		edges[i] = NewEdge(from, toID)
	}
	return EdgeGroup{ID: id, Kind: EdgeGroupFanIn, Edges: edges}
}

// SwitchCase is a single ordered predicate/target pair within a switch/case
// group. Name identifies the case's predicate for the graph signature; it
// is optional and may be left blank.
type SwitchCase struct {
	ToID string
	When Predicate
	Name string
}

// NewSwitchCaseEdgeGroup creates a switch/case group from fromID, trying
// cases in order and falling back to defaultToID.
func NewSwitchCaseEdgeGroup(id, fromID string, cases []SwitchCase, defaultToID string) EdgeGroup {
	edges := make([]Edge, len(cases))
	for i, c := range cases {
		edges[i] = NewConditionalEdge(fromID, c.ToID, c.Name, c.When)
	}
	return EdgeGroup{ID: id, Kind: EdgeGroupSwitchCase, Edges: edges, DefaultToID: defaultToID}
}

// NewMultiSelectEdgeGroup creates a multi-select group from fromID to each
// of toIDs. selectFn is mandatory and chooses one or more targets per
// message; selectName identifies it for the graph signature.
func NewMultiSelectEdgeGroup(id, fromID string, toIDs []string, selectFn SelectionFunc, selectName string) EdgeGroup {
	edges := make([]Edge, len(toIDs))
	for i, to := range toIDs {
		edges[i] = NewEdge(fromID, to)
	}
	return EdgeGroup{ID: id, Kind: EdgeGroupMultiSelect, Edges: edges, Select: selectFn, SelectName: selectName}
}
