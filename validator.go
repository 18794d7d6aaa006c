package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ValidationResult collects the outcome of validating a graph: Errors must
// be empty for the graph to be buildable; Warnings and Info are surfaced to
// the caller but never block construction (spec §4.7).
type ValidationResult struct {
	Errors   []error
	Warnings []string
	Info     []string
}

// OK reports whether the graph has no validation errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// graphSpec is the minimal view of a workflow's topology the validator
// needs; builder.go assembles one from its accumulated executors and edge
// groups before constructing a Workflow.
type graphSpec struct {
	startID       string
	executors     map[string]Executor
	edgeGroups    []EdgeGroup
	maxIterations int
}

// ValidateGraph runs every structural check from spec §4.7 against g and
// returns the accumulated result. It never panics: a panicking predicate is
// not evaluated here (only at dispatch time in edgerunner.go), since
// validation only inspects declared types and topology, not message
// values.
func ValidateGraph(g graphSpec) ValidationResult {
	var res ValidationResult

	checkDuplicateExecutors(g, &res)
	checkDuplicateEdges(g, &res)
	checkStartInEdges(g, &res)
	checkIsolatedExecutors(g, &res)
	checkConnectivity(g, &res)
	checkTypeCompatibility(g, &res)
	checkCycles(g, &res)
	checkDeadEnds(g, &res)

	return res
}

func checkDuplicateExecutors(g graphSpec, res *ValidationResult) {
	seen := map[string]int{}
	for id := range g.executors {
		seen[id]++
	}
	for id, count := range seen {
		if count > 1 {
			res.Errors = append(res.Errors, newValidationError(CodeExecutorDuplication, "executor id %q registered more than once", id))
		}
	}
}

func checkDuplicateEdges(g graphSpec, res *ValidationResult) {
	seen := map[string]bool{}
	for _, group := range g.edgeGroups {
		for _, e := range group.Edges {
			key := e.FromID + "->" + e.ToID
			if seen[key] && group.Kind != EdgeGroupFanIn {
				res.Errors = append(res.Errors, newValidationError(CodeEdgeDuplication, "duplicate edge %s", key))
			}
			seen[key] = true
		}
	}
}

func checkStartInEdges(g graphSpec, res *ValidationResult) {
	if g.startID == "" {
		res.Errors = append(res.Errors, newValidationError(CodeGraphConnectivity, "no start executor declared"))
		return
	}
	if len(g.edgeGroups) == 0 {
		return
	}
	for _, group := range g.edgeGroups {
		for _, id := range append(group.SourceIDs(), group.TargetIDs()...) {
			if id == g.startID {
				return
			}
		}
	}
	res.Errors = append(res.Errors, newValidationError(CodeGraphConnectivity, "start executor %q does not appear in any edge", g.startID))
}

func checkIsolatedExecutors(g graphSpec, res *ValidationResult) {
	connected := map[string]bool{}
	for _, group := range g.edgeGroups {
		for _, s := range group.SourceIDs() {
			connected[s] = true
		}
		for _, t := range group.TargetIDs() {
			connected[t] = true
		}
	}
	ids := sortedKeys(g.executors)
	for _, id := range ids {
		if id == g.startID {
			continue
		}
		if !connected[id] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("executor %q has no incoming or outgoing edges", id))
		}
	}
}

// checkConnectivity verifies every executor is reachable from the start
// executor by a forward DFS over edge groups.
func checkConnectivity(g graphSpec, res *ValidationResult) {
	if g.startID == "" {
		return
	}
	adj := buildAdjacency(g)
	visited := map[string]bool{g.startID: true}
	stack := []string{g.startID}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[n] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	for _, id := range sortedKeys(g.executors) {
		if !visited[id] {
			res.Errors = append(res.Errors, newValidationError(CodeGraphConnectivity, "executor %q is not reachable from start executor %q", id, g.startID))
		}
	}
}

func buildAdjacency(g graphSpec) map[string][]string {
	adj := map[string][]string{}
	for _, group := range g.edgeGroups {
		for _, s := range group.SourceIDs() {
			adj[s] = append(adj[s], group.TargetIDs()...)
		}
	}
	return adj
}

// checkTypeCompatibility verifies that, for every edge, the target
// executor can handle at least one of the source executor's declared
// output types (wrapped in list<> for fan-in groups, per spec §3).
func checkTypeCompatibility(g graphSpec, res *ValidationResult) {
	for _, group := range g.edgeGroups {
		targets := group.TargetIDs()
		for _, targetID := range targets {
			target, ok := g.executors[targetID]
			if !ok {
				res.Errors = append(res.Errors, newValidationError(CodeTypeCompatibility, "edge group %s: target executor %q not found", group.ID, targetID))
				continue
			}
			for _, sourceID := range group.SourceIDs() {
				source, ok := g.executors[sourceID]
				if !ok {
					res.Errors = append(res.Errors, newValidationError(CodeTypeCompatibility, "edge group %s: source executor %q not found", group.ID, sourceID))
					continue
				}
				if len(source.OutputTypes()) == 0 {
					continue
				}
				if !anyOutputMatchesInput(source.OutputTypes(), target.InputTypes(), group.Kind == EdgeGroupFanIn) {
					res.Errors = append(res.Errors, newValidationError(CodeTypeCompatibility,
						"edge group %s: executor %q cannot handle output of %q", group.ID, targetID, sourceID))
				}
			}
		}
	}
}

func anyOutputMatchesInput(outputs, inputs []TypeID, isFanIn bool) bool {
	for _, out := range outputs {
		effective := EdgeInputType(out, isFanIn)
		for _, in := range inputs {
			if TypesCompatible(effective, in) {
				return true
			}
		}
	}
	return false
}

// cycleWarningsSeen dedupes cycle warnings across the process's lifetime,
// not just within a single checkCycles call: repeatedly Build()ing
// structurally identical graphs (e.g. a service that rebuilds its workflow
// per request) would otherwise re-log the same cycle warning on every
// build, per spec §4.7/§9's "warn once... to prevent log spam across
// repeated builds."
var (
	cycleWarningsMu   sync.Mutex
	cycleWarningsSeen = map[string]bool{}
)

// checkCycles reports a warning per strongly-connected component of size
// greater than one, plus one warning per self-loop, deduplicated both
// within this call (a cyclic subgraph produces exactly one warning
// regardless of how many edges participate in it) and across the process
// (the same SCC or self-loop is only ever warned about once, even across
// repeated Build calls against the same topology).
func checkCycles(g graphSpec, res *ValidationResult) {
	adj := buildAdjacency(g)
	sccs := tarjanSCC(sortedKeys(g.executors), adj)

	cycleWarningsMu.Lock()
	defer cycleWarningsMu.Unlock()

	for _, scc := range sccs {
		if len(scc) > 1 {
			sort.Strings(scc)
			key := "scc:" + strings.Join(scc, ",")
			if cycleWarningsSeen[key] {
				continue
			}
			cycleWarningsSeen[key] = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("cycle detected among executors %v", scc))
		}
	}
	for _, id := range sortedKeys(g.executors) {
		for _, n := range adj[id] {
			if n == id {
				key := "self:" + id
				if cycleWarningsSeen[key] {
					continue
				}
				cycleWarningsSeen[key] = true
				res.Warnings = append(res.Warnings, fmt.Sprintf("self-loop on executor %q", id))
			}
		}
	}
}

// checkDeadEnds records, as informational (not warning) entries, executors
// with no outgoing edges — legitimate terminal points in a workflow, but
// worth surfacing since an executor that never calls YieldOutput and has
// no outgoing edge can never contribute to a run's result.
func checkDeadEnds(g graphSpec, res *ValidationResult) {
	hasOutgoing := map[string]bool{}
	for _, group := range g.edgeGroups {
		for _, s := range group.SourceIDs() {
			hasOutgoing[s] = true
		}
	}
	for _, id := range sortedKeys(g.executors) {
		if !hasOutgoing[id] {
			res.Info = append(res.Info, fmt.Sprintf("executor %q has no outgoing edges (terminal)", id))
		}
	}
}

func sortedKeys(m map[string]Executor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// tarjanSCC computes strongly connected components over adj, restricted to
// the node set in ids, in deterministic order (ids pre-sorted by caller).
func tarjanSCC(ids []string, adj map[string][]string) [][]string {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, id := range ids {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}
	return sccs
}
