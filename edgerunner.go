package workflow

import "fmt"

// routedDelivery is a single payload destined for one target executor,
// produced by running one superstep's messages through one EdgeGroup.
type routedDelivery struct {
	targetID string
	payload  any
}

// fanInAccumulator tracks, per fan-in group, the values received so far
// this round keyed by source id. It is persisted in shared state under
// reservedFanInKey so aggregation in progress survives checkpoint/resume
// (spec's Open Question on fan-in durability, resolved in SPEC_FULL.md: a
// fan-in group waits across supersteps for stragglers, so its partial state
// must outlive any single superstep).
type fanInAccumulator struct {
	Received map[string]any `json:"received"`
}

func loadFanInState(shared *SharedState, groupID string) map[string]fanInAccumulator {
	raw, ok := shared.Get(reservedFanInKey)
	if !ok {
		return map[string]fanInAccumulator{}
	}
	m, ok := raw.(map[string]fanInAccumulator)
	if ok {
		return m
	}
	// After a checkpoint round trip the state is a decoded generic map.
	decoded, ok := raw.(map[string]any)
	if !ok {
		return map[string]fanInAccumulator{}
	}
	m = make(map[string]fanInAccumulator, len(decoded))
	for gid, v := range decoded {
		fields, _ := v.(map[string]any)
		recv, _ := fields["Received"].(map[string]any)
		acc := fanInAccumulator{Received: map[string]any{}}
		for src, val := range recv {
			acc.Received[src] = val
		}
		m[gid] = acc
	}
	return m
}

func saveFanInState(shared *SharedState, all map[string]fanInAccumulator) {
	shared.Set(reservedFanInKey, all)
}

// runEdgeGroup routes one superstep's worth of messages (keyed by source
// executor id) through a single EdgeGroup, returning the deliveries that
// should be dispatched to target executors this superstep.
//
// Predicates that panic are treated as non-matching, per spec §3's
// tolerance requirement for switch/case groups; the same tolerance is
// applied uniformly across all group kinds since a misbehaving predicate is
// no more acceptable in a fan-out.
func runEdgeGroup(group EdgeGroup, messagesBySource map[string][]Message, shared *SharedState) ([]routedDelivery, error) {
	switch group.Kind {
	case EdgeGroupSingle:
		return runSingle(group, messagesBySource)
	case EdgeGroupFanOut:
		return runFanOut(group, messagesBySource)
	case EdgeGroupMultiSelect:
		return runMultiSelect(group, messagesBySource)
	case EdgeGroupSwitchCase:
		return runSwitchCase(group, messagesBySource)
	case EdgeGroupFanIn:
		return runFanIn(group, messagesBySource, shared)
	default:
		return nil, fmt.Errorf("workflow: unknown edge group kind %v", group.Kind)
	}
}

func runSingle(group EdgeGroup, messagesBySource map[string][]Message) ([]routedDelivery, error) {
	edge := group.Edges[0]
	var out []routedDelivery
	for _, msg := range messagesBySource[edge.FromID] {
		if edge.matches(msg.Payload) {
			out = append(out, routedDelivery{targetID: edge.ToID, payload: msg.Payload})
		}
	}
	return out, nil
}

func runFanOut(group EdgeGroup, messagesBySource map[string][]Message) ([]routedDelivery, error) {
	source := group.SourceIDs()[0]
	targets := group.TargetIDs()
	var out []routedDelivery
	for _, msg := range messagesBySource[source] {
		if group.Select != nil {
			chosen := group.Select(msg.Payload, targets)
			for _, t := range chosen {
				out = append(out, routedDelivery{targetID: t, payload: msg.Payload})
			}
			continue
		}
		for _, edge := range group.Edges {
			if edge.matches(msg.Payload) {
				out = append(out, routedDelivery{targetID: edge.ToID, payload: msg.Payload})
			}
		}
	}
	return out, nil
}

func runMultiSelect(group EdgeGroup, messagesBySource map[string][]Message) ([]routedDelivery, error) {
	if group.Select == nil {
		return nil, fmt.Errorf("workflow: multi-select edge group %s has no selection function", group.ID)
	}
	source := group.SourceIDs()[0]
	targets := group.TargetIDs()
	var out []routedDelivery
	for _, msg := range messagesBySource[source] {
		chosen := group.Select(msg.Payload, targets)
		for _, t := range chosen {
			out = append(out, routedDelivery{targetID: t, payload: msg.Payload})
		}
	}
	return out, nil
}

func runSwitchCase(group EdgeGroup, messagesBySource map[string][]Message) ([]routedDelivery, error) {
	source := group.SourceIDs()[0]
	var out []routedDelivery
	for _, msg := range messagesBySource[source] {
		matched := false
		for _, edge := range group.Edges {
			if edge.matches(msg.Payload) {
				out = append(out, routedDelivery{targetID: edge.ToID, payload: msg.Payload})
				matched = true
				break
			}
		}
		if !matched {
			if group.DefaultToID == "" {
				return nil, &NoRouteError{GroupID: group.ID}
			}
			out = append(out, routedDelivery{targetID: group.DefaultToID, payload: msg.Payload})
		}
	}
	return out, nil
}

// runFanIn accumulates one value per declared source and, once every
// source has contributed since the last delivery, emits a single delivery
// whose payload is the ordered list of accumulated values (declared source
// order, not arrival order — spec §3).
func runFanIn(group EdgeGroup, messagesBySource map[string][]Message, shared *SharedState) ([]routedDelivery, error) {
	sources := group.SourceIDs()
	target := group.TargetIDs()[0]

	all := loadFanInState(shared, group.ID)
	acc, ok := all[group.ID]
	if !ok {
		acc = fanInAccumulator{Received: map[string]any{}}
	}

	for _, src := range sources {
		for _, msg := range messagesBySource[src] {
			acc.Received[src] = msg.Payload
		}
	}

	complete := true
	for _, src := range sources {
		if _, ok := acc.Received[src]; !ok {
			complete = false
			break
		}
	}

	if !complete {
		all[group.ID] = acc
		saveFanInState(shared, all)
		return nil, nil
	}

	ordered := make([]any, len(sources))
	for i, src := range sources {
		ordered[i] = acc.Received[src]
	}

	delete(all, group.ID)
	saveFanInState(shared, all)

	return []routedDelivery{{targetID: target, payload: ordered}}, nil
}
