package workflow

import "sync"

// reservedExecutorStateKey is the single reserved shared-state key under
// which the scheduler snapshots per-executor state, mapping executor id to
// opaque value. Per spec §3, all framework-owned keys live under the "_"
// prefix namespace.
const reservedExecutorStateKey = "_executor_state"

// reservedPendingRequestsKey mirrors the Request-Info Executor's in-memory
// pending-request table into shared state so it survives checkpoint/resume.
const reservedPendingRequestsKey = "_pending_requests"

// reservedFanInKey persists in-flight fan-in accumulations across
// checkpoint/resume (see edgerunner.go).
const reservedFanInKey = "_fanin_state"

// SharedState is the mapping from string keys to arbitrary values shared
// across all executors in a run. It is the only cross-executor state
// channel (spec §5): every access is guarded by a process-local exclusive
// lock, and a Hold scope lets a caller compose several operations
// atomically without releasing the lock in between.
type SharedState struct {
	mu   sync.Mutex
	data map[string]any
}

// NewSharedState returns an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{data: make(map[string]any)}
}

// Get returns the value stored under key and whether it was present.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key.
func (s *SharedState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns a snapshot of all keys currently stored.
func (s *SharedState) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Hold runs fn while holding the exclusive lock, giving fn access to
// GetWithinHold/SetWithinHold to compose multiple operations atomically
// without releasing the lock in between (spec §3, §5).
func (s *SharedState) Hold(fn func(h *HeldState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&HeldState{s: s})
}

// HeldState is the scope object passed to a Hold callback. Its methods must
// only be called from within that callback.
type HeldState struct{ s *SharedState }

// GetWithinHold reads key without reacquiring the lock.
func (h *HeldState) GetWithinHold(key string) (any, bool) {
	v, ok := h.s.data[key]
	return v, ok
}

// SetWithinHold writes key without reacquiring the lock.
func (h *HeldState) SetWithinHold(key string, value any) {
	h.s.data[key] = value
}

// DeleteWithinHold removes key without reacquiring the lock.
func (h *HeldState) DeleteWithinHold(key string) {
	delete(h.s.data, key)
}

// snapshot returns a shallow copy of all stored values, used when
// checkpointing (checkpoint.go).
func (s *SharedState) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// restore replaces all stored values with snapshot's contents.
func (s *SharedState) restore(snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		s.data[k] = v
	}
}
