package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// initRNG derives a deterministic seed from runID so that two runs (or a
// run and its replay from checkpoint) sharing the same run id produce the
// identical sequence from HandlerContext.Rand(). Grounded on the teacher's
// engine.go initRNG: intentionally non-cryptographic, since the goal is
// reproducibility, not secrecy.
func initRNG(runID string) (*rand.Rand, int64) {
	sum := sha256.Sum256([]byte(runID))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	return rand.New(rand.NewSource(seed)), seed
}

func rngFromSeed(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// perInvocationRNG derives a private *rand.Rand for one executor invocation
// within a superstep, so that invokeExecutor calls dispatched concurrently
// across goroutines never share a single math/rand.Rand (which is not safe
// for concurrent use). Grounded on the teacher's runConcurrent, which derives
// itemSeed := baseSeed ^ int64(item.OrderKey) per work item; here the
// per-invocation key is hashed from (superstep, targetID, index) instead of
// a bare order key, since supersteps fan out to more than one target id at
// a time. Still fully deterministic given the run's base seed, so replay
// from checkpoint reproduces identical sequences (spec §8 Invariant 8).
func perInvocationRNG(baseSeed int64, superstep int, targetID string, index int) *rand.Rand {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(superstep))
	h.Write(buf[:])
	h.Write([]byte(targetID))
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	h.Write(buf[:])
	sum := h.Sum(nil)
	itemSeed := baseSeed ^ int64(binary.BigEndian.Uint64(sum[:8]))
	return rngFromSeed(itemSeed)
}

// reservedEntrySourceID is the pseudo source id the initial input is
// buffered under so the scheduler can deliver it straight to the start
// executor on the first superstep, bypassing edge-group routing entirely
// (this delivery is separate from any real edge that also targets the
// start executor).
const reservedEntrySourceID = "_entry"

// runState is the mutable working state of one scheduler execution,
// whether driving a fresh run or resuming from a checkpoint.
type runState struct {
	runID     string
	superstep int
	shared    *SharedState
	runner    *RunnerContext
	rng       *rand.Rand
	rngSeed   int64

	requestInfo *RequestInfoExecutor

	// eventsMu guards outputs/events/status/statusSet below, which the
	// emitter closure in installEmitter mutates. Executor invocations run
	// concurrently within a superstep (see runCore's dispatch loop), and
	// each one may emit through HandlerContext, so these fields are no
	// longer single-goroutine-only once dispatch fans out.
	eventsMu  sync.Mutex
	outputs   []any
	events    []WorkflowEvent
	status    RunState
	statusSet bool
}

// runCore is the Pregel-style superstep loop shared by every entry point
// (Run, RunStream, RunFromCheckpoint, SendResponses): it drains each
// executor's outbound buffer, routes messages through edge groups, invokes
// targets, checkpoints after every superstep, and stops when either no
// progress remains, pending external requests block further progress, or
// the iteration cap is reached with messages still pending (spec §4.3).
func (w *Workflow) runCore(ctx context.Context, rs *runState, liveEvents chan<- WorkflowEvent) (*RunResult, error) {
	emit := w.installEmitter(ctx, rs, liveEvents)

	started := time.Now()

	for iteration := 0; ; iteration++ {
		if w.wallClockBudget > 0 && time.Since(started) > w.wallClockBudget {
			err := newRunnerError("WALL_CLOCK_BUDGET_EXCEEDED", fmt.Sprintf("run exceeded wall-clock budget of %s", w.wallClockBudget), nil)
			emit(FailedEvent(newErrorDetails(w.id, err)))
			return w.buildResult(rs), err
		}
		pending := rs.runner.drain()
		hasPending := false
		for _, msgs := range pending {
			if len(msgs) > 0 {
				hasPending = true
				break
			}
		}

		if !hasPending {
			if rs.requestInfo.HasPendingRequest() {
				emit(StatusEvent(RunStateIdleWithPendingRequests))
				if err := w.checkpointNow(ctx, rs); err != nil {
					return nil, err
				}
				return w.buildResult(rs), nil
			}
			emit(StatusEvent(RunStateIdle))
			return w.buildResult(rs), nil
		}

		if w.maxIterations > 0 && iteration >= w.maxIterations {
			err := &WorkflowConvergenceError{Iterations: w.maxIterations}
			emit(FailedEvent(newErrorDetails(w.id, err)))
			return w.buildResult(rs), err
		}

		emit(SuperstepStartedEvent(rs.superstep))
		superstepStarted := time.Now()

		if w.metrics != nil {
			w.metrics.RequestsPendingGauge.Set(float64(len(rs.requestInfo.PendingRequestIDs())))
		}

		deliveries := make(map[string][]any)
		for _, msg := range pending[reservedEntrySourceID] {
			deliveries[msg.TargetID] = append(deliveries[msg.TargetID], msg.Payload)
		}
		for _, group := range w.edgeGroups {
			groupMsgs := make(map[string][]Message)
			for _, src := range group.SourceIDs() {
				groupMsgs[src] = pending[src]
			}
			routed, err := runEdgeGroup(group, groupMsgs, rs.shared)
			if err != nil {
				emit(FailedEvent(newErrorDetails(w.id, err)))
				return w.buildResult(rs), err
			}
			for _, d := range routed {
				deliveries[d.targetID] = append(deliveries[d.targetID], d.payload)
			}
		}

		targets := make([]string, 0, len(deliveries))
		for t := range deliveries {
			targets = append(targets, t)
		}
		sort.Strings(targets)

		if err := w.dispatchSuperstep(ctx, rs, targets, deliveries, emit); err != nil {
			return w.buildResult(rs), err
		}

		emit(SuperstepCompletedEvent(rs.superstep))
		if w.metrics != nil {
			w.metrics.SuperstepLatencyMS.Observe(float64(time.Since(superstepStarted).Milliseconds()))
			w.metrics.QueueDepth.Set(float64(len(targets)))
		}

		if err := w.checkpointNow(ctx, rs); err != nil {
			return nil, err
		}

		rs.superstep++
	}
}

// dispatchSuperstep invokes every delivery produced by this superstep,
// fanning targets out across a bounded pool of goroutines (spec §4.2 "invoke
// each active target in parallel", §4.3(b) "for each source concurrently
// invokes all of its associated edge runners... gather all", §5 "bounded
// parallel fan-out inside a superstep"). Grounded on the teacher's
// graph/engine.go runConcurrent/executeParallel: a semaphore channel caps
// in-flight goroutines, a WaitGroup gathers completion, and errors are
// collected into a slice indexed by the target's position in the already
// sorted targets slice so the first reported failure is picked
// deterministically rather than by goroutine-completion order.
//
// A single target's own deliveries are still invoked sequentially, in
// arrival order, within that target's goroutine — concurrency is across
// targets, never within one executor's own message queue, so a handler
// never sees its own payloads reordered or overlapping.
func (w *Workflow) dispatchSuperstep(ctx context.Context, rs *runState, targets []string, deliveries map[string][]any, emit func(WorkflowEvent)) error {
	maxWorkers := w.maxConcurrency
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxConcurrency
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	errs := make([]error, len(targets))

	for i, targetID := range targets {
		executor, ok := w.executors[targetID]
		if !ok {
			continue
		}
		i, targetID, executor := i, targetID, executor

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			for idx, payload := range deliveries[targetID] {
				rng := perInvocationRNG(rs.rngSeed, rs.superstep, targetID, idx)
				if err := w.invokeExecutor(ctx, rs, executor, payload, rng, emit); err != nil {
					emit(FailedEvent(newErrorDetails(targetID, err)))
					errs[i] = err
					return
				}
			}
		}()
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// installEmitter wires rs.runner's event sink and returns it, so a caller
// that needs to deliver something through HandlerContext (SendResponses
// invoking a response handler directly, ahead of the superstep loop) can
// call this before runCore starts, instead of that delivery's events
// landing on a nil sink and being silently dropped.
func (w *Workflow) installEmitter(ctx context.Context, rs *runState, liveEvents chan<- WorkflowEvent) func(WorkflowEvent) {
	emit := func(ev WorkflowEvent) {
		rs.eventsMu.Lock()
		rs.events = append(rs.events, ev)
		if ev.Kind == EventStatus {
			rs.status = ev.State
			rs.statusSet = true
		}
		if ev.Kind == EventOutput {
			rs.outputs = append(rs.outputs, ev.Data)
		}
		rs.eventsMu.Unlock()
		if liveEvents != nil {
			delivered := sendEventWithTimeout(ctx, liveEvents, ev, w.backpressureTimeout)
			if !delivered && w.metrics != nil {
				w.metrics.BackpressureTotal.Inc()
			}
		}
	}
	rs.runner.setEmitFn(emit)
	return emit
}

// sendEventWithTimeout forwards ev to the streaming channel, giving up
// after backpressureTimeout (or immediately if it is zero) rather than
// blocking a run forever on a consumer that stopped reading. Grounded on
// the teacher's WithBackpressureTimeout option. Reports whether ev was
// actually delivered.
func sendEventWithTimeout(ctx context.Context, events chan<- WorkflowEvent, ev WorkflowEvent, backpressureTimeout time.Duration) bool {
	if backpressureTimeout <= 0 {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	timer := time.NewTimer(backpressureTimeout)
	defer timer.Stop()
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// invokeExecutor runs one handler invocation with the executor's timeout
// and retry policy applied, grounded on the teacher's timeout.go /
// policy.go.
func (w *Workflow) invokeExecutor(ctx context.Context, rs *runState, executor Executor, payload any, rng *rand.Rand, emit func(WorkflowEvent)) error {
	policy := w.policies[executor.ID()]
	timeout := getTimeout(policy, w.defaultTimeout)

	hc := newHandlerContext(executor.ID(), rs.runner, rs.shared, rng, w.requestInfoFunc(rs))

	attempt := 0
	maxAttempts := 1
	var retry *RetryPolicy
	if policy != nil && policy.Retry != nil {
		retry = policy.Retry
		maxAttempts = retry.MaxAttempts
	}

	for {
		emit(ExecutorInvokedEvent(executor.ID()))

		if w.metrics != nil {
			w.metrics.InflightExecutors.Inc()
		}
		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := executor.Execute(callCtx, hc, payload)
		if cancel != nil {
			cancel()
		}
		if w.metrics != nil {
			w.metrics.InflightExecutors.Dec()
		}

		if err == nil {
			emit(ExecutorCompletedEvent(executor.ID()))
			return nil
		}

		attempt++
		if retry == nil || attempt >= maxAttempts || !retry.shouldRetry(err) {
			emit(ExecutorFailedEvent(executor.ID(), newErrorDetails(executor.ID(), err)))
			return &AgentExecutionError{ExecutorID: executor.ID(), ErrorType: fmt.Sprintf("%T", err), Message: err.Error(), Cause: err}
		}

		if w.metrics != nil {
			w.metrics.RetriesTotal.Inc()
		}

		delay := computeBackoff(attempt-1, retry.BaseDelay, retry.MaxDelay, rng)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// requestInfoFunc adapts the run's RequestInfoExecutor into the
// requestInfoFunc shape HandlerContext expects.
func (w *Workflow) requestInfoFunc(rs *runState) requestInfoFunc {
	return func(ctx context.Context, sourceExecutorID string, data any, requestType, responseType TypeID) (string, error) {
		return rs.requestInfo.Request(ctx, sourceExecutorID, data, requestType, responseType)
	}
}

// checkpointNow persists the current run state if a checkpoint store is
// configured; a nil store means checkpointing is disabled for this run.
func (w *Workflow) checkpointNow(ctx context.Context, rs *runState) error {
	if w.checkpointStore == nil {
		return nil
	}
	states := make(map[string]any, len(w.executors))
	for id, executor := range w.executors {
		snap, err := executor.Snapshot()
		if err != nil {
			return &WorkflowCheckpointError{Op: "save", Cause: err}
		}
		if snap != nil {
			states[id] = snap
		}
	}
	rs.shared.Set(reservedExecutorStateKey, states)
	cp, err := newCheckpoint(rs.runID, rs.superstep, w.signature, rs.shared, rs.runner.snapshotOutbound(), rs.rngSeed, "")
	if err != nil {
		return err
	}
	return saveCheckpoint(ctx, w.checkpointStore, cp)
}
