package workflow

import (
	"fmt"
	"time"

	wstore "github.com/flowkit/workflow/store"
	"github.com/flowkit/workflow/telemetry"
)

// WorkflowBuilder assembles a graph of executors and edge groups and, on
// Build, runs the full validator pass (spec §4.7) before producing an
// immutable Workflow. A builder is single-use: Build consumes it.
type WorkflowBuilder struct {
	id         string
	startID    string
	executors  map[string]Executor
	edgeGroups []EdgeGroup
	policies   map[string]*ExecutorPolicy

	queueDepth          int
	backpressureTimeout time.Duration
	defaultTimeout      time.Duration
	maxIterations       int
	wallClockBudget     time.Duration
	maxConcurrency      int

	checkpointStore wstore.CheckpointStore
	sinks           []telemetry.Sink
	metrics         *Metrics

	agentWrappers map[Agent]Executor

	duplicateIDs []string
}

// defaultMaxConcurrency bounds how many targets a single superstep
// dispatches to in parallel when the builder doesn't override it via
// WithMaxConcurrency, grounded on the teacher's runConcurrent
// defaultMaxWorkers.
const defaultMaxConcurrency = 8

// NewWorkflowBuilder creates an empty builder identified by id.
func NewWorkflowBuilder(id string) *WorkflowBuilder {
	return &WorkflowBuilder{
		id:             id,
		executors:      make(map[string]Executor),
		policies:       make(map[string]*ExecutorPolicy),
		queueDepth:     1024,
		maxIterations:  1000,
		maxConcurrency: defaultMaxConcurrency,
	}
}

// AddExecutor registers executor in the graph. Adding the same id twice is
// tolerated here (so callers can build incrementally) but is surfaced as a
// CodeExecutorDuplication validation error at Build time.
func (b *WorkflowBuilder) AddExecutor(executor Executor) *WorkflowBuilder {
	if _, exists := b.executors[executor.ID()]; exists {
		b.duplicateIDs = append(b.duplicateIDs, executor.ID())
	}
	b.executors[executor.ID()] = executor
	return b
}

// AddAgent wraps agent as an executor and registers it, the same way
// AddExecutor registers an already-built Executor. Calling AddAgent again
// with the exact same agent value (by Go equality — Agent implementations
// are expected to be comparable, the same assumption registered handler
// values already make) returns the same wrapping AgentExecutor and id
// instead of creating a second one, per spec §4.6's "auto-wrap exactly
// once, keyed by the agent's identity" requirement — grounded on
// original_source's _workflow.py _maybe_wrap_agent/_agent_wrappers, which
// keys an equivalent cache by id(candidate) (Go has no analogous runtime
// object-identity primitive for arbitrary values, so equality is the
// closest available substitute). id is optional; omitting it assigns
// "agent_<n>" the first time this agent is wrapped.
func (b *WorkflowBuilder) AddAgent(agent Agent, id ...string) *WorkflowBuilder {
	if b.agentWrappers == nil {
		b.agentWrappers = make(map[Agent]Executor)
	}
	if _, ok := b.agentWrappers[agent]; ok {
		return b
	}
	wrapID := fmt.Sprintf("agent_%d", len(b.agentWrappers))
	if len(id) > 0 && id[0] != "" {
		wrapID = id[0]
	}
	wrapper := NewAgentExecutor(wrapID, agent)
	b.agentWrappers[agent] = wrapper
	return b.AddExecutor(wrapper)
}

// WithStartExecutor designates the workflow's entry point.
func (b *WorkflowBuilder) WithStartExecutor(id string) *WorkflowBuilder {
	b.startID = id
	return b
}

// AddEdgeGroup registers an EdgeGroup (produced by the New*EdgeGroup
// constructors in edge.go).
func (b *WorkflowBuilder) AddEdgeGroup(group EdgeGroup) *WorkflowBuilder {
	b.edgeGroups = append(b.edgeGroups, group)
	return b
}

// WithExecutorPolicy attaches a timeout/retry policy to a specific
// executor id.
func (b *WorkflowBuilder) WithExecutorPolicy(executorID string, policy ExecutorPolicy) *WorkflowBuilder {
	b.policies[executorID] = &policy
	return b
}

// WithQueueDepth sets the capacity of the event channel returned by the
// streaming entry points. It does not bound the per-source outbound buffer.
func (b *WorkflowBuilder) WithQueueDepth(n int) *WorkflowBuilder {
	b.queueDepth = n
	return b
}

// WithBackpressureTimeout bounds how long a streaming run waits to deliver
// one event to a full event channel; after that the event is left out of
// the live stream (it is still recorded in the RunResult). Zero means wait
// until the event is delivered or the context ends.
func (b *WorkflowBuilder) WithBackpressureTimeout(d time.Duration) *WorkflowBuilder {
	b.backpressureTimeout = d
	return b
}

// WithDefaultExecutorTimeout sets the fallback per-invocation timeout used
// when an executor has no explicit policy.
func (b *WorkflowBuilder) WithDefaultExecutorTimeout(d time.Duration) *WorkflowBuilder {
	b.defaultTimeout = d
	return b
}

// WithMaxIterations caps the number of supersteps a single run may
// execute before it is treated as non-convergent (ErrConvergence).
func (b *WorkflowBuilder) WithMaxIterations(n int) *WorkflowBuilder {
	b.maxIterations = n
	return b
}

// WithRunWallClockBudget bounds the total wall-clock time a single run may
// spend; zero means unbounded. Grounded on the teacher's
// graph/options.go WithRunWallClockBudget.
func (b *WorkflowBuilder) WithRunWallClockBudget(d time.Duration) *WorkflowBuilder {
	b.wallClockBudget = d
	return b
}

// WithMaxConcurrency bounds how many targets a single superstep invokes in
// parallel (spec §4.2/§4.3/§5's bounded parallel fan-out). Grounded on the
// teacher's graph/engine.go runConcurrent, whose MaxConcurrentNodes option
// serves the same role.
func (b *WorkflowBuilder) WithMaxConcurrency(n int) *WorkflowBuilder {
	b.maxConcurrency = n
	return b
}

// WithCheckpointStore attaches a checkpoint store; omitting this disables
// checkpoint/resume and SendResponses for the built workflow.
func (b *WorkflowBuilder) WithCheckpointStore(s wstore.CheckpointStore) *WorkflowBuilder {
	b.checkpointStore = s
	return b
}

// WithTelemetrySink attaches a secondary, best-effort telemetry sink.
func (b *WorkflowBuilder) WithTelemetrySink(s telemetry.Sink) *WorkflowBuilder {
	b.sinks = append(b.sinks, s)
	return b
}

// WithMetrics attaches a Prometheus collector set the scheduler updates
// across every run; omitting this disables metrics entirely.
func (b *WorkflowBuilder) WithMetrics(m *Metrics) *WorkflowBuilder {
	b.metrics = m
	return b
}

// Build runs the validator (spec §4.7) and, if it reports no errors,
// returns the assembled Workflow. Warnings and informational findings are
// returned alongside a successful build rather than blocking it.
func (b *WorkflowBuilder) Build() (*Workflow, ValidationResult, error) {
	spec := graphSpec{startID: b.startID, executors: b.executors, edgeGroups: b.edgeGroups, maxIterations: b.maxIterations}
	result := ValidateGraph(spec)

	for _, id := range b.duplicateIDs {
		result.Errors = append(result.Errors, newValidationError(CodeExecutorDuplication, "executor id %q registered more than once", id))
	}
	for execID, policy := range b.policies {
		if policy.Retry != nil {
			if err := policy.Retry.Validate(); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("executor %q: %w", execID, err))
			}
		}
	}

	if !result.OK() {
		return nil, result, result.Errors[0]
	}

	sig := ComputeGraphSignature(spec)
	wf := &Workflow{
		id:                  b.id,
		startID:             b.startID,
		executors:           b.executors,
		edgeGroups:          b.edgeGroups,
		signature:           sig,
		policies:            b.policies,
		queueDepth:          b.queueDepth,
		backpressureTimeout: b.backpressureTimeout,
		defaultTimeout:      b.defaultTimeout,
		maxIterations:       b.maxIterations,
		wallClockBudget:     b.wallClockBudget,
		maxConcurrency:      b.maxConcurrency,
		checkpointStore:     b.checkpointStore,
		sinks:               b.sinks,
		metrics:             b.metrics,
	}
	return wf, result, nil
}
