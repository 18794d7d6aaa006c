package workflow

import "time"

// Option configures a WorkflowBuilder, grounded on the teacher's
// graph/options.go functional-options pattern (`Option func(*engineConfig)
// error`). It composes with the builder's fluent With* methods — both
// styles mutate the same underlying WorkflowBuilder, so a caller can mix
// them freely.
type Option func(*WorkflowBuilder) error

// Apply runs every option against b in order, stopping at the first
// error.
func (b *WorkflowBuilder) Apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(b); err != nil {
			return err
		}
	}
	return nil
}

// NewWorkflowBuilderWithOptions is the Option-accepting counterpart of
// NewWorkflowBuilder, for callers that prefer assembling configuration as
// a slice of Option values up front rather than chaining With* calls.
func NewWorkflowBuilderWithOptions(id string, opts ...Option) (*WorkflowBuilder, error) {
	b := NewWorkflowBuilder(id)
	if err := b.Apply(opts...); err != nil {
		return nil, err
	}
	return b, nil
}

// WithQueueDepthOption sets the queue-depth option (see
// WorkflowBuilder.WithQueueDepth).
func WithQueueDepthOption(n int) Option {
	return func(b *WorkflowBuilder) error {
		if n <= 0 {
			return newValidationError(CodeInvalidConfiguration, "queue depth must be positive, got %d", n)
		}
		b.WithQueueDepth(n)
		return nil
	}
}

// WithBackpressureTimeoutOption sets the backpressure timeout option (see
// WorkflowBuilder.WithBackpressureTimeout).
func WithBackpressureTimeoutOption(d time.Duration) Option {
	return func(b *WorkflowBuilder) error {
		b.WithBackpressureTimeout(d)
		return nil
	}
}

// WithDefaultExecutorTimeoutOption sets the default per-executor timeout
// (see WorkflowBuilder.WithDefaultExecutorTimeout).
func WithDefaultExecutorTimeoutOption(d time.Duration) Option {
	return func(b *WorkflowBuilder) error {
		b.WithDefaultExecutorTimeout(d)
		return nil
	}
}

// WithMaxIterationsOption sets the superstep iteration cap (see
// WorkflowBuilder.WithMaxIterations).
func WithMaxIterationsOption(n int) Option {
	return func(b *WorkflowBuilder) error {
		if n <= 0 {
			return newValidationError(CodeInvalidConfiguration, "max iterations must be positive, got %d", n)
		}
		b.WithMaxIterations(n)
		return nil
	}
}

// WithMaxConcurrencyOption sets the bounded fan-out worker limit (see
// WorkflowBuilder.WithMaxConcurrency).
func WithMaxConcurrencyOption(n int) Option {
	return func(b *WorkflowBuilder) error {
		if n <= 0 {
			return newValidationError(CodeInvalidConfiguration, "max concurrency must be positive, got %d", n)
		}
		b.WithMaxConcurrency(n)
		return nil
	}
}

// WithRunWallClockBudgetOption bounds the total wall-clock time a single
// run may spend across all of its supersteps, grounded on the teacher's
// graph/options.go WithRunWallClockBudget. Enforcement lives in
// scheduler.go's runCore, which checks elapsed time against this budget
// once per superstep.
func WithRunWallClockBudgetOption(d time.Duration) Option {
	return func(b *WorkflowBuilder) error {
		b.wallClockBudget = d
		return nil
	}
}
