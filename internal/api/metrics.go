package api

import "context"

// Metrics is an interface that is used for the collection of the API
// statistics.
type Metrics interface {
	// OnTracked is called when an event is accepted.  total is the number of
	// events in the store after it.
	OnTracked(ctx context.Context, total int)

	// OnRejected is called when a track payload is rejected.
	OnRejected(ctx context.Context)

	// OnRollupError is called when an event could not be written to the
	// rollup sink.
	OnRollupError(ctx context.Context)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// OnTracked implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) OnTracked(_ context.Context, _ int) {}

// OnRejected implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) OnRejected(_ context.Context) {}

// OnRollupError implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) OnRollupError(_ context.Context) {}
