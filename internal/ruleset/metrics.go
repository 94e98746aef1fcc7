package ruleset

import (
	"context"
	"time"
)

// Metrics is the interface for metrics of compiled rule sets.
type Metrics interface {
	// SetRuleSetStatus sets the status of the compiled rule set by the key of
	// its ID.  If err is not nil, updTime and ruleCount are ignored.
	SetRuleSetStatus(
		ctx context.Context,
		key string,
		updTime time.Time,
		ruleCount int,
		err error,
	)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetRuleSetStatus implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetRuleSetStatus(
	_ context.Context,
	_ string,
	_ time.Time,
	_ int,
	_ error,
) {
}
