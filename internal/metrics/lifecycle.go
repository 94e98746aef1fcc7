package metrics

import (
	"context"

	"github.com/Libertus-Lab/shieldcore/internal/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lifecycleLegacySkipsTotal is a counter with the number of filter-list
	// updates skipped because of the legacy folder layout.
	lifecycleLegacySkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "legacy_skips_total",
		Subsystem: subsystemLifecycle,
		Namespace: namespace,
		Help:      "Total number of updates skipped due to the legacy layout.",
	}, []string{"component_id"})

	// lifecycleUpdatesTotal is a counter with the number of applied
	// filter-list updates.  "recompiled" is "1" when the update caused a
	// recompile and "0" when a stored rule set was reused.
	lifecycleUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "updates_total",
		Subsystem: subsystemLifecycle,
		Namespace: namespace,
		Help:      "Total number of applied filter-list updates.",
	}, []string{"component_id", "recompiled"})
)

// Lifecycle is the Prometheus-based implementation of the [lifecycle.Metrics]
// interface.
type Lifecycle struct{}

// type check
var _ lifecycle.Metrics = Lifecycle{}

// ObserveLegacySkip implements the [lifecycle.Metrics] interface for
// Lifecycle.
func (Lifecycle) ObserveLegacySkip(_ context.Context, componentID string) {
	lifecycleLegacySkipsTotal.WithLabelValues(componentID).Inc()
}

// ObserveUpdate implements the [lifecycle.Metrics] interface for Lifecycle.
func (Lifecycle) ObserveUpdate(_ context.Context, componentID string, recompiled bool) {
	lifecycleUpdatesTotal.WithLabelValues(componentID, boolLabel(recompiled)).Inc()
}

// boolLabel returns the metrics label value of a boolean.
func boolLabel(v bool) (label string) {
	if v {
		return "1"
	}

	return "0"
}
