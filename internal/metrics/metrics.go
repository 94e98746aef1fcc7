// Package metrics contains definitions of the prometheus metrics of the
// rule-set subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// constants with the namespace and the subsystem names that we use in our
// prometheus metrics.
const (
	namespace = "shieldcore"

	subsystemApplication = "app"
	subsystemLifecycle   = "lifecycle"
	subsystemRuleSet     = "ruleset"
)

// SetStatusGauge is a helper function that automatically checks if there's an
// error and sets the gauge to either 1 (success) or 0 (error).
func SetStatusGauge(gauge prometheus.Gauge, err error) {
	if err == nil {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}
