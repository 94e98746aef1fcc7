package metrics

import (
	"context"
	"time"

	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ruleSetRulesTotal is a gauge with the number of rules in each compiled
	// rule set.
	ruleSetRulesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "rules_total",
		Subsystem: subsystemRuleSet,
		Namespace: namespace,
		Help:      "The number of rules in compiled rule sets.",
	}, []string{"ruleset"})

	// ruleSetUpdatedTime is a gauge with the time of the last compile attempt
	// of each rule set.
	ruleSetUpdatedTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "updated_time",
		Subsystem: subsystemRuleSet,
		Namespace: namespace,
		Help:      "Time of the last rule-set compile attempt.",
	}, []string{"ruleset"})

	// ruleSetUpdateStatus is a gauge with the status of the last compile
	// attempt of each rule set.  "0" means error, "1" means success.
	ruleSetUpdateStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "update_status",
		Subsystem: subsystemRuleSet,
		Namespace: namespace,
		Help:      "Status of the last rule-set compile attempt. 1 means success.",
	}, []string{"ruleset"})
)

// RuleSet is the Prometheus-based implementation of the [ruleset.Metrics]
// interface.
type RuleSet struct{}

// type check
var _ ruleset.Metrics = RuleSet{}

// SetRuleSetStatus implements the [ruleset.Metrics] interface for RuleSet.
func (RuleSet) SetRuleSetStatus(
	_ context.Context,
	key string,
	updTime time.Time,
	ruleCount int,
	err error,
) {
	ruleSetRulesTotal.WithLabelValues(key).Set(float64(ruleCount))
	ruleSetUpdatedTime.WithLabelValues(key).Set(float64(updTime.UnixNano()) / float64(time.Second))
	SetStatusGauge(ruleSetUpdateStatus.WithLabelValues(key), err)
}
