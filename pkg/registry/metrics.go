package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAgents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overwatch",
		Name:      "agents",
		Help:      "Registered agents by operational status.",
	}, []string{"status"})
	metricResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overwatch",
		Name:      "resources",
		Help:      "Registered resources by availability status.",
	}, []string{"status"})
	metricAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "allocations_total",
		Help:      "Allocate calls by pool and outcome.",
	}, []string{"pool", "outcome"})
)

func recordAllocation(pool string, ok bool) {
	outcome := "allocated"
	if !ok {
		outcome = "unavailable"
	}
	metricAllocations.WithLabelValues(pool, outcome).Inc()
}

func publishAgentCounts(counts map[AgentStatus]int) {
	for _, status := range AllAgentStatuses() {
		metricAgents.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func publishResourceCounts(counts map[ResourceStatus]int) {
	for _, status := range AllResourceStatuses() {
		metricResources.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
