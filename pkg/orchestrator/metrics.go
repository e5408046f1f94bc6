package orchestrator

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/policy"
)

var (
	metricMissionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "missions_created_total",
		Help:      "Missions created, by type and priority.",
	}, []string{"type", "priority"})
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "mission_transitions_total",
		Help:      "Mission status transitions.",
	}, []string{"from", "to"})
	metricViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "policy_violations_total",
		Help:      "Compliance rules fired during planning.",
	}, []string{"framework", "severity", "blocking"})
	metricApprovalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "approvals_resolved_total",
		Help:      "Approval requests resolved, by final status.",
	}, []string{"status"})
	metricContextPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "context_pushes_total",
		Help:      "Mission context deliveries to agents.",
	}, []string{"outcome"})
	metricTasksOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "tasks_overdue_total",
		Help:      "In-progress tasks that ran past their deadline.",
	})
	metricAuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overwatch",
		Name:      "audit_append_failures_total",
		Help:      "Audit records that could not be written.",
	})
	metricOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overwatch",
		Name:      "operation_duration_seconds",
		Help:      "Orchestrator operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"operation", "outcome"})
)

func recordMissionCreated(m *mission.Mission) {
	metricMissionsCreated.WithLabelValues(string(m.Type), string(m.Priority)).Inc()
}

func recordTransition(from, to mission.Status) {
	metricTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func recordViolation(v policy.Violation) {
	metricViolations.WithLabelValues(string(v.Framework), string(v.Severity), strconv.FormatBool(v.Blocking)).Inc()
}

func recordApprovalResolved(status string) {
	metricApprovalsResolved.WithLabelValues(status).Inc()
}

func recordContextPush(ok bool) {
	outcome := "delivered"
	if !ok {
		outcome = "failed"
	}
	metricContextPushes.WithLabelValues(outcome).Inc()
}

func recordTaskOverdue() {
	metricTasksOverdue.Inc()
}

func recordAuditFailure() {
	metricAuditFailures.Inc()
}

func observeOperation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metricOperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
