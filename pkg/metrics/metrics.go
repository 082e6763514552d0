package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	RegisteredInstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_registered_instances_total",
			Help: "Total number of registered instances by service and stored state",
		},
		[]string{"service", "stored_state"},
	)

	SchedulesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_schedules_total",
			Help: "Total number of schedule definitions",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// gRPC dispatch metrics
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_dispatch_requests_total",
			Help: "Total number of dispatches to runners by target and status",
		},
		[]string{"target", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_dispatch_duration_seconds",
			Help:    "Dispatch round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// Decision outcome metrics
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_actions_total",
			Help: "Total number of requested actions applied, by service and action",
		},
		[]string{"service", "action"},
	)

	ActionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_action_errors_total",
			Help: "Total number of action failures, by service and error kind",
		},
		[]string{"service", "kind"},
	)

	EvaluationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_evaluation_latency_seconds",
			Help:    "Time taken to evaluate one target's registered instances",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Raft operation metrics
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Maintenance-window reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_mw_reconciliation_duration_seconds",
			Help:    "Time taken for a maintenance-window reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_mw_reconciliation_cycles_total",
			Help: "Total number of maintenance-window reconciliation cycles completed",
		},
	)

	// Role-assumption metrics
	RoleAssumptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_role_assumptions_total",
			Help: "Total number of cross-account role assumptions by account and status",
		},
		[]string{"account", "status"},
	)
)

func init() {
	prometheus.MustRegister(RegisteredInstancesTotal)
	prometheus.MustRegister(SchedulesTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(DispatchRequestsTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionErrorsTotal)
	prometheus.MustRegister(EvaluationLatency)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(RoleAssumptionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
