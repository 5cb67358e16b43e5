package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accountable"

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Submissions          *prometheus.CounterVec
	SubmissionPoints     prometheus.Histogram
	LeaveRequests        *prometheus.CounterVec
	SettlementRuns       *prometheus.CounterVec
	SettlementOutcomes   *prometheus.CounterVec
	Escalations          *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	PublishFailures      prometheus.Counter
	JobDuration          *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg gets a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "daily logs received, by result",
		}, []string{"result"}),
		SubmissionPoints: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_points",
			Help:      "score of accepted daily logs",
			Buckets:   prometheus.LinearBuckets(-11, 2, 12),
		}),
		LeaveRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leave_requests_total",
			Help:      "leave requests, by result",
		}, []string{"result"}),
		SettlementRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_runs_total",
			Help:      "daily settlement invocations, by outcome",
		}, []string{"outcome"}),
		SettlementOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_members_total",
			Help:      "members processed by settlement, by outcome",
		}, []string{"outcome"}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "inactivity actions taken, by action",
		}, []string{"action"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "failed gateway calls, by kind",
		}, []string{"kind"}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_publish_failures_total",
			Help:      "failed leaderboard publish attempts",
		}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "duration of periodic jobs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}
