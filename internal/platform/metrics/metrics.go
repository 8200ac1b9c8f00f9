package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	Transitions        *prometheus.CounterVec
	TokensIssued       prometheus.Counter
	TokenValidations   *prometheus.CounterVec
	SweepRuns          prometheus.Counter
	SweepDuration      prometheus.Histogram
	ReviewDecisions    *prometheus.CounterVec
	DocSessionsOpened  prometheus.Counter
	DocSessionsExpired prometheus.Counter
	NotifyFailures     prometheus.Counter
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics against the given registerer. Tests use this
// with a fresh registry so repeated setup does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_verification_requests_created_total",
			Help: "Verification requests created by the inactivity sweep",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_verification_transitions_total",
			Help: "State machine transitions by action and outcome",
		}, []string{"action", "outcome"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_tokens_issued_total",
			Help: "Verification tokens issued",
		}),
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_token_validations_total",
			Help: "Token validation attempts by result",
		}, []string{"result"}),
		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_inactivity_sweep_runs_total",
			Help: "Inactivity sweep executions",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "securevault_inactivity_sweep_duration_seconds",
			Help:    "Inactivity sweep wall time",
			Buckets: prometheus.DefBuckets,
		}),
		ReviewDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_admin_review_decisions_total",
			Help: "Admin review decisions by kind",
		}, []string{"decision"}),
		DocSessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_document_sessions_opened_total",
			Help: "Document access sessions opened by admins",
		}),
		DocSessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_document_sessions_expired_total",
			Help: "Document access sessions expired by the reaper",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevault_notification_failures_total",
			Help: "Notification deliveries that failed and were logged",
		}),
	}
}
