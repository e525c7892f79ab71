package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/chatflow/pkg/domain"
)

const namespace = "chatflow"

// Metrics records executor and processor activity.
type Metrics struct {
	Steps            *prometheus.CounterVec
	NodeVisits       *prometheus.CounterVec
	SessionEnds      *prometheus.CounterVec
	ExternalCalls    *prometheus.CounterVec
	ExternalDuration *prometheus.HistogramVec
	Deliveries       *prometheus.CounterVec
	Activations      *prometheus.CounterVec
	LockTimeouts     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Inbound events processed, by resulting session status.",
		}, []string{"status"}),
		NodeVisits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Node entries, by node type.",
		}, []string{"node_type"}),
		SessionEnds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ends_total",
			Help:      "Sessions reaching a terminal status.",
		}, []string{"status"}),
		ExternalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "apiCall attempts, by request name and result.",
		}, []string{"request", "result"}),
		ExternalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Duration of apiCall attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound messages, by effect type and result.",
		}, []string{"type", "result"}),
		Activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Flow activation attempts, by validation result.",
		}, []string{"valid"}),
		LockTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_lock_timeouts_total",
			Help:      "Events refused because the session lock was held too long.",
		}, []string{"project"}),
	}
}

// Hooks returns lifecycle hooks feeding the executor metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeType).Inc()
		},
		OnExternalReturn: func(_ context.Context, e *domain.ExternalEvent) {
			result := "ok"
			if e.IsError {
				result = "error"
			}
			m.ExternalCalls.WithLabelValues(e.RequestName, result).Inc()
			m.ExternalDuration.WithLabelValues(e.RequestName).Observe(e.Duration.Seconds())
		},
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) {
			m.SessionEnds.WithLabelValues(string(e.Status)).Inc()
		},
	}
}

// ObserveStep counts a processed event. Redeliveries are counted as "duplicate".
func (m *Metrics) ObserveStep(s *domain.Session, duplicate bool) {
	if duplicate || s == nil {
		m.Steps.WithLabelValues("duplicate").Inc()
		return
	}
	m.Steps.WithLabelValues(string(s.Status)).Inc()
}

// ObserveDelivery counts one outbound send.
func (m *Metrics) ObserveDelivery(effect domain.Effect, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.Deliveries.WithLabelValues(string(effect.Type), result).Inc()
}

// ObserveLockTimeout counts a refused event.
func (m *Metrics) ObserveLockTimeout(projectID string) {
	m.LockTimeouts.WithLabelValues(projectID).Inc()
}

// ObserveActivation counts an activation attempt.
func (m *Metrics) ObserveActivation(res domain.ValidationResult) {
	m.Activations.WithLabelValues(strconv.FormatBool(res.IsValid)).Inc()
}
