package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls     prometheus.Gauge
	CallEvents      *prometheus.CounterVec
	CallOutcomes    *prometheus.CounterVec
	FlowTransitions *prometheus.CounterVec
	GatewayRequests *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	HandlerLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of in-progress phone call sessions.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		CallOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_outcomes_total",
			Help:      "Terminal call outcomes by classification.",
		}, []string{"outcome"}),
		FlowTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_transitions_total",
			Help:      "Flow node transitions by source node and action.",
		}, []string{"node", "action"}),
		GatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Scheduling backend requests by method, endpoint and result.",
		}, []string{"method", "endpoint", "result"}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Flow handler failures by action.",
		}, []string{"action"}),
		HandlerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_latency_ms",
			Help:      "Action handler execution latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}

// The helpers below are nil-safe so components can run without metrics wired
// (unit tests, tooling).

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(n))
}

func (m *Metrics) IncCallEvent(event string) {
	if m == nil {
		return
	}
	m.CallEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncCallOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CallOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFlowTransition(node, action string) {
	if m == nil {
		return
	}
	m.FlowTransitions.WithLabelValues(node, action).Inc()
}

func (m *Metrics) IncGatewayRequest(method, endpoint, result string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(method, endpoint, result).Inc()
}

func (m *Metrics) IncHandlerError(action string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveHandlerLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
