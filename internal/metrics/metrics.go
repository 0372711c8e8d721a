// Package metrics exposes Prometheus collectors for the session lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/guard"
	"github.com/leansocial/shell/internal/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the shell.
// It implements the recorders of lifecycle, guard and api.
type Metrics struct {
	registry *prometheus.Registry

	AuthTransitions   *prometheus.CounterVec
	Authenticated     prometheus.Gauge
	BootstrapDuration prometheus.Histogram
	BootstrapOutcomes *prometheus.CounterVec
	ListenerEvents    *prometheus.CounterVec
	GuardDecisions    *prometheus.CounterVec
	APIRequests       *prometheus.CounterVec
	APIDuration       prometheus.Histogram
}

// New registers all collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AuthTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leansocial_auth_transitions_total",
			Help: "AuthState mutations by resulting phase",
		}, []string{"phase"}),
		Authenticated: f.NewGauge(prometheus.GaugeOpts{
			Name: "leansocial_authenticated",
			Help: "1 while a session is present",
		}),
		BootstrapDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leansocial_bootstrap_duration_seconds",
			Help:    "Time from mount until the bootstrap settled",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BootstrapOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leansocial_bootstrap_total",
			Help: "Bootstraps by outcome",
		}, []string{"outcome"}),
		ListenerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leansocial_listener_events_total",
			Help: "Session change events, delivered or dropped after unmount",
		}, []string{"result"}),
		GuardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leansocial_guard_decisions_total",
			Help: "Route guard decisions by gate and outcome",
		}, []string{"gate", "outcome"}),
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leansocial_api_requests_total",
			Help: "Backend API requests by method and status",
		}, []string{"method", "status"}),
		APIDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leansocial_api_request_duration_seconds",
			Help:    "Backend API request latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransition is an authstate.Observer
func (m *Metrics) ObserveTransition(_, next authstate.State) {
	m.AuthTransitions.WithLabelValues(string(next.Phase())).Inc()
	if next.IsAuthenticated {
		m.Authenticated.Set(1)
	} else {
		m.Authenticated.Set(0)
	}
}

func (m *Metrics) BootstrapSettled(outcome lifecycle.Outcome, took time.Duration) {
	m.BootstrapOutcomes.WithLabelValues(string(outcome)).Inc()
	m.BootstrapDuration.Observe(took.Seconds())
}

func (m *Metrics) ListenerEvent(delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	m.ListenerEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) GuardDecision(gate string, outcome guard.Outcome) {
	m.GuardDecisions.WithLabelValues(gate, string(outcome)).Inc()
}

// APIRequest records a backend call. status 0 means the request never got
// a response.
func (m *Metrics) APIRequest(method string, status int, took time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, label).Inc()
	m.APIDuration.Observe(took.Seconds())
}

var (
	_ lifecycle.Recorder = (*Metrics)(nil)
	_ guard.Recorder     = (*Metrics)(nil)
)
