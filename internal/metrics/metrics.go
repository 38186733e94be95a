// Package metrics provides Prometheus instrumentation for the tradepromo
// server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only tradepromo metrics appear on the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Evaluation outcomes recorded by RecordEvaluation.
const (
	OutcomeTriggered = "triggered"
	OutcomeNone      = "none"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus collectors used by the tradepromo server.
type Metrics struct {
	Registry *prometheus.Registry

	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	RulesTriggeredTotal prometheus.Counter
	RuleErrorsTotal     *prometheus.CounterVec
	RulesLoaded         prometheus.Gauge
	RuleReloadsTotal    *prometheus.CounterVec
	AuthFailuresTotal   prometheus.Counter
}

// New creates and registers all tradepromo metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepromo_grpc_requests_total",
			Help: "Total number of gRPC requests.",
		}, []string{"method", "status"}),

		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradepromo_grpc_request_duration_seconds",
			Help:    "gRPC request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepromo_evaluations_total",
			Help: "Total number of promotion evaluations by outcome.",
		}, []string{"outcome"}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradepromo_evaluation_duration_seconds",
			Help:    "Rule pass latency in seconds.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		RulesTriggeredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepromo_rules_triggered_total",
			Help: "Total number of rules whose condition matched.",
		}),

		RuleErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepromo_rule_errors_total",
			Help: "Total number of per-rule errors by kind.",
		}, []string{"kind"}),

		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepromo_rules_loaded",
			Help: "Number of compiled rules currently active.",
		}),

		RuleReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepromo_rule_reloads_total",
			Help: "Total number of rule set reloads by result.",
		}, []string{"result"}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepromo_auth_failures_total",
			Help: "Total number of failed authentication attempts.",
		}),
	}

	reg.MustRegister(
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.RulesTriggeredTotal,
		m.RuleErrorsTotal,
		m.RulesLoaded,
		m.RuleReloadsTotal,
		m.AuthFailuresTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records
// request count and latency for each method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		st, _ := status.FromError(err)
		code := st.Code().String()
		m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
		m.GRPCRequestDuration.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// EvaluationStats summarizes one rule pass for RecordEvaluation.
type EvaluationStats struct {
	Triggered    int
	ConfigErrors int
	DataErrors   int
	Duration     time.Duration
}

// RecordEvaluation records one rule pass.
func (m *Metrics) RecordEvaluation(s EvaluationStats) {
	outcome := OutcomeNone
	switch {
	case s.ConfigErrors+s.DataErrors > 0:
		outcome = OutcomeError
	case s.Triggered > 0:
		outcome = OutcomeTriggered
	}
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(s.Duration.Seconds())
	m.RulesTriggeredTotal.Add(float64(s.Triggered))
	if s.ConfigErrors > 0 {
		m.RuleErrorsTotal.WithLabelValues("configuration").Add(float64(s.ConfigErrors))
	}
	if s.DataErrors > 0 {
		m.RuleErrorsTotal.WithLabelValues("data").Add(float64(s.DataErrors))
	}
}

// RecordReload records a rule set reload and, on success, the new rule count.
func (m *Metrics) RecordReload(loaded int, err error) {
	if err != nil {
		m.RuleReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RuleReloadsTotal.WithLabelValues("ok").Inc()
	m.RulesLoaded.Set(float64(loaded))
}

// IncAuthFailures increments the authentication failure counter.
func (m *Metrics) IncAuthFailures() {
	m.AuthFailuresTotal.Inc()
}
