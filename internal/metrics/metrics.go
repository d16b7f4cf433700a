package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the charge cycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	ChargeOutcomesTotal   *prometheus.CounterVec
	ChargeSkippedTotal    *prometheus.CounterVec
	MutationFailuresTotal *prometheus.CounterVec
	CyclesTotal           *prometheus.CounterVec
	CycleDuration         prometheus.Histogram
	GatewayDuration       *prometheus.HistogramVec
	LastCycleProcessed    prometheus.Gauge
}

// New creates and registers the charge metrics
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChargeOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charge_outcomes_total",
				Help: "Total number of subscription charges by gateway outcome",
			},
			[]string{"outcome"},
		),
		ChargeSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charge_skipped_total",
				Help: "Total number of due subscriptions skipped before charging",
			},
			[]string{"reason"},
		),
		MutationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charge_mutation_failures_total",
				Help: "Total number of subscription state writes that failed after a charge",
			},
			[]string{"outcome"},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charge_cycles_total",
				Help: "Total number of charge cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "charge_cycle_duration_seconds",
				Help:    "Charge cycle duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charge_gateway_request_duration_seconds",
				Help:    "Gateway charge request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		LastCycleProcessed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "charge_last_cycle_processed",
				Help: "Number of subscriptions processed by the most recent charge cycle",
			},
		),
	}

	registry.MustRegister(
		m.ChargeOutcomesTotal,
		m.ChargeSkippedTotal,
		m.MutationFailuresTotal,
		m.CyclesTotal,
		m.CycleDuration,
		m.GatewayDuration,
		m.LastCycleProcessed,
	)

	return m
}

func (m *Metrics) RecordOutcome(outcome string, gatewayDuration time.Duration) {
	if m == nil {
		return
	}
	m.ChargeOutcomesTotal.WithLabelValues(outcome).Inc()
	m.GatewayDuration.WithLabelValues(outcome).Observe(gatewayDuration.Seconds())
}

func (m *Metrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	m.ChargeSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordMutationFailure(outcome string) {
	if m == nil {
		return
	}
	m.MutationFailuresTotal.WithLabelValues(outcome).Inc()
}

// RecordCycle records a finished cycle; result is "completed" or "failed"
func (m *Metrics) RecordCycle(result string, processed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycleProcessed.Set(float64(processed))
}
