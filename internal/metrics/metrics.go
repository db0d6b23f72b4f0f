// Package metrics exposes the ledger's operational counters. Services take a
// Collector so tests can run with Noop and production with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Collector records ledger activity.
type Collector interface {
	RecordOperationResult(operation, result string)
	RecordOperationDuration(operation string, d time.Duration)
	RecordPayoutVolume(payoutType string, amount decimal.Decimal)
	RecordAuditWriteFailure(action string)
	RecordNotificationFailure(event string)
	RecordSweeperRelease(result string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordOperationResult(string, string)          {}
func (Noop) RecordOperationDuration(string, time.Duration) {}
func (Noop) RecordPayoutVolume(string, decimal.Decimal)    {}
func (Noop) RecordAuditWriteFailure(string)                {}
func (Noop) RecordNotificationFailure(string)              {}
func (Noop) RecordSweeperRelease(string)                   {}

// Prometheus is the production collector.
type Prometheus struct {
	operations    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	payoutVolume  *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
	sweeper       *prometheus.CounterVec
}

// NewPrometheus registers the ledger metrics on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and result kind.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		payoutVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "payout_amount_total",
			Help:      "Sum of payout amounts scheduled, by payout type.",
		}, []string{"type"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit entries that could not be persisted.",
		}, []string{"action"}),
		notifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification events that could not be handed off.",
		}, []string{"event"}),
		sweeper: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "sweeper_releases_total",
			Help:      "Expired escrows processed by the sweeper, by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.operations,
		m.durations,
		m.payoutVolume,
		m.auditFailures,
		m.notifyFailure,
		m.sweeper,
	)
	return m
}

func (m *Prometheus) RecordOperationResult(operation, result string) {
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Prometheus) RecordOperationDuration(operation string, d time.Duration) {
	m.durations.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Prometheus) RecordPayoutVolume(payoutType string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	m.payoutVolume.WithLabelValues(payoutType).Add(f)
}

func (m *Prometheus) RecordAuditWriteFailure(action string) {
	m.auditFailures.WithLabelValues(action).Inc()
}

func (m *Prometheus) RecordNotificationFailure(event string) {
	m.notifyFailure.WithLabelValues(event).Inc()
}

func (m *Prometheus) RecordSweeperRelease(result string) {
	m.sweeper.WithLabelValues(result).Inc()
}
