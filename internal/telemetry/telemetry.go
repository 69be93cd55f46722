// Package telemetry exposes Prometheus metrics about the collection and
// broadcast pipeline itself. It never carries container or host values;
// those go to dashboard subscribers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dockdash"

// Metrics groups the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can run without a registry.
type Metrics struct {
	CollectDuration *prometheus.HistogramVec
	CollectFailures *prometheus.CounterVec
	StatsFailures   prometheus.Counter
	SkippedTicks    prometheus.Counter
	Subscribers     prometheus.Gauge
	DroppedMessages prometheus.Counter
	HistoryRecords  prometheus.Gauge
	FlushFailures   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CollectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "duration_seconds",
				Help:      "Time taken by one collector run",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"collector"},
		),
		CollectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "failures_total",
				Help:      "Collection rounds that failed as a whole",
			},
			[]string{"collector"},
		),
		StatsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "container_stats_failures_total",
			Help:      "Per-container stats fetches that failed",
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because the previous round was still running",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently connected subscribers",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a subscriber queue was full",
		}),
		HistoryRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records",
			Help:      "Host records currently held in the history buffer",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "flush_failures_total",
			Help:      "History flushes that failed to reach durable storage",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CollectDuration,
			m.CollectFailures,
			m.StatsFailures,
			m.SkippedTicks,
			m.Subscribers,
			m.DroppedMessages,
			m.HistoryRecords,
			m.FlushFailures,
		)
	}
	return m
}

// ObserveCollect records the outcome of one collector run.
func (m *Metrics) ObserveCollect(name string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.CollectDuration.WithLabelValues(name).Observe(seconds)
	if err != nil {
		m.CollectFailures.WithLabelValues(name).Inc()
	}
}

// StatsFailed counts one failed per-container stats fetch.
func (m *Metrics) StatsFailed() {
	if m == nil {
		return
	}
	m.StatsFailures.Inc()
}

// TickSkipped counts one tick dropped while a round was in flight.
func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

// SetSubscribers records the current subscriber count.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// MessageDropped counts one message dropped for a slow subscriber.
func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.DroppedMessages.Inc()
}

// SetHistoryRecords records the current history length.
func (m *Metrics) SetHistoryRecords(n int) {
	if m == nil {
		return
	}
	m.HistoryRecords.Set(float64(n))
}

// FlushFailed counts one failed history flush.
func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}
