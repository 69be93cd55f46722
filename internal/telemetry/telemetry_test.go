package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCollect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCollect("host", 0.01, nil)
	m.ObserveCollect("host", 0.02, errors.New("boom"))
	m.ObserveCollect("containers", 0.5, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectFailures.WithLabelValues("host")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CollectFailures.WithLabelValues("containers")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CollectDuration))
}

func TestGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetSubscribers(3)
	m.SetHistoryRecords(42)
	m.MessageDropped()
	m.TickSkipped()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Subscribers))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.HistoryRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTicks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveCollect("host", 1, errors.New("x"))
		m.StatsFailed()
		m.TickSkipped()
		m.SetSubscribers(1)
		m.MessageDropped()
		m.SetHistoryRecords(1)
		m.FlushFailed()
	})
}
