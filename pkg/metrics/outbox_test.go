package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Event("order_paid", OutboxPublished)
	m.Event("order_paid", OutboxPublished)
	m.Event("order_created", OutboxDead)
	m.Event("", OutboxRetried)
	m.ObserveBatch(40 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("order_paid", OutboxPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("order_created", OutboxDead)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("unknown", OutboxRetried)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batch))
}

func TestNilOutboxMetricsAreNoops(t *testing.T) {
	var m *OutboxMetrics
	assert.Nil(t, NewOutboxMetrics(nil))
	assert.NotPanics(t, func() {
		m.Event("order_paid", OutboxPublished)
		m.ObserveBatch(time.Second)
	})
}
