package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// sampleFor returns the sample of family name carrying job=job, or nil.
func sampleFor(t *testing.T, reg *prometheus.Registry, name, job string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "job" && lp.GetValue() == job {
					return m
				}
			}
		}
	}
	return nil
}

func TestCronJobMetricsRecordsCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	const job = "pending-order-expiry"

	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.AddProcessed(job, 3)
	m.AddProcessed(job, 0)

	for name, want := range map[string]float64{
		"storefront_cron_job_success_total":         1,
		"storefront_cron_job_failure_total":         1,
		"storefront_cron_job_items_processed_total": 3,
	} {
		sample := sampleFor(t, reg, name, job)
		require.NotNil(t, sample, name)
		require.Equal(t, want, sample.GetCounter().GetValue(), name)
	}

	hist := sampleFor(t, reg, "storefront_cron_job_duration_seconds", job)
	require.NotNil(t, hist)
	require.EqualValues(t, 1, hist.GetHistogram().GetSampleCount())
	require.InDelta(t, 0.25, hist.GetHistogram().GetSampleSum(), 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	require.NotPanics(t, func() {
		m.ObserveDuration("x", time.Second)
		m.IncSuccess("x")
		m.IncFailure("x")
		m.AddProcessed("x", 1)
	})
}
