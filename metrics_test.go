package authcore

import "testing"

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricSessionRevoked)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("login success = %d, want 2", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricSessionRevoked] != 1 {
		t.Fatalf("revoked = %d, want 1", snap.Counters[MetricSessionRevoked])
	}
	if snap.Counters[MetricStoreError] != 0 {
		t.Fatalf("store error = %d, want 0", snap.Counters[MetricStoreError])
	}
}

func TestMetricsDisabledNilReceiver(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: false})
	if m != nil {
		t.Fatal("disabled metrics should yield a nil registry")
	}

	m.Inc(MetricLoginSuccess)

	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("nil registry snapshot not empty: %v", snap.Counters)
	}
}

func TestMetricsIgnoresOutOfRangeID(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricCount + 10)

	snap := m.Snapshot()
	for id, v := range snap.Counters {
		if v != 0 {
			t.Fatalf("counter %d unexpectedly %d", id, v)
		}
	}
}
