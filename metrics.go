package authcore

import "sync/atomic"

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateVetoed
	MetricLoginHashSaturated
	MetricRehashUpgrade
	MetricSessionCreated
	MetricValidateSuccess
	MetricValidateRejected
	MetricSessionRevoked
	MetricRevokeAll
	MetricStoreError
	MetricEntropyFailure

	metricCount
)

// Metrics is a fixed-size atomic counter registry. A nil *Metrics is a
// valid no-op receiver, so disabled metrics cost one branch per increment.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc increments id by one.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
