package goRenew

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricEvaluateMissing counts requests without a bearer token.
	MetricEvaluateMissing MetricID = iota
	// MetricEvaluateInvalid counts rejected access tokens.
	MetricEvaluateInvalid
	// MetricEvaluateFresh counts valid tokens that needed no renewal.
	MetricEvaluateFresh
	// MetricEvaluateRenewedProactive counts near-expiry tokens that were replaced.
	MetricEvaluateRenewedProactive
	// MetricEvaluateSuperseded counts near-expiry tokens that had already been replaced.
	MetricEvaluateSuperseded
	// MetricEvaluateFallback counts proactive renewals that failed and kept the original token.
	MetricEvaluateFallback
	// MetricEvaluateRenewedReactive counts expired tokens that were replaced.
	MetricEvaluateRenewedReactive
	// MetricEvaluateSessionEnded counts expired tokens whose record was deleted.
	MetricEvaluateSessionEnded
	// MetricEvaluateStoreUnavailable counts expired tokens left unrenewed by store failures.
	MetricEvaluateStoreUnavailable
	// MetricRenewSuccess counts credential pairs written by renewal.
	MetricRenewSuccess
	// MetricRenewFailure counts renewals that did not produce a pair.
	MetricRenewFailure
	// MetricRenewCollapsed counts renewals that joined one already in flight.
	MetricRenewCollapsed
	// MetricRenewConditionalLost counts conditional writes that lost to another writer.
	MetricRenewConditionalLost
	// MetricLogin counts credential pairs issued at login.
	MetricLogin
	// MetricLogout counts removed records.
	MetricLogout
	// MetricRefreshSuccess counts explicit refresh successes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts explicit refresh failures.
	MetricRefreshFailure
	// MetricRefreshRateLimited counts explicit refreshes rejected by the throttle.
	MetricRefreshRateLimited
	// MetricEvaluateLatency is the evaluate latency histogram.
	MetricEvaluateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the evaluate latency histogram.
//
// Metrics is safe for concurrent use. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a [Metrics] configured by cfg. When Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
//
//	Performance: one atomic add, no allocations.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only [MetricEvaluateLatency] has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEvaluateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of the counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricEvaluateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEvaluateLatency].buckets[i])
		}
		s.Histograms[MetricEvaluateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
