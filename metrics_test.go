package goRenew

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricEvaluateFresh)

	if got := m.Value(MetricEvaluateFresh); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled metrics must snapshot empty")
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricEvaluateFresh)
	m.Inc(MetricEvaluateFresh)
	m.Inc(MetricEvaluateFresh)

	if got := m.Value(MetricEvaluateFresh); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogin)
	m.Observe(MetricEvaluateLatency, time.Millisecond)
	if m.Value(MetricLogin) != 0 || m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must be a no-op")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRenewSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRenewSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricEvaluateLatency, d)
	}
	// Counters have no histogram.
	m.Observe(MetricLogin, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricEvaluateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricLogin]; ok {
		t.Fatal("unexpected histogram for a counter")
	}
	if _, ok := snap.Counters[MetricEvaluateLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
}

func TestMetricsLatencyDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricEvaluateLatency, time.Millisecond)

	if _, ok := m.Snapshot().Histograms[MetricEvaluateLatency]; ok {
		t.Fatal("histogram recorded without EnableLatencyHistograms")
	}
}

func TestEvaluateCountsOutcomes(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t), func(b *Builder) { b.WithLatencyHistograms(true) })
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.engine.Evaluate(ctx, "")
	rt.engine.Evaluate(ctx, "garbage")
	rt.engine.Evaluate(ctx, pair.AccessToken)
	rt.clock.Advance(2 * time.Hour)
	rt.engine.Evaluate(ctx, pair.AccessToken)

	snap := rt.engine.MetricsSnapshot()
	for id, want := range map[MetricID]uint64{
		MetricEvaluateMissing:         1,
		MetricEvaluateInvalid:         1,
		MetricEvaluateFresh:           1,
		MetricEvaluateRenewedReactive: 1,
		MetricRenewSuccess:            1,
		MetricLogin:                   1,
	} {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}

	var observed uint64
	for _, v := range snap.Histograms[MetricEvaluateLatency] {
		observed += v
	}
	if observed != 4 {
		t.Fatalf("expected 4 latency observations, got %d", observed)
	}
}

func TestEvaluateWithMetricsDisabled(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t), func(b *Builder) { b.WithMetricsEnabled(false) })
	defer done()

	rt.engine.Evaluate(context.Background(), "")
	if len(rt.engine.MetricsSnapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot with metrics disabled")
	}
}
