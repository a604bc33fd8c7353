package otel

import (
	"context"
	"sync"
	"testing"

	goSubmit "github.com/MrEthical07/goSubmit"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSubmit.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSubmit.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSubmit.MetricsSnapshot{
		Counters:   make(map[goSubmit.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSubmit.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) DiagnosticsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// findSum returns the value of the data point whose attributes include
// every key=value pair in attrs.
func findSum(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	matches := func(set attribute.Set) bool {
		for _, kv := range attrs {
			v, ok := set.Value(kv.Key)
			if !ok || v.Emit() != kv.Value.Emit() {
				return false
			}
		}
		return true
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if matches(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if matches(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader(t)
	meter := provider.Meter("gosubmit-test")

	src := &fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters: map[goSubmit.MetricID]uint64{
				goSubmit.MetricMessageQueued:    3,
				goSubmit.MetricAuthFailureScope: 2,
			},
			Histograms: map[goSubmit.MetricID][]uint64{
				goSubmit.MetricAuthLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findSum(rm, "gosubmit_message_queued_total"); !ok || v != 3 {
		t.Fatalf("expected message_queued 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosubmit_auth_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected latency count 8, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosubmit_auth_latency_seconds_bucket", attribute.String("le", "0.025")); !ok || v != 3 {
		t.Fatalf("expected le=0.025 bucket 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosubmit_auth_failures_total", attribute.String("family", "scope")); !ok || v != 2 {
		t.Fatalf("expected scope failures 2, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosubmit_auth_failures_total", attribute.String("family", "credentials")); !ok || v != 0 {
		t.Fatalf("expected credentials failures 0, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosubmit_diagnostics_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected dropped 1, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)
	meter := provider.Meter("gosubmit-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)
	meter := provider.Meter("gosubmit-test")

	src := &fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters: map[goSubmit.MetricID]uint64{
				goSubmit.MetricAuthSuccess: 1,
			},
			Histograms: map[goSubmit.MetricID][]uint64{
				goSubmit.MetricAuthLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSubmit.MetricAuthSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
