package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/credential"
	"github.com/MrEthical07/goSubmit/session"
)

type fakeSource struct {
	snapshot goSubmit.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSubmit.MetricsSnapshot { return f.snapshot }
func (f fakeSource) DiagnosticsDropped() uint64                { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters:   map[goSubmit.MetricID]uint64{},
			Histograms: map[goSubmit.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters: map[goSubmit.MetricID]uint64{
				goSubmit.MetricMessageQueued: 7,
			},
			Histograms: map[goSubmit.MetricID][]uint64{
				goSubmit.MetricAuthLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[goSubmit.MetricID]time.Duration{
				goSubmit.MetricAuthLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"gosubmit_message_queued_total 7",
		`gosubmit_auth_failures_total{family="scope"} 0`,
		"# TYPE gosubmit_auth_latency_seconds histogram",
		"gosubmit_auth_latency_seconds_bucket{le=\"0.005\"} 1",
		"gosubmit_auth_latency_seconds_bucket{le=\"+Inf\"} 36",
		"gosubmit_auth_latency_seconds_count 36",
		"gosubmit_auth_latency_seconds_sum 1.5",
		"gosubmit_diagnostics_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "# TYPE gosubmit_auth_failures_total counter"); n != 1 {
		t.Fatalf("labelled family should have one header, got %d", n)
	}
	if strings.Contains(out, "gosubmit_submit_latency_seconds") {
		t.Fatalf("histogram without data must be omitted:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters:   map[goSubmit.MetricID]uint64{goSubmit.MetricGreet: 1},
			Histograms: map[goSubmit.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderFromEngine(t *testing.T) {
	engine, err := goSubmit.New().WithCredentialStore(credential.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.Connect(ctx, "s1", session.Meta{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	engine.Greet(ctx, "s1", "client.example.com")
	engine.StartData(ctx, "s1")

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{
		"gosubmit_session_opened_total 1",
		"gosubmit_greet_total 1",
		"gosubmit_sequencing_violation_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSubmit.MetricsSnapshot{
			Counters: map[goSubmit.MetricID]uint64{
				goSubmit.MetricAuthSuccess:            1000,
				goSubmit.MetricAuthFailureCredentials: 40,
				goSubmit.MetricMessageQueued:          800,
				goSubmit.MetricRecipientAccepted:      2400,
			},
			Histograms: map[goSubmit.MetricID][]uint64{
				goSubmit.MetricAuthLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
