package goSubmit

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/submit"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricRecipientAccepted)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricRecipientAccepted)
		}
	})
}

func BenchmarkMetricsObserve(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Observe(MetricAuthLatency, 3*time.Millisecond)
	}
}

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()
	ctx := context.Background()

	creds := credential.NewMemoryStore()
	if err := creds.PutPrincipal(ctx, &credential.Principal{
		ID:      testPrincipal,
		Address: "sales@example.com",
		OrgID:   "org_1",
		Status:  credential.StatusActive,
	}); err != nil {
		b.Fatalf("put principal: %v", err)
	}
	if err := creds.PutCredential(ctx, testSecret, &credential.Credential{
		ID:        "cred_bench",
		OrgID:     "org_1",
		Scopes:    []string{"smtp"},
		CreatedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		b.Fatalf("put credential: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	e, err := New().
		WithConfig(cfg).
		WithCredentialStore(creds).
		WithSubmitter(submit.SubmitterFunc(func(context.Context, *submit.Message, string) (submit.Receipt, error) {
			return submit.Receipt{ID: "bench"}, nil
		})).
		Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	b.Cleanup(e.Close)
	return e
}

func BenchmarkAuthenticate(b *testing.B) {
	e := newBenchmarkEngine(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := "bench-" + strconv.Itoa(i)
		if err := e.Connect(ctx, id, session.Meta{RemoteAddr: "192.0.2.1:25"}); err != nil {
			b.Fatalf("connect: %v", err)
		}
		e.Greet(ctx, id, "client.example.com")
		if out := e.Auth(ctx, id, testPrincipal, testSecret); !out.Accepted {
			b.Fatalf("auth rejected: %s", out.Reply)
		}
		_ = e.Disconnect(ctx, id)
	}
}

func BenchmarkTransaction(b *testing.B) {
	e := newBenchmarkEngine(b)
	ctx := context.Background()
	const id = "bench-tx"

	if err := e.Connect(ctx, id, session.Meta{RemoteAddr: "192.0.2.1:25"}); err != nil {
		b.Fatalf("connect: %v", err)
	}
	e.Greet(ctx, id, "client.example.com")
	if out := e.Auth(ctx, id, testPrincipal, testSecret); !out.Accepted {
		b.Fatalf("auth rejected: %s", out.Reply)
	}
	raw := rawMessage("sales@example.com", "a@example.org")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Mail(ctx, id, "sales@example.com")
		e.Rcpt(ctx, id, "a@example.org")
		e.StartData(ctx, id)
		if out := e.CompleteData(ctx, id, strings.NewReader(raw)); !out.Accepted {
			b.Fatalf("data rejected: %s", out.Reply)
		}
	}
}
