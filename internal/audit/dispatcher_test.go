package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

type blockingSink struct {
	release chan struct{}
}

func (b blockingSink) Emit(context.Context, Event) { <-b.release }

func TestDispatcherDeliversInOrderAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{SessionID: string(rune('a' + i))})
	}
	d.Close()

	got := sink.snapshot()
	if len(got) != 10 {
		t.Fatalf("delivered %d events, want 10", len(got))
	}
	for i, e := range got {
		if e.SessionID != string(rune('a'+i)) {
			t.Fatalf("event %d out of order: %q", i, e.SessionID)
		}
	}
	if d.Delivered() != 10 {
		t.Fatalf("delivered counter = %d", d.Delivered())
	}

	d.Emit(context.Background(), Event{SessionID: "late"})
	d.Close()
	if len(sink.snapshot()) != 10 {
		t.Fatal("emit after close must be ignored")
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &recordingSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher counters should be zero")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blockingSink{release: release})

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and full buffer")
	}
	if d.DroppedByType()[""] != d.Dropped() {
		t.Fatalf("per-type tally %v does not match total %d", d.DroppedByType(), d.Dropped())
	}
	close(release)
	d.Close()
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{})
	d.Emit(context.Background(), Event{})
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Failed() != 2 || d.Dropped() != 0 {
		t.Fatalf("failed = %d dropped = %d, want 2 and 0", d.Failed(), d.Dropped())
	}
}

type ctxKey struct{}

type ctxSink struct {
	got chan any
}

func (s ctxSink) Emit(ctx context.Context, _ Event) { s.got <- ctx.Value(ctxKey{}) }

func TestDispatcherKeepsContextValuesAfterCancel(t *testing.T) {
	sink := ctxSink{got: make(chan any, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "conn-7"))
	d.Emit(ctx, Event{EventType: "greet_rejected"})
	cancel()

	select {
	case v := <-sink.got:
		if v != "conn-7" {
			t.Fatalf("sink saw %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record never delivered")
	}
}

func TestDispatcherShutdownHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, blockingSink{release: release})
	d.Emit(context.Background(), Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); err == nil {
		t.Fatal("expected deadline error while the sink is blocked")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "auth_rejected", SessionID: "s1", ReplyCode: 535, Enhanced: "5.7.8"})

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != "auth_rejected" || got.ReplyCode != 535 {
		t.Fatalf("got %+v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewSlogSink(logger)
	s.Emit(context.Background(), Event{EventType: "auth_rejected", Reason: "CREDENTIAL_REVOKED", Detail: "revoked at x"})
	s.Emit(context.Background(), Event{EventType: "message_submitted", Success: true})

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "reason=CREDENTIAL_REVOKED") {
		t.Fatalf("rejection not logged at info: %s", out)
	}
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "event_type=message_submitted") {
		t.Fatalf("success not logged at debug: %s", out)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{SessionID: "x"})
	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Fatal("multi sink did not fan out")
	}
}
