package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// envelope pairs a record with the emitting call's context values. The
// cancellation of the original context is detached so a record queued by a
// finished SMTP command still reaches the sink with its attributes.
type envelope struct {
	ctx   context.Context
	event Event
}

// Dispatcher moves diagnostic records off the SMTP command path. A single
// relay goroutine feeds the sink, so records arrive in emission order.
type Dispatcher struct {
	dropIfFull bool
	sink       Sink
	queue      chan envelope
	quit       chan struct{}
	finished   chan struct{}

	stopping  atomic.Bool
	stopOnce  sync.Once
	delivered atomic.Uint64
	failed    atomic.Uint64

	dropMu    sync.Mutex
	dropTotal atomic.Uint64
	dropByEv  map[string]uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg is
// disabled; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		queue:      make(chan envelope, size),
		quit:       make(chan struct{}),
		finished:   make(chan struct{}),
		dropByEv:   make(map[string]uint64),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.finished)
	for {
		select {
		case env := <-d.queue:
			d.forward(env)
		case <-d.quit:
			// Drain whatever was accepted before the stop.
			for {
				select {
				case env := <-d.queue:
					d.forward(env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) forward(env envelope) {
	defer func() {
		if recover() != nil {
			d.failed.Add(1)
		}
	}()
	d.sink.Emit(env.ctx, env.event)
	d.delivered.Add(1)
}

// Emit queues a record. With DropIfFull it never blocks; otherwise it waits
// for buffer space until ctx is done or the dispatcher stops.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopping.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	env := envelope{ctx: context.WithoutCancel(ctx), event: event}

	if d.dropIfFull {
		select {
		case d.queue <- env:
		case <-d.quit:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- env:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.quit:
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.dropTotal.Add(1)
	d.dropMu.Lock()
	d.dropByEv[eventType]++
	d.dropMu.Unlock()
}

// Shutdown stops intake and waits for queued records to reach the sink,
// or for ctx to end, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.quit)
	})
	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Dropped reports records lost to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropTotal.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for k, v := range d.dropByEv {
		out[k] = v
	}
	return out
}

// Failed reports records whose sink panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
