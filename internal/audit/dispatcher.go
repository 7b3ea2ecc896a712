package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events while the buffer is full instead of blocking Emit.
	DropIfFull bool
}

// Dispatcher relays events to a sink from a single goroutine, so the sink sees every
// subject's events in emission order.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu      sync.RWMutex
	closed  bool
	ch      chan Event
	drained chan struct{}

	dropped [typeCount]atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg.Enabled is false;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		ch:         make(chan Event, max(cfg.BufferSize, 1)),
		drained:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.drained)
	ctx := context.Background()
	for event := range d.ch {
		d.sink.Emit(ctx, event)
	}
}

// Emit queues event. An event that cannot be queued, because the buffer is full under
// DropIfFull or because ctx ended first, is counted against its type. Events emitted
// after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.ch <- event:
		default:
			d.drop(event.Type)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event.Type)
	}
}

func (d *Dispatcher) drop(t Type) {
	if t >= typeCount {
		t = TypeUnknown
	}
	d.dropped[t].Add(1)
}

// Close stops accepting events and returns once every queued event reached the sink.
// Emit calls blocked on a full buffer finish queueing first.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	<-d.drained
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var n uint64
	for i := range d.dropped {
		n += d.dropped[i].Load()
	}
	return n
}

// DroppedByType breaks Dropped down by event type. Types without drops are omitted.
func (d *Dispatcher) DroppedByType() map[Type]uint64 {
	out := map[Type]uint64{}
	if d == nil {
		return out
	}
	for i := range d.dropped {
		if n := d.dropped[i].Load(); n > 0 {
			out[Type(i)] = n
		}
	}
	return out
}
