package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ProgressSink receives progress events. It is called synchronously from the
// pipeline goroutine; a sink that panics is ignored for the rest of the event.
type ProgressSink func(ProgressEvent)

type sinkCtxKey struct{}

// ContextWithSink attaches a sink to ctx. Events of operations running with
// ctx go to it in addition to the orchestrator's own sink.
func ContextWithSink(ctx context.Context, sink ProgressSink) context.Context {
	return context.WithValue(ctx, sinkCtxKey{}, sink)
}

func sinkFromContext(ctx context.Context) ProgressSink {
	sink, _ := ctx.Value(sinkCtxKey{}).(ProgressSink)
	return sink
}

// deliver calls sink and reports a recovered panic as an error.
func deliver(sink ProgressSink, ev ProgressEvent) (err error) {
	if sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress sink panicked: %v", r)
		}
	}()
	sink(ev)
	return nil
}

// ChannelSink buffers events for a consumer on another goroutine. Send never
// blocks: events arriving while the buffer is full are dropped and counted.
type ChannelSink struct {
	mu      sync.RWMutex
	ch      chan ProgressEvent
	closed  bool
	dropped atomic.Int64
}

// NewChannelSink returns a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan ProgressEvent, size)}
}

// Send enqueues ev or drops it. Sending after Close drops silently.
func (s *ChannelSink) Send(ev ProgressEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Sink returns Send as a ProgressSink.
func (s *ChannelSink) Sink() ProgressSink { return s.Send }

// Events returns the receive side. It is closed by Close.
func (s *ChannelSink) Events() <-chan ProgressEvent { return s.ch }

// Dropped returns how many events were discarded.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Close closes the event channel. It is safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
