package eventlog

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/skyfollow/internal/tracking"
)

// EventWriter persists one event.
type EventWriter interface {
	RecordEvent(ctx context.Context, ev tracking.Event) error
}

// AsyncRecorder decouples the frame path from storage. RecordEvent never
// blocks: when the buffer is full the event is dropped and counted.
type AsyncRecorder struct {
	w       EventWriter
	ch      chan tracking.Event
	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	isClosed  bool
}

// NewAsyncRecorder starts a background writer with the given buffer size.
func NewAsyncRecorder(w EventWriter, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &AsyncRecorder{
		w:    w,
		ch:   make(chan tracking.Event, buffer),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// RecordEvent implements tracking.EventSink.
func (r *AsyncRecorder) RecordEvent(ev tracking.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isClosed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.dropped.Add(1)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for ev := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.w.RecordEvent(ctx, ev)
		cancel()
		if err != nil {
			r.failed.Add(1)
			log.Printf("[eventlog] failed to record %s for session %s: %v", ev.Kind, ev.SessionID, err)
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting events and waits for buffered events to be
// written, or for ctx to end.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.isClosed = true
		close(r.ch)
		r.mu.Unlock()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns counts of written, failed and dropped events.
func (r *AsyncRecorder) Stats() (written, failed, dropped int64) {
	return r.written.Load(), r.failed.Load(), r.dropped.Load()
}
