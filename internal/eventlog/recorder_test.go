package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedWriter blocks every write until release is closed.
type gatedWriter struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	got     []tracking.Event
}

func (g *gatedWriter) RecordEvent(_ context.Context, ev tracking.Event) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	g.mu.Lock()
	g.got = append(g.got, ev)
	g.mu.Unlock()
	return nil
}

func TestAsyncRecorder_DropsWhenFull(t *testing.T) {
	t.Parallel()
	g := &gatedWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := NewAsyncRecorder(g, 1)

	ev := tracking.Event{Kind: tracking.EventIDSwitch, SessionID: uuid.New()}
	r.RecordEvent(ev)
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never started")
	}
	r.RecordEvent(ev) // buffered
	r.RecordEvent(ev) // dropped

	close(g.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	written, failed, dropped := r.Stats()
	assert.Equal(t, int64(2), written)
	assert.Zero(t, failed)
	assert.Equal(t, int64(1), dropped)

	r.RecordEvent(ev)
	_, _, dropped = r.Stats()
	assert.Equal(t, int64(2), dropped, "events after close are dropped")
	require.NoError(t, r.Close(ctx), "close is idempotent")
}

func TestAsyncRecorder_WritesToStore(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	r := NewAsyncRecorder(s, 16)

	sid := uuid.New()
	r.RecordEvent(tracking.Event{Kind: tracking.EventSessionStarted, SessionID: sid, StableTrackID: 1, At: t0})
	r.RecordEvent(tracking.Event{Kind: tracking.EventExpired, SessionID: sid, StableTrackID: 1, At: t0.Add(time.Second), FrameIndex: 30, Ended: true})
	require.NoError(t, r.Close(context.Background()))

	sessions, err := s.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "expired", sessions[0].EndReason)
	assert.Equal(t, 2, sessions[0].Events)
}

func TestAsyncRecorder_CountsFailures(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	require.NoError(t, s.Close())

	r := NewAsyncRecorder(s, 4)
	r.RecordEvent(tracking.Event{Kind: tracking.EventSessionStarted, SessionID: uuid.New()})
	require.NoError(t, r.Close(context.Background()))
	_, failed, _ := r.Stats()
	assert.Equal(t, int64(1), failed)
}
