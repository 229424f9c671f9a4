package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(timeutil.NewMockClock(t0.Add(time.Hour)))
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateDown())
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, s.MigrateUp())
	require.NoError(t, s.MigrateUp(), "no change is not an error")
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordEvent(context.Background(), tracking.Event{
		Kind: tracking.EventSessionStarted, SessionID: uuid.New(), StableTrackID: 1, At: t0,
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	sessions, err := s.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRecordEvent_SessionLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	sid := uuid.New()

	at := func(frame int64) time.Time { return t0.Add(time.Duration(frame) * time.Second / 30) }
	events := []tracking.Event{
		{Kind: tracking.EventSessionStarted, FrameIndex: 0, EphemeralID: detect.IDPtr(5)},
		{Kind: tracking.EventIDSwitch, FrameIndex: 53, PrevID: detect.IDPtr(5), EphemeralID: detect.IDPtr(8)},
		{Kind: tracking.EventLost, FrameIndex: 100, PrevID: detect.IDPtr(8), Detail: "awaiting re-identification"},
		{Kind: tracking.EventReidentified, FrameIndex: 115, EphemeralID: detect.IDPtr(12), Similarity: 0.82},
		{Kind: tracking.EventCleared, FrameIndex: 200, Ended: true},
	}
	for _, ev := range events {
		ev.SessionID = sid
		ev.StableTrackID = 7
		ev.At = at(ev.FrameIndex)
		require.NoError(t, s.RecordEvent(ctx, ev))
	}

	sessions, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, sid.String(), got.ID)
	assert.Equal(t, int64(7), got.StableTrackID)
	assert.Equal(t, at(0), got.StartedAt)
	assert.Equal(t, 1, got.IDSwitches)
	assert.Equal(t, 1, got.Reidentifications)
	assert.Equal(t, 5, got.Events)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, at(200), *got.EndedAt)
	assert.Equal(t, "cleared", got.EndReason)

	recs, err := s.ListEvents(ctx, sid.String())
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, tracking.EventIDSwitch, recs[1].Kind)
	assert.Equal(t, int64(5), *recs[1].PrevID)
	assert.Equal(t, int64(8), *recs[1].EphemeralID)
	assert.Nil(t, recs[2].EphemeralID)
	assert.Equal(t, "awaiting re-identification", recs[2].Detail)
	assert.InDelta(t, 0.82, recs[3].Similarity, 1e-12)
	assert.Equal(t, t0.Add(time.Hour), recs[4].RecordedAt)

	none, err := s.ListEvents(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListSessions_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordEvent(ctx, tracking.Event{
			Kind:          tracking.EventSessionStarted,
			SessionID:     uuid.New(),
			StableTrackID: int64(i + 1),
			At:            t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	sessions, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(3), sessions[0].StableTrackID)
	assert.Equal(t, int64(2), sessions[1].StableTrackID)
	assert.Nil(t, sessions[0].EndedAt)
}

func TestRecordEvent_FromManager(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	cfg := tracking.DefaultConfig()
	cfg.EnableAppearance = false
	m, err := tracking.NewManager(cfg)
	require.NoError(t, err)
	m.SetEventSink(tracking.EventSinkFunc(func(ev tracking.Event) {
		require.NoError(t, s.RecordEvent(ctx, ev))
	}))

	box := detect.BBox{X: 100, Y: 100, W: 40, H: 80}
	sess, err := m.StartTracking(detect.Detection{EphemeralID: detect.IDPtr(5), BBox: box, Confidence: 0.9}, &detect.Frame{Index: 0, Timestamp: t0})
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		m.Update(nil, &detect.Frame{Index: i, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
	require.False(t, m.IsTrackingActive())

	sessions, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID.String(), sessions[0].ID)
	assert.Equal(t, "lost", sessions[0].EndReason)
	assert.Equal(t, t0.Add(5*time.Second), *sessions[0].EndedAt)
}
