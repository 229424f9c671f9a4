package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/monitor"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

// chanSource hands frames to the runtime as the test pushes them.
type chanSource struct {
	ch chan sourceResult
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan sourceResult)} }

func (c *chanSource) Next(ctx context.Context) (detect.FrameDetections, error) {
	select {
	case <-ctx.Done():
		return detect.FrameDetections{}, ctx.Err()
	case r, ok := <-c.ch:
		if !ok {
			return detect.FrameDetections{}, io.EOF
		}
		return r.fd, r.err
	}
}

func (c *chanSource) push(t *testing.T, fd detect.FrameDetections) {
	t.Helper()
	select {
	case c.ch <- sourceResult{fd: fd}:
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not take frame")
	}
}

func personAt(id int64, x float64) detect.Detection {
	return detect.Detection{
		EphemeralID: detect.IDPtr(id),
		BBox:        detect.BBox{X: x, Y: 200, W: 40, H: 80},
		Confidence:  0.9,
	}
}

func frame(i int64, dets ...detect.Detection) detect.FrameDetections {
	return detect.FrameDetections{
		Frame:      detect.Frame{Index: i, Timestamp: t0.Add(time.Duration(i) * timeutil.FramePeriod(30)), Width: 640, Height: 480},
		Detections: dets,
	}
}

type harness struct {
	rt   *Runtime
	mgr  *tracking.Manager
	rec  *monitor.Recorder
	out  *bytes.Buffer
	src  *chanSource
	errc chan error
}

func startHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := tracking.DefaultConfig()
	cfg.EnableAppearance = false
	mgr, err := tracking.NewManager(cfg)
	require.NoError(t, err)

	h := &harness{mgr: mgr, rec: monitor.NewRecorder(100), out: &bytes.Buffer{}, src: newChanSource(), errc: make(chan error, 1)}
	rc := Config{Manager: mgr, Recorder: h.rec, Sink: NewJSONLSink(h.out)}
	if mutate != nil {
		mutate(&rc)
	}
	h.rt, err = New(rc)
	require.NoError(t, err)

	go func() { h.errc <- h.rt.Run(context.Background(), h.src) }()
	require.Eventually(t, func() bool {
		h.rt.runMu.Lock()
		defer h.rt.runMu.Unlock()
		return h.rt.stopped != nil
	}, 5*time.Second, time.Millisecond)
	return h
}

// waitFrames blocks until the recorder has seen n frames.
func (h *harness) waitFrames(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.Total() >= n }, 5*time.Second, time.Millisecond)
}

func (h *harness) finish(t *testing.T) error {
	t.Helper()
	close(h.src.ch)
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
		return nil
	}
}

func (h *harness) lines(t *testing.T) []OutputLine {
	t.Helper()
	var out []OutputLine
	dec := json.NewDecoder(h.out)
	for dec.More() {
		var l OutputLine
		require.NoError(t, dec.Decode(&l))
		out = append(out, l)
	}
	return out
}

func TestNew_RequiresManager(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRuntime_OperatorSelectsAndFollows(t *testing.T) {
	t.Parallel()
	h := startHarness(t, nil)
	ctx := context.Background()

	h.src.push(t, frame(0, personAt(5, 100), personAt(9, 400)))
	h.waitFrames(t, 1)

	sess, err := h.rt.StartTracking(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.StableTrackID)
	assert.Equal(t, int64(0), sess.FrameIndex)
	assert.True(t, h.rec.Info().Active, "command refreshes the snapshot")

	for i := int64(1); i <= 4; i++ {
		h.src.push(t, frame(i, personAt(5, 100+float64(i)*5), personAt(9, 400)))
	}
	h.waitFrames(t, 5)
	require.NoError(t, h.finish(t))
	assert.Equal(t, int64(5), h.rt.Frames())

	lines := h.lines(t)
	require.Len(t, lines, 5)
	assert.Nil(t, lines[0].Target, "nothing followed before selection")
	for _, l := range lines[1:] {
		require.NotNil(t, l.Target)
		assert.Equal(t, tracking.StateIDMatch, l.Target.State)
		assert.Equal(t, int64(5), *l.Target.EphemeralID)
	}
	assert.Equal(t, 120.0, lines[4].Target.BBox.X)

	hist := h.rec.History(0)
	require.Len(t, hist, 5)
	assert.False(t, hist[0].Committed)
	assert.True(t, hist[4].Committed)
}

func TestRuntime_StartUnknownID(t *testing.T) {
	t.Parallel()
	h := startHarness(t, nil)
	ctx := context.Background()

	_, err := h.rt.StartTracking(ctx, 5)
	assert.ErrorIs(t, err, tracking.ErrNoSuchDetection, "no frame yet")

	h.src.push(t, frame(0, personAt(5, 100)))
	h.waitFrames(t, 1)
	_, err = h.rt.StartTracking(ctx, 77)
	assert.ErrorIs(t, err, tracking.ErrNoSuchDetection)
	assert.False(t, h.mgr.IsTrackingActive())
	require.NoError(t, h.finish(t))
}

func TestRuntime_Clear(t *testing.T) {
	t.Parallel()
	h := startHarness(t, nil)
	ctx := context.Background()

	h.src.push(t, frame(0, personAt(5, 100)))
	h.waitFrames(t, 1)
	_, err := h.rt.StartTracking(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, h.rt.Clear(ctx))
	assert.False(t, h.mgr.IsTrackingActive())
	assert.False(t, h.rec.Info().Active)
	require.NoError(t, h.finish(t))
}

func TestRuntime_CommandsNeedRunningLoop(t *testing.T) {
	t.Parallel()
	mgr, err := tracking.NewManager(tracking.DefaultConfig())
	require.NoError(t, err)
	rt, err := New(Config{Manager: mgr})
	require.NoError(t, err)

	_, err = rt.StartTracking(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, rt.Clear(context.Background()), ErrNotRunning)
}

func TestRuntime_SourceError(t *testing.T) {
	t.Parallel()
	h := startHarness(t, nil)
	boom := errors.New("uart unplugged")
	h.src.ch <- sourceResult{err: boom}
	select {
	case err := <-h.errc:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntime_ContextCancel(t *testing.T) {
	t.Parallel()
	mgr, err := tracking.NewManager(tracking.DefaultConfig())
	require.NoError(t, err)
	rt, err := New(Config{Manager: mgr})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rt.Run(ctx, newChanSource()), context.Canceled)
}

func TestRuntime_StampsAndImages(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(t0)
	var got []detect.Frame
	images := imageFunc(func(f detect.Frame) (image.Image, error) {
		if f.Index == 1 {
			return nil, errors.New("decoder behind")
		}
		return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
	})
	h := startHarness(t, func(c *Config) {
		c.Clock = clock
		c.StampFrames = true
		c.Images = images
		c.Sink = TargetSinkFunc(func(_ context.Context, f detect.Frame, _ *tracking.TrackedTarget) error {
			got = append(got, f)
			return nil
		})
	})

	h.src.push(t, detect.FrameDetections{Frame: detect.Frame{Index: 0}})
	h.src.push(t, detect.FrameDetections{Frame: detect.Frame{Index: 1}})
	h.waitFrames(t, 2)
	require.NoError(t, h.finish(t))

	require.Len(t, got, 2)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.NotNil(t, got[0].Image)
	assert.Equal(t, 64, got[0].Width)
	assert.Equal(t, 48, got[0].Height)
	assert.Nil(t, got[1].Image, "a missing image is not fatal")
	assert.Zero(t, got[1].Width)
}

type imageFunc func(detect.Frame) (image.Image, error)

func (f imageFunc) ImageFor(fr detect.Frame) (image.Image, error) { return f(fr) }

func TestRuntime_SliceSourceReplay(t *testing.T) {
	t.Parallel()
	mgr, err := tracking.NewManager(tracking.DefaultConfig())
	require.NoError(t, err)
	var out bytes.Buffer
	sink := NewJSONLSink(&out)
	rt, err := New(Config{Manager: mgr, Sink: sink})
	require.NoError(t, err)

	src := NewSliceSource([]detect.FrameDetections{frame(0), frame(1), frame(2)})
	require.NoError(t, rt.Run(context.Background(), src))
	assert.Equal(t, 3, sink.Lines())
	assert.Contains(t, out.String(), `"target":null`)
}

func TestRuntime_AutoSelect(t *testing.T) {
	t.Parallel()
	cfg := tracking.DefaultConfig()
	cfg.EnableAppearance = false
	mgr, err := tracking.NewManager(cfg)
	require.NoError(t, err)
	plotter := monitor.NewTrackPlotter("auto")
	var out bytes.Buffer
	rt, err := New(Config{Manager: mgr, Sink: NewJSONLSink(&out), Plotter: plotter, AutoSelect: detect.IDPtr(5)})
	require.NoError(t, err)

	src := NewSliceSource([]detect.FrameDetections{
		frame(0, personAt(9, 400)),
		frame(1, personAt(5, 100)),
		frame(2, personAt(5, 105)),
	})
	require.NoError(t, rt.Run(context.Background(), src))
	assert.Equal(t, 3, plotter.Len())

	var lines []OutputLine
	dec := json.NewDecoder(&out)
	for dec.More() {
		var l OutputLine
		require.NoError(t, dec.Decode(&l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 3)
	assert.Nil(t, lines[0].Target)
	assert.Nil(t, lines[1].Target, "selection takes effect from the next frame")
	require.NotNil(t, lines[2].Target)
	assert.Equal(t, 105.0, lines[2].Target.BBox.X)
}
