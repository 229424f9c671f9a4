package pipeline

import (
	"context"
	"image"
	"io"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/timeutil"
)

// FrameSource yields detector frames in capture order. Next returns io.EOF
// when the stream ends.
type FrameSource interface {
	Next(ctx context.Context) (detect.FrameDetections, error)
}

// ImageProvider supplies the camera image matching a detector frame.
type ImageProvider interface {
	ImageFor(frame detect.Frame) (image.Image, error)
}

// pacedSource releases frames no faster than the nominal frame rate, so a
// recorded log replays in real time.
type pacedSource struct {
	src    FrameSource
	ticker timeutil.Ticker
}

// Paced wraps src so each frame waits for the next tick of a fps ticker
// from clock. Call the returned stop function when done.
func Paced(src FrameSource, clock timeutil.Clock, fps float64) (FrameSource, func()) {
	t := clock.NewTicker(timeutil.FramePeriod(fps))
	return &pacedSource{src: src, ticker: t}, t.Stop
}

func (p *pacedSource) Next(ctx context.Context) (detect.FrameDetections, error) {
	select {
	case <-ctx.Done():
		return detect.FrameDetections{}, ctx.Err()
	case <-p.ticker.C():
	}
	return p.src.Next(ctx)
}

// SliceSource replays an in-memory sequence of frames.
type SliceSource struct {
	frames []detect.FrameDetections
	next   int
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames []detect.FrameDetections) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements FrameSource.
func (s *SliceSource) Next(ctx context.Context) (detect.FrameDetections, error) {
	if err := ctx.Err(); err != nil {
		return detect.FrameDetections{}, err
	}
	if s.next >= len(s.frames) {
		return detect.FrameDetections{}, io.EOF
	}
	fd := s.frames[s.next]
	s.next++
	return fd, nil
}
