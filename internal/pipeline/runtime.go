// Package pipeline runs the tracking engine: it owns the state manager,
// feeds it detector frames in order, applies operator commands between
// frames and publishes each frame's outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/monitor"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking"
)

// ErrNotRunning is returned by commands sent while Run is not active.
var ErrNotRunning = errors.New("tracking runtime not running")

// TargetSink receives every frame's outcome. target is nil when nothing was
// committed; the follower should hold position.
type TargetSink interface {
	PublishTarget(ctx context.Context, frame detect.Frame, target *tracking.TrackedTarget) error
}

// Config wires a Runtime.
type Config struct {
	Manager  *tracking.Manager // required
	Recorder *monitor.Recorder
	Plotter  *monitor.TrackPlotter
	Sink     TargetSink
	Images   ImageProvider
	Clock    timeutil.Clock

	// StampFrames fills missing frame timestamps from Clock. Live links
	// set it; replays leave stamps empty so timing derives from frame
	// indices.
	StampFrames bool

	// AutoSelect, when set, starts a session on the first frame carrying
	// this ephemeral id, as if the operator had selected it after that
	// frame. Used for unattended replays.
	AutoSelect *int64
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdClear
)

type command struct {
	kind  commandKind
	id    int64
	reply chan commandResult
}

type commandResult struct {
	session tracking.Session
	err     error
}

// Runtime is the single owner of the tracking manager. All mutation
// happens on the goroutine executing Run.
type Runtime struct {
	cfg  Config
	mgr  *tracking.Manager
	cmds chan command

	runMu   sync.Mutex
	stopped chan struct{} // non-nil while Run executes

	last         detect.FrameDetections
	hasLast      bool
	frames       atomic.Int64
	autoSelected bool
}

// New creates a Runtime.
func New(cfg Config) (*Runtime, error) {
	if cfg.Manager == nil {
		return nil, errors.New("pipeline: manager is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Runtime{
		cfg:  cfg,
		mgr:  cfg.Manager,
		cmds: make(chan command),
	}, nil
}

type sourceResult struct {
	fd  detect.FrameDetections
	err error
}

// Run processes frames from src until it is exhausted (returns nil) or ctx
// ends. Commands are accepted only while Run is executing.
func (r *Runtime) Run(ctx context.Context, src FrameSource) error {
	r.runMu.Lock()
	if r.stopped != nil {
		r.runMu.Unlock()
		return errors.New("pipeline: runtime already running")
	}
	stopped := make(chan struct{})
	r.stopped = stopped
	r.runMu.Unlock()
	defer func() {
		r.runMu.Lock()
		r.stopped = nil
		r.runMu.Unlock()
		close(stopped)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Next may block on a link, so it runs apart from the command loop.
	frames := make(chan sourceResult)
	go func() {
		for {
			fd, err := src.Next(ctx)
			select {
			case frames <- sourceResult{fd: fd, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	Opsf("runtime started")
	for {
		select {
		case <-ctx.Done():
			Opsf("runtime stopping after %d frames: %v", r.frames.Load(), ctx.Err())
			return ctx.Err()

		case cmd := <-r.cmds:
			cmd.reply <- r.apply(cmd)

		case res := <-frames:
			if errors.Is(res.err, io.EOF) {
				Opsf("source exhausted after %d frames", r.frames.Load())
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("frame source failed: %w", res.err)
			}
			r.processFrame(ctx, res.fd)
		}
	}
}

func (r *Runtime) processFrame(ctx context.Context, fd detect.FrameDetections) {
	frame := fd.Frame
	if frame.Timestamp.IsZero() && r.cfg.StampFrames {
		frame.Timestamp = r.cfg.Clock.Now()
	}
	if frame.Image == nil && r.cfg.Images != nil {
		img, err := r.cfg.Images.ImageFor(frame)
		if err != nil {
			Diagf("no image for frame %d: %v", frame.Index, err)
		} else {
			frame.Image = img
		}
	}
	if frame.Image != nil && (frame.Width == 0 || frame.Height == 0) {
		b := frame.Image.Bounds()
		frame.Width, frame.Height = b.Dx(), b.Dy()
	}

	start := r.cfg.Clock.Now()
	target := r.mgr.Update(fd.Detections, &frame)
	info := r.mgr.GetTrackingInfo()
	Tracef("frame=%d detections=%d state=%s took=%s", frame.Index, len(fd.Detections), info.State, r.cfg.Clock.Since(start))

	r.frames.Add(1)
	r.last = detect.FrameDetections{Frame: frame, Detections: append([]detect.Detection(nil), fd.Detections...)}
	r.hasLast = true

	if r.cfg.Recorder != nil {
		r.cfg.Recorder.Record(info, target)
	}
	if r.cfg.Plotter != nil {
		r.cfg.Plotter.Add(monitor.SampleFrom(info, target))
	}
	if r.cfg.Sink != nil {
		if err := r.cfg.Sink.PublishTarget(ctx, frame, target); err != nil {
			Opsf("target sink failed on frame %d: %v", frame.Index, err)
		}
	}

	if r.cfg.AutoSelect != nil && !r.autoSelected && !info.Active {
		if _, err := tracking.FindByEphemeralID(fd.Detections, *r.cfg.AutoSelect); err == nil {
			r.autoSelected = true
			res := r.apply(command{kind: cmdStart, id: *r.cfg.AutoSelect})
			if res.err != nil {
				Opsf("auto-select of id=%d failed: %v", *r.cfg.AutoSelect, res.err)
			}
		}
	}
}

func (r *Runtime) apply(cmd command) commandResult {
	var res commandResult
	switch cmd.kind {
	case cmdStart:
		if !r.hasLast {
			res.err = fmt.Errorf("%w: %d (no frame received yet)", tracking.ErrNoSuchDetection, cmd.id)
			break
		}
		det, err := tracking.FindByEphemeralID(r.last.Detections, cmd.id)
		if err != nil {
			res.err = err
			break
		}
		frame := r.last.Frame
		res.session, res.err = r.mgr.StartTracking(det, &frame)
		if res.err == nil {
			Opsf("operator selected id=%d on frame %d: session %s", cmd.id, frame.Index, res.session.ID)
		}
	case cmdClear:
		r.mgr.Clear()
		Opsf("operator cleared tracking")
	}
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.SetInfo(r.mgr.GetTrackingInfo())
	}
	return res
}

func (r *Runtime) send(ctx context.Context, cmd command) (commandResult, error) {
	r.runMu.Lock()
	stopped := r.stopped
	r.runMu.Unlock()
	if stopped == nil {
		return commandResult{}, ErrNotRunning
	}
	cmd.reply = make(chan commandResult, 1)
	select {
	case r.cmds <- cmd:
	case <-stopped:
		return commandResult{}, ErrNotRunning
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// StartTracking selects the detection carrying ephemeralID in the most
// recent frame. It implements monitor.Controller.
func (r *Runtime) StartTracking(ctx context.Context, ephemeralID int64) (tracking.Session, error) {
	res, err := r.send(ctx, command{kind: cmdStart, id: ephemeralID})
	if err != nil {
		return tracking.Session{}, err
	}
	return res.session, res.err
}

// Clear ends the current session.
func (r *Runtime) Clear(ctx context.Context) error {
	_, err := r.send(ctx, command{kind: cmdClear})
	return err
}

// Frames returns the number of frames processed by the last or current Run.
// It must only be called after Run returns.
func (r *Runtime) Frames() int64 { return r.frames.Load() }
