// Package monitor exposes the live tracking state over HTTP and renders
// charts and plots of a run for tuning.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/tracking"
)

// DefaultHistory is the number of frames kept when NewRecorder is given a
// non-positive capacity (about 30s at 30fps).
const DefaultHistory = 900

// Sample is one frame of tracking output.
type Sample struct {
	FrameIndex int64               `json:"frame"`
	Timestamp  time.Time           `json:"timestamp"`
	Active     bool                `json:"active"`
	Committed  bool                `json:"committed"`
	State      tracking.TrackState `json:"state"`
	Source     tracking.Source     `json:"source,omitempty"`
	Confidence float64             `json:"confidence"`
	BBox       detect.BBox         `json:"bbox"`
	Position   tracking.Vec2       `json:"normalized_position"`
}

// SampleFrom builds a Sample from a frame's committed target, falling back
// to the diagnostic snapshot when nothing was committed.
func SampleFrom(info tracking.TrackingInfo, target *tracking.TrackedTarget) Sample {
	if target != nil {
		return Sample{
			FrameIndex: target.FrameIndex,
			Timestamp:  target.Timestamp,
			Active:     target.TrackingActive,
			Committed:  true,
			State:      target.State,
			Source:     target.Source,
			Confidence: target.Confidence,
			BBox:       target.BBox,
			Position:   target.NormalizedPosition,
		}
	}
	return Sample{
		FrameIndex: info.FrameIndex,
		Active:     info.Active,
		State:      info.State,
	}
}

// Recorder keeps a bounded ring of recent samples and the latest
// diagnostic snapshot. It is safe for concurrent use.
type Recorder struct {
	mu      sync.RWMutex
	samples []Sample
	next    int
	full    bool
	info    tracking.TrackingInfo
	total   int64
}

// NewRecorder creates a Recorder holding up to capacity samples.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Recorder{
		samples: make([]Sample, capacity),
		info:    tracking.TrackingInfo{State: tracking.StateIdle},
	}
}

// Record stores the outcome of one frame.
func (r *Recorder) Record(info tracking.TrackingInfo, target *tracking.TrackedTarget) {
	s := SampleFrom(info, target)
	if s.Timestamp.IsZero() && target == nil {
		s.Timestamp = r.lastTimestamp()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// SetInfo replaces the snapshot without adding a sample, e.g. after an
// operator command between frames.
func (r *Recorder) SetInfo(info tracking.TrackingInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
}

func (r *Recorder) lastTimestamp() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full && r.next == 0 {
		return time.Time{}
	}
	return r.samples[(r.next-1+len(r.samples))%len(r.samples)].Timestamp
}

// Info returns the latest snapshot.
func (r *Recorder) Info() tracking.TrackingInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// History returns up to limit most recent samples, oldest first. limit <= 0
// returns everything retained.
func (r *Recorder) History(limit int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.samples)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Sample, 0, limit)
	start := r.next - limit
	for i := 0; i < limit; i++ {
		out = append(out, r.samples[(start+i+len(r.samples))%len(r.samples)])
	}
	return out
}

// Total returns the number of frames recorded since creation.
func (r *Recorder) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
