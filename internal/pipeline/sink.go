package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/tracking"
)

// TargetSinkFunc adapts a function to TargetSink.
type TargetSinkFunc func(ctx context.Context, frame detect.Frame, target *tracking.TrackedTarget) error

// PublishTarget calls f.
func (f TargetSinkFunc) PublishTarget(ctx context.Context, frame detect.Frame, target *tracking.TrackedTarget) error {
	return f(ctx, frame, target)
}

// OutputLine is one record written by JSONLSink.
type OutputLine struct {
	Frame     int64                   `json:"frame"`
	Timestamp *time.Time              `json:"ts,omitempty"`
	Target    *tracking.TrackedTarget `json:"target"`
}

// JSONLSink writes one JSON object per frame, with a null target on frames
// where nothing was committed.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

// NewJSONLSink writes to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// PublishTarget implements TargetSink.
func (s *JSONLSink) PublishTarget(_ context.Context, frame detect.Frame, target *tracking.TrackedTarget) error {
	line := OutputLine{Frame: frame.Index, Target: target}
	if !frame.Timestamp.IsZero() {
		ts := frame.Timestamp
		line.Timestamp = &ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(line); err != nil {
		return fmt.Errorf("failed to write output line: %w", err)
	}
	s.n++
	return nil
}

// Lines returns the number of lines written.
func (s *JSONLSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
