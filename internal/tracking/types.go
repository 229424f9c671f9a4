package tracking

import (
	"errors"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/google/uuid"
)

// ErrNoSuchDetection is returned when an operator selects an ephemeral id
// that is not present in the current frame.
var ErrNoSuchDetection = errors.New("no detection with that id")

// TrackState is the session state.
type TrackState string

const (
	StateIdle            TrackState = "idle"
	StateIDMatch         TrackState = "id_match"
	StateSpatialMatch    TrackState = "spatial_match"
	StatePredicted       TrackState = "predicted"
	StateLost            TrackState = "lost"
	StateAppearanceMatch TrackState = "appearance_match" // transient, resolves to id_match
)

// Source names the tier that produced a committed target.
type Source string

const (
	SourceIdentifier Source = "id"
	SourceSpatial    Source = "spatial"
	SourcePrediction Source = "prediction"
	SourceAppearance Source = "appearance"
)

// Vec2 is a 2D point.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TrackedTarget is the committed output for one frame.
type TrackedTarget struct {
	StableTrackID      int64       `json:"stable_track_id"`
	ClassID            int         `json:"class_id"`
	BBox               detect.BBox `json:"bbox"`
	NormalizedPosition Vec2        `json:"normalized_position"` // frame centre origin, +y down
	Confidence         float64     `json:"confidence"`
	TrackingActive     bool        `json:"tracking_active"`

	EphemeralID *int64     `json:"ephemeral_id,omitempty"`
	State       TrackState `json:"state"`
	Source      Source     `json:"source"`
	FrameIndex  int64      `json:"frame"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Session identifies one following session.
type Session struct {
	ID            uuid.UUID `json:"id"`
	StableTrackID int64     `json:"stable_track_id"`
	ClassID       int       `json:"class_id"`
	EphemeralID   *int64    `json:"ephemeral_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FrameIndex    int64     `json:"frame"`
}

// TrackingInfo is a read-only diagnostic snapshot.
type TrackingInfo struct {
	Active                 bool        `json:"active"`
	State                  TrackState  `json:"state"`
	Strategy               Strategy    `json:"strategy"`
	SessionID              string      `json:"session_id,omitempty"`
	StableTrackID          int64       `json:"stable_track_id,omitempty"`
	EphemeralID            *int64      `json:"ephemeral_id,omitempty"`
	ClassID                int         `json:"class_id"`
	BBox                   detect.BBox `json:"bbox"`
	Confidence             float64     `json:"confidence"`
	FramesSinceLastIDMatch int         `json:"frames_since_last_id_match"`
	FramesSinceLost        int         `json:"frames_since_lost"`
	IDSwitches             int         `json:"id_switches"`
	Reidentifications      int         `json:"reidentifications"`
	Speed                  float64     `json:"speed_px_s"`
	MemoryEntries          int         `json:"memory_entries"`
	LostEntries            int         `json:"lost_entries"`
	FrameIndex             int64       `json:"frame"`
}
