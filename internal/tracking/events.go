package tracking

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies session lifecycle events.
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventIDSwitch       EventKind = "id_switch"
	EventLost           EventKind = "lost"
	EventReidentified   EventKind = "reidentified"
	EventExpired        EventKind = "expired"
	EventCleared        EventKind = "cleared"
)

// Event is emitted on every session transition worth auditing.
type Event struct {
	Kind          EventKind
	SessionID     uuid.UUID
	StableTrackID int64
	FrameIndex    int64
	At            time.Time
	EphemeralID   *int64
	PrevID        *int64
	Similarity    float64
	Detail        string
	Ended         bool // the session ends with this event
}

// EventSink receives events from the frame path. Implementations must not
// block.
type EventSink interface {
	RecordEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// RecordEvent calls f(ev).
func (f EventSinkFunc) RecordEvent(ev Event) { f(ev) }
