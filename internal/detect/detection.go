package detect

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"
)

// ErrInvalidDetection is returned when a detection cannot be used to seed a
// tracking session.
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is a single object observation from the detector/associator.
// EphemeralID is nil when the associator did not assign an id.
type Detection struct {
	EphemeralID *int64    `json:"id,omitempty"`
	ClassID     int       `json:"class"`
	BBox        BBox      `json:"bbox"`
	Confidence  float64   `json:"conf"`
	Timestamp   time.Time `json:"-"`
}

// ID returns the ephemeral id and whether one is present.
func (d Detection) ID() (int64, bool) {
	if d.EphemeralID == nil {
		return 0, false
	}
	return *d.EphemeralID, true
}

// HasID reports whether the detection carries the given ephemeral id.
func (d Detection) HasID(id int64) bool {
	v, ok := d.ID()
	return ok && v == id
}

// Validate checks that the detection is usable as a tracking seed.
func (d Detection) Validate() error {
	if !d.BBox.Valid() {
		return fmt.Errorf("%w: bbox %+v", ErrInvalidDetection, d.BBox)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidDetection, d.Confidence)
	}
	if d.ClassID < 0 {
		return fmt.Errorf("%w: class %d", ErrInvalidDetection, d.ClassID)
	}
	return nil
}

// IDPtr is a convenience for building detections with an ephemeral id.
func IDPtr(id int64) *int64 { return &id }

// Frame carries the per-frame context passed alongside detections. Image may
// be nil when no pixels are available, in which case appearance features are
// not extracted for the frame.
type Frame struct {
	Index     int64
	Timestamp time.Time
	Width     int
	Height    int
	Image     image.Image
}

// Size returns the frame dimensions, preferring the image bounds.
func (f *Frame) Size() (int, int) {
	if f == nil {
		return 0, 0
	}
	if f.Image != nil {
		b := f.Image.Bounds()
		return b.Dx(), b.Dy()
	}
	return f.Width, f.Height
}
