// Package motion predicts where the committed target will be when the
// detector loses it for a few frames.
//
// The predictor keeps a short history of box centers and sizes and smooths
// the frame-to-frame velocity and size rate with an exponential moving
// average. It has no notion of identity; the state manager resets it at the
// start of every session.
package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
)

// Config holds the predictor parameters.
type Config struct {
	HistoryLength int     // Samples kept
	Alpha         float64 // EMA weight on the newest velocity/size-rate sample [0,1]
	NominalFPS    float64 // Used when timestamps are missing or non-increasing
	MaxPredictDt  float64 // Seconds; caps extrapolation horizon
	MinBoxSize    float64 // Pixels; predicted width/height never drop below this
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLength: 10,
		Alpha:         0.5,
		NominalFPS:    30,
		MaxPredictDt:  1.0,
		MinBoxSize:    4,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.HistoryLength < 2 {
		return fmt.Errorf("motion history length must be at least 2, got %d", c.HistoryLength)
	}
	if math.IsNaN(c.Alpha) || c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("motion alpha must be between 0 and 1, got %f", c.Alpha)
	}
	if !(c.NominalFPS > 0) {
		return fmt.Errorf("nominal fps must be positive, got %f", c.NominalFPS)
	}
	if !(c.MaxPredictDt > 0) {
		return fmt.Errorf("max predict dt must be positive, got %f", c.MaxPredictDt)
	}
	if !(c.MinBoxSize > 0) {
		return fmt.Errorf("min box size must be positive, got %f", c.MinBoxSize)
	}
	return nil
}

// Sample is one measured box center and size.
type Sample struct {
	CX, CY    float64
	W, H      float64
	Timestamp time.Time
}

// Predictor tracks smoothed velocity and size rate of a single target.
// It is not safe for concurrent use; the owning state manager serialises
// access.
type Predictor struct {
	cfg Config

	history []Sample // oldest first, len <= cfg.HistoryLength

	// Smoothed rates in pixels per second.
	vx, vy float64
	vw, vh float64
	primed bool // true once at least one rate sample has been folded in
}

// NewPredictor creates a predictor with the given configuration.
func NewPredictor(cfg Config) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{
		cfg:     cfg,
		history: make([]Sample, 0, cfg.HistoryLength),
	}, nil
}

// Reset clears history and smoothed rates.
func (p *Predictor) Reset() {
	p.history = p.history[:0]
	p.vx, p.vy, p.vw, p.vh = 0, 0, 0, 0
	p.primed = false
}

// Len returns the number of samples held.
func (p *Predictor) Len() int { return len(p.history) }

// Update records a measured box. A zero or non-increasing timestamp falls
// back to one nominal frame period so that replayed logs without timestamps
// still produce velocities.
func (p *Predictor) Update(box detect.BBox, ts time.Time) {
	cx, cy := box.Center()
	s := Sample{CX: cx, CY: cy, W: box.W, H: box.H, Timestamp: ts}

	if n := len(p.history); n > 0 {
		last := p.history[n-1]
		dt := p.sampleDt(last.Timestamp, ts)
		ivx := (s.CX - last.CX) / dt
		ivy := (s.CY - last.CY) / dt
		ivw := (s.W - last.W) / dt
		ivh := (s.H - last.H) / dt

		if !p.primed {
			p.vx, p.vy, p.vw, p.vh = ivx, ivy, ivw, ivh
			p.primed = true
		} else {
			a := p.cfg.Alpha
			p.vx = a*ivx + (1-a)*p.vx
			p.vy = a*ivy + (1-a)*p.vy
			p.vw = a*ivw + (1-a)*p.vw
			p.vh = a*ivh + (1-a)*p.vh
		}
	}

	if len(p.history) == p.cfg.HistoryLength {
		copy(p.history, p.history[1:])
		p.history = p.history[:len(p.history)-1]
	}
	p.history = append(p.history, s)
}

func (p *Predictor) sampleDt(prev, cur time.Time) float64 {
	if !prev.IsZero() && !cur.IsZero() {
		if dt := cur.Sub(prev).Seconds(); dt > 0 {
			return dt
		}
	}
	return 1 / p.cfg.NominalFPS
}

// Last returns the most recent measured box, or false when empty.
func (p *Predictor) Last() (detect.BBox, bool) {
	if len(p.history) == 0 {
		return detect.BBox{}, false
	}
	s := p.history[len(p.history)-1]
	return detect.BBoxFromCenter(s.CX, s.CY, s.W, s.H), true
}

// PredictBBox extrapolates the last box framesAhead frames into the future
// at the given frame rate. A non-positive fps uses the nominal rate. With
// fewer than two samples the last box is returned unchanged; with none the
// zero box is returned.
func (p *Predictor) PredictBBox(framesAhead int, fps float64) detect.BBox {
	if fps <= 0 {
		fps = p.cfg.NominalFPS
	}
	if framesAhead < 0 {
		framesAhead = 0
	}
	return p.predict(float64(framesAhead) / fps)
}

// PredictAfter extrapolates the last box by a wall-clock interval.
func (p *Predictor) PredictAfter(d time.Duration) detect.BBox {
	return p.predict(d.Seconds())
}

// PredictAt extrapolates the last box to the given timestamp. It falls back
// to one nominal frame when either timestamp is missing.
func (p *Predictor) PredictAt(ts time.Time) detect.BBox {
	if len(p.history) == 0 {
		return detect.BBox{}
	}
	last := p.history[len(p.history)-1].Timestamp
	if last.IsZero() || ts.IsZero() {
		return p.predict(1 / p.cfg.NominalFPS)
	}
	return p.predict(ts.Sub(last).Seconds())
}

func (p *Predictor) predict(dt float64) detect.BBox {
	last, ok := p.Last()
	if !ok {
		return detect.BBox{}
	}
	if len(p.history) < 2 || !p.primed {
		return last
	}
	if dt < 0 {
		dt = 0
	}
	if dt > p.cfg.MaxPredictDt {
		dt = p.cfg.MaxPredictDt
	}

	s := p.history[len(p.history)-1]
	cx := s.CX + p.vx*dt
	cy := s.CY + p.vy*dt
	w := math.Max(p.cfg.MinBoxSize, s.W+p.vw*dt)
	h := math.Max(p.cfg.MinBoxSize, s.H+p.vh*dt)
	return detect.BBoxFromCenter(cx, cy, w, h)
}

// Velocity returns the smoothed center velocity in pixels per second.
func (p *Predictor) Velocity() (vx, vy float64) {
	return p.vx, p.vy
}

// SizeRate returns the smoothed width/height rate in pixels per second.
func (p *Predictor) SizeRate() (vw, vh float64) {
	return p.vw, p.vh
}

// Speed returns the magnitude of the smoothed velocity.
func (p *Predictor) Speed() float64 {
	return math.Hypot(p.vx, p.vy)
}

// IsMoving reports whether the smoothed speed exceeds threshold (px/s).
func (p *Predictor) IsMoving(threshold float64) bool {
	return p.Speed() > threshold
}
