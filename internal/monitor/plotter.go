package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/skyfollow/internal/tracking"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrackPlotter accumulates per-frame samples from a run and writes PNG
// plots of the target trajectory and confidence after the run.
type TrackPlotter struct {
	mu      sync.Mutex
	title   string
	samples []Sample
}

// NewTrackPlotter creates an empty plotter; title prefixes every plot.
func NewTrackPlotter(title string) *TrackPlotter {
	return &TrackPlotter{title: title}
}

// Add records one frame.
func (tp *TrackPlotter) Add(s Sample) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.samples = append(tp.samples, s)
}

// Len returns the number of recorded frames.
func (tp *TrackPlotter) Len() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.samples)
}

var stateColors = map[tracking.TrackState]color.Color{
	tracking.StateIDMatch:      color.RGBA{R: 46, G: 125, B: 50, A: 255},
	tracking.StateSpatialMatch: color.RGBA{R: 25, G: 118, B: 210, A: 255},
	tracking.StatePredicted:    color.RGBA{R: 245, G: 124, B: 0, A: 255},
}

// GeneratePlots writes trajectory.png and confidence.png into outputDir and
// returns their paths.
func (tp *TrackPlotter) GeneratePlots(outputDir string) ([]string, error) {
	tp.mu.Lock()
	samples := append([]Sample(nil), tp.samples...)
	tp.mu.Unlock()

	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	traj, err := tp.trajectoryPlot(samples)
	if err != nil {
		return nil, err
	}
	trajFile := filepath.Join(outputDir, "trajectory.png")
	if err := traj.Save(8*vg.Inch, 6*vg.Inch, trajFile); err != nil {
		return nil, fmt.Errorf("failed to save trajectory plot: %w", err)
	}

	conf, err := tp.confidencePlot(samples)
	if err != nil {
		return nil, err
	}
	confFile := filepath.Join(outputDir, "confidence.png")
	if err := conf.Save(14*vg.Inch, 5*vg.Inch, confFile); err != nil {
		return nil, fmt.Errorf("failed to save confidence plot: %w", err)
	}
	return []string{trajFile, confFile}, nil
}

// trajectoryPlot scatters normalized target positions, one series per
// committing state.
func (tp *TrackPlotter) trajectoryPlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = tp.title + " trajectory"
	p.X.Label.Text = "x (normalized)"
	p.Y.Label.Text = "y (normalized, down)"
	p.X.Min, p.X.Max = -1, 1
	p.Y.Min, p.Y.Max = -1, 1
	p.Add(plotter.NewGrid())

	byState := make(map[tracking.TrackState]plotter.XYs)
	for _, s := range samples {
		if !s.Committed {
			continue
		}
		st := s.State
		if st == tracking.StateAppearanceMatch {
			st = tracking.StateIDMatch
		}
		// Image y grows downward; flip so the plot reads like the frame.
		byState[st] = append(byState[st], plotter.XY{X: s.Position.X, Y: -s.Position.Y})
	}

	for _, st := range []tracking.TrackState{tracking.StateIDMatch, tracking.StateSpatialMatch, tracking.StatePredicted} {
		pts := byState[st]
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s scatter: %w", st, err)
		}
		sc.GlyphStyle.Color = stateColors[st]
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(string(st), sc)
	}
	p.Legend.Top = true
	return p, nil
}

// confidencePlot draws confidence against frame index and marks frames
// where the session was lost.
func (tp *TrackPlotter) confidencePlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = tp.title + " confidence"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "confidence"
	p.Y.Min, p.Y.Max = 0, 1.05

	conf := make(plotter.XYs, 0, len(samples))
	var lost plotter.XYs
	for _, s := range samples {
		conf = append(conf, plotter.XY{X: float64(s.FrameIndex), Y: s.Confidence})
		if s.State == tracking.StateLost {
			lost = append(lost, plotter.XY{X: float64(s.FrameIndex), Y: 0})
		}
	}

	line, err := plotter.NewLine(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to build confidence line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 25, G: 118, B: 210, A: 255}
	p.Add(line)
	p.Legend.Add("confidence", line)

	if len(lost) > 0 {
		sc, err := plotter.NewScatter(lost)
		if err != nil {
			return nil, fmt.Errorf("failed to build lost markers: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{R: 211, G: 47, B: 47, A: 255}
		p.Add(sc)
		p.Legend.Add("lost", sc)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	return p, nil
}
