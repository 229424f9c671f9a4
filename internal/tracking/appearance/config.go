package appearance

import (
	"fmt"
	"math"
)

// FeatureMode selects the signature extractor.
type FeatureMode string

const (
	ModeHistogram FeatureMode = "histogram"
	ModeHOG       FeatureMode = "hog"
	ModeHybrid    FeatureMode = "hybrid"
)

// HOGGeometry describes the HOG detection window layout in pixels.
type HOGGeometry struct {
	WinWidth    int
	WinHeight   int
	BlockSize   int
	BlockStride int
	CellSize    int
	Bins        int
}

// DescriptorLen returns the HOG descriptor length for this geometry.
func (g HOGGeometry) DescriptorLen() int {
	bx := (g.WinWidth-g.BlockSize)/g.BlockStride + 1
	by := (g.WinHeight-g.BlockSize)/g.BlockStride + 1
	cpb := g.BlockSize / g.CellSize
	return bx * by * cpb * cpb * g.Bins
}

func (g HOGGeometry) validate() error {
	if g.WinWidth <= 0 || g.WinHeight <= 0 || g.BlockSize <= 0 || g.BlockStride <= 0 || g.CellSize <= 0 || g.Bins <= 0 {
		return fmt.Errorf("hog geometry values must be positive: %+v", g)
	}
	if g.BlockSize > g.WinWidth || g.BlockSize > g.WinHeight {
		return fmt.Errorf("hog block %d larger than window %dx%d", g.BlockSize, g.WinWidth, g.WinHeight)
	}
	if g.BlockSize%g.CellSize != 0 || g.BlockStride%g.CellSize != 0 {
		return fmt.Errorf("hog block %d and stride %d must be multiples of cell %d", g.BlockSize, g.BlockStride, g.CellSize)
	}
	if (g.WinWidth-g.BlockSize)%g.BlockStride != 0 || (g.WinHeight-g.BlockSize)%g.BlockStride != 0 {
		return fmt.Errorf("hog blocks of %d stride %d do not tile window %dx%d", g.BlockSize, g.BlockStride, g.WinWidth, g.WinHeight)
	}
	return nil
}

// Config holds appearance model parameters.
type Config struct {
	Mode                      FeatureMode
	MatchThreshold            float64 // Minimum similarity to re-identify
	MaxReidentificationFrames int     // Lost entries expire at this age
	AdaptiveLearning          bool
	LearningRate              float64
	HueBins                   int
	SatBins                   int
	HOG                       HOGGeometry
	MinROISize                int     // Minimum ROI width and height in pixels
	MinROIVariance            float64 // Minimum grey-level variance (0-255 scale)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                      ModeHistogram,
		MatchThreshold:            0.7,
		MaxReidentificationFrames: 30,
		AdaptiveLearning:          true,
		LearningRate:              0.1,
		HueBins:                   30,
		SatBins:                   32,
		HOG: HOGGeometry{
			WinWidth:    64,
			WinHeight:   128,
			BlockSize:   16,
			BlockStride: 8,
			CellSize:    8,
			Bins:        9,
		},
		MinROISize:     8,
		MinROIVariance: 1.0,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeHistogram, ModeHOG, ModeHybrid:
	default:
		return fmt.Errorf("unknown feature mode %q", c.Mode)
	}
	if math.IsNaN(c.MatchThreshold) || c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be between 0 and 1, got %f", c.MatchThreshold)
	}
	if math.IsNaN(c.LearningRate) || c.LearningRate < 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be between 0 and 1, got %f", c.LearningRate)
	}
	if c.MaxReidentificationFrames <= 0 {
		return fmt.Errorf("max reidentification frames must be positive, got %d", c.MaxReidentificationFrames)
	}
	if c.HueBins <= 0 || c.SatBins <= 0 {
		return fmt.Errorf("histogram bins must be positive, got %dx%d", c.HueBins, c.SatBins)
	}
	if c.MinROISize <= 0 {
		return fmt.Errorf("min roi size must be positive, got %d", c.MinROISize)
	}
	if c.MinROIVariance < 0 || math.IsNaN(c.MinROIVariance) {
		return fmt.Errorf("min roi variance must be non-negative, got %f", c.MinROIVariance)
	}
	return c.HOG.validate()
}
