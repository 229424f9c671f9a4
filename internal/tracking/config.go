package tracking

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/skyfollow/internal/config"
	"github.com/banshee-data/skyfollow/internal/tracking/appearance"
	"github.com/banshee-data/skyfollow/internal/tracking/motion"
)

// Strategy selects which fallback tiers run.
type Strategy string

const (
	StrategyIDOnly      Strategy = config.StrategyIDOnly
	StrategySpatialOnly Strategy = config.StrategySpatialOnly
	StrategyHybrid      Strategy = config.StrategyHybrid
)

// Config holds configuration parameters for the state manager.
type Config struct {
	Strategy                  Strategy
	IDLossToleranceFrames     int     // Misses tolerated before the target is declared lost
	SpatialIoUThreshold       float64 // Minimum IoU for a spatial match
	EnablePredictionBuffer    bool    // Use the motion predictor for spatial matching and coasting
	ConfidenceSmoothingAlpha  float64 // EMA weight on raw detection confidence
	PredictionConfidenceDecay float64 // Per-miss confidence multiplier while coasting
	PredictionUseTimestamps   bool    // Predict by frame timestamps instead of frame counts
	FrameWidth                int     // Fallback frame size when the frame carries no image
	FrameHeight               int

	EnableAppearance         bool
	AppearanceUpdateInterval int // Identifier matches between adaptive signature updates

	Motion     motion.Config
	Appearance appearance.Config
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Strategy:                  Strategy(cfg.GetTrackingStrategy()),
		IDLossToleranceFrames:     cfg.GetIDLossToleranceFrames(),
		SpatialIoUThreshold:       cfg.GetSpatialIoUThreshold(),
		EnablePredictionBuffer:    cfg.GetEnablePredictionBuffer(),
		ConfidenceSmoothingAlpha:  cfg.GetConfidenceSmoothingAlpha(),
		PredictionConfidenceDecay: cfg.GetPredictionConfidenceDecay(),
		PredictionUseTimestamps:   cfg.GetPredictionUseTimestamps(),
		FrameWidth:                cfg.GetFrameWidth(),
		FrameHeight:               cfg.GetFrameHeight(),
		EnableAppearance:          cfg.GetEnableAppearanceModel(),
		AppearanceUpdateInterval:  cfg.GetAppearanceUpdateInterval(),
		Motion: motion.Config{
			HistoryLength: cfg.GetMotionHistoryLength(),
			Alpha:         cfg.GetVelocitySmoothingAlpha(),
			NominalFPS:    cfg.GetNominalFPS(),
			MaxPredictDt:  cfg.GetMaxPredictDt(),
			MinBoxSize:    cfg.GetMinBoxSize(),
		},
		Appearance: appearance.Config{
			Mode:                      appearance.FeatureMode(cfg.GetAppearanceFeatureType()),
			MatchThreshold:            cfg.GetAppearanceMatchThreshold(),
			MaxReidentificationFrames: cfg.GetMaxReidentificationFrames(),
			AdaptiveLearning:          cfg.GetAppearanceAdaptiveLearning(),
			LearningRate:              cfg.GetAppearanceLearningRate(),
			HueBins:                   cfg.GetHistogramHueBins(),
			SatBins:                   cfg.GetHistogramSatBins(),
			HOG: appearance.HOGGeometry{
				WinWidth:    cfg.GetHOGWinWidth(),
				WinHeight:   cfg.GetHOGWinHeight(),
				BlockSize:   cfg.GetHOGBlockSize(),
				BlockStride: cfg.GetHOGBlockStride(),
				CellSize:    cfg.GetHOGCellSize(),
				Bins:        cfg.GetHOGNBins(),
			},
			MinROISize:     cfg.GetMinROISize(),
			MinROIVariance: cfg.GetMinROIVariance(),
		},
	}
}

// Validate reports every configuration error.
func (c Config) Validate() error {
	var errs []error
	switch c.Strategy {
	case StrategyIDOnly, StrategySpatialOnly, StrategyHybrid:
	default:
		errs = append(errs, fmt.Errorf("unknown tracking strategy %q", c.Strategy))
	}
	if c.IDLossToleranceFrames <= 0 {
		errs = append(errs, fmt.Errorf("id loss tolerance must be positive, got %d", c.IDLossToleranceFrames))
	}
	for name, v := range map[string]float64{
		"spatial iou threshold":       c.SpatialIoUThreshold,
		"confidence smoothing alpha":  c.ConfidenceSmoothingAlpha,
		"prediction confidence decay": c.PredictionConfidenceDecay,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %f", name, v))
		}
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %dx%d", c.FrameWidth, c.FrameHeight))
	}
	if c.AppearanceUpdateInterval <= 0 {
		errs = append(errs, fmt.Errorf("appearance update interval must be positive, got %d", c.AppearanceUpdateInterval))
	}
	if err := c.Motion.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.EnableAppearance {
		if err := c.Appearance.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
