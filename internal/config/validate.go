package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate checks that every configured value is in range. It runs at load
// time so a bad file is rejected before any frame is processed.
func (c *TuningConfig) Validate() error {
	var errs []error

	if c.TrackingStrategy != nil {
		switch *c.TrackingStrategy {
		case StrategyIDOnly, StrategySpatialOnly, StrategyHybrid:
		default:
			errs = append(errs, fmt.Errorf("tracking_strategy must be one of id_only, spatial_only, hybrid, got %q", *c.TrackingStrategy))
		}
	}
	if c.AppearanceFeatureType != nil {
		switch *c.AppearanceFeatureType {
		case FeatureHistogram, FeatureHOG, FeatureHybrid:
		default:
			errs = append(errs, fmt.Errorf("appearance_feature_type must be one of histogram, hog, hybrid, got %q", *c.AppearanceFeatureType))
		}
	}

	errs = append(errs,
		unitInterval("spatial_iou_threshold", c.SpatialIoUThreshold),
		unitInterval("confidence_smoothing_alpha", c.ConfidenceSmoothingAlpha),
		unitInterval("prediction_confidence_decay", c.PredictionConfidenceDecay),
		unitInterval("appearance_match_threshold", c.AppearanceMatchThreshold),
		unitInterval("appearance_max_distance", c.AppearanceMaxDistance),
		unitInterval("appearance_learning_rate", c.AppearanceLearningRate),
		unitInterval("velocity_smoothing_alpha", c.VelocitySmoothingAlpha),
		positiveInt("id_loss_tolerance_frames", c.IDLossToleranceFrames),
		positiveInt("max_reidentification_frames", c.MaxReidentificationFrames),
		positiveInt("appearance_update_interval", c.AppearanceUpdateInterval),
		positiveInt("motion_history_length", c.MotionHistoryLength),
		positiveInt("frame_width", c.FrameWidth),
		positiveInt("frame_height", c.FrameHeight),
		positiveInt("min_roi_size", c.MinROISize),
		positiveInt("histogram_hue_bins", c.HistogramHueBins),
		positiveInt("histogram_sat_bins", c.HistogramSatBins),
		positiveInt("hog_win_width", c.HOGWinWidth),
		positiveInt("hog_win_height", c.HOGWinHeight),
		positiveInt("hog_block_size", c.HOGBlockSize),
		positiveInt("hog_block_stride", c.HOGBlockStride),
		positiveInt("hog_cell_size", c.HOGCellSize),
		positiveInt("hog_nbins", c.HOGNBins),
		positiveFloat("nominal_fps", c.NominalFPS),
		positiveFloat("max_predict_dt", c.MaxPredictDt),
		positiveFloat("min_box_size", c.MinBoxSize),
	)

	if c.MinROIVariance != nil && (*c.MinROIVariance < 0 || math.IsNaN(*c.MinROIVariance)) {
		errs = append(errs, fmt.Errorf("min_roi_variance must be non-negative, got %f", *c.MinROIVariance))
	}
	if c.AppearanceMatchThreshold != nil && c.AppearanceMaxDistance != nil {
		errs = append(errs, errors.New("appearance_match_threshold and appearance_max_distance are mutually exclusive"))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.validateHOGGeometry()
}

// validateHOGGeometry checks that blocks tile the detection window exactly
// and that cells tile each block.
func (c *TuningConfig) validateHOGGeometry() error {
	win, winH := c.GetHOGWinWidth(), c.GetHOGWinHeight()
	block, stride, cell := c.GetHOGBlockSize(), c.GetHOGBlockStride(), c.GetHOGCellSize()

	if block > win || block > winH {
		return fmt.Errorf("hog_block_size %d larger than window %dx%d", block, win, winH)
	}
	if block%cell != 0 || stride%cell != 0 {
		return fmt.Errorf("hog_block_size %d and hog_block_stride %d must be multiples of hog_cell_size %d", block, stride, cell)
	}
	if (win-block)%stride != 0 || (winH-block)%stride != 0 {
		return fmt.Errorf("hog window %dx%d minus block %d must be a multiple of hog_block_stride %d", win, winH, block, stride)
	}
	return nil
}

func unitInterval(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

func positiveInt(name string, v *int) error {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *v)
	}
	return nil
}

func positiveFloat(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, *v)
	}
	return nil
}
