package config

// GetTrackingStrategy returns the tracking_strategy value or the default.
func (c *TuningConfig) GetTrackingStrategy() string {
	if c.TrackingStrategy == nil {
		return StrategyHybrid
	}
	return *c.TrackingStrategy
}

// GetIDLossToleranceFrames returns the id_loss_tolerance_frames value or the default.
func (c *TuningConfig) GetIDLossToleranceFrames() int {
	if c.IDLossToleranceFrames == nil {
		return 5
	}
	return *c.IDLossToleranceFrames
}

// GetSpatialIoUThreshold returns the spatial_iou_threshold value or the default.
func (c *TuningConfig) GetSpatialIoUThreshold() float64 {
	if c.SpatialIoUThreshold == nil {
		return 0.35
	}
	return *c.SpatialIoUThreshold
}

// GetEnablePredictionBuffer returns the enable_prediction_buffer value or the default.
func (c *TuningConfig) GetEnablePredictionBuffer() bool {
	if c.EnablePredictionBuffer == nil {
		return true
	}
	return *c.EnablePredictionBuffer
}

// GetConfidenceSmoothingAlpha returns the confidence_smoothing_alpha value or the default.
func (c *TuningConfig) GetConfidenceSmoothingAlpha() float64 {
	if c.ConfidenceSmoothingAlpha == nil {
		return 0.8
	}
	return *c.ConfidenceSmoothingAlpha
}

// GetPredictionConfidenceDecay returns the prediction_confidence_decay value or the default.
func (c *TuningConfig) GetPredictionConfidenceDecay() float64 {
	if c.PredictionConfidenceDecay == nil {
		return 0.85
	}
	return *c.PredictionConfidenceDecay
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetEnableAppearanceModel returns the enable_appearance_model value or the default.
func (c *TuningConfig) GetEnableAppearanceModel() bool {
	if c.EnableAppearanceModel == nil {
		return true
	}
	return *c.EnableAppearanceModel
}

// GetAppearanceMatchThreshold returns the minimum similarity for
// re-identification. A configured appearance_max_distance is converted to
// the similarity convention as 1 - d.
func (c *TuningConfig) GetAppearanceMatchThreshold() float64 {
	if c.AppearanceMatchThreshold != nil {
		return *c.AppearanceMatchThreshold
	}
	if c.AppearanceMaxDistance != nil {
		return 1 - *c.AppearanceMaxDistance
	}
	return 0.7
}

// GetAppearanceFeatureType returns the appearance_feature_type value or the default.
func (c *TuningConfig) GetAppearanceFeatureType() string {
	if c.AppearanceFeatureType == nil {
		return FeatureHistogram
	}
	return *c.AppearanceFeatureType
}

// GetMaxReidentificationFrames returns the max_reidentification_frames value or the default.
func (c *TuningConfig) GetMaxReidentificationFrames() int {
	if c.MaxReidentificationFrames == nil {
		return 30
	}
	return *c.MaxReidentificationFrames
}

// GetAppearanceAdaptiveLearning returns the appearance_adaptive_learning value or the default.
func (c *TuningConfig) GetAppearanceAdaptiveLearning() bool {
	if c.AppearanceAdaptiveLearning == nil {
		return true
	}
	return *c.AppearanceAdaptiveLearning
}

// GetAppearanceLearningRate returns the appearance_learning_rate value or the default.
func (c *TuningConfig) GetAppearanceLearningRate() float64 {
	if c.AppearanceLearningRate == nil {
		return 0.1
	}
	return *c.AppearanceLearningRate
}

// GetAppearanceUpdateInterval returns the appearance_update_interval value or the default.
func (c *TuningConfig) GetAppearanceUpdateInterval() int {
	if c.AppearanceUpdateInterval == nil {
		return 1
	}
	return *c.AppearanceUpdateInterval
}

// GetMinROISize returns the min_roi_size value or the default.
func (c *TuningConfig) GetMinROISize() int {
	if c.MinROISize == nil {
		return 8
	}
	return *c.MinROISize
}

// GetMinROIVariance returns the min_roi_variance value or the default.
func (c *TuningConfig) GetMinROIVariance() float64 {
	if c.MinROIVariance == nil {
		return 1.0
	}
	return *c.MinROIVariance
}

// GetHistogramHueBins returns the histogram_hue_bins value or the default.
func (c *TuningConfig) GetHistogramHueBins() int {
	if c.HistogramHueBins == nil {
		return 30
	}
	return *c.HistogramHueBins
}

// GetHistogramSatBins returns the histogram_sat_bins value or the default.
func (c *TuningConfig) GetHistogramSatBins() int {
	if c.HistogramSatBins == nil {
		return 32
	}
	return *c.HistogramSatBins
}

// GetHOGWinWidth returns the hog_win_width value or the default.
func (c *TuningConfig) GetHOGWinWidth() int {
	if c.HOGWinWidth == nil {
		return 64
	}
	return *c.HOGWinWidth
}

// GetHOGWinHeight returns the hog_win_height value or the default.
func (c *TuningConfig) GetHOGWinHeight() int {
	if c.HOGWinHeight == nil {
		return 128
	}
	return *c.HOGWinHeight
}

// GetHOGBlockSize returns the hog_block_size value or the default.
func (c *TuningConfig) GetHOGBlockSize() int {
	if c.HOGBlockSize == nil {
		return 16
	}
	return *c.HOGBlockSize
}

// GetHOGBlockStride returns the hog_block_stride value or the default.
func (c *TuningConfig) GetHOGBlockStride() int {
	if c.HOGBlockStride == nil {
		return 8
	}
	return *c.HOGBlockStride
}

// GetHOGCellSize returns the hog_cell_size value or the default.
func (c *TuningConfig) GetHOGCellSize() int {
	if c.HOGCellSize == nil {
		return 8
	}
	return *c.HOGCellSize
}

// GetHOGNBins returns the hog_nbins value or the default.
func (c *TuningConfig) GetHOGNBins() int {
	if c.HOGNBins == nil {
		return 9
	}
	return *c.HOGNBins
}

// GetVelocitySmoothingAlpha returns the velocity_smoothing_alpha value or the default.
func (c *TuningConfig) GetVelocitySmoothingAlpha() float64 {
	if c.VelocitySmoothingAlpha == nil {
		return 0.5
	}
	return *c.VelocitySmoothingAlpha
}

// GetMotionHistoryLength returns the motion_history_length value or the default.
func (c *TuningConfig) GetMotionHistoryLength() int {
	if c.MotionHistoryLength == nil {
		return 10
	}
	return *c.MotionHistoryLength
}

// GetNominalFPS returns the nominal_fps value or the default.
func (c *TuningConfig) GetNominalFPS() float64 {
	if c.NominalFPS == nil {
		return 30.0
	}
	return *c.NominalFPS
}

// GetMaxPredictDt returns the max_predict_dt value or the default.
func (c *TuningConfig) GetMaxPredictDt() float64 {
	if c.MaxPredictDt == nil {
		return 1.0
	}
	return *c.MaxPredictDt
}

// GetMinBoxSize returns the min_box_size value or the default.
func (c *TuningConfig) GetMinBoxSize() float64 {
	if c.MinBoxSize == nil {
		return 4.0
	}
	return *c.MinBoxSize
}

// GetPredictionUseTimestamps returns the prediction_use_timestamps value or the default.
func (c *TuningConfig) GetPredictionUseTimestamps() bool {
	if c.PredictionUseTimestamps == nil {
		return false
	}
	return *c.PredictionUseTimestamps
}
