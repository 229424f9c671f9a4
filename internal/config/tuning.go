package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Tracking strategies.
const (
	StrategyIDOnly      = "id_only"
	StrategySpatialOnly = "spatial_only"
	StrategyHybrid      = "hybrid"
)

// Appearance feature types.
const (
	FeatureHistogram = "histogram"
	FeatureHOG       = "hog"
	FeatureHybrid    = "hybrid"
)

// TuningConfig is the flat JSON configuration for the tracking engine.
// Every field is optional; the Get* methods supply defaults for fields the
// file omits, so partial configs are safe.
//
// Similarity thresholds follow one convention: higher means more alike.
// AppearanceMaxDistance exists for configs written against distance-based
// re-identification backends and is converted with 1 - d.
type TuningConfig struct {
	// State manager
	TrackingStrategy          *string  `json:"tracking_strategy,omitempty"`
	IDLossToleranceFrames     *int     `json:"id_loss_tolerance_frames,omitempty"`
	SpatialIoUThreshold       *float64 `json:"spatial_iou_threshold,omitempty"`
	EnablePredictionBuffer    *bool    `json:"enable_prediction_buffer,omitempty"`
	ConfidenceSmoothingAlpha  *float64 `json:"confidence_smoothing_alpha,omitempty"`
	PredictionConfidenceDecay *float64 `json:"prediction_confidence_decay,omitempty"`
	FrameWidth                *int     `json:"frame_width,omitempty"`
	FrameHeight               *int     `json:"frame_height,omitempty"`

	// Appearance model
	EnableAppearanceModel      *bool    `json:"enable_appearance_model,omitempty"`
	AppearanceMatchThreshold   *float64 `json:"appearance_match_threshold,omitempty"`
	AppearanceMaxDistance      *float64 `json:"appearance_max_distance,omitempty"`
	AppearanceFeatureType      *string  `json:"appearance_feature_type,omitempty"`
	MaxReidentificationFrames  *int     `json:"max_reidentification_frames,omitempty"`
	AppearanceAdaptiveLearning *bool    `json:"appearance_adaptive_learning,omitempty"`
	AppearanceLearningRate     *float64 `json:"appearance_learning_rate,omitempty"`
	AppearanceUpdateInterval   *int     `json:"appearance_update_interval,omitempty"`
	MinROISize                 *int     `json:"min_roi_size,omitempty"`
	MinROIVariance             *float64 `json:"min_roi_variance,omitempty"`

	// Histogram geometry
	HistogramHueBins *int `json:"histogram_hue_bins,omitempty"`
	HistogramSatBins *int `json:"histogram_sat_bins,omitempty"`

	// HOG geometry
	HOGWinWidth    *int `json:"hog_win_width,omitempty"`
	HOGWinHeight   *int `json:"hog_win_height,omitempty"`
	HOGBlockSize   *int `json:"hog_block_size,omitempty"`
	HOGBlockStride *int `json:"hog_block_stride,omitempty"`
	HOGCellSize    *int `json:"hog_cell_size,omitempty"`
	HOGNBins       *int `json:"hog_nbins,omitempty"`

	// Motion predictor
	VelocitySmoothingAlpha  *float64 `json:"velocity_smoothing_alpha,omitempty"`
	MotionHistoryLength     *int     `json:"motion_history_length,omitempty"`
	NominalFPS              *float64 `json:"nominal_fps,omitempty"`
	MaxPredictDt            *float64 `json:"max_predict_dt,omitempty"`
	MinBoxSize              *float64 `json:"min_box_size,omitempty"`
	PredictionUseTimestamps *bool    `json:"prediction_use_timestamps,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		TrackingStrategy:           ptrString(e.GetTrackingStrategy()),
		IDLossToleranceFrames:      ptrInt(e.GetIDLossToleranceFrames()),
		SpatialIoUThreshold:        ptrFloat64(e.GetSpatialIoUThreshold()),
		EnablePredictionBuffer:     ptrBool(e.GetEnablePredictionBuffer()),
		ConfidenceSmoothingAlpha:   ptrFloat64(e.GetConfidenceSmoothingAlpha()),
		PredictionConfidenceDecay:  ptrFloat64(e.GetPredictionConfidenceDecay()),
		FrameWidth:                 ptrInt(e.GetFrameWidth()),
		FrameHeight:                ptrInt(e.GetFrameHeight()),
		EnableAppearanceModel:      ptrBool(e.GetEnableAppearanceModel()),
		AppearanceMatchThreshold:   ptrFloat64(e.GetAppearanceMatchThreshold()),
		AppearanceFeatureType:      ptrString(e.GetAppearanceFeatureType()),
		MaxReidentificationFrames:  ptrInt(e.GetMaxReidentificationFrames()),
		AppearanceAdaptiveLearning: ptrBool(e.GetAppearanceAdaptiveLearning()),
		AppearanceLearningRate:     ptrFloat64(e.GetAppearanceLearningRate()),
		AppearanceUpdateInterval:   ptrInt(e.GetAppearanceUpdateInterval()),
		MinROISize:                 ptrInt(e.GetMinROISize()),
		MinROIVariance:             ptrFloat64(e.GetMinROIVariance()),
		HistogramHueBins:           ptrInt(e.GetHistogramHueBins()),
		HistogramSatBins:           ptrInt(e.GetHistogramSatBins()),
		HOGWinWidth:                ptrInt(e.GetHOGWinWidth()),
		HOGWinHeight:               ptrInt(e.GetHOGWinHeight()),
		HOGBlockSize:               ptrInt(e.GetHOGBlockSize()),
		HOGBlockStride:             ptrInt(e.GetHOGBlockStride()),
		HOGCellSize:                ptrInt(e.GetHOGCellSize()),
		HOGNBins:                   ptrInt(e.GetHOGNBins()),
		VelocitySmoothingAlpha:     ptrFloat64(e.GetVelocitySmoothingAlpha()),
		MotionHistoryLength:        ptrInt(e.GetMotionHistoryLength()),
		NominalFPS:                 ptrFloat64(e.GetNominalFPS()),
		MaxPredictDt:               ptrFloat64(e.GetMaxPredictDt()),
		MinBoxSize:                 ptrFloat64(e.GetMinBoxSize()),
		PredictionUseTimestamps:    ptrBool(e.GetPredictionUseTimestamps()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/tracking/motion/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
