package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Association modes accepted by the "association" key.
const (
	AssociationGreedy  = "greedy"
	AssociationOptimal = "optimal"
)

// TuningConfig represents the root configuration for tracking, camera and
// persistence parameters. Every field is optional; the Get* accessors supply
// the defaults for anything the JSON file leaves out.
type TuningConfig struct {
	// Tracker params
	IoUThreshold         *float64 `json:"iou_threshold,omitempty"`
	MaxFramesSinceUpdate *int     `json:"max_frames_since_update,omitempty"`
	HistoryCapacity      *int     `json:"history_capacity,omitempty"`
	Association          *string  `json:"association,omitempty"` // "greedy" or "optimal"
	MaxTracks            *int     `json:"max_tracks,omitempty"`

	// Class params
	TrackedClasses []string           `json:"tracked_classes,omitempty"`
	ClassHeights   map[string]float64 `json:"class_heights,omitempty"` // metres, merged over the built-in table

	// Camera intrinsics
	FocalLengthMM  *float64 `json:"focal_length_mm,omitempty"`
	SensorWidthMM  *float64 `json:"sensor_width_mm,omitempty"`
	SensorHeightMM *float64 `json:"sensor_height_mm,omitempty"`
	ImageWidthPx   *float64 `json:"image_width_px,omitempty"`
	ImageHeightPx  *float64 `json:"image_height_px,omitempty"`

	// Persistence params
	PersistInterval     *string `json:"persist_interval,omitempty"` // duration string like "1s"
	StoreMaxAttempts    *int    `json:"store_max_attempts,omitempty"`
	StoreInitialBackoff *string `json:"store_initial_backoff,omitempty"` // duration string like "5ms"
	StoreMaxBackoff     *string `json:"store_max_backoff,omitempty"`     // duration string like "250ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
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
		"../" + DefaultConfigPath,       // from cmd/geotrack/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold >= 1 {
			return fmt.Errorf("iou_threshold must be in [0, 1), got %f", *c.IoUThreshold)
		}
	}

	if c.MaxFramesSinceUpdate != nil && *c.MaxFramesSinceUpdate < 0 {
		return fmt.Errorf("max_frames_since_update must be non-negative, got %d", *c.MaxFramesSinceUpdate)
	}

	if c.HistoryCapacity != nil && *c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be at least 1, got %d", *c.HistoryCapacity)
	}

	if c.Association != nil {
		switch *c.Association {
		case AssociationGreedy, AssociationOptimal:
		default:
			return fmt.Errorf("association must be %q or %q, got %q", AssociationGreedy, AssociationOptimal, *c.Association)
		}
	}

	if c.MaxTracks != nil && *c.MaxTracks < 0 {
		return fmt.Errorf("max_tracks must be non-negative, got %d", *c.MaxTracks)
	}

	for class, h := range c.ClassHeights {
		if h <= 0 {
			return fmt.Errorf("class_heights[%q] must be positive, got %f", class, h)
		}
	}

	positive := map[string]*float64{
		"focal_length_mm":  c.FocalLengthMM,
		"sensor_width_mm":  c.SensorWidthMM,
		"sensor_height_mm": c.SensorHeightMM,
		"image_width_px":   c.ImageWidthPx,
		"image_height_px":  c.ImageHeightPx,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	durations := map[string]*string{
		"persist_interval":      c.PersistInterval,
		"store_initial_backoff": c.StoreInitialBackoff,
		"store_max_backoff":     c.StoreMaxBackoff,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.StoreMaxAttempts != nil && *c.StoreMaxAttempts < 1 {
		return fmt.Errorf("store_max_attempts must be at least 1, got %d", *c.StoreMaxAttempts)
	}

	return nil
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetMaxFramesSinceUpdate returns the max_frames_since_update value or the default.
func (c *TuningConfig) GetMaxFramesSinceUpdate() int {
	if c.MaxFramesSinceUpdate == nil {
		return 10
	}
	return *c.MaxFramesSinceUpdate
}

// GetHistoryCapacity returns the history_capacity value or the default.
func (c *TuningConfig) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return 5
	}
	return *c.HistoryCapacity
}

// GetAssociation returns the association mode or the default (greedy).
func (c *TuningConfig) GetAssociation() string {
	if c.Association == nil || *c.Association == "" {
		return AssociationGreedy
	}
	return *c.Association
}

// GetMaxTracks returns the max_tracks value or the default (0, unlimited).
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 0
	}
	return *c.MaxTracks
}

// GetTrackedClasses returns the configured allow-list. A nil result means
// every class with a reference height is tracked.
func (c *TuningConfig) GetTrackedClasses() []string {
	if len(c.TrackedClasses) == 0 {
		return nil
	}
	out := make([]string, len(c.TrackedClasses))
	copy(out, c.TrackedClasses)
	return out
}

// GetClassHeights returns a copy of the class height overrides.
func (c *TuningConfig) GetClassHeights() map[string]float64 {
	out := make(map[string]float64, len(c.ClassHeights))
	for k, v := range c.ClassHeights {
		out[k] = v
	}
	return out
}

// GetFocalLengthMM returns the focal_length_mm value or the default.
func (c *TuningConfig) GetFocalLengthMM() float64 {
	if c.FocalLengthMM == nil {
		return 4.0
	}
	return *c.FocalLengthMM
}

// GetSensorWidthMM returns the sensor_width_mm value or the default.
func (c *TuningConfig) GetSensorWidthMM() float64 {
	if c.SensorWidthMM == nil {
		return 5.5385
	}
	return *c.SensorWidthMM
}

// GetSensorHeightMM returns the sensor_height_mm value or the default.
func (c *TuningConfig) GetSensorHeightMM() float64 {
	if c.SensorHeightMM == nil {
		return 4.1539
	}
	return *c.SensorHeightMM
}

// GetImageWidthPx returns the image_width_px value or the default.
func (c *TuningConfig) GetImageWidthPx() float64 {
	if c.ImageWidthPx == nil {
		return 2296
	}
	return *c.ImageWidthPx
}

// GetImageHeightPx returns the image_height_px value or the default.
func (c *TuningConfig) GetImageHeightPx() float64 {
	if c.ImageHeightPx == nil {
		return 1722
	}
	return *c.ImageHeightPx
}

// GetPersistInterval parses and returns the PersistInterval as a time.Duration.
func (c *TuningConfig) GetPersistInterval() time.Duration {
	return parseDurationOr(c.PersistInterval, time.Second)
}

// GetStoreMaxAttempts returns the store_max_attempts value or the default.
func (c *TuningConfig) GetStoreMaxAttempts() int {
	if c.StoreMaxAttempts == nil {
		return 25
	}
	return *c.StoreMaxAttempts
}

// GetStoreInitialBackoff parses and returns the StoreInitialBackoff as a time.Duration.
func (c *TuningConfig) GetStoreInitialBackoff() time.Duration {
	return parseDurationOr(c.StoreInitialBackoff, 5*time.Millisecond)
}

// GetStoreMaxBackoff parses and returns the StoreMaxBackoff as a time.Duration.
func (c *TuningConfig) GetStoreMaxBackoff() time.Duration {
	return parseDurationOr(c.StoreMaxBackoff, 250*time.Millisecond)
}
