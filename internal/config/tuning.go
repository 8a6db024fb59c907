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

// TuningConfig represents the root configuration for map tuning parameters.
// The schema matches the /api/map/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Occupancy params
	Resolution         *float64 `json:"resolution,omitempty"`
	ProbabilityHit     *float64 `json:"probability_hit,omitempty"`
	ProbabilityMiss    *float64 `json:"probability_miss,omitempty"`
	ThresholdMin       *float64 `json:"threshold_min,omitempty"`
	ThresholdMax       *float64 `json:"threshold_max,omitempty"`
	ThresholdOccupancy *float64 `json:"threshold_occupancy,omitempty"`

	// Sensor model params
	SensorMaxRange     *float64 `json:"sensor_max_range,omitempty"`
	MaxFreeSpace       *float64 `json:"max_free_space,omitempty"`
	MinHeightFreeSpace *float64 `json:"min_height_free_space,omitempty"`

	// Query behaviour params
	FilterSpeckles         *bool `json:"filter_speckles,omitempty"`
	TreatUnknownAsOccupied *bool `json:"treat_unknown_as_occupied,omitempty"`
	ChangeDetection        *bool `json:"change_detection,omitempty"`

	// Saliency params
	SaliencyAlpha     *float64 `json:"saliency_alpha,omitempty"`
	SaliencyBeta      *float64 `json:"saliency_beta,omitempty"`
	SaliencyThreshold *float64 `json:"saliency_threshold,omitempty"`
	ProjectionLimit   *float64 `json:"projection_limit,omitempty"`
	GroundZ           *float64 `json:"ground_z,omitempty"`

	// Robot footprint for collision checks, metres per axis.
	RobotSizeX *float64 `json:"robot_size_x,omitempty"`
	RobotSizeY *float64 `json:"robot_size_y,omitempty"`
	RobotSizeZ *float64 `json:"robot_size_z,omitempty"`

	// Evaluation volume for explored-fraction tracking, metres per axis.
	EvalMinX *float64 `json:"eval_min_x,omitempty"`
	EvalMinY *float64 `json:"eval_min_y,omitempty"`
	EvalMinZ *float64 `json:"eval_min_z,omitempty"`
	EvalMaxX *float64 `json:"eval_max_x,omitempty"`
	EvalMaxY *float64 `json:"eval_max_y,omitempty"`
	EvalMaxZ *float64 `json:"eval_max_z,omitempty"`

	// Height clip for debug rendering.
	VisualizeMinZ *float64 `json:"visualize_min_z,omitempty"`
	VisualizeMaxZ *float64 `json:"visualize_max_z,omitempty"`

	// Snapshot params
	SnapshotInterval *string `json:"snapshot_interval,omitempty"` // duration string like "60s"
	SnapshotDisable  *bool   `json:"snapshot_disable,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a fully populated config matching the shipped
// defaults file. Kept in sync with config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Resolution:             ptrFloat64(0.15),
		ProbabilityHit:         ptrFloat64(0.65),
		ProbabilityMiss:        ptrFloat64(0.4),
		ThresholdMin:           ptrFloat64(0.12),
		ThresholdMax:           ptrFloat64(0.97),
		ThresholdOccupancy:     ptrFloat64(0.5),
		SensorMaxRange:         ptrFloat64(5.0),
		MaxFreeSpace:           ptrFloat64(0),
		MinHeightFreeSpace:     ptrFloat64(0),
		FilterSpeckles:         ptrBool(false),
		TreatUnknownAsOccupied: ptrBool(true),
		ChangeDetection:        ptrBool(false),
		SaliencyAlpha:          ptrFloat64(0.6),
		SaliencyBeta:           ptrFloat64(-0.01),
		SaliencyThreshold:      ptrFloat64(128),
		ProjectionLimit:        ptrFloat64(7.0),
		GroundZ:                ptrFloat64(0),
		RobotSizeX:             ptrFloat64(0.5),
		RobotSizeY:             ptrFloat64(0.5),
		RobotSizeZ:             ptrFloat64(0.3),
		EvalMinX:               ptrFloat64(-10),
		EvalMinY:               ptrFloat64(-10),
		EvalMinZ:               ptrFloat64(0),
		EvalMaxX:               ptrFloat64(10),
		EvalMaxY:               ptrFloat64(10),
		EvalMaxZ:               ptrFloat64(3),
		VisualizeMinZ:          ptrFloat64(-1e100),
		VisualizeMaxZ:          ptrFloat64(1e100),
		SnapshotInterval:       ptrString("60s"),
		SnapshotDisable:        ptrBool(false),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file fall back to the Get*
// defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Only set fields
// are checked; nil fields fall back to known-good defaults.
func (c *TuningConfig) Validate() error {
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %f", *c.Resolution)
	}
	if c.ProbabilityHit != nil && (*c.ProbabilityHit <= 0.5 || *c.ProbabilityHit >= 1) {
		return fmt.Errorf("probability_hit must be in (0.5, 1), got %f", *c.ProbabilityHit)
	}
	if c.ProbabilityMiss != nil && (*c.ProbabilityMiss <= 0 || *c.ProbabilityMiss >= 0.5) {
		return fmt.Errorf("probability_miss must be in (0, 0.5), got %f", *c.ProbabilityMiss)
	}
	if c.SaliencyAlpha != nil && (*c.SaliencyAlpha <= 0 || *c.SaliencyAlpha > 1) {
		return fmt.Errorf("saliency_alpha must be in (0, 1], got %f", *c.SaliencyAlpha)
	}
	if c.SaliencyThreshold != nil && (*c.SaliencyThreshold < 0 || *c.SaliencyThreshold > 255) {
		return fmt.Errorf("saliency_threshold must be in [0, 255], got %f", *c.SaliencyThreshold)
	}
	if c.SnapshotInterval != nil {
		if _, err := time.ParseDuration(*c.SnapshotInterval); err != nil {
			return fmt.Errorf("invalid snapshot_interval: %w", err)
		}
	}
	evalAxes := [3][2]*float64{
		{c.EvalMinX, c.EvalMaxX},
		{c.EvalMinY, c.EvalMaxY},
		{c.EvalMinZ, c.EvalMaxZ},
	}
	for i, axis := range evalAxes {
		if axis[0] != nil && axis[1] != nil && *axis[0] >= *axis[1] {
			return fmt.Errorf("eval volume must have min < max on axis %c, got [%f, %f]",
				'x'+i, *axis[0], *axis[1])
		}
	}
	if c.VisualizeMinZ != nil && c.VisualizeMaxZ != nil && *c.VisualizeMinZ >= *c.VisualizeMaxZ {
		return fmt.Errorf("visualize_min_z must be below visualize_max_z, got [%f, %f]",
			*c.VisualizeMinZ, *c.VisualizeMaxZ)
	}
	return nil
}

// GetResolution returns the resolution value or the default.
func (c *TuningConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 0.15
	}
	return *c.Resolution
}

// GetProbabilityHit returns the probability_hit value or the default.
func (c *TuningConfig) GetProbabilityHit() float64 {
	if c.ProbabilityHit == nil {
		return 0.65
	}
	return *c.ProbabilityHit
}

// GetProbabilityMiss returns the probability_miss value or the default.
func (c *TuningConfig) GetProbabilityMiss() float64 {
	if c.ProbabilityMiss == nil {
		return 0.4
	}
	return *c.ProbabilityMiss
}

// GetThresholdMin returns the threshold_min value or the default.
func (c *TuningConfig) GetThresholdMin() float64 {
	if c.ThresholdMin == nil {
		return 0.12
	}
	return *c.ThresholdMin
}

// GetThresholdMax returns the threshold_max value or the default.
func (c *TuningConfig) GetThresholdMax() float64 {
	if c.ThresholdMax == nil {
		return 0.97
	}
	return *c.ThresholdMax
}

// GetThresholdOccupancy returns the threshold_occupancy value or the default.
func (c *TuningConfig) GetThresholdOccupancy() float64 {
	if c.ThresholdOccupancy == nil {
		return 0.5
	}
	return *c.ThresholdOccupancy
}

// GetSensorMaxRange returns the sensor_max_range value or the default.
func (c *TuningConfig) GetSensorMaxRange() float64 {
	if c.SensorMaxRange == nil {
		return 5.0
	}
	return *c.SensorMaxRange
}

// GetMaxFreeSpace returns the max_free_space value or the default.
func (c *TuningConfig) GetMaxFreeSpace() float64 {
	if c.MaxFreeSpace == nil {
		return 0 // disabled
	}
	return *c.MaxFreeSpace
}

// GetMinHeightFreeSpace returns the min_height_free_space value or the default.
func (c *TuningConfig) GetMinHeightFreeSpace() float64 {
	if c.MinHeightFreeSpace == nil {
		return 0
	}
	return *c.MinHeightFreeSpace
}

// GetFilterSpeckles returns the filter_speckles value or the default.
func (c *TuningConfig) GetFilterSpeckles() bool {
	if c.FilterSpeckles == nil {
		return false
	}
	return *c.FilterSpeckles
}

// GetTreatUnknownAsOccupied returns the treat_unknown_as_occupied value or
// the default.
func (c *TuningConfig) GetTreatUnknownAsOccupied() bool {
	if c.TreatUnknownAsOccupied == nil {
		return true // conservative: plan only through known space
	}
	return *c.TreatUnknownAsOccupied
}

// GetChangeDetection returns the change_detection value or the default.
func (c *TuningConfig) GetChangeDetection() bool {
	if c.ChangeDetection == nil {
		return false
	}
	return *c.ChangeDetection
}

// GetSaliencyAlpha returns the saliency_alpha value or the default.
func (c *TuningConfig) GetSaliencyAlpha() float64 {
	if c.SaliencyAlpha == nil {
		return 0.6
	}
	return *c.SaliencyAlpha
}

// GetSaliencyBeta returns the saliency_beta value or the default.
func (c *TuningConfig) GetSaliencyBeta() float64 {
	if c.SaliencyBeta == nil {
		return -0.01
	}
	return *c.SaliencyBeta
}

// GetSaliencyThreshold returns the saliency_threshold value or the default.
func (c *TuningConfig) GetSaliencyThreshold() float64 {
	if c.SaliencyThreshold == nil {
		return 128
	}
	return *c.SaliencyThreshold
}

// GetProjectionLimit returns the projection_limit value or the default.
func (c *TuningConfig) GetProjectionLimit() float64 {
	if c.ProjectionLimit == nil {
		return 7.0
	}
	return *c.ProjectionLimit
}

// GetGroundZ returns the ground_z value or the default.
func (c *TuningConfig) GetGroundZ() float64 {
	if c.GroundZ == nil {
		return 0
	}
	return *c.GroundZ
}

// GetRobotSize returns the robot footprint per axis, metres.
func (c *TuningConfig) GetRobotSize() (x, y, z float64) {
	x, y, z = 0.5, 0.5, 0.3
	if c.RobotSizeX != nil {
		x = *c.RobotSizeX
	}
	if c.RobotSizeY != nil {
		y = *c.RobotSizeY
	}
	if c.RobotSizeZ != nil {
		z = *c.RobotSizeZ
	}
	return x, y, z
}

// GetEvalMin returns the lower corner of the explored-fraction evaluation
// volume, metres.
func (c *TuningConfig) GetEvalMin() (x, y, z float64) {
	x, y, z = -10, -10, 0
	if c.EvalMinX != nil {
		x = *c.EvalMinX
	}
	if c.EvalMinY != nil {
		y = *c.EvalMinY
	}
	if c.EvalMinZ != nil {
		z = *c.EvalMinZ
	}
	return x, y, z
}

// GetEvalMax returns the upper corner of the explored-fraction evaluation
// volume, metres.
func (c *TuningConfig) GetEvalMax() (x, y, z float64) {
	x, y, z = 10, 10, 3
	if c.EvalMaxX != nil {
		x = *c.EvalMaxX
	}
	if c.EvalMaxY != nil {
		y = *c.EvalMaxY
	}
	if c.EvalMaxZ != nil {
		z = *c.EvalMaxZ
	}
	return x, y, z
}

// GetVisualizeMinZ returns the visualize_min_z value or the default
// (effectively unbounded).
func (c *TuningConfig) GetVisualizeMinZ() float64 {
	if c.VisualizeMinZ == nil {
		return -1e100
	}
	return *c.VisualizeMinZ
}

// GetVisualizeMaxZ returns the visualize_max_z value or the default
// (effectively unbounded).
func (c *TuningConfig) GetVisualizeMaxZ() float64 {
	if c.VisualizeMaxZ == nil {
		return 1e100
	}
	return *c.VisualizeMaxZ
}

// GetSnapshotInterval returns the snapshot_interval as a duration, or the
// default.
func (c *TuningConfig) GetSnapshotInterval() time.Duration {
	if c.SnapshotInterval == nil {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.SnapshotInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetSnapshotDisable returns the snapshot_disable value or the default.
func (c *TuningConfig) GetSnapshotDisable() bool {
	if c.SnapshotDisable == nil {
		return false
	}
	return *c.SnapshotDisable
}
