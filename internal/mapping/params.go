package mapping

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Params is the immutable per-configuration-epoch parameter set of the map.
// Changing the resolution replaces the voxel store wholesale; every other
// field takes effect on the next operation.
type Params struct {
	Resolution         float64 // voxel edge length in metres
	ProbabilityHit     float64 // evidence per occupied observation
	ProbabilityMiss    float64 // evidence per free observation
	ThresholdMin       float64 // log-odds clamp floor (as probability)
	ThresholdMax       float64 // log-odds clamp ceiling (as probability)
	ThresholdOccupancy float64 // decision threshold for "occupied"

	FilterSpeckles bool // drop isolated occupied voxels from box queries

	SensorMaxRange     float64 // metres; negative disables truncation
	MaxFreeSpace       float64 // free-space extent cutoff; 0 disables
	MinHeightFreeSpace float64 // height exemption for the extent cutoff

	TreatUnknownAsOccupied bool // collision policy for unknown cells
	ChangeDetectionEnabled bool // record occupancy classification flips

	VisualizeMinZ float64 // z clip for debug rendering
	VisualizeMaxZ float64

	GroundZ float64 // saliency projection ignores hits at or below this z

	// EvalMin/EvalMax bound the volume used for explored-fraction tracking.
	EvalMin r3.Vec
	EvalMax r3.Vec
}

// DefaultParams mirrors the usual indoor depth-sensor model.
func DefaultParams() Params {
	return Params{
		Resolution:         0.15,
		ProbabilityHit:     0.65,
		ProbabilityMiss:    0.4,
		ThresholdMin:       0.12,
		ThresholdMax:       0.97,
		ThresholdOccupancy: 0.5,
		FilterSpeckles:     false,
		SensorMaxRange:     5.0,
		MaxFreeSpace:       0.0,
		MinHeightFreeSpace: 0.0,
		VisualizeMinZ:      -1e100,
		VisualizeMaxZ:      1e100,
		GroundZ:            0.0,
		EvalMin:            r3.Vec{X: -10, Y: -10, Z: 0},
		EvalMax:            r3.Vec{X: 10, Y: 10, Z: 3},
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.Resolution <= 0 {
		return fmt.Errorf("Resolution must be positive, got %f", p.Resolution)
	}
	if p.ProbabilityHit <= 0.5 || p.ProbabilityHit >= 1 {
		return fmt.Errorf("ProbabilityHit must be in (0.5, 1), got %f", p.ProbabilityHit)
	}
	if p.ProbabilityMiss <= 0 || p.ProbabilityMiss >= 0.5 {
		return fmt.Errorf("ProbabilityMiss must be in (0, 0.5), got %f", p.ProbabilityMiss)
	}
	if p.ThresholdMin <= 0 || p.ThresholdMin >= p.ThresholdMax || p.ThresholdMax >= 1 {
		return fmt.Errorf("clamping thresholds must satisfy 0 < min < max < 1, got [%f, %f]",
			p.ThresholdMin, p.ThresholdMax)
	}
	if p.ThresholdOccupancy <= 0 || p.ThresholdOccupancy >= 1 {
		return fmt.Errorf("ThresholdOccupancy must be in (0, 1), got %f", p.ThresholdOccupancy)
	}
	if p.MaxFreeSpace < 0 {
		return fmt.Errorf("MaxFreeSpace must be non-negative (0 disables), got %f", p.MaxFreeSpace)
	}
	return nil
}

// SaliencyConfig drives the saliency state machine. Epoch advances once per
// saliency-bearing frame; all updates are keyed to it so ordering is
// controlled entirely by the caller.
type SaliencyConfig struct {
	Epoch             uint32  // monotonic frame counter
	Alpha             float64 // temporal smoothing gain
	Beta              float64 // IOR decay rate; negative enables the decay sweep
	SaliencyThreshold float64 // promotion threshold on the 0-255 scale
	ProjectionLimit   float64 // max ray length for saliency projection, metres
}

// DefaultSaliencyConfig returns the tuning used by the exploration stack.
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		Alpha:             0.6,
		Beta:              -0.01,
		SaliencyThreshold: 128,
		ProjectionLimit:   7.0,
	}
}

// Validate checks that the saliency tuning is usable.
func (c SaliencyConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("Alpha must be in (0, 1], got %f", c.Alpha)
	}
	if c.SaliencyThreshold < 0 || c.SaliencyThreshold > 255 {
		return fmt.Errorf("SaliencyThreshold must be in [0, 255], got %f", c.SaliencyThreshold)
	}
	if c.ProjectionLimit <= 0 {
		return fmt.Errorf("ProjectionLimit must be positive, got %f", c.ProjectionLimit)
	}
	return nil
}
