// Package mapping implements the saliency-aware occupancy map: batch
// ray-casting evidence building, occupancy integration, the saliency
// inhibition-of-return state machine, and the spatial query layer, all over
// the sparse octree store.
package mapping

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/monitoring"
	"github.com/banshee-data/saliency.world/internal/octree"
)

// World owns one occupancy map and its saliency state. All mutation and all
// queries serialise on its mutex, so a caller never observes a partially
// integrated batch.
type World struct {
	mu        sync.Mutex
	tree      *octree.Tree
	params    Params
	salConfig SaliencyConfig
	saliency  *SaliencyEngine

	robotSize r3.Vec

	lastProjection []r3.Vec

	// Exploration tracking over the configured evaluation volume.
	exploredFraction float64
	exploredPrev     float64
	explorationRate  float64
	timePast         float64
	timeLast         time.Time
	startTiming      bool

	now func() time.Time // test hook
}

// NewWorld creates a map with the given parameters and saliency tuning.
func NewWorld(params Params, salConfig SaliencyConfig) (*World, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := salConfig.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		params:      params,
		salConfig:   salConfig,
		startTiming: true,
		now:         time.Now,
	}
	w.tree = newTree(params)
	w.saliency = NewSaliencyEngine(w.tree)
	return w, nil
}

func newTree(params Params) *octree.Tree {
	t := octree.New(params.Resolution)
	t.SetParams(octree.Params{
		ProbHit:            params.ProbabilityHit,
		ProbMiss:           params.ProbabilityMiss,
		ThresholdMin:       params.ThresholdMin,
		ThresholdMax:       params.ThresholdMax,
		ThresholdOccupancy: params.ThresholdOccupancy,
	})
	t.EnableChangeDetection(params.ChangeDetectionEnabled)
	return t
}

// Params returns the current parameter set.
func (w *World) Params() Params {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params
}

// SaliencyConfig returns the current saliency tuning, including the epoch.
func (w *World) SaliencyConfig() SaliencyConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.salConfig
}

// SetSaliencyConfig replaces the saliency tuning, preserving the epoch.
func (w *World) SetSaliencyConfig(cfg SaliencyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg.Epoch = w.salConfig.Epoch
	w.salConfig = cfg
	return nil
}

// SetParams installs a new parameter set. A resolution change discards the
// whole store (with a logged warning); everything else applies in place.
func (w *World) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if params.Resolution != w.params.Resolution {
		monitoring.Logf("map resolution changed %v -> %v: resetting map",
			w.params.Resolution, params.Resolution)
		w.params = params
		w.tree = newTree(params)
		w.saliency.Reset(w.tree)
		return nil
	}

	w.params = params
	w.tree.SetParams(octree.Params{
		ProbHit:            params.ProbabilityHit,
		ProbMiss:           params.ProbabilityMiss,
		ThresholdMin:       params.ThresholdMin,
		ThresholdMax:       params.ThresholdMax,
		ThresholdOccupancy: params.ThresholdOccupancy,
	})
	w.tree.EnableChangeDetection(params.ChangeDetectionEnabled)
	return nil
}

// ResetMap clears all stored evidence and saliency state.
func (w *World) ResetMap() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree.Clear()
	w.saliency.Reset(w.tree)
}

// SetRobotSize sets the footprint used by the collision checks.
func (w *World) SetRobotSize(size r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.robotSize = size
}

// RobotSize returns the configured collision footprint.
func (w *World) RobotSize() r3.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.robotSize
}

// InsertPointCloud integrates one sensor frame: every point becomes a ray
// from origin, the rays accumulate into one shared evidence batch, and the
// batch is applied to the store as a unit. Callers filter NaN points first
// (see FilterInvalid).
func (w *World) InsertPointCloud(origin r3.Vec, points []r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	builder := NewRayEvidenceBuilder(w.tree, w.params)
	batch := NewEvidenceBatch()
	for _, p := range points {
		builder.CastRay(origin, p, batch)
	}
	NewOccupancyIntegrator(w.tree).Apply(batch)
	w.updateExploredLocked()
}

// InsertPointCloudWithPose transforms a sensor-frame cloud by the 4x4
// row-major pose and integrates it, using the pose translation as the
// sensor origin.
func (w *World) InsertPointCloudWithPose(points []r3.Vec, pose [16]float64) {
	world := make([]r3.Vec, len(points))
	for i, p := range points {
		world[i] = ApplyPose(p, pose)
	}
	origin := r3.Vec{X: pose[3], Y: pose[7], Z: pose[11]}
	w.InsertPointCloud(origin, world)
}

// LastProjection returns the endpoints recorded by the most recent saliency
// projection, starting with the sensor origin.
func (w *World) LastProjection() []r3.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]r3.Vec, len(w.lastProjection))
	copy(out, w.lastProjection)
	return out
}

// updateExploredLocked recomputes the explored fraction of the evaluation
// volume: known voxels (free or occupied) over the volume's voxel count.
func (w *World) updateExploredLocked() {
	min, max := w.params.EvalMin, w.params.EvalMax
	res := w.tree.Resolution()
	total := (max.X - min.X) * (max.Y - min.Y) * (max.Z - min.Z) / (res * res * res)
	if total <= 0 {
		return
	}
	known := 0
	w.tree.EachLeafInBox(min, max, func(l octree.Leaf) bool {
		known++
		return true
	})
	w.exploredFraction = float64(known) / total
}

// ExploredFraction returns the fraction of the evaluation volume currently
// known.
func (w *World) ExploredFraction() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exploredFraction
}

// ExplorationRate samples the explored fraction against the wall clock,
// returning the fraction, its rate of change per second, and the total
// elapsed observation time.
func (w *World) ExplorationRate() (fraction, rate, elapsed float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.startTiming {
		w.timeLast = now
		w.startTiming = false
	}
	step := now.Sub(w.timeLast).Seconds()
	if step > 0 {
		w.explorationRate = (w.exploredFraction - w.exploredPrev) / step
	} else {
		w.explorationRate = 0
	}
	w.timePast += step
	w.exploredPrev = w.exploredFraction
	w.timeLast = now
	return w.exploredFraction, w.explorationRate, w.timePast
}

// NumVoxels returns the number of stored leaves.
func (w *World) NumVoxels() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.NumLeaves()
}

// Resolution returns the voxel edge length in metres.
func (w *World) Resolution() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.Resolution()
}

// FilterInvalid removes points with NaN or infinite components. Sensor
// drivers emit them for dropped returns; evidence building assumes finite
// geometry.
func FilterInvalid(points []r3.Vec) []r3.Vec {
	out := points[:0]
	for _, p := range points {
		if isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z) {
			out = append(out, p)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ApplyPose applies a 4x4 row-major transform T to the point.
func ApplyPose(p r3.Vec, T [16]float64) r3.Vec {
	return r3.Vec{
		X: T[0]*p.X + T[1]*p.Y + T[2]*p.Z + T[3],
		Y: T[4]*p.X + T[5]*p.Y + T[6]*p.Z + T[7],
		Z: T[8]*p.X + T[9]*p.Y + T[10]*p.Z + T[11],
	}
}
