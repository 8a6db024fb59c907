package mapping

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/octree"
)

// SaliencyState is the per-voxel saliency classification lifecycle.
// Transitions only move forward: Normal → Salient → Retired. Retired is
// terminal for the lifetime of the voxel's saliency record.
type SaliencyState uint8

const (
	// SaliencyNormal is the initial state; observations accumulate.
	SaliencyNormal SaliencyState = iota
	// SaliencySalient means the smoothed value exceeded the threshold;
	// the hit counter is reused as the inhibition-of-return age clock.
	SaliencySalient
	// SaliencyRetired means a previously salient voxel decayed back below
	// the threshold. Retired voxels ignore further observations.
	SaliencyRetired
)

func (s SaliencyState) String() string {
	switch s {
	case SaliencyNormal:
		return "normal"
	case SaliencySalient:
		return "salient"
	case SaliencyRetired:
		return "retired"
	}
	return "invalid"
}

// SaliencyRecord is the lazily created saliency state of one occupied
// voxel. Value is kept on the 0-255 intensity scale.
type SaliencyRecord struct {
	State       SaliencyState
	Value       float64
	ValueBuffer float64 // running mean of the current observation epoch
	HitCounter  uint32  // observations this epoch; salient age once promoted
	LastEpoch   uint32

	// Visibility-weighted coverage accumulators.
	ViewpointCount uint32
	DensityAccum   uint64
}

// SaliencyEngine maintains the saliency side table keyed by voxel key.
// Records exist only for voxels that have received a saliency observation,
// keeping memory proportional to the observed surface.
type SaliencyEngine struct {
	tree    *octree.Tree
	records map[octree.Key]*SaliencyRecord
}

// NewSaliencyEngine creates an engine over the given store.
func NewSaliencyEngine(tree *octree.Tree) *SaliencyEngine {
	return &SaliencyEngine{
		tree:    tree,
		records: make(map[octree.Key]*SaliencyRecord),
	}
}

// Reset drops all saliency records, for a store reset.
func (e *SaliencyEngine) Reset(tree *octree.Tree) {
	e.tree = tree
	e.records = make(map[octree.Key]*SaliencyRecord)
}

// Record returns a copy of the voxel's saliency record, if one exists.
func (e *SaliencyEngine) Record(k octree.Key) (SaliencyRecord, bool) {
	r, ok := e.records[k]
	if !ok {
		return SaliencyRecord{}, false
	}
	return *r, true
}

// Len returns the number of saliency records.
func (e *SaliencyEngine) Len() int { return len(e.records) }

// Observe folds one saliency-weighted observation into the voxel at k.
// Only Normal voxels accept observations; salient and retired voxels ignore
// them. The record is created lazily on first observation.
func (e *SaliencyEngine) Observe(k octree.Key, intensity uint8, cfg SaliencyConfig) {
	rec := e.records[k]
	if rec == nil {
		rec = &SaliencyRecord{}
		e.records[k] = rec
	}
	if rec.State != SaliencyNormal {
		return
	}

	// First observation of this epoch: reset the running mean baseline.
	if rec.LastEpoch != cfg.Epoch {
		rec.HitCounter = 0
		rec.LastEpoch = cfg.Epoch
		rec.ValueBuffer = rec.Value
	}

	prevMean := rec.ValueBuffer
	rec.HitCounter++
	mean := (prevMean*float64(rec.HitCounter-1) + float64(intensity)) / float64(rec.HitCounter)
	rec.Value += cfg.Alpha * (mean - prevMean)
	rec.ValueBuffer = mean

	if rec.Value > cfg.SaliencyThreshold {
		rec.State = SaliencySalient
		// The counter now measures salient age for inhibition of return.
		rec.HitCounter = 0
	}
}

// DecaySweep ages every salient voxel not observed in the current epoch and
// zeroes the saliency of voxels no longer occupied. It walks the record
// table, so its cost is O(saliency records) per sensor frame; the per-voxel
// occupancy lookup resolves pruned coarse leaves, so records inside a pruned
// cube still decay. Callers invoke it once per epoch and only when cfg.Beta
// is negative.
func (e *SaliencyEngine) DecaySweep(cfg SaliencyConfig) {
	for key, rec := range e.records {
		if !e.tree.IsOccupied(e.tree.Search(key)) {
			// Saliency has no meaning off the surface.
			rec.Value = 0
			continue
		}
		// A voxel freshly observed this epoch is never also decayed.
		if rec.State != SaliencySalient || rec.LastEpoch == cfg.Epoch {
			continue
		}
		rec.HitCounter++
		k := float64(rec.HitCounter)
		kb := k * cfg.Beta
		// Quadratic Taylor approximation of exp(k*beta).
		rec.Value *= 1 + kb + kb*kb/2
		if rec.Value <= cfg.SaliencyThreshold {
			rec.State = SaliencyRetired
		}
		rec.LastEpoch = cfg.Epoch
	}
}

// ReadGain returns the voxel's saliency intensity when it is currently
// salient, and 0 otherwise. Unknown and free voxels report 0.
func (e *SaliencyEngine) ReadGain(k octree.Key) float64 {
	if !e.tree.IsOccupied(e.tree.Search(k)) {
		return 0
	}
	rec := e.records[k]
	if rec == nil || rec.State != SaliencySalient {
		return 0
	}
	return rec.Value
}

// MarkViewpoint accumulates visibility-weighted coverage for the voxel at
// k: one more viewpoint saw it, contributing the given pixel density.
func (e *SaliencyEngine) MarkViewpoint(k octree.Key, density uint64) {
	rec := e.records[k]
	if rec == nil {
		rec = &SaliencyRecord{}
		e.records[k] = rec
	}
	rec.ViewpointCount++
	rec.DensityAccum += density
}

// SaliencyPoint is one saliency-weighted world-frame observation.
type SaliencyPoint struct {
	Pos       r3.Vec
	Intensity uint8
}

// InsertSaliencyCloud projects a frame of saliency-weighted points into the
// map: each point above the threshold is ray-cast from the sensor origin
// (bounded by the projection limit); when the ray strikes an occupied voxel
// above the ground plane, the observation is folded into that voxel. The
// epoch advances once per frame, and the decay sweep runs afterwards when
// the decay rate enables it. Returns the projection endpoints for debugging.
func (w *World) InsertSaliencyCloud(origin r3.Vec, points []SaliencyPoint) []r3.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.salConfig.Epoch++
	cfg := w.salConfig

	endpoints := []r3.Vec{origin}
	for _, sp := range points {
		if float64(sp.Intensity) < cfg.SaliencyThreshold {
			continue
		}
		direction := r3.Sub(sp.Pos, origin)
		hit, ok := w.tree.CastRay(origin, direction, cfg.ProjectionLimit, false)
		if !ok || hit.Z <= w.params.GroundZ {
			continue
		}
		key, ok := w.tree.CoordToKeyChecked(hit)
		if !ok {
			continue
		}
		if !w.tree.IsOccupied(w.tree.Search(key)) {
			continue
		}
		w.saliency.Observe(key, sp.Intensity, cfg)
		endpoints = append(endpoints, hit)
	}

	if cfg.Beta < 0 {
		w.saliency.DecaySweep(cfg)
	}
	w.lastProjection = endpoints
	return endpoints
}

// MarkVoxelViewpoint records that the voxel containing point is visible
// from origin, accumulating the given density weight. Voxels that are not
// occupied or not visible (unknown cells do not block) are ignored.
func (w *World) MarkVoxelViewpoint(origin, point r3.Vec, density uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key, ok := w.tree.CoordToKeyChecked(point)
	if !ok {
		return
	}
	if !w.tree.IsOccupied(w.tree.Search(key)) {
		return
	}
	if w.visibilityLocked(origin, point, false) != CellFree {
		return
	}
	w.saliency.MarkViewpoint(key, density)
}

// SaliencyRecord returns a copy of the saliency record for the voxel
// containing point, if the voxel has ever been observed or viewed.
func (w *World) SaliencyRecord(point r3.Vec) (SaliencyRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key, ok := w.tree.CoordToKeyChecked(point)
	if !ok {
		return SaliencyRecord{}, false
	}
	return w.saliency.Record(key)
}

// CuriousGain returns the saliency-weighted information gain of the voxel
// containing point, alongside its occupancy status. Only salient occupied
// voxels carry gain.
func (w *World) CuriousGain(point r3.Vec) (CellStatus, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key, ok := w.tree.CoordToKeyChecked(point)
	if !ok {
		return CellUnknown, 0
	}
	node := w.tree.Search(key)
	if node == nil {
		return CellUnknown, 0
	}
	if !w.tree.IsOccupied(node) {
		return CellFree, 0
	}
	return CellOccupied, w.saliency.ReadGain(key)
}
