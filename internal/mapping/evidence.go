package mapping

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/octree"
)

// RayOutcome reports how a single ray contributed to an evidence batch. It
// only affects bookkeeping; the evidence sets are correct either way.
type RayOutcome int

const (
	// RayNoOp means the ray produced no evidence (degenerate geometry,
	// out-of-range endpoint, or a target already marked occupied).
	RayNoOp RayOutcome = iota
	// RayEndpointMarked means free cells were recorded and the terminal
	// voxel was marked occupied.
	RayEndpointMarked
	// RayTruncated means the ray exceeded the sensor range: free cells
	// were recorded up to the truncation point, nothing marked occupied.
	RayTruncated
)

// EvidenceBatch accumulates the free and occupied voxel keys of one sensor
// frame. Both sets are shared across every ray of the frame; the integrator
// guarantees disjointness (occupied wins) when the batch is applied.
type EvidenceBatch struct {
	Free     map[octree.Key]struct{}
	Occupied map[octree.Key]struct{}
}

// NewEvidenceBatch returns an empty batch.
func NewEvidenceBatch() *EvidenceBatch {
	return &EvidenceBatch{
		Free:     make(map[octree.Key]struct{}),
		Occupied: make(map[octree.Key]struct{}),
	}
}

// RayEvidenceBuilder converts origin→point segments into free/occupied voxel
// evidence, honouring max-range truncation and the free-space-extent cutoff.
type RayEvidenceBuilder struct {
	tree               *octree.Tree
	sensorMaxRange     float64 // negative disables
	maxFreeSpace       float64 // 0 disables
	minHeightFreeSpace float64
}

// NewRayEvidenceBuilder binds a builder to the store and the frame's
// parameters.
func NewRayEvidenceBuilder(tree *octree.Tree, params Params) *RayEvidenceBuilder {
	return &RayEvidenceBuilder{
		tree:               tree,
		sensorMaxRange:     params.SensorMaxRange,
		maxFreeSpace:       params.MaxFreeSpace,
		minHeightFreeSpace: params.MinHeightFreeSpace,
	}
}

// CastRay classifies the voxels along origin→point into batch. A point whose
// key already sits in the occupied set is skipped before any ray
// computation; occupied points are assumed rare relative to free voxels, so
// this membership check is the sole de-duplication safeguard.
func (b *RayEvidenceBuilder) CastRay(origin, point r3.Vec, batch *EvidenceBatch) RayOutcome {
	if key, ok := b.tree.CoordToKeyChecked(point); ok {
		if _, seen := batch.Occupied[key]; seen {
			return RayNoOp
		}
	}

	dist := r3.Norm(r3.Sub(point, origin))
	if b.sensorMaxRange < 0 || dist <= b.sensorMaxRange {
		keys, ok := b.tree.ComputeRayKeys(origin, point)
		if ok {
			b.collectFree(origin, keys, batch)
		}
		key, ok := b.tree.CoordToKeyChecked(point)
		if !ok {
			return RayNoOp
		}
		batch.Occupied[key] = struct{}{}
		return RayEndpointMarked
	}

	// Beyond the sensor range: truncate to exactly max range along the same
	// direction and record free space only. What lies past the truncation
	// stays unknown.
	if dist == 0 {
		return RayNoOp
	}
	direction := r3.Scale(1/dist, r3.Sub(point, origin))
	truncated := r3.Add(origin, r3.Scale(b.sensorMaxRange, direction))
	if keys, ok := b.tree.ComputeRayKeys(origin, truncated); ok {
		b.collectFree(origin, keys, batch)
	}
	return RayTruncated
}

// collectFree inserts ray keys into the free set, applying the
// free-space-extent cutoff: when a positive extent is configured, only
// voxels near the origin count as free, unless they sit high enough above
// the origin's ground plane ("far but high" still counts).
func (b *RayEvidenceBuilder) collectFree(origin r3.Vec, keys []octree.Key, batch *EvidenceBatch) {
	if b.maxFreeSpace <= 0 {
		for _, k := range keys {
			batch.Free[k] = struct{}{}
		}
		return
	}
	for _, k := range keys {
		center := b.tree.KeyToCoord(k)
		if r3.Norm(r3.Sub(center, origin)) < b.maxFreeSpace ||
			center.Z > origin.Z-b.minHeightFreeSpace {
			batch.Free[k] = struct{}{}
		}
	}
}
