package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/octree"
)

// CellStatus classifies a point, segment or region of the map.
type CellStatus int

const (
	// CellFree means every queried voxel is known and below the
	// occupancy threshold.
	CellFree CellStatus = iota
	// CellOccupied means at least one queried voxel is occupied.
	CellOccupied
	// CellUnknown means no voxel record exists for (part of) the query.
	CellUnknown
)

func (s CellStatus) String() string {
	switch s {
	case CellFree:
		return "free"
	case CellOccupied:
		return "occupied"
	case CellUnknown:
		return "unknown"
	}
	return "invalid"
}

// CellStatusPoint looks up the single voxel containing point.
func (w *World) CellStatusPoint(point r3.Vec) CellStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cellStatusLocked(point)
}

func (w *World) cellStatusLocked(point r3.Vec) CellStatus {
	node := w.tree.SearchPoint(point)
	if node == nil {
		return CellUnknown
	}
	if w.tree.IsOccupied(node) {
		return CellOccupied
	}
	return CellFree
}

// CellProbabilityPoint is CellStatusPoint plus the occupancy probability.
// Unknown voxels report the -1 sentinel.
func (w *World) CellProbabilityPoint(point r3.Vec) (CellStatus, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	node := w.tree.SearchPoint(point)
	if node == nil {
		return CellUnknown, -1
	}
	if w.tree.IsOccupied(node) {
		return CellOccupied, node.Occupancy()
	}
	return CellFree, node.Occupancy()
}

// CellStatusBoundingBox scans every voxel intersecting the box centred at
// center. Occupied voxels win (unless filtered as speckles); a box touching
// any unknown voxel is Unknown; otherwise Free. When unknown counts as
// occupied, a non-free centre short-circuits the scan.
func (w *World) CellStatusBoundingBox(center, boxSize r3.Vec) CellStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cellStatusBoxLocked(center, boxSize)
}

func (w *World) cellStatusBoxLocked(center, boxSize r3.Vec) CellStatus {
	centerStatus := w.cellStatusLocked(center)
	if centerStatus != CellFree && w.params.TreatUnknownAsOccupied {
		return centerStatus
	}
	if _, ok := w.tree.CoordToKeyChecked(center); !ok {
		return CellUnknown
	}

	half := r3.Scale(0.5, boxSize)
	boxMin := r3.Sub(center, half)
	boxMax := r3.Add(center, half)

	occupied := false
	w.tree.EachLeafInBox(boxMin, boxMax, func(l octree.Leaf) bool {
		if !w.tree.Occupied(l) {
			return true
		}
		if w.params.FilterSpeckles && w.isSpeckleLocked(l.Key) {
			return true
		}
		occupied = true
		return false
	})
	if occupied {
		return CellOccupied
	}

	// Leaf iteration only yields known voxels; probe the box on a
	// resolution grid for cells with no record at all.
	if w.unknownInBoxLocked(boxMin, boxMax) {
		return CellUnknown
	}
	return CellFree
}

// unknownInBoxLocked reports whether any voxel sampled on a resolution grid
// across [boxMin, boxMax] has no record.
func (w *World) unknownInBoxLocked(boxMin, boxMax r3.Vec) bool {
	res := w.tree.Resolution()
	for x := boxMin.X + res/2; x <= boxMax.X; x += res {
		for y := boxMin.Y + res/2; y <= boxMax.Y; y += res {
			for z := boxMin.Z + res/2; z <= boxMax.Z; z += res {
				if w.tree.SearchPoint(r3.Vec{X: x, Y: y, Z: z}) == nil {
					return true
				}
			}
		}
	}
	return false
}

// LineStatus walks the voxels along the segment from start to end. The
// first unknown voxel yields Unknown immediately, the first occupied voxel
// yields Occupied; a fully known free segment yields Free.
func (w *World) LineStatus(start, end r3.Vec) CellStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lineStatusLocked(start, end)
}

func (w *World) lineStatusLocked(start, end r3.Vec) CellStatus {
	keys, ok := w.tree.ComputeRayKeys(start, end)
	if !ok {
		return CellUnknown
	}
	for _, k := range keys {
		node := w.tree.Search(k)
		if node == nil {
			return CellUnknown
		}
		if w.tree.IsOccupied(node) {
			return CellOccupied
		}
	}
	return CellFree
}

// LineStatusBoundingBox sweeps the box along the segment: the box is
// discretised into per-axis offsets with steps never coarser than the voxel
// resolution (degenerate axes fall back to a unit step), and LineStatus is
// repeated for every offset, short-circuiting on the first non-free result.
// A conservative over-approximation: no cell in the swept box is missed.
func (w *World) LineStatusBoundingBox(start, end, boxSize r3.Vec) CellStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	const epsilon = 0.001 // keeps the division below resolution-aligned
	res := w.tree.Resolution()

	xDisc := boxSize.X / math.Ceil((boxSize.X+epsilon)/res)
	yDisc := boxSize.Y / math.Ceil((boxSize.Y+epsilon)/res)
	zDisc := boxSize.Z / math.Ceil((boxSize.Z+epsilon)/res)
	if xDisc <= 0 {
		xDisc = 1.0
	}
	if yDisc <= 0 {
		yDisc = 1.0
	}
	if zDisc <= 0 {
		zDisc = 1.0
	}

	half := r3.Scale(0.5, boxSize)
	for x := -half.X; x <= half.X; x += xDisc {
		for y := -half.Y; y <= half.Y; y += yDisc {
			for z := -half.Z; z <= half.Z; z += zDisc {
				offset := r3.Vec{X: x, Y: y, Z: z}
				status := w.lineStatusLocked(r3.Add(start, offset), r3.Add(end, offset))
				if status != CellFree {
					return status
				}
			}
		}
	}
	return CellFree
}

// Visibility reports whether target is visible from viewpoint. The record
// at the target's own voxel is ignored: an occupied target is the thing
// being tested for visibility, not an obstruction. Unknown voxels block
// only when stopAtUnknown is set.
func (w *World) Visibility(viewpoint, target r3.Vec, stopAtUnknown bool) CellStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibilityLocked(viewpoint, target, stopAtUnknown)
}

func (w *World) visibilityLocked(viewpoint, target r3.Vec, stopAtUnknown bool) CellStatus {
	keys, ok := w.tree.ComputeRayKeys(viewpoint, target)
	if !ok {
		return CellUnknown
	}
	targetKey := w.tree.CoordToKey(target)
	for _, k := range keys {
		if k == targetKey {
			continue
		}
		node := w.tree.Search(k)
		if node == nil {
			if stopAtUnknown {
				return CellUnknown
			}
			continue
		}
		if w.tree.IsOccupied(node) {
			return CellOccupied
		}
	}
	return CellFree
}

// IsSpeckle reports whether the voxel at key is an isolated occupied voxel:
// none of the 26 neighbours within a ±1 key offset is occupied. Each
// neighbour offset is resolved individually.
func (w *World) IsSpeckle(key octree.Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isSpeckleLocked(key)
}

func (w *World) isSpeckleLocked(key octree.Key) bool {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				nx := int(key.X) + dx
				ny := int(key.Y) + dy
				nz := int(key.Z) + dz
				if nx < 0 || nx > math.MaxUint16 ||
					ny < 0 || ny > math.MaxUint16 ||
					nz < 0 || nz > math.MaxUint16 {
					continue
				}
				neighbor := octree.Key{X: uint16(nx), Y: uint16(ny), Z: uint16(nz)}
				if w.tree.IsOccupied(w.tree.Search(neighbor)) {
					return false
				}
			}
		}
	}
	return true
}

// CheckCollision reports whether the robot footprint centred at position
// collides. When unknown counts as occupied any non-free box collides;
// otherwise only a definitely occupied box does.
func (w *World) CheckCollision(position r3.Vec) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.collisionLocked(position)
}

func (w *World) collisionLocked(position r3.Vec) bool {
	status := w.cellStatusBoxLocked(position, w.robotSize)
	if w.params.TreatUnknownAsOccupied {
		return status != CellFree
	}
	return status == CellOccupied
}

// CheckPathCollision returns the index of the first position along the path
// whose footprint collides, short-circuiting at that point. ok is false
// when the whole path is collision free.
func (w *World) CheckPathCollision(positions []r3.Vec) (index int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, p := range positions {
		if w.collisionLocked(p) {
			return i, true
		}
	}
	return 0, false
}

// ChangedVoxel is one drained change-tracking entry.
type ChangedVoxel struct {
	Position r3.Vec
	Occupied bool
}

// ChangedVoxels drains the store's change-tracking buffer and clears it.
// This is a consuming read: a second call returns nothing new until further
// mutation.
func (w *World) ChangedVoxels() []ChangedVoxel {
	w.mu.Lock()
	defer w.mu.Unlock()

	changes := w.tree.Changes()
	out := make([]ChangedVoxel, 0, len(changes))
	for k := range changes {
		out = append(out, ChangedVoxel{
			Position: w.tree.KeyToCoord(k),
			Occupied: w.tree.IsOccupied(w.tree.Search(k)),
		})
	}
	w.tree.ResetChangeDetection()
	return out
}
